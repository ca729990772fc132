package lower

import (
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/iterator"
	"github.com/roach88/tensorc/internal/notation"
)

// scope is what the enclosing loops have established: level positions,
// accesses known to be absent, bound variables and redirected reductions.
// Children copy their parent; nothing is shared back up.
type scope struct {
	pos      map[*iterator.Iterator]ir.Expr
	seg      map[*iterator.Iterator]ir.Expr
	absent   map[*notation.Access]bool
	accum    map[*notation.Assignment]*accumulator
	bound    []*notation.IndexVar
	parallel []*notation.Forall
	loops    int
}

// accumulator is a scalar that stands in for an assignment's left-hand side
// while a reduction loop runs. Set is non-nil when the result is only
// stored if something was accumulated.
type accumulator struct {
	v   *ir.Var
	set *ir.Var
}

func newScope() *scope {
	return &scope{
		pos:    make(map[*iterator.Iterator]ir.Expr),
		seg:    make(map[*iterator.Iterator]ir.Expr),
		absent: make(map[*notation.Access]bool),
		accum:  make(map[*notation.Assignment]*accumulator),
	}
}

func (s *scope) child() *scope {
	c := newScope()
	for k, v := range s.pos {
		c.pos[k] = v
	}
	for k, v := range s.seg {
		c.seg[k] = v
	}
	for k, v := range s.absent {
		c.absent[k] = v
	}
	for k, v := range s.accum {
		c.accum[k] = v
	}
	c.bound = append([]*notation.IndexVar(nil), s.bound...)
	c.parallel = append([]*notation.Forall(nil), s.parallel...)
	c.loops = s.loops
	return c
}

func (s *scope) isBound(v *notation.IndexVar) bool {
	for _, b := range s.bound {
		if b == v {
			return true
		}
	}
	return false
}

// racing returns the innermost enclosing parallel forall whose iterations
// may write the same element of lhs, or nil.
func (s *scope) racing(lhs *notation.Access) *notation.Forall {
	for i := len(s.parallel) - 1; i >= 0; i-- {
		if !lhs.Has(s.parallel[i].Var) {
			return s.parallel[i]
		}
	}
	return nil
}
