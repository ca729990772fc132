package iterator

import (
	"fmt"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/notation"
	"github.com/roach88/tensorc/internal/typed"
)

// Namer hands out names that are unique within one kernel.
type Namer interface {
	Fresh(base string) string
}

// Workspace is the storage of a temporary produced by a where statement.
// Dense workspaces are a zeroed vals array addressed like a dense tensor.
// Sparse workspaces are order 1 and also keep membership flags and the
// list of inserted coordinates.
type Workspace struct {
	Tensor *notation.TensorVar
	Var    *ir.Var
	Vals   *ir.Property
	Sparse bool
	Flags  *ir.Var
	Crd    *ir.Var
	Count  *ir.Var
}

// Set holds the iterators of one statement.
type Set struct {
	names     Namer
	iterators []*Iterator
	levels    map[*notation.Access][]*Iterator
	dims      map[*notation.IndexVar]*Iterator
	tensors   map[*notation.TensorVar]*ir.Var
	order     []*notation.TensorVar
	props     map[propKey]*ir.Property
	temps     map[*notation.TensorVar]*Workspace
}

type propKey struct {
	tensor *ir.Var
	kind   ir.PropertyKind
	level  int
	dim    int
}

// Build creates the iterators of a concrete statement and checks that every
// level supports its access's role: inputs must be iterable, results and
// workspaces writable.
func Build(stmt notation.IndexStmt, names Namer) (*Set, error) {
	s := &Set{
		names:   names,
		levels:  make(map[*notation.Access][]*Iterator),
		dims:    make(map[*notation.IndexVar]*Iterator),
		tensors: make(map[*notation.TensorVar]*ir.Var),
		props:   make(map[propKey]*ir.Property),
		temps:   make(map[*notation.TensorVar]*Workspace),
	}
	temps := Temporaries(stmt)
	for _, t := range temps {
		s.temps[t] = nil
	}
	for _, t := range append(notation.Results(stmt), notation.Arguments(stmt)...) {
		if _, temp := s.temps[t]; temp {
			continue
		}
		v := ir.NewTensor(names.Fresh(t.Name), t.Type)
		s.tensors[t] = v
		s.order = append(s.order, t)
	}

	accesses := uniqueAccesses(stmt)
	if err := s.buildDims(stmt, accesses); err != nil {
		return nil, err
	}
	for _, t := range temps {
		ws, err := s.newWorkspace(t)
		if err != nil {
			return nil, err
		}
		s.temps[t] = ws
	}

	outputs := make(map[*notation.Access]bool)
	for _, a := range notation.Assignments(stmt) {
		outputs[a.Lhs] = true
	}
	for _, acc := range accesses {
		if err := s.buildLevels(acc, outputs[acc]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Temporaries returns the tensors produced by the producer side of where
// statements in s.
func Temporaries(stmt notation.IndexStmt) []*notation.TensorVar {
	var out []*notation.TensorVar
	seen := make(map[*notation.TensorVar]bool)
	var walk func(notation.IndexStmt)
	walk = func(s notation.IndexStmt) {
		switch n := s.(type) {
		case *notation.Forall:
			walk(n.Body)
		case *notation.Where:
			for _, t := range notation.Results(n.Producer) {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
			walk(n.Producer)
			walk(n.Consumer)
		case *notation.Sequence:
			for _, c := range n.Stmts {
				walk(c)
			}
		case *notation.Multi:
			for _, c := range n.Stmts {
				walk(c)
			}
		}
	}
	walk(stmt)
	return out
}

func uniqueAccesses(stmt notation.IndexStmt) []*notation.Access {
	var out []*notation.Access
	seen := make(map[*notation.Access]bool)
	for _, acc := range notation.StmtAccesses(stmt) {
		if !seen[acc] {
			seen[acc] = true
			out = append(out, acc)
		}
	}
	return out
}

func (s *Set) buildDims(stmt notation.IndexStmt, accesses []*notation.Access) error {
	vars := notation.IndexVars(stmt)
	for _, acc := range accesses {
		for _, v := range acc.Indices {
			if !containsVar(vars, v) {
				vars = append(vars, v)
			}
		}
	}
	for _, v := range vars {
		var extent ir.Expr
		for _, acc := range accesses {
			if _, temp := s.temps[acc.Tensor]; temp {
				continue
			}
			if d := acc.Dim(v); d >= 0 {
				extent = s.Property(s.tensors[acc.Tensor], ir.PropDimension, 0, d)
				break
			}
		}
		if extent == nil {
			return notation.SchemaError{
				Code:    notation.ErrNoAlgebra,
				Field:   "stmt",
				Message: fmt.Sprintf("index variable %s only indexes workspaces, its extent is unknown", v),
				Stmt:    stmt.String(),
			}
		}
		it := &Iterator{
			id:    len(s.iterators),
			kind:  Dimension,
			v:     v,
			coord: ir.NewIndexVar(s.names.Fresh(v.Name())),
			dim:   extent,
		}
		s.dims[v] = it
		s.iterators = append(s.iterators, it)
	}
	return nil
}

func (s *Set) newWorkspace(t *notation.TensorVar) (*Workspace, error) {
	v := ir.NewTensor(s.names.Fresh(t.Name), t.Type)
	s.tensors[t] = v
	ws := &Workspace{Tensor: t, Var: v, Vals: s.Property(v, ir.PropVals, 0, 0)}
	if t.Format.IsDense() {
		return ws, nil
	}
	if t.Order() != 1 {
		return nil, &CapabilityError{
			Iterator:   fmt.Sprintf("workspace %s (%s)", t.Name, t.Format),
			Capability: format.Insert,
			Op:         "sparse_workspace",
		}
	}
	ws.Sparse = true
	ws.Flags = ir.NewArray(s.names.Fresh(t.Name+"_set"), typed.Bool)
	ws.Crd = ir.NewArray(s.names.Fresh(t.Name+"_crd"), ir.IndexType)
	ws.Count = ir.NewIndexVar(s.names.Fresh(t.Name + "_count"))
	return ws, nil
}

func (s *Set) buildLevels(acc *notation.Access, output bool) error {
	t := acc.Tensor
	ws, temp := s.temps[t]
	tv := s.tensors[t]
	if len(acc.Indices) != t.Format.Order() {
		return notation.SchemaError{
			Code:    notation.ErrModeMismatch,
			Field:   "access",
			Message: fmt.Sprintf("%s has %d storage levels but is indexed by %d variables", t.Name, t.Format.Order(), len(acc.Indices)),
		}
	}
	var parent *Iterator
	levels := make([]*Iterator, t.Format.Order())
	for l := range levels {
		d := t.Format.Dimension(l)
		v := acc.Indices[d]
		it := &Iterator{
			id:     len(s.iterators),
			kind:   Level,
			access: acc,
			level:  l,
			mode:   t.Format.Modes[l],
			v:      v,
			parent: parent,
			output: output && !temp,
			temp:   temp,
			tensor: tv,
		}
		if temp {
			it.dim = s.dims[v].dim
		} else {
			it.dim = s.Property(tv, ir.PropDimension, 0, d)
		}
		if it.mode.IsFull() {
			it.coord = s.dims[v].coord
		} else {
			base := fmt.Sprintf("p%s%d", t.Name, l+1)
			it.pos = ir.NewIndexVar(s.names.Fresh(base))
			it.end = ir.NewIndexVar(s.names.Fresh(base + "_end"))
			it.seg = ir.NewIndexVar(s.names.Fresh(base + "_seg"))
			it.coord = ir.NewIndexVar(s.names.Fresh(v.Name() + t.Name))
			it.posArr = s.Property(tv, ir.PropPos, l, 0)
			it.crdArr = s.Property(tv, ir.PropCrd, l, 0)
			if temp && ws.Sparse {
				it.posArr = nil
				it.crdArr = ws.Crd
				it.count = ws.Count
			}
		}
		if parent != nil {
			parent.child = it
		}
		if err := checkRole(it); err != nil {
			return err
		}
		levels[l] = it
		s.iterators = append(s.iterators, it)
		parent = it
	}
	s.levels[acc] = levels
	return nil
}

func checkRole(it *Iterator) error {
	if it.output || it.temp {
		if it.Has(format.Insert) || it.Has(format.Append) {
			return nil
		}
		return it.require(format.Append, "write")
	}
	if it.Has(format.CoordIter) || it.Has(format.PosIter) {
		return nil
	}
	return it.require(format.PosIter, "iterate")
}

func containsVar(vars []*notation.IndexVar, v *notation.IndexVar) bool {
	for _, x := range vars {
		if x == v {
			return true
		}
	}
	return false
}

// For returns the iterator of acc's level that stores v, or nil when acc
// is not indexed by v.
func (s *Set) For(acc *notation.Access, v *notation.IndexVar) *Iterator {
	for _, it := range s.levels[acc] {
		if it.v == v {
			return it
		}
	}
	return nil
}

// Levels returns the level iterators of acc, outermost first.
func (s *Set) Levels(acc *notation.Access) []*Iterator { return s.levels[acc] }

// Dim returns the dimension iterator of v.
func (s *Set) Dim(v *notation.IndexVar) *Iterator { return s.dims[v] }

// Extent returns the extent of v.
func (s *Set) Extent(v *notation.IndexVar) ir.Expr {
	if it := s.dims[v]; it != nil {
		return it.dim
	}
	return nil
}

// TensorVar returns the loop IR variable of a tensor or workspace.
func (s *Set) TensorVar(t *notation.TensorVar) *ir.Var { return s.tensors[t] }

// Tensors returns the results and arguments in parameter order.
func (s *Set) Tensors() []*notation.TensorVar { return s.order }

// Iterators returns every iterator in creation order.
func (s *Set) Iterators() []*Iterator { return s.iterators }

// Workspace returns the storage of a temporary, or nil.
func (s *Set) Workspace(t *notation.TensorVar) *Workspace { return s.temps[t] }

// IsTemporary reports whether t is produced by a where statement.
func (s *Set) IsTemporary(t *notation.TensorVar) bool {
	_, ok := s.temps[t]
	return ok
}

// Property returns the storage property of a tensor variable. Properties
// are memoized so every use of B2_pos in a kernel is the same node.
func (s *Set) Property(t *ir.Var, kind ir.PropertyKind, level, dim int) *ir.Property {
	key := propKey{tensor: t, kind: kind, level: level, dim: dim}
	if p, ok := s.props[key]; ok {
		return p
	}
	p := &ir.Property{Tensor: t, Kind: kind, Level: level, Dim: dim}
	s.props[key] = p
	return p
}
