package notation

import "fmt"

// Algebra is an iteration algebra: a set expression over the coordinate
// footprints of operand expressions.
//
// This is a sealed interface implemented by Region, Union, Intersect,
// Complement and Background. Trees are immutable.
type Algebra interface {
	algebraNode()
	String() string
}

// Region is the footprint of one expression. After ExprAlgebra expansion
// every Region holds an *Access.
type Region struct {
	Expr IndexExpr
}

// Union is the set of coordinates in L or R.
type Union struct {
	L, R Algebra
}

// Intersect is the set of coordinates in both L and R.
type Intersect struct {
	L, R Algebra
}

// Complement is the set of coordinates outside X.
type Complement struct {
	X Algebra
}

// Background is the set of all coordinates.
type Background struct{}

func (*Region) algebraNode()     {}
func (*Union) algebraNode()      {}
func (*Intersect) algebraNode()  {}
func (*Complement) algebraNode() {}
func (*Background) algebraNode() {}

func (r *Region) String() string     { return r.Expr.String() }
func (u *Union) String() string      { return fmt.Sprintf("union(%s, %s)", u.L, u.R) }
func (i *Intersect) String() string  { return fmt.Sprintf("intersect(%s, %s)", i.L, i.R) }
func (c *Complement) String() string { return fmt.Sprintf("complement(%s)", c.X) }
func (*Background) String() string   { return "background" }

// UnionAll folds algs left to right with Union. One operand is returned
// as is; none yields nil.
func UnionAll(algs ...Algebra) Algebra {
	if len(algs) == 0 {
		return nil
	}
	out := algs[0]
	for _, a := range algs[1:] {
		out = &Union{L: out, R: a}
	}
	return out
}

// IntersectAll folds algs left to right with Intersect.
func IntersectAll(algs ...Algebra) Algebra {
	if len(algs) == 0 {
		return nil
	}
	out := algs[0]
	for _, a := range algs[1:] {
		out = &Intersect{L: out, R: a}
	}
	return out
}

// DefaultAlgebra is the algebra of an operator that declares nothing about
// its zeros: the union of its operand regions together with that union's
// complement, which covers every coordinate.
func DefaultAlgebra(regions ...Algebra) Algebra {
	u := UnionAll(regions...)
	if u == nil {
		return &Background{}
	}
	return &Union{L: u, R: &Complement{X: u}}
}

// ExprAlgebra returns the algebra of an expression with every region
// expanded down to accesses: an access is its own region, a literal covers
// the background and a call contributes its operator's algebra.
func ExprAlgebra(e IndexExpr) Algebra {
	switch n := e.(type) {
	case *Access:
		return &Region{Expr: n}
	case *Literal:
		return &Background{}
	case *Call:
		return expandRegions(n.Op.Algebra(n.Args))
	default:
		return &Background{}
	}
}

func expandRegions(a Algebra) Algebra {
	switch n := a.(type) {
	case *Region:
		if _, ok := n.Expr.(*Access); ok {
			return n
		}
		return ExprAlgebra(n.Expr)
	case *Union:
		return &Union{L: expandRegions(n.L), R: expandRegions(n.R)}
	case *Intersect:
		return &Intersect{L: expandRegions(n.L), R: expandRegions(n.R)}
	case *Complement:
		return &Complement{X: expandRegions(n.X)}
	default:
		return a
	}
}

// CoversEmpty reports whether a contains the coordinates where every
// region is empty, so an operator with algebra a still produces a value
// when none of its operands is stored.
func CoversEmpty(a Algebra) bool {
	switch n := a.(type) {
	case *Background:
		return true
	case *Union:
		return CoversEmpty(n.L) || CoversEmpty(n.R)
	case *Intersect:
		return CoversEmpty(n.L) && CoversEmpty(n.R)
	case *Complement:
		return !CoversEmpty(n.X)
	default:
		return false
	}
}

// DefaultAlgebraCalls returns the calls in e whose operators fall back to
// the default full-space algebra.
func DefaultAlgebraCalls(e IndexExpr) []*Call {
	var out []*Call
	var walk func(IndexExpr)
	walk = func(e IndexExpr) {
		call, ok := e.(*Call)
		if !ok {
			return
		}
		if call.Op.UsesDefaultAlgebra() {
			out = append(out, call)
		}
		for _, a := range call.Args {
			walk(a)
		}
	}
	walk(e)
	return out
}

// AlgebraEqual reports whether two algebras have the same structure over
// the same accesses.
func AlgebraEqual(a, b Algebra) bool {
	switch x := a.(type) {
	case *Region:
		y, ok := b.(*Region)
		return ok && (x.Expr == y.Expr || x.Expr.String() == y.Expr.String())
	case *Union:
		y, ok := b.(*Union)
		return ok && AlgebraEqual(x.L, y.L) && AlgebraEqual(x.R, y.R)
	case *Intersect:
		y, ok := b.(*Intersect)
		return ok && AlgebraEqual(x.L, y.L) && AlgebraEqual(x.R, y.R)
	case *Complement:
		y, ok := b.(*Complement)
		return ok && AlgebraEqual(x.X, y.X)
	case *Background:
		_, ok := b.(*Background)
		return ok
	default:
		return a == nil && b == nil
	}
}

// Regions returns the accesses of the expanded algebra, left to right,
// without duplicates.
func Regions(a Algebra) []*Access {
	var out []*Access
	seen := make(map[*Access]bool)
	var walk func(Algebra)
	walk = func(a Algebra) {
		switch n := a.(type) {
		case *Region:
			if acc, ok := n.Expr.(*Access); ok && !seen[acc] {
				seen[acc] = true
				out = append(out, acc)
			}
		case *Union:
			walk(n.L)
			walk(n.R)
		case *Intersect:
			walk(n.L)
			walk(n.R)
		case *Complement:
			walk(n.X)
		}
	}
	walk(a)
	return out
}
