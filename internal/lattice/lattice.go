// Package lattice builds merge lattices from iteration algebras.
//
// A merge lattice for an index variable is an ordered list of points. Each
// point names the iterators that are present at a coordinate in one case of
// the co-iteration, most specific case first; omitted points mark cases
// that produce nothing but still shadow the less specific cases below them.
// The lowering engine emits one loop per point and, inside it, an if-else
// cascade over the point's sub-lattice.
package lattice

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/tensorc/internal/iterator"
	"github.com/roach88/tensorc/internal/notation"
)

// Point is one case of a merge lattice.
type Point struct {
	iterators []*iterator.Iterator
	omitted   bool
	sparse    bool
}

// Iterators returns every iterator present in the case, in creation order.
func (p Point) Iterators() []*iterator.Iterator { return p.iterators }

// Omitted reports whether coordinates in this case produce nothing.
func (p Point) Omitted() bool { return p.omitted }

// Mergers returns the iterators whose coordinates are compared against the
// merged coordinate: the ones that do not cover the whole dimension.
func (p Point) Mergers() []*iterator.Iterator {
	var out []*iterator.Iterator
	for _, it := range p.iterators {
		if !it.IsFull() {
			out = append(out, it)
		}
	}
	return out
}

// Rangers returns the iterators whose exhaustion ends the point's loop. A
// point driven by its sparse iterators ranges over those; otherwise a full
// iterator counts through the dimension.
func (p Point) Rangers() []*iterator.Iterator {
	if p.sparse {
		return p.Mergers()
	}
	for _, it := range p.iterators {
		if it.IsFull() {
			return []*iterator.Iterator{it}
		}
	}
	return nil
}

// Locators returns the full tensor levels of the point, whose positions are
// computed from the merged coordinate.
func (p Point) Locators() []*iterator.Iterator {
	var out []*iterator.Iterator
	for _, it := range p.iterators {
		if it.IsFull() && !it.IsDimension() {
			out = append(out, it)
		}
	}
	return out
}

// SparseDriven reports whether the point's loop ranges over its sparse
// iterators alone. Otherwise the loop counts through the whole dimension.
func (p Point) SparseDriven() bool { return p.sparse }

// Contains reports whether it is present in the case.
func (p Point) Contains(it *iterator.Iterator) bool {
	for _, x := range p.iterators {
		if x == it {
			return true
		}
	}
	return false
}

func (p Point) String() string {
	names := make([]string, len(p.iterators))
	for i, it := range p.iterators {
		names[i] = it.String()
	}
	s := "{" + strings.Join(names, ",") + "}"
	if p.omitted {
		s = "!" + s
	}
	return s
}

// Lattice is the merge lattice of one index variable.
type Lattice struct {
	v      *notation.IndexVar
	points []Point
}

// IndexVar returns the variable the lattice merges over.
func (l Lattice) IndexVar() *notation.IndexVar { return l.v }

// Points returns the points, most specific first.
func (l Lattice) Points() []Point { return l.points }

// Empty reports whether no case produces a value.
func (l Lattice) Empty() bool {
	for _, p := range l.points {
		if !p.omitted {
			return false
		}
	}
	return true
}

// SparseDriven reports whether every loop ranges over sparse iterators only.
func (l Lattice) SparseDriven() bool {
	return len(l.points) > 0 && l.points[0].sparse
}

// Iterators returns every iterator of every point, in creation order.
func (l Lattice) Iterators() []*iterator.Iterator {
	var out []*iterator.Iterator
	for _, p := range l.points {
		out = unionIters(out, p.iterators)
	}
	return out
}

// SubLattice returns the points whose cases can occur while p's loop runs:
// those whose sparse iterators are all in p, p itself first.
func (l Lattice) SubLattice(p Point) Lattice {
	out := Lattice{v: l.v}
	for _, q := range l.points {
		if subsetOf(sparseOf(q.iterators), p.iterators) {
			out.points = append(out.points, q)
		}
	}
	return out
}

// Live reports whether some case in p's sub-lattice produces a value.
func (l Lattice) Live(p Point) bool {
	return !l.SubLattice(p).Empty()
}

func (l Lattice) String() string {
	parts := make([]string, len(l.points))
	for i, p := range l.points {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Option configures Build.
type Option func(*builder)

// Absent marks accesses known to hold no value in the enclosing loops. Their
// regions are empty.
func Absent(fn func(*notation.Access) bool) Option {
	return func(b *builder) { b.absent = fn }
}

// Build constructs the merge lattice of alg over v. Regions of accesses
// that v does not index cover the whole dimension.
func Build(alg notation.Algebra, v *notation.IndexVar, its *iterator.Set, opts ...Option) (Lattice, error) {
	b := &builder{v: v, its: its, dim: its.Dim(v)}
	for _, opt := range opts {
		opt(b)
	}
	if b.dim == nil {
		return Lattice{}, fmt.Errorf("index variable %s has no dimension iterator", v)
	}
	points, err := b.build(alg)
	if err != nil {
		return Lattice{}, err
	}
	return Lattice{v: v, points: b.finalize(points)}, nil
}

// MustBuild is like Build but panics on error.
// Use only in tests.
func MustBuild(alg notation.Algebra, v *notation.IndexVar, its *iterator.Set, opts ...Option) Lattice {
	l, err := Build(alg, v, its, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

type builder struct {
	v      *notation.IndexVar
	its    *iterator.Set
	dim    *iterator.Iterator
	absent func(*notation.Access) bool
}

func (b *builder) build(alg notation.Algebra) ([]Point, error) {
	switch n := alg.(type) {
	case *notation.Region:
		acc, ok := n.Expr.(*notation.Access)
		if !ok {
			return b.build(notation.ExprAlgebra(n.Expr))
		}
		if b.absent != nil && b.absent(acc) {
			return nil, nil
		}
		if !acc.Has(b.v) {
			return []Point{{iterators: []*iterator.Iterator{b.dim}}}, nil
		}
		it := b.its.For(acc, b.v)
		if it == nil {
			return nil, fmt.Errorf("no iterator for %s over %s", acc, b.v)
		}
		return []Point{{iterators: []*iterator.Iterator{it}}}, nil
	case *notation.Background:
		return []Point{{iterators: []*iterator.Iterator{b.dim}}}, nil
	case *notation.Union:
		l, r, err := b.pair(n.L, n.R)
		if err != nil {
			return nil, err
		}
		return b.combine(l, r, true), nil
	case *notation.Intersect:
		l, r, err := b.pair(n.L, n.R)
		if err != nil {
			return nil, err
		}
		return b.combine(l, r, false), nil
	case *notation.Complement:
		x, err := b.build(n.X)
		if err != nil {
			return nil, err
		}
		return b.complement(x), nil
	case nil:
		return nil, fmt.Errorf("nil algebra")
	default:
		return nil, fmt.Errorf("unknown algebra node %T", alg)
	}
}

func (b *builder) pair(l, r notation.Algebra) ([]Point, []Point, error) {
	lp, err := b.build(l)
	if err != nil {
		return nil, nil, err
	}
	rp, err := b.build(r)
	if err != nil {
		return nil, nil, err
	}
	return lp, rp, nil
}

// combine forms the candidate cases of a union or intersection of two
// lattices. A case is kept when the combined region covers it.
func (b *builder) combine(l, r []Point, union bool) []Point {
	var cand [][]*iterator.Iterator
	for _, lp := range l {
		for _, rp := range r {
			cand = append(cand, unionIters(lp.iterators, rp.iterators))
		}
		if union {
			cand = append(cand, lp.iterators)
		}
	}
	if union {
		for _, rp := range r {
			cand = append(cand, rp.iterators)
		}
	}
	out := make([]Point, len(cand))
	for i, s := range cand {
		inL, inR := covers(l, s), covers(r, s)
		in := inL && inR
		if union {
			in = inL || inR
		}
		out[i] = Point{iterators: s, omitted: !in}
	}
	return normalize(out)
}

// complement covers the cases x omits or does not reach.
func (b *builder) complement(x []Point) []Point {
	full := []*iterator.Iterator{b.dim}
	var out []Point
	for _, p := range x {
		s := unionIters(p.iterators, full)
		out = append(out, Point{iterators: s, omitted: covers(x, s)})
	}
	out = append(out, Point{iterators: full, omitted: covers(x, full)})
	return normalize(out)
}

// covers reports whether the case where exactly the iterators in s (and
// every full iterator) are present lies in the region of points: the first
// point whose sparse iterators are all present decides.
func covers(points []Point, s []*iterator.Iterator) bool {
	for _, p := range points {
		if subsetOf(sparseOf(p.iterators), s) {
			return !p.omitted
		}
	}
	return false
}

// normalize orders points from most to fewest sparse iterators, merges
// points describing the same case and drops omitted points that shadow
// nothing.
func normalize(points []Point) []Point {
	sort.SliceStable(points, func(i, j int) bool {
		return len(sparseOf(points[i].iterators)) > len(sparseOf(points[j].iterators))
	})
	var out []Point
	index := make(map[string]int)
	for _, p := range points {
		key := caseKey(p.iterators)
		if i, ok := index[key]; ok {
			out[i].iterators = unionIters(out[i].iterators, p.iterators)
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}

	kept := out[:0]
	for i, p := range out {
		if p.omitted && !shadows(p, out[i+1:]) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func shadows(p Point, later []Point) bool {
	mine := sparseOf(p.iterators)
	for _, q := range later {
		if !q.omitted && subsetOf(sparseOf(q.iterators), mine) {
			return true
		}
	}
	return false
}

// finalize decides how each loop ranges. When some live case has only full
// iterators every loop must count through the dimension, so each point
// keeps a full iterator; the dimension iterator is dropped wherever a
// tensor level already covers the dimension. Otherwise loops range over
// sparse iterators and the dimension iterator plays no part.
func (b *builder) finalize(points []Point) []Point {
	countDriven := false
	for _, p := range points {
		if !p.omitted && len(sparseOf(p.iterators)) == 0 {
			countDriven = true
		}
	}
	out := make([]Point, len(points))
	for i, p := range points {
		its := append([]*iterator.Iterator(nil), p.iterators...)
		hasLevel, hasDim := false, false
		for _, it := range its {
			hasLevel = hasLevel || (it.IsFull() && !it.IsDimension())
			hasDim = hasDim || it.IsDimension()
		}
		switch {
		case !countDriven || hasLevel:
			its = withoutDimension(its)
		case !hasDim:
			its = unionIters(its, []*iterator.Iterator{b.dim})
		}
		out[i] = Point{iterators: its, omitted: p.omitted, sparse: !countDriven}
	}
	return out
}

func withoutDimension(its []*iterator.Iterator) []*iterator.Iterator {
	out := its[:0]
	for _, it := range its {
		if !it.IsDimension() {
			out = append(out, it)
		}
	}
	return out
}

func sparseOf(its []*iterator.Iterator) []*iterator.Iterator {
	var out []*iterator.Iterator
	for _, it := range its {
		if !it.IsFull() {
			out = append(out, it)
		}
	}
	return out
}

func subsetOf(a, b []*iterator.Iterator) bool {
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// unionIters merges two iterator lists, keeping creation order.
func unionIters(a, b []*iterator.Iterator) []*iterator.Iterator {
	out := append([]*iterator.Iterator(nil), a...)
	for _, it := range b {
		if !subsetOf([]*iterator.Iterator{it}, out) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func caseKey(its []*iterator.Iterator) string {
	var b strings.Builder
	for _, it := range sparseOf(its) {
		fmt.Fprintf(&b, "%d,", it.ID())
	}
	return b.String()
}
