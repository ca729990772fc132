// Package iterator builds the level iterators of a concrete index statement.
//
// Every access gets one iterator per storage level and every index variable
// gets a dimension iterator that ranges over its whole extent. Iterators
// know the loop IR names of their position and coordinate variables and
// emit the IR for the level operations their mode supports.
package iterator

import (
	"fmt"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/notation"
)

// Kind distinguishes level iterators from dimension iterators.
type Kind uint8

const (
	// Level iterates one storage level of an access.
	Level Kind = iota
	// Dimension ranges over the full extent of an index variable.
	Dimension
)

// Iterator is one level of an access, or the full range of an index
// variable.
type Iterator struct {
	id     int
	kind   Kind
	access *notation.Access
	level  int
	mode   format.ModeFormat
	v      *notation.IndexVar
	parent *Iterator
	child  *Iterator
	output bool
	temp   bool

	tensor *ir.Var
	coord  *ir.Var
	pos    *ir.Var
	end    *ir.Var
	seg    *ir.Var
	dim    ir.Expr

	posArr ir.Expr
	crdArr ir.Expr
	count  ir.Expr
}

// ID is the creation order of the iterator within its set.
func (it *Iterator) ID() int { return it.id }

// Kind returns whether the iterator is a level or a dimension iterator.
func (it *Iterator) Kind() Kind { return it.kind }

// IsDimension reports whether it ranges over an index variable's extent.
func (it *Iterator) IsDimension() bool { return it.kind == Dimension }

// Access returns the access a level iterator belongs to.
func (it *Iterator) Access() *notation.Access { return it.access }

// Tensor returns the tensor of a level iterator, or nil.
func (it *Iterator) Tensor() *notation.TensorVar {
	if it.access == nil {
		return nil
	}
	return it.access.Tensor
}

// Level returns the storage level.
func (it *Iterator) Level() int { return it.level }

// Mode returns the level's mode format.
func (it *Iterator) Mode() format.ModeFormat { return it.mode }

// IndexVar returns the variable the iterator ranges over.
func (it *Iterator) IndexVar() *notation.IndexVar { return it.v }

// Parent returns the iterator of the previous level, or nil at level 0.
func (it *Iterator) Parent() *Iterator { return it.parent }

// Child returns the iterator of the next level, or nil at the last level.
func (it *Iterator) Child() *Iterator { return it.child }

// IsLeaf reports whether it is the last level of its access.
func (it *Iterator) IsLeaf() bool { return it.kind == Level && it.child == nil }

// IsOutput reports whether it belongs to the left-hand side of an
// assignment to a result tensor.
func (it *Iterator) IsOutput() bool { return it.output }

// IsTemporary reports whether it belongs to a workspace access.
func (it *Iterator) IsTemporary() bool { return it.temp }

// IsFull reports whether the iterator covers every coordinate of its
// dimension.
func (it *Iterator) IsFull() bool {
	return it.kind == Dimension || it.mode.IsFull()
}

// IsUnique reports whether each coordinate appears at most once per
// parent position.
func (it *Iterator) IsUnique() bool { return it.kind == Dimension || it.mode.Unique }

// Capabilities returns the level operations the iterator supports.
func (it *Iterator) Capabilities() format.Capability {
	if it.kind == Dimension {
		return format.CoordIter | format.Locate
	}
	if it.count != nil {
		return format.PosIter | format.Insert
	}
	return it.mode.Capabilities()
}

// Has reports whether the iterator supports every capability in c.
func (it *Iterator) Has(c format.Capability) bool { return it.Capabilities().Has(c) }

// TensorVar returns the loop IR tensor variable of a level iterator.
func (it *Iterator) TensorVar() *ir.Var { return it.tensor }

// Coord is the variable holding the iterator's current coordinate. For a
// dimension iterator it is the loop variable of its index variable.
func (it *Iterator) Coord() *ir.Var { return it.coord }

// Pos is the position variable of a position-iterable level.
func (it *Iterator) Pos() *ir.Var { return it.pos }

// End is the variable holding the end of the current position segment.
func (it *Iterator) End() *ir.Var { return it.end }

// Seg is the end of the run of equal coordinates starting at Pos on a
// non-unique level.
func (it *Iterator) Seg() *ir.Var { return it.seg }

// Dim is the extent of the iterator's index variable.
func (it *Iterator) Dim() ir.Expr { return it.dim }

// PosArray returns the pos array of a compressed level.
func (it *Iterator) PosArray() ir.Expr { return it.posArr }

// CrdArray returns the crd array of a compressed or singleton level.
func (it *Iterator) CrdArray() ir.Expr { return it.crdArr }

func (it *Iterator) String() string {
	if it.kind == Dimension {
		return "dim(" + it.v.Name() + ")"
	}
	return it.access.Tensor.Name
}

// Describe renders the iterator with its level for diagnostics, e.g.
// "B(i,j) level 2 (compressed)".
func (it *Iterator) Describe() string {
	if it.kind == Dimension {
		return it.String()
	}
	return fmt.Sprintf("%s level %d (%s)", it.access, it.level+1, it.mode)
}

// CapabilityError reports a level operation the iterator's mode does not
// support.
type CapabilityError struct {
	Iterator   string
	Capability format.Capability
	Op         string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %s requires %s", e.Iterator, e.Op, e.Capability)
}

func (it *Iterator) require(c format.Capability, op string) error {
	if it.Has(c) {
		return nil
	}
	return &CapabilityError{Iterator: it.Describe(), Capability: c, Op: op}
}

// PosBounds returns the position segment [begin, end) of the level under
// parentPos.
func (it *Iterator) PosBounds(parentPos ir.Expr) (begin, end ir.Expr, err error) {
	if err := it.require(format.PosIter, "pos_bounds"); err != nil {
		return nil, nil, err
	}
	switch {
	case it.count != nil:
		return ir.Int(0), it.count, nil
	case it.mode.Kind == format.Singleton:
		return parentPos, ir.Add(parentPos, ir.Int(1)), nil
	default:
		return ir.LoadAt(it.posArr, parentPos), ir.LoadAt(it.posArr, ir.Add(parentPos, ir.Int(1))), nil
	}
}

// CoordBounds returns the coordinate range [0, dim) of a full iterator.
func (it *Iterator) CoordBounds() (begin, end ir.Expr) {
	return ir.Int(0), it.dim
}

// Locate returns the position of coord under parentPos and whether it is
// stored. Full levels store every coordinate. parentPos is nil at level 0.
func (it *Iterator) Locate(parentPos, coord ir.Expr) (pos, found ir.Expr, err error) {
	if err := it.require(format.Locate, "locate"); err != nil {
		return nil, nil, err
	}
	if it.kind == Dimension || parentPos == nil {
		return coord, ir.Bool(true), nil
	}
	return ir.Add(ir.Mul(parentPos, it.dim), coord), ir.Bool(true), nil
}

// CoordAtPos returns the coordinate stored at pos.
func (it *Iterator) CoordAtPos(pos ir.Expr) ir.Expr {
	return ir.LoadAt(it.crdArr, pos)
}

// AdvanceTo steps the iterator past coord when it sits on coord. Non-unique
// levels skip the whole run of equal coordinates.
func (it *Iterator) AdvanceTo(coord ir.Expr) ir.Stmt {
	next := ir.Expr(ir.Add(it.pos, ir.Int(1)))
	if !it.IsUnique() {
		next = it.seg
	}
	return ir.IfThen(ir.Eq(it.coord, coord), ir.Set(it.pos, next))
}

// CheckNotBehind asserts that the iterator has not fallen behind coord.
func (it *Iterator) CheckNotBehind(coord ir.Expr) ir.Stmt {
	return &ir.Assert{
		Cond:    ir.Gte(it.coord, coord),
		Message: fmt.Sprintf("%s fell behind %s", it, it.v),
	}
}

// ScanSegment emits the loop that finds the end of the run of equal
// coordinates starting at Pos on a non-unique level.
func (it *Iterator) ScanSegment() ir.Stmt {
	return ir.Seq(
		ir.Decl(it.seg, ir.Add(it.pos, ir.Int(1))),
		&ir.While{
			Cond: ir.And(ir.Lt(it.seg, it.end), ir.Eq(it.CoordAtPos(it.seg), it.coord)),
			Body: ir.Incr(it.seg),
		},
	)
}

// AppendCoord stores coord at pos of an appendable level.
func (it *Iterator) AppendCoord(pos, coord ir.Expr) (ir.Stmt, error) {
	if err := it.require(format.Append, "append_coord"); err != nil {
		return nil, err
	}
	return ir.StoreAt(it.crdArr, pos, coord), nil
}

// AppendEdges records that count positions were appended under parentPos.
// Counts become segment bounds once the level is finalized with a prefix
// sum over its pos array.
func (it *Iterator) AppendEdges(parentPos, count ir.Expr) (ir.Stmt, error) {
	if err := it.require(format.Append, "append_edges"); err != nil {
		return nil, err
	}
	return ir.StoreAt(it.posArr, ir.Add(parentPos, ir.Int(1)), count), nil
}

// InsertAt returns the position coord occupies under parentPos of an
// insertable level.
func (it *Iterator) InsertAt(parentPos, coord ir.Expr) (ir.Expr, error) {
	if err := it.require(format.Insert, "insert"); err != nil {
		return nil, err
	}
	if parentPos == nil {
		return coord, nil
	}
	return ir.Add(ir.Mul(parentPos, it.dim), coord), nil
}
