package lower

import (
	"fmt"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/iterator"
	"github.com/roach88/tensorc/internal/notation"
)

func (l *lowerer) assignment(a *notation.Assignment, sc *scope) (ir.Stmt, error) {
	val, err := l.expr(a.Rhs, sc)
	if err != nil || val == nil {
		return nil, err
	}
	if acc := sc.accum[a]; acc != nil {
		s := ir.Seq(&ir.Assign{Var: acc.v, Value: val, Accumulate: true})
		if acc.set != nil {
			s.Append(ir.Set(acc.set, ir.Bool(true)))
		}
		return s, nil
	}
	return l.store(a, val, a.Accumulate, sc)
}

// store writes val to a's left-hand side. Sparse workspaces insert by
// coordinate, compressed results append and everything else stores at the
// leaf position.
func (l *lowerer) store(a *notation.Assignment, val ir.Expr, accumulate bool, sc *scope) (ir.Stmt, error) {
	lhs := a.Lhs
	t := lhs.Tensor
	if ws := l.its.Workspace(t); ws != nil && ws.Sparse {
		return l.insert(ws, lhs, val, accumulate), nil
	}
	if out := l.outputs[t]; out != nil && out.levels != nil {
		if len(sc.parallel) > 0 {
			return nil, unsupported("parallel append", "%s is appended to inside a parallel loop", t.Name)
		}
		return l.appendValue(out, val, sc)
	}

	pos, err := l.leafPos(lhs, sc)
	if err != nil {
		return nil, err
	}
	st := &ir.Store{Array: l.vals(t), Index: pos, Value: val, Accumulate: accumulate}
	if f := sc.racing(lhs); f != nil {
		if st.Atomic, err = l.raceStore(f); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// raceStore reports whether a write that races across iterations of f must
// be atomic.
func (l *lowerer) raceStore(f *notation.Forall) (bool, error) {
	target := l.cfg.target
	switch l.reduction(f) {
	case reducePlain:
		return false, nil
	case reduceAtomic:
		if !target.NativeAtomics {
			return false, unsupported("atomic reduction", "target %s has no atomic stores", target.Name)
		}
		return true, nil
	default:
		// The reduction could not be privatized into a clause.
		if target.NativeAtomics {
			return true, nil
		}
		return false, unsupported("parallel reduction",
			"forall over %s reduces into a shared element that target %s cannot privatize", f.Var, target.Name)
	}
}

// insert writes into a sparse workspace, recording the coordinate the first
// time it is written.
func (l *lowerer) insert(ws *iterator.Workspace, lhs *notation.Access, val ir.Expr, accumulate bool) ir.Stmt {
	j := l.its.Dim(lhs.Indices[0]).Coord()
	first := &ir.If{
		Cond: ir.Not(ir.LoadAt(ws.Flags, j)),
		Then: ir.Seq(
			ir.StoreAt(ws.Flags, j, ir.Bool(true)),
			ir.StoreAt(ws.Crd, ws.Count, j),
			ir.Incr(ws.Count),
		),
	}
	return ir.Seq(first, &ir.Store{Array: ws.Vals, Index: j, Value: val, Accumulate: accumulate})
}

func (l *lowerer) appendValue(out *output, val ir.Expr, sc *scope) (ir.Stmt, error) {
	leaf := out.levels[len(out.levels)-1]
	app, err := l.appendCoord(out, leaf, sc)
	if err != nil {
		return nil, err
	}
	return ir.Seq(app, ir.StoreAt(out.vals, leaf.Pos(), val), ir.Incr(leaf.Pos())), nil
}

// appendCoord appends the current coordinate to a compressed result level,
// growing its arrays first. With checks on, coordinates must arrive in
// strictly increasing order within a segment.
func (l *lowerer) appendCoord(out *output, it *iterator.Iterator, sc *scope) (ir.Stmt, error) {
	coord := l.its.Dim(it.IndexVar()).Coord()
	s := ir.Seq(out.grow(it.Level()))
	if l.cfg.checks {
		var begin ir.Expr = ir.Int(0)
		if b := out.begin[it.Level()]; b != nil {
			begin = b
		}
		s.Append(&ir.Assert{
			Cond: ir.Or(
				ir.Eq(it.Pos(), begin),
				ir.Lt(it.CoordAtPos(ir.Sub(it.Pos(), ir.Int(1))), coord),
			),
			Message: fmt.Sprintf("%s appended out of order", it.Describe()),
		})
	}
	app, err := it.AppendCoord(it.Pos(), coord)
	if err != nil {
		return nil, &UnsupportedError{Combination: "append", Detail: err.Error()}
	}
	s.Append(app)
	return s, nil
}
