package lower

import (
	"strconv"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/iterator"
	"github.com/roach88/tensorc/internal/notation"
)

// initialCapacity is the number of entries first allocated for each
// compressed result level. Arrays double when full.
const initialCapacity = 16

// output is a result tensor being assembled. Levels, capacity and begin are
// nil for all-dense results.
type output struct {
	tensor *notation.TensorVar
	vals   *ir.Property
	loc    ir.MemoryLocation
	dims   []ir.Expr

	levels   []*iterator.Iterator
	capacity []*ir.Var
	// begin holds, per compressed level below the root, the variable that
	// remembers where the current segment started.
	begin []*ir.Var
}

func (l *lowerer) allocateOutputs() {
	for _, a := range notation.Assignments(l.stmt) {
		t := a.Lhs.Tensor
		if l.its.IsTemporary(t) || l.outputs[t] != nil {
			continue
		}
		tv := l.its.TensorVar(t)
		out := &output{
			tensor: t,
			vals:   l.vals(t),
			loc:    l.cfg.target.Location(RoleOutput),
		}
		for d := 0; d < t.Order(); d++ {
			out.dims = append(out.dims, l.its.Property(tv, ir.PropDimension, 0, d))
		}
		l.outputs[t] = out

		if t.Format.IsDense() {
			l.prologue.Append(&ir.Allocate{Array: out.vals, Size: out.denseSize(t.Order()), Clear: true, Loc: out.loc})
			continue
		}
		out.levels = l.its.Levels(a.Lhs)
		out.capacity = make([]*ir.Var, len(out.levels))
		out.begin = make([]*ir.Var, len(out.levels))
		for lvl, it := range out.levels {
			if it.IsFull() {
				continue
			}
			out.capacity[lvl] = ir.NewIndexVar(l.names.Fresh(it.TensorVar().Name + strconv.Itoa(lvl+1) + "_capacity"))
			if lvl > 0 {
				out.begin[lvl] = ir.NewIndexVar(l.names.Fresh(it.Pos().Name + "_begin"))
			}
			l.prologue.Append(
				&ir.Allocate{Array: it.PosArray(), Size: ir.Add(out.parentSize(lvl), ir.Int(1)), Clear: true, Loc: out.loc},
				ir.Decl(out.capacity[lvl], ir.Int(initialCapacity)),
				&ir.Allocate{Array: it.CrdArray(), Size: out.capacity[lvl], Loc: out.loc},
				ir.Decl(it.Pos(), ir.Int(0)),
			)
			if it.IsLeaf() {
				l.prologue.Append(&ir.Allocate{Array: out.vals, Size: out.capacity[lvl], Clear: true, Loc: out.loc})
			}
		}
	}
}

// denseSize is the number of coordinates in the first n levels of a result
// whose levels are all dense.
func (o *output) denseSize(n int) ir.Expr {
	var size ir.Expr = ir.Int(1)
	for lvl := 0; lvl < n; lvl++ {
		size = ir.Mul(size, o.dims[o.tensor.Format.Dimension(lvl)])
	}
	return size
}

// parentSize is the number of segments of a compressed level: one per
// position of its parent.
func (o *output) parentSize(lvl int) ir.Expr {
	if lvl == 0 {
		return ir.Int(1)
	}
	if o.levels[lvl-1].IsFull() {
		return o.denseSize(lvl)
	}
	return o.capacity[lvl-1]
}

// grow doubles the arrays of a compressed level when its next position is
// past the capacity.
func (o *output) grow(lvl int) ir.Stmt {
	it := o.levels[lvl]
	capacity := o.capacity[lvl]
	then := ir.Seq(
		ir.Set(capacity, ir.Mul(capacity, ir.Int(2))),
		&ir.Allocate{Array: it.CrdArray(), Size: capacity, Realloc: true, Loc: o.loc},
	)
	if it.IsLeaf() {
		then.Append(&ir.Allocate{Array: o.vals, Size: capacity, Realloc: true, Clear: true, Loc: o.loc})
	} else if child := it.Child(); child != nil && !child.IsFull() {
		then.Append(&ir.Allocate{Array: child.PosArray(), Size: ir.Add(capacity, ir.Int(1)), Realloc: true, Clear: true, Loc: o.loc})
	}
	return &ir.If{Cond: ir.Gte(it.Pos(), capacity), Then: then}
}

// wrapAppends closes the segments a case body appended to. For every result
// level over f.Var whose child is compressed, the child's entry count is
// recorded under this level's position; a compressed level also appends its
// own coordinate, but only when the segment is non-empty.
func (l *lowerer) wrapAppends(f *notation.Forall, body ir.Stmt, sc *scope) (ir.Stmt, error) {
	for _, a := range notation.Assignments(f.Body) {
		out := l.outputs[a.Lhs.Tensor]
		if out == nil || out.levels == nil {
			continue
		}
		it := l.its.For(a.Lhs, f.Var)
		if it == nil {
			continue
		}
		child := it.Child()
		if child == nil || child.IsFull() {
			continue
		}
		begin := out.begin[child.Level()]
		count := ir.Sub(child.Pos(), begin)

		if it.IsFull() {
			edges, err := child.AppendEdges(sc.pos[it], count)
			if err != nil {
				return nil, &UnsupportedError{Combination: "append", Detail: err.Error()}
			}
			body = ir.Seq(ir.Decl(begin, child.Pos()), body, edges)
			continue
		}

		app, err := l.appendCoord(out, it, sc)
		if err != nil {
			return nil, err
		}
		edges, err := child.AppendEdges(it.Pos(), count)
		if err != nil {
			return nil, &UnsupportedError{Combination: "append", Detail: err.Error()}
		}
		body = ir.Seq(
			ir.Decl(begin, child.Pos()),
			body,
			&ir.If{Cond: ir.Gt(child.Pos(), begin), Then: ir.Seq(app, edges, ir.Incr(it.Pos()))},
		)
	}
	return body, nil
}

// finalizeOutputs turns recorded segment sizes into position arrays.
func (l *lowerer) finalizeOutputs() {
	for _, t := range l.its.Tensors() {
		out := l.outputs[t]
		if out == nil || out.levels == nil {
			continue
		}
		for lvl, it := range out.levels {
			if it.IsFull() {
				continue
			}
			if lvl == 0 {
				l.epilogue.Append(ir.StoreAt(it.PosArray(), ir.Int(1), it.Pos()))
				continue
			}
			var segments ir.Expr = it.Parent().Pos()
			if it.Parent().IsFull() {
				segments = out.denseSize(lvl)
			}
			k := ir.NewIndexVar(l.names.Fresh("k" + it.TensorVar().Name + strconv.Itoa(lvl+1)))
			l.epilogue.Append(ir.ForRange(k, ir.Int(0), segments, &ir.Store{
				Array:      it.PosArray(),
				Index:      ir.Add(k, ir.Int(1)),
				Value:      ir.LoadAt(it.PosArray(), k),
				Accumulate: true,
			}))
		}
	}
}
