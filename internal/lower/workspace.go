package lower

import (
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/iterator"
	"github.com/roach88/tensorc/internal/notation"
	"github.com/roach88/tensorc/internal/typed"
)

// workspace is the storage of one temporary. It is allocated once, in the
// kernel prologue, however many times its where statement runs.
type workspace struct {
	*iterator.Workspace
	size ir.Expr
	loc  ir.MemoryLocation
}

// workspace returns the storage of t, allocating it on first use. lhs is an
// access that writes t; its index extents size the workspace.
func (l *lowerer) workspace(t *notation.TensorVar, lhs *notation.Access) *workspace {
	if ws, ok := l.spaces[t]; ok {
		return ws
	}
	var size ir.Expr = ir.Int(1)
	for _, v := range lhs.Indices {
		size = ir.Mul(size, l.its.Extent(v))
	}
	ws := &workspace{Workspace: l.its.Workspace(t), size: size, loc: l.cfg.target.Location(RoleWorkspace)}
	l.prologue.Append(&ir.Allocate{Array: ws.Vals, Size: size, Clear: true, Loc: ws.loc})
	if ws.Sparse {
		l.prologue.Append(
			&ir.Allocate{Array: ws.Flags, Size: size, Clear: true, Loc: ws.loc},
			&ir.Allocate{Array: ws.Crd, Size: size, Loc: ws.loc},
			ir.Decl(ws.Count, ir.Int(0)),
		)
	}
	l.spaces[t] = ws
	l.spaceOrder = append(l.spaceOrder, ws)
	l.log.Debug("workspace allocated", "tensor", t.Name, "sparse", ws.Sparse, "location", string(ws.loc))
	return ws
}

// where lowers the producer into fresh workspaces and then the consumer.
// Inside a loop, dense workspaces are cleared before the producer runs and
// sparse workspaces reset the entries they recorded once consumed.
func (l *lowerer) where(w *notation.Where, sc *scope) (ir.Stmt, error) {
	nested := make(map[*notation.TensorVar]bool)
	for _, t := range iterator.Temporaries(w.Producer) {
		nested[t] = true
	}
	var spaces []*workspace
	for _, a := range notation.Assignments(w.Producer) {
		t := a.Lhs.Tensor
		if nested[t] || !l.its.IsTemporary(t) || containsSpace(spaces, t) {
			continue
		}
		spaces = append(spaces, l.workspace(t, a.Lhs))
	}

	out := &ir.Block{}
	if sc.loops > 0 {
		for _, ws := range spaces {
			if !ws.Sparse {
				out.Append(l.clearDense(ws))
			}
		}
	}
	producer, err := l.lowerStmt(w.Producer, sc)
	if err != nil {
		return nil, err
	}
	out.Append(producer)
	for _, ws := range spaces {
		if ws.Sparse && needsSort(w.Consumer, ws.Tensor) {
			out.Append(&ir.Evaluate{Expr: &ir.Call{
				Func: "sort",
				Args: []ir.Expr{ws.Crd, ir.Int(0), ws.Count},
				Type: typed.Undefined,
			}})
		}
	}
	consumer, err := l.lowerStmt(w.Consumer, sc)
	if err != nil {
		return nil, err
	}
	out.Append(consumer)
	if sc.loops > 0 {
		for _, ws := range spaces {
			if ws.Sparse {
				out.Append(l.resetSparse(ws))
			}
		}
	}
	return out, nil
}

func containsSpace(spaces []*workspace, t *notation.TensorVar) bool {
	for _, ws := range spaces {
		if ws.Tensor == t {
			return true
		}
	}
	return false
}

// needsSort reports whether the consumer walks the coordinates of sparse
// workspace t in order. Only a consumer that reads t alone, through
// operators that skip missing entries, into a dense result may visit them
// in insertion order. Merging t with any other operand, dense ones
// included, or covering the complement of t counts through the dimension
// and expects ascending coordinates.
func needsSort(consumer notation.IndexStmt, t *notation.TensorVar) bool {
	for _, a := range notation.Assignments(consumer) {
		reads, merges := false, false
		for _, acc := range notation.Accesses(a.Rhs) {
			if acc.Tensor == t {
				reads = true
			} else {
				merges = true
			}
		}
		if !reads {
			continue
		}
		if merges || !a.Lhs.Tensor.Format.IsDense() || len(notation.DefaultAlgebraCalls(a.Rhs)) > 0 {
			return true
		}
	}
	return false
}

func (l *lowerer) clearDense(ws *workspace) ir.Stmt {
	k := ir.NewIndexVar(l.names.Fresh("k" + ws.Var.Name))
	return ir.ForRange(k, ir.Int(0), ws.size, ir.StoreAt(ws.Vals, k, ir.Zero(ws.Tensor.Type)))
}

func (l *lowerer) resetSparse(ws *workspace) ir.Stmt {
	k := ir.NewIndexVar(l.names.Fresh("k" + ws.Var.Name))
	j := ir.LoadAt(ws.Crd, k)
	return ir.Seq(
		ir.ForRange(k, ir.Int(0), ws.Count, ir.Seq(
			ir.StoreAt(ws.Flags, j, ir.Bool(false)),
			ir.StoreAt(ws.Vals, j, ir.Zero(ws.Tensor.Type)),
		)),
		ir.Set(ws.Count, ir.Int(0)),
	)
}

func (l *lowerer) freeWorkspaces() {
	for _, ws := range l.spaceOrder {
		l.epilogue.Append(&ir.Free{Array: ws.Vals})
		if ws.Sparse {
			l.epilogue.Append(&ir.Free{Array: ws.Flags}, &ir.Free{Array: ws.Crd})
		}
	}
}
