package lower

import (
	"fmt"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/notation"
)

// expr lowers e in the current case. A nil result means the expression is
// absent: every operand it depends on is missing from the case.
func (l *lowerer) expr(e notation.IndexExpr, sc *scope) (ir.Expr, error) {
	switch n := e.(type) {
	case *notation.Access:
		if sc.absent[n] {
			return nil, nil
		}
		return l.load(n, sc)
	case *notation.Literal:
		return ir.Lit(n.Value), nil
	case *notation.Call:
		return l.call(n, sc)
	default:
		return nil, fmt.Errorf("unknown expression type %T", e)
	}
}

func (l *lowerer) load(acc *notation.Access, sc *scope) (ir.Expr, error) {
	if ws := l.its.Workspace(acc.Tensor); ws != nil && ws.Sparse {
		return ir.LoadAt(ws.Vals, l.its.Dim(acc.Indices[0]).Coord()), nil
	}
	pos, err := l.leafPos(acc, sc)
	if err != nil {
		return nil, err
	}
	return ir.LoadAt(l.vals(acc.Tensor), pos), nil
}

// call specializes an operator to the arguments present in the case. A
// registered region lowering receives only the present arguments; the
// general lowering sees absent ones as zero.
func (l *lowerer) call(c *notation.Call, sc *scope) (ir.Expr, error) {
	args := make([]ir.Expr, len(c.Args))
	var present notation.RegionKey
	for i, a := range c.Args {
		v, err := l.expr(a, sc)
		if err != nil {
			return nil, err
		}
		if v != nil {
			args[i] = v
			present |= notation.Present(i)
		}
	}
	fn, override := c.Op.Lowering(present, len(args))
	if present == 0 && !override && !notation.CoversEmpty(c.Op.Algebra(c.Args)) {
		return nil, nil
	}
	if override {
		given := make([]ir.Expr, 0, present.Count())
		for _, a := range args {
			if a != nil {
				given = append(given, a)
			}
		}
		return fn(given), nil
	}
	for i, a := range args {
		if a == nil {
			args[i] = ir.Zero(notation.ExprType(c.Args[i]))
		}
	}
	return fn(args), nil
}

func (l *lowerer) vals(t *notation.TensorVar) *ir.Property {
	return l.its.Property(l.its.TensorVar(t), ir.PropVals, 0, 0)
}

// leafPos returns the value position of acc. Scalars live at position 0.
func (l *lowerer) leafPos(acc *notation.Access, sc *scope) (ir.Expr, error) {
	levels := l.its.Levels(acc)
	if len(levels) == 0 {
		return ir.Int(0), nil
	}
	if pos, ok := sc.pos[levels[len(levels)-1]]; ok {
		return pos, nil
	}
	return nil, unsupported("iteration order", "%s is used before all of its levels are positioned", acc)
}
