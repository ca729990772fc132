package harness

import (
	"fmt"

	"github.com/roach88/tensorc/internal/interp"
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/notation"
	"github.com/roach88/tensorc/internal/tensor"
	"github.com/roach88/tensorc/internal/typed"
)

// Reference evaluates an assignment densely: every index variable ranges
// over its whole dimension and operators apply their all-present lowering
// to every coordinate, implicit zeros included. Inputs map tensor names to
// row-major dense contents.
//
// Operators whose lowering differs where operands are absent (Div on a
// zero denominator) have no dense reference.
func Reference(assign *notation.Assignment, inputs map[string][]float64) ([]float64, error) {
	lhs := assign.Lhs
	vars := append([]*notation.IndexVar(nil), lhs.Indices...)
	seen := make(map[*notation.IndexVar]bool, len(vars))
	for _, v := range vars {
		seen[v] = true
	}
	for _, v := range notation.ExprIndexVars(assign.Rhs) {
		if !seen[v] {
			seen[v] = true
			vars = append(vars, v)
		}
	}
	extents := notation.Extents(assign)
	for _, v := range vars {
		if _, ok := extents[v]; !ok {
			return nil, fmt.Errorf("reference: no extent for index %s", v)
		}
	}

	size := 1
	for _, d := range lhs.Tensor.Shape {
		size *= d
	}
	out := make([]float64, size)
	point := make(map[*notation.IndexVar]int, len(vars))

	var loop func(d int) error
	loop = func(d int) error {
		if d == len(vars) {
			x, err := evalDense(assign.Rhs, point, inputs)
			if err != nil {
				return err
			}
			out[tensor.Index(lhs.Tensor.Shape, coordsOf(lhs, point))] += x
			return nil
		}
		v := vars[d]
		for c := 0; c < extents[v]; c++ {
			point[v] = c
			if err := loop(d + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := loop(0); err != nil {
		return nil, err
	}
	return out, nil
}

func coordsOf(a *notation.Access, point map[*notation.IndexVar]int) []int {
	coords := make([]int, len(a.Indices))
	for i, v := range a.Indices {
		coords[i] = point[v]
	}
	return coords
}

func evalDense(e notation.IndexExpr, point map[*notation.IndexVar]int, inputs map[string][]float64) (float64, error) {
	switch n := e.(type) {
	case *notation.Access:
		data, ok := inputs[n.Tensor.Name]
		if !ok {
			return 0, fmt.Errorf("reference: no data for %s", n.Tensor.Name)
		}
		return data[tensor.Index(n.Tensor.Shape, coordsOf(n, point))], nil
	case *notation.Literal:
		return n.Value.Float64(), nil
	case *notation.Call:
		args := make([]ir.Expr, len(n.Args))
		for i, a := range n.Args {
			x, err := evalDense(a, point, inputs)
			if err != nil {
				return 0, err
			}
			args[i] = ir.Lit(typed.Float(typed.Float64, x))
		}
		fn, _ := n.Op.Lowering(notation.AllPresent(len(n.Args)), len(n.Args))
		res := fn(args)
		if res == nil {
			return 0, nil
		}
		v, err := interp.Eval(res)
		if err != nil {
			return 0, fmt.Errorf("reference: %s: %w", n, err)
		}
		return v.Float64(), nil
	default:
		return 0, fmt.Errorf("reference: unexpected expression %T", e)
	}
}
