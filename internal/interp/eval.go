package interp

import (
	"fmt"
	"sort"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/typed"
)

type builtin func(m *machine, args []ir.Expr) (typed.Value, error)

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"sort": sortBuiltin,
	}
}

func (m *machine) eval(e ir.Expr) (typed.Value, error) {
	switch n := e.(type) {
	case *ir.Var:
		v, ok := m.scalars[n]
		if !ok {
			return typed.Value{}, runtimeError(ErrCodeUndefined, "variable %s read before declaration", n.Name)
		}
		return v, nil
	case *ir.Literal:
		return n.Value, nil
	case *ir.Binary:
		return m.binary(n)
	case *ir.Unary:
		a, err := m.eval(n.A)
		if err != nil {
			return typed.Value{}, err
		}
		if n.Op == ir.OpNot {
			return typed.BoolValue(!a.Bool()), nil
		}
		v, err := typed.Negate(a.Kind(), a)
		if err != nil {
			return typed.Value{}, runtimeError(ErrCodeArithmetic, "-%s: %v", a, err)
		}
		return v, nil
	case *ir.Load:
		arr, err := m.arrayRef(n.Array, false)
		if err != nil {
			return typed.Value{}, err
		}
		i, err := m.index(arr, n.Index)
		if err != nil {
			return typed.Value{}, err
		}
		return arr.data[i], nil
	case *ir.Property:
		if n.Kind != ir.PropDimension {
			return typed.Value{}, runtimeError(ErrCodeUndefined, "array %s used as a scalar", ir.PropertyName(n))
		}
		s, ok := m.tensors[n.Tensor]
		if !ok || s.t == nil || n.Dim >= len(s.t.Shape) {
			return typed.Value{}, runtimeError(ErrCodeUndefined, "%s has no bound tensor", ir.PropertyName(n))
		}
		return typed.Int(ir.IndexType, int64(s.t.Shape[n.Dim])), nil
	case *ir.Call:
		fn, ok := builtins[n.Func]
		if !ok {
			return typed.Value{}, runtimeError(ErrCodeUnknownCall, "unknown builtin %s", n.Func)
		}
		return fn(m, n.Args)
	case *ir.Cast:
		a, err := m.eval(n.A)
		if err != nil {
			return typed.Value{}, err
		}
		return typed.Cast(n.Type, a), nil
	default:
		return typed.Value{}, fmt.Errorf("unknown expression %T", e)
	}
}

func (m *machine) evalInt(e ir.Expr) (int64, error) {
	v, err := m.eval(e)
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

func (m *machine) binary(n *ir.Binary) (typed.Value, error) {
	a, err := m.eval(n.A)
	if err != nil {
		return typed.Value{}, err
	}
	switch n.Op {
	case ir.OpAnd:
		if !a.Bool() {
			return typed.BoolValue(false), nil
		}
		b, err := m.eval(n.B)
		return typed.BoolValue(err == nil && b.Bool()), err
	case ir.OpOr:
		if a.Bool() {
			return typed.BoolValue(true), nil
		}
		b, err := m.eval(n.B)
		return typed.BoolValue(err == nil && b.Bool()), err
	}
	b, err := m.eval(n.B)
	if err != nil {
		return typed.Value{}, err
	}
	k := typed.Max(a.Kind(), b.Kind())

	var v typed.Value
	switch n.Op {
	case ir.OpAdd:
		v, err = typed.Add(k, a, b)
	case ir.OpSub:
		v, err = typed.Sub(k, a, b)
	case ir.OpMul:
		v, err = typed.Multiply(k, a, b)
	case ir.OpDiv:
		v, err = typed.Divide(k, a, b)
	case ir.OpRem:
		if b.Int64() == 0 {
			return typed.Value{}, runtimeError(ErrCodeArithmetic, "%s %% 0", a)
		}
		v = typed.Int(k, a.Int64()%b.Int64())
	case ir.OpMin:
		v, err = typed.MinOf(k, a, b)
	case ir.OpMax:
		v, err = typed.MaxOf(k, a, b)
	default:
		var ord typed.Ordering
		if ord, err = typed.Compare(k, a, b); err == nil {
			v = typed.BoolValue(holds(n.Op, ord))
		}
	}
	if err != nil {
		return typed.Value{}, runtimeError(ErrCodeArithmetic, "%s %s %s: %v", a, n.Op, b, err)
	}
	return v, nil
}

func holds(op ir.BinaryOp, ord typed.Ordering) bool {
	switch op {
	case ir.OpEq:
		return ord == typed.Equals
	case ir.OpNeq:
		return ord != typed.Equals
	case ir.OpLt:
		return ord == typed.Less
	case ir.OpLte:
		return ord != typed.Greater
	case ir.OpGt:
		return ord == typed.Greater
	default:
		return ord != typed.Less
	}
}

// sortBuiltin sorts array[lo:hi] ascending: sort(array, lo, hi).
func sortBuiltin(m *machine, args []ir.Expr) (typed.Value, error) {
	if len(args) != 3 {
		return typed.Value{}, runtimeError(ErrCodeUnknownCall, "sort takes 3 arguments, got %d", len(args))
	}
	arr, err := m.arrayRef(args[0], false)
	if err != nil {
		return typed.Value{}, err
	}
	lo, err := m.evalInt(args[1])
	if err != nil {
		return typed.Value{}, err
	}
	hi, err := m.evalInt(args[2])
	if err != nil {
		return typed.Value{}, err
	}
	if lo < 0 || hi < lo || hi > int64(len(arr.data)) {
		return typed.Value{}, runtimeError(ErrCodeOutOfBounds, "sort(%s, %d, %d) outside [0, %d)", arr.name, lo, hi, len(arr.data))
	}
	part := arr.data[lo:hi]
	sort.SliceStable(part, func(i, j int) bool {
		ord, _ := typed.Compare(arr.kind, part[i], part[j])
		return ord == typed.Less
	})
	return typed.Value{}, nil
}
