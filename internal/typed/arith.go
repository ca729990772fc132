package typed

import (
	"errors"
	"fmt"
)

// ErrUndefinedKind is returned when arithmetic is requested in the Undefined
// kind.
var ErrUndefinedKind = errors.New("arithmetic on undefined kind")

// ErrDivideByZero is returned by integer division by zero.
var ErrDivideByZero = errors.New("integer division by zero")

// Ordering is the result of Compare.
type Ordering int

const (
	Less    Ordering = -1
	Equals  Ordering = 0
	Greater Ordering = 1
)

// Add returns a+b computed in kind k.
func Add(k Kind, a, b Value) (Value, error) {
	return arith(k, a, b, '+')
}

// Sub returns a-b computed in kind k.
func Sub(k Kind, a, b Value) (Value, error) {
	return arith(k, a, b, '-')
}

// Multiply returns a*b computed in kind k.
func Multiply(k Kind, a, b Value) (Value, error) {
	return arith(k, a, b, '*')
}

// Divide returns a/b computed in kind k. Integer division by zero is an
// error; float division follows IEEE semantics.
func Divide(k Kind, a, b Value) (Value, error) {
	return arith(k, a, b, '/')
}

// Negate returns -a in kind k.
func Negate(k Kind, a Value) (Value, error) {
	return arith(k, Zero(k), a, '-')
}

func arith(k Kind, a, b Value, op byte) (Value, error) {
	if k == Undefined {
		return Value{}, ErrUndefinedKind
	}
	x, y := Cast(k, a), Cast(k, b)
	out := Value{kind: k}
	switch {
	case k.IsBool():
		// bools behave as a one-bit semiring: + is or, * is and
		switch op {
		case '+', '-':
			out.u = x.u | y.u
		case '*', '/':
			out.u = x.u & y.u
		}
	case k.IsInt():
		switch op {
		case '+':
			out.i = x.i + y.i
		case '-':
			out.i = x.i - y.i
		case '*':
			out.i = x.i * y.i
		case '/':
			if y.i == 0 {
				return Value{}, ErrDivideByZero
			}
			out.i = x.i / y.i
		}
		out.i = wrapInt(k, out.i)
	case k.IsUInt():
		switch op {
		case '+':
			out.u = x.u + y.u
		case '-':
			out.u = x.u - y.u
		case '*':
			out.u = x.u * y.u
		case '/':
			if y.u == 0 {
				return Value{}, ErrDivideByZero
			}
			out.u = x.u / y.u
		}
		out.u = wrapUInt(k, out.u)
	case k.IsFloat():
		switch op {
		case '+':
			out.f = x.f + y.f
		case '-':
			out.f = x.f - y.f
		case '*':
			out.f = x.f * y.f
		case '/':
			out.f = x.f / y.f
		}
		if k == Float32 {
			out.f = float64(float32(out.f))
		}
	case k.IsComplex():
		switch op {
		case '+':
			out.c = x.c + y.c
		case '-':
			out.c = x.c - y.c
		case '*':
			out.c = x.c * y.c
		case '/':
			out.c = x.c / y.c
		}
		if k == Complex64 {
			out.c = complex128(complex64(out.c))
		}
	default:
		return Value{}, fmt.Errorf("unsupported kind %s", k)
	}
	return out, nil
}

// Compare orders a and b after casting both to kind k. Complex kinds have no
// total order and return an error.
func Compare(k Kind, a, b Value) (Ordering, error) {
	if k == Undefined {
		return Equals, ErrUndefinedKind
	}
	if k.IsComplex() {
		return Equals, fmt.Errorf("%s values are unordered", k)
	}
	x, y := Cast(k, a), Cast(k, b)
	switch {
	case k.IsInt():
		return order(x.i < y.i, x.i > y.i), nil
	case k.IsFloat():
		return order(x.f < y.f, x.f > y.f), nil
	default:
		return order(x.u < y.u, x.u > y.u), nil
	}
}

func order(less, greater bool) Ordering {
	switch {
	case less:
		return Less
	case greater:
		return Greater
	default:
		return Equals
	}
}

// MaxOf returns the larger of a and b in kind k.
func MaxOf(k Kind, a, b Value) (Value, error) {
	ord, err := Compare(k, a, b)
	if err != nil {
		return Value{}, err
	}
	if ord == Less {
		return Cast(k, b), nil
	}
	return Cast(k, a), nil
}

// MinOf returns the smaller of a and b in kind k.
func MinOf(k Kind, a, b Value) (Value, error) {
	ord, err := Compare(k, a, b)
	if err != nil {
		return Value{}, err
	}
	if ord == Greater {
		return Cast(k, b), nil
	}
	return Cast(k, a), nil
}
