package typed

import (
	"fmt"
	"math"
	"math/cmplx"
	"strconv"
)

// Value is a scalar tagged with its Kind. The zero Value is Undefined.
//
// Only the field matching the kind category is meaningful: signed integers
// live in i, unsigned integers and bools in u, floats in f and complex values
// in c.
type Value struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	c    complex128
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// Int returns a signed integer value of kind k, wrapped to k's width.
func Int(k Kind, x int64) Value { return Cast(k, Value{kind: Int64, i: x}) }

// UInt returns an unsigned integer value of kind k.
func UInt(k Kind, x uint64) Value { return Cast(k, Value{kind: UInt64, u: x}) }

// Float returns a floating point value of kind k.
func Float(k Kind, x float64) Value { return Cast(k, Value{kind: Float64, f: x}) }

// Complex returns a complex value of kind k.
func Complex(k Kind, x complex128) Value { return Cast(k, Value{kind: Complex128, c: x}) }

// BoolValue returns a Bool value.
func BoolValue(b bool) Value {
	if b {
		return Value{kind: Bool, u: 1}
	}
	return Value{kind: Bool}
}

// Zero returns the additive identity of kind k.
func Zero(k Kind) Value { return Value{kind: k} }

// One returns the multiplicative identity of kind k.
func One(k Kind) Value { return Int(k, 1) }

// IsZero reports whether v equals the zero of its kind.
func (v Value) IsZero() bool {
	switch {
	case v.kind.IsInt():
		return v.i == 0
	case v.kind.IsUInt(), v.kind.IsBool():
		return v.u == 0
	case v.kind.IsFloat():
		return v.f == 0
	case v.kind.IsComplex():
		return v.c == 0
	default:
		return true
	}
}

// IsOne reports whether v equals the one of its kind.
func (v Value) IsOne() bool {
	if v.kind == Undefined {
		return false
	}
	return v == One(v.kind)
}

// Float64 converts v to a float64, dropping any imaginary part.
func (v Value) Float64() float64 {
	switch {
	case v.kind.IsInt():
		return float64(v.i)
	case v.kind.IsUInt(), v.kind.IsBool():
		return float64(v.u)
	case v.kind.IsFloat():
		return v.f
	case v.kind.IsComplex():
		return real(v.c)
	default:
		return 0
	}
}

// Int64 converts v to an int64, truncating floats toward zero.
func (v Value) Int64() int64 {
	switch {
	case v.kind.IsInt():
		return v.i
	case v.kind.IsUInt(), v.kind.IsBool():
		return int64(v.u)
	case v.kind.IsFloat():
		return int64(v.f)
	case v.kind.IsComplex():
		return int64(real(v.c))
	default:
		return 0
	}
}

// Complex128 converts v to a complex128.
func (v Value) Complex128() complex128 {
	if v.kind.IsComplex() {
		return v.c
	}
	return complex(v.Float64(), 0)
}

// Bool converts v to a bool (non-zero is true).
func (v Value) Bool() bool { return !v.IsZero() }

// AsIndex returns v as a non-negative array index. Complex and undefined
// values are not indices.
func (v Value) AsIndex() (int, error) {
	if v.kind.IsComplex() || v.kind == Undefined {
		return 0, fmt.Errorf("%s value cannot be used as an index", v.kind)
	}
	x := v.Int64()
	if x < 0 {
		return 0, fmt.Errorf("negative index %d", x)
	}
	return int(x), nil
}

// String formats v without its kind.
func (v Value) String() string {
	switch {
	case v.kind.IsBool():
		return strconv.FormatBool(v.u != 0)
	case v.kind.IsInt():
		return strconv.FormatInt(v.i, 10)
	case v.kind.IsUInt():
		return strconv.FormatUint(v.u, 10)
	case v.kind == Float32:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case v.kind == Float64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case v.kind.IsComplex():
		return strconv.FormatComplex(v.c, 'g', -1, v.kind.Bits())
	default:
		return "undefined"
	}
}

// Cast converts v to kind k. Integers wrap to k's width, floats truncate
// toward zero when cast to integers and complex values lose their imaginary
// part outside the complex kinds.
func Cast(k Kind, v Value) Value {
	if v.kind == k {
		return v
	}
	out := Value{kind: k}
	switch {
	case k.IsBool():
		if !v.IsZero() {
			out.u = 1
		}
	case k.IsInt():
		var x int64
		switch {
		case v.kind.IsFloat():
			x = int64(v.f)
		case v.kind.IsComplex():
			x = int64(real(v.c))
		case v.kind.IsUInt(), v.kind.IsBool():
			x = int64(v.u)
		default:
			x = v.i
		}
		out.i = wrapInt(k, x)
	case k.IsUInt():
		var x uint64
		switch {
		case v.kind.IsFloat():
			x = uint64(v.f)
		case v.kind.IsComplex():
			x = uint64(real(v.c))
		case v.kind.IsInt():
			x = uint64(v.i)
		default:
			x = v.u
		}
		out.u = wrapUInt(k, x)
	case k.IsFloat():
		out.f = v.Float64()
		if k == Float32 {
			out.f = float64(float32(out.f))
		}
	case k.IsComplex():
		out.c = v.Complex128()
		if k == Complex64 {
			out.c = complex128(complex64(out.c))
		}
	}
	return out
}

func wrapInt(k Kind, x int64) int64 {
	switch k {
	case Int8:
		return int64(int8(x))
	case Int16:
		return int64(int16(x))
	case Int32:
		return int64(int32(x))
	default:
		return x
	}
}

func wrapUInt(k Kind, x uint64) uint64 {
	switch k {
	case UInt8:
		return uint64(uint8(x))
	case UInt16:
		return uint64(uint16(x))
	case UInt32:
		return uint64(uint32(x))
	default:
		return x
	}
}

// Equal reports whether a and b hold the same number once promoted to a
// common kind.
func Equal(a, b Value) bool {
	k := Max(a.kind, b.kind)
	ca, cb := Cast(k, a), Cast(k, b)
	if k.IsComplex() {
		return ca.c == cb.c || (cmplx.IsNaN(ca.c) && cmplx.IsNaN(cb.c))
	}
	if k.IsFloat() && math.IsNaN(ca.f) && math.IsNaN(cb.f) {
		return true
	}
	return ca == cb
}
