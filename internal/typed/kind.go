package typed

import (
	"fmt"
	"strings"
)

// Kind is the component type tag of a tensor or scalar value.
type Kind uint8

const (
	Undefined Kind = iota
	Bool
	UInt8
	UInt16
	UInt32
	UInt64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Complex64
	Complex128
)

var kindNames = map[Kind]string{
	Undefined:  "undefined",
	Bool:       "bool",
	UInt8:      "uint8",
	UInt16:     "uint16",
	UInt32:     "uint32",
	UInt64:     "uint64",
	Int8:       "int8",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	Float32:    "float32",
	Float64:    "float64",
	Complex64:  "complex64",
	Complex128: "complex128",
}

// String returns the lower-case Go-style name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses a kind name such as "float64". The empty string is
// float64, the default component type of a tensor.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Float64, nil
	}
	for k, name := range kindNames {
		if name == s && k != Undefined {
			return k, nil
		}
	}
	return Undefined, fmt.Errorf("unknown component kind %q", s)
}

// IsBool reports whether k is Bool.
func (k Kind) IsBool() bool { return k == Bool }

// IsUInt reports whether k is an unsigned integer kind.
func (k Kind) IsUInt() bool { return k >= UInt8 && k <= UInt64 }

// IsInt reports whether k is a signed integer kind.
func (k Kind) IsInt() bool { return k >= Int8 && k <= Int64 }

// IsFloat reports whether k is a floating point kind.
func (k Kind) IsFloat() bool { return k == Float32 || k == Float64 }

// IsComplex reports whether k is a complex kind.
func (k Kind) IsComplex() bool { return k == Complex64 || k == Complex128 }

// Bits returns the storage width of the kind in bits.
func (k Kind) Bits() int {
	switch k {
	case Bool, UInt8, Int8:
		return 8
	case UInt16, Int16:
		return 16
	case UInt32, Int32, Float32:
		return 32
	case UInt64, Int64, Float64, Complex64:
		return 64
	case Complex128:
		return 128
	default:
		return 0
	}
}

// Max returns the kind both a and b promote to: complex beats float beats
// integer beats bool, and within a category the wider kind wins. Mixing a
// signed and an unsigned integer promotes to the signed kind of the larger
// width.
func Max(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a == Undefined {
		return b
	}
	if b == Undefined {
		return a
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra > rb {
			return widen(a, b)
		}
		return widen(b, a)
	}
	if a.Bits() >= b.Bits() {
		return a
	}
	return b
}

func rank(k Kind) int {
	switch {
	case k.IsBool():
		return 0
	case k.IsUInt():
		return 1
	case k.IsInt():
		return 2
	case k.IsFloat():
		return 3
	case k.IsComplex():
		return 4
	default:
		return -1
	}
}

// widen returns hi, widened so it can hold every value of lo.
func widen(hi, lo Kind) Kind {
	switch {
	case hi.IsInt() && lo.IsUInt() && lo.Bits() >= hi.Bits():
		return signedOfWidth(min(lo.Bits()*2, 64))
	case hi.IsFloat() && lo.Bits() > 32 && hi == Float32:
		return Float64
	case hi.IsComplex() && lo.Bits() > 32 && hi == Complex64:
		return Complex128
	}
	return hi
}

func signedOfWidth(bits int) Kind {
	switch bits {
	case 8:
		return Int8
	case 16:
		return Int16
	case 32:
		return Int32
	default:
		return Int64
	}
}
