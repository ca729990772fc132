package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/typed"
)

// TestFolding tests literal folding in the expression constructors.
func TestFolding(t *testing.T) {
	x := NewIndexVar("x")

	assert.Same(t, x, Add(x, Int(0)))
	assert.Same(t, x, Add(Int(0), x))
	assert.Same(t, x, Mul(x, Int(1)))
	assert.True(t, IsZero(Mul(x, Int(0))))
	assert.Same(t, x, Sub(x, Int(0)))

	sum := Add(Int(2), Int(3))
	require.IsType(t, &Literal{}, sum)
	assert.Equal(t, int64(5), sum.(*Literal).Value.Int64())

	assert.True(t, IsTrue(Lt(Int(1), Int(2))))
	assert.True(t, IsFalse(Eq(Int(1), Int(2))))
	assert.Equal(t, int64(1), Min(Int(4), Int(1)).(*Literal).Value.Int64())

	mixed := Add(Lit(typed.Float(typed.Float64, 0.5)), Int(1))
	assert.Equal(t, typed.Float64, TypeOf(mixed))
	assert.Equal(t, 1.5, mixed.(*Literal).Value.Float64())
}

func TestAndOr(t *testing.T) {
	a := Lt(NewIndexVar("a"), NewIndexVar("b"))

	assert.True(t, IsTrue(And()))
	assert.Same(t, a, And(Bool(true), a))
	assert.True(t, IsFalse(And(a, Bool(false))))
	assert.True(t, IsFalse(Or()))
	assert.True(t, IsTrue(Or(a, Bool(true))))
	assert.Equal(t, "a < b && a < b", ExprString(And(a, a)))
}

func TestSeq_Splices(t *testing.T) {
	x := NewIndexVar("x")
	inner := Seq(Incr(x), nil, Seq())
	outer := Seq(Decl(x, Int(0)), inner, Incr(x))

	assert.Len(t, outer.Stmts, 3)
	assert.True(t, Seq(nil).Empty())
	assert.Same(t, Stmt(inner), IfThen(Bool(true), inner))
}

func TestTypeOf(t *testing.T) {
	B := NewTensor("B", typed.Float32)
	assert.Equal(t, typed.Float32, TypeOf(&Property{Tensor: B, Kind: PropVals}))
	assert.Equal(t, IndexType, TypeOf(&Property{Tensor: B, Kind: PropPos}))
	assert.Equal(t, typed.Bool, TypeOf(Lt(NewIndexVar("i"), Int(3))))
}
