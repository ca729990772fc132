package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/typed"
)

func sampleKernel(scale float64) *Function {
	a := NewTensor("a", typed.Float64)
	b := NewTensor("b", typed.Float64)
	i := NewIndexVar("i")
	dim := &Property{Tensor: b, Kind: PropDimension}
	bVals := &Property{Tensor: b, Kind: PropVals}
	aVals := &Property{Tensor: a, Kind: PropVals}
	body := StoreAt(aVals, i, Mul(LoadAt(bVals, i), Lit(typed.Float(typed.Float64, scale))))
	return &Function{
		Name:    "scale",
		Outputs: []*Var{a},
		Inputs:  []*Var{b},
		Body:    Seq(ForRange(i, Int(0), dim, body)),
	}
}

func TestKernelID_Deterministic(t *testing.T) {
	id1 := MustKernelID(sampleKernel(2))
	id2 := MustKernelID(sampleKernel(2))

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestKernelID_ChangesWithFloatConstant(t *testing.T) {
	assert.NotEqual(t, MustKernelID(sampleKernel(2)), MustKernelID(sampleKernel(2.5)))
}

func TestKernelID_Nil(t *testing.T) {
	_, err := KernelID(nil)
	require.Error(t, err)
}

func TestRequestID(t *testing.T) {
	opts := map[string]any{"checks": true, "parallel": "static"}
	id1 := MustRequestID("a(i) = b(i)", "c", opts)
	id2 := MustRequestID("a(i) = b(i)", "c", map[string]any{"parallel": "static", "checks": true})
	id3 := MustRequestID("a(i) = b(i)", "dataflow", opts)

	assert.Equal(t, id1, id2, "key order must not matter")
	assert.NotEqual(t, id1, id3)

	_, err := RequestID("x", "c", map[string]any{"f": 1.5})
	require.Error(t, err)
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte(`{"op":"block"}`)
	assert.NotEqual(t, hashWithDomain(DomainKernel, data), hashWithDomain(DomainRequest, data))
	assert.NotEqual(t, hashWithDomain("foo", []byte("bar")), hashWithDomain("foob", []byte("ar")))
}
