package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/typed"
)

func f64(x float64) typed.Value { return typed.Float(typed.Float64, x) }

func entries() []Entry {
	return []Entry{
		{Coords: []int{0, 1}, Value: f64(1)},
		{Coords: []int{2, 0}, Value: f64(2)},
		{Coords: []int{2, 3}, Value: f64(3)},
		{Coords: []int{0, 1}, Value: f64(4)},
	}
}

func floats(vals []typed.Value) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v.Float64()
	}
	return out
}

// TestPack_CSR tests row-compressed packing with a repeated coordinate.
func TestPack_CSR(t *testing.T) {
	m, err := Pack("A", typed.Float64, []int{3, 4}, format.CSR, entries())
	require.NoError(t, err)

	assert.Nil(t, m.Pos[0])
	assert.Equal(t, []int64{0, 1, 1, 3}, m.Pos[1])
	assert.Equal(t, []int64{1, 0, 3}, m.Crd[1])
	assert.Equal(t, []float64{5, 2, 3}, floats(m.Vals))
}

// TestPack_CSC tests that the mode ordering decides the level order.
func TestPack_CSC(t *testing.T) {
	m, err := Pack("A", typed.Float64, []int{3, 4}, format.CSC, entries())
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1, 2, 2, 3}, m.Pos[1])
	assert.Equal(t, []int64{2, 0, 2}, m.Crd[1])
	assert.Equal(t, []float64{2, 5, 3}, floats(m.Vals))
}

// TestPack_COO tests that a non-unique level keeps repeated coordinates.
func TestPack_COO(t *testing.T) {
	m, err := Pack("A", typed.Float64, []int{3, 4}, format.COO, entries())
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 4}, m.Pos[0])
	assert.Equal(t, []int64{0, 0, 2, 2}, m.Crd[0])
	assert.Nil(t, m.Pos[1])
	assert.Equal(t, []int64{1, 1, 0, 3}, m.Crd[1])
	assert.Equal(t, []float64{1, 4, 2, 3}, floats(m.Vals))
}

// TestPack_Dense tests that dense storage holds every component.
func TestPack_Dense(t *testing.T) {
	m, err := Pack("A", typed.Float64, []int{3, 4}, format.DenseMatrix, entries())
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 5, 0, 0, 0, 0, 0, 0, 2, 0, 0, 3}, floats(m.Vals))
}

// TestPack_Errors tests malformed input.
func TestPack_Errors(t *testing.T) {
	_, err := Pack("A", typed.Float64, []int{3, 4}, format.SparseVector, entries())
	assert.ErrorContains(t, err, "1 levels for 2 dimensions")

	_, err = Pack("a", typed.Float64, []int{3}, format.SparseVector, []Entry{{Coords: []int{3}, Value: f64(1)}})
	assert.ErrorContains(t, err, "out of range")

	dq := format.New(format.DenseMode, format.SingletonMode)
	_, err = Pack("A", typed.Float64, []int{2, 2}, dq, []Entry{{Coords: []int{0, 1}, Value: f64(1)}})
	assert.ErrorContains(t, err, "exactly one coordinate")
}

// TestDense_RoundTrip tests that every format unpacks to the same dense
// components.
func TestDense_RoundTrip(t *testing.T) {
	want := []float64{0, 5, 0, 0, 0, 0, 0, 0, 2, 0, 0, 3}
	for _, f := range []format.Format{format.DenseMatrix, format.CSR, format.CSC, format.DCSR, format.COO} {
		t.Run(f.String(), func(t *testing.T) {
			m := MustPack("A", typed.Float64, []int{3, 4}, f, entries())
			dense, err := m.Dense()
			require.NoError(t, err)
			assert.Equal(t, want, floats(dense))
		})
	}
}

// TestNonZeros tests that explicit zeros of dense levels are dropped.
func TestNonZeros(t *testing.T) {
	m := MustPack("A", typed.Float64, []int{3, 4}, format.CSR, entries())
	nz, err := m.NonZeros()
	require.NoError(t, err)
	require.Len(t, nz, 3)
	assert.Equal(t, []int{0, 1}, nz[0].Coords)
	assert.Equal(t, []int{2, 3}, nz[2].Coords)
}

// TestIndex tests row-major offsets.
func TestIndex(t *testing.T) {
	shape := []int{3, 4, 5}
	for i := 0; i < 60; i++ {
		assert.Equal(t, i, Index(shape, Coords(shape, i)))
	}
	assert.Equal(t, 0, Index(nil, nil))
}

// TestScalar tests an order-zero tensor.
func TestScalar(t *testing.T) {
	s := MustPack("s", typed.Float64, nil, format.Scalar, []Entry{{Value: f64(2)}, {Value: f64(3)}})
	assert.Equal(t, []float64{5}, floats(s.Vals))
	assert.Equal(t, 1, s.Size())
}
