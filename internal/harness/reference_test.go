package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/kernel"
)

func assignmentOf(t *testing.T, expr string, tensors ...kernel.TensorDecl) *kernel.Kernel {
	t.Helper()
	return &kernel.Kernel{Name: "ref", Expr: expr, Tensors: tensors}
}

func TestReference_MatVec(t *testing.T) {
	k := assignmentOf(t, "y(i) = A(i,j) * x(j)",
		kernel.TensorDecl{Name: "y", Shape: []int{2}},
		kernel.TensorDecl{Name: "A", Shape: []int{2, 3}},
		kernel.TensorDecl{Name: "x", Shape: []int{3}},
	)
	assign, err := k.Assignment()
	require.NoError(t, err)

	got, err := Reference(assign, map[string][]float64{
		"A": {1, 2, 3, 4, 5, 6},
		"x": {1, 0, -1},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, -2}, got)
}

func TestReference_Operators(t *testing.T) {
	tests := []struct {
		expr string
		want []float64
	}{
		{"a(i) = b(i) + c(i)", []float64{3, 1, 7}},
		{"a(i) = b(i) - c(i)", []float64{-1, 1, -1}},
		{"a(i) = -b(i)", []float64{-1, -1, -3}},
		{"a(i) = max(b(i), c(i))", []float64{2, 1, 4}},
		{"a(i) = min(b(i), c(i))", []float64{1, 0, 3}},
		{"a(i) = 2 * b(i)", []float64{2, 2, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			k := assignmentOf(t, tt.expr,
				kernel.TensorDecl{Name: "a", Shape: []int{3}},
				kernel.TensorDecl{Name: "b", Shape: []int{3}},
				kernel.TensorDecl{Name: "c", Shape: []int{3}},
			)
			assign, err := k.Assignment()
			require.NoError(t, err)
			got, err := Reference(assign, map[string][]float64{
				"b": {1, 1, 3},
				"c": {2, 0, 4},
			})
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, got, Tolerance)
		})
	}
}

func TestReference_Scalar(t *testing.T) {
	k := assignmentOf(t, "s = b(i) * c(i)",
		kernel.TensorDecl{Name: "s"},
		kernel.TensorDecl{Name: "b", Shape: []int{3}},
		kernel.TensorDecl{Name: "c", Shape: []int{3}},
	)
	assign, err := k.Assignment()
	require.NoError(t, err)
	got, err := Reference(assign, map[string][]float64{
		"b": {1, 2, 3},
		"c": {4, 5, 6},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{32}, got)
}

func TestReference_MissingInput(t *testing.T) {
	k := assignmentOf(t, "a(i) = b(i)",
		kernel.TensorDecl{Name: "a", Shape: []int{2}},
		kernel.TensorDecl{Name: "b", Shape: []int{2}},
	)
	assign, err := k.Assignment()
	require.NoError(t, err)
	_, err = Reference(assign, nil)
	assert.ErrorContains(t, err, "no data for b")
}
