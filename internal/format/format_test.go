package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"d", DenseVector},
		{"s", SparseVector},
		{"ds", CSR},
		{"ds:1,0", CSC},
		{"ss", DCSR},
		{"suq", COO},
		{"", Scalar},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := Parse(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(f), "got %s", f)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"x", "u", "ds:0,0", "ds:0", "q", "ds:a,b"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestFormat_String(t *testing.T) {
	assert.Equal(t, "ds", CSR.String())
	assert.Equal(t, "ds:1,0", CSC.String())
	assert.Equal(t, "suq", COO.String())
	assert.Equal(t, "dd", New(DenseMode, DenseMode).WithOrdering(0, 1).String())
}

func TestFormat_Levels(t *testing.T) {
	assert.Equal(t, 1, CSC.Dimension(0))
	assert.Equal(t, 0, CSC.Dimension(1))
	assert.Equal(t, 1, CSC.Level(0))
	assert.Equal(t, -1, CSC.Level(2))
	assert.True(t, DenseMatrix.IsDense())
	assert.False(t, CSR.IsDense())
}

func TestModeFormat_Capabilities(t *testing.T) {
	dense := DenseMode.Capabilities()
	assert.True(t, dense.Has(Locate|Insert|CoordIter))
	assert.False(t, dense.Has(Append))

	comp := CompressedMode.Capabilities()
	assert.True(t, comp.Has(PosIter|Append))
	assert.False(t, comp.Has(Locate))
	assert.Equal(t, "pos_iter|append", comp.String())
	assert.Equal(t, "none", Capability(0).String())
}
