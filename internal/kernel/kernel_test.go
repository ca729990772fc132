package kernel

import (
	"strings"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/lower"
)

func compileString(t *testing.T, src, path string) (*Kernel, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	kv := v.LookupPath(cue.ParsePath(path))
	require.True(t, kv.Exists(), "path %s", path)
	return Compile(kv)
}

const spgemmSrc = `
	kernel: spgemm: {
		expr: "A(i,j) = B(i,k) * C(k,j)"
		tensor: {
			A: {shape: [4, 6], format: "dd"}
			B: {shape: [4, 3], format: "ds"}
			C: {shape: [3, 6], format: "ds"}
		}
		schedule: [
			{precompute: {
				expr: "B(i,k) * C(k,j)"
				at:   "i"
				index: ["j"]
				workspace: {name: "w", shape: [6], format: "d"}
			}},
			{parallelize: {index: "i", kind: "parallel_dynamic"}},
		]
		checks:          true
		serial_fallback: true
	}
`

func TestCompileKernelBasic(t *testing.T) {
	k, err := compileString(t, spgemmSrc, "kernel.spgemm")
	require.NoError(t, err)

	assert.Equal(t, "spgemm", k.Name)
	assert.Equal(t, "A(i,j) = B(i,k) * C(k,j)", k.Expr)
	require.Len(t, k.Tensors, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{k.Tensors[0].Name, k.Tensors[1].Name, k.Tensors[2].Name})
	assert.Equal(t, []int{4, 3}, k.Tensors[1].Shape)
	assert.Equal(t, "ds", k.Tensors[1].Format)
	assert.True(t, k.Checks)
	assert.True(t, k.SerialFallback)
	assert.False(t, k.Instrument)
	assert.Equal(t, "c", k.TargetName())

	require.Len(t, k.Schedule, 2)
	pre := k.Schedule[0]
	assert.Equal(t, OpPrecompute, pre.Op)
	assert.Equal(t, "i", pre.At)
	assert.Equal(t, []string{"j"}, pre.Indices)
	require.NotNil(t, pre.Workspace)
	assert.Equal(t, "w", pre.Workspace.Name)
	assert.Equal(t, []int{6}, pre.Workspace.Shape)

	par := k.Schedule[1]
	assert.Equal(t, OpParallelize, par.Op)
	assert.Equal(t, "i", par.Index)
	assert.Equal(t, "parallel_dynamic", par.Kind)

	assert.Empty(t, Validate(k))
}

func TestCompileKernelMissingExpr(t *testing.T) {
	_, err := compileString(t, `
		kernel: bad: {
			tensor: a: {shape: [3]}
		}
	`, "kernel.bad")
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "expr", compileErr.Field)
}

func TestCompileKernelMissingTensors(t *testing.T) {
	_, err := compileString(t, `kernel: bad: expr: "a(i) = b(i)"`, "kernel.bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one tensor is required")
}

func TestCompileKernelWrongType(t *testing.T) {
	_, err := compileString(t, `
		kernel: bad: {
			expr: 123
			tensor: a: {shape: [3]}
		}
	`, "kernel.bad")
	require.Error(t, err)
}

func TestCompileKernelNonIntegerShape(t *testing.T) {
	_, err := compileString(t, `
		kernel: bad: {
			expr: "a(i) = b(i)"
			tensor: a: {shape: ["three"]}
		}
	`, "kernel.bad")
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "tensor.a.shape", compileErr.Field)
}

func TestCompileKernelUnknownDirective(t *testing.T) {
	_, err := compileString(t, `
		kernel: bad: {
			expr: "a(i) = b(i)"
			tensor: {a: {shape: [3]}, b: {shape: [3]}}
			schedule: [{unroll: {index: "i"}}]
		}
	`, "kernel.bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown directive "unroll"`)
}

func TestCompileKernelTwoCommandsInOneDirective(t *testing.T) {
	_, err := compileString(t, `
		kernel: bad: {
			expr: "a(i) = b(i)"
			tensor: {a: {shape: [3]}, b: {shape: [3]}}
			schedule: [{reorder: ["i", "j"], parallelize: {index: "i"}}]
		}
	`, "kernel.bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one command")
}

func TestCompileKernelPrecomputeNeedsWorkspace(t *testing.T) {
	_, err := compileString(t, `
		kernel: bad: {
			expr: "a(i) = b(i)"
			tensor: {a: {shape: [3]}, b: {shape: [3]}}
			schedule: [{precompute: {expr: "b(i)", index: ["i"]}}]
		}
	`, "kernel.bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace is required")
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "expr", Message: "expr is required"}
	assert.Equal(t, "expr: expr is required", err.Error())
}

func TestValidateKernel(t *testing.T) {
	k := &Kernel{
		Name:   "bad",
		Target: "gpu",
		Tensors: []TensorDecl{
			{Name: "a", Type: "float64", Shape: []int{3}, Format: "s"},
			{Name: "a", Type: "quaternion", Shape: []int{3}},
			{Name: "b", Shape: []int{0, 2}, Format: "d"},
		},
		Schedule: []Directive{
			{Op: OpReorder, Indices: []string{"i"}},
			{Op: OpParallelize, Kind: "warp", Race: "maybe", Chunk: -1},
			{Op: OpPrecompute, Expr: "a(i)", Indices: []string{"i", "j"},
				Workspace: &TensorDecl{Name: "b", Shape: []int{3}}},
			{Op: "tile"},
		},
	}
	errs := Validate(k)

	codes := make(map[string]bool)
	for _, e := range errs {
		codes[e.Code] = true
	}
	for _, code := range []string{
		ErrExprEmpty, ErrUnknownTarget, ErrDuplicateName, ErrInvalidType, ErrInvalidShape,
		ErrInvalidFormat, ErrReorderArity, ErrMissingDirective, ErrInvalidLoopKind,
		ErrInvalidRace, ErrInvalidChunk, ErrWorkspaceOrder, ErrUnknownDirective,
	} {
		assert.True(t, codes[code], "missing %s in %v", code, errs)
	}
	assert.False(t, codes[ErrNoTensors])
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "expr", Message: "expr is required", Code: ErrExprEmpty}
	assert.Equal(t, "[E101] expr: expr is required", e.Error())
	e.Line = 4
	assert.Equal(t, "[E101] line 4: expr: expr is required", e.Error())
}

func TestBuildAndLower(t *testing.T) {
	k, err := compileString(t, spgemmSrc, "kernel.spgemm")
	require.NoError(t, err)

	stmt, err := k.Build()
	require.NoError(t, err)
	assert.Contains(t, stmt.String(), "where(")

	r, err := k.Lower(nil)
	require.NoError(t, err)
	assert.Equal(t, "spgemm", r.Function.Name)
	assert.Equal(t, []lower.StrategyKind{lower.StrategyDimension}, r.Strategies("i"))

	// The workspace keeps the row loop serial.
	var codes []string
	for _, d := range r.Diagnostics {
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, lower.WarnSerialFallback)

	out := ir.Print(r.Function)
	assert.NotContains(t, out, "#pragma")
	assert.Contains(t, out, "allocate @heap w_vals")
}

func TestLowerWithoutFallback(t *testing.T) {
	k, err := compileString(t, spgemmSrc, "kernel.spgemm")
	require.NoError(t, err)
	k.SerialFallback = false

	_, err = k.Lower(nil)
	require.Error(t, err)
	assert.True(t, lower.IsUnsupported(err))
}

func TestBuildReorder(t *testing.T) {
	k, err := compileString(t, `
		kernel: spmv: {
			expr: "y(i) = A(i,j) * x(j)"
			tensor: {
				y: {shape: [4]}
				A: {shape: [4, 5]}
				x: {shape: [5]}
			}
			schedule: [{reorder: ["i", "j"]}]
		}
	`, "kernel.spmv")
	require.NoError(t, err)

	stmt, err := k.Build()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stmt.String(), "forall(j"), stmt.String())
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		k    Kernel
		want string
	}{
		{
			name: "undeclared tensor",
			k: Kernel{Name: "k", Expr: "a(i) = b(i)", Tensors: []TensorDecl{
				{Name: "a", Shape: []int{3}},
			}},
			want: `undeclared tensor or operator "b"`,
		},
		{
			name: "unknown parallel index",
			k: Kernel{Name: "k", Expr: "a(i) = b(i)",
				Tensors: []TensorDecl{
					{Name: "a", Shape: []int{3}},
					{Name: "b", Shape: []int{3}},
				},
				Schedule: []Directive{{Op: OpParallelize, Index: "q"}},
			},
			want: "schedule[0] parallelize",
		},
		{
			name: "bad format",
			k: Kernel{Name: "k", Expr: "a(i) = b(i)", Tensors: []TensorDecl{
				{Name: "a", Shape: []int{3}, Format: "x"},
			}},
			want: "tensor a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.k.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOptionsUnknownTarget(t *testing.T) {
	k := &Kernel{Name: "k", Target: "gpu"}
	_, err := k.Options(nil)
	require.Error(t, err)

	k.Target = "dataflow"
	opts, err := k.Options(nil)
	require.NoError(t, err)
	assert.Len(t, opts, 5)
	assert.Equal(t, "dataflow", k.TargetName())
}
