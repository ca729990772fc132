package lower

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/notation"
	"github.com/roach88/tensorc/internal/typed"
)

func vec(name string, n int, f format.Format) *notation.TensorVar {
	return notation.NewTensor(name, typed.Float64, []int{n}, f)
}

func mat(name string, m, n int, f format.Format) *notation.TensorVar {
	return notation.NewTensor(name, typed.Float64, []int{m, n}, f)
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func lowerSrc(t *testing.T, name, src string, tensors []*notation.TensorVar, opts ...Option) *Result {
	t.Helper()
	assign, err := notation.Parse(src, tensors...)
	require.NoError(t, err)
	r, err := Lower(assign, name, append([]Option{quiet()}, opts...)...)
	require.NoError(t, err)
	return r
}

func assertGolden(t *testing.T, name string, r *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(ir.Print(r.Function)))
}

func decisions(r *Result) []string {
	out := make([]string, len(r.Decisions))
	for i, d := range r.Decisions {
		out[i] = d.String()
	}
	return out
}

// TestLower_DenseCopy tests that all-dense operands count through the
// dimension without building a lattice.
func TestLower_DenseCopy(t *testing.T) {
	a := vec("a", 10, format.DenseVector)
	b := vec("b", 10, format.DenseVector)
	r := lowerSrc(t, "copy", "a(i) = b(i)", []*notation.TensorVar{a, b})

	assert.Equal(t, []string{"i: dimension"}, decisions(r))
	assert.Nil(t, r.Decisions[0].Lattice)
	assert.Empty(t, r.Diagnostics)
	assertGolden(t, "scenario_dimension", r)
}

// TestLower_UnionWithDense tests addition of a sparse and a dense vector.
func TestLower_UnionWithDense(t *testing.T) {
	a := vec("a", 5, format.DenseVector)
	b := vec("b", 5, format.SparseVector)
	c := vec("c", 5, format.DenseVector)
	r := lowerSrc(t, "add", "a(i) = b(i) + c(i)", []*notation.TensorVar{a, b, c})

	assert.Equal(t, []string{"i: lattice [{b,c}, {c}]"}, decisions(r))
	assert.Equal(t, []StrategyKind{StrategyLattice}, r.Strategies("i"))
	assertGolden(t, "scenario_union", r)
}

// TestLower_IntersectSparse tests multiplication of two sparse vectors: one
// merge loop, one case, no fallback branch.
func TestLower_IntersectSparse(t *testing.T) {
	a := vec("a", 5, format.DenseVector)
	b := vec("b", 5, format.SparseVector)
	c := vec("c", 5, format.SparseVector)
	r := lowerSrc(t, "mul", "a(i) = b(i) * c(i)", []*notation.TensorVar{a, b, c})

	assert.Equal(t, []string{"i: lattice [{b,c}]"}, decisions(r))
	out := ir.Print(r.Function)
	assert.Contains(t, out, "while (pb1 < pb1_end && pc1 < pc1_end) {")
	assert.Contains(t, out, "int64 i = min(ib, ic);")
	assert.Contains(t, out, "if (ib == i && ic == i) {")
	assert.Contains(t, out, "a_vals[i] = b_vals[pb1] * c_vals[pc1];")
	assert.NotContains(t, out, "else")
	assert.Equal(t, 1, strings.Count(out, "while"))
}

// TestLower_Position tests that one unique sparse operand drives the loop
// over its positions and dense operands are located.
func TestLower_Position(t *testing.T) {
	a := vec("a", 5, format.DenseVector)
	b := vec("b", 5, format.SparseVector)
	c := vec("c", 5, format.DenseVector)
	r := lowerSrc(t, "scale", "a(i) = b(i) * c(i)", []*notation.TensorVar{a, b, c})

	assert.Equal(t, []StrategyKind{StrategyPosition}, r.Strategies("i"))
	out := ir.Print(r.Function)
	assert.Contains(t, out, "for (int64 pb1 = b1_pos[0]; pb1 < b1_pos[1]; pb1++) {")
	assert.Contains(t, out, "int64 i = b1_crd[pb1];")
	assert.Contains(t, out, "a_vals[i] = b_vals[pb1] * c_vals[i];")
}

// TestLower_Workspace tests a dense workspace produced inside a loop: it is
// allocated once and cleared every iteration.
func TestLower_Workspace(t *testing.T) {
	A := mat("A", 4, 6, format.DenseMatrix)
	B := mat("B", 4, 3, format.CSR)
	C := mat("C", 3, 6, format.CSR)
	w := vec("w", 6, format.DenseVector)

	env := notation.NewEnv(A, B, C)
	assign, err := env.Parse("A(i,j) = B(i,k) * C(k,j)")
	require.NoError(t, err)
	stmt, err := notation.Precompute(notation.MustConcretize(assign), env.Index("i"), assign.Rhs, w, env.Index("j"))
	require.NoError(t, err)

	r, err := Lower(stmt, "spgemm", quiet())
	require.NoError(t, err)

	assert.Equal(t, []string{"i: dimension", "k: position [{B,C}]", "j: position [{C}]", "j: dimension"}, decisions(r))
	out := ir.Print(r.Function)
	assert.Equal(t, 1, strings.Count(out, "allocate @heap w_vals"))
	assert.NotContains(t, out, "reallocate")
	assert.Less(t, strings.Index(out, "for (int64 i"), strings.Index(out, "w_vals[kw] = 0.0;"))
	assertGolden(t, "scenario_workspace", r)
}

// TestLower_SparseWorkspace tests the insertion protocol of a sparse
// workspace and its reset after consumption.
func TestLower_SparseWorkspace(t *testing.T) {
	A := mat("A", 4, 6, format.CSR)
	B := mat("B", 4, 3, format.CSR)
	C := mat("C", 3, 6, format.CSR)
	w := vec("w", 6, format.SparseVector)

	env := notation.NewEnv(A, B, C)
	assign, err := env.Parse("A(i,j) = B(i,k) * C(k,j)")
	require.NoError(t, err)
	stmt, err := notation.Precompute(notation.MustConcretize(assign), env.Index("i"), assign.Rhs, w, env.Index("j"))
	require.NoError(t, err)

	r, err := Lower(stmt, "spgemm", quiet())
	require.NoError(t, err)

	out := ir.Print(r.Function)
	assert.Contains(t, out, "allocate @heap w_set[C2_dimension] zeroed;")
	assert.Contains(t, out, "int64 w_count = 0;")
	assert.Contains(t, out, "if (!w_set[j]) {")
	assert.Contains(t, out, "w_crd[w_count] = j;")
	assert.Contains(t, out, "sort(w_crd, 0, w_count);")
	assert.Contains(t, out, "w_set[w_crd[kw]] = false;")
	assert.Contains(t, out, "w_count = 0;")
	assert.Contains(t, out, "A2_pos[i + 1] = pA2 - pA2_begin;")
	assert.Contains(t, out, "free(w_crd);")
}

// TestLower_SparseWorkspaceSort tests when the coordinates of a sparse
// workspace are sorted before the consumer reads them.
func TestLower_SparseWorkspaceSort(t *testing.T) {
	tests := []struct {
		name string
		src  string
		out  format.Format
		sort bool
	}{
		{"alone into dense", "A(i,j) = B(i,k) * C(k,j)", format.DenseMatrix, false},
		{"alone into compressed", "A(i,j) = B(i,k) * C(k,j)", format.CSR, true},
		{"merged with dense", "A(i,j) = B(i,k) * C(k,j) + D(i,j)", format.DenseMatrix, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			A := mat("A", 4, 6, tt.out)
			B := mat("B", 4, 3, format.CSR)
			C := mat("C", 3, 6, format.CSR)
			D := mat("D", 4, 6, format.DenseMatrix)
			w := vec("w", 6, format.SparseVector)

			env := notation.NewEnv(A, B, C, D)
			assign, err := env.Parse(tt.src)
			require.NoError(t, err)
			product := assign.Rhs
			if call := assign.Rhs.(*notation.Call); call.Op == notation.Add {
				product = call.Args[0]
			}
			stmt, err := notation.Precompute(notation.MustConcretize(assign), env.Index("i"), product, w, env.Index("j"))
			require.NoError(t, err)

			r, err := Lower(stmt, "spgemm", quiet())
			require.NoError(t, err)
			out := ir.Print(r.Function)
			if tt.sort {
				assert.Contains(t, out, "sort(w_crd, 0, w_count);")
			} else {
				assert.NotContains(t, out, "sort(w_crd")
			}
		})
	}
}

// TestLower_SparseOutput tests assembling a compressed result.
func TestLower_SparseOutput(t *testing.T) {
	a := vec("a", 5, format.SparseVector)
	b := vec("b", 5, format.SparseVector)
	c := vec("c", 5, format.SparseVector)
	r := lowerSrc(t, "mul", "a(i) = b(i) * c(i)", []*notation.TensorVar{a, b, c}, WithChecks(true))

	out := ir.Print(r.Function)
	for _, line := range []string{
		"allocate @heap a1_pos[2] zeroed;",
		"int64 a1_capacity = 16;",
		"allocate @heap a1_crd[a1_capacity];",
		"int64 pa1 = 0;",
		"allocate @heap a_vals[a1_capacity] zeroed;",
		"if (pa1 >= a1_capacity) {",
		"a1_capacity = a1_capacity * 2;",
		"reallocate @heap a_vals[a1_capacity] zeroed;",
		"a1_crd[pa1] = i;",
		"a_vals[pa1] = b_vals[pb1] * c_vals[pc1];",
		"pa1 += 1;",
		"a1_pos[1] = pa1;",
		`assert(pa1 == 0 || a1_crd[pa1 - 1] < i, "a(i) level 1 (compressed) appended out of order");`,
	} {
		assert.Contains(t, out, line)
	}
}

// TestLower_CSRSpMV tests hoisting a reduction into a register.
func TestLower_CSRSpMV(t *testing.T) {
	y := vec("y", 4, format.DenseVector)
	A := mat("A", 4, 5, format.CSR)
	x := vec("x", 5, format.DenseVector)
	r := lowerSrc(t, "spmv", "y(i) = A(i,j) * x(j)", []*notation.TensorVar{y, A, x})

	assert.Equal(t, []string{"i: dimension", "j: position [{A,x}]"}, decisions(r))
	out := ir.Print(r.Function)
	assert.Contains(t, out, "@register float64 ty = 0.0;")
	assert.Contains(t, out, "ty += A_vals[pA2] * x_vals[j];")
	assert.Contains(t, out, "y_vals[i] += ty;")
}

func spmv(t *testing.T) (notation.IndexStmt, *notation.Env) {
	t.Helper()
	y := vec("y", 4, format.DenseVector)
	A := mat("A", 4, 5, format.CSR)
	x := vec("x", 5, format.DenseVector)
	env := notation.NewEnv(y, A, x)
	assign, err := env.Parse("y(i) = A(i,j) * x(j)")
	require.NoError(t, err)
	return notation.MustConcretize(assign), env
}

// TestLower_Parallel tests race resolution for parallel loops.
func TestLower_Parallel(t *testing.T) {
	t.Run("disjoint rows", func(t *testing.T) {
		stmt, env := spmv(t)
		stmt, err := notation.Parallelize(stmt, env.Index("i"), ir.ParallelDynamic, 0, notation.NoRaces)
		require.NoError(t, err)
		r, err := Lower(stmt, "spmv", quiet())
		require.NoError(t, err)
		out := ir.Print(r.Function)
		assert.Contains(t, out, "#pragma parallel_dynamic\n")
		assert.Contains(t, out, "y_vals[i] += ty;")
		assert.Contains(t, out, "@thread_local float64 ty = 0.0;")
	})

	t.Run("reduction clause", func(t *testing.T) {
		stmt, env := spmv(t)
		stmt, err := notation.Parallelize(stmt, env.Index("j"), ir.ParallelStatic, 0, notation.Temporary)
		require.NoError(t, err)
		r, err := Lower(stmt, "spmv", quiet())
		require.NoError(t, err)
		out := ir.Print(r.Function)
		assert.Contains(t, out, "#pragma parallel_static reduction(+:ty)")
		assert.NotContains(t, out, "atomic")
	})

	t.Run("atomics on a target that has them", func(t *testing.T) {
		stmt, env := spmv(t)
		stmt, err := notation.Parallelize(stmt, env.Index("j"), ir.ParallelStatic, 0, notation.NoRaces)
		require.NoError(t, err)
		r, err := Lower(stmt, "spmv", quiet())
		require.NoError(t, err)
		assert.Contains(t, ir.Print(r.Function), "atomic y_vals[i] += A_vals[pA2] * x_vals[j];")
	})

	t.Run("clause on a target without atomics", func(t *testing.T) {
		stmt, env := spmv(t)
		stmt, err := notation.Parallelize(stmt, env.Index("j"), ir.ParallelStatic, 0, notation.NoRaces)
		require.NoError(t, err)
		r, err := Lower(stmt, "spmv", quiet(), WithTarget(TargetDataflow))
		require.NoError(t, err)
		out := ir.Print(r.Function)
		assert.Contains(t, out, "reduction(+:ty)")
		assert.NotContains(t, out, "atomic")
	})

	t.Run("explicit atomics without hardware support", func(t *testing.T) {
		stmt, env := spmv(t)
		stmt, err := notation.Parallelize(stmt, env.Index("j"), ir.ParallelStatic, 0, notation.Atomics)
		require.NoError(t, err)
		_, err = Lower(stmt, "spmv", quiet(), WithTarget(TargetDataflow))
		require.Error(t, err)
		assert.True(t, IsUnsupported(err))
	})
}

// TestLower_ParallelAppend tests that appending to a compressed result
// from a parallel loop is rejected unless serial fallback is enabled.
func TestLower_ParallelAppend(t *testing.T) {
	a := vec("a", 5, format.SparseVector)
	b := vec("b", 5, format.SparseVector)
	c := vec("c", 5, format.DenseVector)
	env := notation.NewEnv(a, b, c)
	assign, err := env.Parse("a(i) = b(i) * c(i)")
	require.NoError(t, err)
	stmt, err := notation.Parallelize(notation.MustConcretize(assign), env.Index("i"), ir.ParallelStatic, 0, notation.NoRaces)
	require.NoError(t, err)

	_, err = Lower(stmt, "mul", quiet())
	require.Error(t, err)
	var ue *UnsupportedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "parallel position loop", ue.Combination)
	assert.Contains(t, err.Error(), "[E300]")

	r, err := Lower(stmt, "mul", quiet(), WithSerialFallback(true))
	require.NoError(t, err)
	require.Len(t, r.Diagnostics, 1)
	assert.Equal(t, WarnSerialFallback, r.Diagnostics[0].Code)
	assert.Equal(t, ir.Serial, r.Decisions[0].Kind)
	assert.NotContains(t, ir.Print(r.Function), "#pragma")
}

// TestLower_Diagnostics tests non-fatal warnings.
func TestLower_Diagnostics(t *testing.T) {
	t.Run("default algebra", func(t *testing.T) {
		a := vec("a", 5, format.DenseVector)
		b := vec("b", 5, format.SparseVector)
		c := vec("c", 5, format.SparseVector)
		r := lowerSrc(t, "max", "a(i) = max(b(i), c(i))", []*notation.TensorVar{a, b, c})
		require.Len(t, r.Diagnostics, 1)
		assert.Equal(t, WarnDefaultAlgebra, r.Diagnostics[0].Code)
		assert.Equal(t, LevelWarning, r.Diagnostics[0].Level)
		assert.Contains(t, r.Diagnostics[0].Message, "max")
	})

	t.Run("no vector loads", func(t *testing.T) {
		stmt, env := spmv(t)
		stmt, err := notation.Parallelize(stmt, env.Index("i"), ir.Vectorized, 0, notation.NoRaces)
		require.NoError(t, err)
		r, err := Lower(stmt, "spmv", quiet(), WithTarget(TargetDataflow))
		require.NoError(t, err)
		require.Len(t, r.Diagnostics, 1)
		assert.Equal(t, WarnNoVectorLoads, r.Diagnostics[0].Code)
		assert.NotContains(t, ir.Print(r.Function), "#pragma")

		r, err = Lower(stmt, "spmv", quiet())
		require.NoError(t, err)
		assert.Empty(t, r.Diagnostics)
		assert.Contains(t, ir.Print(r.Function), "#pragma vectorized")
	})
}

// TestLower_StageBoundaries tests that sequenced statements are separated
// by yields on staged targets only.
func TestLower_StageBoundaries(t *testing.T) {
	a := vec("a", 5, format.DenseVector)
	b := vec("b", 5, format.DenseVector)
	c := vec("c", 5, format.DenseVector)
	i := notation.NewIndexVar("i")
	stmt := &notation.Sequence{Stmts: []notation.IndexStmt{
		&notation.Forall{Var: i, Body: &notation.Assignment{Lhs: a.At(i), Rhs: b.At(i)}},
		&notation.Forall{Var: i, Body: &notation.Assignment{Lhs: c.At(i), Rhs: a.At(i)}},
	}}

	r, err := Lower(stmt, "staged", quiet(), WithTarget(TargetDataflow))
	require.NoError(t, err)
	out := ir.Print(r.Function)
	assert.Contains(t, out, `yield "sequence.1";`)
	assert.Contains(t, out, "allocate @heap a_vals")

	r, err = Lower(stmt, "staged", quiet())
	require.NoError(t, err)
	assert.NotContains(t, ir.Print(r.Function), "yield")
}

// TestLower_Instrumentation tests merge point probes.
func TestLower_Instrumentation(t *testing.T) {
	a := vec("a", 5, format.DenseVector)
	b := vec("b", 5, format.SparseVector)
	c := vec("c", 5, format.DenseVector)
	r := lowerSrc(t, "add", "a(i) = b(i) + c(i)", []*notation.TensorVar{a, b, c}, WithInstrumentation(true))

	out := ir.Print(r.Function)
	assert.Contains(t, out, `probe("i:{b,c}", i);`)
	assert.Equal(t, 2, strings.Count(out, `probe("i:{c}", i);`))
}

// TestLower_SchemaErrors tests that malformed statements are rejected
// before lowering.
func TestLower_SchemaErrors(t *testing.T) {
	_, err := Lower(nil, "k", quiet())
	require.Error(t, err)
	assert.True(t, notation.IsSchemaError(err))
	assert.Contains(t, err.Error(), notation.ErrNilNode)

	a := vec("a", 5, format.DenseVector)
	b := vec("b", 5, format.DenseVector)
	i, j := notation.NewIndexVar("i"), notation.NewIndexVar("j")
	stmt := &notation.Forall{Var: i, Body: &notation.Assignment{Lhs: a.At(i), Rhs: b.At(j)}}
	_, err = Lower(stmt, "k", quiet())
	require.Error(t, err)
	var errs notation.SchemaErrors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, notation.ErrUndeclaredIndexVar, errs[0].Code)
}

// TestLower_UnsupportedOutputs tests result formats that cannot be
// assembled.
func TestLower_UnsupportedOutputs(t *testing.T) {
	b := vec("b", 5, format.DenseVector)
	A := mat("A", 4, 5, format.CSR)

	tests := []struct {
		name   string
		out    *notation.TensorVar
		src    string
		inputs []*notation.TensorVar
		want   string
	}{
		{"coordinate list output", mat("C", 4, 5, format.COO), "C(i,j) = A(i,j)", []*notation.TensorVar{A}, "non-unique output"},
		{"reduction outside append", vec("s", 5, format.SparseVector), "s(j) = A(i,j)", []*notation.TensorVar{A}, "reduction outside sparse output loop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assign, err := notation.Parse(tt.src, append([]*notation.TensorVar{tt.out, b}, tt.inputs...)...)
			require.NoError(t, err)
			_, err = Lower(assign, "k", quiet())
			var ue *UnsupportedError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.want, ue.Combination)
		})
	}
}

// TestNameGen tests fresh name generation.
func TestNameGen(t *testing.T) {
	g := NewNameGen()
	assert.Equal(t, "i", g.Fresh("i"))
	assert.Equal(t, "i_1", g.Fresh("i"))
	assert.Equal(t, "i_2", g.Fresh("i"))
	assert.Equal(t, "j", g.Fresh("j"))
	g.Reset()
	assert.Equal(t, "i", g.Fresh("i"))
}

// TestTargets tests target lookup.
func TestTargets(t *testing.T) {
	assert.Equal(t, []string{"c", "dataflow"}, TargetNames())
	tg, ok := TargetByName("dataflow")
	require.True(t, ok)
	assert.Equal(t, ir.LocShared, tg.Location(RoleWorkspace))
	_, ok = TargetByName("gpu")
	assert.False(t, ok)
}
