package cache

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/kernel"
	"github.com/roach88/tensorc/internal/lower"
	"github.com/roach88/tensorc/internal/testutil"
)

func createTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernels.db")
	c, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, path
}

func testEntry(requestID, name string, seq int64) Entry {
	return Entry{
		RequestID:       requestID,
		KernelID:        "k-" + requestID,
		Name:            name,
		Target:          "c",
		Stmt:            "forall(i, a(i) = b(i))",
		IR:              "void " + name + "() {}",
		IRJSON:          "{}",
		RunID:           "run-0001",
		Seq:             seq,
		CompilerVersion: "0.1.0",
		IRVersion:       "1",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func spmvKernel(format string) *kernel.Kernel {
	return &kernel.Kernel{
		Name: "spmv",
		Expr: "y(i) = A(i,j) * x(j)",
		Tensors: []kernel.TensorDecl{
			{Name: "y", Shape: []int{4}},
			{Name: "A", Shape: []int{4, 5}, Format: format},
			{Name: "x", Shape: []int{5}},
		},
	}
}

func TestOpenPragmas(t *testing.T) {
	c, _ := createTestCache(t)
	assert.NoError(t, c.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, c.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, c.verifyPragma("user_version", "1"))
}

func TestOpenIdempotent(t *testing.T) {
	ctx := context.Background()
	c, path := createTestCache(t)
	_, err := c.Put(ctx, testEntry("r1", "spmv", 1))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()

	_, ok, err := again.Get(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	e := testEntry("r1", "spmv", 1)
	e.Diagnostics = []lower.Diagnostic{{Level: lower.LevelWarning, Code: lower.WarnSerialFallback, Message: "forall over i lowered serially"}}
	inserted, err := c.Put(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, ok, err := c.Get(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e, got)

	// Second write of the same request is ignored.
	dup := testEntry("r1", "other", 9)
	inserted, err = c.Put(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	got, _, err = c.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "spmv", got.Name)

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	for _, e := range []Entry{
		testEntry("r3", "spmv", 3),
		testEntry("r1", "spgemm", 1),
		testEntry("r2", "spmv_csr", 2),
		testEntry("r4", "add", 4),
	} {
		_, err := c.Put(ctx, e)
		require.NoError(t, err)
	}

	ids := func(entries []Entry) []string {
		var out []string
		for _, e := range entries {
			out = append(out, e.RequestID)
		}
		return out
	}

	all, err := c.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, ids(all))

	spmv, err := c.List(ctx, Prefix{Column: "name", Prefix: "spmv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3"}, ids(spmv))

	exact, err := c.List(ctx, And{Predicates: []Predicate{
		Equals{Column: "name", Value: "spmv"},
		Equals{Column: "target", Value: "c"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, ids(exact))

	none, err := c.List(ctx, Equals{Column: "name", Value: "nothing"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = c.List(ctx, Equals{Column: "ir_text; DROP TABLE kernels", Value: 1})
	require.Error(t, err)

	n, err := c.Delete(ctx, Prefix{Column: "name", Prefix: "spmv"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCompilePredicate(t *testing.T) {
	tests := []struct {
		name   string
		pred   Predicate
		sql    string
		params []any
	}{
		{"nil", nil, "", nil},
		{"equals", Equals{Column: "name", Value: "spmv"}, "name = ?", []any{"spmv"}},
		{"prefix escapes wildcards", Prefix{Column: "name", Prefix: "a_b%"}, `name LIKE ? ESCAPE '\'`, []any{`a\_b\%%`}},
		{"empty and", And{}, "", nil},
		{"and", And{Predicates: []Predicate{
			Equals{Column: "name", Value: "spmv"},
			And{},
			Equals{Column: "target", Value: "c"},
		}}, "name = ? AND target = ?", []any{"spmv", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := compilePredicate(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.params, params)
		})
	}

	sql, _, err := compileQuery(nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sql, "ORDER BY seq ASC, request_id ASC COLLATE BINARY"), sql)
}

func TestCompilerHitAndMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)
	comp, err := NewCompiler(ctx, c,
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequentialIDGenerator("run")),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	assert.Equal(t, "run-0001", comp.RunID())

	first, hit, err := comp.Compile(ctx, spmvKernel("ds"), "kernel: spmv: {}")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(2), first.Seq)
	assert.Equal(t, "run-0001", first.RunID)
	assert.Equal(t, "c", first.Target)
	assert.Equal(t, "kernel: spmv: {}", first.Source)
	assert.Contains(t, first.IR, "spmv(")
	assert.Len(t, first.KernelID, 64)
	assert.Len(t, first.RequestID, 64)

	second, hit, err := comp.Compile(ctx, spmvKernel("ds"), "kernel: spmv: {}")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)

	// Same statement text, different storage: a different request.
	dense, hit, err := comp.Compile(ctx, spmvKernel("dd"), "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEqual(t, first.RequestID, dense.RequestID)
	assert.NotEqual(t, first.KernelID, dense.KernelID)

	lookups, err := c.Lookups(ctx)
	require.NoError(t, err)
	require.Len(t, lookups, 3)
	assert.Equal(t, []bool{false, true, false}, []bool{lookups[0].Hit, lookups[1].Hit, lookups[2].Hit})
	assert.Equal(t, []int64{1, 3, 4}, []int64{lookups[0].Seq, lookups[1].Seq, lookups[2].Seq})
}

func TestCompilerResumesClock(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)

	first, err := NewCompiler(ctx, c, WithIDGenerator(testutil.NewFixedIDGenerator("run-a")), WithLogger(quietLogger()))
	require.NoError(t, err)
	e, _, err := first.Compile(ctx, spmvKernel("ds"), "")
	require.NoError(t, err)

	seq, err := c.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, e.Seq, seq)

	second, err := NewCompiler(ctx, c, WithIDGenerator(testutil.NewFixedIDGenerator("run-b")), WithLogger(quietLogger()))
	require.NoError(t, err)
	d, hit, err := second.Compile(ctx, spmvKernel("dd"), "")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Greater(t, d.Seq, e.Seq)
	assert.Equal(t, "run-b", d.RunID)
}

func TestCompilerBuildError(t *testing.T) {
	ctx := context.Background()
	c, _ := createTestCache(t)
	comp, err := NewCompiler(ctx, c, WithLogger(quietLogger()))
	require.NoError(t, err)

	k := spmvKernel("ds")
	k.Expr = "y(i) = A(i,j) * z(j)"
	_, _, err = comp.Compile(ctx, k, "")
	require.Error(t, err)

	lookups, err := c.Lookups(ctx)
	require.NoError(t, err)
	assert.Empty(t, lookups)
}

func TestClock(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(11), c.Current())
	assert.Equal(t, int64(1), NewClock().Next())
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14])
}
