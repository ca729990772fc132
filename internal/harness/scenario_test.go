package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/kernel"
)

func TestLoadScenario_Valid(t *testing.T) {
	s := loadTestScenario(t, "d_workspace_spgemm.yaml")

	assert.Equal(t, "workspace_spgemm", s.Name)
	assert.Equal(t, "A(i,j) = B(i,k) * C(k,j)", s.Kernel.Expr)
	require.Len(t, s.Kernel.Tensors, 3)
	assert.Equal(t, "A", s.Kernel.Tensors[0].Name)
	assert.Equal(t, []int{4, 6}, s.Kernel.Tensors[0].Shape)
	assert.Equal(t, "ds", s.Kernel.Tensors[1].Format)
	require.Len(t, s.Kernel.Schedule, 1)
	require.NotNil(t, s.Kernel.Schedule[0].Precompute)
	assert.Equal(t, []string{"j"}, s.Kernel.Schedule[0].Precompute.Index)
	assert.Equal(t, "w", s.Kernel.Schedule[0].Precompute.Workspace.Name)
	assert.Len(t, s.Inputs["B"].Dense, 12)
	assert.Equal(t, []string{"position", "dimension"}, s.Expect.Strategies["j"])
	assert.Equal(t, 24, s.Expect.Stored["A"])
}

func TestLoadScenario_Entries(t *testing.T) {
	s := loadTestScenario(t, "a_union_add.yaml")

	assert.Equal(t, []EntryData{{At: []int{1}, Value: 10}, {At: []int{3}, Value: 30}}, s.Inputs["b"].Entries)
	require.NotNil(t, s.Expect.TotalVisits)
	assert.Equal(t, 5, *s.Expect.TotalVisits)
	assert.True(t, s.Golden)
	assert.True(t, s.Kernel.Instrument)
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		file string
		msg  string
	}{
		{"unknown_field.yaml", "field visit_count not found"},
		{"missing_expr.yaml", "kernel.expr is required"},
		{"two_commands.yaml", "kernel.schedule[0]: exactly one of"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := LoadScenario(filepath.Join("testdata", "invalid", tt.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"missing name", `description: d
kernel: {expr: "a(i) = b(i)", tensors: [{name: a, shape: [1]}]}`, "name is required"},
		{"missing description", `name: n
kernel: {expr: "a(i) = b(i)", tensors: [{name: a, shape: [1]}]}`, "description is required"},
		{"no tensors", `name: n
description: d
kernel: {expr: "a(i) = b(i)"}`, "kernel.tensors is required"},
		{"dense and entries", `name: n
description: d
kernel: {expr: "a(i) = b(i)", tensors: [{name: a, shape: [1]}]}
inputs:
  b: {dense: [1], entries: [{at: [0], value: 1}]}`, "inputs.b: dense and entries are exclusive"},
		{"two error expectations", `name: n
description: d
kernel: {expr: "a(i) = b(i)", tensors: [{name: a, shape: [1]}]}
expect: {lower_error: E300, run_error: steps}`, "lower_error and run_error are exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestKernelDef_ToKernel(t *testing.T) {
	s := loadTestScenario(t, "i_parallel_workspace.yaml")
	k := s.Kernel.ToKernel(s.Name)

	assert.Equal(t, "parallel_workspace", k.Name)
	assert.True(t, k.SerialFallback)
	require.Len(t, k.Schedule, 2)
	assert.Equal(t, kernel.OpPrecompute, k.Schedule[0].Op)
	assert.Equal(t, "i", k.Schedule[0].At)
	assert.Equal(t, []string{"j"}, k.Schedule[0].Indices)
	require.NotNil(t, k.Schedule[0].Workspace)
	assert.Equal(t, []int{6}, k.Schedule[0].Workspace.Shape)
	assert.Equal(t, kernel.Directive{Op: kernel.OpParallelize, Index: "i", Kind: "parallel_dynamic"}, k.Schedule[1])
	assert.Empty(t, kernel.Validate(k))

	s.Kernel.Name = "renamed"
	assert.Equal(t, "renamed", s.Kernel.ToKernel(s.Name).Name)
}
