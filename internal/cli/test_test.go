package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tensorc/internal/harness"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// copyScenario copies one harness scenario into dir.
func copyScenario(t *testing.T, dir, file string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(harnessScenarios, file))
	require.NoError(t, err)
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	output, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, output, "No scenarios found.")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	output, err := executeTest(t, "json", t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.Empty(t, resp.Data.Scenarios)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	output, err := executeTest(t, "text", harnessScenarios)
	require.NoError(t, err, output)
	assert.Contains(t, output, "\u2713 union_add")
	assert.Contains(t, output, "\u2713 parallel_workspace_unsupported")
	assert.Contains(t, output, "Test Summary: 10 passed, 0 failed, 10 total")
	assert.Contains(t, output, "\u2713 All scenarios passed")
}

func TestTestCommandFilterJSON(t *testing.T) {
	output, err := executeTest(t, "json", harnessScenarios, "--filter", "*workspace*")
	require.NoError(t, err, output)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Total)
	assert.Equal(t, 4, resp.Data.Passed)
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `
name: wrong_sum
description: "Expects the wrong sum"
kernel:
  expr: "a(i) = b(i) + c(i)"
  tensors:
    - {name: a, shape: [2], format: d}
    - {name: b, shape: [2], format: d}
    - {name: c, shape: [2], format: d}
inputs:
  b: {dense: [1, 2]}
  c: {dense: [3, 4]}
expect:
  dense:
    a: [4, 7]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(scenario), 0644))

	output, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "\u2717 wrong_sum")
	assert.Contains(t, output, "component 1 is 6, want 7")
	assert.Contains(t, output, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: x\n"), 0644))

	output, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, output, "\u2717 broken.yaml")
	assert.Contains(t, output, "failed to load scenario")
}

func TestTestCommandUpdateGolden(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "b_intersect_mul.yaml")

	output, err := executeTest(t, "text", dir, "--update")
	require.NoError(t, err, output)
	assert.Contains(t, output, "\u2713 intersect_mul (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "b_intersect_mul.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "intersect_mul.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(golden))

	output, err = executeTest(t, "text", dir)
	require.NoError(t, err, output)
	assert.Contains(t, output, "\u2713 intersect_mul")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "c_dense_copy.yaml")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "c_dense_copy.golden"), []byte(`{}`), 0644))

	output, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, output, "does not match golden file")
}

func TestTestCommandMaxSteps(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "c_dense_copy.yaml")

	output, err := executeTest(t, "text", dir, "--max-steps", "2")
	require.Error(t, err)
	assert.Contains(t, output, "\u2717 dense_copy")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("name: b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("not yaml"), 0644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"spmv_rows.yaml", "spmv_cols.yaml", "spadd.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x"), 0644))
	}

	files, err := findScenarioFiles(dir, "spmv_*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sparse"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("name: a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sparse", "b.yaml"), []byte("name: b"), 0644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}

func TestCompareWithGolden(t *testing.T) {
	r := harness.NewResult()
	r.Stmt = "forall(i, a(i) = b(i))"
	s := &harness.Scenario{Name: "copy"}

	path := filepath.Join(t.TempDir(), "golden", "copy.golden")
	require.NoError(t, updateGoldenFile(s, r, path))

	match, err := compareWithGolden(s, r, path)
	require.NoError(t, err)
	assert.True(t, match)

	r.Stmt = "forall(j, a(j) = b(j))"
	match, err = compareWithGolden(s, r, path)
	require.NoError(t, err)
	assert.False(t, match)
}
