package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCache(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCacheCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// populatedCache compiles the spmv and vadd kernels into a fresh cache file.
func populatedCache(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	_, err := executeCompile(t, "text", writeKernels(t, spmvKernel, addKernel), "--cache", path)
	require.NoError(t, err)
	return path
}

func TestCacheListEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	output, err := executeCache(t, "text", "list", "--cache", path)
	require.NoError(t, err)
	assert.Contains(t, output, "No cached kernels.")
}

func TestCacheList(t *testing.T) {
	path := populatedCache(t)

	output, err := executeCache(t, "text", "list", "--cache", path)
	require.NoError(t, err)
	assert.Contains(t, output, "spmv")
	assert.Contains(t, output, "vadd")
}

func TestCacheListByName(t *testing.T) {
	path := populatedCache(t)

	output, err := executeCache(t, "json", "list", "--cache", path, "--name", "sp")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   CacheListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.Len(t, resp.Data.Kernels, 1)
	assert.Equal(t, "spmv", resp.Data.Kernels[0].Name)
}

func TestCacheListByRun(t *testing.T) {
	path := populatedCache(t)

	output, err := executeCache(t, "json", "list", "--cache", path, "--run", "no-such-run")
	require.NoError(t, err)

	var resp struct {
		Data CacheListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Empty(t, resp.Data.Kernels)
}

func TestCacheClear(t *testing.T) {
	path := populatedCache(t)

	output, err := executeCache(t, "text", "clear", "--cache", path, "--name", "vadd")
	require.NoError(t, err)
	assert.Contains(t, output, "Removed 1 cached kernel(s)")

	output, err = executeCache(t, "json", "clear", "--cache", path)
	require.NoError(t, err)
	var resp struct {
		Data CacheClearResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, int64(1), resp.Data.Removed)
}

func TestCacheOpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "cache.db")

	_, err := executeCache(t, "text", "list", "--cache", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCacheOptionsPredicate(t *testing.T) {
	assert.Nil(t, (&CacheOptions{}).predicate())
	assert.NotNil(t, (&CacheOptions{Name: "sp"}).predicate())
}
