package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_Success(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(CacheClearResult{Removed: 3}))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"removed": float64(3)}, resp.Data)
}

func TestOutputFormatter_Failure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	errs := []CLIError{
		{Code: "E101", Message: "expr is required"},
		{Code: "E106", Message: "shape must be positive"},
	}
	require.NoError(t, formatter.Failure(errs, errs[0]))

	resp := decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E101", resp.Error.Code)
	assert.Len(t, resp.Data, 2)
}

func TestOutputFormatter_Error(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, formatter.Error(ErrCodeNotFound, "kernels directory not found"))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		assert.Nil(t, resp.Data)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
		assert.Equal(t, "kernels directory not found", resp.Error.Message)
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, formatter.Error("E300", "parallel lattice loop"))
		assert.Equal(t, "Error [E300]: parallel lattice loop\n", buf.String())
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errBuf := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errBuf, Verbose: tt.verbose}

			formatter.VerboseLog("Compiling kernel: %s", "spmv")

			assert.Empty(t, out.String(), "diagnostics must not reach the result stream")
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "Compiling kernel: spmv")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func TestOutputFormatter_Logger(t *testing.T) {
	errBuf := &bytes.Buffer{}
	quiet := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}, ErrWriter: errBuf}
	quiet.Logger().Debug("kernel cached", "kernel", "spmv")
	assert.Empty(t, errBuf.String())
	quiet.Logger().Warn("serial fallback", "kernel", "spmv")
	assert.Contains(t, errBuf.String(), "kernel=spmv")
	assert.Same(t, quiet.Logger(), quiet.Logger())

	errBuf.Reset()
	verbose := &OutputFormatter{Format: "json", Writer: &bytes.Buffer{}, ErrWriter: errBuf, Verbose: true}
	verbose.Logger().Debug("kernel cached", "kernel", "spmv")
	assert.Contains(t, errBuf.String(), "kernel cached")
}

func TestOutputFormatter_LoggerWithoutErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, Verbose: true}
	formatter.VerboseLog("Found %d CUE file(s)", 2)
	assert.Contains(t, out.String(), "Found 2 CUE file(s)")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))

	wrapped := WrapExitError(ExitCommandError, "opening cache", assert.AnError)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Contains(t, wrapped.Error(), "opening cache: ")
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}
