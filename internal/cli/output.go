package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Process exit codes. A kernel that fails validation or a scenario that
// fails its checks is a failure; anything that stops a command from
// looking at kernels at all (bad paths, unreadable CUE, an unopenable
// cache, a kernel the lowering engine rejects) is a command error.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code err asks for. Errors that are not an
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every --format json result. Data holds
// the command's report: compiled kernels, validation errors, lattice
// decisions, scenario results or cache entries.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the first error of a failed command, tagged with its
// loader (E00x), validation (E1xx) or lowering (E300) code.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	statusOK    = "ok"
	statusError = "error"
)

// OutputFormatter writes command results to Writer and diagnostics to
// ErrWriter, so JSON on stdout stays parseable.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool

	logger *slog.Logger
}

func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
	}
}

// JSON reports whether results are written as JSON.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success writes data as an ok response.
func (f *OutputFormatter) Success(data any) error {
	return encodeJSON(f.Writer, CLIResponse{Status: statusOK, Data: data})
}

// Failure writes data as an error response whose error is cause.
func (f *OutputFormatter) Failure(data any, cause CLIError) error {
	return encodeJSON(f.Writer, CLIResponse{Status: statusError, Data: data, Error: &cause})
}

// Error writes a single coded error.
func (f *OutputFormatter) Error(code, message string) error {
	if f.JSON() {
		return f.Failure(nil, CLIError{Code: code, Message: message})
	}
	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return err
}

// Logger returns the logger handed to the lowering engine, the kernel
// cache and the harness. Verbose mode logs at debug level, otherwise only
// warnings and errors get through.
func (f *OutputFormatter) Logger() *slog.Logger {
	if f.logger == nil {
		level := slog.LevelWarn
		if f.Verbose {
			level = slog.LevelDebug
		}
		f.logger = slog.New(slog.NewTextHandler(f.diag(), &slog.HandlerOptions{Level: level}))
	}
	return f.logger
}

// VerboseLog logs a progress message that only verbose mode shows.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	f.Logger().Info(fmt.Sprintf(format, args...))
}

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func encodeJSON(w io.Writer, response CLIResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}
