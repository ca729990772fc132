package lower

import (
	"errors"
	"fmt"
)

// Lowering error codes (E300-E399) and diagnostic codes (W2xx).
const (
	ErrUnsupported = "E300" // no lowering for this combination of formats and schedule

	WarnDefaultAlgebra = "W201" // operator iterates the full space
	WarnSerialFallback = "W202" // parallel forall lowered serially
	WarnNoVectorLoads  = "W203" // target cannot vectorize, loop lowered serially
)

// UnsupportedError reports a combination of formats, operators and schedule
// that lowering cannot handle.
type UnsupportedError struct {
	Combination string
	Detail      string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("[%s] unsupported %s: %s", ErrUnsupported, e.Combination, e.Detail)
}

// IsUnsupported reports whether err is or wraps an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}

func unsupported(combination, format string, args ...any) *UnsupportedError {
	return &UnsupportedError{Combination: combination, Detail: fmt.Sprintf(format, args...)}
}

// InvariantError is the panic value of a broken scheduling invariant. It
// signals a bug in lowering, never bad input, and is not recovered.
type InvariantError struct {
	Invariant string
	Message   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("scheduling invariant %q violated: %s", e.Invariant, e.Message)
}

func invariant(name, format string, args ...any) {
	panic(&InvariantError{Invariant: name, Message: fmt.Sprintf(format, args...)})
}

// Level is the severity of a diagnostic.
type Level string

const (
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Diagnostic is a non-fatal note about a lowering decision.
type Diagnostic struct {
	Level   Level  `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s [%s] %s", d.Level, d.Code, d.Message)
}
