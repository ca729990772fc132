package interp

import (
	"errors"
	"fmt"
)

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeOutOfBounds indicates an array access outside its allocation.
	ErrCodeOutOfBounds RuntimeErrorCode = "OUT_OF_BOUNDS"

	// ErrCodeUndefined indicates a read of a variable or array that does not
	// exist at that point of the kernel.
	ErrCodeUndefined RuntimeErrorCode = "UNDEFINED"

	// ErrCodeBinding indicates a kernel parameter without a matching tensor.
	ErrCodeBinding RuntimeErrorCode = "BINDING"

	// ErrCodeArithmetic indicates a failed arithmetic operation.
	ErrCodeArithmetic RuntimeErrorCode = "ARITHMETIC"

	// ErrCodeUnknownCall indicates a call of an unknown builtin.
	ErrCodeUnknownCall RuntimeErrorCode = "UNKNOWN_CALL"
)

// RuntimeError is a fault detected while running a kernel.
type RuntimeError struct {
	Code    RuntimeErrorCode
	Message string
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func runtimeError(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsOutOfBounds reports whether err is an out-of-bounds RuntimeError.
func IsOutOfBounds(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeOutOfBounds
	}
	return false
}

// AssertError is returned when an ir.Assert fails. Lowered kernels assert
// scheduling invariants, so an AssertError means the lowering is wrong.
type AssertError struct {
	Message string
}

// Error implements the error interface.
func (e *AssertError) Error() string {
	return "assertion failed: " + e.Message
}

// IsAssertError reports whether err is or wraps an AssertError.
func IsAssertError(err error) bool {
	var ae *AssertError
	return errors.As(err, &ae)
}

// StepsExceededError is returned when a kernel runs more loop iterations
// than the configured limit.
type StepsExceededError struct {
	Kernel string
	Steps  int
	Limit  int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("kernel %s exceeded max steps quota: %d steps > %d limit", e.Kernel, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err is or wraps a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}

// errBreak unwinds to the innermost loop.
var errBreak = errors.New("break outside loop")
