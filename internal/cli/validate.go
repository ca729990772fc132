package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tensorc/internal/kernel"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                     `json:"valid"`
	Kernels int                      `json:"kernels"`
	Errors  []kernel.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <kernels-dir>",
		Short: "Validate kernels without lowering them",
		Long: `Validate CUE kernel definitions without lowering them.

Checks the kernel schema, tensor declarations and schedule, then builds
each kernel's concrete index notation so expression errors surface too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Collect every compile error; validation reports them all at once
	loadResult, loadErrors := LoadKernels(dir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	var validationErrors []kernel.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, kernel.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			})
		}
	}
	validationErrors = append(validationErrors, validateKernels(loadResult.Kernels, formatter)...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter, len(loadResult.Kernels))
}

// validateKernels runs schema validation and, for kernels that pass it,
// builds the concrete statement.
func validateKernels(kernels []*kernel.Kernel, formatter *OutputFormatter) []kernel.ValidationError {
	var all []kernel.ValidationError
	for _, k := range kernels {
		formatter.VerboseLog("Validating kernel: %s", k.Name)
		errs := kernel.Validate(k)
		if len(errs) > 0 {
			all = append(all, errs...)
			continue
		}
		if _, err := k.Build(); err != nil {
			all = append(all, kernel.ValidationError{
				Field:   "kernel." + k.Name,
				Message: err.Error(),
				Code:    ErrCodeGeneric,
			})
		}
	}
	return all
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, kernels int) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Kernels: kernels})
	}
	fmt.Fprintf(formatter.Writer, "\u2713 All %d kernel(s) valid\n", kernels)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []kernel.ValidationError) error {
	if formatter.JSON() {
		data := ValidationResult{Valid: false, Errors: errs}
		if err := formatter.Failure(data, CLIError{Code: errs[0].Code, Message: errs[0].Message}); err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateKernelsDir validates all kernels in a directory.
// This is a helper function for external callers.
func ValidateKernelsDir(dir string) ([]kernel.ValidationError, error) {
	loadResult, loadErrors := LoadKernels(dir, LoadModeFailFast)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	silent := &OutputFormatter{Format: "text"}
	return validateKernels(loadResult.Kernels, silent), nil
}
