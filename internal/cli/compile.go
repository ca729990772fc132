package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tensorc/internal/cache"
	"github.com/roach88/tensorc/internal/kernel"
	"github.com/roach88/tensorc/internal/lower"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
	Cache  string // cache database path
	Kernel string // compile only this kernel
}

// CompiledKernel is one kernel in the compile output.
type CompiledKernel struct {
	cache.Entry
	Cached bool `json:"cached"`
}

// CompilationResult holds the compiled kernels.
type CompilationResult struct {
	RunID   string           `json:"run_id"`
	Kernels []CompiledKernel `json:"kernels"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <kernels-dir>",
		Short: "Lower CUE kernels to loop IR",
		Long: `Compile CUE kernel definitions to loop IR.

Each kernel's index notation is scheduled, lowered through merge lattices
and printed as an imperative kernel. Results are cached by request; a
kernel compiled before with the same statement, target and options is
served from the cache.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write kernel IR to this file")
	cmd.Flags().StringVar(&opts.Cache, "cache", ":memory:", "kernel cache database path")
	cmd.Flags().StringVar(&opts.Kernel, "kernel", "", "compile only the named kernel")

	return cmd
}

func runCompile(opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadKernels(dir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	kernels := loadResult.Kernels
	if opts.Kernel != "" {
		k, ok := loadResult.Kernel(opts.Kernel)
		if !ok {
			return outputCompileError(formatter, ErrCodeNotFound, fmt.Sprintf("kernel %q not found", opts.Kernel))
		}
		kernels = []*kernel.Kernel{k}
	}

	var errs []error
	for _, k := range kernels {
		for _, ve := range kernel.Validate(k) {
			errs = append(errs, ve)
		}
	}
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	c, err := cache.Open(opts.Cache)
	if err != nil {
		return outputCompileError(formatter, ErrCodeLoadFailed, fmt.Sprintf("opening cache: %v", err))
	}
	defer c.Close()

	ctx := cmd.Context()
	compiler, err := cache.NewCompiler(ctx, c, cache.WithLogger(formatter.Logger()))
	if err != nil {
		return outputCompileError(formatter, ErrCodeLoadFailed, fmt.Sprintf("starting compiler: %v", err))
	}

	result := &CompilationResult{RunID: compiler.RunID()}
	for _, k := range kernels {
		formatter.VerboseLog("Compiling kernel: %s", k.Name)
		entry, hit, err := compiler.Compile(ctx, k, loadResult.Sources[k.Name])
		if err != nil {
			errs = append(errs, fmt.Errorf("kernel %s: %w", k.Name, err))
			continue
		}
		result.Kernels = append(result.Kernels, CompiledKernel{Entry: entry, Cached: hit})
	}
	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	hits := 0
	for _, k := range result.Kernels {
		if k.Cached {
			hits++
		}
	}
	fmt.Fprintf(formatter.Writer, "\u2713 Compiled %d kernel(s), %d from cache\n\n", len(result.Kernels), hits)

	for _, k := range result.Kernels {
		status := "miss"
		if k.Cached {
			status = "hit"
		}
		fmt.Fprintf(formatter.Writer, "%s (%s, cache %s)\n", k.Name, k.Target, status)
		fmt.Fprintf(formatter.Writer, "  %s\n", k.Stmt)
		for _, d := range k.Diagnostics {
			fmt.Fprintf(formatter.Writer, "  %s\n", d)
		}
		if outputFile == "" {
			fmt.Fprintln(formatter.Writer)
			fmt.Fprintln(formatter.Writer, k.IR)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote kernel IR to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		// Every error goes in data; the first one is the response error.
		if err := formatter.Failure(cliErrors, cliErrors[0]); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var validationErr kernel.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Code, validationErr.Field + ": " + validationErr.Message
	}
	var unsupported *lower.UnsupportedError
	if errors.As(err, &unsupported) {
		return lower.ErrUnsupported, unsupported.Combination + ": " + unsupported.Detail
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the printed kernels to a file, one after another.
func writeIRToFile(result *CompilationResult, filename string) error {
	var b strings.Builder
	for i, k := range result.Kernels {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "// %s\n// kernel_id: %s\n", k.Stmt, k.KernelID)
		b.WriteString(k.IR)
		b.WriteString("\n")
	}
	if err := os.WriteFile(filename, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
