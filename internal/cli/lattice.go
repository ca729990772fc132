package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tensorc/internal/kernel"
)

// LatticeOptions holds flags for the lattice command.
type LatticeOptions struct {
	*RootOptions
	Kernel string
}

// LatticeReport lists the lowering decisions made for one kernel.
type LatticeReport struct {
	Kernel      string   `json:"kernel"`
	Stmt        string   `json:"stmt"`
	Decisions   []string `json:"decisions"`
	Diagnostics []string `json:"diagnostics"`
}

// NewLatticeCommand creates the lattice command.
func NewLatticeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LatticeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lattice <kernels-dir>",
		Short: "Show the iteration strategy chosen for each index",
		Long: `Lower kernels and report, per index variable, whether it is iterated
by dimension, by position or by merge lattice, and the lattice points of
each lattice. Diagnostics raised during lowering are listed after.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLattice(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kernel, "kernel", "", "report only the named kernel")

	return cmd
}

func runLattice(opts *LatticeOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, loadErrors := LoadKernels(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	kernels := loadResult.Kernels
	if opts.Kernel != "" {
		k, ok := loadResult.Kernel(opts.Kernel)
		if !ok {
			return outputCompileError(formatter, ErrCodeNotFound, fmt.Sprintf("kernel %q not found", opts.Kernel))
		}
		kernels = []*kernel.Kernel{k}
	}

	logger := formatter.Logger()
	var reports []LatticeReport
	for _, k := range kernels {
		if errs := kernel.Validate(k); len(errs) > 0 {
			return outputCompileError(formatter, errs[0].Code, errs[0].Error())
		}
		res, err := k.Lower(logger)
		if err != nil {
			code, message := parseCompileError(err)
			return outputCompileError(formatter, code, fmt.Sprintf("kernel %s: %s", k.Name, message))
		}
		stmt, _ := k.Build()
		report := LatticeReport{
			Kernel:      k.Name,
			Stmt:        stmt.String(),
			Decisions:   []string{},
			Diagnostics: []string{},
		}
		for _, d := range res.Decisions {
			report.Decisions = append(report.Decisions, d.String())
		}
		for _, d := range res.Diagnostics {
			report.Diagnostics = append(report.Diagnostics, d.String())
		}
		reports = append(reports, report)
	}

	if formatter.JSON() {
		return formatter.Success(reports)
	}
	for _, r := range reports {
		fmt.Fprintf(formatter.Writer, "%s\n  %s\n", r.Kernel, r.Stmt)
		for _, d := range r.Decisions {
			fmt.Fprintf(formatter.Writer, "  %s\n", d)
		}
		for _, d := range r.Diagnostics {
			fmt.Fprintf(formatter.Writer, "  %s\n", d)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
