package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tensorc/internal/cache"
)

// CacheOptions holds flags shared by the cache subcommands.
type CacheOptions struct {
	*RootOptions
	Path string // cache database path
	Name string // kernel name prefix
	Run  string // run ID
}

// CacheListResult is the JSON payload of cache list.
type CacheListResult struct {
	Kernels []cache.Entry `json:"kernels"`
}

// CacheClearResult is the JSON payload of cache clear.
type CacheClearResult struct {
	Removed int64 `json:"removed"`
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the kernel cache",
		Long: `Inspect or clear the SQLite kernel cache written by compile --cache.

Entries can be filtered by kernel name prefix and by the run that
compiled them.`,
	}

	cmd.PersistentFlags().StringVar(&opts.Path, "cache", "tensorc.db", "kernel cache database path")
	cmd.PersistentFlags().StringVar(&opts.Name, "name", "", "only kernels whose name starts with this prefix")
	cmd.PersistentFlags().StringVar(&opts.Run, "run", "", "only kernels compiled by this run ID")

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List cached kernels",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Remove cached kernels",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(opts, cmd)
		},
	})

	return cmd
}

// predicate builds the entry filter from the flags. Nil matches everything.
func (o *CacheOptions) predicate() cache.Predicate {
	var preds []cache.Predicate
	if o.Name != "" {
		preds = append(preds, cache.Prefix{Column: "name", Prefix: o.Name})
	}
	if o.Run != "" {
		preds = append(preds, cache.Equals{Column: "run_id", Value: o.Run})
	}
	if len(preds) == 0 {
		return nil
	}
	return cache.And{Predicates: preds}
}

func runCacheList(opts *CacheOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	c, err := cache.Open(opts.Path)
	if err != nil {
		return outputCompileError(formatter, ErrCodeLoadFailed, fmt.Sprintf("opening cache: %v", err))
	}
	defer c.Close()

	entries, err := c.List(cmd.Context(), opts.predicate())
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error())
	}

	if formatter.JSON() {
		return formatter.Success(CacheListResult{Kernels: entries})
	}
	writeEntries(formatter.Writer, entries)
	return nil
}

func writeEntries(w io.Writer, entries []cache.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No cached kernels.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%6d  %-20s %-6s %s  %s\n", e.Seq, e.Name, e.Target, shortID(e.KernelID), e.Stmt)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func runCacheClear(opts *CacheOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	c, err := cache.Open(opts.Path)
	if err != nil {
		return outputCompileError(formatter, ErrCodeLoadFailed, fmt.Sprintf("opening cache: %v", err))
	}
	defer c.Close()

	n, err := c.Delete(cmd.Context(), opts.predicate())
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error())
	}

	if formatter.JSON() {
		return formatter.Success(CacheClearResult{Removed: n})
	}
	fmt.Fprintf(formatter.Writer, "Removed %d cached kernel(s)\n", n)
	return nil
}
