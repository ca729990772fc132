package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/kernel"
	"github.com/roach88/tensorc/internal/lower"
)

// Compiler lowers kernels through the cache: a request seen before returns
// the stored entry, anything else is lowered and stored.
type Compiler struct {
	cache  *Cache
	clock  Sequencer
	ids    IDGenerator
	runID  string
	logger *slog.Logger
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithClock sets the sequence source. Default: a Clock resumed after the
// cache's MaxSeq.
func WithClock(s Sequencer) CompilerOption {
	return func(c *Compiler) { c.clock = s }
}

// WithIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) CompilerOption {
	return func(c *Compiler) { c.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = l }
}

// NewCompiler returns a compiler writing to cache. One run ID is drawn per
// compiler.
func NewCompiler(ctx context.Context, cache *Cache, opts ...CompilerOption) (*Compiler, error) {
	c := &Compiler{cache: cache, ids: UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		seq, err := cache.MaxSeq(ctx)
		if err != nil {
			return nil, err
		}
		c.clock = NewClockAt(seq)
	}
	c.runID = c.ids.Generate()
	return c, nil
}

// RunID returns the ID stamped on entries this compiler writes.
func (c *Compiler) RunID() string { return c.runID }

// Compile returns the cached entry for k, lowering and storing it on a
// miss. Source is the kernel's definition text, kept for inspection.
func (c *Compiler) Compile(ctx context.Context, k *kernel.Kernel, source string) (Entry, bool, error) {
	stmt, err := k.Build()
	if err != nil {
		return Entry{}, false, err
	}
	requestID, err := ir.RequestID(stmt.String(), k.TargetName(), k.RequestOptions())
	if err != nil {
		return Entry{}, false, fmt.Errorf("compile %s: %w", k.Name, err)
	}

	e, hit, err := c.cache.Get(ctx, requestID)
	if err != nil {
		return Entry{}, false, err
	}
	if err := c.cache.recordLookup(ctx, Lookup{Seq: c.clock.Next(), RequestID: requestID, RunID: c.runID, Hit: hit}); err != nil {
		return Entry{}, false, err
	}
	if hit {
		c.logger.Debug("kernel cache hit", "kernel", k.Name, "request", requestID[:12])
		return e, true, nil
	}

	opts, err := k.Options(c.logger)
	if err != nil {
		return Entry{}, false, err
	}
	res, err := lower.Lower(stmt, k.Name, opts...)
	if err != nil {
		return Entry{}, false, err
	}
	kernelID, err := ir.KernelID(res.Function)
	if err != nil {
		return Entry{}, false, fmt.Errorf("compile %s: %w", k.Name, err)
	}
	irJSON, err := marshalFunction(res.Function)
	if err != nil {
		return Entry{}, false, fmt.Errorf("compile %s: %w", k.Name, err)
	}

	e = Entry{
		RequestID:       requestID,
		KernelID:        kernelID,
		Name:            k.Name,
		Target:          k.TargetName(),
		Stmt:            stmt.String(),
		Source:          source,
		IR:              ir.Print(res.Function),
		IRJSON:          irJSON,
		Diagnostics:     res.Diagnostics,
		RunID:           c.runID,
		Seq:             c.clock.Next(),
		CompilerVersion: ir.CompilerVersion,
		IRVersion:       ir.IRVersion,
	}
	if _, err := c.cache.Put(ctx, e); err != nil {
		return Entry{}, false, err
	}
	c.logger.Debug("kernel cached", "kernel", k.Name, "request", requestID[:12], "seq", e.Seq)
	return e, false, nil
}
