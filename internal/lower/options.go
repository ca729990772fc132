package lower

import (
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/tensorc/internal/ir"
)

// Role names what a buffer or variable is used for, so a target can place
// it in the right kind of memory.
type Role string

const (
	RoleAccumulator Role = "accumulator"
	RoleThreadLocal Role = "thread_local"
	RoleWorkspace   Role = "workspace"
	RoleOutput      Role = "output"
)

// Target describes what a backend can do. Lowering consults it instead of
// branching on backend identity.
type Target struct {
	Name string
	// Locations maps a role to the memory location tag emitted for it.
	Locations map[Role]ir.MemoryLocation
	// NativeAtomics means atomic read-modify-write stores are cheap, so
	// parallel reductions use them instead of reduction clauses.
	NativeAtomics bool
	// VectorLoads means vectorized loops are supported.
	VectorLoads bool
	// StageBoundaries means sequenced statements are separated by yields.
	StageBoundaries bool
}

// Location returns the memory location tag for r.
func (t Target) Location(r Role) ir.MemoryLocation {
	return t.Locations[r]
}

// Built-in targets.
var (
	// TargetC is a shared-memory multicore CPU.
	TargetC = Target{
		Name: "c",
		Locations: map[Role]ir.MemoryLocation{
			RoleAccumulator: ir.LocRegister,
			RoleThreadLocal: ir.LocThreadLocal,
			RoleWorkspace:   ir.LocHeap,
			RoleOutput:      ir.LocHeap,
		},
		NativeAtomics: true,
		VectorLoads:   true,
	}

	// TargetDataflow is a staged spatial accelerator with on-chip scratchpads
	// and no atomic memory operations.
	TargetDataflow = Target{
		Name: "dataflow",
		Locations: map[Role]ir.MemoryLocation{
			RoleAccumulator: ir.LocRegister,
			RoleThreadLocal: ir.LocRegister,
			RoleWorkspace:   ir.LocShared,
			RoleOutput:      ir.LocHeap,
		},
		StageBoundaries: true,
	}
)

var targets = map[string]Target{
	TargetC.Name:        TargetC,
	TargetDataflow.Name: TargetDataflow,
}

// TargetByName returns a built-in target.
func TargetByName(name string) (Target, bool) {
	t, ok := targets[name]
	return t, ok
}

// TargetNames returns the built-in target names, sorted.
func TargetNames() []string {
	names := make([]string, 0, len(targets))
	for n := range targets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type config struct {
	target         Target
	checks         bool
	instrument     bool
	serialFallback bool
	logger         *slog.Logger
}

func defaultConfig() *config {
	return &config{
		target: TargetC,
		logger: slog.Default(),
	}
}

// Option configures Lower.
type Option func(*config)

// WithTarget selects the backend profile. Default: TargetC.
func WithTarget(t Target) Option {
	return func(c *config) { c.target = t }
}

// WithChecks emits runtime assertions for scheduling invariants: merged
// iterators never fall behind the merge coordinate and appends arrive in
// increasing coordinate order.
func WithChecks(on bool) Option {
	return func(c *config) { c.checks = on }
}

// WithInstrumentation emits a probe in every loop body and merge case so an
// interpreter can count visits.
func WithInstrumentation(on bool) Option {
	return func(c *config) { c.instrument = on }
}

// WithSerialFallback lowers parallel foralls that cannot run in parallel
// (sparse appends, merge loops) serially with a warning instead of failing.
func WithSerialFallback(on bool) Option {
	return func(c *config) { c.serialFallback = on }
}

// WithLogger sets the logger for lowering decisions. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l == nil {
			l = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		c.logger = l
	}
}
