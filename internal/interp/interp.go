package interp

import (
	"fmt"
	"log/slog"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/tensor"
	"github.com/roach88/tensorc/internal/typed"
)

// DefaultMaxSteps bounds the loop iterations of one run.
const DefaultMaxSteps = 10_000_000

// ProbeHit is one execution of an ir.Probe.
type ProbeHit struct {
	Label string
	Coord int64
}

// Stats describes one run.
type Stats struct {
	// Visits counts probe executions by label.
	Visits map[string]int
	// Probes lists probe executions in order.
	Probes []ProbeHit
	// Stages lists the yields executed, in order.
	Stages       []string
	AtomicStores int
	Allocations  int
	Steps        int
}

// Total returns the number of probe executions.
func (s *Stats) Total() int { return len(s.Probes) }

type config struct {
	maxSteps        int
	reverseParallel bool
	logger          *slog.Logger
}

// Option configures Run.
type Option func(*config)

// WithMaxSteps sets the maximum number of loop iterations. Zero means no
// limit. Default: DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithReversedParallel runs the iterations of parallel loops from last to
// first.
func WithReversedParallel(on bool) Option {
	return func(c *config) { c.reverseParallel = on }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// array is one allocation. Index arrays hold IndexType values.
type array struct {
	name string
	kind typed.Kind
	data []typed.Value
}

// storage backs one tensor variable of the kernel: a parameter bound to a
// tensor.Tensor, or a workspace created by its first allocation.
type storage struct {
	t    *tensor.Tensor
	pos  map[int]*array
	crd  map[int]*array
	vals *array
}

func newStorage(t *tensor.Tensor) *storage {
	return &storage{t: t, pos: make(map[int]*array), crd: make(map[int]*array)}
}

type machine struct {
	cfg     *config
	fn      *ir.Function
	scalars map[*ir.Var]typed.Value
	arrays  map[*ir.Var]*array
	tensors map[*ir.Var]*storage
	stats   *Stats
}

// Run executes fn. Every kernel parameter binds to the tensor of the same
// name: inputs are read, outputs are overwritten with the assembled
// result.
func Run(fn *ir.Function, tensors []*tensor.Tensor, opts ...Option) (*Stats, error) {
	cfg := &config{maxSteps: DefaultMaxSteps, logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	m := &machine{
		cfg:     cfg,
		fn:      fn,
		scalars: make(map[*ir.Var]typed.Value),
		arrays:  make(map[*ir.Var]*array),
		tensors: make(map[*ir.Var]*storage),
		stats:   &Stats{Visits: make(map[string]int)},
	}
	byName := make(map[string]*tensor.Tensor, len(tensors))
	for _, t := range tensors {
		byName[t.Name] = t
	}
	for _, v := range fn.Inputs {
		t, ok := byName[v.Name]
		if !ok {
			return nil, runtimeError(ErrCodeBinding, "no tensor bound to input %s", v.Name)
		}
		m.tensors[v] = bindInput(v, t)
	}
	for _, v := range fn.Outputs {
		t, ok := byName[v.Name]
		if !ok {
			return nil, runtimeError(ErrCodeBinding, "no tensor bound to output %s", v.Name)
		}
		m.tensors[v] = newStorage(t)
	}

	if err := m.exec(fn.Body); err != nil {
		if err == errBreak {
			err = runtimeError(ErrCodeUndefined, "break outside loop")
		}
		return m.stats, fmt.Errorf("run %s: %w", fn.Name, err)
	}
	for _, v := range fn.Outputs {
		if err := m.readBack(m.tensors[v]); err != nil {
			return m.stats, fmt.Errorf("run %s: %w", fn.Name, err)
		}
	}
	cfg.logger.Debug("kernel run",
		"kernel", fn.Name,
		"steps", m.stats.Steps,
		"probes", len(m.stats.Probes),
		"allocations", m.stats.Allocations,
	)
	return m.stats, nil
}

func bindInput(v *ir.Var, t *tensor.Tensor) *storage {
	s := newStorage(t)
	for l := range t.Format.Modes {
		if t.Pos[l] != nil {
			s.pos[l] = indexArray(fmt.Sprintf("%s%d_pos", v.Name, l+1), t.Pos[l])
		}
		if t.Crd[l] != nil {
			s.crd[l] = indexArray(fmt.Sprintf("%s%d_crd", v.Name, l+1), t.Crd[l])
		}
	}
	s.vals = &array{name: v.Name + "_vals", kind: t.Kind, data: append([]typed.Value(nil), t.Vals...)}
	return s
}

func indexArray(name string, xs []int64) *array {
	a := &array{name: name, kind: ir.IndexType, data: make([]typed.Value, len(xs))}
	for i, x := range xs {
		a.data[i] = typed.Int(ir.IndexType, x)
	}
	return a
}

func indices(a *array, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = a.data[i].Int64()
	}
	return out
}

// readBack copies an assembled result into its tensor, trimming arrays that
// grew past their used length.
func (m *machine) readBack(s *storage) error {
	t := s.t
	size := 1
	for l, mode := range t.Format.Modes {
		t.Pos[l], t.Crd[l] = nil, nil
		switch mode.Kind {
		case format.Dense:
			size *= t.Shape[t.Format.Dimension(l)]
			continue
		case format.Compressed:
			pos := s.pos[l]
			if pos == nil || len(pos.data) < size+1 {
				return runtimeError(ErrCodeUndefined, "output %s level %d has no position array for %d segments", t.Name, l+1, size)
			}
			t.Pos[l] = indices(pos, size+1)
			size = int(t.Pos[l][size])
		}
		crd := s.crd[l]
		if crd == nil || len(crd.data) < size {
			return runtimeError(ErrCodeUndefined, "output %s level %d has no coordinate array for %d entries", t.Name, l+1, size)
		}
		t.Crd[l] = indices(crd, size)
	}
	if s.vals == nil || len(s.vals.data) < size {
		return runtimeError(ErrCodeUndefined, "output %s has no value array for %d entries", t.Name, size)
	}
	t.Vals = append([]typed.Value(nil), s.vals.data[:size]...)
	return nil
}

func (m *machine) step() error {
	m.stats.Steps++
	if m.cfg.maxSteps > 0 && m.stats.Steps > m.cfg.maxSteps {
		return &StepsExceededError{Kernel: m.fn.Name, Steps: m.stats.Steps, Limit: m.cfg.maxSteps}
	}
	return nil
}

// Eval evaluates an expression that reads no variables or arrays.
func Eval(e ir.Expr) (typed.Value, error) {
	m := &machine{
		cfg:     &config{logger: slog.Default()},
		fn:      &ir.Function{Name: "eval"},
		scalars: make(map[*ir.Var]typed.Value),
		arrays:  make(map[*ir.Var]*array),
		tensors: make(map[*ir.Var]*storage),
		stats:   &Stats{Visits: make(map[string]int)},
	}
	return m.eval(e)
}
