package harness

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/tensorc/internal/interp"
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/kernel"
	"github.com/roach88/tensorc/internal/lower"
	"github.com/roach88/tensorc/internal/notation"
	"github.com/roach88/tensorc/internal/tensor"
	"github.com/roach88/tensorc/internal/typed"
)

// Harness runs scenarios.
type Harness struct {
	logger   *slog.Logger
	maxSteps int
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. Default: discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithMaxSteps bounds the loop iterations of each kernel run.
// Default: interp.DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(h *Harness) { h.maxSteps = n }
}

// New returns a harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxSteps: interp.DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(scenario)
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Validate and lower the kernel
//  2. Pack the inputs in their declared formats
//  3. Run the lowered kernel on fresh outputs
//  4. Compare outputs with expectations or the dense reference
//
// Failed expectations are reported in the result. The error is reserved
// for scenarios that cannot be run at all, such as malformed input data.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	result := NewResult()
	k := scenario.Kernel.ToKernel(scenario.Name)

	if errs := kernel.Validate(k); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		h.expectLowerError(scenario, result, strings.Join(msgs, "; "))
		return result, nil
	}

	stmt, err := k.Build()
	if err != nil {
		h.expectLowerError(scenario, result, err.Error())
		return result, nil
	}
	result.Stmt = stmt.String()

	opts, err := k.Options(h.logger)
	if err != nil {
		h.expectLowerError(scenario, result, err.Error())
		return result, nil
	}
	lowered, err := lower.Lower(stmt, k.Name, opts...)
	if err != nil {
		h.expectLowerError(scenario, result, err.Error())
		return result, nil
	}
	if scenario.Expect.LowerError != "" {
		result.AddError(fmt.Sprintf("expected lowering to fail with %q, it succeeded", scenario.Expect.LowerError))
		return result, nil
	}
	result.IR = ir.Print(lowered.Function)
	for _, d := range lowered.Decisions {
		result.Decisions = append(result.Decisions, d.String())
	}
	for _, d := range lowered.Diagnostics {
		result.Diagnostics = append(result.Diagnostics, d.Code)
	}
	checkLowering(scenario.Expect, lowered, result)

	assign, err := k.Assignment()
	if err != nil {
		return nil, err
	}
	tensors, dense, err := h.bind(k, assign, scenario.Inputs)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	// The printed IR keeps the scenario's own options; the run always
	// asserts merge order.
	run := lowered.Function
	if !k.Checks {
		checked, err := lower.Lower(stmt, k.Name, append(opts, lower.WithChecks(true))...)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: lowering with checks: %w", scenario.Name, err)
		}
		run = checked.Function
	}

	stats, err := interp.Run(run, tensors,
		interp.WithLogger(h.logger),
		interp.WithMaxSteps(h.maxSteps),
		interp.WithReversedParallel(scenario.ReverseParallel),
	)
	if err != nil {
		switch {
		case scenario.Expect.RunError == "":
			result.AddError(fmt.Sprintf("run failed: %v", err))
		case !strings.Contains(err.Error(), scenario.Expect.RunError):
			result.AddError(fmt.Sprintf("run error %q does not contain %q", err, scenario.Expect.RunError))
		}
		return result, nil
	}
	if scenario.Expect.RunError != "" {
		result.AddError(fmt.Sprintf("expected run to fail with %q, it succeeded", scenario.Expect.RunError))
	}

	for label, n := range stats.Visits {
		result.Visits[label] = n
	}
	result.TotalVisits = stats.Total()
	result.AtomicStores = stats.AtomicStores

	out := outputOf(tensors, assign)
	values, err := out.Dense()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: output %s: %w", scenario.Name, out.Name, err)
	}
	result.Outputs[out.Name] = floats(values)
	result.Stored[out.Name] = len(out.Vals)

	want, ok := scenario.Expect.Dense[out.Name]
	if !ok {
		want, err = Reference(assign, dense)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
	}
	checkRun(scenario.Expect, out.Name, want, result)

	h.logger.Debug("scenario run",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"visits", result.TotalVisits,
		"steps", stats.Steps,
	)
	return result, nil
}

func (h *Harness) expectLowerError(scenario *Scenario, result *Result, msg string) {
	want := scenario.Expect.LowerError
	switch {
	case want == "":
		result.AddError(fmt.Sprintf("lowering failed: %s", msg))
	case !strings.Contains(msg, want):
		result.AddError(fmt.Sprintf("lowering error %q does not contain %q", msg, want))
	}
	h.logger.Debug("scenario lowering failed", "scenario", scenario.Name, "error", msg)
}

// bind packs every input and creates an empty tensor for the output. It
// also returns the dense contents of the inputs for the reference.
func (h *Harness) bind(k *kernel.Kernel, assign *notation.Assignment, inputs map[string]TensorData) ([]*tensor.Tensor, map[string][]float64, error) {
	outName := assign.Lhs.Tensor.Name
	var tensors []*tensor.Tensor
	dense := make(map[string][]float64)
	for _, decl := range k.Tensors {
		tv, err := decl.Var()
		if err != nil {
			return nil, nil, err
		}
		if decl.Name == outName {
			tensors = append(tensors, tensor.New(tv.Name, tv.Type, tv.Shape, tv.Format))
			continue
		}
		data, ok := inputs[decl.Name]
		if !ok {
			return nil, nil, fmt.Errorf("no input data for %s", decl.Name)
		}
		entries, err := data.entries(tv.Shape, tv.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("input %s: %w", decl.Name, err)
		}
		t, err := tensor.Pack(tv.Name, tv.Type, tv.Shape, tv.Format, entries)
		if err != nil {
			return nil, nil, err
		}
		values, err := t.Dense()
		if err != nil {
			return nil, nil, err
		}
		tensors = append(tensors, t)
		dense[decl.Name] = floats(values)
	}
	for name := range inputs {
		if name == outName {
			return nil, nil, fmt.Errorf("input data given for output %s", name)
		}
	}
	return tensors, dense, nil
}

func (d TensorData) entries(shape []int, kind typed.Kind) ([]tensor.Entry, error) {
	size := 1
	for _, n := range shape {
		size *= n
	}
	var out []tensor.Entry
	if d.Dense != nil {
		if len(d.Dense) != size {
			return nil, fmt.Errorf("dense data has %d values, want %d", len(d.Dense), size)
		}
		for i, x := range d.Dense {
			if x != 0 {
				out = append(out, tensor.Entry{Coords: tensor.Coords(shape, i), Value: typed.Float(kind, x)})
			}
		}
		return out, nil
	}
	for _, e := range d.Entries {
		out = append(out, tensor.Entry{Coords: e.At, Value: typed.Float(kind, e.Value)})
	}
	return out, nil
}

func outputOf(tensors []*tensor.Tensor, assign *notation.Assignment) *tensor.Tensor {
	for _, t := range tensors {
		if t.Name == assign.Lhs.Tensor.Name {
			return t
		}
	}
	return nil
}

func floats(vals []typed.Value) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v.Float64()
	}
	return out
}

// RunAll runs every scenario, stopping at the first one that cannot run.
func (h *Harness) RunAll(scenarios []*Scenario) (map[string]*Result, error) {
	out := make(map[string]*Result, len(scenarios))
	for _, s := range scenarios {
		r, err := h.Run(s)
		if err != nil {
			return out, err
		}
		out[s.Name] = r
	}
	return out, nil
}
