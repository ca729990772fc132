package harness

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/tensorc/internal/lower"
)

// Tolerance bounds the absolute difference between an output component and
// its expected value.
const Tolerance = 1e-9

// AssertionError is a failed expectation.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, actual %s", e.Type, e.Expected, e.Actual)
}

func fail(result *Result, typ string, expected, actual any) {
	result.AddError((&AssertionError{
		Type:     typ,
		Expected: fmt.Sprint(expected),
		Actual:   fmt.Sprint(actual),
	}).Error())
}

// checkLowering compares strategies and diagnostics.
func checkLowering(expect Expect, lowered *lower.Result, result *Result) {
	vars := make([]string, 0, len(expect.Strategies))
	for v := range expect.Strategies {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	for _, v := range vars {
		got := make([]string, 0)
		for _, s := range lowered.Strategies(v) {
			got = append(got, s.String())
		}
		if !slices.Equal(expect.Strategies[v], got) {
			fail(result, "strategies "+v, expect.Strategies[v], got)
		}
	}

	for _, code := range expect.Diagnostics {
		if !slices.Contains(result.Diagnostics, code) {
			fail(result, "diagnostic", code, result.Diagnostics)
		}
	}
}

// checkRun compares the output, visit counts and storage after a run.
func checkRun(expect Expect, output string, want []float64, result *Result) {
	got := result.Outputs[output]
	if err := compareDense(want, got); err != nil {
		fail(result, "output "+output, want, fmt.Sprintf("%v (%v)", got, err))
	}

	for label, n := range expect.Visits {
		if result.Visits[label] != n {
			fail(result, "visits "+label, formatVisits(expect.Visits), formatVisits(result.Visits))
			break
		}
	}
	if expect.TotalVisits != nil && *expect.TotalVisits != result.TotalVisits {
		fail(result, "total_visits", *expect.TotalVisits, result.TotalVisits)
	}
	if expect.AtomicStores != nil && *expect.AtomicStores != result.AtomicStores {
		fail(result, "atomic_stores", *expect.AtomicStores, result.AtomicStores)
	}
	for name, n := range expect.Stored {
		if got, ok := result.Stored[name]; !ok || got != n {
			fail(result, "stored "+name, n, got)
		}
	}
}

func compareDense(want, got []float64) error {
	if len(want) != len(got) {
		return fmt.Errorf("length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(want[i]-got[i]) > Tolerance {
			return fmt.Errorf("component %d is %g, want %g", i, got[i], want[i])
		}
	}
	return nil
}

// formatVisits prints a visit map with sorted labels.
func formatVisits(m map[string]int) string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%d", l, m[l])
	}
	return "{" + strings.Join(parts, " ") + "}"
}
