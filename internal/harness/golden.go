package harness

import (
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tensorc/internal/ir"
)

// Snapshot captures what a scenario produced, in a form that serializes to
// canonical JSON. Output components travel as strings because canonical
// JSON forbids floats.
type Snapshot struct {
	ScenarioName string
	Stmt         string
	Decisions    []string
	Diagnostics  []string
	Visits       map[string]int
	TotalVisits  int
	Outputs      map[string][]float64
	Stored       map[string]int
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, r *Result) *Snapshot {
	return &Snapshot{
		ScenarioName: name,
		Stmt:         r.Stmt,
		Decisions:    r.Decisions,
		Diagnostics:  r.Diagnostics,
		Visits:       r.Visits,
		TotalVisits:  r.TotalVisits,
		Outputs:      r.Outputs,
		Stored:       r.Stored,
	}
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which
// only handles primitives, lists and string-keyed maps.
func (s *Snapshot) toCanonicalMap() map[string]any {
	visits := make(map[string]any, len(s.Visits))
	for l, n := range s.Visits {
		visits[l] = n
	}
	outputs := make(map[string]any, len(s.Outputs))
	for name, xs := range s.Outputs {
		vals := make([]string, len(xs))
		for i, x := range xs {
			vals[i] = strconv.FormatFloat(x, 'g', -1, 64)
		}
		outputs[name] = vals
	}
	stored := make(map[string]any, len(s.Stored))
	for name, n := range s.Stored {
		stored[name] = n
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"stmt":          s.Stmt,
		"decisions":     nonNil(s.Decisions),
		"diagnostics":   nonNil(s.Diagnostics),
		"visits":        visits,
		"total_visits":  s.TotalVisits,
		"outputs":       outputs,
		"stored":        stored,
	}
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

// Marshal returns the snapshot as canonical JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot run. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
