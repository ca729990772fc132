package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Marshal(t *testing.T) {
	r := NewResult()
	r.Stmt = "forall(i, a(i) = b(i))"
	r.Decisions = []string{"i: dimension"}
	r.Outputs["a"] = []float64{0.5, 2, -1e-3}
	r.Stored["a"] = 3
	r.Visits["i"] = 3
	r.TotalVisits = 3

	data, err := NewSnapshot("copy", r).Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"decisions":["i: dimension"],"diagnostics":[],"outputs":{"a":["0.5","2","-0.001"]},`+
			`"scenario_name":"copy","stmt":"forall(i, a(i) = b(i))","stored":{"a":3},"total_visits":3,"visits":{"i":3}}`,
		string(data))
}

func TestSnapshot_NilSlices(t *testing.T) {
	data, err := NewSnapshot("empty", &Result{}).Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"decisions":[],"diagnostics":[],"outputs":{},"scenario_name":"empty","stmt":"","stored":{},"total_visits":0,"visits":{}}`,
		string(data))
}

func TestRunWithGolden(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "b_intersect_mul.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
