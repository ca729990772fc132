package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation matched.
	Pass bool `json:"pass"`

	// Stmt is the concrete statement that was lowered.
	Stmt string `json:"stmt,omitempty"`

	// IR is the printed kernel; empty when lowering failed.
	IR string `json:"-"`

	// Decisions lists the lowering decision for each forall.
	Decisions []string `json:"decisions"`

	// Diagnostics lists the codes lowering reported, in order.
	Diagnostics []string `json:"diagnostics"`

	// Visits counts probe executions by label. Empty unless the kernel is
	// instrumented.
	Visits      map[string]int `json:"visits,omitempty"`
	TotalVisits int            `json:"total_visits"`

	AtomicStores int `json:"atomic_stores"`

	// Outputs holds each output tensor's dense contents after the run.
	Outputs map[string][]float64 `json:"outputs,omitempty"`

	// Stored counts the entries each output stores.
	Stored map[string]int `json:"stored,omitempty"`

	// Errors contains failed expectation messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Decisions:   []string{},
		Diagnostics: []string{},
		Visits:      make(map[string]int),
		Outputs:     make(map[string][]float64),
		Stored:      make(map[string]int),
		Errors:      []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
