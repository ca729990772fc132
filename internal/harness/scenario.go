package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tensorc/internal/kernel"
)

// Scenario defines a conformance scenario: a kernel, input data and what
// running the lowered kernel must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Kernel KernelDef `yaml:"kernel"`

	// Inputs holds data for every input tensor, by name.
	Inputs map[string]TensorData `yaml:"inputs"`

	Expect Expect `yaml:"expect"`

	// ReverseParallel runs parallel loops back to front, which must not
	// change the result.
	ReverseParallel bool `yaml:"reverse_parallel,omitempty"`

	// Golden compares the printed IR and run statistics against
	// testdata/golden/<name>.golden.
	Golden bool `yaml:"golden,omitempty"`
}

// KernelDef mirrors the CUE kernel schema in YAML. Tensors are a list so
// declaration order survives decoding.
type KernelDef struct {
	Name           string         `yaml:"name,omitempty"`
	Expr           string         `yaml:"expr"`
	Tensors        []TensorDef    `yaml:"tensors"`
	Schedule       []DirectiveDef `yaml:"schedule,omitempty"`
	Target         string         `yaml:"target,omitempty"`
	Checks         bool           `yaml:"checks,omitempty"`
	Instrument     bool           `yaml:"instrument,omitempty"`
	SerialFallback bool           `yaml:"serial_fallback,omitempty"`
}

// TensorDef declares a tensor.
type TensorDef struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type,omitempty"`
	Shape  []int  `yaml:"shape"`
	Format string `yaml:"format,omitempty"`
}

// DirectiveDef is one scheduling command; exactly one field is set.
type DirectiveDef struct {
	Reorder     []string        `yaml:"reorder,omitempty"`
	Parallelize *ParallelizeDef `yaml:"parallelize,omitempty"`
	Precompute  *PrecomputeDef  `yaml:"precompute,omitempty"`
}

// ParallelizeDef annotates a forall.
type ParallelizeDef struct {
	Index string `yaml:"index"`
	Kind  string `yaml:"kind,omitempty"`
	Chunk int    `yaml:"chunk,omitempty"`
	Race  string `yaml:"race,omitempty"`
}

// PrecomputeDef moves a subexpression into a workspace.
type PrecomputeDef struct {
	Expr      string    `yaml:"expr"`
	At        string    `yaml:"at,omitempty"`
	Index     []string  `yaml:"index"`
	Workspace TensorDef `yaml:"workspace"`
}

// TensorData gives a tensor's contents either densely in row-major order
// or as a list of coordinate entries.
type TensorData struct {
	Dense   []float64   `yaml:"dense,omitempty"`
	Entries []EntryData `yaml:"entries,omitempty"`
}

// EntryData is one stored component.
type EntryData struct {
	At    []int   `yaml:"at"`
	Value float64 `yaml:"value"`
}

// Expect lists what the scenario checks. Unset fields are not checked.
type Expect struct {
	// Dense gives expected output contents in row-major order. Outputs not
	// listed are compared against the dense reference evaluation.
	Dense map[string][]float64 `yaml:"dense,omitempty"`

	// Stored is the number of entries each output stores.
	Stored map[string]int `yaml:"stored,omitempty"`

	// Visits counts probe executions by label; requires instrument.
	Visits      map[string]int `yaml:"visits,omitempty"`
	TotalVisits *int           `yaml:"total_visits,omitempty"`

	AtomicStores *int `yaml:"atomic_stores,omitempty"`

	// Strategies lists the strategy of each forall over an index, in
	// emission order.
	Strategies map[string][]string `yaml:"strategies,omitempty"`

	// Diagnostics lists diagnostic codes lowering must report.
	Diagnostics []string `yaml:"diagnostics,omitempty"`

	// LowerError is a substring of the expected lowering error.
	LowerError string `yaml:"lower_error,omitempty"`

	// RunError is a substring of the expected run error.
	RunError string `yaml:"run_error,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []*Scenario
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(s.Kernel.Expr) == "" {
		return fmt.Errorf("kernel.expr is required")
	}
	if len(s.Kernel.Tensors) == 0 {
		return fmt.Errorf("kernel.tensors is required and must be non-empty")
	}
	for i, d := range s.Kernel.Schedule {
		set := 0
		if d.Reorder != nil {
			set++
		}
		if d.Parallelize != nil {
			set++
		}
		if d.Precompute != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("kernel.schedule[%d]: exactly one of reorder, parallelize, precompute is required", i)
		}
	}
	for name, data := range s.Inputs {
		if data.Dense != nil && data.Entries != nil {
			return fmt.Errorf("inputs.%s: dense and entries are exclusive", name)
		}
	}
	if s.Expect.LowerError != "" && s.Expect.RunError != "" {
		return fmt.Errorf("expect: lower_error and run_error are exclusive")
	}
	return nil
}

// ToKernel converts the definition into a kernel.Kernel named name unless
// the definition names itself.
func (d KernelDef) ToKernel(name string) *kernel.Kernel {
	if d.Name != "" {
		name = d.Name
	}
	k := &kernel.Kernel{
		Name:           name,
		Expr:           d.Expr,
		Target:         d.Target,
		Checks:         d.Checks,
		Instrument:     d.Instrument,
		SerialFallback: d.SerialFallback,
	}
	for _, t := range d.Tensors {
		k.Tensors = append(k.Tensors, t.decl())
	}
	for _, dir := range d.Schedule {
		switch {
		case dir.Reorder != nil:
			k.Schedule = append(k.Schedule, kernel.Directive{Op: kernel.OpReorder, Indices: dir.Reorder})
		case dir.Parallelize != nil:
			p := dir.Parallelize
			k.Schedule = append(k.Schedule, kernel.Directive{
				Op: kernel.OpParallelize, Index: p.Index, Kind: p.Kind, Chunk: p.Chunk, Race: p.Race,
			})
		case dir.Precompute != nil:
			p := dir.Precompute
			ws := p.Workspace.decl()
			k.Schedule = append(k.Schedule, kernel.Directive{
				Op: kernel.OpPrecompute, Expr: p.Expr, At: p.At, Indices: p.Index, Workspace: &ws,
			})
		}
	}
	return k
}

func (t TensorDef) decl() kernel.TensorDecl {
	return kernel.TensorDecl{Name: t.Name, Type: t.Type, Shape: t.Shape, Format: t.Format}
}
