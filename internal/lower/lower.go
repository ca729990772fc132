package lower

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/iterator"
	"github.com/roach88/tensorc/internal/lattice"
	"github.com/roach88/tensorc/internal/notation"
)

// StrategyKind is how a forall was lowered.
type StrategyKind uint8

const (
	StrategyDimension StrategyKind = iota
	StrategyPosition
	StrategyLattice
)

var strategyNames = map[StrategyKind]string{
	StrategyDimension: "dimension",
	StrategyPosition:  "position",
	StrategyLattice:   "lattice",
}

func (k StrategyKind) String() string { return strategyNames[k] }

// Decision records how one forall was lowered. Lattice is nil for the
// dimension strategy.
type Decision struct {
	Var      string
	Strategy StrategyKind
	Lattice  *lattice.Lattice
	Kind     ir.LoopKind
}

func (d Decision) String() string {
	s := fmt.Sprintf("%s: %s", d.Var, d.Strategy)
	if d.Lattice != nil {
		s += " " + d.Lattice.String()
	}
	if d.Kind != ir.Serial {
		s += " " + d.Kind.String()
	}
	return s
}

// Result is a lowered kernel.
type Result struct {
	Function    *ir.Function
	Diagnostics []Diagnostic
	// Decisions lists one entry per lowered forall in emission order. A
	// forall emitted in several merge cases appears once per case.
	Decisions []Decision
}

// Strategies returns the strategy chosen for each forall over the variable
// named v, in emission order.
func (r *Result) Strategies(v string) []StrategyKind {
	var out []StrategyKind
	for _, d := range r.Decisions {
		if d.Var == v {
			out = append(out, d.Strategy)
		}
	}
	return out
}

type lowerer struct {
	cfg     *config
	log     *slog.Logger
	names   *NameGen
	its     *iterator.Set
	stmt    notation.IndexStmt
	result  *Result
	outputs map[*notation.TensorVar]*output
	spaces  map[*notation.TensorVar]*workspace

	// spaceOrder is spaces in allocation order.
	spaceOrder []*workspace
	prologue   *ir.Block
	epilogue   *ir.Block
}

// Lower compiles stmt into a kernel named name. A bare assignment is
// concretized first. Malformed statements return notation.SchemaErrors;
// format, operator and schedule combinations without a lowering return an
// *UnsupportedError.
func Lower(stmt notation.IndexStmt, name string, opts ...Option) (*Result, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if a, ok := stmt.(*notation.Assignment); ok {
		concrete, err := notation.Concretize(a)
		if err != nil {
			return nil, err
		}
		stmt = concrete
	}
	if stmt == nil {
		return nil, notation.SchemaErrors{{Code: notation.ErrNilNode, Field: "stmt", Message: "statement is nil"}}
	}
	if errs := notation.Validate(stmt); len(errs) > 0 {
		return nil, notation.SchemaErrors(errs)
	}

	names := NewNameGen()
	its, err := iterator.Build(stmt, names)
	if err != nil {
		var ce *iterator.CapabilityError
		if errors.As(err, &ce) {
			return nil, &UnsupportedError{Combination: ce.Op, Detail: ce.Error()}
		}
		return nil, err
	}

	l := &lowerer{
		cfg:      cfg,
		log:      cfg.logger,
		names:    names,
		its:      its,
		stmt:     stmt,
		result:   &Result{},
		outputs:  make(map[*notation.TensorVar]*output),
		spaces:   make(map[*notation.TensorVar]*workspace),
		prologue: &ir.Block{},
		epilogue: &ir.Block{},
	}
	if err := l.checkOutputs(); err != nil {
		return nil, err
	}
	l.warnDefaultAlgebra()
	l.allocateOutputs()

	body, err := l.lowerStmt(stmt, newScope())
	if err != nil {
		return nil, err
	}
	l.finalizeOutputs()
	l.freeWorkspaces()

	fn := &ir.Function{
		Name: name,
		Body: ir.Seq(&ir.Comment{Text: stmt.String()}, l.prologue, body, l.epilogue),
	}
	results := make(map[*notation.TensorVar]bool)
	for _, t := range notation.Results(stmt) {
		results[t] = true
	}
	for _, t := range its.Tensors() {
		if results[t] {
			fn.Outputs = append(fn.Outputs, its.TensorVar(t))
		} else {
			fn.Inputs = append(fn.Inputs, its.TensorVar(t))
		}
	}
	l.result.Function = fn

	l.log.Info("kernel lowered",
		"name", name,
		"foralls", len(l.result.Decisions),
		"diagnostics", len(l.result.Diagnostics),
	)
	return l.result, nil
}

// MustLower is like Lower but panics on error.
// Use only in tests.
func MustLower(stmt notation.IndexStmt, name string, opts ...Option) *Result {
	r, err := Lower(stmt, name, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func (l *lowerer) diagnose(code, format string, args ...any) {
	d := Diagnostic{Level: LevelWarning, Code: code, Message: fmt.Sprintf(format, args...)}
	l.result.Diagnostics = append(l.result.Diagnostics, d)
	l.log.Warn(d.Message, "code", code)
}

func (l *lowerer) warnDefaultAlgebra() {
	seen := make(map[*notation.Call]bool)
	for _, a := range notation.Assignments(l.stmt) {
		for _, call := range notation.DefaultAlgebraCalls(a.Rhs) {
			if seen[call] {
				continue
			}
			seen[call] = true
			l.diagnose(WarnDefaultAlgebra,
				"operator %s declares no algebraic properties; %s iterates the full space of its index variables",
				call.Op.Name(), call)
		}
	}
}

func (l *lowerer) lowerStmt(s notation.IndexStmt, sc *scope) (ir.Stmt, error) {
	switch n := s.(type) {
	case *notation.Assignment:
		return l.assignment(n, sc)
	case *notation.Forall:
		return l.forall(n, sc)
	case *notation.Where:
		return l.where(n, sc)
	case *notation.Sequence:
		return l.sequence(n.Stmts, "sequence", sc)
	case *notation.Multi:
		return l.sequence(n.Stmts, "multi", sc)
	default:
		return nil, fmt.Errorf("unknown statement type %T", s)
	}
}

// sequence lowers children in program order, separated by stage boundaries
// on targets that want them.
func (l *lowerer) sequence(stmts []notation.IndexStmt, kind string, sc *scope) (ir.Stmt, error) {
	out := &ir.Block{}
	for i, c := range stmts {
		if i > 0 && l.cfg.target.StageBoundaries {
			out.Append(&ir.Yield{Stage: fmt.Sprintf("%s.%d", kind, i)})
		}
		s, err := l.lowerStmt(c, sc)
		if err != nil {
			return nil, err
		}
		out.Append(s)
	}
	return out, nil
}

// checkOutputs rejects result formats that cannot be assembled.
func (l *lowerer) checkOutputs() error {
	enclosing := enclosingForalls(l.stmt)
	writes := make(map[*notation.TensorVar]int)
	for _, a := range notation.Assignments(l.stmt) {
		t := a.Lhs.Tensor
		if l.its.IsTemporary(t) {
			continue
		}
		writes[t]++
		f := t.Format
		sparse := false
		for lvl, m := range f.Modes {
			switch {
			case m.Kind == format.Singleton:
				return unsupported("singleton output", "%s level %d is singleton; results can only be assembled into dense and compressed levels", t.Name, lvl+1)
			case m.Kind == format.Compressed && !m.Unique:
				return unsupported("non-unique output", "%s level %d stores repeated coordinates", t.Name, lvl+1)
			case m.IsFull() && sparse:
				return unsupported("dense level under compressed output", "%s level %d is dense below a compressed level", t.Name, lvl+1)
			}
			if !m.IsFull() {
				sparse = true
				if err := checkAppendOrder(a, lvl, enclosing[a]); err != nil {
					return err
				}
			}
		}
		if sparse && writes[t] > 1 {
			return unsupported("multiple writes to sparse output", "%s is assembled by more than one assignment", t.Name)
		}
	}
	return nil
}

// checkAppendOrder rejects a reduction loop that encloses the loop over a
// compressed output level: the level's coordinates would be appended once
// per reduction iteration.
func checkAppendOrder(a *notation.Assignment, lvl int, foralls []*notation.Forall) error {
	v := a.Lhs.Indices[a.Lhs.Tensor.Format.Dimension(lvl)]
	for _, f := range foralls {
		if f.Var == v {
			return nil
		}
		if !a.Lhs.Has(f.Var) {
			return unsupported("reduction outside sparse output loop",
				"%s reduces over %s outside the loop over %s that appends to %s",
				a, f.Var, v, a.Lhs.Tensor.Name)
		}
	}
	return nil
}

// enclosingForalls maps every assignment to its enclosing foralls,
// outermost first.
func enclosingForalls(s notation.IndexStmt) map[*notation.Assignment][]*notation.Forall {
	out := make(map[*notation.Assignment][]*notation.Forall)
	var walk func(notation.IndexStmt, []*notation.Forall)
	walk = func(s notation.IndexStmt, outer []*notation.Forall) {
		switch n := s.(type) {
		case *notation.Assignment:
			out[n] = outer
		case *notation.Forall:
			walk(n.Body, append(append([]*notation.Forall(nil), outer...), n))
		case *notation.Where:
			walk(n.Producer, outer)
			walk(n.Consumer, outer)
		case *notation.Sequence:
			for _, c := range n.Stmts {
				walk(c, outer)
			}
		case *notation.Multi:
			for _, c := range n.Stmts {
				walk(c, outer)
			}
		}
	}
	walk(s, nil)
	return out
}
