package notation

import (
	"fmt"
	"strings"

	"github.com/roach88/tensorc/internal/ir"
)

// IndexStmt is an index-notation statement.
//
// This is a sealed interface implemented by Assignment, Forall, Where,
// Sequence and Multi.
type IndexStmt interface {
	indexStmt()
	String() string
}

// Assignment stores Rhs into Lhs, or adds it when Accumulate is set.
type Assignment struct {
	Lhs        *Access
	Rhs        IndexExpr
	Accumulate bool
}

func (a *Assignment) String() string {
	op := "="
	if a.Accumulate {
		op = "+="
	}
	return fmt.Sprintf("%s %s %s", a.Lhs, op, a.Rhs)
}

// OutputRace says how a parallel forall resolves concurrent writes to the
// same output coordinate.
type OutputRace uint8

const (
	// NoRaces asserts that iterations write disjoint outputs.
	NoRaces OutputRace = iota
	// Atomics makes conflicting updates atomic.
	Atomics
	// Temporary accumulates per thread and merges after the loop.
	Temporary
	// IgnoreRaces leaves races to the caller.
	IgnoreRaces
)

var outputRaceNames = map[OutputRace]string{
	NoRaces:     "no_races",
	Atomics:     "atomics",
	Temporary:   "temporary",
	IgnoreRaces: "ignore_races",
}

func (r OutputRace) String() string { return outputRaceNames[r] }

// ParseOutputRace parses a race strategy name.
func ParseOutputRace(s string) (OutputRace, error) {
	for r, name := range outputRaceNames {
		if name == s {
			return r, nil
		}
	}
	return NoRaces, fmt.Errorf("unknown output race strategy %q", s)
}

// ParseLoopKind parses a loop annotation name such as "parallel_static".
func ParseLoopKind(s string) (ir.LoopKind, error) {
	for _, k := range []ir.LoopKind{ir.Serial, ir.ParallelStatic, ir.ParallelDynamic, ir.ParallelChunked, ir.Vectorized} {
		if k.String() == s {
			return k, nil
		}
	}
	return ir.Serial, fmt.Errorf("unknown loop kind %q", s)
}

// Forall iterates Body over every coordinate of Var. Kind, Chunk and Race
// annotate how the generated loop may execute.
type Forall struct {
	Var   *IndexVar
	Body  IndexStmt
	Kind  ir.LoopKind
	Chunk int
	Race  OutputRace
}

func (f *Forall) String() string {
	if f.Kind == ir.Serial {
		return fmt.Sprintf("forall(%s, %s)", f.Var, f.Body)
	}
	kind := f.Kind.String()
	if f.Kind == ir.ParallelChunked && f.Chunk > 0 {
		kind = fmt.Sprintf("%s(%d)", kind, f.Chunk)
	}
	return fmt.Sprintf("forall(%s, %s, %s, %s)", f.Var, f.Body, kind, f.Race)
}

// Where computes Producer into a workspace that Consumer then reads.
type Where struct {
	Consumer IndexStmt
	Producer IndexStmt
}

func (w *Where) String() string {
	return fmt.Sprintf("where(%s, %s)", w.Consumer, w.Producer)
}

// Sequence runs statements in order; later ones may read what earlier ones
// wrote.
type Sequence struct {
	Stmts []IndexStmt
}

func (s *Sequence) String() string { return "sequence(" + joinStmts(s.Stmts) + ")" }

// Multi runs independent statements that compute different results.
type Multi struct {
	Stmts []IndexStmt
}

func (m *Multi) String() string { return "multi(" + joinStmts(m.Stmts) + ")" }

func joinStmts(stmts []IndexStmt) string {
	parts := make([]string, len(stmts))
	for i, s := range stmts {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

func (*Assignment) indexStmt() {}
func (*Forall) indexStmt()     {}
func (*Where) indexStmt()      {}
func (*Sequence) indexStmt()   {}
func (*Multi) indexStmt()      {}

// ForallNest wraps body in serial foralls over vars, outermost first.
func ForallNest(vars []*IndexVar, body IndexStmt) IndexStmt {
	for i := len(vars) - 1; i >= 0; i-- {
		body = &Forall{Var: vars[i], Body: body}
	}
	return body
}

// Assignments returns every assignment in s in program order.
func Assignments(s IndexStmt) []*Assignment {
	var out []*Assignment
	var walk func(IndexStmt)
	walk = func(s IndexStmt) {
		switch n := s.(type) {
		case *Assignment:
			out = append(out, n)
		case *Forall:
			walk(n.Body)
		case *Where:
			walk(n.Producer)
			walk(n.Consumer)
		case *Sequence:
			for _, c := range n.Stmts {
				walk(c)
			}
		case *Multi:
			for _, c := range n.Stmts {
				walk(c)
			}
		}
	}
	walk(s)
	return out
}

// StmtAccesses returns every access in s: left-hand sides first within each
// assignment.
func StmtAccesses(s IndexStmt) []*Access {
	var out []*Access
	for _, a := range Assignments(s) {
		out = append(out, a.Lhs)
		out = append(out, Accesses(a.Rhs)...)
	}
	return out
}

// IndexVars returns every index variable bound by a forall in s, outermost
// first.
func IndexVars(s IndexStmt) []*IndexVar {
	var out []*IndexVar
	seen := make(map[*IndexVar]bool)
	var walk func(IndexStmt)
	walk = func(s IndexStmt) {
		switch n := s.(type) {
		case *Forall:
			if !seen[n.Var] {
				seen[n.Var] = true
				out = append(out, n.Var)
			}
			walk(n.Body)
		case *Where:
			walk(n.Consumer)
			walk(n.Producer)
		case *Sequence:
			for _, c := range n.Stmts {
				walk(c)
			}
		case *Multi:
			for _, c := range n.Stmts {
				walk(c)
			}
		}
	}
	walk(s)
	return out
}

// Results returns the tensors written by s, in order of first write.
func Results(s IndexStmt) []*TensorVar {
	var out []*TensorVar
	seen := make(map[*TensorVar]bool)
	for _, a := range Assignments(s) {
		if !seen[a.Lhs.Tensor] {
			seen[a.Lhs.Tensor] = true
			out = append(out, a.Lhs.Tensor)
		}
	}
	return out
}

// Arguments returns the tensors only read by s, in order of first read.
func Arguments(s IndexStmt) []*TensorVar {
	written := make(map[*TensorVar]bool)
	for _, t := range Results(s) {
		written[t] = true
	}
	var out []*TensorVar
	seen := make(map[*TensorVar]bool)
	for _, a := range Assignments(s) {
		for _, acc := range Accesses(a.Rhs) {
			t := acc.Tensor
			if !written[t] && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
