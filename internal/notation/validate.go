package notation

import (
	"fmt"
)

// Schema error codes (E200-E299)
const (
	ErrParse              = "E200" // malformed statement text
	ErrUndeclaredIndexVar = "E201" // index variable not bound by an enclosing forall
	ErrModeMismatch       = "E202" // access index count differs from tensor order
	ErrFormatMismatch     = "E203" // format levels differ from tensor order, or invalid format
	ErrDimensionMismatch  = "E204" // one index variable ranges over different extents
	ErrRepeatedIndex      = "E205" // index variable repeated within one access
	ErrNilNode            = "E206" // nil statement or expression
	ErrRebound            = "E207" // nested forall rebinds an index variable
	ErrWorkspaceUnused    = "E208" // where producer result is not read by its consumer
	ErrDiscordantOrder    = "E209" // operand storage orders admit no loop order
	ErrUnknownIndexVar    = "E210" // transform names a variable the statement does not bind
	ErrNoAlgebra          = "E211" // index variable has no operand to iterate
)

// SchemaError describes a malformed statement. Stmt is the printed
// statement the error was found in.
type SchemaError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Stmt    string `json:"stmt,omitempty"`
}

// Error implements the error interface.
func (e SchemaError) Error() string {
	if e.Stmt != "" {
		return fmt.Sprintf("[%s] %s: %s (in %s)", e.Code, e.Field, e.Message, e.Stmt)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a concrete statement and returns every schema error it
// finds. It does not fail fast.
func Validate(s IndexStmt) []SchemaError {
	v := &validator{extents: make(map[*IndexVar]extent)}
	v.stmt(s, "stmt", nil)
	return v.errs
}

type extent struct {
	size   int
	source string
}

type validator struct {
	errs    []SchemaError
	extents map[*IndexVar]extent
}

func (v *validator) add(code, field string, s fmt.Stringer, format string, args ...any) {
	e := SchemaError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
	if s != nil {
		e.Stmt = s.String()
	}
	v.errs = append(v.errs, e)
}

func (v *validator) stmt(s IndexStmt, field string, bound []*IndexVar) {
	switch n := s.(type) {
	case nil:
		v.add(ErrNilNode, field, nil, "statement is nil")
	case *Assignment:
		v.assignment(n, field, bound)
	case *Forall:
		if n.Var == nil {
			v.add(ErrNilNode, field+".var", n, "forall has no index variable")
		} else if contains(bound, n.Var) {
			v.add(ErrRebound, field+".var", n, "index variable %s is already bound", n.Var)
		}
		v.stmt(n.Body, field+".body", append(append([]*IndexVar(nil), bound...), n.Var))
	case *Where:
		v.stmt(n.Producer, field+".producer", bound)
		v.stmt(n.Consumer, field+".consumer", bound)
		v.where(n, field)
	case *Sequence:
		for i, c := range n.Stmts {
			v.stmt(c, fmt.Sprintf("%s[%d]", field, i), bound)
		}
	case *Multi:
		for i, c := range n.Stmts {
			v.stmt(c, fmt.Sprintf("%s[%d]", field, i), bound)
		}
	default:
		v.add(ErrNilNode, field, nil, "unknown statement type %T", s)
	}
}

func (v *validator) assignment(a *Assignment, field string, bound []*IndexVar) {
	if a.Lhs == nil || a.Rhs == nil {
		v.add(ErrNilNode, field, nil, "assignment is missing a side")
		return
	}
	v.access(a.Lhs, field+".lhs", a, bound)
	for i, acc := range Accesses(a.Rhs) {
		v.access(acc, fmt.Sprintf("%s.rhs[%d]", field, i), a, bound)
	}
}

func (v *validator) access(acc *Access, field string, a *Assignment, bound []*IndexVar) {
	t := acc.Tensor
	if len(acc.Indices) != t.Order() {
		v.add(ErrModeMismatch, field, a, "%s has order %d but is indexed by %d variables",
			t.Name, t.Order(), len(acc.Indices))
	}
	if t.Format.Order() != t.Order() {
		v.add(ErrFormatMismatch, field, a, "%s has %d dimensions but format %q has %d levels",
			t.Name, t.Order(), t.Format, t.Format.Order())
	} else if err := t.Format.Validate(); err != nil {
		v.add(ErrFormatMismatch, field, a, "%s: %v", t.Name, err)
	}
	seen := make(map[*IndexVar]bool)
	for d, iv := range acc.Indices {
		if seen[iv] {
			v.add(ErrRepeatedIndex, field, a, "%s indexes %s twice", iv, t.Name)
		}
		seen[iv] = true
		if !contains(bound, iv) {
			v.add(ErrUndeclaredIndexVar, field, a, "index variable %s is not bound by an enclosing forall", iv)
		}
		if d >= len(t.Shape) {
			continue
		}
		size := t.Shape[d]
		src := fmt.Sprintf("%s dimension %d", t.Name, d)
		if prev, ok := v.extents[iv]; ok && prev.size != size {
			v.add(ErrDimensionMismatch, field, a, "%s ranges over %d (%s) and %d (%s)",
				iv, prev.size, prev.source, size, src)
			continue
		}
		v.extents[iv] = extent{size: size, source: src}
	}
}

func (v *validator) where(w *Where, field string) {
	consumed := make(map[*TensorVar]bool)
	for _, a := range Assignments(w.Consumer) {
		for _, acc := range Accesses(a.Rhs) {
			consumed[acc.Tensor] = true
		}
	}
	for _, t := range Results(w.Producer) {
		if !consumed[t] {
			v.add(ErrWorkspaceUnused, field, w, "workspace %s is produced but never read by the consumer", t.Name)
		}
	}
}

func contains(vars []*IndexVar, v *IndexVar) bool {
	for _, x := range vars {
		if x == v {
			return true
		}
	}
	return false
}

// Extents returns the extent of every index variable in s, taken from the
// shapes of the tensors it indexes.
func Extents(s IndexStmt) map[*IndexVar]int {
	out := make(map[*IndexVar]int)
	for _, acc := range StmtAccesses(s) {
		for d, iv := range acc.Indices {
			if _, ok := out[iv]; !ok && d < len(acc.Tensor.Shape) {
				out[iv] = acc.Tensor.Shape[d]
			}
		}
	}
	return out
}
