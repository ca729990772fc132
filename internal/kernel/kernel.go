package kernel

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Kernel is one kernel definition read from CUE: the tensors it touches,
// the index-notation statement it computes and the schedule applied to it.
type Kernel struct {
	Name     string
	Expr     string
	Tensors  []TensorDecl
	Schedule []Directive

	// Target names a built-in lowering target. Empty means "c".
	Target         string
	Checks         bool
	Instrument     bool
	SerialFallback bool

	Pos token.Pos
}

// TensorDecl declares a tensor variable.
type TensorDecl struct {
	Name   string
	Type   string
	Shape  []int
	Format string
	Pos    token.Pos
}

// Directive kinds.
const (
	OpReorder     = "reorder"
	OpParallelize = "parallelize"
	OpPrecompute  = "precompute"
)

// Directive is one scheduling command. Which fields are set depends on Op.
type Directive struct {
	Op string

	// Indices names the variables of a reorder or the workspace indices of
	// a precompute.
	Indices []string

	// parallelize
	Index string
	Kind  string
	Chunk int
	Race  string

	// precompute
	Expr      string
	At        string
	Workspace *TensorDecl

	Pos token.Pos
}

// Compile parses a CUE value into a Kernel.
//
// The value should be the kernel struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`kernel: spmv: { expr: "y(i) = A(i,j) * x(j)", ... }`)
//	k, err := Compile(v.LookupPath(cue.ParsePath("kernel.spmv")))
func Compile(v cue.Value) (*Kernel, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	k := &Kernel{Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		k.Name = labels[len(labels)-1].String()
	}

	exprVal := v.LookupPath(cue.ParsePath("expr"))
	if !exprVal.Exists() {
		return nil, &CompileError{Field: "expr", Message: "expr is required", Pos: v.Pos()}
	}
	expr, err := exprVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	k.Expr = expr

	k.Tensors, err = parseTensors(v)
	if err != nil {
		return nil, err
	}
	if len(k.Tensors) == 0 {
		return nil, &CompileError{Field: "tensor", Message: "at least one tensor is required", Pos: v.Pos()}
	}

	k.Schedule, err = parseSchedule(v)
	if err != nil {
		return nil, err
	}

	if k.Target, err = optionalString(v, "target"); err != nil {
		return nil, err
	}
	if k.Checks, err = optionalBool(v, "checks"); err != nil {
		return nil, err
	}
	if k.Instrument, err = optionalBool(v, "instrument"); err != nil {
		return nil, err
	}
	if k.SerialFallback, err = optionalBool(v, "serial_fallback"); err != nil {
		return nil, err
	}
	return k, nil
}

// parseTensors reads the tensor struct in declaration order.
func parseTensors(v cue.Value) ([]TensorDecl, error) {
	tensorsVal := v.LookupPath(cue.ParsePath("tensor"))
	if !tensorsVal.Exists() {
		return nil, nil
	}
	iter, err := tensorsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var decls []TensorDecl
	for iter.Next() {
		decl, err := parseTensorDecl(iter.Selector().String(), iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func parseTensorDecl(name string, v cue.Value) (TensorDecl, error) {
	decl := TensorDecl{Name: name, Pos: v.Pos()}
	var err error
	if decl.Type, err = optionalString(v, "type"); err != nil {
		return decl, err
	}
	if decl.Format, err = optionalString(v, "format"); err != nil {
		return decl, err
	}

	shapeVal := v.LookupPath(cue.ParsePath("shape"))
	if !shapeVal.Exists() {
		return decl, nil
	}
	iter, err := shapeVal.List()
	if err != nil {
		return decl, formatCUEError(err)
	}
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return decl, &CompileError{
				Field:   fmt.Sprintf("tensor.%s.shape", name),
				Message: "dimensions must be integers",
				Pos:     iter.Value().Pos(),
			}
		}
		decl.Shape = append(decl.Shape, int(n))
	}
	return decl, nil
}

// parseSchedule reads the schedule list. Each element is a struct with a
// single field naming the directive:
//
//	schedule: [
//		{reorder: ["j", "k"]},
//		{parallelize: {index: "i", kind: "parallel_static", race: "no_races"}},
//		{precompute: {expr: "B(i,k) * C(k,j)", at: "i", index: ["j"], workspace: {...}}},
//	]
func parseSchedule(v cue.Value) ([]Directive, error) {
	schedVal := v.LookupPath(cue.ParsePath("schedule"))
	if !schedVal.Exists() {
		return nil, nil
	}
	iter, err := schedVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []Directive
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("schedule[%d]", i)
		fields, err := iter.Value().Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if !fields.Next() {
			return nil, &CompileError{Field: field, Message: "empty directive", Pos: iter.Value().Pos()}
		}
		op := fields.Selector().String()
		body := fields.Value()
		if fields.Next() {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("directive has more than one command (%s, %s)", op, fields.Selector()),
				Pos:     iter.Value().Pos(),
			}
		}
		d, err := parseDirective(field, op, body)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func parseDirective(field, op string, v cue.Value) (Directive, error) {
	d := Directive{Op: op, Pos: v.Pos()}
	var err error
	switch op {
	case OpReorder:
		d.Indices, err = stringList(v, field+".reorder")
	case OpParallelize:
		if d.Index, err = optionalString(v, "index"); err != nil {
			return d, err
		}
		if d.Kind, err = optionalString(v, "kind"); err != nil {
			return d, err
		}
		if d.Race, err = optionalString(v, "race"); err != nil {
			return d, err
		}
		d.Chunk, err = optionalInt(v, "chunk")
	case OpPrecompute:
		if d.Expr, err = optionalString(v, "expr"); err != nil {
			return d, err
		}
		if d.At, err = optionalString(v, "at"); err != nil {
			return d, err
		}
		if idx := v.LookupPath(cue.ParsePath("index")); idx.Exists() {
			if d.Indices, err = stringList(idx, field+".precompute.index"); err != nil {
				return d, err
			}
		}
		wsVal := v.LookupPath(cue.ParsePath("workspace"))
		if !wsVal.Exists() {
			return d, &CompileError{Field: field + ".precompute.workspace", Message: "workspace is required", Pos: v.Pos()}
		}
		name, err := optionalString(wsVal, "name")
		if err != nil {
			return d, err
		}
		ws, err := parseTensorDecl(name, wsVal)
		if err != nil {
			return d, err
		}
		d.Workspace = &ws
	default:
		return d, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unknown directive %q, must be %q, %q or %q", op, OpReorder, OpParallelize, OpPrecompute),
			Pos:     v.Pos(),
		}
	}
	return d, err
}

func stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "expected a list of index names", Pos: iter.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalInt(v cue.Value, path string) (int, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return 0, nil
	}
	n, err := f.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
