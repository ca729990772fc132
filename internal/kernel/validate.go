package kernel

import (
	"fmt"
	"regexp"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/tensorc/internal/format"
	"github.com/roach88/tensorc/internal/lower"
	"github.com/roach88/tensorc/internal/notation"
	"github.com/roach88/tensorc/internal/typed"
)

// Validation error codes (E100-E199)
const (
	// Kernel errors (E101-E109)
	ErrExprEmpty        = "E101" // expr is required
	ErrNoTensors        = "E102" // at least one tensor required
	ErrInvalidType      = "E103" // unknown component type
	ErrInvalidFormat    = "E104" // format does not parse or does not fit the shape
	ErrDuplicateName    = "E105" // duplicate tensor or workspace name
	ErrInvalidShape     = "E106" // dimension is not positive
	ErrInvalidName      = "E107" // tensor or index name is not an identifier
	ErrUnknownTarget    = "E108" // target is not a built-in target
	ErrMissingDirective = "E109" // directive lacks a required field

	// Schedule errors (E110-E119)
	ErrInvalidLoopKind  = "E110" // unknown loop annotation
	ErrInvalidRace      = "E111" // unknown output race strategy
	ErrInvalidChunk     = "E112" // negative chunk size
	ErrWorkspaceOrder   = "E113" // workspace order differs from its index list
	ErrReorderArity     = "E114" // reorder needs exactly two indices
	ErrUnknownDirective = "E115" // directive op is not recognized
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func line(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// Validate checks a compiled kernel and returns every problem found.
// It does not parse the expression; Build reports expression errors.
func Validate(k *Kernel) []ValidationError {
	var errs []ValidationError
	add := func(code, field string, pos token.Pos, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    line(pos),
		})
	}

	if strings.TrimSpace(k.Expr) == "" {
		add(ErrExprEmpty, "expr", k.Pos, "expr is required")
	}
	if len(k.Tensors) == 0 {
		add(ErrNoTensors, "tensor", k.Pos, "at least one tensor is required")
	}
	if k.Target != "" {
		if _, ok := lower.TargetByName(k.Target); !ok {
			add(ErrUnknownTarget, "target", k.Pos, "unknown target %q, must be one of %s", k.Target, strings.Join(lower.TargetNames(), ", "))
		}
	}

	names := make(map[string]bool)
	for _, t := range k.Tensors {
		field := "tensor." + t.Name
		if names[t.Name] {
			add(ErrDuplicateName, field, t.Pos, "duplicate tensor name: %q", t.Name)
		}
		names[t.Name] = true
		errs = append(errs, validateTensorDecl(t, field)...)
	}

	for i, d := range k.Schedule {
		field := fmt.Sprintf("schedule[%d].%s", i, d.Op)
		switch d.Op {
		case OpReorder:
			if len(d.Indices) != 2 {
				add(ErrReorderArity, field, d.Pos, "reorder takes two index names, got %d", len(d.Indices))
			}
			for _, v := range d.Indices {
				if !identPattern.MatchString(v) {
					add(ErrInvalidName, field, d.Pos, "invalid index name %q", v)
				}
			}
		case OpParallelize:
			if d.Index == "" {
				add(ErrMissingDirective, field+".index", d.Pos, "parallelize requires an index")
			}
			if d.Kind != "" {
				if _, err := notation.ParseLoopKind(d.Kind); err != nil {
					add(ErrInvalidLoopKind, field+".kind", d.Pos, "%v", err)
				}
			}
			if d.Race != "" {
				if _, err := notation.ParseOutputRace(d.Race); err != nil {
					add(ErrInvalidRace, field+".race", d.Pos, "%v", err)
				}
			}
			if d.Chunk < 0 {
				add(ErrInvalidChunk, field+".chunk", d.Pos, "chunk must not be negative, got %d", d.Chunk)
			}
		case OpPrecompute:
			if strings.TrimSpace(d.Expr) == "" {
				add(ErrMissingDirective, field+".expr", d.Pos, "precompute requires an expression")
			}
			if d.Workspace == nil {
				add(ErrMissingDirective, field+".workspace", d.Pos, "precompute requires a workspace")
				continue
			}
			ws := *d.Workspace
			if ws.Name == "" {
				add(ErrMissingDirective, field+".workspace.name", d.Pos, "workspace requires a name")
			} else if names[ws.Name] {
				add(ErrDuplicateName, field+".workspace.name", ws.Pos, "duplicate tensor name: %q", ws.Name)
			}
			names[ws.Name] = true
			errs = append(errs, validateTensorDecl(ws, field+".workspace")...)
			if len(ws.Shape) != len(d.Indices) {
				add(ErrWorkspaceOrder, field+".workspace.shape", ws.Pos,
					"workspace %s has order %d but %d index names were given", ws.Name, len(ws.Shape), len(d.Indices))
			}
		default:
			add(ErrUnknownDirective, fmt.Sprintf("schedule[%d]", i), d.Pos, "unknown directive %q", d.Op)
		}
	}
	return errs
}

// validateTensorDecl checks one declaration's name, type, shape and format.
func validateTensorDecl(t TensorDecl, field string) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code, Line: line(t.Pos)})
	}

	if t.Name != "" && !identPattern.MatchString(t.Name) {
		add(ErrInvalidName, field, "invalid tensor name %q", t.Name)
	}
	if _, err := typed.ParseKind(t.Type); err != nil {
		add(ErrInvalidType, field+".type", "%v", err)
	}
	for i, n := range t.Shape {
		if n <= 0 {
			add(ErrInvalidShape, fmt.Sprintf("%s.shape[%d]", field, i), "dimension must be positive, got %d", n)
		}
	}
	f, err := parseFormat(t)
	if err != nil {
		add(ErrInvalidFormat, field+".format", "%v", err)
		return errs
	}
	if f.Order() != len(t.Shape) {
		add(ErrInvalidFormat, field+".format", "format %s has %d levels but the shape has %d dimensions", f, f.Order(), len(t.Shape))
	}
	return errs
}

// parseFormat reads a declaration's format. An empty format is dense in
// every dimension.
func parseFormat(t TensorDecl) (format.Format, error) {
	if t.Format == "" {
		return format.Parse(strings.Repeat("d", len(t.Shape)))
	}
	return format.Parse(t.Format)
}
