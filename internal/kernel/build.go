package kernel

import (
	"fmt"
	"log/slog"

	"github.com/roach88/tensorc/internal/lower"
	"github.com/roach88/tensorc/internal/notation"
	"github.com/roach88/tensorc/internal/typed"
)

// Build declares the kernel's tensors, parses its expression, concretizes
// it and applies the schedule in order. The kernel should have passed
// Validate.
func (k *Kernel) Build() (notation.IndexStmt, error) {
	env, assign, err := k.parse()
	if err != nil {
		return nil, err
	}
	stmt, err := notation.Concretize(assign)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", k.Name, err)
	}

	for i, d := range k.Schedule {
		stmt, err = apply(env, stmt, d)
		if err != nil {
			return nil, fmt.Errorf("kernel %s: schedule[%d] %s: %w", k.Name, i, d.Op, err)
		}
	}
	return stmt, nil
}

// Assignment returns the kernel's statement before concretization and
// scheduling.
func (k *Kernel) Assignment() (*notation.Assignment, error) {
	_, assign, err := k.parse()
	return assign, err
}

func (k *Kernel) parse() (*notation.Env, *notation.Assignment, error) {
	env := notation.NewEnv()
	for _, t := range k.Tensors {
		tv, err := tensorVar(t)
		if err != nil {
			return nil, nil, fmt.Errorf("kernel %s: tensor %s: %w", k.Name, t.Name, err)
		}
		env.Declare(tv)
	}
	assign, err := env.Parse(k.Expr)
	if err != nil {
		return nil, nil, fmt.Errorf("kernel %s: %w", k.Name, err)
	}
	return env, assign, nil
}

func apply(env *notation.Env, stmt notation.IndexStmt, d Directive) (notation.IndexStmt, error) {
	switch d.Op {
	case OpReorder:
		if len(d.Indices) != 2 {
			return nil, fmt.Errorf("reorder takes two index names, got %d", len(d.Indices))
		}
		return notation.Reorder(stmt, env.Index(d.Indices[0]), env.Index(d.Indices[1]))
	case OpParallelize:
		kind, err := notation.ParseLoopKind(orDefault(d.Kind, "parallel_static"))
		if err != nil {
			return nil, err
		}
		race, err := notation.ParseOutputRace(orDefault(d.Race, "no_races"))
		if err != nil {
			return nil, err
		}
		return notation.Parallelize(stmt, env.Index(d.Index), kind, d.Chunk, race)
	case OpPrecompute:
		if d.Workspace == nil {
			return nil, fmt.Errorf("precompute requires a workspace")
		}
		expr, err := env.ParseExpr(d.Expr)
		if err != nil {
			return nil, err
		}
		ws, err := tensorVar(*d.Workspace)
		if err != nil {
			return nil, fmt.Errorf("workspace %s: %w", d.Workspace.Name, err)
		}
		var at *notation.IndexVar
		if d.At != "" {
			at = env.Index(d.At)
		}
		vars := make([]*notation.IndexVar, len(d.Indices))
		for i, name := range d.Indices {
			vars[i] = env.Index(name)
		}
		return notation.Precompute(stmt, at, expr, ws, vars...)
	default:
		return nil, fmt.Errorf("unknown directive %q", d.Op)
	}
}

// Var returns the tensor variable t declares.
func (t TensorDecl) Var() (*notation.TensorVar, error) { return tensorVar(t) }

func tensorVar(t TensorDecl) (*notation.TensorVar, error) {
	kind, err := typed.ParseKind(t.Type)
	if err != nil {
		return nil, err
	}
	f, err := parseFormat(t)
	if err != nil {
		return nil, err
	}
	return notation.NewTensor(t.Name, kind, t.Shape, f), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Options returns the lowering options the kernel asks for.
func (k *Kernel) Options(logger *slog.Logger) ([]lower.Option, error) {
	target := lower.TargetC
	if k.Target != "" {
		t, ok := lower.TargetByName(k.Target)
		if !ok {
			return nil, fmt.Errorf("kernel %s: unknown target %q", k.Name, k.Target)
		}
		target = t
	}
	return []lower.Option{
		lower.WithTarget(target),
		lower.WithChecks(k.Checks),
		lower.WithInstrumentation(k.Instrument),
		lower.WithSerialFallback(k.SerialFallback),
		lower.WithLogger(logger),
	}, nil
}

// TargetName returns the target the kernel lowers for.
func (k *Kernel) TargetName() string {
	return orDefault(k.Target, lower.TargetC.Name)
}

// Lower builds and lowers the kernel into a function named after it.
func (k *Kernel) Lower(logger *slog.Logger) (*lower.Result, error) {
	stmt, err := k.Build()
	if err != nil {
		return nil, err
	}
	opts, err := k.Options(logger)
	if err != nil {
		return nil, err
	}
	return lower.Lower(stmt, k.Name, opts...)
}

// RequestOptions returns what, together with the concrete statement and
// target, identifies a compilation request. The statement text names
// tensors but not their storage, so declarations are included.
func (k *Kernel) RequestOptions() map[string]any {
	decls := make([]any, 0, len(k.Tensors))
	for _, t := range k.Tensors {
		decls = append(decls, declOptions(t))
	}
	var workspaces []any
	for _, d := range k.Schedule {
		if d.Workspace != nil {
			workspaces = append(workspaces, declOptions(*d.Workspace))
		}
	}
	return map[string]any{
		"name":            k.Name,
		"tensors":         decls,
		"workspaces":      workspaces,
		"checks":          k.Checks,
		"instrument":      k.Instrument,
		"serial_fallback": k.SerialFallback,
	}
}

func declOptions(t TensorDecl) map[string]any {
	shape := make([]any, len(t.Shape))
	for i, n := range t.Shape {
		shape[i] = n
	}
	f, err := parseFormat(t)
	formatText := t.Format
	if err == nil {
		formatText = f.String()
	}
	return map[string]any{
		"name":   t.Name,
		"type":   orDefault(t.Type, "float64"),
		"shape":  shape,
		"format": formatText,
	}
}
