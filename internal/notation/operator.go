package notation

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/typed"
)

// LowerFunc lowers an operator application given its lowered operands. A
// nil result means the application contributes nothing (it is zero) and
// the enclosing store is skipped.
type LowerFunc func(args []ir.Expr) ir.Expr

// AlgebraFunc builds the iteration algebra of an application from its
// operands. Regions in the result refer to the operand expressions.
type AlgebraFunc func(args []IndexExpr) Algebra

// PropertyKind names an algebraic property an operator may declare.
type PropertyKind uint8

const (
	PropAnnihilator PropertyKind = iota
	PropIdentity
	PropAssociative
	PropCommutative
)

var propertyKindNames = map[PropertyKind]string{
	PropAnnihilator: "annihilator",
	PropIdentity:    "identity",
	PropAssociative: "associative",
	PropCommutative: "commutative",
}

func (k PropertyKind) String() string { return propertyKindNames[k] }

// Property is a declared algebraic property. Value is meaningful for
// annihilators and identities.
type Property struct {
	Kind  PropertyKind
	Value typed.Value
}

// Annihilator declares that any operand equal to v makes the result v.
func Annihilator(v typed.Value) Property { return Property{Kind: PropAnnihilator, Value: v} }

// Identity declares that operands equal to v do not change the result.
func Identity(v typed.Value) Property { return Property{Kind: PropIdentity, Value: v} }

// Associative declares (a op b) op c == a op (b op c).
func Associative() Property { return Property{Kind: PropAssociative} }

// Commutative declares a op b == b op a.
func Commutative() Property { return Property{Kind: PropCommutative} }

func (p Property) String() string {
	if p.Kind == PropAnnihilator || p.Kind == PropIdentity {
		return fmt.Sprintf("%s(%s)", p.Kind, p.Value)
	}
	return p.Kind.String()
}

// RegionKey is a bit set of operand indices that are present.
type RegionKey uint64

// Present returns the key with the given operand indices set.
func Present(idx ...int) RegionKey {
	var k RegionKey
	for _, i := range idx {
		k |= 1 << uint(i)
	}
	return k
}

// AllPresent returns the key with operands 0..n-1 set.
func AllPresent(n int) RegionKey {
	if n >= 64 {
		return ^RegionKey(0)
	}
	return RegionKey(1)<<uint(n) - 1
}

// Has reports whether operand i is present.
func (k RegionKey) Has(i int) bool { return k&(1<<uint(i)) != 0 }

// Count returns the number of present operands.
func (k RegionKey) Count() int { return bits.OnesCount64(uint64(k)) }

func (k RegionKey) String() string {
	var idx []string
	for i := 0; i < 64; i++ {
		if k.Has(i) {
			idx = append(idx, fmt.Sprint(i))
		}
	}
	return "{" + strings.Join(idx, ",") + "}"
}

// Operator is a registered tensor operator.
type Operator struct {
	name    string
	symbol  string
	lower   LowerFunc
	algebra AlgebraFunc
	props   []Property
	regions map[RegionKey]LowerFunc
}

// OperatorOption configures DefineOperator.
type OperatorOption func(*Operator)

// WithAlgebra sets an explicit algebra function, which takes precedence
// over declared properties.
func WithAlgebra(fn AlgebraFunc) OperatorOption {
	return func(op *Operator) { op.algebra = fn }
}

// WithProperties declares algebraic properties used to infer the algebra
// when no explicit algebra function is set.
func WithProperties(props ...Property) OperatorOption {
	return func(op *Operator) { op.props = append(op.props, props...) }
}

// WithRegion registers a lowering for the case where exactly the operands
// in key are present. The function receives the present operands only, in
// operand order.
func WithRegion(key RegionKey, fn LowerFunc) OperatorOption {
	return func(op *Operator) { op.regions[key] = fn }
}

// WithSymbol makes the operator print infix (binary) or prefix (unary).
func WithSymbol(sym string) OperatorOption {
	return func(op *Operator) { op.symbol = sym }
}

// DefineOperator registers an operator with a general lowering function.
func DefineOperator(name string, lower LowerFunc, opts ...OperatorOption) *Operator {
	op := &Operator{
		name:    name,
		lower:   lower,
		regions: make(map[RegionKey]LowerFunc),
	}
	for _, opt := range opts {
		opt(op)
	}
	return op
}

// Name returns the operator name.
func (op *Operator) Name() string { return op.name }

// Symbol returns the infix symbol, or "" for call syntax.
func (op *Operator) Symbol() string { return op.symbol }

// Properties returns the declared properties.
func (op *Operator) Properties() []Property {
	return append([]Property(nil), op.props...)
}

// Property returns the declared property of the given kind.
func (op *Operator) Property(kind PropertyKind) (Property, bool) {
	for _, p := range op.props {
		if p.Kind == kind {
			return p, true
		}
	}
	return Property{}, false
}

// Apply builds a call of op.
func (op *Operator) Apply(args ...IndexExpr) *Call {
	return &Call{Op: op, Args: append([]IndexExpr(nil), args...)}
}

// UsesDefaultAlgebra reports whether applications of op fall back to
// full-space iteration: no algebra function and no annihilator or identity.
func (op *Operator) UsesDefaultAlgebra() bool {
	if op.algebra != nil {
		return false
	}
	_, ann := op.Property(PropAnnihilator)
	_, id := op.Property(PropIdentity)
	return !ann && !id
}

// Algebra returns the iteration algebra of op applied to args. Regions
// refer to the operands themselves; ExprAlgebra expands them.
func (op *Operator) Algebra(args []IndexExpr) Algebra {
	if op.algebra != nil {
		return op.algebra(args)
	}
	regions := make([]Algebra, len(args))
	for i, a := range args {
		regions[i] = &Region{Expr: a}
	}
	if _, ok := op.Property(PropAnnihilator); ok {
		return IntersectAll(regions...)
	}
	if _, ok := op.Property(PropIdentity); ok {
		return UnionAll(regions...)
	}
	return DefaultAlgebra(regions...)
}

// Lowering returns the lowering for an application of arity n in which the
// operands in present are nonzero. The region override registered for
// exactly that set wins; otherwise the general function is returned and
// the bool is false.
func (op *Operator) Lowering(present RegionKey, n int) (LowerFunc, bool) {
	present &= AllPresent(n)
	if fn, ok := op.regions[present]; ok {
		return fn, true
	}
	return op.lower, false
}

func (op *Operator) String() string { return op.name }

func fold(args []ir.Expr, f func(a, b ir.Expr) ir.Expr) ir.Expr {
	out := args[0]
	for _, a := range args[1:] {
		out = f(out, a)
	}
	return out
}

func first(args []ir.Expr) ir.Expr { return args[0] }

func zeroResult([]ir.Expr) ir.Expr { return nil }

// Built-in operators.
var (
	// Add is addition. Zero is its identity, so it iterates the union of
	// its operands and passes a lone present operand through.
	Add = DefineOperator("add",
		func(args []ir.Expr) ir.Expr { return fold(args, ir.Add) },
		WithSymbol("+"),
		WithProperties(Identity(typed.Int(typed.Int64, 0)), Associative(), Commutative()),
		WithRegion(Present(0), first),
		WithRegion(Present(1), first),
	)

	// Sub is subtraction, a union like Add.
	Sub = DefineOperator("sub",
		func(args []ir.Expr) ir.Expr { return fold(args, ir.Sub) },
		WithSymbol("-"),
		WithProperties(Identity(typed.Int(typed.Int64, 0))),
		WithRegion(Present(0), first),
		WithRegion(Present(1), func(args []ir.Expr) ir.Expr { return ir.Neg(args[0]) }),
	)

	// Mul is multiplication. Zero annihilates, so it iterates the
	// intersection of its operands; a lone operand yields nothing.
	Mul = DefineOperator("mul",
		func(args []ir.Expr) ir.Expr { return fold(args, ir.Mul) },
		WithSymbol("*"),
		WithProperties(Annihilator(typed.Int(typed.Int64, 0)), Identity(typed.Int(typed.Int64, 1)),
			Associative(), Commutative()),
		WithRegion(Present(0), zeroResult),
		WithRegion(Present(1), zeroResult),
	)

	// Div is division. It visits the numerator's coordinates and reads the
	// denominator wherever it is stored; a missing denominator is zero.
	Div = DefineOperator("div",
		func(args []ir.Expr) ir.Expr { return fold(args, ir.Div) },
		WithSymbol("/"),
		WithAlgebra(func(args []IndexExpr) Algebra {
			den := &Region{Expr: args[1]}
			return &Intersect{L: &Region{Expr: args[0]}, R: &Union{L: den, R: &Complement{X: den}}}
		}),
		WithRegion(Present(1), zeroResult),
	)

	// Neg is unary negation.
	Neg = DefineOperator("neg",
		func(args []ir.Expr) ir.Expr { return ir.Neg(args[0]) },
		WithSymbol("-"),
		WithProperties(Annihilator(typed.Int(typed.Int64, 0))),
	)

	// Max and Min declare no properties: they iterate the full space.
	Max = DefineOperator("max", func(args []ir.Expr) ir.Expr { return fold(args, ir.Max) })
	Min = DefineOperator("min", func(args []ir.Expr) ir.Expr { return fold(args, ir.Min) })
)

// Builtins returns the built-in operators that have call syntax, by name.
func Builtins() map[string]*Operator {
	return map[string]*Operator{
		Max.Name(): Max,
		Min.Name(): Min,
	}
}
