package ir

import (
	"github.com/roach88/tensorc/internal/typed"
)

// IndexType is the kind of coordinates, positions and loop counters.
const IndexType = typed.Int64

// NewVar returns a scalar variable.
func NewVar(name string, t typed.Kind) *Var {
	return &Var{Name: name, Type: t, Kind: Scalar}
}

// NewIndexVar returns a scalar of IndexType.
func NewIndexVar(name string) *Var {
	return NewVar(name, IndexType)
}

// NewArray returns an array variable with elements of kind t.
func NewArray(name string, t typed.Kind) *Var {
	return &Var{Name: name, Type: t, Kind: Array}
}

// NewTensor returns a tensor parameter with components of kind t.
func NewTensor(name string, t typed.Kind) *Var {
	return &Var{Name: name, Type: t, Kind: Tensor}
}

// Lit wraps a typed value.
func Lit(v typed.Value) *Literal { return &Literal{Value: v} }

// Int returns an IndexType literal.
func Int(n int64) *Literal { return Lit(typed.Int(IndexType, n)) }

// Bool returns a bool literal.
func Bool(b bool) *Literal { return Lit(typed.BoolValue(b)) }

// Zero returns the zero literal of kind t.
func Zero(t typed.Kind) *Literal { return Lit(typed.Zero(t)) }

// TypeOf returns the kind an expression evaluates to.
func TypeOf(e Expr) typed.Kind {
	switch n := e.(type) {
	case *Var:
		return n.Type
	case *Literal:
		return n.Value.Kind()
	case *Binary:
		if n.Op.IsComparison() {
			return typed.Bool
		}
		return typed.Max(TypeOf(n.A), TypeOf(n.B))
	case *Unary:
		if n.Op == OpNot {
			return typed.Bool
		}
		return TypeOf(n.A)
	case *Load:
		return TypeOf(n.Array)
	case *Property:
		if n.Kind == PropVals {
			return n.Tensor.Type
		}
		return IndexType
	case *Call:
		return n.Type
	case *Cast:
		return n.Type
	default:
		return typed.Undefined
	}
}

// literal returns the literal value of e, if it is one.
func literal(e Expr) (typed.Value, bool) {
	if l, ok := e.(*Literal); ok {
		return l.Value, true
	}
	return typed.Value{}, false
}

// IsZero reports whether e is a literal zero.
func IsZero(e Expr) bool {
	v, ok := literal(e)
	return ok && v.IsZero()
}

// IsOne reports whether e is a literal one.
func IsOne(e Expr) bool {
	v, ok := literal(e)
	return ok && v.IsOne()
}

// IsTrue reports whether e is the literal true.
func IsTrue(e Expr) bool {
	v, ok := literal(e)
	return ok && v.Kind() == typed.Bool && v.Bool()
}

// IsFalse reports whether e is the literal false.
func IsFalse(e Expr) bool {
	v, ok := literal(e)
	return ok && v.Kind() == typed.Bool && !v.Bool()
}

// fold evaluates op over two literals with the typed helper.
func fold(op BinaryOp, a, b Expr) (Expr, bool) {
	x, okA := literal(a)
	y, okB := literal(b)
	if !okA || !okB {
		return nil, false
	}
	k := typed.Max(x.Kind(), y.Kind())
	var (
		v   typed.Value
		err error
	)
	switch op {
	case OpAdd:
		v, err = typed.Add(k, x, y)
	case OpSub:
		v, err = typed.Sub(k, x, y)
	case OpMul:
		v, err = typed.Multiply(k, x, y)
	case OpMin:
		v, err = typed.MinOf(k, x, y)
	case OpMax:
		v, err = typed.MaxOf(k, x, y)
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		ord, cerr := typed.Compare(k, x, y)
		if cerr != nil {
			return nil, false
		}
		return Bool(compareHolds(op, ord)), true
	default:
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	return Lit(v), true
}

func compareHolds(op BinaryOp, ord typed.Ordering) bool {
	switch op {
	case OpEq:
		return ord == typed.Equals
	case OpNeq:
		return ord != typed.Equals
	case OpLt:
		return ord == typed.Less
	case OpLte:
		return ord != typed.Greater
	case OpGt:
		return ord == typed.Greater
	default:
		return ord != typed.Less
	}
}

func binary(op BinaryOp, a, b Expr) Expr {
	if folded, ok := fold(op, a, b); ok {
		return folded
	}
	return &Binary{Op: op, A: a, B: b}
}

// Add returns a+b, folding literals and additive zeros.
func Add(a, b Expr) Expr {
	switch {
	case IsZero(a):
		return b
	case IsZero(b):
		return a
	}
	return binary(OpAdd, a, b)
}

// Sub returns a-b.
func Sub(a, b Expr) Expr {
	if IsZero(b) {
		return a
	}
	return binary(OpSub, a, b)
}

// Mul returns a*b, folding literals, ones and zeros.
func Mul(a, b Expr) Expr {
	switch {
	case IsZero(a):
		return a
	case IsZero(b):
		return b
	case IsOne(a):
		return b
	case IsOne(b):
		return a
	}
	return binary(OpMul, a, b)
}

// Div returns a/b.
func Div(a, b Expr) Expr {
	if IsOne(b) {
		return a
	}
	return &Binary{Op: OpDiv, A: a, B: b}
}

// Rem returns a%b.
func Rem(a, b Expr) Expr { return &Binary{Op: OpRem, A: a, B: b} }

// Min returns the smaller of a and b.
func Min(a, b Expr) Expr { return binary(OpMin, a, b) }

// Max returns the larger of a and b.
func Max(a, b Expr) Expr { return binary(OpMax, a, b) }

// Eq returns a == b.
func Eq(a, b Expr) Expr { return binary(OpEq, a, b) }

// Neq returns a != b.
func Neq(a, b Expr) Expr { return binary(OpNeq, a, b) }

// Lt returns a < b.
func Lt(a, b Expr) Expr { return binary(OpLt, a, b) }

// Lte returns a <= b.
func Lte(a, b Expr) Expr { return binary(OpLte, a, b) }

// Gt returns a > b.
func Gt(a, b Expr) Expr { return binary(OpGt, a, b) }

// Gte returns a >= b.
func Gte(a, b Expr) Expr { return binary(OpGte, a, b) }

// And returns the conjunction of conds, dropping literal trues. No operands
// yields true.
func And(conds ...Expr) Expr {
	var out Expr
	for _, c := range conds {
		if c == nil || IsTrue(c) {
			continue
		}
		if IsFalse(c) {
			return c
		}
		if out == nil {
			out = c
			continue
		}
		out = &Binary{Op: OpAnd, A: out, B: c}
	}
	if out == nil {
		return Bool(true)
	}
	return out
}

// Or returns the disjunction of conds, dropping literal falses. No operands
// yields false.
func Or(conds ...Expr) Expr {
	var out Expr
	for _, c := range conds {
		if c == nil || IsFalse(c) {
			continue
		}
		if IsTrue(c) {
			return c
		}
		if out == nil {
			out = c
			continue
		}
		out = &Binary{Op: OpOr, A: out, B: c}
	}
	if out == nil {
		return Bool(false)
	}
	return out
}

// Not negates a boolean.
func Not(a Expr) Expr {
	if v, ok := literal(a); ok && v.Kind() == typed.Bool {
		return Bool(!v.Bool())
	}
	return &Unary{Op: OpNot, A: a}
}

// Neg negates a number.
func Neg(a Expr) Expr {
	if v, ok := literal(a); ok {
		if n, err := typed.Negate(v.Kind(), v); err == nil {
			return Lit(n)
		}
	}
	return &Unary{Op: OpNeg, A: a}
}

// LoadAt returns array[index].
func LoadAt(array, index Expr) *Load { return &Load{Array: array, Index: index} }

// StoreAt returns array[index] = value.
func StoreAt(array, index, value Expr) *Store {
	return &Store{Array: array, Index: index, Value: value}
}

// Incr returns v += 1.
func Incr(v *Var) *Assign {
	return &Assign{Var: v, Value: Int(1), Accumulate: true}
}

// Set returns v = value.
func Set(v *Var, value Expr) *Assign { return &Assign{Var: v, Value: value} }

// Decl declares v with init in the default location.
func Decl(v *Var, init Expr) *VarDecl { return &VarDecl{Var: v, Init: init} }

// Seq builds a block from stmts, dropping nils and splicing nested blocks.
func Seq(stmts ...Stmt) *Block {
	b := &Block{}
	for _, s := range stmts {
		b.Append(s)
	}
	return b
}

// Append adds s to the block, splicing nested blocks.
func (b *Block) Append(stmts ...Stmt) {
	for _, s := range stmts {
		switch n := s.(type) {
		case nil:
			continue
		case *Block:
			if n == nil {
				continue
			}
			b.Stmts = append(b.Stmts, n.Stmts...)
		default:
			b.Stmts = append(b.Stmts, s)
		}
	}
}

// Empty reports whether the block has no statements.
func (b *Block) Empty() bool { return b == nil || len(b.Stmts) == 0 }

// ForRange returns for (v = start; v < end; v++) body.
func ForRange(v *Var, start, end Expr, body Stmt) *For {
	return &For{Var: v, Start: start, End: end, Step: Int(1), Body: body}
}

// IfThen returns if (cond) then, or just then when cond is literally true.
func IfThen(cond Expr, then Stmt) Stmt {
	if IsTrue(cond) {
		return then
	}
	return &If{Cond: cond, Then: then}
}
