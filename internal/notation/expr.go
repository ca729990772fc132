package notation

import (
	"strings"

	"github.com/roach88/tensorc/internal/typed"
)

// IndexExpr is a right-hand-side expression.
//
// This is a sealed interface: Access, Literal and Call are the only
// implementations.
type IndexExpr interface {
	indexExpr()
	String() string
}

// Access reads (or, on a left-hand side, writes) a tensor at the
// coordinates bound to Indices, one per dimension.
type Access struct {
	Tensor  *TensorVar
	Indices []*IndexVar
}

// Dim returns the dimension of the tensor indexed by v, or -1.
func (a *Access) Dim(v *IndexVar) int {
	for d, iv := range a.Indices {
		if iv == v {
			return d
		}
	}
	return -1
}

// Has reports whether v indexes the access.
func (a *Access) Has(v *IndexVar) bool { return a.Dim(v) >= 0 }

func (a *Access) String() string {
	if len(a.Indices) == 0 {
		return a.Tensor.Name
	}
	names := make([]string, len(a.Indices))
	for i, v := range a.Indices {
		names[i] = v.Name()
	}
	return a.Tensor.Name + "(" + strings.Join(names, ",") + ")"
}

// Literal is a scalar constant.
type Literal struct {
	Value typed.Value
}

// Lit returns a literal.
func Lit(v typed.Value) *Literal { return &Literal{Value: v} }

// Float returns a float64 literal.
func Float(x float64) *Literal { return Lit(typed.Float(typed.Float64, x)) }

func (l *Literal) String() string { return l.Value.String() }

// Call applies an operator to its operands.
type Call struct {
	Op   *Operator
	Args []IndexExpr
}

func (c *Call) String() string {
	sym := c.Op.Symbol()
	switch {
	case sym != "" && len(c.Args) == 2:
		prec := symbolPrecedence(sym)
		return wrapOperand(c.Args[0], prec, false) + " " + sym + " " + wrapOperand(c.Args[1], prec, true)
	case sym != "" && len(c.Args) == 1:
		return sym + wrapOperand(c.Args[0], 3, false)
	}
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Op.Name() + "(" + strings.Join(args, ", ") + ")"
}

func symbolPrecedence(sym string) int {
	switch sym {
	case "+", "-":
		return 1
	case "*", "/":
		return 2
	default:
		return 3
	}
}

func wrapOperand(e IndexExpr, parent int, right bool) string {
	call, ok := e.(*Call)
	if !ok || call.Op.Symbol() == "" || len(call.Args) != 2 {
		return e.String()
	}
	prec := symbolPrecedence(call.Op.Symbol())
	if prec < parent || (right && prec == parent) {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func (*Access) indexExpr()  {}
func (*Literal) indexExpr() {}
func (*Call) indexExpr()    {}

// Accesses returns every access in e, left to right.
func Accesses(e IndexExpr) []*Access {
	var out []*Access
	var walk func(IndexExpr)
	walk = func(e IndexExpr) {
		switch n := e.(type) {
		case *Access:
			out = append(out, n)
		case *Call:
			for _, a := range n.Args {
				walk(a)
			}
		}
	}
	walk(e)
	return out
}

// ExprIndexVars returns the index variables of e in order of first use.
func ExprIndexVars(e IndexExpr) []*IndexVar {
	var out []*IndexVar
	seen := make(map[*IndexVar]bool)
	for _, a := range Accesses(e) {
		for _, v := range a.Indices {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// ReplaceExpr returns e with every occurrence of old (by identity, or by
// printed form when old is not a leaf pointer of e) replaced by repl.
func ReplaceExpr(e, old, repl IndexExpr) IndexExpr {
	if e == old || e.String() == old.String() {
		return repl
	}
	call, ok := e.(*Call)
	if !ok {
		return e
	}
	args := make([]IndexExpr, len(call.Args))
	changed := false
	for i, a := range call.Args {
		args[i] = ReplaceExpr(a, old, repl)
		changed = changed || args[i] != a
	}
	if !changed {
		return e
	}
	return &Call{Op: call.Op, Args: args}
}

// ExprType returns the component kind e evaluates to.
func ExprType(e IndexExpr) typed.Kind {
	switch n := e.(type) {
	case *Access:
		return n.Tensor.Type
	case *Literal:
		return n.Value.Kind()
	case *Call:
		k := typed.Undefined
		for _, a := range n.Args {
			k = typed.Max(k, ExprType(a))
		}
		return k
	default:
		return typed.Undefined
	}
}
