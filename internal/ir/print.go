package ir

import (
	"fmt"
	"strings"

	"github.com/roach88/tensorc/internal/typed"
)

// Print renders a node as C-like pseudo code. The output is deterministic
// and used for golden tests and the CLI.
func Print(n Node) string {
	p := &printer{}
	switch node := n.(type) {
	case *Function:
		p.function(node)
	case Stmt:
		p.stmt(node)
	case Expr:
		p.b.WriteString(ExprString(node))
	}
	return p.b.String()
}

// ExprString renders an expression on one line.
func ExprString(e Expr) string {
	var b strings.Builder
	writeExpr(&b, e, 0)
	return b.String()
}

type printer struct {
	b      strings.Builder
	indent int
}

func (p *printer) line(format string, args ...any) {
	p.b.WriteString(strings.Repeat("  ", p.indent))
	fmt.Fprintf(&p.b, format, args...)
	p.b.WriteByte('\n')
}

func (p *printer) function(f *Function) {
	var params []string
	for _, v := range f.Outputs {
		params = append(params, fmt.Sprintf("out %s: tensor<%s>", v.Name, v.Type))
	}
	for _, v := range f.Inputs {
		params = append(params, fmt.Sprintf("in %s: tensor<%s>", v.Name, v.Type))
	}
	p.line("kernel %s(%s) {", f.Name, strings.Join(params, ", "))
	p.indent++
	p.stmt(f.Body)
	p.indent--
	p.line("}")
}

func (p *printer) body(s Stmt) {
	p.indent++
	p.stmt(s)
	p.indent--
}

func (p *printer) stmt(s Stmt) {
	switch n := s.(type) {
	case nil:
	case *Block:
		if n == nil {
			return
		}
		for _, c := range n.Stmts {
			p.stmt(c)
		}
	case *VarDecl:
		p.line("%s%s %s = %s;", locPrefix(n.Loc), n.Var.Type, n.Var.Name, ExprString(n.Init))
	case *Assign:
		op := "="
		if n.Accumulate {
			op = "+="
		}
		p.line("%s %s %s;", n.Var.Name, op, ExprString(n.Value))
	case *Store:
		op := "="
		if n.Accumulate {
			op = "+="
		}
		prefix := ""
		if n.Atomic {
			prefix = "atomic "
		}
		p.line("%s%s[%s] %s %s;", prefix, ExprString(n.Array), ExprString(n.Index), op, ExprString(n.Value))
	case *For:
		if pragma := forPragma(n); pragma != "" {
			p.line("#pragma %s", pragma)
		}
		incr := n.Var.Name + "++"
		if n.Step != nil && !IsOne(n.Step) {
			incr = fmt.Sprintf("%s += %s", n.Var.Name, ExprString(n.Step))
		}
		p.line("for (%s %s = %s; %s < %s; %s) {", n.Var.Type, n.Var.Name,
			ExprString(n.Start), n.Var.Name, ExprString(n.End), incr)
		p.body(n.Body)
		p.line("}")
	case *While:
		p.line("while (%s) {", ExprString(n.Cond))
		p.body(n.Body)
		p.line("}")
	case *If:
		p.ifChain(n, "if")
	case *Allocate:
		verb := "allocate"
		if n.Realloc {
			verb = "reallocate"
		}
		suffix := ""
		if n.Clear {
			suffix = " zeroed"
		}
		p.line("%s %s%s[%s]%s;", verb, locPrefix(n.Loc), ExprString(n.Array), ExprString(n.Size), suffix)
	case *Free:
		p.line("free(%s);", ExprString(n.Array))
	case *Yield:
		p.line("yield %q;", n.Stage)
	case *Comment:
		p.line("// %s", n.Text)
	case *Assert:
		p.line("assert(%s, %q);", ExprString(n.Cond), n.Message)
	case *Probe:
		p.line("probe(%q, %s);", n.Label, ExprString(n.Coord))
	case *Break:
		p.line("break;")
	case *Evaluate:
		p.line("%s;", ExprString(n.Expr))
	default:
		p.line("/* unknown statement %T */", s)
	}
}

func (p *printer) ifChain(n *If, keyword string) {
	p.line("%s (%s) {", keyword, ExprString(n.Cond))
	p.body(n.Then)
	for n.Else != nil {
		next, ok := n.Else.(*If)
		if !ok {
			p.line("} else {")
			p.body(n.Else)
			break
		}
		p.line("} else if (%s) {", ExprString(next.Cond))
		p.body(next.Then)
		n = next
	}
	p.line("}")
}

func forPragma(f *For) string {
	var parts []string
	if f.Kind != Serial {
		part := f.Kind.String()
		if f.Kind == ParallelChunked && f.Chunk > 0 {
			part += fmt.Sprintf(" chunk(%d)", f.Chunk)
		}
		parts = append(parts, part)
	}
	if f.Reduction != nil {
		parts = append(parts, fmt.Sprintf("reduction(%s:%s)", f.Reduction.Op, f.Reduction.Var.Name))
	}
	return strings.Join(parts, " ")
}

func locPrefix(loc MemoryLocation) string {
	if loc == LocDefault {
		return ""
	}
	return "@" + string(loc) + " "
}

// precedence of binary operators for parenthesization; calls bind tightest.
func precedence(op BinaryOp) int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNeq:
		return 3
	case OpLt, OpLte, OpGt, OpGte:
		return 4
	case OpAdd, OpSub:
		return 5
	case OpMul, OpDiv, OpRem:
		return 6
	default:
		return 7
	}
}

func writeExpr(b *strings.Builder, e Expr, parent int) {
	switch n := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Var:
		b.WriteString(n.Name)
	case *Literal:
		b.WriteString(literalString(n.Value))
	case *Binary:
		if n.Op == OpMin || n.Op == OpMax {
			b.WriteString(n.Op.String())
			b.WriteByte('(')
			writeExpr(b, n.A, 0)
			b.WriteString(", ")
			writeExpr(b, n.B, 0)
			b.WriteByte(')')
			return
		}
		prec := precedence(n.Op)
		if prec < parent {
			b.WriteByte('(')
		}
		writeExpr(b, n.A, prec)
		b.WriteString(" " + n.Op.String() + " ")
		writeExpr(b, n.B, prec+1)
		if prec < parent {
			b.WriteByte(')')
		}
	case *Unary:
		if n.Op == OpNot {
			b.WriteByte('!')
		} else {
			b.WriteByte('-')
		}
		writeExpr(b, n.A, 8)
	case *Load:
		writeExpr(b, n.Array, 8)
		b.WriteByte('[')
		writeExpr(b, n.Index, 0)
		b.WriteByte(']')
	case *Property:
		b.WriteString(PropertyName(n))
	case *Call:
		b.WriteString(n.Func)
		b.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			writeExpr(b, a, 0)
		}
		b.WriteByte(')')
	case *Cast:
		fmt.Fprintf(b, "(%s)", n.Type)
		writeExpr(b, n.A, 8)
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

// PropertyName returns the conventional variable name of a tensor
// property, e.g. B2_pos or A_vals.
func PropertyName(p *Property) string {
	switch p.Kind {
	case PropVals, PropValsCapacity:
		return fmt.Sprintf("%s_%s", p.Tensor.Name, p.Kind)
	case PropDimension:
		return fmt.Sprintf("%s%d_%s", p.Tensor.Name, p.Dim+1, p.Kind)
	default:
		return fmt.Sprintf("%s%d_%s", p.Tensor.Name, p.Level+1, p.Kind)
	}
}

func literalString(v typed.Value) string {
	s := v.String()
	if v.Kind().IsFloat() && !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
