package notation

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/roach88/tensorc/internal/typed"
)

// Env resolves names while parsing statements: declared tensors, operators
// with call syntax, and index variables, which are created on first use
// and shared by every statement parsed with the same Env.
type Env struct {
	tensors   map[string]*TensorVar
	operators map[string]*Operator
	vars      map[string]*IndexVar
}

// NewEnv returns an environment holding tensors and the built-in call
// operators.
func NewEnv(tensors ...*TensorVar) *Env {
	env := &Env{
		tensors:   make(map[string]*TensorVar),
		operators: Builtins(),
		vars:      make(map[string]*IndexVar),
	}
	for _, t := range tensors {
		env.tensors[t.Name] = t
	}
	return env
}

// Declare adds a tensor.
func (e *Env) Declare(t *TensorVar) { e.tensors[t.Name] = t }

// Register makes op callable by name.
func (e *Env) Register(op *Operator) { e.operators[op.Name()] = op }

// Tensor returns a declared tensor.
func (e *Env) Tensor(name string) (*TensorVar, bool) {
	t, ok := e.tensors[name]
	return t, ok
}

// Index returns the index variable with the given name, creating it.
func (e *Env) Index(name string) *IndexVar {
	if v, ok := e.vars[name]; ok {
		return v
	}
	v := NewIndexVar(name)
	e.vars[name] = v
	return v
}

// ParseError reports a malformed statement. Pos is the byte offset into
// the source, or -1 when unknown.
type ParseError struct {
	Src     string
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("[%s] parse %q at offset %d: %s", ErrParse, e.Src, e.Pos, e.Message)
	}
	return fmt.Sprintf("[%s] parse %q: %s", ErrParse, e.Src, e.Message)
}

// Parse parses an assignment such as "a(i,j) = b(i,k) * c(k,j)" or
// "y(i) += A(i,j) * x(j)". Expressions use Go operator syntax: + - * /,
// unary minus, parentheses, numeric literals and calls of registered
// operators such as max(b(i), c(i)).
func (e *Env) Parse(src string) (*Assignment, error) {
	lhsSrc, rhsSrc, accumulate, err := splitAssignment(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{env: e, src: src, offset: 0}
	lhsExpr, err := p.parse(lhsSrc)
	if err != nil {
		return nil, err
	}
	lhs, ok := lhsExpr.(*Access)
	if !ok {
		return nil, &ParseError{Src: src, Pos: 0, Message: "left-hand side must be a tensor access"}
	}
	p.offset = len(src) - len(rhsSrc)
	rhs, err := p.parse(rhsSrc)
	if err != nil {
		return nil, err
	}
	return &Assignment{Lhs: lhs, Rhs: rhs, Accumulate: accumulate}, nil
}

// ParseExpr parses an expression such as "B(i,k) * C(k,j)" with the same
// rules as the right-hand side of Parse.
func (e *Env) ParseExpr(src string) (IndexExpr, error) {
	p := &exprParser{env: e, src: src}
	return p.parse(src)
}

// Parse parses src against a fresh environment holding tensors.
func Parse(src string, tensors ...*TensorVar) (*Assignment, error) {
	return NewEnv(tensors...).Parse(src)
}

// MustParse is like Parse but panics on error.
// Use only in tests or for literal statements.
func MustParse(src string, tensors ...*TensorVar) *Assignment {
	a, err := Parse(src, tensors...)
	if err != nil {
		panic(err)
	}
	return a
}

func splitAssignment(src string) (lhs, rhs string, accumulate bool, err error) {
	if i := strings.Index(src, "+="); i >= 0 {
		return src[:i], src[i+2:], true, nil
	}
	for i := 0; i < len(src); i++ {
		if src[i] != '=' {
			continue
		}
		if i+1 < len(src) && src[i+1] == '=' {
			break
		}
		return src[:i], src[i+1:], false, nil
	}
	return "", "", false, &ParseError{Src: src, Pos: -1, Message: "expected '=' or '+='"}
}

type exprParser struct {
	env    *Env
	src    string
	offset int
}

func (p *exprParser) errorf(pos token.Pos, format string, args ...any) error {
	off := -1
	if pos.IsValid() {
		off = p.offset + int(pos) - 1
	}
	return &ParseError{Src: p.src, Pos: off, Message: fmt.Sprintf(format, args...)}
}

func (p *exprParser) parse(s string) (IndexExpr, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &ParseError{Src: p.src, Pos: p.offset, Message: "empty expression"}
	}
	node, err := parser.ParseExpr(s)
	if err != nil {
		return nil, &ParseError{Src: p.src, Pos: -1, Message: err.Error()}
	}
	return p.expr(node)
}

func (p *exprParser) expr(node ast.Expr) (IndexExpr, error) {
	switch n := node.(type) {
	case *ast.ParenExpr:
		return p.expr(n.X)
	case *ast.Ident:
		t, ok := p.env.tensors[n.Name]
		if !ok {
			return nil, p.errorf(n.Pos(), "undeclared tensor %q", n.Name)
		}
		return t.At(), nil
	case *ast.BasicLit:
		return p.literal(n)
	case *ast.CallExpr:
		return p.call(n)
	case *ast.UnaryExpr:
		x, err := p.expr(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.SUB:
			return Neg.Apply(x), nil
		case token.ADD:
			return x, nil
		}
		return nil, p.errorf(n.OpPos, "unsupported unary operator %s", n.Op)
	case *ast.BinaryExpr:
		op, ok := binaryOperators[n.Op]
		if !ok {
			return nil, p.errorf(n.OpPos, "unsupported operator %s", n.Op)
		}
		x, err := p.expr(n.X)
		if err != nil {
			return nil, err
		}
		y, err := p.expr(n.Y)
		if err != nil {
			return nil, err
		}
		return op.Apply(x, y), nil
	default:
		return nil, p.errorf(node.Pos(), "unsupported expression %T", node)
	}
}

var binaryOperators = map[token.Token]*Operator{
	token.ADD: Add,
	token.SUB: Sub,
	token.MUL: Mul,
	token.QUO: Div,
}

func (p *exprParser) literal(n *ast.BasicLit) (IndexExpr, error) {
	switch n.Kind {
	case token.INT:
		x, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, p.errorf(n.Pos(), "bad integer %s", n.Value)
		}
		return Lit(typed.Int(typed.Int64, x)), nil
	case token.FLOAT:
		x, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, p.errorf(n.Pos(), "bad float %s", n.Value)
		}
		return Float(x), nil
	default:
		return nil, p.errorf(n.Pos(), "unsupported literal %s", n.Value)
	}
}

func (p *exprParser) call(n *ast.CallExpr) (IndexExpr, error) {
	fun, ok := n.Fun.(*ast.Ident)
	if !ok {
		return nil, p.errorf(n.Pos(), "call target must be a name")
	}
	if t, ok := p.env.tensors[fun.Name]; ok {
		vars := make([]*IndexVar, len(n.Args))
		for i, arg := range n.Args {
			id, ok := arg.(*ast.Ident)
			if !ok {
				return nil, p.errorf(arg.Pos(), "index of %s must be an index variable", fun.Name)
			}
			vars[i] = p.env.Index(id.Name)
		}
		return t.At(vars...), nil
	}
	op, ok := p.env.operators[fun.Name]
	if !ok {
		return nil, p.errorf(fun.Pos(), "undeclared tensor or operator %q", fun.Name)
	}
	args := make([]IndexExpr, len(n.Args))
	for i, arg := range n.Args {
		x, err := p.expr(arg)
		if err != nil {
			return nil, err
		}
		args[i] = x
	}
	return op.Apply(args...), nil
}
