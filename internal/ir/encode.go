package ir

import (
	"fmt"
)

// EncodeNode converts a node into a tree of map[string]any and []any that
// MarshalCanonical accepts. Variables are encoded by name, literals as
// {"kind","value"} with the value rendered as a string so float constants
// survive canonical encoding.
func EncodeNode(n Node) any {
	switch node := n.(type) {
	case nil:
		return map[string]any{"op": "nil"}
	case *Function:
		return map[string]any{
			"op":      "function",
			"name":    node.Name,
			"outputs": encodeParams(node.Outputs),
			"inputs":  encodeParams(node.Inputs),
			"body":    EncodeNode(node.Body),
		}
	case *Var:
		return map[string]any{"op": "var", "name": node.Name, "type": node.Type.String()}
	case *Literal:
		return map[string]any{"op": "lit", "kind": node.Value.Kind().String(), "value": literalString(node.Value)}
	case *Binary:
		return map[string]any{"op": node.Op.String(), "a": EncodeNode(node.A), "b": EncodeNode(node.B)}
	case *Unary:
		name := "neg"
		if node.Op == OpNot {
			name = "not"
		}
		return map[string]any{"op": name, "a": EncodeNode(node.A)}
	case *Load:
		return map[string]any{"op": "load", "array": EncodeNode(node.Array), "index": EncodeNode(node.Index)}
	case *Property:
		return map[string]any{"op": "property", "name": PropertyName(node)}
	case *Call:
		return map[string]any{"op": "call", "func": node.Func, "args": encodeExprs(node.Args), "type": node.Type.String()}
	case *Cast:
		return map[string]any{"op": "cast", "type": node.Type.String(), "a": EncodeNode(node.A)}
	case *Block:
		stmts := make([]any, 0)
		if node != nil {
			for _, s := range node.Stmts {
				stmts = append(stmts, EncodeNode(s))
			}
		}
		return map[string]any{"op": "block", "stmts": stmts}
	case *VarDecl:
		return map[string]any{"op": "decl", "var": EncodeNode(node.Var), "init": EncodeNode(node.Init), "loc": string(node.Loc)}
	case *Assign:
		return map[string]any{"op": "assign", "var": node.Var.Name, "value": EncodeNode(node.Value), "accumulate": node.Accumulate}
	case *Store:
		return map[string]any{
			"op":         "store",
			"array":      EncodeNode(node.Array),
			"index":      EncodeNode(node.Index),
			"value":      EncodeNode(node.Value),
			"accumulate": node.Accumulate,
			"atomic":     node.Atomic,
		}
	case *For:
		m := map[string]any{
			"op":    "for",
			"var":   node.Var.Name,
			"start": EncodeNode(node.Start),
			"end":   EncodeNode(node.End),
			"step":  EncodeNode(node.Step),
			"kind":  node.Kind.String(),
			"chunk": node.Chunk,
			"body":  EncodeNode(node.Body),
		}
		if node.Reduction != nil {
			m["reduction"] = map[string]any{"op": node.Reduction.Op.String(), "var": node.Reduction.Var.Name}
		}
		return m
	case *While:
		return map[string]any{"op": "while", "cond": EncodeNode(node.Cond), "body": EncodeNode(node.Body)}
	case *If:
		m := map[string]any{"op": "if", "cond": EncodeNode(node.Cond), "then": EncodeNode(node.Then)}
		if node.Else != nil {
			m["else"] = EncodeNode(node.Else)
		}
		return m
	case *Allocate:
		return map[string]any{
			"op":      "allocate",
			"array":   EncodeNode(node.Array),
			"size":    EncodeNode(node.Size),
			"realloc": node.Realloc,
			"clear":   node.Clear,
			"loc":     string(node.Loc),
		}
	case *Free:
		return map[string]any{"op": "free", "array": EncodeNode(node.Array)}
	case *Yield:
		return map[string]any{"op": "yield", "stage": node.Stage}
	case *Comment:
		return map[string]any{"op": "comment", "text": node.Text}
	case *Assert:
		return map[string]any{"op": "assert", "cond": EncodeNode(node.Cond), "message": node.Message}
	case *Probe:
		return map[string]any{"op": "probe", "label": node.Label, "coord": EncodeNode(node.Coord)}
	case *Break:
		return map[string]any{"op": "break"}
	case *Evaluate:
		return map[string]any{"op": "evaluate", "expr": EncodeNode(node.Expr)}
	default:
		return map[string]any{"op": fmt.Sprintf("unknown:%T", n)}
	}
}

func encodeParams(vars []*Var) []any {
	out := make([]any, 0, len(vars))
	for _, v := range vars {
		out = append(out, EncodeNode(v))
	}
	return out
}

func encodeExprs(es []Expr) []any {
	out := make([]any, 0, len(es))
	for _, e := range es {
		out = append(out, EncodeNode(e))
	}
	return out
}
