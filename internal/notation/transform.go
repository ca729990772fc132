package notation

import (
	"fmt"

	"github.com/roach88/tensorc/internal/ir"
)

// Reorder swaps the foralls over a and b, which must lie on one perfectly
// nested chain. Loop annotations move with their variables.
func Reorder(s IndexStmt, a, b *IndexVar) (IndexStmt, error) {
	out, ok := reorder(s, a, b)
	if !ok {
		return nil, SchemaError{
			Code:    ErrUnknownIndexVar,
			Field:   "reorder",
			Message: fmt.Sprintf("%s and %s are not on one forall chain", a, b),
			Stmt:    s.String(),
		}
	}
	return out, nil
}

func reorder(s IndexStmt, a, b *IndexVar) (IndexStmt, bool) {
	switch n := s.(type) {
	case *Forall:
		if n.Var != a && n.Var != b {
			body, ok := reorder(n.Body, a, b)
			return withBody(n, body), ok
		}
		other := b
		if n.Var == b {
			other = a
		}
		var headers []*Forall
		cur := IndexStmt(n)
		for {
			f, ok := cur.(*Forall)
			if !ok {
				return s, false
			}
			headers = append(headers, f)
			if f.Var == other {
				break
			}
			cur = f.Body
		}
		last := len(headers) - 1
		swapped := append([]*Forall(nil), headers...)
		swapped[0], swapped[last] = swapped[last], swapped[0]
		body := headers[last].Body
		for i := last; i >= 0; i-- {
			body = withBody(swapped[i], body)
		}
		return body, true
	case *Where:
		if c, ok := reorder(n.Consumer, a, b); ok {
			return &Where{Consumer: c, Producer: n.Producer}, true
		}
		if p, ok := reorder(n.Producer, a, b); ok {
			return &Where{Consumer: n.Consumer, Producer: p}, true
		}
	case *Sequence:
		if stmts, ok := reorderFirst(n.Stmts, a, b); ok {
			return &Sequence{Stmts: stmts}, true
		}
	case *Multi:
		if stmts, ok := reorderFirst(n.Stmts, a, b); ok {
			return &Multi{Stmts: stmts}, true
		}
	}
	return s, false
}

func reorderFirst(stmts []IndexStmt, a, b *IndexVar) ([]IndexStmt, bool) {
	for i, c := range stmts {
		if r, ok := reorder(c, a, b); ok {
			out := append([]IndexStmt(nil), stmts...)
			out[i] = r
			return out, true
		}
	}
	return stmts, false
}

func withBody(f *Forall, body IndexStmt) *Forall {
	return &Forall{Var: f.Var, Body: body, Kind: f.Kind, Chunk: f.Chunk, Race: f.Race}
}

// Parallelize annotates the forall over v with a loop kind and an output
// race strategy. Chunk is used by ir.ParallelChunked.
func Parallelize(s IndexStmt, v *IndexVar, kind ir.LoopKind, chunk int, race OutputRace) (IndexStmt, error) {
	found := false
	out := mapForalls(s, func(f *Forall) *Forall {
		if f.Var != v {
			return f
		}
		found = true
		return &Forall{Var: f.Var, Body: f.Body, Kind: kind, Chunk: chunk, Race: race}
	})
	if !found {
		return nil, SchemaError{
			Code:    ErrUnknownIndexVar,
			Field:   "parallelize",
			Message: fmt.Sprintf("no forall over %s", v),
			Stmt:    s.String(),
		}
	}
	return out, nil
}

// mapForalls rebuilds s bottom-up, applying fn to every forall.
func mapForalls(s IndexStmt, fn func(*Forall) *Forall) IndexStmt {
	switch n := s.(type) {
	case *Forall:
		return fn(withBody(n, mapForalls(n.Body, fn)))
	case *Where:
		return &Where{Consumer: mapForalls(n.Consumer, fn), Producer: mapForalls(n.Producer, fn)}
	case *Sequence:
		out := make([]IndexStmt, len(n.Stmts))
		for i, c := range n.Stmts {
			out[i] = mapForalls(c, fn)
		}
		return &Sequence{Stmts: out}
	case *Multi:
		out := make([]IndexStmt, len(n.Stmts))
		for i, c := range n.Stmts {
			out[i] = mapForalls(c, fn)
		}
		return &Multi{Stmts: out}
	default:
		return s
	}
}

// Precompute hoists expr into the workspace ws indexed by vars. The body of
// the forall over at (the whole statement when at is nil) must be a
// perfectly nested forall chain ending in an assignment that contains
// expr. The body becomes
//
//	where(consumer, producer)
//
// where the producer computes ws(vars) = expr over the chain variables expr
// and vars use, and the consumer is the original assignment reading ws
// over the chain variables it still uses.
func Precompute(s IndexStmt, at *IndexVar, expr IndexExpr, ws *TensorVar, vars ...*IndexVar) (IndexStmt, error) {
	fail := func(format string, args ...any) (IndexStmt, error) {
		return nil, SchemaError{Code: ErrUnknownIndexVar, Field: "precompute", Message: fmt.Sprintf(format, args...), Stmt: s.String()}
	}
	if ws.Order() != len(vars) {
		return fail("workspace %s has order %d but %d index variables were given", ws.Name, ws.Order(), len(vars))
	}
	if at == nil {
		where, err := precomputeBody(s, nil, expr, ws, vars)
		if err != nil {
			return fail("%v", err)
		}
		return where, nil
	}

	var err error
	found := false
	var rewrite func(IndexStmt, []*IndexVar) IndexStmt
	rewrite = func(s IndexStmt, outer []*IndexVar) IndexStmt {
		switch n := s.(type) {
		case *Forall:
			bound := append(append([]*IndexVar(nil), outer...), n.Var)
			if n.Var == at && !found {
				found = true
				where, perr := precomputeBody(n.Body, bound, expr, ws, vars)
				if perr != nil {
					err = perr
					return s
				}
				return withBody(n, where)
			}
			return withBody(n, rewrite(n.Body, bound))
		case *Where:
			return &Where{Consumer: rewrite(n.Consumer, outer), Producer: rewrite(n.Producer, outer)}
		case *Sequence:
			out := make([]IndexStmt, len(n.Stmts))
			for i, c := range n.Stmts {
				out[i] = rewrite(c, outer)
			}
			return &Sequence{Stmts: out}
		default:
			return s
		}
	}
	out := rewrite(s, nil)
	if !found {
		return fail("no forall over %s", at)
	}
	if err != nil {
		return fail("%v", err)
	}
	return out, nil
}

func precomputeBody(body IndexStmt, outer []*IndexVar, expr IndexExpr, ws *TensorVar, vars []*IndexVar) (IndexStmt, error) {
	var chain []*IndexVar
	cur := body
	for {
		f, ok := cur.(*Forall)
		if !ok {
			break
		}
		chain = append(chain, f.Var)
		cur = f.Body
	}
	assign, ok := cur.(*Assignment)
	if !ok {
		return nil, fmt.Errorf("body is not a forall chain ending in an assignment")
	}
	read := ws.At(vars...)
	rhs := ReplaceExpr(assign.Rhs, expr, read)
	if rhs == assign.Rhs {
		return nil, fmt.Errorf("%s does not contain %s", assign, expr)
	}

	exprVars := ExprIndexVars(expr)
	var producerVars []*IndexVar
	producerReduces := false
	for _, v := range chain {
		if contains(exprVars, v) || contains(vars, v) {
			producerVars = append(producerVars, v)
			if !contains(vars, v) {
				producerReduces = true
			}
		}
	}
	producer := ForallNest(producerVars, &Assignment{
		Lhs:        ws.At(vars...),
		Rhs:        expr,
		Accumulate: producerReduces,
	})

	lhs := assign.Lhs
	used := append(append([]*IndexVar(nil), lhs.Indices...), ExprIndexVars(rhs)...)
	var consumerVars []*IndexVar
	consumerReduces := false
	for _, v := range chain {
		if contains(used, v) {
			consumerVars = append(consumerVars, v)
			if !lhs.Has(v) {
				consumerReduces = true
			}
		}
	}
	reducedOutside := false
	for _, v := range outer {
		if !lhs.Has(v) {
			reducedOutside = true
		}
	}
	userAccumulate := assign.Accumulate && !hasReductionVar(lhs, chain, outer)
	consumer := ForallNest(consumerVars, &Assignment{
		Lhs:        lhs,
		Rhs:        rhs,
		Accumulate: consumerReduces || reducedOutside || userAccumulate,
	})
	return &Where{Consumer: consumer, Producer: producer}, nil
}

func hasReductionVar(lhs *Access, chain, outer []*IndexVar) bool {
	for _, v := range append(append([]*IndexVar(nil), outer...), chain...) {
		if !lhs.Has(v) {
			return true
		}
	}
	return false
}
