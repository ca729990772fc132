package notation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SchemaErrors is a collection of schema errors returned as one error.
type SchemaErrors []SchemaError

func (errs SchemaErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// IsSchemaError reports whether err is or wraps a SchemaError or
// SchemaErrors.
func IsSchemaError(err error) bool {
	var one SchemaError
	var many SchemaErrors
	return errors.As(err, &one) || errors.As(err, &many)
}

// Concretize turns an assignment into a forall nest. Free variables (those
// of the left-hand side) come first in left-hand-side order, reduction
// variables after them in order of first use, subject to every access's
// storage order: a level's variable is bound before the next level's.
// Assignments with reduction variables accumulate.
//
// Accesses whose storage orders contradict each other admit no loop order;
// Concretize reports the cycle as an ErrDiscordantOrder schema error.
func Concretize(a *Assignment) (IndexStmt, error) {
	if a == nil || a.Lhs == nil || a.Rhs == nil {
		return nil, SchemaError{Code: ErrNilNode, Field: "stmt", Message: "assignment is missing a side"}
	}
	free := append([]*IndexVar(nil), a.Lhs.Indices...)
	var reduction []*IndexVar
	for _, v := range ExprIndexVars(a.Rhs) {
		if !contains(free, v) {
			reduction = append(reduction, v)
		}
	}
	preferred := append(append([]*IndexVar(nil), free...), reduction...)

	graph := buildOrderGraph(preferred, append([]*Access{a.Lhs}, Accesses(a.Rhs)...))
	for _, scc := range tarjanSCC(graph, preferred) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			return nil, SchemaError{
				Code:    ErrDiscordantOrder,
				Field:   "stmt",
				Message: fmt.Sprintf("operand storage orders conflict: %s", cyclePath(scc, graph)),
				Stmt:    a.String(),
			}
		}
	}

	order := topoOrder(graph, preferred)
	body := &Assignment{Lhs: a.Lhs, Rhs: a.Rhs, Accumulate: a.Accumulate || len(reduction) > 0}
	return ForallNest(order, body), nil
}

// MustConcretize is like Concretize but panics on error.
// Use only in tests.
func MustConcretize(a *Assignment) IndexStmt {
	s, err := Concretize(a)
	if err != nil {
		panic(err)
	}
	return s
}

// orderGraph maps a variable to the variables that must be bound after it.
type orderGraph map[*IndexVar][]*IndexVar

func buildOrderGraph(vars []*IndexVar, accesses []*Access) orderGraph {
	graph := make(orderGraph)
	for _, v := range vars {
		graph[v] = []*IndexVar{}
	}
	for _, acc := range accesses {
		f := acc.Tensor.Format
		if f.Order() != len(acc.Indices) {
			continue
		}
		for l := 0; l+1 < f.Order(); l++ {
			from := acc.Indices[f.Dimension(l)]
			to := acc.Indices[f.Dimension(l+1)]
			if !containsEdge(graph[from], to) {
				graph[from] = append(graph[from], to)
			}
		}
	}
	return graph
}

func containsEdge(edges []*IndexVar, v *IndexVar) bool {
	for _, e := range edges {
		if e == v {
			return true
		}
	}
	return false
}

func hasSelfLoop(v *IndexVar, graph orderGraph) bool {
	return containsEdge(graph[v], v)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm,
// visiting roots in the given order so results are deterministic.
func tarjanSCC(graph orderGraph, nodes []*IndexVar) [][]*IndexVar {
	var (
		index   = 0
		stack   []*IndexVar
		indices = make(map[*IndexVar]int)
		lowlink = make(map[*IndexVar]int)
		onStack = make(map[*IndexVar]bool)
		sccs    [][]*IndexVar
	)

	var strongConnect func(*IndexVar)
	strongConnect = func(v *IndexVar) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []*IndexVar
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// cyclePath renders a cycle through the SCC, e.g. "i -> j -> i".
func cyclePath(scc []*IndexVar, graph orderGraph) string {
	members := make(map[*IndexVar]bool)
	for _, v := range scc {
		members[v] = true
	}
	start := scc[len(scc)-1]
	path := []string{start.Name()}
	visited := map[*IndexVar]bool{start: true}
	current := start
	for {
		var next *IndexVar
		for _, w := range graph[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
				break
			}
		}
		if next == nil {
			break
		}
		path = append(path, next.Name())
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return strings.Join(path, " -> ")
}

// topoOrder sorts an acyclic graph, always picking the ready variable that
// comes first in preferred.
func topoOrder(graph orderGraph, preferred []*IndexVar) []*IndexVar {
	rank := make(map[*IndexVar]int)
	for i, v := range preferred {
		rank[v] = i
	}
	indegree := make(map[*IndexVar]int)
	for _, v := range preferred {
		for _, w := range graph[v] {
			indegree[w]++
		}
	}
	var ready, out []*IndexVar
	for _, v := range preferred {
		if indegree[v] == 0 {
			ready = append(ready, v)
		}
	}
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return rank[ready[i]] < rank[ready[j]] })
		v := ready[0]
		ready = ready[1:]
		out = append(out, v)
		for _, w := range graph[v] {
			indegree[w]--
			if indegree[w] == 0 {
				ready = append(ready, w)
			}
		}
	}
	return out
}
