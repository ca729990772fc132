package cache

import (
	"fmt"
	"strings"
)

// Predicate filters kernel entries.
//
// This is a sealed interface: Equals, Prefix and And implement it, and
// compilePredicate switches over exactly those.
type Predicate interface {
	predicateNode()
}

// Equals matches entries whose column equals Value.
type Equals struct {
	Column string
	Value  any
}

// Prefix matches entries whose text column starts with Prefix.
type Prefix struct {
	Column string
	Prefix string
}

// And matches entries satisfying every predicate. An empty And matches
// everything.
type And struct {
	Predicates []Predicate
}

func (Equals) predicateNode() {}
func (Prefix) predicateNode() {}
func (And) predicateNode()    {}

// Filterable columns of the kernels table.
var columns = map[string]bool{
	"request_id":       true,
	"kernel_id":        true,
	"name":             true,
	"target":           true,
	"run_id":           true,
	"compiler_version": true,
	"ir_version":       true,
}

const entryColumns = `request_id, kernel_id, name, target, stmt, source, ir_text, ir_json,
	diagnostics, run_id, seq, compiler_version, ir_version`

// compileQuery builds a parameterized SELECT over kernels. Every listing is
// ordered by seq with request_id as tiebreaker.
func compileQuery(p Predicate) (string, []any, error) {
	where, params, err := compilePredicate(p)
	if err != nil {
		return "", nil, err
	}
	sql := "SELECT " + entryColumns + " FROM kernels"
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " ORDER BY seq ASC, request_id ASC COLLATE BINARY"
	return sql, params, nil
}

// compilePredicate returns a WHERE fragment with ? placeholders. Values
// are never interpolated.
func compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "", nil, nil
	case Equals:
		if !columns[pred.Column] {
			return "", nil, fmt.Errorf("unknown column %q", pred.Column)
		}
		return pred.Column + " = ?", []any{pred.Value}, nil
	case Prefix:
		if !columns[pred.Column] {
			return "", nil, fmt.Errorf("unknown column %q", pred.Column)
		}
		return pred.Column + ` LIKE ? ESCAPE '\'`, []any{escapeLike(pred.Prefix) + "%"}, nil
	case And:
		var parts []string
		var params []any
		for _, sub := range pred.Predicates {
			sql, ps, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if sql == "" {
				continue
			}
			parts = append(parts, sql)
			params = append(params, ps...)
		}
		if len(parts) == 0 {
			return "", nil, nil
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
