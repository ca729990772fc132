package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tensorc/internal/lower"
)

// Entry is one compiled kernel.
type Entry struct {
	RequestID       string             `json:"request_id"`
	KernelID        string             `json:"kernel_id"`
	Name            string             `json:"name"`
	Target          string             `json:"target"`
	Stmt            string             `json:"stmt"`
	Source          string             `json:"source,omitempty"`
	IR              string             `json:"ir"`
	IRJSON          string             `json:"-"`
	Diagnostics     []lower.Diagnostic `json:"diagnostics,omitempty"`
	RunID           string             `json:"run_id"`
	Seq             int64              `json:"seq"`
	CompilerVersion string             `json:"compiler_version"`
	IRVersion       string             `json:"ir_version"`
}

// Put inserts an entry. Uses ON CONFLICT(request_id) DO NOTHING: a second
// write of the same request is ignored and inserted is false.
func (c *Cache) Put(ctx context.Context, e Entry) (inserted bool, err error) {
	diags, err := marshalDiagnostics(e.Diagnostics)
	if err != nil {
		return false, fmt.Errorf("put kernel: %w", err)
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO kernels
		(request_id, kernel_id, name, target, stmt, source, ir_text, ir_json,
		 diagnostics, run_id, seq, compiler_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING
	`,
		e.RequestID,
		e.KernelID,
		e.Name,
		e.Target,
		e.Stmt,
		e.Source,
		e.IR,
		e.IRJSON,
		diags,
		e.RunID,
		e.Seq,
		e.CompilerVersion,
		e.IRVersion,
	)
	if err != nil {
		return false, fmt.Errorf("put kernel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put kernel: rows affected: %w", err)
	}
	return n > 0, nil
}

// Get returns the entry for a request ID.
func (c *Cache) Get(ctx context.Context, requestID string) (Entry, bool, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM kernels WHERE request_id = ?", requestID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get kernel %s: %w", requestID, err)
	}
	return e, true, nil
}

// List returns the entries matching p (nil matches all), ordered by seq.
// Returns an empty slice, not nil, when nothing matches.
func (c *Cache) List(ctx context.Context, p Predicate) ([]Entry, error) {
	query, params, err := compileQuery(p)
	if err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list kernels: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kernels: %w", err)
	}
	return entries, nil
}

// Delete removes the entries matching p and returns how many were removed.
// A nil predicate clears the cache.
func (c *Cache) Delete(ctx context.Context, p Predicate) (int64, error) {
	where, params, err := compilePredicate(p)
	if err != nil {
		return 0, fmt.Errorf("delete kernels: %w", err)
	}
	query := "DELETE FROM kernels"
	if where != "" {
		query += " WHERE " + where
	}
	res, err := c.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("delete kernels: %w", err)
	}
	return res.RowsAffected()
}

// Lookup is one recorded cache lookup.
type Lookup struct {
	Seq       int64  `json:"seq"`
	RequestID string `json:"request_id"`
	RunID     string `json:"run_id"`
	Hit       bool   `json:"hit"`
}

func (c *Cache) recordLookup(ctx context.Context, l Lookup) error {
	hit := 0
	if l.Hit {
		hit = 1
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO lookups (seq, request_id, run_id, hit)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`, l.Seq, l.RequestID, l.RunID, hit)
	if err != nil {
		return fmt.Errorf("record lookup: %w", err)
	}
	return nil
}

// Lookups returns every recorded lookup, oldest first.
func (c *Cache) Lookups(ctx context.Context) ([]Lookup, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT seq, request_id, run_id, hit FROM lookups ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query lookups: %w", err)
	}
	defer rows.Close()

	lookups := []Lookup{}
	for rows.Next() {
		var l Lookup
		var hit int
		if err := rows.Scan(&l.Seq, &l.RequestID, &l.RunID, &hit); err != nil {
			return nil, fmt.Errorf("scan lookup: %w", err)
		}
		l.Hit = hit == 1
		lookups = append(lookups, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lookups: %w", err)
	}
	return lookups, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var diags string
	err := s.Scan(
		&e.RequestID,
		&e.KernelID,
		&e.Name,
		&e.Target,
		&e.Stmt,
		&e.Source,
		&e.IR,
		&e.IRJSON,
		&diags,
		&e.RunID,
		&e.Seq,
		&e.CompilerVersion,
		&e.IRVersion,
	)
	if err != nil {
		return Entry{}, err
	}
	if e.Diagnostics, err = unmarshalDiagnostics(diags); err != nil {
		return Entry{}, err
	}
	return e, nil
}
