// Package db provides the read-only catalog connection used by the audit.
// One pooled connection (capped at a single conn) serves every query in
// strict sequence.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is a single-connection handle to the audited database.
type Conn struct {
	pool *pgxpool.Pool
}

// Connect parses the connection string, opens a pool capped at one
// connection, and verifies it with a ping.
func Connect(ctx context.Context, connStr string) (*Conn, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	// The audit is strictly sequential on one connection.
	cfg.MaxConns = 1
	// SHOW and other utility statements need the simple protocol.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	return &Conn{pool: pool}, nil
}

// Query runs a parameterized query and returns the raw rows for scanning.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.pool.Query(ctx, sql, args...)
}

// QueryRow runs a parameterized query expected to return a single row.
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// ResultSet is an ordered query result: Columns follows the select-list
// order and each row holds values in the same order.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Row is a single ordered row.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value for a column by name.
func (r *Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// FetchAll runs a query and returns every row with column order preserved.
func (c *Conn) FetchAll(ctx context.Context, sql string, args ...any) (*ResultSet, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	rs := &ResultSet{Columns: make([]string, len(descs))}
	for i, d := range descs {
		rs.Columns[i] = d.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return rs, nil
}

// FetchOne runs a query and returns the first row, or nil when there is none.
func (c *Conn) FetchOne(ctx context.Context, sql string, args ...any) (*Row, error) {
	rs, err := c.FetchAll(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(rs.Rows) == 0 {
		return nil, nil
	}
	return &Row{Columns: rs.Columns, Values: rs.Rows[0]}, nil
}

// Close releases the pool.
func (c *Conn) Close() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}

// QuoteIdent double-quotes an identifier. It is the single trusted
// identifier helper: callers must only pass names already read back from
// catalog metadata in the same run, never external input.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QualifiedName returns the quoted schema-qualified relation name, suitable
// for interpolation into sample queries and regclass casts.
func QualifiedName(schema, name string) string {
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}
