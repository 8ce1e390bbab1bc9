// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package warehouse provides the read-only database pool collaborator.
//
// The pool accepts statements with :name placeholders (the catalog wire
// format), rewrites them to positional arguments, and returns rows as
// ordered column-name to value maps. It is safe for concurrent checkout
// across in-flight requests; no multi-statement transactions exist since
// every operation is a single SELECT.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the narrow query interface the pipeline depends on. Production
// code uses PgPool; tests inject fakes.
type Pool interface {
	// Query runs one statement and returns every row in database order.
	Query(ctx context.Context, sql string, params map[string]any) ([]datatypes.Row, error)

	// QueryOne runs one statement and returns the first row, or nil when
	// the result set is empty.
	QueryOne(ctx context.Context, sql string, params map[string]any) (datatypes.Row, error)

	// Close releases the underlying connections.
	Close()
}

// PgPool wraps a pgx connection pool.
type PgPool struct {
	pool *pgxpool.Pool
}

// NewPgPool connects to the warehouse and verifies the connection.
func NewPgPool(ctx context.Context, dsn string) (*PgPool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid warehouse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("warehouse is unreachable: %w", err)
	}

	slog.Info("Warehouse pool initialized",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns)
	return &PgPool{pool: pool}, nil
}

// Query implements Pool.
func (p *PgPool) Query(ctx context.Context, sql string, params map[string]any) ([]datatypes.Row, error) {
	stmt, args := RewriteNamed(sql, params)

	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRows(rows)
}

// QueryOne implements Pool.
func (p *PgPool) QueryOne(ctx context.Context, sql string, params map[string]any) (datatypes.Row, error) {
	all, err := p.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// Close implements Pool.
func (p *PgPool) Close() {
	p.pool.Close()
}

func collectRows(rows pgx.Rows) ([]datatypes.Row, error) {
	fields := rows.FieldDescriptions()
	out := make([]datatypes.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(datatypes.Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var namedArgPattern = regexp.MustCompile(`(^|[^:a-zA-Z0-9_]):([a-zA-Z_][a-zA-Z0-9_]*)`)

// RewriteNamed converts :name placeholders to positional $N arguments.
// Repeated names reuse the same position; names are numbered in order of
// first appearance. Parameters with no placeholder in the statement are
// dropped, since pgx rejects surplus arguments.
func RewriteNamed(sql string, params map[string]any) (string, []any) {
	positions := make(map[string]int)
	var args []any

	rewritten := namedArgPattern.ReplaceAllStringFunc(sql, func(match string) string {
		sub := namedArgPattern.FindStringSubmatch(match)
		prefix, name := sub[1], sub[2]
		pos, seen := positions[name]
		if !seen {
			pos = len(args) + 1
			positions[name] = pos
			args = append(args, params[name])
		}
		return fmt.Sprintf("%s$%d", prefix, pos)
	})

	return rewritten, args
}

// IsTimeout reports whether err was a statement timeout or context
// deadline, as opposed to any other execution fault.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	// Postgres statement_timeout surfaces as SQLSTATE 57014.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57014" {
		return true
	}
	return false
}

// TruncateDiagnostic bounds an error message for inclusion in responses
// and logs.
func TruncateDiagnostic(err error, max int) string {
	msg := strings.TrimSpace(err.Error())
	if len(msg) > max {
		return msg[:max] + "..."
	}
	return msg
}
