// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/AleutianAI/AleutianFinance/services/finquery/allowlist"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/AleutianAI/AleutianFinance/services/finquery/warehouse"
)

const (
	// DefaultStatementTimeout bounds a full statement execution.
	DefaultStatementTimeout = 5 * time.Second

	// dryRunTimeout bounds the cheap one-row screening probe.
	dryRunTimeout = 2 * time.Second

	diagnosticMaxLen = 300
)

var limitClausePattern = regexp.MustCompile(`(?i)\blimit\s+(:?[a-zA-Z_][a-zA-Z0-9_]*|[0-9]+)`)

// Outcome is an executed candidate's result. Status distinguishes rows
// from an empty result set explicitly; nobody downstream inspects error
// strings to tell the two apart.
type Outcome struct {
	Status     datatypes.ResultStatus
	Rows       []datatypes.Row
	SQLUsed    string
	ParamsUsed map[string]any
}

// Executor runs SQL candidates against the warehouse. Every candidate
// is re-validated against the allowlist immediately before execution;
// no statement reaches the pool unvalidated, whatever produced it.
type Executor struct {
	pool      warehouse.Pool
	validator *allowlist.Validator
	timeout   time.Duration
	logger    *slog.Logger
}

// NewExecutor builds an Executor. A non-positive timeout takes the
// default statement bound.
func NewExecutor(pool warehouse.Pool, validator *allowlist.Validator, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	return &Executor{pool: pool, validator: validator, timeout: timeout, logger: logger}
}

// Execute runs one candidate: allowlist check, then the bounded query.
func (e *Executor) Execute(ctx context.Context, candidate datatypes.Candidate) (Outcome, error) {
	if res := e.validator.Validate(candidate.SQL, candidate.Params); !res.Valid {
		return Outcome{}, &ValidationError{Reason: res.Reason, Detail: res.Detail}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.pool.Query(execCtx, candidate.SQL, candidate.Params)
	if err != nil {
		if warehouse.IsTimeout(err) {
			return Outcome{}, &TimeoutError{Timeout: e.timeout}
		}
		return Outcome{}, &ExecutionError{Detail: warehouse.TruncateDiagnostic(err, diagnosticMaxLen)}
	}

	status := datatypes.StatusRows
	if len(rows) == 0 {
		status = datatypes.StatusEmpty
	}
	e.logger.Debug("statement executed",
		"rows", len(rows),
		"elapsed", time.Since(start),
	)
	return Outcome{Status: status, Rows: rows, SQLUsed: candidate.SQL, ParamsUsed: candidate.Params}, nil
}

// ExecuteWithFallback tries candidates strictly in order and returns
// the first that validates and runs. A failed candidate is skipped, not
// fatal; a timeout is treated like any other fault. Only after the last
// candidate fails does it return an error, of the exhausted kind when
// more than one candidate was tried.
func (e *Executor) ExecuteWithFallback(ctx context.Context, candidates []datatypes.Candidate) (Outcome, error) {
	var lastErr error
	for i, candidate := range candidates {
		outcome, err := e.Execute(ctx, candidate)
		if err == nil {
			return outcome, nil
		}
		lastErr = err
		e.logger.Warn("SQL candidate failed",
			"candidate", i+1,
			"of", len(candidates),
			"error", err,
		)
	}

	if lastErr == nil {
		return Outcome{}, fmt.Errorf("%w: no candidates produced", ErrAllCandidatesFailed)
	}
	if len(candidates) == 1 {
		return Outcome{}, lastErr
	}
	return Outcome{}, fmt.Errorf("%w: last error: %w", ErrAllCandidatesFailed, lastErr)
}

// DryRun cheaply screens a candidate: the statement's LIMIT is forced
// to 1, it runs under a short timeout, and any fault at all reports
// false. Never used for real results, only to discard hopeless
// generative candidates before the full execution.
func (e *Executor) DryRun(ctx context.Context, candidate datatypes.Candidate) bool {
	probe := CapToOneRow(candidate.SQL)
	if res := e.validator.Validate(probe, candidate.Params); !res.Valid {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, dryRunTimeout)
	defer cancel()

	if _, err := e.pool.Query(probeCtx, probe, candidate.Params); err != nil {
		e.logger.Debug("dry run rejected candidate", "error", err)
		return false
	}
	return true
}

// CapToOneRow rewrites any existing LIMIT value to 1, or appends
// LIMIT 1 when the statement has none.
func CapToOneRow(sql string) string {
	if limitClausePattern.MatchString(sql) {
		return limitClausePattern.ReplaceAllString(sql, "LIMIT 1")
	}
	return sql + " LIMIT 1"
}
