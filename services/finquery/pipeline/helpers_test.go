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
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFinance/services/finquery/allowlist"
	"github.com/AleutianAI/AleutianFinance/services/finquery/catalog"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/AleutianAI/AleutianFinance/services/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(n int) *int { return &n }

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return cat
}

func mustValidator(t *testing.T) *allowlist.Validator {
	t.Helper()
	v, err := allowlist.New()
	require.NoError(t, err)
	return v
}

// poolCall records one statement handed to the fake pool.
type poolCall struct {
	SQL    string
	Params map[string]any
}

// fakePool scripts warehouse behavior per statement and records every
// statement it receives.
type fakePool struct {
	mu sync.Mutex

	// respond decides each query's result. When nil every query returns
	// one canned row.
	respond func(sql string, params map[string]any) ([]datatypes.Row, error)

	calls []poolCall
}

func (f *fakePool) Query(ctx context.Context, sql string, params map[string]any) ([]datatypes.Row, error) {
	f.mu.Lock()
	f.calls = append(f.calls, poolCall{SQL: sql, Params: params})
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(sql, params)
	}
	return []datatypes.Row{{"ticker": "AAPL", "metric_value": 1.0}}, nil
}

func (f *fakePool) QueryOne(ctx context.Context, sql string, params map[string]any) (datatypes.Row, error) {
	rows, err := f.Query(ctx, sql, params)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (f *fakePool) Close() {}

func (f *fakePool) callsTo(fragment string) []poolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []poolCall
	for _, call := range f.calls {
		if strings.Contains(call.SQL, fragment) {
			out = append(out, call)
		}
	}
	return out
}

// fakeResolver resolves entities from a fixed table and serves a fixed
// latest period.
type fakeResolver struct {
	table  map[string]string
	latest datatypes.Period
}

func (f *fakeResolver) ResolveEntities(ctx context.Context, entities []string) []datatypes.ResolvedEntity {
	out := make([]datatypes.ResolvedEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, datatypes.ResolvedEntity{Entity: e, Ticker: f.ResolveTicker(ctx, e)})
	}
	return out
}

func (f *fakeResolver) ResolveTicker(_ context.Context, entity string) *string {
	if ticker, ok := f.table[strings.ToLower(entity)]; ok {
		return &ticker
	}
	return nil
}

func (f *fakeResolver) LatestPeriod(context.Context) datatypes.Period {
	return f.latest
}

// fakeLLM returns a fixed completion, recording the prompts it saw.
type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// recordingApprover wraps a fixed decision and counts invocations.
type recordingApprover struct {
	mu       sync.Mutex
	approved bool
	reason   string
	err      error
	requests []ApprovalRequest
}

func (r *recordingApprover) Approve(_ context.Context, req ApprovalRequest) (bool, string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return r.approved, r.reason, r.err
}

func (r *recordingApprover) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}
