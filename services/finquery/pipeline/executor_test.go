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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

const testSelect = "SELECT m.ticker, m.metric_value FROM financial_metrics m WHERE m.ticker = :ticker LIMIT :limit"

func testParams() map[string]any {
	return map[string]any{"ticker": "AAPL", "limit": 10}
}

func TestExecute_RunsValidatedStatement(t *testing.T) {
	pool := &fakePool{}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	outcome, err := exec.Execute(context.Background(),
		datatypes.Candidate{SQL: testSelect, Params: testParams()})

	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusRows, outcome.Status)
	assert.Equal(t, testSelect, outcome.SQLUsed)
	assert.Equal(t, testParams(), outcome.ParamsUsed)
	require.Len(t, pool.calls, 1)
}

func TestExecute_EmptyResultIsExplicit(t *testing.T) {
	pool := &fakePool{respond: func(string, map[string]any) ([]datatypes.Row, error) {
		return nil, nil
	}}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	outcome, err := exec.Execute(context.Background(),
		datatypes.Candidate{SQL: testSelect, Params: testParams()})

	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusEmpty, outcome.Status)
	assert.Empty(t, outcome.Rows)
}

func TestExecute_RejectsInvalidSQLBeforeThePool(t *testing.T) {
	pool := &fakePool{}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	_, err := exec.Execute(context.Background(),
		datatypes.Candidate{SQL: "SELECT x FROM secrets LIMIT 1", Params: map[string]any{}})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Empty(t, pool.calls, "invalid SQL must never reach the warehouse")
}

func TestExecute_ClassifiesTimeout(t *testing.T) {
	pool := &fakePool{respond: func(string, map[string]any) ([]datatypes.Row, error) {
		return nil, context.DeadlineExceeded
	}}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	_, err := exec.Execute(context.Background(),
		datatypes.Candidate{SQL: testSelect, Params: testParams()})

	var toErr *TimeoutError
	require.ErrorAs(t, err, &toErr)
	assert.Equal(t, DefaultStatementTimeout, toErr.Timeout)
	assert.Equal(t, datatypes.ErrKindTimeout, KindOf(err))
}

func TestExecute_ClassifiesExecutionFault(t *testing.T) {
	pool := &fakePool{respond: func(string, map[string]any) ([]datatypes.Row, error) {
		return nil, errors.New("division by zero")
	}}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	_, err := exec.Execute(context.Background(),
		datatypes.Candidate{SQL: testSelect, Params: testParams()})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Detail, "division by zero")
}

// =============================================================================
// Fallback Tests
// =============================================================================

func TestExecuteWithFallback_FirstFailureFallsThrough(t *testing.T) {
	badSQL := "SELECT d.rd_intensity FROM derived_metrics d LIMIT :limit"
	pool := &fakePool{respond: func(sql string, _ map[string]any) ([]datatypes.Row, error) {
		if strings.Contains(sql, "derived_metrics") {
			return nil, errors.New("relation is being rebuilt")
		}
		return []datatypes.Row{{"ticker": "AAPL"}}, nil
	}}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	outcome, err := exec.ExecuteWithFallback(context.Background(), []datatypes.Candidate{
		{SQL: badSQL, Params: map[string]any{"limit": 10}},
		{SQL: testSelect, Params: testParams()},
	})

	require.NoError(t, err)
	assert.Equal(t, testSelect, outcome.SQLUsed)
	assert.Equal(t, testParams(), outcome.ParamsUsed)
	assert.Equal(t, datatypes.StatusRows, outcome.Status)
}

func TestExecuteWithFallback_SingleCandidateKeepsItsErrorKind(t *testing.T) {
	pool := &fakePool{respond: func(string, map[string]any) ([]datatypes.Row, error) {
		return nil, context.DeadlineExceeded
	}}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	_, err := exec.ExecuteWithFallback(context.Background(), []datatypes.Candidate{
		{SQL: testSelect, Params: testParams()},
	})

	assert.Equal(t, datatypes.ErrKindTimeout, KindOf(err))
}

func TestExecuteWithFallback_ExhaustionWrapsLastError(t *testing.T) {
	pool := &fakePool{respond: func(string, map[string]any) ([]datatypes.Row, error) {
		return nil, errors.New("boom")
	}}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	_, err := exec.ExecuteWithFallback(context.Background(), []datatypes.Candidate{
		{SQL: testSelect, Params: testParams()},
		{SQL: testSelect, Params: testParams()},
	})

	require.ErrorIs(t, err, ErrAllCandidatesFailed)
	assert.Equal(t, datatypes.ErrKindExhausted, KindOf(err))
}

func TestExecuteWithFallback_NoCandidates(t *testing.T) {
	exec := NewExecutor(&fakePool{}, mustValidator(t), 0, discardLogger())

	_, err := exec.ExecuteWithFallback(context.Background(), nil)
	require.ErrorIs(t, err, ErrAllCandidatesFailed)
}

// =============================================================================
// Dry Run Tests
// =============================================================================

func TestDryRun_ProbesWithOneRowBound(t *testing.T) {
	pool := &fakePool{}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	ok := exec.DryRun(context.Background(),
		datatypes.Candidate{SQL: testSelect, Params: testParams()})

	assert.True(t, ok)
	require.Len(t, pool.calls, 1)
	assert.Contains(t, pool.calls[0].SQL, "LIMIT 1")
	assert.NotContains(t, pool.calls[0].SQL, ":limit")
}

func TestDryRun_AnyFaultIsFalse(t *testing.T) {
	pool := &fakePool{respond: func(string, map[string]any) ([]datatypes.Row, error) {
		return nil, errors.New("syntax error")
	}}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	assert.False(t, exec.DryRun(context.Background(),
		datatypes.Candidate{SQL: testSelect, Params: testParams()}))
}

func TestDryRun_InvalidCandidateIsFalseWithoutQuerying(t *testing.T) {
	pool := &fakePool{}
	exec := NewExecutor(pool, mustValidator(t), 0, discardLogger())

	ok := exec.DryRun(context.Background(),
		datatypes.Candidate{SQL: "SELECT x FROM secrets", Params: map[string]any{}})

	assert.False(t, ok)
	assert.Empty(t, pool.calls)
}

func TestCapToOneRow(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"replaces placeholder limit",
			"SELECT a FROM t LIMIT :limit",
			"SELECT a FROM t LIMIT 1",
		},
		{
			"replaces literal limit",
			"SELECT a FROM t limit 50",
			"SELECT a FROM t LIMIT 1",
		},
		{
			"appends when absent",
			"SELECT a FROM t",
			"SELECT a FROM t LIMIT 1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CapToOneRow(tc.in))
		})
	}
}
