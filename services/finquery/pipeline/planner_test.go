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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

func newTestPlanner(t *testing.T) (*Planner, *Router) {
	t.Helper()
	resolver := &fakeResolver{
		table:  map[string]string{"apple": "AAPL", "microsoft": "MSFT"},
		latest: datatypes.Period{FY: intPtr(2025), FQ: intPtr(2), Latest: true},
	}
	return NewPlanner(resolver, 200, discardLogger()), NewRouter(mustCatalog(t), discardLogger())
}

func TestPlan_ResolvesEntityAndBindsParams(t *testing.T) {
	planner, router := newTestPlanner(t)

	routed := router.Route(datatypes.Task{
		Intent:   IntentRevenue,
		Entities: []string{"Apple"},
		Period:   datatypes.Period{FY: intPtr(2023), FQ: intPtr(2)},
	})
	plan := planner.Plan(context.Background(), routed, nil)

	assert.Equal(t, "AAPL", plan.Params["ticker"])
	assert.Equal(t, 2023, plan.Params["fy"])
	assert.Equal(t, 2, plan.Params["fq"])
	assert.Equal(t, DefaultLimit, plan.Params["limit"])
	assert.Equal(t, "revenue_timeseries", plan.TemplateName)
	assert.False(t, plan.Generative)
}

func TestPlan_LatestPeriodBindsExplicitNulls(t *testing.T) {
	planner, router := newTestPlanner(t)

	routed := router.Route(datatypes.Task{
		Intent:   IntentRevenue,
		Entities: []string{"Apple"},
		Period:   datatypes.Period{Latest: true},
	})
	plan := planner.Plan(context.Background(), routed, nil)

	// fy and fq must be present and null, not absent.
	fy, ok := plan.Params["fy"]
	require.True(t, ok)
	assert.Nil(t, fy)
	fq, ok := plan.Params["fq"]
	require.True(t, ok)
	assert.Nil(t, fq)
}

func TestPlan_TickerShapedEntitySkipsResolver(t *testing.T) {
	planner, router := newTestPlanner(t)

	// NVDA is not in the resolver table; its shape alone resolves it.
	routed := router.Route(datatypes.Task{
		Intent:   IntentRevenue,
		Entities: []string{"NVDA"},
		Period:   datatypes.Period{Latest: true},
	})
	plan := planner.Plan(context.Background(), routed, nil)

	assert.Equal(t, "NVDA", plan.Params["ticker"])
}

func TestPlan_UnresolvedEntityKeepsNilTicker(t *testing.T) {
	planner, router := newTestPlanner(t)

	routed := router.Route(datatypes.Task{
		Intent:   IntentRevenue,
		Entities: []string{"Nonesuch Industrials"},
		Period:   datatypes.Period{Latest: true},
	})
	plan := planner.Plan(context.Background(), routed, nil)

	require.Len(t, plan.EntitiesResolved, 1)
	assert.Nil(t, plan.EntitiesResolved[0].Ticker)
	assert.Nil(t, plan.Params["ticker"])
}

func TestPlan_CompareBindsFirstTwoResolvedTickers(t *testing.T) {
	planner, router := newTestPlanner(t)

	routed := router.Route(datatypes.Task{
		Intent:   IntentCompare,
		Entities: []string{"Apple", "Microsoft"},
		Period:   datatypes.Period{FY: intPtr(2023)},
	})
	plan := planner.Plan(context.Background(), routed, nil)

	assert.Equal(t, "AAPL", plan.Params["t1"])
	assert.Equal(t, "MSFT", plan.Params["t2"])
}

func TestPlan_CompareDedupesRepeatedResolutions(t *testing.T) {
	planner, router := newTestPlanner(t)

	// Both mentions resolve to the same company; a self-comparison
	// must not slip through as t1 == t2.
	routed := router.Route(datatypes.Task{
		Intent:   IntentCompare,
		Entities: []string{"Apple", "AAPL"},
		Period:   datatypes.Period{FY: intPtr(2023)},
	})
	plan := planner.Plan(context.Background(), routed, nil)

	assert.Equal(t, "AAPL", plan.Params["t1"])
	_, bound := plan.Params["t2"]
	assert.False(t, bound, "a duplicate resolution must not fill t2")
}

func TestPlan_CompareWithOneResolvedLeavesT2Unbound(t *testing.T) {
	planner, router := newTestPlanner(t)

	routed := router.Route(datatypes.Task{
		Intent:   IntentCompare,
		Entities: []string{"Apple", "Nonesuch"},
		Period:   datatypes.Period{FY: intPtr(2023)},
	})
	plan := planner.Plan(context.Background(), routed, nil)

	assert.Equal(t, "AAPL", plan.Params["t1"])
	_, bound := plan.Params["t2"]
	assert.False(t, bound, "t2 must stay unbound and fail validation downstream")
}

func TestPlan_CompareAtLatestAnchorsOnCalendar(t *testing.T) {
	planner, router := newTestPlanner(t)

	routed := router.Route(datatypes.Task{
		Intent:   IntentCompare,
		Entities: []string{"Apple", "Microsoft"},
		Period:   datatypes.Period{Latest: true},
	})
	plan := planner.Plan(context.Background(), routed, nil)

	// Both companies are measured at the resolver's latest period.
	assert.Equal(t, 2025, plan.Params["fy"])
	assert.Equal(t, 2, plan.Params["fq"])
}

func TestPlan_SessionSuppliesTickersAndPeriod(t *testing.T) {
	planner, router := newTestPlanner(t)
	state := &datatypes.SessionState{
		LastTickers: []string{"MSFT"},
		LastPeriod:  &datatypes.Period{FY: intPtr(2022), FQ: intPtr(4)},
	}

	// "what about margins" names neither company nor period.
	routed := router.Route(datatypes.Task{
		Intent: IntentMargins,
		Period: datatypes.Period{Latest: true},
	})
	plan := planner.Plan(context.Background(), routed, state)

	assert.Equal(t, "MSFT", plan.Params["ticker"])
	assert.Equal(t, 2022, plan.Params["fy"])
	assert.Equal(t, 4, plan.Params["fq"])
}

func TestPlan_ExplicitEntityBeatsSession(t *testing.T) {
	planner, router := newTestPlanner(t)
	state := &datatypes.SessionState{LastTickers: []string{"MSFT"}}

	routed := router.Route(datatypes.Task{
		Intent:   IntentRevenue,
		Entities: []string{"Apple"},
		Period:   datatypes.Period{Latest: true},
	})
	plan := planner.Plan(context.Background(), routed, state)

	assert.Equal(t, "AAPL", plan.Params["ticker"])
}

func TestPlan_AliasCacheShortCircuitsResolver(t *testing.T) {
	// An empty resolver table: only the session cache can resolve.
	resolver := &fakeResolver{table: map[string]string{}}
	planner := NewPlanner(resolver, 200, discardLogger())
	router := NewRouter(mustCatalog(t), discardLogger())
	state := &datatypes.SessionState{
		AliasResolutions: map[string]string{"Apple": "AAPL"},
	}

	routed := router.Route(datatypes.Task{
		Intent:   IntentRevenue,
		Entities: []string{"Apple"},
		Period:   datatypes.Period{Latest: true},
	})
	plan := planner.Plan(context.Background(), routed, state)

	assert.Equal(t, "AAPL", plan.Params["ticker"])
}

func TestNormalizeLimit(t *testing.T) {
	planner, _ := newTestPlanner(t)

	cases := []struct {
		name  string
		value any
		want  int
	}{
		{"missing takes default", nil, DefaultLimit},
		{"in range passes", 50, 50},
		{"at cap passes", 200, 200},
		{"above cap clamps", 500, 200},
		{"zero takes default", 0, DefaultLimit},
		{"negative takes default", -3, DefaultLimit},
		{"float coerces", float64(25), 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, planner.NormalizeLimit(tc.value))
		})
	}
}
