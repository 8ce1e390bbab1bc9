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
	"log/slog"

	"github.com/AleutianAI/AleutianFinance/pkg/validation"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/AleutianAI/AleutianFinance/services/finquery/resolve"
)

// DefaultLimit is the row cap applied when a task does not carry one.
const DefaultLimit = 10

// Planner turns a routed task into an executable plan: entities resolve
// to tickers, the fiscal period lands in fy/fq params (explicit null for
// a latest-period query), and the row limit is normalized.
type Planner struct {
	resolver resolve.Resolver
	maxLimit int
	logger   *slog.Logger
}

// NewPlanner builds a Planner. maxLimit is the allowlist row cap.
func NewPlanner(resolver resolve.Resolver, maxLimit int, logger *slog.Logger) *Planner {
	return &Planner{resolver: resolver, maxLimit: maxLimit, logger: logger}
}

// Plan fills the routed template's parameters. Session state, when
// present, supplies tickers and period for follow-up questions that name
// neither, and caches prior alias resolutions. Unresolvable mentions
// keep a nil ticker; a comparison plan with fewer than two resolved
// tickers leaves t1/t2 unbound and fails validation downstream rather
// than guessing.
func (p *Planner) Plan(ctx context.Context, routed datatypes.RoutedTask, state *datatypes.SessionState) datatypes.Plan {
	resolved := p.resolveEntities(ctx, routed.Task.Entities, state)
	tickers := resolvedTickers(resolved)
	if len(tickers) == 0 && state != nil && len(state.LastTickers) > 0 {
		for _, t := range state.LastTickers {
			ticker := t
			resolved = append(resolved, datatypes.ResolvedEntity{Entity: t, Ticker: &ticker})
		}
		tickers = resolvedTickers(resolved)
	}

	period := routed.Task.Period
	if period.Latest && state != nil && state.LastPeriod != nil {
		period = *state.LastPeriod
	}
	if period.Latest && routed.TemplateName == "peer_compare" {
		// A side-by-side comparison needs a concrete anchor period so
		// both companies are measured at the same point.
		period = p.resolver.LatestPeriod(ctx)
	}

	params := map[string]any{}
	for name, value := range routed.Template.DefaultParams {
		params[name] = value
	}

	if routed.Template.DeclaresParam("ticker") {
		if len(tickers) > 0 {
			params["ticker"] = tickers[0]
		} else if _, ok := params["ticker"]; !ok {
			params["ticker"] = nil
		}
	}
	if routed.Template.DeclaresParam("t1") && len(tickers) >= 1 {
		params["t1"] = tickers[0]
	}
	if routed.Template.DeclaresParam("t2") && len(tickers) >= 2 {
		params["t2"] = tickers[1]
	}
	if routed.Template.DeclaresParam("fy") {
		params["fy"] = nullableInt(period.FY)
	}
	if routed.Template.DeclaresParam("fq") {
		params["fq"] = nullableInt(period.FQ)
	}
	if routed.Template.DeclaresParam("limit") {
		params["limit"] = p.NormalizeLimit(params["limit"])
	}

	return datatypes.Plan{
		SQL:              routed.Template.SQL,
		Params:           params,
		Surfaces:         routed.Surfaces,
		EntitiesResolved: resolved,
		TemplateName:     routed.TemplateName,
		Intent:           routed.Task.Intent,
	}
}

func (p *Planner) resolveEntities(ctx context.Context, entities []string, state *datatypes.SessionState) []datatypes.ResolvedEntity {
	out := make([]datatypes.ResolvedEntity, 0, len(entities))
	for _, entity := range entities {
		out = append(out, datatypes.ResolvedEntity{
			Entity: entity,
			Ticker: p.resolveOne(ctx, entity, state),
		})
	}
	return out
}

func (p *Planner) resolveOne(ctx context.Context, entity string, state *datatypes.SessionState) *string {
	if validation.TickerShaped(entity) {
		if ticker, err := validation.SanitizeTicker(entity); err == nil {
			return &ticker
		}
	}

	if state != nil {
		if cached, ok := state.AliasResolutions[entity]; ok {
			return &cached
		}
	}

	ticker := p.resolver.ResolveTicker(ctx, entity)
	if ticker == nil {
		p.logger.Debug("unresolved entity mention", "entity", entity)
	}
	return ticker
}

// NormalizeLimit coerces a requested row limit into [1, maxLimit].
// Missing, null or non-positive values take the default.
func (p *Planner) NormalizeLimit(value any) int {
	limit := DefaultLimit
	switch n := value.(type) {
	case int:
		limit = n
	case int64:
		limit = int(n)
	case float64:
		limit = int(n)
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > p.maxLimit {
		limit = p.maxLimit
	}
	return limit
}

// resolvedTickers returns the distinct resolved values in first
// appearance order. Two mentions of the same company ("Apple" and
// "AAPL") must not occupy both comparison slots.
func resolvedTickers(entities []datatypes.ResolvedEntity) []string {
	var tickers []string
	seen := map[string]bool{}
	for _, e := range entities {
		if e.Ticker == nil || seen[*e.Ticker] {
			continue
		}
		seen[*e.Ticker] = true
		tickers = append(tickers, *e.Ticker)
	}
	return tickers
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
