// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve maps free-text company mentions to canonical tickers
// and answers "what is the latest fiscal period" from the warehouse
// fiscal calendar. Resolution failure is not an error: a nil ticker
// propagates through the planner and surfaces as zero rows downstream.
package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/AleutianAI/AleutianFinance/services/finquery/warehouse"
)

// Resolver is the entity/period resolution collaborator.
type Resolver interface {
	// ResolveEntities resolves each mention independently, preserving
	// input order. A nil ticker marks an unresolved mention.
	ResolveEntities(ctx context.Context, entities []string) []datatypes.ResolvedEntity

	// ResolveTicker resolves a single mention, nil when unknown.
	ResolveTicker(ctx context.Context, entity string) *string

	// LatestPeriod returns the most recently reported fiscal period
	// across the warehouse.
	LatestPeriod(ctx context.Context) datatypes.Period
}

const (
	lookupSQL = "SELECT c.ticker FROM company_master c WHERE c.active AND (LOWER(c.company_name) = LOWER(:name) OR LOWER(c.company_name) LIKE LOWER(:prefix) OR :alias = ANY(c.aliases)) ORDER BY c.ticker LIMIT 1"

	latestPeriodSQL = "SELECT f.fy, f.fq FROM fiscal_calendar f ORDER BY f.reported_at DESC LIMIT 1"
)

// WarehouseResolver resolves against the company_master and
// fiscal_calendar surfaces.
type WarehouseResolver struct {
	pool warehouse.Pool
}

// NewWarehouseResolver builds a resolver over the given pool.
func NewWarehouseResolver(pool warehouse.Pool) *WarehouseResolver {
	return &WarehouseResolver{pool: pool}
}

// ResolveEntities implements Resolver.
func (r *WarehouseResolver) ResolveEntities(ctx context.Context, entities []string) []datatypes.ResolvedEntity {
	out := make([]datatypes.ResolvedEntity, 0, len(entities))
	for _, entity := range entities {
		out = append(out, datatypes.ResolvedEntity{
			Entity: entity,
			Ticker: r.ResolveTicker(ctx, entity),
		})
	}
	return out
}

// ResolveTicker implements Resolver.
func (r *WarehouseResolver) ResolveTicker(ctx context.Context, entity string) *string {
	name := strings.TrimSpace(entity)
	if name == "" {
		return nil
	}

	params := map[string]any{
		"name":   name,
		"prefix": name + " %",
		"alias":  strings.ToLower(name),
	}
	row, err := r.pool.QueryOne(ctx, lookupSQL, params)
	if err != nil {
		slog.Warn("Entity resolution query failed", "entity", entity, "error", err)
		return nil
	}
	if row == nil {
		slog.Debug("Entity did not resolve to a ticker", "entity", entity)
		return nil
	}

	ticker, ok := row["ticker"].(string)
	if !ok || ticker == "" {
		return nil
	}
	return &ticker
}

// LatestPeriod implements Resolver.
func (r *WarehouseResolver) LatestPeriod(ctx context.Context) datatypes.Period {
	row, err := r.pool.QueryOne(ctx, latestPeriodSQL, map[string]any{})
	if err != nil || row == nil {
		if err != nil {
			slog.Warn("Latest period lookup failed", "error", err)
		}
		return datatypes.Period{Latest: true}
	}

	period := datatypes.Period{Latest: true}
	if fy, ok := asPeriodInt(row["fy"]); ok {
		period.FY = &fy
	}
	if fq, ok := asPeriodInt(row["fq"]); ok {
		period.FQ = &fq
	}
	return period
}

func asPeriodInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
