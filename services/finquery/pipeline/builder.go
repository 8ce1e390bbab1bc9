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

	"github.com/AleutianAI/AleutianFinance/services/finquery/allowlist"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

// RepairLimit is the row cap bound when the missing-LIMIT repair has no
// caller-supplied limit to preserve. Distinct from the planner's
// DefaultLimit: a repaired statement never went through planning.
const RepairLimit = 25

// Builder turns a plan into validated SQL candidates. A templated plan
// yields exactly one candidate with its parameters frozen; a generative
// plan delegates to the model-backed builder and screens each candidate
// through validation before the executor sees it.
type Builder struct {
	validator  *allowlist.Validator
	generative *GenerativeBuilder
	logger     *slog.Logger
}

// NewBuilder builds a Builder. generative may be nil when no model
// backend is configured; generative plans then fail with an explicit
// error instead of silently degrading.
func NewBuilder(validator *allowlist.Validator, generative *GenerativeBuilder, logger *slog.Logger) *Builder {
	return &Builder{validator: validator, generative: generative, logger: logger}
}

// Candidates returns the SQL candidates for a plan in trial order.
// Template candidates that fail validation are returned as an error
// immediately; a catalog authoring mistake is not something fallback
// should paper over. Generative candidates are individually repaired
// where possible and dropped when irreparable, erroring only when none
// survive.
func (b *Builder) Candidates(ctx context.Context, question string, plan datatypes.Plan) ([]datatypes.Candidate, error) {
	if !plan.Generative {
		sql, params, res := b.ValidateAndFix(plan.SQL, plan.Params)
		if !res.Valid {
			return nil, &ValidationError{Reason: res.Reason, Detail: res.Detail}
		}
		return []datatypes.Candidate{{SQL: sql, Params: params}}, nil
	}

	if b.generative == nil {
		return nil, &ExecutionError{Detail: "generative path requested but no model backend is configured"}
	}
	raw, err := b.generative.Build(ctx, question, plan)
	if err != nil {
		return nil, err
	}

	var (
		candidates []datatypes.Candidate
		lastRes    allowlist.Result
	)
	for _, candidate := range raw {
		sql, params, res := b.ValidateAndFix(candidate.SQL, candidate.Params)
		if !res.Valid {
			lastRes = res
			b.logger.Debug("dropping invalid generative candidate",
				"reason", res.Reason,
				"detail", res.Detail,
			)
			continue
		}
		candidates = append(candidates, datatypes.Candidate{SQL: sql, Params: params})
	}
	if len(candidates) == 0 {
		return nil, &ValidationError{Reason: lastRes.Reason, Detail: lastRes.Detail}
	}
	return candidates, nil
}

// ValidateAndFix validates a statement and applies the one permitted
// mechanical repair: a statement rejected only for a missing LIMIT gets
// a parameterized LIMIT appended, a default limit bound, and one more
// validation pass. Every other rejection is final.
func (b *Builder) ValidateAndFix(sql string, params map[string]any) (string, map[string]any, allowlist.Result) {
	res := b.validator.Validate(sql, params)
	if res.Valid || res.Reason != allowlist.ReasonMissingLimit {
		return sql, params, res
	}

	fixed := sql + " LIMIT :limit"
	fixedParams := make(map[string]any, len(params)+1)
	for name, value := range params {
		fixedParams[name] = value
	}
	if _, ok := fixedParams["limit"]; !ok {
		fixedParams["limit"] = RepairLimit
	}
	b.logger.Debug("appended missing row cap", "sql", fixed)
	return fixed, fixedParams, b.validator.Validate(fixed, fixedParams)
}
