// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the typed records passed between pipeline
// stages. Each stage consumes the record of the stage before it and
// produces its own; required fields are plain values, optional fields are
// pointers so "absent" is structurally distinct from a zero value.
package datatypes

// Period identifies a fiscal period. FY and FQ are nil when the question
// did not pin them down; Latest marks the "most recent available" request.
// A concrete FY with a nil FQ means an annual figure.
type Period struct {
	FY     *int `json:"fy"`
	FQ     *int `json:"fq"`
	Latest bool `json:"latest"`
}

// Annual reports whether the period is a full fiscal year.
func (p Period) Annual() bool {
	return p.FY != nil && p.FQ == nil
}

// Clone returns a Period whose FY and FQ pointers are independent of
// p's, so mutating one copy never reaches the other.
func (p Period) Clone() Period {
	out := p
	if p.FY != nil {
		fy := *p.FY
		out.FY = &fy
	}
	if p.FQ != nil {
		fq := *p.FQ
		out.FQ = &fq
	}
	return out
}

// Task is one independently answerable unit extracted from a question.
// Entities and Measures preserve first-appearance order from the
// question text; downstream tie-breaks depend on that order.
type Task struct {
	Intent   string   `json:"intent"`
	Entities []string `json:"entities"`
	Period   Period   `json:"period"`
	Measures []string `json:"measures"`
}

// RoutedTask is a Task bound to the catalog template that will serve it.
// Fallback is true when no template matched the intent exactly and the
// fixed default template was substituted.
type RoutedTask struct {
	Task         Task
	TemplateName string
	Template     *Template
	Surfaces     []string
	Fallback     bool
}

// ResolvedEntity pairs a raw entity mention with its resolved ticker.
// Ticker is nil when resolution failed; that is not an error, the plan
// proceeds and typically surfaces as zero rows.
type ResolvedEntity struct {
	Entity string  `json:"entity"`
	Ticker *string `json:"ticker"`
}

// Plan is the fully parameterized query intent for one task. Params
// always contains a "limit" key in [1,200] after planning.
// EntitiesResolved preserves the insertion order of the task's entities;
// two-entity comparison templates take the first two non-nil values in
// that order.
type Plan struct {
	SQL              string
	Params           map[string]any
	Surfaces         []string
	EntitiesResolved []ResolvedEntity
	TemplateName     string
	Intent           string
	Generative       bool
}

// ResolvedTickers returns the non-nil tickers in insertion order.
func (p Plan) ResolvedTickers() []string {
	var out []string
	for _, re := range p.EntitiesResolved {
		if re.Ticker != nil {
			out = append(out, *re.Ticker)
		}
	}
	return out
}

// Candidate is one fully formed (SQL, params) pair proposed for
// execution. Multiple candidates are tried in fallback order.
type Candidate struct {
	SQL    string
	Params map[string]any
}
