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
	"strings"

	"github.com/AleutianAI/AleutianFinance/services/finquery/allowlist"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/AleutianAI/AleutianFinance/services/llm"
)

// candidateSeparator is the line the prompt tells the model to put
// between a statement and its alternative.
const candidateSeparator = "---"

var (
	codeFencePattern = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")

	genTemperature = float32(0.1)
	genMaxTokens   = 512
)

// GenerativeBuilder asks the model for SQL when no catalog template
// covers a question. Every candidate it emits still goes through the
// allowlist validator before execution; the model is never trusted to
// produce safe SQL on its own.
type GenerativeBuilder struct {
	client    llm.LLMClient
	validator *allowlist.Validator
	logger    *slog.Logger
}

// NewGenerativeBuilder builds a GenerativeBuilder.
func NewGenerativeBuilder(client llm.LLMClient, validator *allowlist.Validator, logger *slog.Logger) *GenerativeBuilder {
	return &GenerativeBuilder{client: client, validator: validator, logger: logger}
}

// Build returns SQL candidates for a question, ordered by preference.
// The completion splits on the separator line into at most two blocks;
// each block is fence-stripped and truncated to its first statement
// independently. Validation and the LIMIT repair belong to the Builder.
func (g *GenerativeBuilder) Build(ctx context.Context, question string, plan datatypes.Plan) ([]datatypes.Candidate, error) {
	prompt := g.buildPrompt(question, plan)
	raw, err := g.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &genTemperature,
		MaxTokens:   &genMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generative sql request failed: %w", err)
	}

	statements := splitCandidates(raw)
	if len(statements) == 0 {
		return nil, fmt.Errorf("generative sql response contained no statement")
	}

	candidates := make([]datatypes.Candidate, 0, len(statements))
	for _, sql := range statements {
		g.logger.Debug("generated candidate statement", "sql", sql)
		candidates = append(candidates, datatypes.Candidate{SQL: sql, Params: candidateParams(plan)})
	}
	return candidates, nil
}

func (g *GenerativeBuilder) buildPrompt(question string, plan datatypes.Plan) string {
	var b strings.Builder
	b.WriteString("Write a single PostgreSQL SELECT statement answering the question below.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Query only the tables listed in the schema.\n")
	b.WriteString("- Use named placeholders (:ticker, :fy, :fq, :limit) for every variable value.\n")
	b.WriteString(fmt.Sprintf("- End with LIMIT :limit (cap %d).\n", g.validator.MaxLimit()))
	b.WriteString("- No comments, no explanation, no trailing semicolon.\n")
	b.WriteString(fmt.Sprintf("- You may offer one alternative statement after a line containing only %s.\n\n", candidateSeparator))

	b.WriteString("Schema:\n")
	for _, surface := range g.validator.AllowedSurfaces() {
		b.WriteString(fmt.Sprintf("  %s(%s)\n", surface, strings.Join(g.validator.SchemaFor(surface), ", ")))
	}

	if tickers := plan.ResolvedTickers(); len(tickers) > 0 {
		b.WriteString(fmt.Sprintf("\nResolved tickers: %s\n", strings.Join(tickers, ", ")))
	}
	b.WriteString(fmt.Sprintf("\nQuestion: %s\nSQL:", question))
	return b.String()
}

// splitCandidates splits a completion on the separator line into at
// most two blocks and parses each on its own. Blocks with no SELECT
// statement are dropped; extra blocks past the second are discarded.
func splitCandidates(raw string) []string {
	blocks := strings.Split(raw, candidateSeparator)
	if len(blocks) > 2 {
		blocks = blocks[:2]
	}
	var out []string
	for _, block := range blocks {
		if sql := extractStatement(block); sql != "" {
			out = append(out, sql)
		}
	}
	return out
}

// extractStatement strips markdown fences and keeps the first
// statement of one block. The statement must begin at a literal
// uppercase SELECT token; anything before it is model chatter and
// anything after the first semicolon or a stray fence is discarded.
func extractStatement(raw string) string {
	text := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	idx := strings.Index(text, "SELECT")
	if idx < 0 {
		return ""
	}
	text = text[idx:]
	if end := strings.Index(text, ";"); end >= 0 {
		text = text[:end]
	}
	if end := strings.Index(text, "```"); end >= 0 {
		text = text[:end]
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}

// candidateParams carries the planner's bindings over to generated SQL.
// The limit is always bound so the LIMIT :limit contract holds.
func candidateParams(plan datatypes.Plan) map[string]any {
	params := make(map[string]any, len(plan.Params)+1)
	for name, value := range plan.Params {
		params[name] = value
	}
	if _, ok := params["limit"]; !ok {
		params["limit"] = DefaultLimit
	}
	return params
}
