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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/AleutianAI/AleutianFinance/services/finquery/observability"
	"github.com/AleutianAI/AleutianFinance/services/finquery/session"
)

var tracer = otel.Tracer("aleutian.finquery.pipeline")

// CitationProvider attaches best-effort provenance to an answer,
// scoped to the ticker and period the answer came from.
type CitationProvider interface {
	CitationLine(ctx context.Context, ticker string, period datatypes.Period) string
}

// AskOptions carries per-request pipeline switches.
type AskOptions struct {
	SessionID  string
	EnableHITL bool

	// ForceGenerative routes every task through the generative path
	// regardless of template coverage. Off in normal operation.
	ForceGenerative bool
}

// Engine wires the pipeline stages together. All collaborators are
// injected; the engine holds no global state and independent instances
// may run concurrently.
type Engine struct {
	decomposer      *Decomposer
	router          *Router
	planner         *Planner
	builder         *Builder
	executor        *Executor
	gate            *Gate
	sessions        *session.Store
	citations       CitationProvider
	metrics         *observability.PipelineMetrics
	allowGenerative bool
	logger          *slog.Logger
}

// EngineConfig assembles an Engine.
type EngineConfig struct {
	Decomposer      *Decomposer
	Router          *Router
	Planner         *Planner
	Builder         *Builder
	Executor        *Executor
	Gate            *Gate
	Sessions        *session.Store
	Citations       CitationProvider
	Metrics         *observability.PipelineMetrics
	AllowGenerative bool
	Logger          *slog.Logger
}

// NewEngine builds an Engine from its collaborators.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		decomposer:      cfg.Decomposer,
		router:          cfg.Router,
		planner:         cfg.Planner,
		builder:         cfg.Builder,
		executor:        cfg.Executor,
		gate:            cfg.Gate,
		sessions:        cfg.Sessions,
		citations:       cfg.Citations,
		metrics:         cfg.Metrics,
		allowGenerative: cfg.AllowGenerative,
		logger:          cfg.Logger,
	}
}

// Ask answers one question: decompose into tasks, run each task's
// pipeline in parallel, join, and fold the results back into the
// session. Task failures are answers with an error kind, never a
// request failure; the error return covers caller cancellation only.
func (e *Engine) Ask(ctx context.Context, question string, opts AskOptions) (string, []datatypes.TaskAnswer, error) {
	ctx, span := tracer.Start(ctx, "pipeline.ask")
	defer span.End()

	sessionID := e.sessions.Ensure(opts.SessionID)
	state := e.sessions.Snapshot(sessionID)

	tasks := e.decomposer.Decompose(question)
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("task.count", len(tasks)),
	)

	answers := make([]datatypes.TaskAnswer, len(tasks))
	g, taskCtx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			answers[i] = e.runTask(taskCtx, sessionID, question, task, state, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sessionID, nil, err
	}
	if err := ctx.Err(); err != nil {
		return sessionID, nil, err
	}

	success := true
	for _, answer := range answers {
		if answer.Status == datatypes.StatusError {
			success = false
			break
		}
	}
	if e.metrics != nil {
		e.metrics.RecordQuestion(success)
	}
	return sessionID, answers, nil
}

func (e *Engine) runTask(ctx context.Context, sessionID, question string, task datatypes.Task, state *datatypes.SessionState, opts AskOptions) datatypes.TaskAnswer {
	ctx, span := tracer.Start(ctx, "pipeline.task")
	defer span.End()

	routed := e.router.Route(task)
	plan := e.planner.Plan(ctx, routed, state)
	plan.Generative = opts.ForceGenerative || (routed.Fallback && e.allowGenerative)

	span.SetAttributes(
		attribute.String("task.intent", task.Intent),
		attribute.String("task.template", routed.TemplateName),
		attribute.Bool("task.generative", plan.Generative),
	)

	answer := datatypes.TaskAnswer{
		Intent:       task.Intent,
		TemplateName: routed.TemplateName,
		Generative:   plan.Generative,
	}

	if err := e.approve(ctx, sessionID, question, plan, opts.EnableHITL); err != nil {
		return e.failTask(answer, err)
	}

	candidates, err := e.builder.Candidates(ctx, question, plan)
	if err != nil {
		return e.failTask(answer, err)
	}
	if plan.Generative {
		candidates = e.screen(ctx, candidates)
	}

	start := time.Now()
	outcome, err := e.executor.ExecuteWithFallback(ctx, candidates)
	if e.metrics != nil {
		e.metrics.RecordStatementDuration(plan.Generative, time.Since(start).Seconds())
	}
	if err != nil {
		return e.failTask(answer, err)
	}

	answer.Status = outcome.Status
	answer.Rows = outcome.Rows
	answer.SQLUsed = outcome.SQLUsed

	e.sessions.Remember(sessionID, plan, task.Period)
	if e.metrics != nil {
		e.metrics.RecordTask(task.Intent, string(outcome.Status))
		e.metrics.RecordCandidate(plan.Generative, "executed")
	}

	if e.citations != nil {
		ticker := ""
		if tickers := plan.ResolvedTickers(); len(tickers) > 0 {
			ticker = tickers[0]
		}
		answer.CitationLine = e.citations.CitationLine(ctx, ticker, task.Period)
	}
	return answer
}

// approve applies the HITL gate. The gate sees the plan before any SQL
// is generated; for the template path the statement under review is the
// template SQL itself.
func (e *Engine) approve(ctx context.Context, sessionID, question string, plan datatypes.Plan, requestOptIn bool) error {
	req := ApprovalRequest{
		SessionID:    sessionID,
		Question:     question,
		TemplateName: plan.TemplateName,
		Generative:   plan.Generative,
		Params:       plan.Params,
	}
	if !plan.Generative {
		req.SQL = plan.SQL
	}

	err := e.gate.ApprovePlan(ctx, req, requestOptIn)
	if e.metrics != nil && e.gate.Prompts(req, requestOptIn) {
		e.metrics.RecordApproval(err == nil)
	}
	return err
}

// screen drops generative candidates that fail the one-row probe. When
// every candidate fails the probe the original list is kept so the real
// execution error surfaces instead of a silent empty set.
func (e *Engine) screen(ctx context.Context, candidates []datatypes.Candidate) []datatypes.Candidate {
	var kept []datatypes.Candidate
	for _, candidate := range candidates {
		if e.executor.DryRun(ctx, candidate) {
			kept = append(kept, candidate)
		} else if e.metrics != nil {
			e.metrics.RecordCandidate(true, "rejected")
		}
	}
	if len(kept) == 0 {
		return candidates
	}
	return kept
}

func (e *Engine) failTask(answer datatypes.TaskAnswer, err error) datatypes.TaskAnswer {
	answer.Status = datatypes.StatusError
	answer.ErrorKind = KindOf(err)
	answer.ErrorDetail = err.Error()
	var valErr *ValidationError
	if e.metrics != nil && errors.As(err, &valErr) {
		e.metrics.RecordRejection(string(valErr.Reason))
	}
	e.logger.Warn("Task failed",
		"intent", answer.Intent,
		"template", answer.TemplateName,
		"kind", answer.ErrorKind,
		"error", err,
	)
	if e.metrics != nil {
		e.metrics.RecordTask(answer.Intent, string(datatypes.StatusError))
	}
	return answer
}
