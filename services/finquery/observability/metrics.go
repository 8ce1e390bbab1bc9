// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// query pipeline.
//
// # Description
//
// This package implements Prometheus metrics for monitoring question
// answering. Metrics include:
//   - Question and task counters (by intent, status, error kind)
//   - SQL candidate outcomes (validated, repaired, rejected, executed)
//   - Statement latency histograms
//   - Approval gate decisions
//   - Citation lookup failures by provenance domain
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for query pipeline metrics
const pipelineSubsystem = "finquery"

// PipelineMetrics holds all Prometheus metrics for the query pipeline.
// Construct one instance at startup with NewPipelineMetrics and inject
// it; constructing twice on the same registry panics on duplicate
// registration.
//
// # Thread Safety
//
// All operations are thread-safe.
type PipelineMetrics struct {
	// QuestionsTotal counts incoming questions by terminal status.
	// Labels: status (success, error)
	QuestionsTotal *prometheus.CounterVec

	// TasksTotal counts decomposed tasks by intent and result status.
	// Labels: intent, status (rows, empty, error)
	TasksTotal *prometheus.CounterVec

	// CandidatesTotal counts SQL candidates by path and outcome.
	// Labels: path (template, generative), outcome (executed, repaired,
	// rejected, failed)
	CandidatesTotal *prometheus.CounterVec

	// ValidationRejectionsTotal counts allowlist rejections by reason.
	// Labels: reason
	ValidationRejectionsTotal *prometheus.CounterVec

	// StatementDurationSeconds measures warehouse statement latency.
	// Labels: path (template, generative)
	StatementDurationSeconds *prometheus.HistogramVec

	// ApprovalDecisionsTotal counts gate outcomes.
	// Labels: decision (approved, rejected)
	ApprovalDecisionsTotal *prometheus.CounterVec

	// CitationFailuresTotal counts provenance lookups that faulted.
	// Labels: domain (financial, stock, macro)
	CitationFailuresTotal *prometheus.CounterVec

	// SessionsLive tracks the number of live sessions.
	SessionsLive prometheus.GaugeFunc
}

// NewPipelineMetrics creates and registers all pipeline metrics on the
// default registry. sessionCount feeds the live-session gauge; pass nil
// to skip it.
func NewPipelineMetrics(sessionCount func() int) *PipelineMetrics {
	m := &PipelineMetrics{
		QuestionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "questions_total",
				Help:      "Total questions processed by terminal status",
			},
			[]string{"status"},
		),

		TasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "tasks_total",
				Help:      "Total decomposed tasks by intent and result status",
			},
			[]string{"intent", "status"},
		),

		CandidatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "sql_candidates_total",
				Help:      "Total SQL candidates by path and outcome",
			},
			[]string{"path", "outcome"},
		),

		ValidationRejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "validation_rejections_total",
				Help:      "Total allowlist rejections by reason code",
			},
			[]string{"reason"},
		),

		StatementDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "statement_duration_seconds",
				Help:      "Warehouse statement latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"path"},
		),

		ApprovalDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "approval_decisions_total",
				Help:      "Total approval gate decisions",
			},
			[]string{"decision"},
		),

		CitationFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "citation_failures_total",
				Help:      "Total provenance lookups that faulted, by domain",
			},
			[]string{"domain"},
		),
	}

	if sessionCount != nil {
		m.SessionsLive = promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "sessions_live",
				Help:      "Number of live sessions",
			},
			func() float64 { return float64(sessionCount()) },
		)
	}

	return m
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordQuestion records a completed question.
func (m *PipelineMetrics) RecordQuestion(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.QuestionsTotal.WithLabelValues(status).Inc()
}

// RecordTask records a finished task by intent and status.
func (m *PipelineMetrics) RecordTask(intent, status string) {
	m.TasksTotal.WithLabelValues(intent, status).Inc()
}

// RecordCandidate records one SQL candidate outcome.
func (m *PipelineMetrics) RecordCandidate(generative bool, outcome string) {
	m.CandidatesTotal.WithLabelValues(pathLabel(generative), outcome).Inc()
}

// RecordRejection records an allowlist rejection reason.
func (m *PipelineMetrics) RecordRejection(reason string) {
	m.ValidationRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordStatementDuration records a warehouse statement latency.
func (m *PipelineMetrics) RecordStatementDuration(generative bool, seconds float64) {
	m.StatementDurationSeconds.WithLabelValues(pathLabel(generative)).Observe(seconds)
}

// RecordApproval records a gate decision.
func (m *PipelineMetrics) RecordApproval(approved bool) {
	decision := "approved"
	if !approved {
		decision = "rejected"
	}
	m.ApprovalDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordCitationFailure records a faulted provenance lookup.
func (m *PipelineMetrics) RecordCitationFailure(domain string) {
	m.CitationFailuresTotal.WithLabelValues(domain).Inc()
}

func pathLabel(generative bool) string {
	if generative {
		return "generative"
	}
	return "template"
}
