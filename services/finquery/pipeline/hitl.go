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
	"time"
)

// DefaultApprovalTimeout bounds how long a plan waits for a decision.
const DefaultApprovalTimeout = 60 * time.Second

// ApprovalRequest describes the plan under review. For a generative
// plan the SQL is not yet known; the reviewer approves the intent to
// generate, and the generated statement still faces the allowlist.
type ApprovalRequest struct {
	SessionID    string         `json:"session_id"`
	Question     string         `json:"question"`
	TemplateName string         `json:"template_name"`
	Generative   bool           `json:"generative"`
	SQL          string         `json:"sql,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

// Approver is the pluggable approval channel.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (approved bool, reason string, err error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (bool, string, error)

func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (bool, string, error) {
	return f(ctx, req)
}

// LoggingApprover approves every plan and records the approval event.
// It is the reference channel for deployments without a review UI.
type LoggingApprover struct {
	Logger *slog.Logger
}

func (a LoggingApprover) Approve(_ context.Context, req ApprovalRequest) (bool, string, error) {
	a.Logger.Info("Plan auto-approved",
		"session_id", req.SessionID,
		"template", req.TemplateName,
		"generative", req.Generative,
	)
	return true, "auto-approved", nil
}

// GateConfig controls the approval decision table.
type GateConfig struct {
	Enabled                bool
	AlwaysApproveTemplates bool
	Timeout                time.Duration
}

// Gate guards plan execution behind human approval. Decision table:
// disabled means everything is approved; enabled template plans pass
// without prompting when AlwaysApproveTemplates is set; everything else
// goes through the approval channel. A rejection, a channel fault or a
// decision timeout all resolve to not approved; the gate never fails
// open.
type Gate struct {
	cfg      GateConfig
	approver Approver
	logger   *slog.Logger
}

// NewGate builds a Gate. A non-positive timeout takes the default.
func NewGate(cfg GateConfig, approver Approver, logger *slog.Logger) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultApprovalTimeout
	}
	return &Gate{cfg: cfg, approver: approver, logger: logger}
}

// ApprovePlan applies the decision table to one plan. requestOptIn is
// the caller's per-request review flag; it enables the gate even when
// the service-wide switch is off. Returns nil when execution may
// proceed and ErrPlanNotApproved otherwise.
func (g *Gate) ApprovePlan(ctx context.Context, req ApprovalRequest, requestOptIn bool) error {
	if !g.Prompts(req, requestOptIn) {
		return nil
	}

	decideCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	approved, reason, err := g.approver.Approve(decideCtx, req)
	if err != nil {
		g.logger.Warn("Approval channel failed, treating plan as rejected",
			"session_id", req.SessionID,
			"template", req.TemplateName,
			"error", err,
		)
		return fmt.Errorf("%w: approval channel: %v", ErrPlanNotApproved, err)
	}
	if !approved {
		g.logger.Info("Plan rejected by reviewer",
			"session_id", req.SessionID,
			"template", req.TemplateName,
			"reason", reason,
		)
		return fmt.Errorf("%w: %s", ErrPlanNotApproved, reason)
	}
	return nil
}

// Prompts reports whether the decision table routes this plan through
// the approval channel at all.
func (g *Gate) Prompts(req ApprovalRequest, requestOptIn bool) bool {
	if !g.cfg.Enabled && !requestOptIn {
		return false
	}
	if !req.Generative && g.cfg.AlwaysApproveTemplates {
		return false
	}
	return true
}
