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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_DecisionTable(t *testing.T) {
	cases := []struct {
		name       string
		cfg        GateConfig
		optIn      bool
		generative bool
		prompts    bool
	}{
		{
			name:    "disabled gate approves everything silently",
			cfg:     GateConfig{Enabled: false},
			prompts: false,
		},
		{
			name:       "disabled gate with per-request opt-in prompts",
			cfg:        GateConfig{Enabled: false},
			optIn:      true,
			generative: true,
			prompts:    true,
		},
		{
			name:    "enabled gate with template auto-approval skips templates",
			cfg:     GateConfig{Enabled: true, AlwaysApproveTemplates: true},
			prompts: false,
		},
		{
			name:       "enabled gate with template auto-approval still prompts generative",
			cfg:        GateConfig{Enabled: true, AlwaysApproveTemplates: true},
			generative: true,
			prompts:    true,
		},
		{
			name:    "enabled gate without template auto-approval prompts templates",
			cfg:     GateConfig{Enabled: true},
			prompts: true,
		},
		{
			name:       "opt-in template with auto-approval does not prompt",
			cfg:        GateConfig{Enabled: false, AlwaysApproveTemplates: true},
			optIn:      true,
			generative: false,
			prompts:    false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			approver := &recordingApprover{approved: true}
			gate := NewGate(tc.cfg, approver, discardLogger())
			req := ApprovalRequest{SessionID: "s1", Generative: tc.generative}

			assert.Equal(t, tc.prompts, gate.Prompts(req, tc.optIn))

			err := gate.ApprovePlan(context.Background(), req, tc.optIn)
			require.NoError(t, err)
			wantCalls := 0
			if tc.prompts {
				wantCalls = 1
			}
			assert.Equal(t, wantCalls, approver.callCount())
		})
	}
}

func TestGate_RejectionIsNotApproved(t *testing.T) {
	approver := &recordingApprover{approved: false, reason: "looks destructive"}
	gate := NewGate(GateConfig{Enabled: true}, approver, discardLogger())

	err := gate.ApprovePlan(context.Background(), ApprovalRequest{Generative: true}, false)

	require.ErrorIs(t, err, ErrPlanNotApproved)
	assert.Contains(t, err.Error(), "looks destructive")
}

func TestGate_ChannelFaultNeverFailsOpen(t *testing.T) {
	approver := &recordingApprover{approved: true, err: errors.New("review service down")}
	gate := NewGate(GateConfig{Enabled: true}, approver, discardLogger())

	err := gate.ApprovePlan(context.Background(), ApprovalRequest{Generative: true}, false)

	require.ErrorIs(t, err, ErrPlanNotApproved)
}

func TestLoggingApprover_ApprovesAndReports(t *testing.T) {
	approved, reason, err := LoggingApprover{Logger: discardLogger()}.
		Approve(context.Background(), ApprovalRequest{SessionID: "s1"})

	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, "auto-approved", reason)
}
