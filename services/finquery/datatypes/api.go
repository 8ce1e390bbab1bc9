// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// AskRequest is the payload for POST /v1/ask.
type AskRequest struct {
	Question   string `json:"question" binding:"required"`
	SessionID  string `json:"session_id"`
	EnableHITL bool   `json:"enable_hitl"`
}

// AskResponse carries one TaskAnswer per decomposed task, in task order.
type AskResponse struct {
	SessionID string       `json:"session_id"`
	Answers   []TaskAnswer `json:"answers"`
}

// SessionContextResponse is the payload for GET /v1/sessions/:id/context.
type SessionContextResponse struct {
	SessionID string       `json:"session_id"`
	Context   SessionState `json:"context"`
}
