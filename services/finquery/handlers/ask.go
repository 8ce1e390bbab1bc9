// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/AleutianAI/AleutianFinance/services/finquery/pipeline"
)

// HandleAsk answers one natural-language question through the query
// pipeline. Per-task failures come back inside the answer list with an
// explicit error kind; the HTTP status is 200 as long as the request
// itself was processable.
func HandleAsk(engine *pipeline.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Rejected malformed ask request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
			return
		}

		slog.Info("Received question",
			"session_id", req.SessionID,
			"enable_hitl", req.EnableHITL,
		)

		sessionID, answers, err := engine.Ask(c.Request.Context(), req.Question, pipeline.AskOptions{
			SessionID:  req.SessionID,
			EnableHITL: req.EnableHITL,
		})
		if err != nil {
			slog.Error("Question processing aborted", "session_id", sessionID, "error", err)
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request cancelled before completion"})
			return
		}

		c.JSON(http.StatusOK, datatypes.AskResponse{
			SessionID: sessionID,
			Answers:   answers,
		})
	}
}
