// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL  string
	sessionID  string
	enableHITL bool

	rootCmd = &cobra.Command{
		Use:   "finq",
		Short: "A cli to query the AleutianFinance question answering service",
		Long: `Finq asks natural-language financial questions against a running
				finquery service and manages its sessions.`,
	}

	// --- Ask ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a financial question and prints the answers with provenance",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_ask.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage conversation sessions",
	}
	sessionContextCmd = &cobra.Command{
		Use:   "context [session_id]",
		Short: "Shows the continuity state the service keeps for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionContext, // Defined in cmd_sessions.go
	}
	sessionClearCmd = &cobra.Command{
		Use:   "clear [session_id]",
		Short: "Deletes a session's continuity state",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionClear, // Defined in cmd_sessions.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://localhost:12310", "Base URL of the finquery service")

	askCmd.Flags().StringVar(&sessionID, "session", "",
		"Session id to continue; omit to start a new session")
	askCmd.Flags().BoolVar(&enableHITL, "hitl", false,
		"Route generated SQL through the approval gate")

	sessionCmd.AddCommand(sessionContextCmd)
	sessionCmd.AddCommand(sessionClearCmd)

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionCmd)
}
