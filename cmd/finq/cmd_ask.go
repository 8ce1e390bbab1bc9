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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	postBody, err := json.Marshal(datatypes.AskRequest{
		Question:   question,
		SessionID:  sessionID,
		EnableHITL: enableHITL,
	})
	if err != nil {
		log.Fatalf("Could not create request: %v", err)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(serverURL+"/v1/ask", "application/json",
		bytes.NewBuffer(postBody))
	if err != nil {
		log.Fatalf("Failed to reach finquery service: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		log.Fatalf("Finquery error, status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var askResp datatypes.AskResponse
	if err := json.Unmarshal(bodyBytes, &askResp); err != nil {
		log.Fatalf("Could not parse response: %v", err)
	}

	fmt.Printf("Session: %s\n", askResp.SessionID)
	for i, answer := range askResp.Answers {
		fmt.Printf("\n--- Answer %d (%s via %s) ---\n", i+1, answer.Intent, answer.TemplateName)
		printAnswer(answer)
	}
}

func printAnswer(answer datatypes.TaskAnswer) {
	switch answer.Status {
	case datatypes.StatusError:
		fmt.Printf("Error (%s): %s\n", answer.ErrorKind, answer.ErrorDetail)
		return
	case datatypes.StatusEmpty:
		fmt.Println("No data for this question.")
	default:
		for _, row := range answer.Rows {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
			}
			fmt.Println(strings.Join(parts, "  "))
		}
	}
	if answer.CitationLine != "" {
		fmt.Println(answer.CitationLine)
	}
}
