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
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func runSessionContext(cmd *cobra.Command, args []string) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(serverURL + "/v1/sessions/" + args[0] + "/context")
	if err != nil {
		log.Fatalf("Failed to reach finquery service: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		log.Fatalf("Finquery error, status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &pretty); err != nil {
		log.Fatalf("Could not parse response: %v", err)
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}

func runSessionClear(cmd *cobra.Command, args []string) {
	req, err := http.NewRequest(http.MethodDelete,
		serverURL+"/v1/sessions/"+args[0], nil)
	if err != nil {
		log.Fatalf("Could not create request: %v", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("Failed to reach finquery service: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		log.Fatalf("Finquery error, status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	fmt.Printf("Cleared session %s\n", args[0])
}
