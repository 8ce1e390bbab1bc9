// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command finquery starts the AleutianFinance question answering HTTP
// server.
//
// It reads configuration from environment variables and starts the
// server.
//
// # Environment Variables
//
//   - FINQUERY_PORT: HTTP server port (default: 12310)
//   - FINQUERY_DATABASE_DSN: warehouse connection string (required)
//   - FINQUERY_CATALOG_PATH: template catalog override (optional)
//   - FINQUERY_HITL_ENABLED: turn the approval gate on (default: false)
//   - FINQUERY_PROMPT_FOR_TEMPLATES: prompt for template plans too when
//     the gate is on (default: false)
//   - FINQUERY_DISABLE_METRICS: turn off pipeline Prometheus
//     instrumentation (default: false)
//   - LLM_BACKEND_TYPE: generative SQL provider - none, openai, ollama (default: none)
//   - INFLUXDB_URL / INFLUXDB_TOKEN / INFLUXDB_ORG / INFLUXDB_BUCKET:
//     stock provenance bucket (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o finquery ./cmd/finquery
//
//	# Run
//	./finquery
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianFinance/services/finquery"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := finquery.Config{
		Port:               getEnvInt("FINQUERY_PORT", 12310),
		DatabaseDSN:        os.Getenv("FINQUERY_DATABASE_DSN"),
		CatalogPath:        os.Getenv("FINQUERY_CATALOG_PATH"),
		HITLEnabled:        getEnvBool("FINQUERY_HITL_ENABLED", false),
		PromptForTemplates: getEnvBool("FINQUERY_PROMPT_FOR_TEMPLATES", false),
		DisableMetrics:     getEnvBool("FINQUERY_DISABLE_METRICS", false),
		LLMBackend:         getEnvString("LLM_BACKEND_TYPE", "none"),
		InfluxURL:          os.Getenv("INFLUXDB_URL"),
		InfluxToken:        os.Getenv("INFLUXDB_TOKEN"),
		InfluxOrg:          os.Getenv("INFLUXDB_ORG"),
		InfluxBucket:       os.Getenv("INFLUXDB_BUCKET"),
		OTelEndpoint:       getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
	}

	if cfg.DatabaseDSN == "" {
		log.Fatal("FINQUERY_DATABASE_DSN is required")
	}

	slog.Info("Starting finquery",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"hitl_enabled", cfg.HITLEnabled,
	)

	svc, err := finquery.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create finquery service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Finquery error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
