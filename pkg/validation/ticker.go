// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries. Using these validators prevents injection attacks
// (SQL injection via entity text or parameter names).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// tickerPattern matches valid stock ticker symbols.
// Allows: uppercase letters, digits, dots (BRK.A), hyphens (BF-B)
// Max length: 10 characters (covers most exchanges)
var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// tickerShapePattern matches the narrower "already a ticker" shape the
// planner short-circuits on: all-uppercase alphabetic, at most five
// characters. Free text like "Apple" or "BRK.A" does not match and goes
// through the entity resolver instead.
var tickerShapePattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// placeholderPattern matches legal named-placeholder identifiers.
var placeholderPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateTicker validates a stock ticker symbol before it is used as a
// query parameter.
//
// Valid tickers:
//   - 1-10 characters
//   - Uppercase letters A-Z
//   - Digits 0-9
//   - Dots (.) for class shares like BRK.A
//   - Hyphens (-) for class shares like BF-B
//
// Returns an error if the ticker is invalid.
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("ticker cannot be empty")
	}

	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("invalid ticker format: %q (must be 1-10 uppercase alphanumeric chars, dots, or hyphens)", ticker)
	}

	return nil
}

// TickerShaped reports whether an entity mention is already in ticker
// shape (all-uppercase alphabetic, length at most five). Such mentions
// skip the entity resolver and are treated as resolved tickers.
func TickerShaped(entity string) bool {
	return tickerShapePattern.MatchString(entity)
}

// SanitizeTicker normalizes and validates a ticker symbol.
// Returns the uppercase ticker if valid, or an error if invalid.
func SanitizeTicker(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if err := ValidateTicker(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidatePlaceholderName validates a named-placeholder identifier as it
// appears in catalog templates and generated SQL. Lowercase snake_case
// only; anything else suggests injected or malformed SQL.
func ValidatePlaceholderName(name string) error {
	if name == "" {
		return fmt.Errorf("placeholder name cannot be empty")
	}
	if !placeholderPattern.MatchString(name) {
		return fmt.Errorf("invalid placeholder name: %q (must be lowercase snake_case)", name)
	}
	return nil
}
