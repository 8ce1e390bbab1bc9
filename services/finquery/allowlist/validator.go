// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package allowlist enforces the read-only query contract. It is the only
// thing standing between generated SQL and the warehouse: every statement,
// template or generative, passes through Validate before execution.
//
// The allowed surfaces, their column schemas, the write-keyword deny list
// and the global row cap are loaded once from the embedded YAML in the
// enforcement subpackage and are immutable afterwards. All methods are
// safe for concurrent use.
package allowlist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianFinance/services/finquery/allowlist/enforcement"
	"gopkg.in/yaml.v3"
)

// Reason classifies why a statement was rejected. Callers branch on the
// code, never on the detail text; only ReasonMissingLimit is eligible for
// mechanical repair.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNotSelect          Reason = "not_select"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonWriteKeyword       Reason = "write_keyword"
	ReasonUnknownSurface     Reason = "unknown_surface"
	ReasonMissingLimit       Reason = "missing_limit"
	ReasonLimitTooHigh       Reason = "limit_too_high"
	ReasonUnboundPlaceholder Reason = "unbound_placeholder"
)

// Result is the outcome of a validation pass.
type Result struct {
	Valid  bool
	Reason Reason
	Detail string
}

func reject(reason Reason, format string, args ...any) Result {
	return Result{Valid: false, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

type surfaceEntry struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Columns     []string `yaml:"columns"`
}

type schemaFile struct {
	MaxLimit      int            `yaml:"max_limit"`
	WriteKeywords []string       `yaml:"write_keywords"`
	Surfaces      []surfaceEntry `yaml:"surfaces"`
}

var (
	surfaceRefPattern  = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	placeholderPattern = regexp.MustCompile(`(?:^|[^:a-zA-Z0-9_]):([a-zA-Z_][a-zA-Z0-9_]*)`)
	limitPattern       = regexp.MustCompile(`(?i)\blimit\s+(:?[a-zA-Z_][a-zA-Z0-9_]*|[0-9]+)`)
)

// Validator holds the compiled allowlist. Construct once at startup via
// New; a malformed embedded schema is a build defect and aborts
// initialization.
type Validator struct {
	surfaces     map[string][]string
	surfaceOrder []string
	writePattern *regexp.Regexp
	maxLimit     int
}

// New compiles the validator from the embedded allowed-surfaces file.
func New() (*Validator, error) {
	var file schemaFile
	if err := yaml.Unmarshal(enforcement.AllowedSurfaces, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded allowlist file: %w", err)
	}
	if len(file.Surfaces) == 0 {
		return nil, fmt.Errorf("embedded allowlist declares no surfaces")
	}
	if file.MaxLimit <= 0 {
		return nil, fmt.Errorf("embedded allowlist has non-positive max_limit %d", file.MaxLimit)
	}
	if len(file.WriteKeywords) == 0 {
		return nil, fmt.Errorf("embedded allowlist declares no write keywords")
	}

	v := &Validator{
		surfaces: make(map[string][]string, len(file.Surfaces)),
		maxLimit: file.MaxLimit,
	}
	for _, s := range file.Surfaces {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" || len(s.Columns) == 0 {
			return nil, fmt.Errorf("allowlist surface %q is incomplete", s.Name)
		}
		if _, dup := v.surfaces[name]; dup {
			return nil, fmt.Errorf("allowlist surface %q declared twice", name)
		}
		v.surfaces[name] = s.Columns
		v.surfaceOrder = append(v.surfaceOrder, name)
	}

	pattern, err := regexp.Compile(`(?i)\b(` + strings.Join(file.WriteKeywords, "|") + `)\b`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile write keyword pattern: %w", err)
	}
	v.writePattern = pattern
	return v, nil
}

// MaxLimit returns the global row cap.
func (v *Validator) MaxLimit() int {
	return v.maxLimit
}

// AllowedSurfaces returns the legal query targets in declaration order.
func (v *Validator) AllowedSurfaces() []string {
	out := make([]string, len(v.surfaceOrder))
	copy(out, v.surfaceOrder)
	return out
}

// SchemaFor returns the ordered column names of a surface, or nil when
// the surface is not on the allowlist.
func (v *Validator) SchemaFor(surface string) []string {
	cols, ok := v.surfaces[strings.ToLower(strings.TrimSpace(surface))]
	if !ok {
		return nil
	}
	out := make([]string, len(cols))
	copy(out, cols)
	return out
}

// Validate checks one statement against the full contract: single
// read-only SELECT, allowlisted surfaces only, no write keywords in any
// casing, a LIMIT clause bounded by the global cap, and every named
// placeholder bound in params.
func (v *Validator) Validate(sql string, params map[string]any) Result {
	stmt := strings.TrimSpace(sql)
	stmt = strings.TrimSuffix(stmt, ";")
	if stmt == "" {
		return reject(ReasonNotSelect, "empty statement")
	}
	if strings.Contains(stmt, ";") {
		return reject(ReasonMultipleStatements, "statement contains multiple statements")
	}

	fields := strings.Fields(stmt)
	if !strings.EqualFold(fields[0], "SELECT") {
		return reject(ReasonNotSelect, "statement is not a SELECT (starts with %q)", fields[0])
	}

	if m := v.writePattern.FindString(stmt); m != "" {
		return reject(ReasonWriteKeyword, "write keyword %q is forbidden", strings.ToUpper(m))
	}

	for _, ref := range surfaceRefPattern.FindAllStringSubmatch(stmt, -1) {
		surface := strings.ToLower(ref[1])
		// Tolerate an explicit schema qualifier; the base name decides.
		if idx := strings.LastIndex(surface, "."); idx >= 0 {
			surface = surface[idx+1:]
		}
		if _, ok := v.surfaces[surface]; !ok {
			return reject(ReasonUnknownSurface, "surface %q is not on the allowlist", surface)
		}
	}

	limit := limitPattern.FindStringSubmatch(stmt)
	if limit == nil {
		return reject(ReasonMissingLimit, "missing LIMIT clause")
	}
	if res := v.checkLimitValue(limit[1], params); !res.Valid {
		return res
	}

	for _, ph := range placeholderPattern.FindAllStringSubmatch(stmt, -1) {
		name := ph[1]
		if _, ok := params[name]; !ok {
			return reject(ReasonUnboundPlaceholder, "placeholder :%s has no bound parameter", name)
		}
	}

	return Result{Valid: true}
}

// checkLimitValue bounds the LIMIT argument, whether it is a literal or a
// bound placeholder.
func (v *Validator) checkLimitValue(arg string, params map[string]any) Result {
	if strings.HasPrefix(arg, ":") {
		value, ok := params[arg[1:]]
		if !ok {
			// Reported as an unbound placeholder by the caller's pass.
			return Result{Valid: true}
		}
		if n, ok := asInt(value); ok && n > v.maxLimit {
			return reject(ReasonLimitTooHigh, "limit %d exceeds cap %d", n, v.maxLimit)
		}
		return Result{Valid: true}
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return reject(ReasonMissingLimit, "unreadable LIMIT value %q", arg)
	}
	if n > v.maxLimit {
		return reject(ReasonLimitTooHigh, "limit %d exceeds cap %d", n, v.maxLimit)
	}
	return Result{Valid: true}
}

func asInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	default:
		return 0, false
	}
}
