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

// Row is one database result row, column name to value, order of rows
// preserved from the database.
type Row = map[string]any

// ResultStatus distinguishes the three outcomes a task can have.
// Control flow never depends on message text, only on this status.
type ResultStatus string

const (
	StatusRows  ResultStatus = "rows"
	StatusEmpty ResultStatus = "empty"
	StatusError ResultStatus = "error"
)

// ErrorKind classifies a failed task for the presentation layer.
type ErrorKind string

const (
	ErrKindValidation   ErrorKind = "validation_failure"
	ErrKindTimeout      ErrorKind = "timeout"
	ErrKindExecution    ErrorKind = "execution_fault"
	ErrKindExhausted    ErrorKind = "all_candidates_exhausted"
	ErrKindNotApproved  ErrorKind = "approval_denied"
	ErrKindDecomposeNil ErrorKind = "no_tasks"
)

// TaskAnswer is the structured result for one task of a question.
type TaskAnswer struct {
	Intent       string       `json:"intent"`
	TemplateName string       `json:"template_name"`
	Generative   bool         `json:"generative"`
	Status       ResultStatus `json:"status"`
	Rows         []Row        `json:"rows,omitempty"`
	SQLUsed      string       `json:"sql_used,omitempty"`
	CitationLine string       `json:"citation_line,omitempty"`
	ErrorKind    ErrorKind    `json:"error_kind,omitempty"`
	ErrorDetail  string       `json:"error_detail,omitempty"`
}
