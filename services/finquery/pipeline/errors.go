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
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianFinance/services/finquery/allowlist"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

// ErrAllCandidatesFailed is the terminal error once every candidate has
// failed validation or execution.
var ErrAllCandidatesFailed = errors.New("all SQL candidates failed")

// ErrPlanNotApproved marks a plan the approval channel rejected.
var ErrPlanNotApproved = errors.New("plan was not approved")

// ValidationError wraps an allowlist rejection. Fatal for the candidate;
// only the missing-LIMIT class is eligible for mechanical repair, which
// the builder attempts before raising this.
type ValidationError struct {
	Reason allowlist.Reason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sql validation failed (%s): %s", e.Reason, e.Detail)
}

// TimeoutError marks a statement that exceeded its execution bound.
// The fallback mechanism treats it like any other execution fault.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("statement exceeded the %s execution bound", e.Timeout)
}

// ExecutionError wraps any non-timeout database fault with a truncated
// diagnostic message.
type ExecutionError struct {
	Detail string
}

func (e *ExecutionError) Error() string {
	return "query execution failed: " + e.Detail
}

// KindOf maps a pipeline error to the boundary error kind the
// presentation layer receives. Callers branch on the kind, never on
// message text.
func KindOf(err error) datatypes.ErrorKind {
	var valErr *ValidationError
	var toErr *TimeoutError
	var execErr *ExecutionError
	switch {
	case errors.Is(err, ErrAllCandidatesFailed):
		return datatypes.ErrKindExhausted
	case errors.Is(err, ErrPlanNotApproved):
		return datatypes.ErrKindNotApproved
	case errors.As(err, &valErr):
		return datatypes.ErrKindValidation
	case errors.As(err, &toErr):
		return datatypes.ErrKindTimeout
	case errors.As(err, &execErr):
		return datatypes.ErrKindExecution
	default:
		return datatypes.ErrKindExecution
	}
}
