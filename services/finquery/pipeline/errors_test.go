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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianFinance/services/finquery/allowlist"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want datatypes.ErrorKind
	}{
		{
			"validation error",
			&ValidationError{Reason: allowlist.ReasonMissingLimit, Detail: "d"},
			datatypes.ErrKindValidation,
		},
		{
			"timeout error",
			&TimeoutError{Timeout: 5 * time.Second},
			datatypes.ErrKindTimeout,
		},
		{
			"execution error",
			&ExecutionError{Detail: "d"},
			datatypes.ErrKindExecution,
		},
		{
			"not approved",
			fmt.Errorf("%w: reviewer said no", ErrPlanNotApproved),
			datatypes.ErrKindNotApproved,
		},
		{
			// Exhaustion wins even when the last candidate's typed error
			// is wrapped inside.
			"exhaustion wrapping a validation error",
			fmt.Errorf("%w: last error: %w", ErrAllCandidatesFailed,
				&ValidationError{Reason: allowlist.ReasonUnknownSurface}),
			datatypes.ErrKindExhausted,
		},
		{
			"unknown error defaults to execution",
			errors.New("mystery"),
			datatypes.ErrKindExecution,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}
