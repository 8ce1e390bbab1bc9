// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package citations

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

func boolPtr(b bool) *bool { return &b }

func tsPtr(t time.Time) *time.Time { return &t }

// poolCall records one statement handed to the fake pool.
type poolCall struct {
	SQL    string
	Params map[string]any
}

// fakePool serves canned rows keyed by a statement fragment and records
// every statement it receives, or fails everything when err is set.
type fakePool struct {
	rows  map[string]datatypes.Row
	err   error
	calls []poolCall
}

func (f *fakePool) Query(ctx context.Context, sql string, params map[string]any) ([]datatypes.Row, error) {
	row, err := f.QueryOne(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return []datatypes.Row{row}, nil
}

func (f *fakePool) QueryOne(ctx context.Context, sql string, params map[string]any) (datatypes.Row, error) {
	f.calls = append(f.calls, poolCall{SQL: sql, Params: params})
	if f.err != nil {
		return nil, f.err
	}
	for fragment, row := range f.rows {
		if strings.Contains(sql, fragment) {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakePool) Close() {}

func (f *fakePool) callsTo(fragment string) []poolCall {
	var out []poolCall
	for _, call := range f.calls {
		if strings.Contains(call.SQL, fragment) {
			out = append(out, call)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// FetchCitations Tests
// =============================================================================

func intPtr(n int) *int { return &n }

func TestFetchCitations_EachDomainIndependent(t *testing.T) {
	pool := &fakePool{rows: map[string]datatypes.Row{
		"m.ticker = :ticker": {
			"source_code": "SEC_EDGAR",
			"source_name": "SEC EDGAR",
			"as_reported": true,
			"version_ts":  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	fetcher := NewFetcher(pool, nil, nil, discardLogger())

	set := fetcher.FetchCitations(context.Background(), "AAPL", intPtr(2023), nil)

	require.NotNil(t, set.Financial)
	assert.Equal(t, "SEC_EDGAR", set.Financial.SourceCode)
	require.NotNil(t, set.Financial.AsReported)
	assert.True(t, *set.Financial.AsReported)
	assert.Nil(t, set.Macro, "absent registry row yields no citation")
	assert.Nil(t, set.Stock, "no stock backend configured")
}

func TestFetchCitations_FinancialLookupIsScopedToTickerAndPeriod(t *testing.T) {
	pool := &fakePool{}
	fetcher := NewFetcher(pool, nil, nil, discardLogger())

	fetcher.FetchCitations(context.Background(), "AAPL", intPtr(2023), intPtr(2))

	calls := pool.callsTo("m.ticker = :ticker")
	require.Len(t, calls, 1)
	assert.Equal(t, "AAPL", calls[0].Params["ticker"])
	assert.Equal(t, 2023, calls[0].Params["fy"])
	assert.Equal(t, 2, calls[0].Params["fq"])

	// An unpinned quarter binds null, it never narrows the match.
	fetcher.FetchCitations(context.Background(), "AAPL", intPtr(2023), nil)
	calls = pool.callsTo("m.ticker = :ticker")
	require.Len(t, calls, 2)
	assert.Nil(t, calls[1].Params["fq"])
}

func TestFetchCitations_NoTickerFallsBackToRegistry(t *testing.T) {
	pool := &fakePool{rows: map[string]datatypes.Row{
		"'financial'": {"source_code": "SEC_EDGAR", "source_name": "SEC EDGAR"},
	}}
	fetcher := NewFetcher(pool, nil, nil, discardLogger())

	set := fetcher.FetchCitations(context.Background(), "", nil, nil)

	require.NotNil(t, set.Financial)
	assert.Equal(t, "SEC_EDGAR", set.Financial.SourceCode)
	assert.Empty(t, pool.callsTo("m.ticker = :ticker"))
}

func TestFetchCitations_LookupFaultYieldsNilNotError(t *testing.T) {
	pool := &fakePool{err: errors.New("connection refused")}
	fetcher := NewFetcher(pool, nil, nil, discardLogger())

	set := fetcher.FetchCitations(context.Background(), "AAPL", nil, nil)

	assert.Nil(t, set.Financial)
	assert.Nil(t, set.Macro)
}

// =============================================================================
// FormatCitationLine Tests
// =============================================================================

func TestFormatCitationLine(t *testing.T) {
	versionTS := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)

	t.Run("empty set is not available", func(t *testing.T) {
		assert.Equal(t, "Sources: Not available",
			FormatCitationLine(datatypes.CitationSet{}))
	})

	t.Run("financial without as_reported has no suffix", func(t *testing.T) {
		set := datatypes.CitationSet{
			Financial: &datatypes.Citation{SourceCode: "SEC_EDGAR", VersionTS: tsPtr(versionTS)},
		}
		assert.Equal(t, "Sources: SEC_EDGAR", FormatCitationLine(set))
	})

	t.Run("as_reported without timestamp has no suffix", func(t *testing.T) {
		set := datatypes.CitationSet{
			Financial: &datatypes.Citation{SourceCode: "SEC_EDGAR", AsReported: boolPtr(true)},
		}
		assert.Equal(t, "Sources: SEC_EDGAR", FormatCitationLine(set))
	})

	t.Run("as_reported with timestamp carries seconds-precision suffix", func(t *testing.T) {
		set := datatypes.CitationSet{
			Financial: &datatypes.Citation{
				SourceCode: "SEC_EDGAR",
				AsReported: boolPtr(true),
				VersionTS:  tsPtr(versionTS),
			},
		}
		assert.Equal(t, "Sources: SEC_EDGAR (as_reported, 2025-06-01T12:30:45)",
			FormatCitationLine(set))
	})

	t.Run("all three domains join in order", func(t *testing.T) {
		set := datatypes.CitationSet{
			Financial: &datatypes.Citation{SourceCode: "SEC_EDGAR"},
			Stock:     &datatypes.Citation{SourceCode: "POLYGON"},
			Macro:     &datatypes.Citation{SourceCode: "FRED"},
		}
		assert.Equal(t, "Sources: SEC_EDGAR; POLYGON; FRED", FormatCitationLine(set))
	})
}
