// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package citations attaches best-effort provenance to answers. A
// citation lookup never fails the request it decorates: a source that is
// legitimately absent and a lookup that faulted both resolve to a nil
// citation, but only the fault is logged and counted.
package citations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
	"github.com/AleutianAI/AleutianFinance/services/finquery/observability"
	"github.com/AleutianAI/AleutianFinance/services/finquery/warehouse"
)

const (
	// financialScopedSQL pins the financial citation to the exact rows
	// the answer came from: this ticker, this period, newest version.
	// Null fy/fq bindings widen the match the same way the templates do.
	financialScopedSQL = "SELECT r.source_code, r.source_name, m.as_reported, m.version_ts FROM financial_metrics m JOIN source_registry r ON r.source_code = m.source_code WHERE m.ticker = :ticker AND (CAST(:fy AS int) IS NULL OR m.fy = :fy) AND (CAST(:fq AS int) IS NULL OR m.fq = :fq) ORDER BY m.version_ts DESC NULLS LAST LIMIT 1"

	// financialSourceSQL is the registry-wide fallback for answers with
	// no resolved ticker to scope by.
	financialSourceSQL = "SELECT r.source_code, r.source_name, r.as_reported, r.version_ts FROM source_registry r WHERE r.domain = 'financial' ORDER BY r.version_ts DESC NULLS LAST LIMIT 1"

	macroSourceSQL = "SELECT r.source_code, r.source_name, r.as_reported, r.version_ts FROM source_registry r WHERE r.domain = 'macro' ORDER BY r.version_ts DESC NULLS LAST LIMIT 1"

	lookupTimeout = 3 * time.Second
)

// StockProvenance resolves the stock-price source for a ticker.
type StockProvenance interface {
	StockCitation(ctx context.Context, ticker string) (*datatypes.Citation, error)
}

// InfluxStockProvenance reads the most recent price point's source tag
// from the price bucket.
type InfluxStockProvenance struct {
	Client influxdb2.Client
	Org    string
	Bucket string
}

// StockCitation implements StockProvenance.
func (p *InfluxStockProvenance) StockCitation(ctx context.Context, ticker string) (*datatypes.Citation, error) {
	queryAPI := p.Client.QueryAPI(p.Org)

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -30d)
		  |> filter(fn: (r) => r._measurement == "stock_prices")
		  |> filter(fn: (r) => r.ticker == "%s")
		  |> keep(columns: ["_time", "source_code", "source_name"])
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: 1)
	`, p.Bucket, ticker)

	result, err := queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stock provenance query failed: %w", err)
	}
	defer result.Close()

	for result.Next() {
		record := result.Record()
		code, _ := record.ValueByKey("source_code").(string)
		if code == "" {
			continue
		}
		name, _ := record.ValueByKey("source_name").(string)
		ts := record.Time()
		return &datatypes.Citation{
			SourceCode: code,
			SourceName: name,
			VersionTS:  &ts,
		}, nil
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("stock provenance scan failed: %w", result.Err())
	}
	return nil, nil
}

// Fetcher looks up provenance for the three data domains, each
// independently.
type Fetcher struct {
	pool    warehouse.Pool
	stock   StockProvenance
	metrics *observability.PipelineMetrics
	logger  *slog.Logger
}

// NewFetcher builds a Fetcher. stock and metrics may be nil; a nil
// stock backend simply yields no stock citation.
func NewFetcher(pool warehouse.Pool, stock StockProvenance, metrics *observability.PipelineMetrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{pool: pool, stock: stock, metrics: metrics, logger: logger}
}

// FetchCitations resolves the financial, stock and macro citations for
// one answer. The financial lookup is scoped to the answer's ticker and
// period when a ticker resolved. Each domain is fetched independently
// and each may come back nil; no failure here ever propagates to the
// caller.
func (f *Fetcher) FetchCitations(ctx context.Context, ticker string, fy, fq *int) datatypes.CitationSet {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	set := datatypes.CitationSet{
		Financial: f.financialCitation(ctx, ticker, fy, fq),
		Macro:     f.registryCitation(ctx, "macro", macroSourceSQL, map[string]any{}),
	}
	if f.stock != nil && ticker != "" {
		citation, err := f.stock.StockCitation(ctx, ticker)
		if err != nil {
			f.observeFailure("stock", err)
		} else {
			set.Stock = citation
		}
	}
	return set
}

// CitationLine is the fetch-and-format convenience the pipeline calls.
func (f *Fetcher) CitationLine(ctx context.Context, ticker string, period datatypes.Period) string {
	return FormatCitationLine(f.FetchCitations(ctx, ticker, period.FY, period.FQ))
}

func (f *Fetcher) financialCitation(ctx context.Context, ticker string, fy, fq *int) *datatypes.Citation {
	if ticker == "" {
		return f.registryCitation(ctx, "financial", financialSourceSQL, map[string]any{})
	}
	return f.registryCitation(ctx, "financial", financialScopedSQL, map[string]any{
		"ticker": ticker,
		"fy":     nullable(fy),
		"fq":     nullable(fq),
	})
}

func (f *Fetcher) registryCitation(ctx context.Context, domain, sql string, params map[string]any) *datatypes.Citation {
	row, err := f.pool.QueryOne(ctx, sql, params)
	if err != nil {
		f.observeFailure(domain, err)
		return nil
	}
	if row == nil {
		// Legitimately absent, not a fault.
		return nil
	}

	code, _ := row["source_code"].(string)
	if code == "" {
		return nil
	}
	name, _ := row["source_name"].(string)
	citation := &datatypes.Citation{SourceCode: code, SourceName: name}
	if asReported, ok := row["as_reported"].(bool); ok {
		citation.AsReported = &asReported
	}
	if ts, ok := row["version_ts"].(time.Time); ok {
		citation.VersionTS = &ts
	}
	return citation
}

func nullable(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func (f *Fetcher) observeFailure(domain string, err error) {
	f.logger.Warn("Citation lookup failed", "domain", domain, "error", err)
	if f.metrics != nil {
		f.metrics.RecordCitationFailure(domain)
	}
}

// FormatCitationLine renders a citation set as a single display line.
// Present source codes join with "; " after "Sources: "; the financial
// code carries an "(as_reported, <ts>)" suffix only when the flag is set
// and a timestamp exists, with the timestamp trimmed to 19 characters
// (seconds precision). An empty set renders "Sources: Not available".
func FormatCitationLine(set datatypes.CitationSet) string {
	var parts []string
	if c := set.Financial; c != nil {
		part := c.SourceCode
		if c.AsReported != nil && *c.AsReported && c.VersionTS != nil {
			ts := c.VersionTS.Format(time.RFC3339)
			if len(ts) > 19 {
				ts = ts[:19]
			}
			part = fmt.Sprintf("%s (as_reported, %s)", part, ts)
		}
		parts = append(parts, part)
	}
	if c := set.Stock; c != nil {
		parts = append(parts, c.SourceCode)
	}
	if c := set.Macro; c != nil {
		parts = append(parts, c.SourceCode)
	}

	if len(parts) == 0 {
		return "Sources: Not available"
	}

	line := "Sources: " + parts[0]
	for _, part := range parts[1:] {
		line += "; " + part
	}
	return line
}
