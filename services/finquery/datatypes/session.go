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

// SessionState is the continuity record kept per session id. LastTickers
// is a sliding window: unique values, append on new, truncated from the
// front, most recently seen last.
type SessionState struct {
	LastTickers      []string          `json:"last_tickers"`
	LastPeriod       *Period           `json:"last_period"`
	LastSurfaces     []string          `json:"last_surfaces"`
	AliasResolutions map[string]string `json:"alias_resolutions"`
	QueryCount       int               `json:"query_count"`
}
