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

import "time"

// Citation records the provenance of one data domain. AsReported and
// VersionTS are nil when the source registry did not carry them.
type Citation struct {
	SourceCode string     `json:"source_code"`
	SourceName string     `json:"source_name"`
	AsReported *bool      `json:"as_reported"`
	VersionTS  *time.Time `json:"version_ts"`
}

// CitationSet holds the per-domain citations for one answer. Every field
// is independently optional; a nil field means provenance for that domain
// was unavailable.
type CitationSet struct {
	Financial *Citation `json:"financial"`
	Stock     *Citation `json:"stock"`
	Macro     *Citation `json:"macro"`
}
