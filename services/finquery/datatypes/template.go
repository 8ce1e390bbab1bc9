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

// Template is a named, catalog-registered SQL statement with declared
// placeholders. Templates are immutable after catalog load; they are the
// authoritative description of what SQL may ever run on the template
// path.
type Template struct {
	// Name is the catalog key, unique across the catalog.
	Name string

	// Intent is the classification label this template serves. The
	// router matches it exactly.
	Intent string

	// Surfaces lists the table/view names the SQL touches, in the order
	// declared by the catalog author.
	Surfaces []string

	// SQL is the statement text with :name placeholders.
	SQL string

	// Params names every placeholder the SQL declares.
	Params []string

	// DefaultParams seeds the planner's parameter map.
	DefaultParams map[string]any

	Description string
}

// DeclaresParam reports whether the template lists name as a placeholder.
func (t *Template) DeclaresParam(name string) bool {
	for _, p := range t.Params {
		if p == name {
			return true
		}
	}
	return false
}
