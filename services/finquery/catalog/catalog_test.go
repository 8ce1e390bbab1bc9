// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, c.Names())

	def := c.Default()
	require.NotNil(t, def)
	assert.Equal(t, DefaultTemplateName, def.Name)

	// Every template is reachable by name and by its intent.
	for _, name := range c.Names() {
		tpl, ok := c.Get(name)
		require.True(t, ok, name)
		byIntent, ok := c.ByIntent(tpl.Intent)
		require.True(t, ok, tpl.Intent)
		assert.Equal(t, tpl.Name, byIntent.Name)
		assert.NotEmpty(t, tpl.Surfaces, name)
		assert.Contains(t, tpl.Params, "limit", name)
	}
}

func TestLoad_SplitsCommaSeparatedSurfaces(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	tpl, ok := c.Get("peer_compare")
	require.True(t, ok)
	assert.Equal(t, []string{"derived_metrics", "company_master"}, tpl.Surfaces)
}

func TestLoadFile_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	override := `{
	  "templates": {
	    "financial_overview": {
	      "intent": "overview",
	      "surface": "financial_metrics",
	      "sql": "SELECT ticker FROM financial_metrics LIMIT :limit",
	      "params": ["limit"],
	      "default_params": {}
	    }
	  }
	}`
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"financial_overview"}, c.Names())
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty catalog", `{"templates": {}}`},
		{
			"empty sql",
			`{"templates": {"financial_overview": {"intent": "overview", "surface": "s", "sql": ""}}}`,
		},
		{
			"duplicate intent",
			`{"templates": {
			  "financial_overview": {"intent": "overview", "surface": "s", "sql": "SELECT 1"},
			  "other": {"intent": "overview", "surface": "s", "sql": "SELECT 2"}
			}}`,
		},
		{
			"missing default template",
			`{"templates": {"other": {"intent": "overview", "surface": "s", "sql": "SELECT 1"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "templates.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}
