// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog loads and serves the SQL template catalog.
//
// The catalog ships embedded in the binary and may be overridden by a
// JSON file at startup. It is loaded exactly once, validated eagerly, and
// immutable afterwards; a malformed catalog aborts service
// initialization rather than degrading at query time.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

//go:embed templates.json
var embeddedTemplates []byte

// DefaultTemplateName is the template every unmatched intent routes to.
const DefaultTemplateName = "financial_overview"

type templateEntry struct {
	Intent        string         `json:"intent"`
	Surface       string         `json:"surface"`
	SQL           string         `json:"sql"`
	Params        []string       `json:"params"`
	DefaultParams map[string]any `json:"default_params"`
	Description   string         `json:"description"`
}

type catalogFile struct {
	Templates map[string]templateEntry `json:"templates"`
}

// Catalog is the immutable, load-once template registry.
type Catalog struct {
	byName   map[string]*datatypes.Template
	byIntent map[string]*datatypes.Template
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return parse(embeddedTemplates)
}

// LoadFile parses a catalog override from disk. Used when operators ship
// site-specific templates without rebuilding the binary.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template catalog %s: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template catalog: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("template catalog declares no templates")
	}

	c := &Catalog{
		byName:   make(map[string]*datatypes.Template, len(file.Templates)),
		byIntent: make(map[string]*datatypes.Template, len(file.Templates)),
	}

	for name, entry := range file.Templates {
		if entry.SQL == "" {
			return nil, fmt.Errorf("template %q has empty sql", name)
		}
		if entry.Intent == "" {
			return nil, fmt.Errorf("template %q has empty intent", name)
		}
		tpl := &datatypes.Template{
			Name:          name,
			Intent:        entry.Intent,
			Surfaces:      splitSurfaces(entry.Surface),
			SQL:           entry.SQL,
			Params:        entry.Params,
			DefaultParams: entry.DefaultParams,
			Description:   entry.Description,
		}
		if tpl.DefaultParams == nil {
			tpl.DefaultParams = map[string]any{}
		}
		if len(tpl.Surfaces) == 0 {
			return nil, fmt.Errorf("template %q declares no surfaces", name)
		}
		c.byName[name] = tpl
		if prior, dup := c.byIntent[entry.Intent]; dup {
			return nil, fmt.Errorf("templates %q and %q both claim intent %q", prior.Name, name, entry.Intent)
		}
		c.byIntent[entry.Intent] = tpl
	}

	if _, ok := c.byName[DefaultTemplateName]; !ok {
		return nil, fmt.Errorf("template catalog is missing default template %q", DefaultTemplateName)
	}

	slog.Info("Loaded template catalog", "templates", len(c.byName))
	return c, nil
}

func splitSurfaces(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ByIntent returns the template whose intent exactly equals intent.
func (c *Catalog) ByIntent(intent string) (*datatypes.Template, bool) {
	tpl, ok := c.byIntent[intent]
	return tpl, ok
}

// Get returns a template by catalog name.
func (c *Catalog) Get(name string) (*datatypes.Template, bool) {
	tpl, ok := c.byName[name]
	return tpl, ok
}

// Default returns the fixed fallback template.
func (c *Catalog) Default() *datatypes.Template {
	return c.byName[DefaultTemplateName]
}

// Names lists all template names, sorted for stable iteration.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
