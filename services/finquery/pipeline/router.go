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
	"log/slog"

	"github.com/AleutianAI/AleutianFinance/services/finquery/catalog"
	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

// Router maps a task's intent to a catalog template. Routing is total:
// every task yields a routed task, with unknown intents landing on the
// default template.
type Router struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewRouter builds a Router over a loaded catalog.
func NewRouter(cat *catalog.Catalog, logger *slog.Logger) *Router {
	return &Router{catalog: cat, logger: logger}
}

// Route resolves the template for a task. When no template declares the
// task's intent, the default template is used and the routed task is
// marked as a fallback so the planner can consider the generative path.
func (r *Router) Route(task datatypes.Task) datatypes.RoutedTask {
	tmpl, ok := r.catalog.ByIntent(task.Intent)
	fallback := !ok
	if fallback {
		tmpl = r.catalog.Default()
		r.logger.Debug("no template for intent, using default",
			"intent", task.Intent,
			"template", tmpl.Name,
		)
	}

	surfaces := make([]string, len(tmpl.Surfaces))
	copy(surfaces, tmpl.Surfaces)

	return datatypes.RoutedTask{
		Task:         task,
		TemplateName: tmpl.Name,
		Template:     tmpl,
		Surfaces:     surfaces,
		Fallback:     fallback,
	}
}
