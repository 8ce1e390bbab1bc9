// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
This file bridges the build system and the runtime validator. The allowed
surfaces file is baked into the compiled binary with the Go embed package
so the query allowlist is immutable at runtime and travels with the
executable.
*/

package enforcement

import (
	_ "embed"
)

// AllowedSurfaces holds the raw byte content of 'allowed_surfaces.yaml'.
//
// Populated at compile time by the 'embed' directive. Baking the YAML
// into the binary ensures the allowlist cannot be tampered with on the
// host filesystem without recompiling the application.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.AllowedSurfaces, &targetStruct)
//
//go:embed allowed_surfaces.yaml
var AllowedSurfaces []byte
