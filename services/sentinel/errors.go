// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sentinel exposes trace-model ingestion, comparison, and latency
// simulation as a service with an HTTP API.
package sentinel

import "errors"

// Sentinel errors for the service layer.
var (
	// ErrInvalidRequest indicates a request that failed validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTerminalsRequired indicates a simulation request naming neither
	// terminals nor a depth.
	ErrTerminalsRequired = errors.New("terminals or depth required")
)
