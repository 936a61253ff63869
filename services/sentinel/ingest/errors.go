// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest turns raw tracer output into models and run tables.
//
// Two inputs are understood: per-thread dump files carrying event and
// variable-order transition counts, and flat latency sample files carrying
// one elapsed time per line for a single transition.
package ingest

import "errors"

var (
	// ErrDuplicateID is returned when a dump assigns the same event id twice.
	ErrDuplicateID = errors.New("duplicate event id")

	// ErrUnknownID is returned when a transition references an event id the
	// dump never declared.
	ErrUnknownID = errors.New("unknown event id")

	// ErrMalformedLine is returned for a dump line that fits neither format.
	ErrMalformedLine = errors.New("malformed dump line")

	// ErrNoDumps is returned when a directory holds no matching dump files.
	ErrNoDumps = errors.New("no dump files found")

	// ErrNothingToWatch is returned by NewWatcher when no directory is given.
	ErrNothingToWatch = errors.New("no directories to watch")

	// ErrNoSamples is returned when a latency file group yields no values.
	ErrNoSamples = errors.New("no latency samples")

	// ErrMalformedSampleName is returned when a latency file name does not
	// encode a source and destination location.
	ErrMalformedSampleName = errors.New("malformed latency file name")

	// ErrInconsistentCounts is returned when a transition is seen more often
	// than its source event.
	ErrInconsistentCounts = errors.New("transition count exceeds event count")
)
