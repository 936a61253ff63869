// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package markov provides the transition models learned from execution traces.
//
// Two model families live here:
//
//   - VariableOrderGraph: P(next | s-k, ..., s) where k varies per context.
//     Built from aggregated counts, validated against the order-reduction
//     invariant, then used read-only for diffing or serialized for storage.
//   - FixedOrderGraph: the first-order case, with probability and
//     elapsed-time CDF annotated edges, used for latency simulation.
//
// Both share ContextIndex, which resolves a context to the most specific
// bucket present, falling back to shorter suffixes.
//
// # Ownership Model
//
// Models copy their input maps on construction. Slices returned from
// accessors are fresh copies unless documented otherwise; Transition values
// returned from the index share their Context backing arrays and MUST NOT be
// mutated.
//
// # Thread Safety
//
// VariableOrderGraph and FixedOrderGraph are safe for concurrent reads once
// constructed. Merge is the only mutating operation and must not run
// concurrently with readers.
package markov

import (
	"errors"
	"fmt"
)

// Sentinel errors for model operations.
var (
	// ErrModelInvariantViolation is returned when a stored context is a proper
	// suffix of another stored context in the same model. A model that fails
	// this check must not be used for diffing or simulation.
	ErrModelInvariantViolation = errors.New("model invariant violation")

	// ErrNodeNotFound is returned when a location is not a node of the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeNotFound is returned when no edge joins two nodes.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrMissingCDF is returned when a transition has no elapsed-time CDF.
	ErrMissingCDF = errors.New("missing transition time CDF")

	// ErrInvalidCDF is returned when a CDF is empty or not monotone.
	ErrInvalidCDF = errors.New("invalid transition time CDF")

	// ErrInvalidProbability is returned for probabilities outside [0, 1].
	ErrInvalidProbability = errors.New("probability out of range")

	// ErrInvalidLocation is returned when a location string cannot be parsed.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrDecode is returned when serialized model data cannot be decoded.
	ErrDecode = errors.New("decode model")
)

// ModelInvariantError describes which pair of contexts broke the
// order-reduction invariant.
type ModelInvariantError struct {
	// Context is the longer, more specific context present in the model.
	Context []Location

	// Suffix is the proper suffix of Context that is also present.
	Suffix []Location
}

// Error implements error.
func (e *ModelInvariantError) Error() string {
	return fmt.Sprintf("%s: context %s in model, but so is its suffix %s",
		ErrModelInvariantViolation.Error(), FormatContext(e.Context), FormatContext(e.Suffix))
}

// Unwrap allows errors.Is(err, ErrModelInvariantViolation).
func (e *ModelInvariantError) Unwrap() error {
	return ErrModelInvariantViolation
}
