// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff compares transition models learned from two runs.
//
// Three comparisons are provided:
//
//   - VariableOrder: reconciles transitions whose contexts were reduced to
//     different depths in each model, then scores per-transition
//     conditional-probability divergence with a Welch significance test.
//   - FixedOrder: event probability ratios and a dense all-pairs scan of
//     joint (event x transition) scores over first-order run tables.
//   - Distances: earth mover's distance between per-transition latency CDFs,
//     computed in parallel over independent transition pairs.
//
// All comparisons are read-only on their inputs.
package diff

import "errors"

// Sentinel errors for diff operations.
var (
	// ErrInconsistentDiff is returned when a unified transition resolves to
	// a zero count in both models. Unification only emits observed
	// transitions, so this indicates a defect and is never retried.
	ErrInconsistentDiff = errors.New("inconsistent diff: transition absent from both models")

	// ErrNilModel is returned when a model argument is nil.
	ErrNilModel = errors.New("nil model")

	// ErrShapeMismatch is returned when weight vectors and the cost matrix
	// disagree in size.
	ErrShapeMismatch = errors.New("distribution and cost matrix shapes differ")

	// ErrEmptyDistribution is returned when a weight vector has no mass.
	ErrEmptyDistribution = errors.New("distribution has no mass")
)
