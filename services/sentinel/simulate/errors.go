// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package simulate estimates end-to-end latency over a fixed-order graph.
//
// A simulation is two steps:
//
//  1. Prune marks every edge that lies on a sufficiently probable, loop-free
//     path from the start node to one of the terminal nodes. The marks are
//     returned as a Reachability value; the graph itself is never written.
//  2. Simulator.Run performs independent Monte Carlo walks restricted to the
//     marked edges, sampling each step's elapsed time from the edge's CDF,
//     and reports per-terminal hit counts and latency samples.
//
// # Thread Safety
//
// A Reachability is immutable and may back any number of concurrent runs.
// Run fans walks out across workers, each with its own random stream.
package simulate

import "errors"

// Sentinel errors for simulation.
var (
	// ErrNoTerminals is returned when the goal set is empty.
	ErrNoTerminals = errors.New("no terminal nodes")

	// ErrNoPathToTerminal is returned when the start node is not terminal
	// and no marked edge leaves it. This is a configuration error: the
	// chosen terminals cannot be reached above the cutoff.
	ErrNoPathToTerminal = errors.New("no path from start to any terminal")

	// ErrSelectionExhausted is returned when roulette selection runs past
	// every candidate edge. The renormalized probabilities did not sum to
	// one, which is an internal defect; it is never retried.
	ErrSelectionExhausted = errors.New("roulette selection exhausted all candidates")

	// ErrWalkDiverged is returned when a walk exceeds the step limit
	// without reaching a terminal.
	ErrWalkDiverged = errors.New("walk exceeded step limit")

	// ErrSearchDepthExceeded is returned when a pruning path grows deeper
	// than the depth limit.
	ErrSearchDepthExceeded = errors.New("reachability search depth exceeded")

	// ErrInvalidWalkCount is returned for a negative number of walks.
	ErrInvalidWalkCount = errors.New("walk count must not be negative")

	// ErrInvalidDepth is returned for a negative depth.
	ErrInvalidDepth = errors.New("depth must not be negative")
)
