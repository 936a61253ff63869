// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package simulate

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// SummaryLevels are the percentile levels reported for simulated latency:
// 5th through 95th in steps of 5.
var SummaryLevels = func() []float64 {
	levels := make([]float64, 0, 19)
	for p := 5; p <= 95; p += 5 {
		levels = append(levels, float64(p)/100)
	}
	return levels
}()

// Percentiles summarizes each terminal's elapsed-time samples at
// SummaryLevels using linear interpolation. Terminals without samples are
// omitted.
func (r *WalkResult) Percentiles() map[markov.Location][]float64 {
	out := make(map[markov.Location][]float64, len(r.Elapsed))
	for loc, xs := range r.Elapsed {
		if len(xs) == 0 {
			continue
		}
		out[loc] = Quantiles(xs, SummaryLevels)
	}
	return out
}

// Quantiles returns the linearly interpolated quantiles of xs at levels.
// xs is not modified.
func Quantiles(xs []float64, levels []float64) []float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	out := make([]float64, len(levels))
	for i, p := range levels {
		out[i] = stat.Quantile(p, stat.LinInterp, sorted, nil)
	}
	return out
}

// TerminalsAtDepth returns every node reachable from start by a path of
// exactly k edges, sorted.
//
// The search proceeds level by level over node sets, so the cost is bounded
// by k times the edge count regardless of how many distinct paths exist.
func TerminalsAtDepth(g *markov.FixedOrderGraph, start markov.Location, k int) ([]markov.Location, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, k)
	}
	if !g.HasNode(start) {
		return nil, fmt.Errorf("start %s: %w", start, markov.ErrNodeNotFound)
	}
	level := map[markov.Location]struct{}{start: {}}
	for d := 0; d < k && len(level) > 0; d++ {
		next := make(map[markov.Location]struct{})
		for node := range level {
			for _, e := range g.Outgoing(node) {
				next[e.Dst] = struct{}{}
			}
		}
		level = next
	}
	out := make([]markov.Location, 0, len(level))
	for loc := range level {
		out = append(out, loc)
	}
	markov.SortLocations(out)
	return out, nil
}
