// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// EventRatio compares one location's event probability across two runs.
type EventRatio struct {
	Location    markov.Location `json:"location"`
	Ratio       float64         `json:"ratio"`
	Left        float64         `json:"left"`
	Right       float64         `json:"right"`
	LeftGreater bool            `json:"left_greater"`
}

// PairRatio compares one ordered (src, dst) pair across two runs.
type PairRatio struct {
	Src         markov.Location `json:"src"`
	Dst         markov.Location `json:"dst"`
	Ratio       float64         `json:"ratio"`
	Left        float64         `json:"left"`
	Right       float64         `json:"right"`
	LeftGreater bool            `json:"left_greater"`
}

// FixedOrderReport is the result of FixedOrder.
type FixedOrderReport struct {
	// Aggregate is the sum over all ordered pairs of the squared difference
	// of joint scores p(src) * T(src, dst).
	Aggregate float64 `json:"aggregate"`

	// Events holds one ratio per observed location, descending.
	Events []EventRatio `json:"events"`

	// Scores ranks pairs by joint-score ratio. Pairs where either side is
	// zero are omitted.
	Scores []PairRatio `json:"scores"`

	// Transitions ranks pairs by raw transition-probability ratio. Pairs
	// where either side is zero are omitted.
	Transitions []PairRatio `json:"transitions"`
}

// EventRatios compares event probabilities over the union of locations.
//
// The ratio is max/min, or 1.0 when either side is zero: absence alone is
// not reported as an infinite difference.
func EventRatios(left, right map[markov.Location]float64) []EventRatio {
	out := make([]EventRatio, 0, len(left)+len(right))
	for _, loc := range unionLocations(left, right) {
		l, r := left[loc], right[loc]
		ratio := 1.0
		if lo := min(l, r); lo > 0 {
			ratio = max(l, r) / lo
		}
		out = append(out, EventRatio{Location: loc, Ratio: ratio, Left: l, Right: r, LeftGreater: l > r})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ratio > out[j].Ratio })
	return out
}

// FixedOrder diffs two first-order run tables.
//
// Description:
//
//	Every ordered pair over the union of event locations is visited. This
//	is quadratic in the location count by construction: reporting pairs
//	that neither run observed as a transition is part of the result, so
//	the scan is not narrowed to observed transitions. Runs with tens of
//	thousands of locations should be diffed with VariableOrder instead.
//
// Inputs:
//
//	ctx - Carries the trace span.
//	left, right - The two runs' tables.
//
// Outputs:
//
//	*FixedOrderReport - Never nil.
func FixedOrder(ctx context.Context, left, right *markov.RunTables) *FixedOrderReport {
	ctx, span := tracer.Start(ctx, "diff.FixedOrder",
		trace.WithAttributes(
			attribute.String("diff.left_run", left.Run),
			attribute.String("diff.right_run", right.Run),
		),
	)
	defer span.End()
	start := time.Now()

	le, re := left.EventProbabilities(), right.EventProbabilities()
	lt, rt := left.TransitionProbabilities(), right.TransitionProbabilities()
	locs := unionLocations(le, re)

	report := &FixedOrderReport{Events: EventRatios(le, re)}
	for _, src := range locs {
		for _, dst := range locs {
			pair := [2]markov.Location{src, dst}
			lTrans, rTrans := lt[pair], rt[pair]
			lScore, rScore := le[src]*lTrans, re[src]*rTrans

			d := lScore - rScore
			report.Aggregate += d * d

			leftGreater := lScore > rScore
			if lo := min(lScore, rScore); lo > 0 {
				report.Scores = append(report.Scores, PairRatio{
					Src: src, Dst: dst, Ratio: max(lScore, rScore) / lo,
					Left: lScore, Right: rScore, LeftGreater: leftGreater,
				})
			}
			if lo := min(lTrans, rTrans); lo > 0 {
				report.Transitions = append(report.Transitions, PairRatio{
					Src: src, Dst: dst, Ratio: max(lTrans, rTrans) / lo,
					Left: lTrans, Right: rTrans, LeftGreater: leftGreater,
				})
			}
		}
	}
	sortPairs(report.Scores)
	sortPairs(report.Transitions)

	span.SetAttributes(
		attribute.Int("diff.locations", len(locs)),
		attribute.Float64("diff.aggregate", report.Aggregate),
	)
	recordDiffMetrics(ctx, "fixed_order", time.Since(start), len(report.Scores), true)
	return report
}

func sortPairs(ps []PairRatio) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Ratio > ps[j].Ratio })
}

func unionLocations[V any](a, b map[markov.Location]V) []markov.Location {
	seen := make(map[markov.Location]struct{}, len(a)+len(b))
	for loc := range a {
		seen[loc] = struct{}{}
	}
	for loc := range b {
		seen[loc] = struct{}{}
	}
	out := make([]markov.Location, 0, len(seen))
	for loc := range seen {
		out = append(out, loc)
	}
	markov.SortLocations(out)
	return out
}
