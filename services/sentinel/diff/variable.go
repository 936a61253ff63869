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
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// =============================================================================
// Conditional probability
// =============================================================================

// Conditional is a conditional probability recovered from counts.
type Conditional struct {
	// Probability is Match / Total, 0 when Total is 0.
	Probability float64

	// Match is the count of the transition to the requested next location.
	Match uint64

	// Total is the summed count of every transition sharing the resolved
	// context.
	Total uint64

	// Resolved is the context actually found, possibly a suffix of the
	// requested one. Nil when no suffix was present.
	Resolved []markov.Location
}

// ConditionalProbability recovers P(t.Next | t.Context) from model counts.
//
// Description:
//
//	Resolves t.Context with suffix fallback. A reduced context applies to
//	every next location equally, so the count at the resolved suffix is the
//	count of the longer transition. A context with no present suffix yields
//	probability 0.
func ConditionalProbability(model *markov.VariableOrderGraph, t markov.Transition) Conditional {
	bucket, resolved := model.Index().Find(t.Context)
	var c Conditional
	c.Resolved = resolved
	for _, sibling := range bucket {
		n := model.Count(sibling)
		c.Total += n
		if sibling.Next == t.Next {
			c.Match = n
		}
	}
	if c.Total > 0 {
		c.Probability = float64(c.Match) / float64(c.Total)
	}
	return c
}

// =============================================================================
// Variable-order diff
// =============================================================================

// Options configures VariableOrder.
type Options struct {
	// LowConfidenceThreshold flags records whose smaller sample size is below
	// it. Zero selects DefaultLowConfidenceThreshold.
	LowConfidenceThreshold uint64

	// SkipValidation trusts the caller to have validated both models.
	SkipValidation bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{LowConfidenceThreshold: DefaultLowConfidenceThreshold}
}

// Record is the diff of one unified transition.
type Record struct {
	Transition markov.Transition `json:"transition"`

	LeftProbability  float64 `json:"left_probability"`
	RightProbability float64 `json:"right_probability"`

	// LeftMatch and RightMatch are the numerator counts.
	LeftMatch  uint64 `json:"left_match"`
	RightMatch uint64 `json:"right_match"`

	// LeftMiss and RightMiss are the context-occurrence denominators.
	LeftMiss  uint64 `json:"left_miss"`
	RightMiss uint64 `json:"right_miss"`

	// Score is max/min of the two probabilities when both are nonzero and
	// unequal, 0 when equal or uncomparable.
	Score float64 `json:"score"`

	// Uncomparable marks presence/absence: exactly one side is zero.
	Uncomparable bool `json:"uncomparable"`

	PValue        float64 `json:"p_value"`
	Tested        bool    `json:"tested"`
	LowConfidence bool    `json:"low_confidence"`
}

// Swapped returns the record with left and right exchanged.
func (r Record) Swapped() Record {
	r.LeftProbability, r.RightProbability = r.RightProbability, r.LeftProbability
	r.LeftMatch, r.RightMatch = r.RightMatch, r.LeftMatch
	r.LeftMiss, r.RightMiss = r.RightMiss, r.LeftMiss
	return r
}

// VariableOrderReport is the full, ranked result of VariableOrder.
type VariableOrderReport struct {
	// Events compares the two models' event probabilities.
	Events []EventRatio `json:"events"`

	// Records holds one entry per unified transition.
	Records []Record `json:"records"`
}

// Comparable returns the records where both sides observed the transition.
func (r *VariableOrderReport) Comparable() []Record {
	out := make([]Record, 0, len(r.Records))
	for _, rec := range r.Records {
		if !rec.Uncomparable {
			out = append(out, rec)
		}
	}
	return out
}

// Uncomparable returns the presence/absence records.
func (r *VariableOrderReport) Uncomparable() []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.Uncomparable {
			out = append(out, rec)
		}
	}
	return out
}

// TopK returns at most k comparable records by descending score.
func (r *VariableOrderReport) TopK(k int) []Record {
	c := r.Comparable()
	if k >= 0 && len(c) > k {
		c = c[:k]
	}
	return c
}

// VariableOrder diffs two variable-order models.
//
// Description:
//
//	Unifies the transition sets, recovers each side's conditional
//	probability through suffix-fallback lookup, scores the divergence, and
//	runs a Welch proportion test. Records are ordered by descending score,
//	then transition key. Diffing (b, a) yields the same transitions and
//	scores with left and right swapped.
//
// Inputs:
//
//	ctx - Carries the trace span. The diff itself does not block.
//	a, b - Validated models. Both are validated here unless
//	       opts.SkipValidation is set.
//	opts - Thresholds.
//
// Outputs:
//
//	*VariableOrderReport - Empty (not nil) for empty models.
//	error - ErrNilModel, *markov.ModelInvariantError, or ErrInconsistentDiff.
func VariableOrder(ctx context.Context, a, b *markov.VariableOrderGraph, opts Options) (*VariableOrderReport, error) {
	ctx, span := tracer.Start(ctx, "diff.VariableOrder",
		trace.WithAttributes(
			attribute.Int("diff.left_transitions", numTransitions(a)),
			attribute.Int("diff.right_transitions", numTransitions(b)),
		),
	)
	defer span.End()
	start := time.Now()

	report, err := variableOrder(a, b, opts)
	recordDiffMetrics(ctx, "variable_order", time.Since(start), report.size(), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("diff.records", len(report.Records)))
	slog.Debug("variable-order diff complete",
		slog.Int("records", len(report.Records)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func variableOrder(a, b *markov.VariableOrderGraph, opts Options) (*VariableOrderReport, error) {
	if a == nil || b == nil {
		return nil, ErrNilModel
	}
	if !opts.SkipValidation {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("left model: %w", err)
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("right model: %w", err)
		}
	}
	threshold := opts.LowConfidenceThreshold
	if threshold == 0 {
		threshold = DefaultLowConfidenceThreshold
	}

	unified := UnifyTransitions(a, b)
	report := &VariableOrderReport{
		Events:  EventRatios(eventProbabilities(a), eventProbabilities(b)),
		Records: make([]Record, 0, len(unified)),
	}
	for _, t := range unified {
		left := ConditionalProbability(a, t)
		right := ConditionalProbability(b, t)
		if left.Match == 0 && right.Match == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInconsistentDiff, t)
		}
		report.Records = append(report.Records, newRecord(t, left, right, threshold))
	}

	sort.SliceStable(report.Records, func(i, j int) bool {
		ri, rj := report.Records[i], report.Records[j]
		if ri.Score != rj.Score {
			return ri.Score > rj.Score
		}
		return ri.Transition.Key() < rj.Transition.Key()
	})
	return report, nil
}

func newRecord(t markov.Transition, left, right Conditional, threshold uint64) Record {
	rec := Record{
		Transition:       t,
		LeftProbability:  left.Probability,
		RightProbability: right.Probability,
		LeftMatch:        left.Match,
		RightMatch:       right.Match,
		LeftMiss:         left.Total,
		RightMiss:        right.Total,
		PValue:           1,
	}

	pl, pr := left.Probability, right.Probability
	switch {
	case (pl == 0) != (pr == 0):
		rec.Uncomparable = true
	case pl != pr:
		rec.Score = max(pl/pr, pr/pl)
	}

	if !rec.Uncomparable {
		res := WelchProportionTest(pl, left.Total, pr, right.Total)
		rec.PValue = res.PValue
		rec.Tested = res.Tested
	}
	rec.LowConfidence = min(left.Total, right.Total) < threshold
	return rec
}

func eventProbabilities(g *markov.VariableOrderGraph) map[markov.Location]float64 {
	events := g.Events()
	out := make(map[markov.Location]float64, len(events))
	for _, ev := range events {
		out[ev.Location] = ev.Probability
	}
	return out
}

func numTransitions(g *markov.VariableOrderGraph) int {
	if g == nil {
		return 0
	}
	return g.NumTransitions()
}

func (r *VariableOrderReport) size() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}
