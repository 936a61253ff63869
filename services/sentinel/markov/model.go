// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package markov

import (
	"sort"
)

// VariableOrderGraph is a variable-order Markov model learned from traces.
//
// Description:
//
//	Owns raw event counts (normalized into probabilities on demand of the
//	total), raw transition counts keyed by exact (context, next) identity,
//	and a ContextIndex over those transitions. Conditional probabilities are
//	never cached here; the diff engine derives them from counts.
//
// Thread Safety: Safe for concurrent reads. Merge must be externally
// serialized with all other access.
type VariableOrderGraph struct {
	known       []Location
	events      map[Location]uint64
	total       uint64
	counts      map[TransitionKey]uint64
	transitions map[TransitionKey]Transition
	index       *ContextIndex[Transition]
}

// GraphOption configures a VariableOrderGraph at construction.
type GraphOption func(*VariableOrderGraph)

// WithKnownLocations records the list of locations the tracer knew about,
// including ones that never fired. Order is preserved.
func WithKnownLocations(locs []Location) GraphOption {
	return func(g *VariableOrderGraph) {
		g.known = appendUnique(g.known, locs)
	}
}

// NewVariableOrderGraph returns an empty model.
func NewVariableOrderGraph(opts ...GraphOption) *VariableOrderGraph {
	g := &VariableOrderGraph{
		events:      make(map[Location]uint64),
		counts:      make(map[TransitionKey]uint64),
		transitions: make(map[TransitionKey]Transition),
		index:       NewContextIndex[Transition](),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FromCounts builds a model from aggregated counts.
//
// Description:
//
//	Event counts are normalized by their sum. Transition counts are stored
//	verbatim; repeated transitions in the input are summed. An empty input
//	yields an empty, valid model. The result is not validated; call Validate
//	before diffing.
//
// Inputs:
//
//	eventCounts - Observed count per location. Copied.
//	transitions - Observed count per (context, next). Contexts are copied.
//	opts - Optional configuration such as WithKnownLocations.
//
// Outputs:
//
//	*VariableOrderGraph - The constructed model. Never nil.
func FromCounts(eventCounts map[Location]uint64, transitions []TransitionCount, opts ...GraphOption) *VariableOrderGraph {
	g := NewVariableOrderGraph(opts...)
	for loc, c := range eventCounts {
		g.events[loc] += c
		g.total += c
	}
	for _, tc := range transitions {
		g.addTransition(NewTransition(tc.Transition.Context, tc.Transition.Next), tc.Count)
	}
	return g
}

func (g *VariableOrderGraph) addTransition(t Transition, count uint64) {
	key := t.Key()
	if _, ok := g.transitions[key]; !ok {
		g.transitions[key] = t
		g.index.Add(t.Context, t)
	}
	g.counts[key] += count
}

// Validate checks the order-reduction invariant.
//
// Description:
//
//	For every stored context, each proper suffix (down to and including the
//	empty context) is tested for exact membership in the index. The first
//	hit, in sorted context order, is reported.
//
// Outputs:
//
//	error - *ModelInvariantError (wrapping ErrModelInvariantViolation) or nil.
func (g *VariableOrderGraph) Validate() error {
	contexts := g.index.Contexts()
	sort.Slice(contexts, func(i, j int) bool { return KeyOf(contexts[i]) < KeyOf(contexts[j]) })
	for _, ctx := range contexts {
		for start := 1; start <= len(ctx); start++ {
			suffix := ctx[start:]
			if g.index.Contains(suffix) {
				return &ModelInvariantError{
					Context: append([]Location(nil), ctx...),
					Suffix:  append([]Location(nil), suffix...),
				}
			}
		}
	}
	return nil
}

// Merge folds other into g.
//
// Description:
//
//	Known locations are unioned preserving first-seen order. Event and
//	transition counts are summed key-wise. Probabilities follow from the new
//	totals. Merge does not validate; two valid models can merge into an
//	invalid one, so callers must Validate afterwards.
//
// Thread Safety: Not safe for concurrent use with any other method on g.
func (g *VariableOrderGraph) Merge(other *VariableOrderGraph) {
	if other == nil {
		return
	}
	g.known = appendUnique(g.known, other.known)
	for loc, c := range other.events {
		g.events[loc] += c
		g.total += c
	}
	for key, t := range other.transitions {
		g.addTransition(NewTransition(t.Context, t.Next), other.counts[key])
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Events returns every event with its probability, sorted by location.
func (g *VariableOrderGraph) Events() []EventRecord {
	out := make([]EventRecord, 0, len(g.events))
	for loc := range g.events {
		out = append(out, EventRecord{Location: loc, Probability: g.probability(loc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location.Less(out[j].Location) })
	return out
}

// Event returns the probability record for loc.
func (g *VariableOrderGraph) Event(loc Location) (EventRecord, bool) {
	if _, ok := g.events[loc]; !ok {
		return EventRecord{}, false
	}
	return EventRecord{Location: loc, Probability: g.probability(loc)}, true
}

// EventCount returns the raw count for loc, 0 when absent.
func (g *VariableOrderGraph) EventCount(loc Location) uint64 {
	return g.events[loc]
}

// EventCounts returns a copy of the raw event count table.
func (g *VariableOrderGraph) EventCounts() map[Location]uint64 {
	out := make(map[Location]uint64, len(g.events))
	for loc, c := range g.events {
		out[loc] = c
	}
	return out
}

// TotalEvents is the sum of all event counts.
func (g *VariableOrderGraph) TotalEvents() uint64 {
	return g.total
}

func (g *VariableOrderGraph) probability(loc Location) float64 {
	if g.total == 0 {
		return 0
	}
	return float64(g.events[loc]) / float64(g.total)
}

// Transitions returns every stored transition sorted by key.
//
// The returned transitions share Context backing arrays with the model.
func (g *VariableOrderGraph) Transitions() []Transition {
	out := make([]Transition, 0, len(g.transitions))
	for _, t := range g.transitions {
		out = append(out, t)
	}
	SortTransitions(out)
	return out
}

// TransitionCounts returns every transition with its count, sorted by key.
func (g *VariableOrderGraph) TransitionCounts() []TransitionCount {
	ts := g.Transitions()
	out := make([]TransitionCount, len(ts))
	for i, t := range ts {
		out[i] = TransitionCount{Transition: t, Count: g.counts[t.Key()]}
	}
	return out
}

// Count returns the stored count for the exact transition t, 0 when absent.
func (g *VariableOrderGraph) Count(t Transition) uint64 {
	return g.counts[t.Key()]
}

// Has reports whether the exact transition t is stored.
func (g *VariableOrderGraph) Has(t Transition) bool {
	_, ok := g.transitions[t.Key()]
	return ok
}

// KnownLocations returns a copy of the known-location list.
func (g *VariableOrderGraph) KnownLocations() []Location {
	return append([]Location(nil), g.known...)
}

// Index exposes the context index for suffix-fallback lookups.
func (g *VariableOrderGraph) Index() *ContextIndex[Transition] {
	return g.index
}

// NumTransitions returns the number of distinct transitions.
func (g *VariableOrderGraph) NumTransitions() int {
	return len(g.transitions)
}

// Empty reports whether the model holds no events and no transitions.
func (g *VariableOrderGraph) Empty() bool {
	return len(g.events) == 0 && len(g.transitions) == 0
}

func appendUnique(dst, src []Location) []Location {
	seen := make(map[Location]struct{}, len(dst))
	for _, loc := range dst {
		seen[loc] = struct{}{}
	}
	for _, loc := range src {
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		dst = append(dst, loc)
	}
	return dst
}
