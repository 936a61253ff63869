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
	"fmt"
)

// TransitionProbability is one row of a run's first-order transition table.
type TransitionProbability struct {
	Src         Location `json:"src"`
	Dst         Location `json:"dst"`
	Probability float64  `json:"probability"`
	Count       uint64   `json:"count,omitempty"`
}

// TransitionCDF is one row of a run's latency table.
type TransitionCDF struct {
	Src    Location  `json:"src"`
	Dst    Location  `json:"dst"`
	Grid   []float64 `json:"grid"`
	Values []float64 `json:"values"`
}

// RunTables is the persisted first-order summary of a single run.
type RunTables struct {
	Run         string                  `json:"run"`
	Events      []EventRecord           `json:"events"`
	Transitions []TransitionProbability `json:"transitions"`
	CDFs        []TransitionCDF         `json:"cdfs"`
}

// EventProbabilities returns the event table as a map.
func (r *RunTables) EventProbabilities() map[Location]float64 {
	out := make(map[Location]float64, len(r.Events))
	for _, ev := range r.Events {
		out[ev.Location] = ev.Probability
	}
	return out
}

// TransitionProbabilities returns the transition table keyed by (src, dst).
func (r *RunTables) TransitionProbabilities() map[[2]Location]float64 {
	out := make(map[[2]Location]float64, len(r.Transitions))
	for _, t := range r.Transitions {
		out[[2]Location{t.Src, t.Dst}] = t.Probability
	}
	return out
}

// CDFFor returns the latency CDF of src->dst.
func (r *RunTables) CDFFor(src, dst Location) (CDF, error) {
	for _, c := range r.CDFs {
		if c.Src == src && c.Dst == dst {
			return NewCDF(c.Grid, c.Values)
		}
	}
	return nil, fmt.Errorf("%w: run %q %s->%s", ErrMissingCDF, r.Run, src, dst)
}

// Graph builds the fixed-order graph for the run.
//
// Description:
//
//	Every transition row must have a matching CDF row; a missing one is a
//	lookup failure (ErrMissingCDF) reported to the caller, not skipped.
//	Event locations without transitions become isolated nodes.
func (r *RunTables) Graph() (*FixedOrderGraph, error) {
	cdfs := make(map[[2]Location]TransitionCDF, len(r.CDFs))
	for _, c := range r.CDFs {
		cdfs[[2]Location{c.Src, c.Dst}] = c
	}
	edges := make([]Edge, 0, len(r.Transitions))
	for _, t := range r.Transitions {
		row, ok := cdfs[[2]Location{t.Src, t.Dst}]
		if !ok {
			return nil, fmt.Errorf("%w: run %q %s->%s", ErrMissingCDF, r.Run, t.Src, t.Dst)
		}
		cdf, err := NewCDF(row.Grid, row.Values)
		if err != nil {
			return nil, fmt.Errorf("run %q %s->%s: %w", r.Run, t.Src, t.Dst, err)
		}
		edges = append(edges, Edge{Src: t.Src, Dst: t.Dst, Probability: t.Probability, Elapsed: cdf})
	}
	nodes := make([]Location, 0, len(r.Events))
	for _, ev := range r.Events {
		nodes = append(nodes, ev.Location)
	}
	return NewFixedOrderGraph(edges, nodes...)
}
