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
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// Default pruning parameters.
const (
	DefaultCutoff   = 1e-5
	DefaultMaxDepth = 10000
)

// ctxCheckInterval is how many DFS steps run between cancellation checks.
const ctxCheckInterval = 1024

// PruneOptions configures Prune.
type PruneOptions struct {
	// Cutoff is the smallest cumulative path probability still explored.
	Cutoff float64

	// AllowLoops permits revisiting a node already on the current path.
	AllowLoops bool

	// MaxDepth bounds the length of the current path.
	MaxDepth int
}

// DefaultPruneOptions returns the options used before a walk: cutoff 1e-5,
// loops disallowed.
func DefaultPruneOptions() PruneOptions {
	return PruneOptions{Cutoff: DefaultCutoff, MaxDepth: DefaultMaxDepth}
}

type edgeKey [2]markov.Location

// Reachability holds the good/bad edge classification for one start node
// and terminal set. An edge absent from the good set is bad.
//
// Thread Safety: Immutable after Prune returns.
type Reachability struct {
	// Start is the node the search began at.
	Start markov.Location

	// Reachable reports whether any good edge leads from Start to a
	// terminal, or Start is itself terminal.
	Reachable bool

	graph *markov.FixedOrderGraph
	goals map[markov.Location]struct{}
	good  map[edgeKey]struct{}
}

// Graph returns the graph the marks apply to.
func (r *Reachability) Graph() *markov.FixedOrderGraph {
	return r.graph
}

// IsTerminal reports whether loc is in the terminal set.
func (r *Reachability) IsTerminal(loc markov.Location) bool {
	_, ok := r.goals[loc]
	return ok
}

// Terminals returns the terminal set, sorted.
func (r *Reachability) Terminals() []markov.Location {
	out := make([]markov.Location, 0, len(r.goals))
	for loc := range r.goals {
		out = append(out, loc)
	}
	markov.SortLocations(out)
	return out
}

// IsGood reports whether e lies on some explored path to a terminal.
func (r *Reachability) IsGood(e *markov.Edge) bool {
	_, ok := r.good[edgeKey{e.Src, e.Dst}]
	return ok
}

// GoodEdges returns the good edges leaving src in graph order.
func (r *Reachability) GoodEdges(src markov.Location) []*markov.Edge {
	var out []*markov.Edge
	for _, e := range r.graph.Outgoing(src) {
		if r.IsGood(e) {
			out = append(out, e)
		}
	}
	return out
}

// NumGood returns the number of good edges.
func (r *Reachability) NumGood() int {
	return len(r.good)
}

// frame is one node on the explicit DFS stack.
type frame struct {
	node  markov.Location
	prob  float64
	edges []*markov.Edge
	next  int
	good  bool
}

// Prune classifies edges by whether they can reach a terminal.
//
// Description:
//
//	Depth-first search from start carrying the cumulative path probability
//	and the nodes on the current path only. Reaching a terminal ends a
//	branch successfully. With loops disallowed, reaching a node already on
//	the current path fails that branch, so the same node may still be
//	reached along different paths. An edge whose cumulative probability
//	falls below the cutoff is bad and not explored. An edge is good if any
//	exploration through it reached a terminal; good marks are never
//	revoked by a later failing branch.
//
//	The stack is explicit. A path longer than MaxDepth aborts the search.
//
// Inputs:
//
//	ctx - Checked periodically for cancellation.
//	g - The graph. Not modified.
//	start - Start node; must be in g.
//	goals - Terminal nodes; must be non-empty and in g.
//	opts - Cutoff, loop policy, depth bound. Zero MaxDepth selects the
//	       default.
//
// Outputs:
//
//	*Reachability - The edge classification.
//	error - markov.ErrNodeNotFound, ErrNoTerminals, ErrSearchDepthExceeded,
//	        or the context error.
func Prune(ctx context.Context, g *markov.FixedOrderGraph, start markov.Location, goals []markov.Location, opts PruneOptions) (*Reachability, error) {
	ctx, span := tracer.Start(ctx, "simulate.Prune",
		trace.WithAttributes(
			attribute.String("simulate.start", start.String()),
			attribute.Int("simulate.terminals", len(goals)),
			attribute.Float64("simulate.cutoff", opts.Cutoff),
		),
	)
	defer span.End()
	began := time.Now()

	reach, err := prune(ctx, g, start, goals, opts)
	recordPruneMetrics(ctx, time.Since(began), reach, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("simulate.good_edges", reach.NumGood()),
		attribute.Bool("simulate.reachable", reach.Reachable),
	)
	return reach, nil
}

func prune(ctx context.Context, g *markov.FixedOrderGraph, start markov.Location, goals []markov.Location, opts PruneOptions) (*Reachability, error) {
	if !g.HasNode(start) {
		return nil, fmt.Errorf("start %s: %w", start, markov.ErrNodeNotFound)
	}
	if len(goals) == 0 {
		return nil, ErrNoTerminals
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	r := &Reachability{
		Start: start,
		graph: g,
		goals: make(map[markov.Location]struct{}, len(goals)),
		good:  make(map[edgeKey]struct{}),
	}
	for _, loc := range goals {
		if !g.HasNode(loc) {
			return nil, fmt.Errorf("terminal %s: %w", loc, markov.ErrNodeNotFound)
		}
		r.goals[loc] = struct{}{}
	}

	onPath := make(map[markov.Location]int)
	var stack []frame

	// enter applies the per-node checks. It reports whether a frame was
	// pushed and, when not, the branch outcome.
	enter := func(node markov.Location, prob float64) (bool, bool, error) {
		if r.IsTerminal(node) {
			return false, true, nil
		}
		if !opts.AllowLoops && onPath[node] > 0 {
			return false, false, nil
		}
		if len(stack) >= maxDepth {
			return false, false, fmt.Errorf("%w: path longer than %d at %s", ErrSearchDepthExceeded, maxDepth, node)
		}
		stack = append(stack, frame{node: node, prob: prob, edges: g.Outgoing(node)})
		onPath[node]++
		return true, false, nil
	}

	pushed, ok, err := enter(start, 1)
	if err != nil {
		return nil, err
	}
	if !pushed {
		r.Reachable = ok
		return r, nil
	}

	steps := 0
	for len(stack) > 0 {
		if steps++; steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		top := &stack[len(stack)-1]
		if top.next == len(top.edges) {
			done := *top
			stack = stack[:len(stack)-1]
			onPath[done.node]--
			if len(stack) == 0 {
				r.Reachable = done.good
				break
			}
			parent := &stack[len(stack)-1]
			if done.good {
				r.good[edgeKey{parent.node, done.node}] = struct{}{}
				parent.good = true
			}
			continue
		}

		e := top.edges[top.next]
		top.next++
		p := top.prob * e.Probability
		if p < opts.Cutoff {
			continue
		}
		pushed, ok, err := enter(e.Dst, p)
		if err != nil {
			return nil, err
		}
		if !pushed && ok {
			r.good[edgeKey{e.Src, e.Dst}] = struct{}{}
			stack[len(stack)-1].good = true
		}
	}
	return r, nil
}
