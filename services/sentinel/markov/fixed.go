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
	"math"
	"sort"
)

// CDFTolerance is how far the last cumulative probability of a CDF may sit
// below 1.0. Percentile grids that stop at 0.999 are accepted.
const CDFTolerance = 0.01

// PercentileGrid is the cumulative-probability grid latency CDFs are
// recorded on: 0.05 to 0.95 in steps of 0.05, then 0.99 and 0.999.
var PercentileGrid = []float64{
	0.05, 0.10, 0.15, 0.20, 0.25, 0.30, 0.35, 0.40, 0.45, 0.50,
	0.55, 0.60, 0.65, 0.70, 0.75, 0.80, 0.85, 0.90, 0.95, 0.99, 0.999,
}

// =============================================================================
// CDF
// =============================================================================

// CDFPoint is one (cumulative probability, latency) pair.
type CDFPoint struct {
	Cumulative float64 `json:"cumulative"`
	Value      float64 `json:"value"`
}

// CDF is an empirical elapsed-time distribution, ascending in both fields.
type CDF []CDFPoint

// NewCDF zips a percentile grid with its latency values and validates the
// result.
func NewCDF(grid, values []float64) (CDF, error) {
	if len(grid) != len(values) {
		return nil, fmt.Errorf("%w: %d grid points, %d values", ErrInvalidCDF, len(grid), len(values))
	}
	c := make(CDF, len(grid))
	for i := range grid {
		c[i] = CDFPoint{Cumulative: grid[i], Value: values[i]}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks length, range, and monotonicity.
func (c CDF) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidCDF)
	}
	for i, p := range c {
		if math.IsNaN(p.Cumulative) || math.IsNaN(p.Value) {
			return fmt.Errorf("%w: NaN at point %d", ErrInvalidCDF, i)
		}
		if p.Cumulative <= 0 || p.Cumulative > 1 {
			return fmt.Errorf("%w: cumulative %g at point %d outside (0,1]", ErrInvalidCDF, p.Cumulative, i)
		}
		if i > 0 && (p.Cumulative < c[i-1].Cumulative || p.Value < c[i-1].Value) {
			return fmt.Errorf("%w: not monotone at point %d", ErrInvalidCDF, i)
		}
	}
	if last := c[len(c)-1].Cumulative; 1-last > CDFTolerance {
		return fmt.Errorf("%w: ends at cumulative %g", ErrInvalidCDF, last)
	}
	return nil
}

// Sample performs inverse-transform sampling for the uniform draw v.
//
// Returns the value of the first point whose cumulative probability is at
// least v, or the last value when v exceeds every point.
func (c CDF) Sample(v float64) float64 {
	i := sort.Search(len(c), func(i int) bool { return c[i].Cumulative >= v })
	if i == len(c) {
		return c[len(c)-1].Value
	}
	return c[i].Value
}

// Values returns the latency values in grid order.
func (c CDF) Values() []float64 {
	out := make([]float64, len(c))
	for i, p := range c {
		out[i] = p.Value
	}
	return out
}

// Grid returns the cumulative probabilities in order.
func (c CDF) Grid() []float64 {
	out := make([]float64, len(c))
	for i, p := range c {
		out[i] = p.Cumulative
	}
	return out
}

// =============================================================================
// Fixed-order graph
// =============================================================================

// Edge is a first-order transition annotated with probability and latency.
type Edge struct {
	Src         Location `json:"src"`
	Dst         Location `json:"dst"`
	Probability float64  `json:"probability"`
	Elapsed     CDF      `json:"elapsed"`
}

// FixedOrderGraph is the first-order transition graph used for simulation.
//
// Outgoing edges are indexed under the one-element context (src), which
// makes this the maximum-context-1 case of the variable-order index. The
// graph is read-only after construction; reachability is kept outside it.
type FixedOrderGraph struct {
	nodes map[Location]struct{}
	edges *ContextIndex[*Edge]
	count int
}

// NewFixedOrderGraph builds a graph from edges plus optional isolated nodes.
//
// Every edge must carry a probability in [0, 1] and a valid CDF. Edge
// endpoints become nodes automatically. A repeated (src, dst) pair is an
// error.
func NewFixedOrderGraph(edges []Edge, nodes ...Location) (*FixedOrderGraph, error) {
	g := &FixedOrderGraph{
		nodes: make(map[Location]struct{}, len(nodes)),
		edges: NewContextIndex[*Edge](),
	}
	for _, n := range nodes {
		g.nodes[n] = struct{}{}
	}
	seen := make(map[[2]Location]struct{}, len(edges))
	for i := range edges {
		e := edges[i]
		if e.Probability < 0 || e.Probability > 1 || math.IsNaN(e.Probability) {
			return nil, fmt.Errorf("%w: edge %s->%s has %g", ErrInvalidProbability, e.Src, e.Dst, e.Probability)
		}
		if len(e.Elapsed) == 0 {
			return nil, fmt.Errorf("%w: edge %s->%s", ErrMissingCDF, e.Src, e.Dst)
		}
		if err := e.Elapsed.Validate(); err != nil {
			return nil, fmt.Errorf("edge %s->%s: %w", e.Src, e.Dst, err)
		}
		pair := [2]Location{e.Src, e.Dst}
		if _, dup := seen[pair]; dup {
			return nil, fmt.Errorf("duplicate edge %s->%s", e.Src, e.Dst)
		}
		seen[pair] = struct{}{}

		g.nodes[e.Src] = struct{}{}
		g.nodes[e.Dst] = struct{}{}
		g.edges.Add([]Location{e.Src}, &e)
		g.count++
	}
	return g, nil
}

// HasNode reports whether loc is a node.
func (g *FixedOrderGraph) HasNode(loc Location) bool {
	_, ok := g.nodes[loc]
	return ok
}

// Nodes returns all nodes sorted by location.
func (g *FixedOrderGraph) Nodes() []Location {
	out := make([]Location, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	SortLocations(out)
	return out
}

// Outgoing returns the edges leaving src. The slice is shared; do not modify.
func (g *FixedOrderGraph) Outgoing(src Location) []*Edge {
	return g.edges.Bucket([]Location{src})
}

// Edge returns the edge src->dst.
func (g *FixedOrderGraph) Edge(src, dst Location) (*Edge, error) {
	if !g.HasNode(src) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, src)
	}
	for _, e := range g.Outgoing(src) {
		if e.Dst == dst {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s->%s", ErrEdgeNotFound, src, dst)
}

// NumNodes returns the node count.
func (g *FixedOrderGraph) NumNodes() int {
	return len(g.nodes)
}

// NumEdges returns the edge count.
func (g *FixedOrderGraph) NumEdges() int {
	return g.count
}
