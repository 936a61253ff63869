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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

func node(name string) markov.Location {
	return markov.Location{File: name + ".c", Line: 1}
}

func edge(src, dst string, p, elapsed float64) markov.Edge {
	return markov.Edge{
		Src:         node(src),
		Dst:         node(dst),
		Probability: p,
		Elapsed:     markov.CDF{{Cumulative: 1.0, Value: elapsed}},
	}
}

func mustGraph(t *testing.T, edges []markov.Edge, extra ...markov.Location) *markov.FixedOrderGraph {
	t.Helper()
	g, err := markov.NewFixedOrderGraph(edges, extra...)
	require.NoError(t, err)
	return g
}

func mustPrune(t *testing.T, g *markov.FixedOrderGraph, start string, goals ...string) *Reachability {
	t.Helper()
	locs := make([]markov.Location, len(goals))
	for i, name := range goals {
		locs[i] = node(name)
	}
	r, err := Prune(context.Background(), g, node(start), locs, DefaultPruneOptions())
	require.NoError(t, err)
	return r
}

func sumHits(res *WalkResult) int {
	total := 0
	for _, n := range res.Hits {
		total += n
	}
	return total
}

// =============================================================================
// Prune
// =============================================================================

func TestPrune_LoopsDisallowed(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("a", "b", 1.0, 1),
		edge("b", "a", 0.5, 1),
		edge("b", "c", 0.5, 1),
	})
	r := mustPrune(t, g, "a", "c")

	ab, _ := g.Edge(node("a"), node("b"))
	ba, _ := g.Edge(node("b"), node("a"))
	bc, _ := g.Edge(node("b"), node("c"))
	assert.True(t, r.Reachable)
	assert.True(t, r.IsGood(ab))
	assert.False(t, r.IsGood(ba))
	assert.True(t, r.IsGood(bc))
	assert.Equal(t, 2, r.NumGood())
}

func TestPrune_GoodMarksAreSticky(t *testing.T) {
	// a->b succeeds via s->a->b->t but fails via s->b->a->b.
	g := mustGraph(t, []markov.Edge{
		edge("s", "a", 0.5, 1),
		edge("s", "b", 0.5, 1),
		edge("a", "b", 1.0, 1),
		edge("b", "a", 0.5, 1),
		edge("b", "t", 0.5, 1),
	})
	r := mustPrune(t, g, "s", "t")

	ab, _ := g.Edge(node("a"), node("b"))
	assert.True(t, r.IsGood(ab))
	assert.Len(t, r.GoodEdges(node("a")), 1)

	res, err := NewSimulator(Options{Seed: 7, Workers: 2}).Run(context.Background(), r, 500)
	require.NoError(t, err)
	assert.Equal(t, 500, res.Hits[node("t")])
}

func TestPrune_Cutoff(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("a", "b", 1e-6, 100),
		edge("a", "c", 1-1e-6, 1),
	})
	r := mustPrune(t, g, "a", "b", "c")

	ab, _ := g.Edge(node("a"), node("b"))
	assert.False(t, r.IsGood(ab))

	res, err := NewSimulator(Options{Seed: 1}).Run(context.Background(), r, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, res.Hits[node("c")])
	assert.Zero(t, res.Hits[node("b")])
}

func TestPrune_DepthExceeded(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("n0", "n1", 1, 1),
		edge("n1", "n2", 1, 1),
		edge("n2", "n3", 1, 1),
		edge("n3", "n4", 1, 1),
	})
	_, err := Prune(context.Background(), g, node("n0"), []markov.Location{node("n4")},
		PruneOptions{Cutoff: DefaultCutoff, MaxDepth: 3})
	assert.ErrorIs(t, err, ErrSearchDepthExceeded)

	_, err = Prune(context.Background(), g, node("n0"), []markov.Location{node("n4")},
		PruneOptions{Cutoff: DefaultCutoff, MaxDepth: 4})
	assert.NoError(t, err)
}

func TestPrune_CertainCycleWithLoopsAllowed(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("a", "b", 1, 1),
		edge("b", "a", 1, 1),
	}, node("z"))
	_, err := Prune(context.Background(), g, node("a"), []markov.Location{node("z")},
		PruneOptions{Cutoff: DefaultCutoff, AllowLoops: true, MaxDepth: 100})
	assert.ErrorIs(t, err, ErrSearchDepthExceeded)
}

func TestPrune_InputErrors(t *testing.T) {
	g := mustGraph(t, []markov.Edge{edge("a", "b", 1, 1)})

	_, err := Prune(context.Background(), g, node("nope"), []markov.Location{node("b")}, DefaultPruneOptions())
	assert.ErrorIs(t, err, markov.ErrNodeNotFound)

	_, err = Prune(context.Background(), g, node("a"), []markov.Location{node("nope")}, DefaultPruneOptions())
	assert.ErrorIs(t, err, markov.ErrNodeNotFound)

	_, err = Prune(context.Background(), g, node("a"), nil, DefaultPruneOptions())
	assert.ErrorIs(t, err, ErrNoTerminals)
}

// =============================================================================
// Run
// =============================================================================

func TestRun_Chain(t *testing.T) {
	g := mustGraph(t, []markov.Edge{edge("a", "b", 1.0, 5.0)})
	r := mustPrune(t, g, "a", "b")

	res, err := NewSimulator(Options{Seed: 42}).Run(context.Background(), r, 100)
	require.NoError(t, err)

	assert.Equal(t, 100, res.Walks)
	assert.Equal(t, map[markov.Location]int{node("b"): 100}, res.Hits)
	require.Len(t, res.Elapsed[node("b")], 100)
	for _, v := range res.Elapsed[node("b")] {
		assert.Equal(t, 5.0, v)
	}

	pct := res.Percentiles()[node("b")]
	require.Len(t, pct, 19)
	for _, v := range pct {
		assert.Equal(t, 5.0, v)
	}
}

func TestRun_DiamondConverges(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("a", "b", 0.3, 1),
		edge("a", "c", 0.7, 2),
	})
	r := mustPrune(t, g, "a", "b", "c")

	const n = 100000
	res, err := NewSimulator(Options{Seed: 2024, Workers: 4}).Run(context.Background(), r, n)
	require.NoError(t, err)

	assert.Equal(t, n, sumHits(res))
	assert.InDelta(t, 0.3, res.HitRatio(node("b")), 0.02)
	assert.InDelta(t, 0.7, res.HitRatio(node("c")), 0.02)
}

func TestRun_HitCountsSumToWalks(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("s", "a", 0.4, 1),
		edge("s", "b", 0.6, 2),
		edge("a", "s", 0.5, 3),
		edge("a", "t1", 0.5, 4),
		edge("b", "a", 0.2, 5),
		edge("b", "t2", 0.8, 6),
	})
	r := mustPrune(t, g, "s", "t1", "t2")

	for _, n := range []int{1, 2, 7, 333, 5000} {
		for _, workers := range []int{1, 3, 16} {
			t.Run(fmt.Sprintf("n=%d/workers=%d", n, workers), func(t *testing.T) {
				res, err := NewSimulator(Options{Workers: workers}).Run(context.Background(), r, n)
				require.NoError(t, err)
				assert.Equal(t, n, res.Walks)
				assert.Equal(t, n, sumHits(res))

				samples := 0
				for _, xs := range res.Elapsed {
					samples += len(xs)
				}
				assert.Equal(t, n, samples)
			})
		}
	}
}

func TestRun_SeedIsReproducible(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("a", "b", 0.5, 1),
		edge("a", "c", 0.5, 2),
	})
	r := mustPrune(t, g, "a", "b", "c")
	sim := NewSimulator(Options{Seed: 99, Workers: 3})

	first, err := sim.Run(context.Background(), r, 1000)
	require.NoError(t, err)
	second, err := sim.Run(context.Background(), r, 1000)
	require.NoError(t, err)
	assert.Equal(t, first.Hits, second.Hits)
}

func TestRun_Degenerate(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("a", "b", 1, 1),
		edge("c", "a", 1, 1),
	}, node("z"))

	t.Run("zero walks", func(t *testing.T) {
		r := mustPrune(t, g, "a", "b")
		res, err := NewSimulator(Options{}).Run(context.Background(), r, 0)
		require.NoError(t, err)
		assert.Zero(t, res.Walks)
		assert.Zero(t, sumHits(res))
		assert.Empty(t, res.Percentiles())
	})

	t.Run("start is terminal", func(t *testing.T) {
		r := mustPrune(t, g, "a", "a")
		assert.True(t, r.Reachable)
		res, err := NewSimulator(Options{}).Run(context.Background(), r, 10)
		require.NoError(t, err)
		assert.Equal(t, 10, res.Hits[node("a")])
		for _, v := range res.Elapsed[node("a")] {
			assert.Zero(t, v)
		}
	})

	t.Run("no path to terminal", func(t *testing.T) {
		r := mustPrune(t, g, "a", "z")
		assert.False(t, r.Reachable)
		_, err := NewSimulator(Options{}).Run(context.Background(), r, 10)
		assert.ErrorIs(t, err, ErrNoPathToTerminal)
	})

	t.Run("start without outgoing edges", func(t *testing.T) {
		r := mustPrune(t, g, "b", "z")
		_, err := NewSimulator(Options{}).Run(context.Background(), r, 1)
		assert.ErrorIs(t, err, ErrNoPathToTerminal)
	})

	t.Run("negative walks", func(t *testing.T) {
		r := mustPrune(t, g, "a", "b")
		_, err := NewSimulator(Options{}).Run(context.Background(), r, -1)
		assert.ErrorIs(t, err, ErrInvalidWalkCount)
	})

	t.Run("cancelled", func(t *testing.T) {
		r := mustPrune(t, g, "c", "b")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewSimulator(Options{}).Run(ctx, r, 10)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRun_Diverged(t *testing.T) {
	// Loops are allowed, so half the walks circle back to a before t.
	g := mustGraph(t, []markov.Edge{
		edge("a", "b", 1.0, 1),
		edge("b", "a", 0.5, 1),
		edge("b", "t", 0.5, 1),
	})
	r, err := Prune(context.Background(), g, node("a"), []markov.Location{node("t")},
		PruneOptions{Cutoff: 1e-4, AllowLoops: true, MaxDepth: 1000})
	require.NoError(t, err)

	_, err = NewSimulator(Options{Seed: 3, MaxSteps: 2}).Run(context.Background(), r, 50)
	assert.ErrorIs(t, err, ErrWalkDiverged)
}

func TestChoose(t *testing.T) {
	e1, e2 := &markov.Edge{Dst: node("x")}, &markov.Edge{Dst: node("y")}
	cs := []candidate{{edge: e1, share: 0.25}, {edge: e2, share: 0.75}}

	got, err := choose(0.25, cs)
	require.NoError(t, err)
	assert.Same(t, e1, got)

	got, err = choose(0.26, cs)
	require.NoError(t, err)
	assert.Same(t, e2, got)

	_, err = choose(0.5, []candidate{{edge: e1, share: 0.2}, {edge: e2, share: 0.2}})
	assert.ErrorIs(t, err, ErrSelectionExhausted)

	_, err = choose(0.1, nil)
	assert.ErrorIs(t, err, ErrSelectionExhausted)
}

// =============================================================================
// Depth and percentiles
// =============================================================================

func TestTerminalsAtDepth(t *testing.T) {
	g := mustGraph(t, []markov.Edge{
		edge("a", "b", 0.5, 1),
		edge("a", "c", 0.5, 1),
		edge("b", "d", 1, 1),
		edge("c", "a", 1, 1),
	})

	got, err := TerminalsAtDepth(g, node("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, []markov.Location{node("a")}, got)

	got, err = TerminalsAtDepth(g, node("a"), 2)
	require.NoError(t, err)
	assert.Equal(t, []markov.Location{node("a"), node("d")}, got)

	got, err = TerminalsAtDepth(g, node("a"), 4)
	require.NoError(t, err)
	assert.Equal(t, []markov.Location{node("a"), node("d")}, got)

	_, err = TerminalsAtDepth(g, node("a"), -1)
	assert.ErrorIs(t, err, ErrInvalidDepth)
	_, err = TerminalsAtDepth(g, node("q"), 1)
	assert.ErrorIs(t, err, markov.ErrNodeNotFound)
}

func TestQuantiles(t *testing.T) {
	xs := []float64{9, 1, 5, 3, 7}
	got := Quantiles(xs, SummaryLevels)
	require.Len(t, got, 19)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1], got[i])
	}
	assert.GreaterOrEqual(t, got[0], 1.0)
	assert.LessOrEqual(t, got[len(got)-1], 9.0)
	assert.Equal(t, []float64{9, 1, 5, 3, 7}, xs)
}
