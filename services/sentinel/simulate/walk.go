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
	"log/slog"
	"math/rand/v2"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// DefaultMaxSteps bounds a single walk.
const DefaultMaxSteps = 1_000_000

// selectionTolerance absorbs floating-point shortfall when the last
// candidate's share is compared against the remaining draw.
const selectionTolerance = 1e-9

// walkCheckInterval is how many walks run between cancellation checks.
const walkCheckInterval = 256

// Options configures a Simulator.
type Options struct {
	// Workers is the number of concurrent walkers. Zero selects GOMAXPROCS.
	Workers int

	// Seed makes runs reproducible for a fixed worker count. Zero draws a
	// fresh seed per run.
	Seed uint64

	// MaxSteps bounds the length of one walk. Zero selects DefaultMaxSteps.
	MaxSteps int
}

// Simulator runs Monte Carlo walks over pruned graphs.
//
// Thread Safety: Safe for concurrent use; Run holds no shared state.
type Simulator struct {
	opts Options
}

// NewSimulator creates a Simulator.
func NewSimulator(opts Options) *Simulator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Simulator{opts: opts}
}

// WalkResult aggregates the outcome of a run.
type WalkResult struct {
	// Walks is the number of completed walks.
	Walks int

	// Hits counts walks ending at each terminal. Every terminal is present;
	// the counts sum to Walks.
	Hits map[markov.Location]int

	// Elapsed holds the accumulated elapsed time of each walk, keyed by the
	// terminal it ended at. Order is unspecified.
	Elapsed map[markov.Location][]float64
}

func newWalkResult(terminals []markov.Location) *WalkResult {
	res := &WalkResult{
		Hits:    make(map[markov.Location]int, len(terminals)),
		Elapsed: make(map[markov.Location][]float64, len(terminals)),
	}
	for _, t := range terminals {
		res.Hits[t] = 0
		res.Elapsed[t] = []float64{}
	}
	return res
}

func (r *WalkResult) merge(o *WalkResult) {
	r.Walks += o.Walks
	for loc, n := range o.Hits {
		r.Hits[loc] += n
	}
	for loc, xs := range o.Elapsed {
		r.Elapsed[loc] = append(r.Elapsed[loc], xs...)
	}
}

// HitRatio returns the fraction of walks that ended at loc.
func (r *WalkResult) HitRatio(loc markov.Location) float64 {
	if r.Walks == 0 {
		return 0
	}
	return float64(r.Hits[loc]) / float64(r.Walks)
}

// candidate is a good edge with its renormalized share.
type candidate struct {
	edge  *markov.Edge
	share float64
}

// Run performs walks independent random walks from reach.Start.
//
// Description:
//
//	Each walk restricts itself to good edges, renormalizes their
//	probabilities, and picks the next edge by roulette selection on one
//	uniform draw. The step's elapsed time is an inverse-transform sample of
//	the edge's CDF. A walk ends at the first terminal it reaches. Walks are
//	split across workers, each with its own random stream and accumulators,
//	and summed at the end.
//
// Inputs:
//
//	ctx - Checked between walks.
//	reach - Output of Prune for the desired start and terminals.
//	walks - Number of walks. Zero yields an empty result.
//
// Outputs:
//
//	*WalkResult - Hit counts summing to walks.
//	error - ErrNoPathToTerminal, ErrSelectionExhausted, ErrWalkDiverged,
//	        ErrInvalidWalkCount, or the context error.
func (s *Simulator) Run(ctx context.Context, reach *Reachability, walks int) (*WalkResult, error) {
	ctx, span := tracer.Start(ctx, "simulate.Run",
		trace.WithAttributes(
			attribute.String("simulate.start", reach.Start.String()),
			attribute.Int("simulate.walks", walks),
			attribute.Int("simulate.workers", s.opts.Workers),
		),
	)
	defer span.End()
	began := time.Now()

	res, err := s.run(ctx, reach, walks)
	recordWalkMetrics(ctx, time.Since(began), walks, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	slog.Debug("simulation complete",
		slog.String("start", reach.Start.String()),
		slog.Int("walks", res.Walks),
		slog.Duration("duration", time.Since(began)),
	)
	return res, nil
}

func (s *Simulator) run(ctx context.Context, reach *Reachability, walks int) (*WalkResult, error) {
	if walks < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWalkCount, walks)
	}
	terminals := reach.Terminals()
	total := newWalkResult(terminals)
	if walks == 0 {
		return total, nil
	}
	if !reach.IsTerminal(reach.Start) && len(reach.GoodEdges(reach.Start)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPathToTerminal, reach.Start)
	}

	table := candidateTable(reach)
	seed := s.opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	workers := min(s.opts.Workers, walks)
	partial := make([]*WalkResult, workers)
	g, gCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		n := walks / workers
		if w < walks%workers {
			n++
		}
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, uint64(w)))
			local := newWalkResult(terminals)
			for i := 0; i < n; i++ {
				if i%walkCheckInterval == 0 {
					if err := gCtx.Err(); err != nil {
						return err
					}
				}
				end, elapsed, err := walk(rng, reach, table, s.opts.MaxSteps)
				if err != nil {
					return err
				}
				local.Walks++
				local.Hits[end]++
				local.Elapsed[end] = append(local.Elapsed[end], elapsed)
			}
			partial[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, p := range partial {
		total.merge(p)
	}
	return total, nil
}

// candidateTable precomputes renormalized good edges per node.
func candidateTable(reach *Reachability) map[markov.Location][]candidate {
	table := make(map[markov.Location][]candidate)
	for _, node := range reach.Graph().Nodes() {
		good := reach.GoodEdges(node)
		if len(good) == 0 {
			continue
		}
		var norm float64
		for _, e := range good {
			norm += e.Probability
		}
		cs := make([]candidate, len(good))
		for i, e := range good {
			share := 0.0
			if norm > 0 {
				share = e.Probability / norm
			}
			cs[i] = candidate{edge: e, share: share}
		}
		table[node] = cs
	}
	return table
}

// walk performs one walk and returns the terminal and elapsed time.
func walk(rng *rand.Rand, reach *Reachability, table map[markov.Location][]candidate, maxSteps int) (markov.Location, float64, error) {
	cur := reach.Start
	var elapsed float64
	for step := 0; ; step++ {
		if reach.IsTerminal(cur) {
			return cur, elapsed, nil
		}
		if step >= maxSteps {
			return markov.Location{}, 0, fmt.Errorf("%w: %d steps from %s", ErrWalkDiverged, maxSteps, reach.Start)
		}
		e, err := choose(rng.Float64(), table[cur])
		if err != nil {
			return markov.Location{}, 0, fmt.Errorf("at %s: %w", cur, err)
		}
		elapsed += e.Elapsed.Sample(rng.Float64())
		cur = e.Dst
	}
}

// choose performs roulette-wheel selection for the uniform draw u.
func choose(u float64, cs []candidate) (*markov.Edge, error) {
	for i, c := range cs {
		if u <= c.share || (i == len(cs)-1 && u <= c.share+selectionTolerance) {
			return c.edge, nil
		}
		u -= c.share
	}
	return nil, fmt.Errorf("%w: %d candidates, %g remaining", ErrSelectionExhausted, len(cs), u)
}
