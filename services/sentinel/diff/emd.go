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
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// ErrNotLineMetric is returned by LineSolver for a cost matrix that is not
// |xi - xj| over some ordering of points on a line.
var ErrNotLineMetric = errors.New("cost matrix is not a line metric")

// lineMetricTolerance bounds the absolute error accepted when checking a
// cost matrix against recovered positions.
const lineMetricTolerance = 1e-9

// DefaultPercentileGrid returns a copy of the grid latency CDFs are stored on.
func DefaultPercentileGrid() []float64 {
	return append([]float64(nil), markov.PercentileGrid...)
}

// GroundDistance builds the cost matrix |gi - gj| over grid positions.
//
// Percentiles are not evenly spaced, so moving mass between distant
// percentiles costs more.
func GroundDistance(grid []float64) [][]float64 {
	cost := make([][]float64, len(grid))
	for i := range grid {
		cost[i] = make([]float64, len(grid))
		for j := range grid {
			cost[i][j] = math.Abs(grid[i] - grid[j])
		}
	}
	return cost
}

// =============================================================================
// Solver
// =============================================================================

// Solver computes the earth mover's distance between two weight vectors
// under a ground cost matrix.
type Solver interface {
	Distance(left, right []float64, cost [][]float64) (float64, error)
}

// LineSolver is an exact Solver for costs that are distances on a line.
//
// Description:
//
//	Point positions are recovered from the first row of the cost matrix
//	and the matrix is checked against them. Each weight vector is scaled
//	to unit mass, then the distance is the integral of the absolute
//	difference of the two cumulative mass functions along the line.
//
// Thread Safety: Stateless and safe for concurrent use.
type LineSolver struct{}

// Distance implements Solver.
func (LineSolver) Distance(left, right []float64, cost [][]float64) (float64, error) {
	n := len(cost)
	if len(left) != n || len(right) != n {
		return 0, fmt.Errorf("%w: %d and %d weights, %d cost rows", ErrShapeMismatch, len(left), len(right), n)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty", ErrEmptyDistribution)
	}
	for i, row := range cost {
		if len(row) != n {
			return 0, fmt.Errorf("%w: cost row %d has %d columns", ErrShapeMismatch, i, len(row))
		}
	}

	order, pos, err := linePositions(cost)
	if err != nil {
		return 0, err
	}
	l, err := unitMass(left)
	if err != nil {
		return 0, fmt.Errorf("left: %w", err)
	}
	r, err := unitMass(right)
	if err != nil {
		return 0, fmt.Errorf("right: %w", err)
	}

	var cl, cr, total float64
	for k := 0; k < n-1; k++ {
		i := order[k]
		cl += l[i]
		cr += r[i]
		total += math.Abs(cl-cr) * (pos[order[k+1]] - pos[i])
	}
	return total, nil
}

// linePositions recovers point positions relative to point 0 and returns
// the indices ordered along the line.
func linePositions(cost [][]float64) ([]int, []float64, error) {
	n := len(cost)
	pos := make([]float64, n)
	copy(pos, cost[0])

	// Points left of point 0 are told apart by their distance to the point
	// farthest from it.
	far := 0
	for j := range pos {
		if pos[j] > pos[far] {
			far = j
		}
	}
	for j := range pos {
		if math.Abs(cost[far][j]-(pos[far]+pos[j])) <= lineMetricTolerance && pos[j] > 0 && j != far {
			pos[j] = -pos[j]
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.Abs(cost[i][j]-math.Abs(pos[i]-pos[j])) > lineMetricTolerance {
				return nil, nil, fmt.Errorf("%w: entry (%d,%d)", ErrNotLineMetric, i, j)
			}
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return pos[order[a]] < pos[order[b]] })
	return order, pos, nil
}

func unitMass(w []float64) ([]float64, error) {
	var sum float64
	for i, v := range w {
		if v < 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: weight %d is %g", ErrEmptyDistribution, i, v)
		}
		sum += v
	}
	if sum == 0 {
		return nil, ErrEmptyDistribution
	}
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v / sum
	}
	return out, nil
}

// =============================================================================
// Parallel dispatch
// =============================================================================

// Pair holds one transition's latency values from each run.
type Pair struct {
	Src   markov.Location `json:"src"`
	Dst   markov.Location `json:"dst"`
	Left  []float64       `json:"left"`
	Right []float64       `json:"right"`
}

// Distance is the solver output for one transition, identified by key.
type Distance struct {
	Src   markov.Location `json:"src"`
	Dst   markov.Location `json:"dst"`
	Value float64         `json:"value"`
}

// DistanceOptions configures Distances.
type DistanceOptions struct {
	// Grid is the percentile grid the values are recorded on. Nil selects
	// DefaultPercentileGrid.
	Grid []float64

	// Normalize divides both vectors of a pair by the larger of their last
	// values before solving, so runs on different machines compare by
	// shape rather than absolute latency.
	Normalize bool

	// Workers bounds concurrent solver calls. Zero selects GOMAXPROCS.
	Workers int
}

// Distances computes the distance for every pair in parallel.
//
// Description:
//
//	Each pair is an independent unit of work that reads only its own values
//	and the shared, read-only cost matrix. Results carry their (src, dst)
//	key and are returned sorted by descending distance, then key. The first
//	solver error cancels outstanding work.
//
// Inputs:
//
//	ctx - Cancellation is checked before each unit.
//	pairs - Transitions to compare.
//	solver - The distance function. Nil selects LineSolver.
//	opts - Grid, normalization, and parallelism.
//
// Outputs:
//
//	[]Distance - One per pair.
//	error - The first solver or context error.
func Distances(ctx context.Context, pairs []Pair, solver Solver, opts DistanceOptions) ([]Distance, error) {
	ctx, span := tracer.Start(ctx, "diff.Distances",
		trace.WithAttributes(
			attribute.Int("diff.pairs", len(pairs)),
			attribute.Bool("diff.normalize", opts.Normalize),
		),
	)
	defer span.End()
	start := time.Now()

	if solver == nil {
		solver = LineSolver{}
	}
	grid := opts.Grid
	if grid == nil {
		grid = DefaultPercentileGrid()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cost := GroundDistance(grid)

	out := make([]Distance, len(pairs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			left, right := p.Left, p.Right
			if opts.Normalize {
				left, right = normalizePair(left, right)
			}
			d, err := solver.Distance(left, right, cost)
			if err != nil {
				return fmt.Errorf("%s->%s: %w", p.Src, p.Dst, err)
			}
			out[i] = Distance{Src: p.Src, Dst: p.Dst, Value: d}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordDiffMetrics(ctx, "distance", time.Since(start), 0, false)
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		if out[i].Src != out[j].Src {
			return out[i].Src.Less(out[j].Src)
		}
		return out[i].Dst.Less(out[j].Dst)
	})
	recordDiffMetrics(ctx, "distance", time.Since(start), len(out), true)
	return out, nil
}

func normalizePair(left, right []float64) ([]float64, []float64) {
	var scale float64
	if len(left) > 0 {
		scale = left[len(left)-1]
	}
	if len(right) > 0 {
		scale = max(scale, right[len(right)-1])
	}
	if scale <= 0 {
		return left, right
	}
	l := make([]float64, len(left))
	for i, v := range left {
		l[i] = v / scale
	}
	r := make([]float64, len(right))
	for i, v := range right {
		r[i] = v / scale
	}
	return l, r
}
