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
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroundDistance(t *testing.T) {
	cost := GroundDistance([]float64{0.1, 0.5, 0.9})
	assert.InDelta(t, 0.4, cost[0][1], 1e-12)
	assert.InDelta(t, 0.8, cost[2][0], 1e-12)
	assert.Zero(t, cost[1][1])
	assert.Len(t, DefaultPercentileGrid(), 21)
}

func TestLineSolver(t *testing.T) {
	s := LineSolver{}

	t.Run("identical distributions", func(t *testing.T) {
		w := []float64{1, 2, 3}
		d, err := s.Distance(w, w, GroundDistance([]float64{0, 1, 2}))
		require.NoError(t, err)
		assert.InDelta(t, 0, d, 1e-12)
	})

	t.Run("point masses at the ends", func(t *testing.T) {
		d, err := s.Distance([]float64{1, 0, 0}, []float64{0, 0, 1}, GroundDistance([]float64{0, 1, 3}))
		require.NoError(t, err)
		assert.InDelta(t, 3.0, d, 1e-12)
	})

	t.Run("mass is normalized", func(t *testing.T) {
		d, err := s.Distance([]float64{4, 0}, []float64{0, 0.5}, GroundDistance([]float64{0, 2}))
		require.NoError(t, err)
		assert.InDelta(t, 2.0, d, 1e-12)
	})

	t.Run("unordered points", func(t *testing.T) {
		// Point 0 sits between the others.
		grid := []float64{1, 0, 3}
		d, err := s.Distance([]float64{0, 1, 0}, []float64{0, 0, 1}, GroundDistance(grid))
		require.NoError(t, err)
		assert.InDelta(t, 3.0, d, 1e-12)
	})

	t.Run("split mass", func(t *testing.T) {
		d, err := s.Distance([]float64{0.5, 0.5, 0}, []float64{0, 0.5, 0.5}, GroundDistance([]float64{0, 1, 2}))
		require.NoError(t, err)
		assert.InDelta(t, 1.0, d, 1e-12)
	})

	t.Run("not a line", func(t *testing.T) {
		cost := [][]float64{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}}
		_, err := s.Distance([]float64{1, 0, 0}, []float64{0, 1, 0}, cost)
		assert.ErrorIs(t, err, ErrNotLineMetric)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := s.Distance([]float64{1}, []float64{1, 0}, GroundDistance([]float64{0, 1}))
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("no mass", func(t *testing.T) {
		_, err := s.Distance([]float64{0, 0}, []float64{1, 0}, GroundDistance([]float64{0, 1}))
		assert.ErrorIs(t, err, ErrEmptyDistribution)
	})
}

type countingSolver struct {
	calls atomic.Int32
}

func (c *countingSolver) Distance(left, right []float64, cost [][]float64) (float64, error) {
	c.calls.Add(1)
	if len(left) > 0 && left[0] < 0 {
		return 0, errors.New("boom")
	}
	return LineSolver{}.Distance(left, right, cost)
}

func TestDistances(t *testing.T) {
	grid := []float64{0.5, 1.0}
	pairs := []Pair{
		{Src: locX, Dst: locY, Left: []float64{1, 1}, Right: []float64{1, 1}},
		{Src: locY, Dst: locZ, Left: []float64{1, 0}, Right: []float64{0, 1}},
		{Src: locZ, Dst: locW, Left: []float64{1, 1}, Right: []float64{1, 3}},
	}

	got, err := Distances(context.Background(), pairs, nil, DistanceOptions{Grid: grid, Workers: 2})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, locY, got[0].Src)
	assert.Equal(t, locZ, got[0].Dst)
	assert.InDelta(t, 0.5, got[0].Value, 1e-12)
	assert.Equal(t, locZ, got[1].Src)
	assert.InDelta(t, 0.125, got[1].Value, 1e-12)
	assert.Equal(t, locX, got[2].Src)
	assert.InDelta(t, 0, got[2].Value, 1e-12)
}

func TestDistances_Normalize(t *testing.T) {
	pairs := []Pair{{Src: locX, Dst: locY, Left: []float64{2, 4}, Right: []float64{4, 8}}}
	got, err := Distances(context.Background(), pairs, LineSolver{}, DistanceOptions{Grid: []float64{0.5, 1}, Normalize: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0, got[0].Value, 1e-12)
}

func TestDistances_SolverError(t *testing.T) {
	solver := &countingSolver{}
	pairs := []Pair{
		{Src: locX, Dst: locY, Left: []float64{1, 1}, Right: []float64{1, 1}},
		{Src: locY, Dst: locZ, Left: []float64{-1, 1}, Right: []float64{1, 1}},
	}
	_, err := Distances(context.Background(), pairs, solver, DistanceOptions{Grid: []float64{0.5, 1}, Workers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), locY.String())
	assert.Equal(t, int32(2), solver.calls.Load())
}

func TestDistances_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pairs := []Pair{{Src: locX, Dst: locY, Left: []float64{1}, Right: []float64{1}}}
	_, err := Distances(ctx, pairs, nil, DistanceOptions{Grid: []float64{1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDistances_Empty(t *testing.T) {
	got, err := Distances(context.Background(), nil, nil, DistanceOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
