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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCDF_Sample(t *testing.T) {
	c, err := NewCDF([]float64{0.25, 0.5, 1.0}, []float64{1, 2, 4})
	require.NoError(t, err)

	tests := []struct {
		v    float64
		want float64
	}{
		{0.0, 1},
		{0.25, 1},
		{0.26, 2},
		{0.5, 2},
		{0.9, 4},
		{1.0, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Sample(tt.v), "v=%g", tt.v)
	}

	t.Run("beyond last point returns last value", func(t *testing.T) {
		short, err := NewCDF([]float64{0.5, 0.999}, []float64{3, 8})
		require.NoError(t, err)
		assert.Equal(t, 8.0, short.Sample(0.9995))
	})

	t.Run("single point", func(t *testing.T) {
		one := CDF{{Cumulative: 1.0, Value: 5.0}}
		require.NoError(t, one.Validate())
		assert.Equal(t, 5.0, one.Sample(0.01))
		assert.Equal(t, 5.0, one.Sample(0.99))
	})
}

func TestCDF_Validate(t *testing.T) {
	bad := map[string]CDF{
		"empty":              {},
		"not monotone value": {{0.5, 3}, {1.0, 2}},
		"not monotone cum":   {{0.6, 1}, {0.5, 2}, {1.0, 3}},
		"zero cumulative":    {{0, 1}, {1.0, 2}},
		"above one":          {{0.5, 1}, {1.2, 2}},
		"stops short":        {{0.5, 1}, {0.9, 2}},
	}
	for name, c := range bad {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Validate(), ErrInvalidCDF)
		})
	}

	_, err := NewCDF([]float64{0.5}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrInvalidCDF)

	grid := PercentileGrid
	values := make([]float64, len(grid))
	for i := range values {
		values[i] = float64(i)
	}
	_, err = NewCDF(grid, values)
	assert.NoError(t, err)
}

func unitCDF(v float64) CDF {
	return CDF{{Cumulative: 1.0, Value: v}}
}

func TestFixedOrderGraph(t *testing.T) {
	g, err := NewFixedOrderGraph([]Edge{
		{Src: locX, Dst: locY, Probability: 0.3, Elapsed: unitCDF(1)},
		{Src: locX, Dst: locZ, Probability: 0.7, Elapsed: unitCDF(2)},
	}, locW)
	require.NoError(t, err)

	assert.Equal(t, 4, g.NumNodes())
	assert.Equal(t, 2, g.NumEdges())
	assert.Len(t, g.Outgoing(locX), 2)
	assert.Empty(t, g.Outgoing(locY))
	assert.Empty(t, g.Outgoing(locW))
	assert.True(t, g.HasNode(locW))

	e, err := g.Edge(locX, locZ)
	require.NoError(t, err)
	assert.Equal(t, 0.7, e.Probability)

	_, err = g.Edge(locY, locX)
	assert.ErrorIs(t, err, ErrEdgeNotFound)
	_, err = g.Edge(loc("nope.c", 1), locX)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestNewFixedOrderGraph_Errors(t *testing.T) {
	_, err := NewFixedOrderGraph([]Edge{{Src: locX, Dst: locY, Probability: 1.5, Elapsed: unitCDF(1)}})
	assert.ErrorIs(t, err, ErrInvalidProbability)

	_, err = NewFixedOrderGraph([]Edge{{Src: locX, Dst: locY, Probability: 1}})
	assert.ErrorIs(t, err, ErrMissingCDF)

	_, err = NewFixedOrderGraph([]Edge{
		{Src: locX, Dst: locY, Probability: 0.5, Elapsed: unitCDF(1)},
		{Src: locX, Dst: locY, Probability: 0.5, Elapsed: unitCDF(1)},
	})
	assert.Error(t, err)
}

func TestRunTables_Graph(t *testing.T) {
	tables := &RunTables{
		Run:    "r1",
		Events: []EventRecord{{Location: locX, Probability: 0.5}, {Location: locY, Probability: 0.5}, {Location: locW}},
		Transitions: []TransitionProbability{
			{Src: locX, Dst: locY, Probability: 1.0},
		},
		CDFs: []TransitionCDF{
			{Src: locX, Dst: locY, Grid: []float64{0.5, 1.0}, Values: []float64{2, 3}},
		},
	}

	g, err := tables.Graph()
	require.NoError(t, err)
	assert.Equal(t, 3, g.NumNodes())
	e, err := g.Edge(locX, locY)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, e.Elapsed.Values())

	t.Run("missing cdf is a lookup error", func(t *testing.T) {
		tables.Transitions = append(tables.Transitions, TransitionProbability{Src: locY, Dst: locX, Probability: 1})
		_, err := tables.Graph()
		assert.ErrorIs(t, err, ErrMissingCDF)

		_, err = tables.CDFFor(locY, locX)
		assert.ErrorIs(t, err, ErrMissingCDF)
	})
}
