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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loc(file string, line int) Location {
	return Location{File: file, Line: line}
}

func tc(ctx []Location, next Location, count uint64) TransitionCount {
	return TransitionCount{Transition: Transition{Context: ctx, Next: next}, Count: count}
}

var (
	locX = loc("main.c", 10)
	locY = loc("main.c", 20)
	locZ = loc("util.c", 5)
	locW = loc("util.c", 9)
)

func TestParseLocation(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		got, err := ParseLocation(locX.String())
		require.NoError(t, err)
		assert.Equal(t, locX, got)
	})

	t.Run("colon in file name", func(t *testing.T) {
		got, err := ParseLocation("C:/src/a.c:42")
		require.NoError(t, err)
		assert.Equal(t, loc("C:/src/a.c", 42), got)
	})

	for _, in := range []string{"", "nofile", "a.c:", ":12", "a.c:x"} {
		_, err := ParseLocation(in)
		assert.ErrorIs(t, err, ErrInvalidLocation, "input %q", in)
	}
}

func TestTransitionKey(t *testing.T) {
	short := Transition{Context: []Location{locY}, Next: locZ}
	long := Transition{Context: []Location{locX, locY}, Next: locZ}
	empty := Transition{Next: locZ}

	assert.NotEqual(t, short.Key(), long.Key())
	assert.NotEqual(t, short.Key(), empty.Key())
	assert.Equal(t, long.Key(), NewTransition([]Location{locX, locY}, locZ).Key())
	assert.Equal(t, "(main.c:10,main.c:20)->util.c:5", long.String())
	assert.Equal(t, "()->util.c:5", empty.String())
}

func TestContextIndex_Find(t *testing.T) {
	ix := NewContextIndex[string]()
	ix.Add([]Location{locY}, "y")
	ix.Add([]Location{locX, locY, locZ}, "xyz")

	t.Run("exact match wins", func(t *testing.T) {
		bucket, suffix := ix.Find([]Location{locX, locY, locZ})
		assert.Equal(t, []string{"xyz"}, bucket)
		assert.Equal(t, []Location{locX, locY, locZ}, suffix)
	})

	t.Run("longest present suffix", func(t *testing.T) {
		bucket, suffix := ix.Find([]Location{locZ, locX, locY})
		assert.Equal(t, []string{"y"}, bucket)
		assert.Equal(t, []Location{locY}, suffix)
	})

	t.Run("no suffix present", func(t *testing.T) {
		bucket, suffix := ix.Find([]Location{locY, locW})
		assert.Nil(t, bucket)
		assert.Nil(t, suffix)
	})

	t.Run("empty context bucket is the last resort", func(t *testing.T) {
		ix2 := NewContextIndex[string]()
		ix2.Add(nil, "root")
		ix2.Add([]Location{locX}, "x")
		assert.Equal(t, []string{"root"}, ix2.Lookup([]Location{locY, locW}))
		assert.Equal(t, []string{"x"}, ix2.Lookup([]Location{locY, locX}))
		assert.Equal(t, []string{"root"}, ix2.Lookup(nil))
	})

	t.Run("contains is exact", func(t *testing.T) {
		assert.True(t, ix.Contains([]Location{locY}))
		assert.False(t, ix.Contains([]Location{locX, locY}))
		assert.False(t, ix.Contains(nil))
		assert.Equal(t, 2, ix.Len())
	})
}

func TestFromCounts(t *testing.T) {
	g := FromCounts(
		map[Location]uint64{locX: 30, locY: 10},
		[]TransitionCount{
			tc([]Location{locX}, locY, 7),
			tc([]Location{locX}, locY, 3),
			tc([]Location{locX}, locZ, 5),
		},
		WithKnownLocations([]Location{locX, locY, locZ, locX}),
	)

	ev, ok := g.Event(locX)
	require.True(t, ok)
	assert.InDelta(t, 0.75, ev.Probability, 1e-12)
	assert.Equal(t, uint64(40), g.TotalEvents())
	assert.Equal(t, uint64(10), g.Count(Transition{Context: []Location{locX}, Next: locY}))
	assert.Equal(t, 2, g.NumTransitions())
	assert.Equal(t, []Location{locX, locY, locZ}, g.KnownLocations())
	assert.NoError(t, g.Validate())

	_, ok = g.Event(locW)
	assert.False(t, ok)
}

func TestFromCounts_Empty(t *testing.T) {
	g := FromCounts(nil, nil)
	assert.True(t, g.Empty())
	assert.Empty(t, g.Events())
	assert.Empty(t, g.Transitions())
	assert.NoError(t, g.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("disjoint contexts are valid", func(t *testing.T) {
		g := FromCounts(nil, []TransitionCount{
			tc([]Location{locX, locY}, locZ, 1),
			tc([]Location{locW, locZ}, locY, 1),
			tc([]Location{locZ}, locX, 1),
		})
		assert.NoError(t, g.Validate())
	})

	t.Run("proper suffix present", func(t *testing.T) {
		g := FromCounts(nil, []TransitionCount{
			tc([]Location{locW, locX, locY}, locZ, 1),
			tc([]Location{locY}, locW, 1),
		})
		err := g.Validate()
		require.ErrorIs(t, err, ErrModelInvariantViolation)

		var inv *ModelInvariantError
		require.True(t, errors.As(err, &inv))
		assert.Equal(t, []Location{locW, locX, locY}, inv.Context)
		assert.Equal(t, []Location{locY}, inv.Suffix)
	})

	t.Run("empty context alongside a longer one", func(t *testing.T) {
		g := FromCounts(nil, []TransitionCount{
			tc(nil, locY, 1),
			tc([]Location{locX}, locY, 1),
		})
		assert.ErrorIs(t, g.Validate(), ErrModelInvariantViolation)
	})
}

func TestValidModels_NoContextIsSuffixOfAnother(t *testing.T) {
	g := FromCounts(nil, []TransitionCount{
		tc([]Location{locX, locY}, locZ, 4),
		tc([]Location{locX, locY}, locW, 2),
		tc([]Location{locW}, locX, 1),
		tc([]Location{locY, locZ}, locX, 3),
	})
	require.NoError(t, g.Validate())

	contexts := g.Index().Contexts()
	for i, c1 := range contexts {
		for j, c2 := range contexts {
			if i == j || len(c2) >= len(c1) {
				continue
			}
			assert.NotEqual(t, KeyOf(c1[len(c1)-len(c2):]), KeyOf(c2),
				"%s is a suffix of %s", FormatContext(c2), FormatContext(c1))
		}
	}
}

func TestMerge(t *testing.T) {
	a := FromCounts(
		map[Location]uint64{locX: 2, locY: 2},
		[]TransitionCount{tc([]Location{locX}, locY, 2)},
		WithKnownLocations([]Location{locX, locY}),
	)
	b := FromCounts(
		map[Location]uint64{locY: 4, locZ: 4},
		[]TransitionCount{
			tc([]Location{locX}, locY, 1),
			tc([]Location{locY}, locZ, 4),
		},
		WithKnownLocations([]Location{locZ, locY}),
	)
	require.NoError(t, a.Validate())
	require.NoError(t, b.Validate())

	a.Merge(b)

	assert.Equal(t, []Location{locX, locY, locZ}, a.KnownLocations())
	assert.Equal(t, uint64(6), a.EventCount(locY))
	assert.Equal(t, uint64(12), a.TotalEvents())
	ev, _ := a.Event(locY)
	assert.InDelta(t, 0.5, ev.Probability, 1e-12)
	assert.Equal(t, uint64(3), a.Count(Transition{Context: []Location{locX}, Next: locY}))
	assert.Equal(t, uint64(4), a.Count(Transition{Context: []Location{locY}, Next: locZ}))
	assert.NoError(t, a.Validate())

	// b is untouched.
	assert.Equal(t, uint64(1), b.Count(Transition{Context: []Location{locX}, Next: locY}))
}

func TestMerge_CanIntroduceViolation(t *testing.T) {
	a := FromCounts(nil, []TransitionCount{tc([]Location{locX, locY}, locZ, 3)})
	b := FromCounts(nil, []TransitionCount{tc([]Location{locY}, locZ, 2)})
	require.NoError(t, a.Validate())
	require.NoError(t, b.Validate())

	a.Merge(b)

	err := a.Validate()
	require.ErrorIs(t, err, ErrModelInvariantViolation)
	var inv *ModelInvariantError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, []Location{locX, locY}, inv.Context)
	assert.Equal(t, []Location{locY}, inv.Suffix)
}

func TestMarshalRoundTrip(t *testing.T) {
	g := FromCounts(
		map[Location]uint64{locX: 3, locY: 5, locZ: 11},
		[]TransitionCount{
			tc([]Location{locX, locY}, locZ, 4),
			tc([]Location{locX, locY}, locX, 1),
			tc([]Location{locZ}, locY, 9),
		},
		WithKnownLocations([]Location{locZ, locY, locX, locW}),
	)
	data, err := g.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, g.Events(), got.Events())
	assert.Equal(t, g.TransitionCounts(), got.TransitionCounts())
	assert.Equal(t, g.KnownLocations(), got.KnownLocations())
	assert.Equal(t, g.EventCounts(), got.EventCounts())
	assert.NoError(t, got.Validate())

	again, err := got.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestUnmarshal_Errors(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		_, err := Unmarshal([]byte("{not json"))
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := Unmarshal([]byte(`{"version":99}`))
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("invalid model fails like Validate", func(t *testing.T) {
		bad := FromCounts(nil, []TransitionCount{
			tc([]Location{locX, locY}, locZ, 3),
			tc([]Location{locY}, locZ, 2),
		})
		data, err := bad.Marshal()
		require.NoError(t, err)

		_, err = Unmarshal(data)
		assert.ErrorIs(t, err, ErrModelInvariantViolation)
		assert.Equal(t, bad.Validate().Error(), err.Error())
	})
}
