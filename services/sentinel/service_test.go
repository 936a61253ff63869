// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/sentinel/services/sentinel/config"
	"github.com/AleutianAI/sentinel/services/sentinel/ingest"
	"github.com/AleutianAI/sentinel/services/sentinel/markov"
	"github.com/AleutianAI/sentinel/services/sentinel/simulate"
	storage "github.com/AleutianAI/sentinel/services/sentinel/storage/badger"
)

var (
	locA = markov.Location{File: "a.c", Line: 1}
	locB = markov.Location{File: "b.c", Line: 2}
	locC = markov.Location{File: "c.c", Line: 3}
)

const baseDump = `a.c:1 = 0, 10
b.c:2 = 1, 6
c.c:3 = 2, 4
(0)->1: 6
(1)->2: 4
`

const slowDump = `a.c:1 = 0, 10
b.c:2 = 1, 8
c.c:3 = 2, 2
(0)->1: 8
(1)->2: 2
`

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.InMemory = true
	cfg.Simulation.Walks = 500
	cfg.Simulation.Workers = 2
	cfg.Simulation.Seed = 7
	svc, closeFn, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	return svc
}

// ingestRun writes a dump and latency samples to temporary directories and
// ingests them under run. A nil latency map ingests without latency.
func ingestRun(t *testing.T, svc *Service, run, dump string, latency map[string]string) *IngestResult {
	t.Helper()
	dumps := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dumps, "100.1.0.im.out"), []byte(dump), 0o644))

	req := IngestRequest{Run: run, DumpDir: dumps}
	if latency != nil {
		req.LatencyDir = t.TempDir()
		for name, samples := range latency {
			path := filepath.Join(req.LatencyDir, "event-flat-"+name+"-1-1-im")
			require.NoError(t, os.WriteFile(path, []byte(samples), 0o644))
		}
	}
	res, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	return res
}

func seedRuns(t *testing.T, svc *Service) {
	t.Helper()
	ingestRun(t, svc, "base", baseDump, map[string]string{
		"a.c:1-b.c:2": "1\n1\n1\n",
		"b.c:2-c.c:3": "1\n2\n3\n4\n",
	})
	ingestRun(t, svc, "slow", slowDump, map[string]string{
		"a.c:1-b.c:2": "1\n1\n1\n",
		"b.c:2-c.c:3": "1\n2\n3\n40\n",
	})
}

func TestService_Ingest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res := ingestRun(t, svc, "base", baseDump, map[string]string{
		"a.c:1-b.c:2": "1\n",
		"b.c:2-c.c:3": "2\n",
	})
	assert.Equal(t, 3, res.Locations)
	assert.Equal(t, uint64(20), res.Events)
	assert.Equal(t, 2, res.Transitions)
	assert.Equal(t, 2, res.FirstOrderTransitions)
	assert.Equal(t, 2, res.CDFs)

	summary, err := svc.Validate(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MaxOrder)
	assert.Equal(t, 2, summary.Contexts)

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Ingest(ctx, IngestRequest{Run: "x"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("run id is sanitized", func(t *testing.T) {
		_, err := svc.Ingest(ctx, IngestRequest{Run: "../escape", DumpDir: t.TempDir()})
		assert.ErrorIs(t, err, storage.ErrInvalidRunID)
	})

	t.Run("failed re-ingest keeps model and tables together", func(t *testing.T) {
		before, err := svc.store.GetRun(ctx, "base")
		require.NoError(t, err)

		dumps, latency := t.TempDir(), t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dumps, "100.1.0.im.out"), []byte(slowDump), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(latency, "event-flat-a.c:1-b.c:2-1-1-im"), nil, 0o644))
		_, err = svc.Ingest(ctx, IngestRequest{Run: "base", DumpDir: dumps, LatencyDir: latency})
		require.ErrorIs(t, err, ingest.ErrNoSamples)

		model, err := svc.store.GetModel(ctx, "base")
		require.NoError(t, err)
		assert.Equal(t, uint64(6), model.EventCount(locB), "model still holds the first dump")
		after, err := svc.store.GetRun(ctx, "base")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("invalid model is not stored", func(t *testing.T) {
		dumps := t.TempDir()
		bad := "a.c:1 = 0, 1\nb.c:2 = 1, 1\n(1)->0: 1\n(0,1)->0: 1\n"
		require.NoError(t, os.WriteFile(filepath.Join(dumps, "1.im.out"), []byte(bad), 0o644))
		_, err := svc.Ingest(ctx, IngestRequest{Run: "bad", DumpDir: dumps})
		require.ErrorIs(t, err, markov.ErrModelInvariantViolation)

		_, err = svc.Validate(ctx, "bad")
		assert.ErrorIs(t, err, storage.ErrRunNotFound)
	})

	t.Run("reingest replaces cached graph", func(t *testing.T) {
		start := SimulateRequest{Run: "base", Start: locA, Terminals: []markov.Location{locC}, Walks: 10}
		first, err := svc.Simulate(ctx, start)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, first.Terminals[0].Percentiles[0], 1e-9)

		ingestRun(t, svc, "base", baseDump, map[string]string{
			"a.c:1-b.c:2": "5\n",
			"b.c:2-c.c:3": "5\n",
		})
		second, err := svc.Simulate(ctx, start)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, second.Terminals[0].Percentiles[0], 1e-9)
	})
}

func TestService_Runs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedRuns(t, svc)

	runs, err := svc.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "base", runs[0].Run)
	assert.True(t, runs[0].HasModel)
	assert.True(t, runs[0].HasTables)
	assert.Equal(t, "slow", runs[1].Run)

	require.NoError(t, svc.DeleteRun(ctx, "slow"))
	_, err = svc.Validate(ctx, "slow")
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
	assert.ErrorIs(t, svc.DeleteRun(ctx, "slow"), storage.ErrRunNotFound)
}

func TestService_DiffModels(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedRuns(t, svc)

	resp, err := svc.DiffModels(ctx, "base", "slow", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	assert.Zero(t, resp.Uncomparable)
	require.Len(t, resp.Records, 2)

	// (b.c:2)->c.c:3 moves from 4/6 to 2/8, the larger change.
	top := resp.Records[0]
	assert.Equal(t, locC, top.Transition.Next)
	assert.InDelta(t, (4.0/6.0)/(2.0/8.0), top.Score, 1e-9)
	assert.GreaterOrEqual(t, top.Score, resp.Records[1].Score)

	limited, err := svc.DiffModels(ctx, "base", "slow", 1)
	require.NoError(t, err)
	assert.Len(t, limited.Records, 1)
	assert.Equal(t, 2, limited.Total)

	_, err = svc.DiffModels(ctx, "base", "missing", 0)
	assert.ErrorIs(t, err, storage.ErrRunNotFound)
}

func TestService_DiffRuns(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedRuns(t, svc)

	resp, err := svc.DiffRuns(ctx, "base", "slow", 0)
	require.NoError(t, err)
	assert.Greater(t, resp.Aggregate, 0.0)
	assert.NotEmpty(t, resp.Scores)
	assert.NotEmpty(t, resp.Transitions)
	assert.Len(t, resp.Events, 3)

	same, err := svc.DiffRuns(ctx, "base", "base", 0)
	require.NoError(t, err)
	assert.Zero(t, same.Aggregate)
}

func TestService_Distances(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedRuns(t, svc)

	t.Run("rare transitions filtered by default", func(t *testing.T) {
		resp, err := svc.Distances(ctx, DistanceRequest{Left: "base", Right: "slow"})
		require.NoError(t, err)
		assert.Zero(t, resp.Compared)
		assert.Empty(t, resp.Distances)
	})

	t.Run("all shared transitions", func(t *testing.T) {
		zero := uint64(0)
		resp, err := svc.Distances(ctx, DistanceRequest{Left: "base", Right: "slow", MinTransitionCount: &zero})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Compared)
		require.Len(t, resp.Distances, 2)

		assert.Equal(t, locB, resp.Distances[0].Src)
		assert.Greater(t, resp.Distances[0].Value, 0.0)
		assert.InDelta(t, 0.0, resp.Distances[1].Value, 1e-12)
	})

	t.Run("count threshold is exclusive", func(t *testing.T) {
		// a->b is seen 8 times in slow, b->c at most 4 times.
		four := uint64(4)
		resp, err := svc.Distances(ctx, DistanceRequest{Left: "base", Right: "slow", MinTransitionCount: &four})
		require.NoError(t, err)
		require.Len(t, resp.Distances, 1)
		assert.Equal(t, locA, resp.Distances[0].Src)
	})
}

func TestService_Simulate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedRuns(t, svc)

	t.Run("explicit terminals", func(t *testing.T) {
		res, err := svc.Simulate(ctx, SimulateRequest{Run: "base", Start: locA, Terminals: []markov.Location{locC}})
		require.NoError(t, err)
		assert.Equal(t, 500, res.Walks)
		require.Len(t, res.Terminals, 1)
		term := res.Terminals[0]
		assert.Equal(t, locC, term.Location)
		assert.Equal(t, 500, term.Hits)
		assert.Equal(t, 1.0, term.HitRatio)
		require.Len(t, term.Percentiles, len(simulate.SummaryLevels))
		for i := 1; i < len(term.Percentiles); i++ {
			assert.GreaterOrEqual(t, term.Percentiles[i], term.Percentiles[i-1])
		}
		assert.GreaterOrEqual(t, term.Percentiles[0], 2.0)
	})

	t.Run("terminals from depth", func(t *testing.T) {
		depth := 1
		res, err := svc.Simulate(ctx, SimulateRequest{Run: "base", Start: locA, Depth: &depth, Walks: 20})
		require.NoError(t, err)
		require.Len(t, res.Terminals, 1)
		assert.Equal(t, locB, res.Terminals[0].Location)
		assert.Equal(t, 20, res.Terminals[0].Hits)
	})

	t.Run("seeded runs repeat", func(t *testing.T) {
		req := SimulateRequest{Run: "base", Start: locA, Terminals: []markov.Location{locC}, Walks: 50, Seed: 99}
		first, err := svc.Simulate(ctx, req)
		require.NoError(t, err)
		second, err := svc.Simulate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("nothing at depth", func(t *testing.T) {
		depth := 5
		_, err := svc.Simulate(ctx, SimulateRequest{Run: "base", Start: locA, Depth: &depth})
		assert.ErrorIs(t, err, simulate.ErrNoTerminals)
	})

	t.Run("no terminals or depth", func(t *testing.T) {
		_, err := svc.Simulate(ctx, SimulateRequest{Run: "base", Start: locA})
		assert.ErrorIs(t, err, ErrTerminalsRequired)
	})

	t.Run("walks above the configured cap", func(t *testing.T) {
		limit := svc.sim.MaxWalks
		require.Positive(t, limit)
		_, err := svc.Simulate(ctx, SimulateRequest{Run: "base", Start: locA, Terminals: []markov.Location{locC}, Walks: limit + 1})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unreachable terminal", func(t *testing.T) {
		_, err := svc.Simulate(ctx, SimulateRequest{Run: "base", Start: locC, Terminals: []markov.Location{locA}})
		assert.ErrorIs(t, err, simulate.ErrNoPathToTerminal)
	})

	t.Run("unknown start", func(t *testing.T) {
		_, err := svc.Simulate(ctx, SimulateRequest{Run: "base", Start: markov.Location{File: "z.c", Line: 9}, Terminals: []markov.Location{locC}})
		assert.ErrorIs(t, err, markov.ErrNodeNotFound)
	})

	t.Run("run without latency", func(t *testing.T) {
		ingestRun(t, svc, "bare", baseDump, nil)
		_, err := svc.Simulate(ctx, SimulateRequest{Run: "bare", Start: locA, Terminals: []markov.Location{locC}})
		assert.ErrorIs(t, err, markov.ErrMissingCDF)
	})
}

func TestService_Watch(t *testing.T) {
	svc := newTestService(t)
	dumps := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dumps, "100.1.0.im.out"), []byte(baseDump), 0o644))

	var ingests, failures atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Watch(ctx, IngestRequest{Run: " live ", DumpDir: dumps}, 50*time.Millisecond,
			func(_ *IngestResult, err error) {
				if err != nil {
					failures.Add(1)
					return
				}
				ingests.Add(1)
			})
	}()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool { return ingests.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	summary, err := svc.Validate(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), summary.Events)

	t.Run("new dump is merged", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dumps, "200.1.0.im.out"), []byte(baseDump), 0o644))
		require.Eventually(t, func() bool {
			summary, err := svc.Validate(context.Background(), "live")
			return err == nil && summary.Events == 40
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("bad dump keeps the stored model", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dumps, "300.1.0.im.out"), []byte("a.c:1 0, 1\n"), 0o644))
		require.Eventually(t, func() bool { return failures.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
		summary, err := svc.Validate(context.Background(), "live")
		require.NoError(t, err)
		assert.Equal(t, uint64(40), summary.Events)
	})
}

func TestService_WatchFirstIngestFails(t *testing.T) {
	svc := newTestService(t)
	err := svc.Watch(context.Background(), IngestRequest{Run: "empty", DumpDir: t.TempDir()}, 0, nil)
	assert.ErrorIs(t, err, ingest.ErrNoDumps)
}
