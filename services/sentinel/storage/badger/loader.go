// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// DefaultGraphCacheSize is the number of graphs a GraphLoader keeps.
const DefaultGraphCacheSize = 64

// GraphLoader builds fixed-order graphs from stored run tables and caches
// them by run id.
//
// Description:
//
//	Concurrent loads of the same run share one store read and one graph
//	build. Graphs are read-only once built, so cached values are shared
//	between callers. Invalidate must be called after a run's tables change.
//
// Thread Safety: Safe for concurrent use.
type GraphLoader struct {
	store  *Store
	cache  *ristretto.Cache[string, *markov.FixedOrderGraph]
	flight singleflight.Group

	mu    sync.Mutex
	epoch map[string]uint64

	builds atomic.Int64
}

// NewGraphLoader creates a loader over store holding up to size graphs.
// A non-positive size selects DefaultGraphCacheSize.
func NewGraphLoader(store *Store, size int64) (*GraphLoader, error) {
	if size <= 0 {
		size = DefaultGraphCacheSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *markov.FixedOrderGraph]{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating graph cache: %w", err)
	}
	return &GraphLoader{
		store: store,
		cache: cache,
		epoch: make(map[string]uint64),
	}, nil
}

// Load returns the fixed-order graph of run.
//
// Outputs:
//
//	*markov.FixedOrderGraph - Shared, read-only graph.
//	error - ErrRunNotFound, markov.ErrMissingCDF, or a decode error.
func (l *GraphLoader) Load(ctx context.Context, run string) (*markov.FixedOrderGraph, error) {
	if g, ok := l.cache.Get(run); ok {
		return g, nil
	}

	v, err, shared := l.flight.Do(run, func() (interface{}, error) {
		if g, ok := l.cache.Get(run); ok {
			return g, nil
		}
		epoch := l.currentEpoch(run)
		tables, err := l.store.GetRun(ctx, run)
		if err != nil {
			return nil, err
		}
		g, err := tables.Graph()
		if err != nil {
			return nil, err
		}
		l.builds.Add(1)
		l.storeIfCurrent(run, epoch, g)
		slog.Debug("graph built",
			slog.String("run", run),
			slog.Int("nodes", g.NumNodes()),
			slog.Int("edges", g.NumEdges()),
		)
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("graph load shared", slog.String("run", run))
	}
	return v.(*markov.FixedOrderGraph), nil
}

// Invalidate drops the cached graph of run. A load already in flight will
// not repopulate the cache.
func (l *GraphLoader) Invalidate(run string) {
	l.mu.Lock()
	l.epoch[run]++
	l.mu.Unlock()
	l.flight.Forget(run)
	l.cache.Del(run)
	l.cache.Wait()
}

// Builds returns how many graphs have been built since creation.
func (l *GraphLoader) Builds() int64 {
	return l.builds.Load()
}

// Close releases the cache.
func (l *GraphLoader) Close() {
	l.cache.Close()
}

// storeIfCurrent caches g unless run was invalidated after epoch was read.
// The comparison and the write happen under mu so an Invalidate cannot land
// between them.
func (l *GraphLoader) storeIfCurrent(run string, epoch uint64, g *markov.FixedOrderGraph) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch[run] != epoch {
		return
	}
	l.cache.Set(run, g, 1)
	l.cache.Wait()
}

func (l *GraphLoader) currentEpoch(run string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch[run]
}
