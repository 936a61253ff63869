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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/sentinel/pkg/validation"
	"github.com/AleutianAI/sentinel/services/sentinel/config"
	"github.com/AleutianAI/sentinel/services/sentinel/diff"
	"github.com/AleutianAI/sentinel/services/sentinel/ingest"
	"github.com/AleutianAI/sentinel/services/sentinel/markov"
	"github.com/AleutianAI/sentinel/services/sentinel/simulate"
	storage "github.com/AleutianAI/sentinel/services/sentinel/storage/badger"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// Service ties the store to the modeling engines.
//
// Thread Safety: Safe for concurrent use. Stored models and graphs are
// read-only once loaded.
type Service struct {
	store  *storage.Store
	loader *storage.GraphLoader
	diff   config.DiffConfig
	sim    config.SimulationConfig
}

// NewService creates a Service. diffCfg and simCfg supply request defaults.
func NewService(store *storage.Store, loader *storage.GraphLoader, diffCfg config.DiffConfig, simCfg config.SimulationConfig) *Service {
	return &Service{store: store, loader: loader, diff: diffCfg, sim: simCfg}
}

// Open opens the configured store and creates a Service over it.
//
// Outputs:
//
//	*Service - Ready for use.
//	func() error - Releases the graph cache and closes the store.
//	error - Non-nil if the store could not be opened.
func Open(cfg config.Config) (*Service, func() error, error) {
	db, err := storage.OpenDB(storage.Config{
		Path:           cfg.Storage.Path,
		InMemory:       cfg.Storage.InMemory,
		SyncWrites:     cfg.Storage.SyncWrites,
		GCInterval:     cfg.Storage.GCInterval,
		GCDiscardRatio: cfg.Storage.GCDiscardRatio,
		Logger:         slog.Default(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	store := storage.NewStore(db)
	loader, err := storage.NewGraphLoader(store, cfg.Storage.GraphCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create graph loader: %w", err)
	}
	closeFn := func() error {
		loader.Close()
		return db.Close()
	}
	return NewService(store, loader, cfg.Diff, cfg.Simulation), closeFn, nil
}

// =============================================================================
// Ingestion
// =============================================================================

// Ingest reads a run's dumps and latency samples and stores the resulting
// model and first-order tables.
//
// Description:
//
//	The variable-order model is built from every dump in DumpDir and
//	validated before it is stored. First-order tables are always written;
//	they carry latency CDFs only when LatencyDir is set, and simulation of
//	the run needs them. Nothing is written until every input has been read,
//	and the model and tables are stored in one transaction, so a failed
//	ingest leaves the previous run intact. Any cached graph of the run is
//	invalidated.
//
// Outputs:
//
//	*IngestResult - Counts describing what was stored.
//	error - ingest errors, a *markov.ModelInvariantError, or a store error.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.Run == "" || req.DumpDir == "" {
		return nil, fmt.Errorf("%w: run and dump directory are required", ErrInvalidRequest)
	}
	run, err := validation.SanitizeRunID(req.Run)
	if err != nil {
		return nil, err
	}
	req.Run = run
	start := time.Now()

	sum, err := ingest.ReadDumpDir(ctx, req.DumpDir, req.Pattern)
	if err != nil {
		return nil, err
	}
	model := sum.Model()

	var cdfs []markov.TransitionCDF
	if req.LatencyDir != "" {
		cdfs, err = ingest.ReadLatencyDir(ctx, req.LatencyDir)
		if err != nil {
			return nil, err
		}
	}
	tables, err := ingest.FirstOrderTables(req.Run, sum, cdfs)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutIngest(ctx, req.Run, model, tables); err != nil {
		return nil, err
	}
	s.loader.Invalidate(req.Run)

	res := &IngestResult{
		Run:                   req.Run,
		Locations:             len(model.KnownLocations()),
		Events:                model.TotalEvents(),
		Transitions:           model.NumTransitions(),
		FirstOrderTransitions: len(tables.Transitions),
		CDFs:                  len(tables.CDFs),
	}
	slog.Info("run ingested",
		slog.String("run", req.Run),
		slog.Int("transitions", res.Transitions),
		slog.Int("cdfs", res.CDFs),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// Validate loads the stored model of run and checks its invariant.
func (s *Service) Validate(ctx context.Context, run string) (*ModelSummary, error) {
	model, err := s.store.GetModel(ctx, run)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return summarize(run, model), nil
}

// =============================================================================
// Comparison
// =============================================================================

// DiffModels compares the variable-order models of two runs. Comparable
// records are returned by descending score, limited by topK; zero applies
// the configured default and a negative value returns all of them.
func (s *Service) DiffModels(ctx context.Context, left, right string, topK int) (*DiffResponse, error) {
	a, err := s.store.GetModel(ctx, left)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetModel(ctx, right)
	if err != nil {
		return nil, err
	}
	opts := diff.DefaultOptions()
	if s.diff.LowConfidenceThreshold > 0 {
		opts.LowConfidenceThreshold = s.diff.LowConfidenceThreshold
	}
	// GetModel validated both on decode.
	opts.SkipValidation = true
	report, err := diff.VariableOrder(ctx, a, b, opts)
	if err != nil {
		return nil, err
	}
	return &DiffResponse{
		Left:         left,
		Right:        right,
		Total:        len(report.Records),
		Uncomparable: len(report.Uncomparable()),
		Events:       report.Events,
		Records:      limit(report.Comparable(), s.topK(topK)),
	}, nil
}

// DiffRuns compares the first-order tables of two runs.
func (s *Service) DiffRuns(ctx context.Context, left, right string, topK int) (*FixedDiffResponse, error) {
	a, err := s.store.GetRun(ctx, left)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetRun(ctx, right)
	if err != nil {
		return nil, err
	}
	report := diff.FixedOrder(ctx, a, b)
	k := s.topK(topK)
	return &FixedDiffResponse{
		Left:        left,
		Right:       right,
		Aggregate:   report.Aggregate,
		Events:      limit(report.Events, k),
		Scores:      limit(report.Scores, k),
		Transitions: limit(report.Transitions, k),
	}, nil
}

// Distances computes latency distances for transitions present with a CDF
// in both runs.
//
// Description:
//
//	When MinTransitionCount is positive, a transition is compared only if
//	it was seen more than that many times in at least one run.
func (s *Service) Distances(ctx context.Context, req DistanceRequest) (*DistanceResponse, error) {
	a, err := s.store.GetRun(ctx, req.Left)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetRun(ctx, req.Right)
	if err != nil {
		return nil, err
	}

	minCount := s.diff.MinTransitionCount
	if req.MinTransitionCount != nil {
		minCount = *req.MinTransitionCount
	}
	normalize := s.diff.Normalize
	if req.Normalize != nil {
		normalize = *req.Normalize
	}

	pairs := distancePairs(a, b, minCount)
	dists, err := diff.Distances(ctx, pairs, diff.LineSolver{}, diff.DistanceOptions{
		Normalize: normalize,
		Workers:   s.diff.Workers,
	})
	if err != nil {
		return nil, err
	}
	return &DistanceResponse{
		Left:      req.Left,
		Right:     req.Right,
		Compared:  len(pairs),
		Distances: limit(dists, s.topK(req.TopK)),
	}, nil
}

func distancePairs(a, b *markov.RunTables, minCount uint64) []diff.Pair {
	counts := make(map[[2]markov.Location]uint64)
	for _, tables := range []*markov.RunTables{a, b} {
		for _, t := range tables.Transitions {
			key := [2]markov.Location{t.Src, t.Dst}
			counts[key] = max(counts[key], t.Count)
		}
	}
	right := make(map[[2]markov.Location][]float64, len(b.CDFs))
	for _, c := range b.CDFs {
		right[[2]markov.Location{c.Src, c.Dst}] = c.Values
	}

	var pairs []diff.Pair
	for _, c := range a.CDFs {
		key := [2]markov.Location{c.Src, c.Dst}
		rv, ok := right[key]
		if !ok {
			continue
		}
		if minCount > 0 && counts[key] <= minCount {
			continue
		}
		pairs = append(pairs, diff.Pair{Src: c.Src, Dst: c.Dst, Left: c.Values, Right: rv})
	}
	return pairs
}

// =============================================================================
// Simulation
// =============================================================================

// Simulate prunes a run's graph for the requested start and terminals and
// runs Monte Carlo walks over it.
//
// Description:
//
//	Terminals are taken from the request, or derived as every node exactly
//	Depth edges from Start. Unset numeric fields fall back to the configured
//	simulation defaults. A walk count above simulation.max_walks is
//	rejected before the graph is loaded.
//
// Outputs:
//
//	*SimulationResult - Hit counts and latency percentiles per terminal.
//	error - ErrInvalidRequest, ErrTerminalsRequired, store errors, or
//	        simulate errors.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*SimulationResult, error) {
	walks := s.sim.Walks
	if req.Walks > 0 {
		walks = req.Walks
	}
	if s.sim.MaxWalks > 0 && walks > s.sim.MaxWalks {
		return nil, fmt.Errorf("%w: walks %d exceeds limit %d", ErrInvalidRequest, walks, s.sim.MaxWalks)
	}

	g, err := s.loader.Load(ctx, req.Run)
	if err != nil {
		return nil, err
	}

	terminals := req.Terminals
	if len(terminals) == 0 {
		if req.Depth == nil {
			return nil, ErrTerminalsRequired
		}
		terminals, err = simulate.TerminalsAtDepth(g, req.Start, *req.Depth)
		if err != nil {
			return nil, err
		}
		if len(terminals) == 0 {
			return nil, fmt.Errorf("%w: nothing at depth %d from %s", simulate.ErrNoTerminals, *req.Depth, req.Start)
		}
	}

	pruneOpts := simulate.PruneOptions{
		Cutoff:     s.sim.Cutoff,
		AllowLoops: s.sim.AllowLoops || req.AllowLoops,
		MaxDepth:   s.sim.MaxDepth,
	}
	if req.Cutoff != nil {
		pruneOpts.Cutoff = *req.Cutoff
	}
	reach, err := simulate.Prune(ctx, g, req.Start, terminals, pruneOpts)
	if err != nil {
		return nil, err
	}

	seed := s.sim.Seed
	if req.Seed != 0 {
		seed = req.Seed
	}
	sim := simulate.NewSimulator(simulate.Options{
		Workers:  s.sim.Workers,
		Seed:     seed,
		MaxSteps: s.sim.MaxSteps,
	})
	res, err := sim.Run(ctx, reach, walks)
	if err != nil {
		return nil, err
	}
	walksSimulated.Add(float64(res.Walks))
	return newSimulationResult(req.Run, req.Start, res), nil
}

// =============================================================================
// Runs
// =============================================================================

// Runs lists stored runs.
func (s *Service) Runs(ctx context.Context) ([]storage.RunInfo, error) {
	return s.store.ListRuns(ctx)
}

// Watch ingests req once and then again whenever its dump or latency
// directory changes, until ctx is done.
//
// Description:
//
//	The first ingest must succeed; later failures are logged and reported
//	through notify, and the previously stored model and tables stay in
//	place because Ingest writes nothing unless every step succeeds. notify
//	may be nil.
//
// Inputs:
//
//	ctx - Watching stops when ctx is done.
//	req - The run to keep current.
//	debounce - Quiet period before re-ingesting. Zero selects
//	           ingest.DefaultDebounce.
//	notify - Called after every ingest attempt.
//
// Outputs:
//
//	error - The first ingest's error, or a watcher setup error.
func (s *Service) Watch(ctx context.Context, req IngestRequest, debounce time.Duration, notify func(*IngestResult, error)) error {
	if notify == nil {
		notify = func(*IngestResult, error) {}
	}
	res, err := s.Ingest(ctx, req)
	if err != nil {
		return err
	}
	notify(res, nil)
	req.Run = res.Run

	w, err := ingest.NewWatcher([]string{req.DumpDir, req.LatencyDir}, debounce)
	if err != nil {
		return err
	}
	slog.Info("watching run", "run", req.Run, "dirs", w.Dirs())
	return w.Run(ctx, func(ctx context.Context, paths []string) error {
		res, err := s.Ingest(ctx, req)
		notify(res, err)
		if err != nil {
			return fmt.Errorf("re-ingest %s: %w", req.Run, err)
		}
		slog.Info("run re-ingested", "run", req.Run, "changed", len(paths))
		return nil
	})
}

// DeleteRun removes a run and drops its cached graph.
func (s *Service) DeleteRun(ctx context.Context, run string) error {
	if err := s.store.DeleteRun(ctx, run); err != nil {
		return err
	}
	s.loader.Invalidate(run)
	return nil
}

func (s *Service) topK(k int) int {
	switch {
	case k < 0:
		return 0
	case k == 0:
		return s.diff.TopK
	default:
		return k
	}
}

// limit returns the first k elements of xs, or all of them when k is zero.
func limit[T any](xs []T, k int) []T {
	if k <= 0 || k >= len(xs) {
		return xs
	}
	return xs[:k]
}
