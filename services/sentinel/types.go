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
	"github.com/AleutianAI/sentinel/services/sentinel/diff"
	"github.com/AleutianAI/sentinel/services/sentinel/markov"
	"github.com/AleutianAI/sentinel/services/sentinel/simulate"
	storage "github.com/AleutianAI/sentinel/services/sentinel/storage/badger"
)

// =============================================================================
// Ingestion
// =============================================================================

// IngestRequest names a run and the directories holding its artifacts.
type IngestRequest struct {
	// Run is the identifier the model and tables are stored under.
	Run string `json:"run" binding:"required"`

	// DumpDir holds the per-thread dump files.
	DumpDir string `json:"dump_dir" binding:"required"`

	// Pattern selects dump files within DumpDir. Empty selects the default.
	Pattern string `json:"pattern,omitempty"`

	// LatencyDir holds per-transition latency sample files. Optional.
	LatencyDir string `json:"latency_dir,omitempty"`
}

// IngestResult describes a stored run.
type IngestResult struct {
	Run                   string `json:"run"`
	Locations             int    `json:"locations"`
	Events                uint64 `json:"events"`
	Transitions           int    `json:"transitions"`
	FirstOrderTransitions int    `json:"first_order_transitions"`
	CDFs                  int    `json:"cdfs"`
}

// ModelSummary describes a stored model that passed validation.
type ModelSummary struct {
	Run         string `json:"run"`
	Locations   int    `json:"locations"`
	Events      uint64 `json:"events"`
	Transitions int    `json:"transitions"`
	Contexts    int    `json:"contexts"`
	MaxOrder    int    `json:"max_order"`
}

func summarize(run string, m *markov.VariableOrderGraph) *ModelSummary {
	s := &ModelSummary{
		Run:         run,
		Locations:   len(m.KnownLocations()),
		Events:      m.TotalEvents(),
		Transitions: m.NumTransitions(),
		Contexts:    m.Index().Len(),
	}
	for _, t := range m.Transitions() {
		s.MaxOrder = max(s.MaxOrder, t.Order())
	}
	return s
}

// =============================================================================
// Comparison
// =============================================================================

// DiffRequest names two stored runs to compare.
type DiffRequest struct {
	Left  string `json:"left" binding:"required"`
	Right string `json:"right" binding:"required"`

	// TopK limits ranked output. Zero applies the configured default; a
	// negative value returns everything.
	TopK int `json:"top_k,omitempty"`
}

// DiffResponse is the variable-order comparison of two runs.
type DiffResponse struct {
	Left  string `json:"left"`
	Right string `json:"right"`

	// Total and Uncomparable count all unified transitions before TopK.
	Total        int `json:"total"`
	Uncomparable int `json:"uncomparable"`

	Events []diff.EventRatio `json:"events"`

	// Records holds comparable records by descending score.
	Records []diff.Record `json:"records"`
}

// FixedDiffResponse is the first-order comparison of two runs.
type FixedDiffResponse struct {
	Left        string            `json:"left"`
	Right       string            `json:"right"`
	Aggregate   float64           `json:"aggregate"`
	Events      []diff.EventRatio `json:"events"`
	Scores      []diff.PairRatio  `json:"scores"`
	Transitions []diff.PairRatio  `json:"transitions"`
}

// DistanceRequest names two runs whose latency CDFs are compared.
type DistanceRequest struct {
	Left  string `json:"left" binding:"required"`
	Right string `json:"right" binding:"required"`
	TopK  int    `json:"top_k,omitempty"`

	// Normalize overrides the configured normalization when set.
	Normalize *bool `json:"normalize,omitempty"`

	// MinTransitionCount overrides the configured count filter when set.
	MinTransitionCount *uint64 `json:"min_transition_count,omitempty"`
}

// DistanceResponse ranks transitions by latency distance.
type DistanceResponse struct {
	Left      string          `json:"left"`
	Right     string          `json:"right"`
	Compared  int             `json:"compared"`
	Distances []diff.Distance `json:"distances"`
}

// =============================================================================
// Simulation
// =============================================================================

// SimulateRequest configures a Monte Carlo run over one stored run's graph.
type SimulateRequest struct {
	Run   string          `json:"run" binding:"required"`
	Start markov.Location `json:"start"`

	// Terminals ends walks. When empty, Depth derives them.
	Terminals []markov.Location `json:"terminals,omitempty"`

	// Depth selects every node exactly Depth edges from Start as terminal.
	Depth *int `json:"depth,omitempty" binding:"omitempty,gte=0"`

	// Zero values below fall back to configured defaults.
	Walks      int      `json:"walks,omitempty" binding:"gte=0"`
	Seed       uint64   `json:"seed,omitempty"`
	Cutoff     *float64 `json:"cutoff,omitempty" binding:"omitempty,gte=0,lt=1"`
	AllowLoops bool     `json:"allow_loops,omitempty"`
}

// TerminalSummary is one terminal's share of the walks and the percentiles
// of the latency accumulated on the way there.
type TerminalSummary struct {
	Location    markov.Location `json:"location"`
	Hits        int             `json:"hits"`
	HitRatio    float64         `json:"hit_ratio"`
	Percentiles []float64       `json:"percentiles,omitempty"`
}

// SimulationResult is the outcome of Simulate.
type SimulationResult struct {
	Run       string            `json:"run"`
	Start     markov.Location   `json:"start"`
	Walks     int               `json:"walks"`
	Levels    []float64         `json:"levels"`
	Terminals []TerminalSummary `json:"terminals"`
}

func newSimulationResult(run string, start markov.Location, res *simulate.WalkResult) *SimulationResult {
	pcts := res.Percentiles()
	out := &SimulationResult{
		Run:    run,
		Start:  start,
		Walks:  res.Walks,
		Levels: simulate.SummaryLevels,
	}
	terminals := make([]markov.Location, 0, len(res.Hits))
	for loc := range res.Hits {
		terminals = append(terminals, loc)
	}
	markov.SortLocations(terminals)
	for _, loc := range terminals {
		out.Terminals = append(out.Terminals, TerminalSummary{
			Location:    loc,
			Hits:        res.Hits[loc],
			HitRatio:    res.HitRatio(loc),
			Percentiles: pcts[loc],
		})
	}
	return out
}

// =============================================================================
// Service
// =============================================================================

// RunsResponse lists stored runs.
type RunsResponse struct {
	Runs []storage.RunInfo `json:"runs"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
