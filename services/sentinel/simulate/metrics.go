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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for simulation.
var (
	tracer = otel.Tracer("sentinel.simulate")
	meter  = otel.Meter("sentinel.simulate")
)

var (
	pruneLatency metric.Float64Histogram
	goodEdges    metric.Int64Histogram
	runLatency   metric.Float64Histogram
	walksTotal   metric.Int64Counter
	runsTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		pruneLatency, err = meter.Float64Histogram(
			"sentinel_prune_duration_seconds",
			metric.WithDescription("Duration of reachability pruning"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		goodEdges, err = meter.Int64Histogram(
			"sentinel_prune_good_edges",
			metric.WithDescription("Good edges found per pruning"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runLatency, err = meter.Float64Histogram(
			"sentinel_simulation_duration_seconds",
			metric.WithDescription("Duration of Monte Carlo runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		walksTotal, err = meter.Int64Counter(
			"sentinel_walks_total",
			metric.WithDescription("Total number of random walks performed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runsTotal, err = meter.Int64Counter(
			"sentinel_simulations_total",
			metric.WithDescription("Total number of Monte Carlo runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordPruneMetrics(ctx context.Context, duration time.Duration, reach *Reachability, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	pruneLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
	if reach != nil {
		goodEdges.Record(ctx, int64(reach.NumGood()))
	}
}

func recordWalkMetrics(ctx context.Context, duration time.Duration, walks int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	runLatency.Record(ctx, duration.Seconds(), attrs)
	runsTotal.Add(ctx, 1, attrs)
	if success {
		walksTotal.Add(ctx, int64(walks))
	}
}
