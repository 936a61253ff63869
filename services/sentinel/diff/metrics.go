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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for diff operations.
var (
	tracer = otel.Tracer("sentinel.diff")
	meter  = otel.Meter("sentinel.diff")
)

var (
	diffLatency metric.Float64Histogram
	diffTotal   metric.Int64Counter
	diffRecords metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		diffLatency, err = meter.Float64Histogram(
			"sentinel_diff_duration_seconds",
			metric.WithDescription("Duration of model diff operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		diffTotal, err = meter.Int64Counter(
			"sentinel_diff_total",
			metric.WithDescription("Total number of model diff operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		diffRecords, err = meter.Int64Histogram(
			"sentinel_diff_records",
			metric.WithDescription("Number of records produced per diff"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordDiffMetrics records one diff operation.
func recordDiffMetrics(ctx context.Context, kind string, duration time.Duration, records int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	)
	diffLatency.Record(ctx, duration.Seconds(), attrs)
	diffTotal.Add(ctx, 1, attrs)
	if success {
		diffRecords.Record(ctx, int64(records), metric.WithAttributes(attribute.String("kind", kind)))
	}
}
