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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// requestTotal counts API requests by handler and response code
	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_api_requests_total",
		Help: "Total API requests by handler and error code",
	}, []string{"handler", "code"})

	// requestDuration tracks handler latency
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_api_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
	}, []string{"handler"})

	// walksSimulated counts walks served through the API and CLI
	walksSimulated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_service_walks_total",
		Help: "Total random walks performed by the service",
	})
)

// observe records one handler invocation. code is "OK" on success.
func observe(handler, code string, began time.Time) {
	requestTotal.WithLabelValues(handler, code).Inc()
	requestDuration.WithLabelValues(handler).Observe(time.Since(began).Seconds())
}
