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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/sentinel/services/sentinel/telemetry"
)

// RegisterRoutes registers all sentinel routes with the router.
//
// Description:
//
//	Registers all /v1/sentinel/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//	opts - Per-route middleware such as WithSimulateLimit
//
// Run Endpoints:
//
//	GET    /v1/sentinel/runs - List stored runs
//	POST   /v1/sentinel/runs - Ingest a run from server-local directories
//	GET    /v1/sentinel/runs/:run - Validate a stored model
//	DELETE /v1/sentinel/runs/:run - Delete a run
//
// Analysis Endpoints:
//
//	POST /v1/sentinel/diff - Variable-order model diff
//	POST /v1/sentinel/diff/fixed - First-order table diff
//	POST /v1/sentinel/distance - Latency CDF distances
//	POST /v1/sentinel/simulate - Monte Carlo latency simulation
//
// Health Endpoints:
//
//	GET /v1/sentinel/health - Health check
//	GET /v1/sentinel/metrics - Prometheus metrics
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, opts ...RouterOption) {
	o := newRouterOptions(opts)
	s := rg.Group("/sentinel")
	{
		s.GET("/health", handlers.HandleHealth)
		s.GET("/metrics", gin.WrapH(metricsHandler()))

		s.GET("/runs", handlers.HandleListRuns)
		s.POST("/runs", handlers.HandleIngest)
		s.GET("/runs/:run", handlers.HandleValidateRun)
		s.DELETE("/runs/:run", handlers.HandleDeleteRun)

		s.POST("/diff", handlers.HandleDiff)
		s.POST("/diff/fixed", handlers.HandleFixedDiff)
		s.POST("/distance", handlers.HandleDistance)
		s.POST("/simulate", append(o.simulate, handlers.HandleSimulate)...)
	}
}

// metricsHandler serves the OpenTelemetry Prometheus exporter when it is
// active and the default registry otherwise.
func metricsHandler() http.Handler {
	if h := telemetry.MetricsHandler(); h != nil {
		return h
	}
	return promhttp.Handler()
}

// NewRouter creates a Gin engine serving the sentinel API under /v1 with
// panic recovery and request tracing.
func NewRouter(svc *Service, opts ...RouterOption) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), telemetry.GinTracing("sentinel"), telemetry.RequestIDAttribute())
	RegisterRoutes(r.Group("/v1"), NewHandlers(svc), opts...)
	return r
}
