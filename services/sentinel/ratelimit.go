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
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RouterOption configures NewRouter and RegisterRoutes.
type RouterOption func(*routerOptions)

type routerOptions struct {
	// simulate runs ahead of HandleSimulate.
	simulate []gin.HandlerFunc
}

func newRouterOptions(opts []RouterOption) routerOptions {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSimulateLimit caps POST /simulate at perSecond requests per second
// with the given burst. A non-positive perSecond leaves the route
// unlimited; a non-positive burst is treated as 1.
//
// Simulation is the only endpoint whose cost scales with a request field
// (walks), so it is the only one limited.
func WithSimulateLimit(perSecond float64, burst int) RouterOption {
	return func(o *routerOptions) {
		if perSecond <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		o.simulate = append(o.simulate, rateLimit("HandleSimulate", rate.NewLimiter(rate.Limit(perSecond), burst)))
	}
}

// rateLimit rejects requests the limiter cannot admit immediately.
func rateLimit(handler string, limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter.Allow() {
			c.Next()
			return
		}
		began := time.Now()
		c.Header("Retry-After", "1")
		observe(handler, "RATE_LIMITED", began)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "Too many simulation requests",
			Code:  "RATE_LIMITED",
		})
	}
}
