// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GinTracing returns gin middleware that wraps each request in a server
// span attributed to service. Incoming trace context is extracted from the
// request headers.
func GinTracing(service string) gin.HandlerFunc {
	return otelgin.Middleware(service)
}

// RequestIDAttribute copies the X-Request-ID header of each request onto the
// active span. It must run after GinTracing.
func RequestIDAttribute() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Request-ID"); id != "" {
			trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("request.id", id))
		}
		c.Next()
	}
}

// TraceID returns the hex trace ID of the span in ctx, or "" when ctx
// carries no valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
