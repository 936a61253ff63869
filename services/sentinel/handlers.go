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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/sentinel/services/sentinel/diff"
	"github.com/AleutianAI/sentinel/services/sentinel/ingest"
	"github.com/AleutianAI/sentinel/services/sentinel/markov"
	"github.com/AleutianAI/sentinel/services/sentinel/simulate"
	storage "github.com/AleutianAI/sentinel/services/sentinel/storage/badger"
	"github.com/AleutianAI/sentinel/services/sentinel/telemetry"
)

// Handlers contains the HTTP handlers for the sentinel service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleHealth handles GET /v1/sentinel/health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleIngest handles POST /v1/sentinel/runs.
//
// Description:
//
//	Builds and stores a run from dump and latency directories local to the
//	server. Replaces any run stored under the same name.
//
// Request Body:
//
//	IngestRequest
//
// Response:
//
//	201 Created: IngestResult
//	400 Bad Request: Validation error or unreadable input
//	422 Unprocessable Entity: The merged model is invalid
func (h *Handlers) HandleIngest(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleIngest")
	began := time.Now()

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidBody(c, logger, "HandleIngest", began, err)
		return
	}

	logger.Info("Ingesting run", "run", req.Run, "dump_dir", req.DumpDir)
	res, err := h.svc.Ingest(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, "HandleIngest", began, err)
		return
	}
	observe("HandleIngest", "OK", began)
	c.JSON(http.StatusCreated, res)
}

// HandleListRuns handles GET /v1/sentinel/runs.
//
// Response:
//
//	200 OK: RunsResponse
func (h *Handlers) HandleListRuns(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListRuns")
	began := time.Now()

	runs, err := h.svc.Runs(c.Request.Context())
	if err != nil {
		h.fail(c, logger, "HandleListRuns", began, err)
		return
	}
	if runs == nil {
		runs = []storage.RunInfo{}
	}
	observe("HandleListRuns", "OK", began)
	c.JSON(http.StatusOK, RunsResponse{Runs: runs})
}

// HandleValidateRun handles GET /v1/sentinel/runs/:run.
//
// Description:
//
//	Loads the run's model and reports its shape. A stored model always
//	passed validation, so a 422 here indicates corruption.
//
// Response:
//
//	200 OK: ModelSummary
//	404 Not Found: No such run
func (h *Handlers) HandleValidateRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleValidateRun")
	began := time.Now()

	summary, err := h.svc.Validate(c.Request.Context(), c.Param("run"))
	if err != nil {
		h.fail(c, logger, "HandleValidateRun", began, err)
		return
	}
	observe("HandleValidateRun", "OK", began)
	c.JSON(http.StatusOK, summary)
}

// HandleDeleteRun handles DELETE /v1/sentinel/runs/:run.
//
// Response:
//
//	204 No Content
//	404 Not Found: No such run
func (h *Handlers) HandleDeleteRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteRun")
	began := time.Now()

	run := c.Param("run")
	if err := h.svc.DeleteRun(c.Request.Context(), run); err != nil {
		h.fail(c, logger, "HandleDeleteRun", began, err)
		return
	}
	logger.Info("Run deleted", "run", run)
	observe("HandleDeleteRun", "OK", began)
	c.Status(http.StatusNoContent)
}

// HandleDiff handles POST /v1/sentinel/diff.
//
// Description:
//
//	Compares the variable-order models of two runs and returns the
//	highest-scoring transitions.
//
// Request Body:
//
//	DiffRequest
//
// Response:
//
//	200 OK: DiffResponse
//	400 Bad Request: Validation error
//	404 Not Found: Either run is missing
func (h *Handlers) HandleDiff(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDiff")
	began := time.Now()

	var req DiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidBody(c, logger, "HandleDiff", began, err)
		return
	}

	resp, err := h.svc.DiffModels(c.Request.Context(), req.Left, req.Right, req.TopK)
	if err != nil {
		h.fail(c, logger, "HandleDiff", began, err)
		return
	}
	logger.Info("Models compared",
		"left", req.Left,
		"right", req.Right,
		"records", resp.Total,
		"uncomparable", resp.Uncomparable)
	observe("HandleDiff", "OK", began)
	c.JSON(http.StatusOK, resp)
}

// HandleFixedDiff handles POST /v1/sentinel/diff/fixed.
//
// Request Body:
//
//	DiffRequest
//
// Response:
//
//	200 OK: FixedDiffResponse
//	400 Bad Request: Validation error
//	404 Not Found: Either run is missing
func (h *Handlers) HandleFixedDiff(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleFixedDiff")
	began := time.Now()

	var req DiffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidBody(c, logger, "HandleFixedDiff", began, err)
		return
	}

	resp, err := h.svc.DiffRuns(c.Request.Context(), req.Left, req.Right, req.TopK)
	if err != nil {
		h.fail(c, logger, "HandleFixedDiff", began, err)
		return
	}
	observe("HandleFixedDiff", "OK", began)
	c.JSON(http.StatusOK, resp)
}

// HandleDistance handles POST /v1/sentinel/distance.
//
// Request Body:
//
//	DistanceRequest
//
// Response:
//
//	200 OK: DistanceResponse
//	400 Bad Request: Validation error
//	404 Not Found: Either run is missing
func (h *Handlers) HandleDistance(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDistance")
	began := time.Now()

	var req DistanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidBody(c, logger, "HandleDistance", began, err)
		return
	}

	resp, err := h.svc.Distances(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, "HandleDistance", began, err)
		return
	}
	logger.Info("Distances computed", "left", req.Left, "right", req.Right, "compared", resp.Compared)
	observe("HandleDistance", "OK", began)
	c.JSON(http.StatusOK, resp)
}

// HandleSimulate handles POST /v1/sentinel/simulate.
//
// Description:
//
//	Runs Monte Carlo walks over a run's first-order graph from Start until
//	a terminal is reached. The run must have been ingested with latency
//	samples for every transition.
//
// Request Body:
//
//	SimulateRequest
//
// Response:
//
//	200 OK: SimulationResult
//	400 Bad Request: Validation error, unknown node, or no terminals
//	404 Not Found: No such run
//	422 Unprocessable Entity: Missing CDFs, no path, or divergence
func (h *Handlers) HandleSimulate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSimulate")
	began := time.Now()

	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidBody(c, logger, "HandleSimulate", began, err)
		return
	}
	if req.Start.File == "" {
		h.invalidBody(c, logger, "HandleSimulate", began, errors.New("start location is required"))
		return
	}

	res, err := h.svc.Simulate(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, "HandleSimulate", began, err)
		return
	}
	logger.Info("Simulation complete",
		"run", req.Run,
		"start", req.Start.String(),
		"walks", res.Walks,
		"terminals", len(res.Terminals))
	observe("HandleSimulate", "OK", began)
	c.JSON(http.StatusOK, res)
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handlers) invalidBody(c *gin.Context, logger *slog.Logger, handler string, began time.Time, err error) {
	logger.Warn("Invalid request body", "error", err)
	observe(handler, "INVALID_REQUEST", began)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Code:    "INVALID_REQUEST",
		Details: err.Error(),
	})
}

func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, handler string, began time.Time, err error) {
	statusCode, errCode := errorStatus(err)
	if statusCode >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "trace_id", telemetry.TraceID(c.Request.Context()))
	} else {
		logger.Warn("Request rejected", "error", err, "code", errCode)
	}
	observe(handler, errCode, began)
	c.JSON(statusCode, ErrorResponse{
		Error: err.Error(),
		Code:  errCode,
	})
}

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		return http.StatusNotFound, "RUN_NOT_FOUND"
	case errors.Is(err, storage.ErrInvalidRunID), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, ErrTerminalsRequired), errors.Is(err, simulate.ErrNoTerminals):
		return http.StatusBadRequest, "NO_TERMINALS"
	case errors.Is(err, markov.ErrNodeNotFound):
		return http.StatusBadRequest, "NODE_NOT_FOUND"
	case errors.Is(err, simulate.ErrInvalidDepth), errors.Is(err, simulate.ErrInvalidWalkCount):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, ingest.ErrNoDumps):
		return http.StatusBadRequest, "NO_DUMPS"
	case errors.Is(err, ingest.ErrMalformedLine), errors.Is(err, ingest.ErrDuplicateID),
		errors.Is(err, ingest.ErrUnknownID), errors.Is(err, ingest.ErrInconsistentCounts):
		return http.StatusBadRequest, "MALFORMED_DUMP"
	case errors.Is(err, markov.ErrModelInvariantViolation):
		return http.StatusUnprocessableEntity, "INVALID_MODEL"
	case errors.Is(err, markov.ErrMissingCDF):
		return http.StatusUnprocessableEntity, "MISSING_CDF"
	case errors.Is(err, simulate.ErrNoPathToTerminal):
		return http.StatusUnprocessableEntity, "NO_PATH"
	case errors.Is(err, simulate.ErrWalkDiverged), errors.Is(err, simulate.ErrSearchDepthExceeded):
		return http.StatusUnprocessableEntity, "SEARCH_LIMIT"
	case errors.Is(err, diff.ErrInconsistentDiff):
		return http.StatusInternalServerError, "INCONSISTENT_DIFF"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// getOrCreateRequestID gets the request ID from header or creates one.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
