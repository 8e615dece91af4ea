// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the committed code graph over HTTP.
//
// All routes live under /v1/codegraph. Reads go through query.Service;
// the optional ingestion routes need an Ingester.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/codegraph/services/codegraph/ingest"
	"github.com/AleutianAI/codegraph/services/codegraph/query"
)

// Ingester runs and inspects ingestion. *ingest.Engine implements it.
type Ingester interface {
	Status(ctx context.Context, force bool) (ingest.Decision, error)
	Run(ctx context.Context, opts ingest.RunOptions) (*ingest.Summary, error)
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	svc      *query.Service
	ingester Ingester
	logger   *slog.Logger
}

// NewHandlers creates handlers over svc. ingester may be nil, which
// disables /status and /ingest.
func NewHandlers(svc *query.Service, ingester Ingester, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, ingester: ingester, logger: logger}
}

// HandleSymbols handles GET /v1/codegraph/symbols.
//
// Query Parameters:
//
//	pattern: name pattern, * and % are wildcards (optional)
//	kind: kind name, repeatable or comma-separated (optional)
//	file: owning file (optional)
//	limit: maximum results (optional, default 50)
func (h *Handlers) HandleSymbols(c *gin.Context) {
	logger := h.requestLogger(c, "HandleSymbols")

	var req SymbolsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
		return
	}

	res, err := h.svc.FindSymbols(c.Request.Context(), query.SymbolParams{
		Pattern: req.Pattern,
		Kinds:   req.Kinds,
		File:    req.File,
		Limit:   req.Limit,
	})
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleNode handles GET /v1/codegraph/nodes/:id.
func (h *Handlers) HandleNode(c *gin.Context) {
	logger := h.requestLogger(c, "HandleNode")

	res, err := h.svc.Node(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleCallers handles GET /v1/codegraph/callers.
//
// Query Parameters:
//
//	target: node id or symbol name (required)
//	limit: maximum results (optional, default 50)
func (h *Handlers) HandleCallers(c *gin.Context) {
	h.handleNeighbors(c, "HandleCallers", h.svc.Callers)
}

// HandleCallees handles GET /v1/codegraph/callees.
func (h *Handlers) HandleCallees(c *gin.Context) {
	h.handleNeighbors(c, "HandleCallees", h.svc.Callees)
}

func (h *Handlers) handleNeighbors(c *gin.Context, name string, walk func(context.Context, string, int) (*query.Neighbors, error)) {
	logger := h.requestLogger(c, name)

	var req NeighborsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid query parameters: target is required",
			Code:  CodeInvalidRequest,
		})
		return
	}

	res, err := walk(c.Request.Context(), req.Target, req.Limit)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleStats handles GET /v1/codegraph/stats.
func (h *Handlers) HandleStats(c *gin.Context) {
	logger := h.requestLogger(c, "HandleStats")

	res, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleStatus handles GET /v1/codegraph/status. It reports the state the
// next ingestion would take without writing anything.
func (h *Handlers) HandleStatus(c *gin.Context) {
	logger := h.requestLogger(c, "HandleStatus")
	if h.ingester == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "ingestion is not configured", Code: CodeUnavailable})
		return
	}

	d, err := h.ingester.Status(c.Request.Context(), false)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// HandleIngest handles POST /v1/codegraph/ingest.
//
// Body (optional): {"force": true} rebuilds from scratch.
//
// Response:
//
//	200 OK: ingest.Summary, including per-file failures
//	500 Internal Server Error: the run aborted
func (h *Handlers) HandleIngest(c *gin.Context) {
	logger := h.requestLogger(c, "HandleIngest")
	if h.ingester == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "ingestion is not configured", Code: CodeUnavailable})
		return
	}

	var req IngestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
			return
		}
	}

	summary, err := h.ingester.Run(c.Request.Context(), ingest.RunOptions{Force: req.Force})
	if err != nil {
		logger.Error("ingestion failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeIngestFailed})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleHealth handles GET /v1/codegraph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest})
	case errors.Is(err, query.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
	case errors.Is(err, context.Canceled):
		c.JSON(499, ErrorResponse{Error: err.Error(), Code: CodeCancelled})
	default:
		logger.Error("query failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeQueryFailed})
	}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With(
		slog.String("request_id", requestID(c)),
		slog.String("handler", handler),
	)
}

// requestID returns the X-Request-ID header, minting one when absent.
func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header("X-Request-ID", id)
	return id
}
