// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the /codegraph endpoints on rg.
//
// Endpoints:
//
//	GET  /codegraph/symbols    - Find nodes by name pattern
//	GET  /codegraph/nodes/:id  - One node with its edges
//	GET  /codegraph/callers    - Callers of a symbol
//	GET  /codegraph/callees    - Callees of a symbol
//	GET  /codegraph/stats      - Node and edge counts by kind
//	GET  /codegraph/status     - Next ingestion state, no writes
//	POST /codegraph/ingest     - Run ingestion
//	GET  /codegraph/health     - Liveness
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	cg := rg.Group("/codegraph")
	{
		cg.GET("/symbols", h.HandleSymbols)
		cg.GET("/nodes/:id", h.HandleNode)
		cg.GET("/callers", h.HandleCallers)
		cg.GET("/callees", h.HandleCallees)
		cg.GET("/stats", h.HandleStats)
		cg.GET("/status", h.HandleStatus)
		cg.POST("/ingest", h.HandleIngest)
		cg.GET("/health", h.HandleHealth)
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// ServiceName names the otelgin spans.
	ServiceName string

	// Metrics is mounted at /metrics when not nil.
	Metrics http.Handler

	// Debug enables gin's debug mode and request log.
	Debug bool

	// Logger receives access logs. Default: slog.Default().
	Logger *slog.Logger
}

// NewRouter builds the gin engine with recovery, tracing, and access
// logging, and registers every route under /v1.
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "codegraph"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(accessLog(logger))
	if opts.Debug {
		router.Use(gin.Logger())
	}

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	RegisterRoutes(router.Group("/v1"), h)
	return router
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := requestID(c)
		c.Next()
		logger.Debug("request",
			slog.String("request_id", id),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	}
}

// Serve runs handler on addr until ctx is done, then shuts down
// gracefully within shutdownTimeout.
func Serve(ctx context.Context, addr string, handler http.Handler, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
