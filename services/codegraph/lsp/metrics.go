// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("codegraph.lsp")
	meter  = otel.Meter("codegraph.lsp")
)

var (
	requestLatency metric.Float64Histogram
	requestTotal   metric.Int64Counter
	serverSpawns   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestLatency, err = meter.Float64Histogram(
			"codegraph_lsp_request_duration_seconds",
			metric.WithDescription("Duration of resolver requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"codegraph_lsp_requests_total",
			metric.WithDescription("Resolver requests by method and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverSpawns, err = meter.Int64Counter(
			"codegraph_lsp_server_spawns_total",
			metric.WithDescription("Language server processes started"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func startRequestSpan(ctx context.Context, method, file string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lsp."+method,
		trace.WithAttributes(
			attribute.String("lsp.method", method),
			attribute.String("lsp.file", file),
		),
	)
}

// outcome labels a finished request for metrics.
func outcome(err error, found bool) string {
	switch {
	case err == nil && found:
		return "resolved"
	case err == nil:
		return "empty"
	case isTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}

func recordRequest(ctx context.Context, method string, start time.Time, result string) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", result),
	)
	requestLatency.Record(ctx, time.Since(start).Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

func recordServerSpawn(ctx context.Context, command string) {
	if err := initMetrics(); err != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}
