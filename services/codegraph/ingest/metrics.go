// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("codegraph.ingest")
	meter  = otel.Meter("codegraph.ingest")
)

var (
	runDuration  metric.Float64Histogram
	runTotal     metric.Int64Counter
	filesTotal   metric.Int64Counter
	failureTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runDuration, err = meter.Float64Histogram(
			"codegraph_ingest_run_duration_seconds",
			metric.WithDescription("Duration of ingestion runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"codegraph_ingest_runs_total",
			metric.WithDescription("Ingestion runs by state and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesTotal, err = meter.Int64Counter(
			"codegraph_ingest_files_total",
			metric.WithDescription("Files ingested"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		failureTotal, err = meter.Int64Counter(
			"codegraph_ingest_file_failures_total",
			metric.WithDescription("Files whose ingestion failed"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordRun(ctx context.Context, s *Summary, err error) {
	if initMetrics() != nil {
		return
	}
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case !s.Success():
		outcome = "partial"
	}
	attrs := metric.WithAttributes(
		attribute.String("state", s.Decision.State.String()),
		attribute.String("outcome", outcome),
	)
	runDuration.Record(ctx, s.Duration.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
	filesTotal.Add(ctx, int64(s.FilesProcessed))
	failureTotal.Add(ctx, int64(len(s.Failures)))
}
