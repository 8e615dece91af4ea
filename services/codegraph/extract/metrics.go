// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

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
	tracer = otel.Tracer("codegraph.extract")
	meter  = otel.Meter("codegraph.extract")
)

var (
	extractLatency metric.Float64Histogram
	extractTotal   metric.Int64Counter
	nodesExtracted metric.Int64Histogram
	parseErrors    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		extractLatency, err = meter.Float64Histogram(
			"codegraph_extract_duration_seconds",
			metric.WithDescription("Duration of single-file extraction"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractTotal, err = meter.Int64Counter(
			"codegraph_extract_total",
			metric.WithDescription("Files processed by the extraction engine"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesExtracted, err = meter.Int64Histogram(
			"codegraph_extract_nodes",
			metric.WithDescription("Symbol nodes produced per file"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"codegraph_parse_errors_total",
			metric.WithDescription("Files that produced a ParseError"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordExtractMetrics(ctx context.Context, language string, duration time.Duration, nodeCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)
	extractLatency.Record(ctx, duration.Seconds(), attrs)
	extractTotal.Add(ctx, 1, attrs)

	lang := metric.WithAttributes(attribute.String("language", language))
	if success {
		nodesExtracted.Record(ctx, int64(nodeCount), lang)
	} else {
		parseErrors.Add(ctx, 1, lang)
	}
}

func startExtractSpan(ctx context.Context, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Extractor.Extract",
		trace.WithAttributes(
			attribute.String("extract.file", filePath),
			attribute.Int("extract.content_size", contentSize),
		),
	)
}
