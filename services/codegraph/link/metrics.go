// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package link

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("codegraph.link")
	meter  = otel.Meter("codegraph.link")
)

var (
	refsLinked   metric.Int64Counter
	edgesCreated metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		refsLinked, err = meter.Int64Counter(
			"codegraph_link_refs_total",
			metric.WithDescription("References considered by the linker"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Counter(
			"codegraph_link_edges_total",
			metric.WithDescription("Link edges produced"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLinkMetrics(ctx context.Context, refs, edges int) {
	if err := initMetrics(); err != nil {
		return
	}
	refsLinked.Add(ctx, int64(refs))
	edgesCreated.Add(ctx, int64(edges))
}
