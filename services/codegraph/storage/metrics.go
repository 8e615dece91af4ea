// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transaction outcomes.
const (
	OutcomeCommit   = "commit"
	OutcomeRollback = "rollback"
	OutcomeError    = "error"
)

var (
	txTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codegraph_storage_transactions_total",
		Help: "Storage transactions by backend and outcome",
	}, []string{"backend", "outcome"})

	txDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codegraph_storage_transaction_duration_seconds",
		Help:    "Time from Begin to Commit or Rollback",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"backend"})
)

// ObserveTx records a finished transaction. Adapters call it from Commit
// and Rollback.
func ObserveTx(backend, outcome string, d time.Duration) {
	txTotal.WithLabelValues(backend, outcome).Inc()
	txDuration.WithLabelValues(backend).Observe(d.Seconds())
}
