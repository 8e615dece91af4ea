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
	"time"

	"github.com/AleutianAI/codegraph/services/codegraph/link"
	"github.com/AleutianAI/codegraph/services/codegraph/manifest"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

// Summary reports what one run did.
//
// A run is resilient: file-level problems are listed here rather than
// returned as errors. Success reports whether the baseline could advance.
type Summary struct {
	// RunID identifies the run in logs.
	RunID string `json:"run_id"`

	// Decision is the synchronization decision the run acted on.
	Decision Decision `json:"decision"`

	// FilesDiscovered is the number of source files in scope: every
	// discovered file for full runs, every changed path for diffs.
	FilesDiscovered int `json:"files_discovered"`

	// FilesProcessed is the number of files whose nodes were committed.
	FilesProcessed int `json:"files_processed"`

	// FilesDeleted is the number of files removed from the graph.
	FilesDeleted int `json:"files_deleted"`

	// FilesRelinked is the number of unchanged files whose references were
	// re-resolved because a changed file could affect them.
	FilesRelinked int `json:"files_relinked"`

	// NodesCreated counts nodes stored under an id that did not exist
	// before the run wrote them.
	NodesCreated int `json:"nodes_created"`

	// NodesUpdated counts nodes rewritten under an id that already existed,
	// whether or not their content changed.
	NodesUpdated int `json:"nodes_updated"`

	// EdgesWritten counts inserted edges. Edges carry no payload beyond
	// their endpoints, so a replaced file's edges are removed and inserted
	// again rather than updated; both sides are counted.
	EdgesWritten int `json:"edges_written"`

	// Deleted counts nodes that no longer exist after the run and every
	// edge removed by file replacement, deletion, relinking, and pruning.
	Deleted storage.Removed `json:"deleted"`

	// ParseErrors lists files stored with an empty result.
	ParseErrors []FileFailure `json:"parse_errors,omitempty"`

	// Failures lists files whose transaction or read failed.
	Failures []FileFailure `json:"failures,omitempty"`

	// ScanErrors lists discovery and manifest problems.
	ScanErrors []manifest.ScanError `json:"scan_errors,omitempty"`

	// Link accumulates linking outcomes.
	Link *link.Stats `json:"link"`

	// BaselineAdvanced reports whether the run recorded HEAD as the new
	// baseline.
	BaselineAdvanced bool `json:"baseline_advanced"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration_ns"`
}

func newSummary(runID string, d Decision) *Summary {
	return &Summary{RunID: runID, Decision: d, Link: link.NewStats()}
}

// Success reports whether every file in scope was ingested.
func (s *Summary) Success() bool {
	return len(s.Failures) == 0
}

func (s *Summary) fail(path string, err error) {
	s.Failures = append(s.Failures, FileFailure{Path: path, Err: err})
}
