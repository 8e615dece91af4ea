// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package git is the version-control collaborator of the ingestion engine.
//
// # Description
//
// It answers two questions: what is the current revision, and which files
// changed between two revisions. Two backends implement Collaborator:
// Repo reads the repository in-process with go-git, and CLI shells out to
// the git binary and parses its unified diff. HeadWatcher reports when
// HEAD moves so callers can re-run an incremental ingest.
//
// # Thread Safety
//
// Repo and CLI are safe for concurrent use.
package git

import (
	"context"
	"sort"
)

// ChangeType classifies a changed path.
type ChangeType int

const (
	// Added means the path did not exist at the older revision.
	Added ChangeType = iota + 1

	// Modified means the content at the path changed.
	Modified

	// Deleted means the path no longer exists.
	Deleted

	// Renamed means the file moved from OldPath to Path. Content may also
	// have changed.
	Renamed
)

// String returns a human-readable name for the change type.
func (t ChangeType) String() string {
	switch t {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Change is one entry of a revision diff. Paths are slash-separated and
// relative to the repository root.
type Change struct {
	// Path is the path at the newer revision, or the removed path for
	// Deleted.
	Path string `json:"path"`

	// Type classifies the change.
	Type ChangeType `json:"type"`

	// OldPath is the path at the older revision. Set only for Renamed.
	OldPath string `json:"old_path,omitempty"`
}

// Collaborator exposes the revision queries the ingestion engine needs.
type Collaborator interface {
	// Head returns the commit hash HEAD points at.
	//
	// Returns ErrNoHead when the repository has no commits.
	Head(ctx context.Context) (string, error)

	// Diff lists the files that differ between revisions from and to.
	//
	// Returns an error wrapping ErrRevisionUnreachable when either
	// revision cannot be found, e.g. after a rebase or in a shallow clone.
	Diff(ctx context.Context, from, to string) ([]Change, error)
}

// sortChanges orders changes by path so callers see a stable plan.
func sortChanges(changes []Change) []Change {
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Path != changes[j].Path {
			return changes[i].Path < changes[j].Path
		}
		return changes[i].Type < changes[j].Type
	})
	return changes
}
