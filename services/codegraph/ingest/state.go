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
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/AleutianAI/codegraph/services/codegraph/git"
	"github.com/AleutianAI/codegraph/services/codegraph/manifest"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

// FormatVersion is the ingestion format written with every baseline. A
// stored graph with another version is rebuilt from scratch.
const FormatVersion = 3

// State is the synchronization state chosen at the start of a run.
type State int

const (
	// StateNoBaseline means no usable baseline exists, or a full rebuild
	// was requested. Every discovered file is ingested.
	StateNoBaseline State = iota + 1

	// StateUpToDate means the baseline equals HEAD. The run is a no-op.
	StateUpToDate

	// StateDiffable means the baseline diffs cleanly against HEAD. Only
	// changed files are ingested.
	StateDiffable

	// StateUnreachable means a baseline exists but cannot be diffed or was
	// written by another format version. The run behaves like
	// StateNoBaseline.
	StateUnreachable
)

var stateNames = map[State]string{
	StateNoBaseline:  "no_baseline",
	StateUpToDate:    "up_to_date",
	StateDiffable:    "diffable",
	StateUnreachable: "unreachable",
}

// String returns the state's name, e.g. "diffable".
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Full reports whether the state rebuilds every file.
func (s State) Full() bool {
	return s == StateNoBaseline || s == StateUnreachable
}

// Decision is the outcome of comparing the stored baseline with HEAD.
type Decision struct {
	// State is the chosen synchronization state.
	State State `json:"state"`

	// Baseline is the stored revision, "" when none.
	Baseline string `json:"baseline,omitempty"`

	// Head is the current revision, "" outside version control or in a
	// repository without commits.
	Head string `json:"head,omitempty"`

	// Reason explains full rebuilds and fallbacks.
	Reason string `json:"reason,omitempty"`

	// Cause classifies an Unreachable fallback: git.ErrRevisionUnreachable,
	// ErrSchemaVersionMismatch, or ErrProjectMetadataChanged.
	Cause error `json:"-"`

	// Changes is the classified diff when State is StateDiffable.
	Changes []git.Change `json:"-"`

	// ChangeCount is len(Changes).
	ChangeCount int `json:"changes"`
}

// Status decides what a run would do without writing anything.
//
// Description:
//
//	Reads the baseline and format version from the store, asks the
//	version-control collaborator for HEAD, and diffs the two. A diff that
//	fails for any reason other than cancellation becomes an Unreachable
//	decision, never an error.
//
// Inputs:
//
//	ctx - Cancellation for storage reads and git calls.
//	force - Request a full rebuild regardless of the baseline.
//
// Outputs:
//
//	Decision - The chosen state.
//	error - Storage read failures, HEAD lookup failures other than an
//	        empty repository, or cancellation.
func (e *Engine) Status(ctx context.Context, force bool) (Decision, error) {
	d := Decision{}

	baseline, hasBaseline, err := e.store.Metadata(ctx, storage.MetaLastRevision)
	if err != nil {
		return d, fmt.Errorf("read baseline: %w", err)
	}
	version, hasVersion, err := e.store.Metadata(ctx, storage.MetaFormatVersion)
	if err != nil {
		return d, fmt.Errorf("read format version: %w", err)
	}
	d.Baseline = baseline

	if e.git != nil {
		head, err := e.git.Head(ctx)
		switch {
		case errors.Is(err, git.ErrNoHead):
			d.State, d.Reason = StateNoBaseline, "repository has no commits"
			return d, nil
		case err != nil:
			return d, fmt.Errorf("read head: %w", err)
		}
		d.Head = head
	}

	switch {
	case force:
		d.State, d.Reason = StateNoBaseline, "full rebuild requested"
		return d, nil
	case e.git == nil:
		d.State, d.Reason = StateNoBaseline, "not under version control"
		return d, nil
	case !hasBaseline || baseline == "":
		d.State, d.Reason = StateNoBaseline, "no baseline revision"
		return d, nil
	}

	if !hasVersion || version != strconv.Itoa(FormatVersion) {
		d.State = StateUnreachable
		d.Cause = fmt.Errorf("%w: stored %q, current %d", ErrSchemaVersionMismatch, version, FormatVersion)
		d.Reason = d.Cause.Error()
		return d, nil
	}
	if baseline == d.Head {
		d.State = StateUpToDate
		return d, nil
	}

	changes, err := e.git.Diff(ctx, baseline, d.Head)
	if err != nil {
		if ctx.Err() != nil {
			return d, ctx.Err()
		}
		if !errors.Is(err, git.ErrRevisionUnreachable) {
			e.logger.Warn("diff failed, falling back to full rebuild",
				slog.String("revision", baseline),
				slog.String("error", err.Error()))
		}
		d.State, d.Cause, d.Reason = StateUnreachable, err, err.Error()
		return d, nil
	}

	for _, c := range changes {
		if manifest.IsProjectMetadata(c.Path) || c.OldPath != "" && manifest.IsProjectMetadata(c.OldPath) {
			d.State = StateUnreachable
			d.Cause = fmt.Errorf("%w: %s", ErrProjectMetadataChanged, c.Path)
			d.Reason = d.Cause.Error()
			return d, nil
		}
	}

	d.State, d.Changes, d.ChangeCount = StateDiffable, changes, len(changes)
	return d, nil
}
