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
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrSchemaVersionMismatch reports a stored ingestion format version
	// that differs from FormatVersion. It routes the run to a full rebuild.
	ErrSchemaVersionMismatch = errors.New("ingestion format version mismatch")

	// ErrProjectMetadataChanged reports a change to package.json or
	// .gitignore. Either can alter every file's links or visibility, so the
	// run falls back to a full rebuild.
	ErrProjectMetadataChanged = errors.New("project metadata changed")

	// ErrNoStore is returned by New when Config.Store is nil.
	ErrNoStore = errors.New("ingest: store is required")
)

// FileFailure records why one file was not ingested.
//
// A failure never aborts sibling files, but any failure keeps the baseline
// from advancing.
type FileFailure struct {
	// Path is the repository-relative file path.
	Path string

	// Err is the cause: a read error, a *storage.TransactionError, or for
	// parse failures an *extract.ParseError.
	Err error
}

// Error implements error.
func (f FileFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// Unwrap returns the cause.
func (f FileFailure) Unwrap() error {
	return f.Err
}

// MarshalJSON renders the failure with its message.
func (f FileFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{f.Path, msg})
}
