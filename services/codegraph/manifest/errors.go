// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest discovers the source files of a project and loads its
// package.json dependency manifests.
//
// # Description
//
// Scanner walks the project root applying include and exclude globs and
// the project's .gitignore files. LoadDependencies merges the declared
// dependencies of every package.json the scan found into the table the
// linker uses to recognise external libraries.
//
// # Thread Safety
//
// Scanner is safe for concurrent use. A Result is not.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRoot is returned when the project root is missing or not
	// a directory.
	ErrInvalidRoot = errors.New("invalid project root")

	// ErrInvalidManifest is returned for an unreadable package.json.
	ErrInvalidManifest = errors.New("invalid package.json")
)

// ScanError is a non-fatal problem with one path. Scanning continues.
type ScanError struct {
	// Path is relative to the project root.
	Path string `json:"path"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements error.
func (e ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e ScanError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error as its message.
func (e ScanError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}{e.Path, e.Err.Error()})
}
