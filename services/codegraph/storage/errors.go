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
	"errors"
	"fmt"
)

// Sentinel errors returned by adapters.
var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")

	// ErrTxDone is returned by operations on a committed or rolled back
	// transaction.
	ErrTxDone = errors.New("transaction already finished")
)

// TransactionError reports a failed per-file or per-run transaction.
//
// The transaction was rolled back; state committed before it is intact.
type TransactionError struct {
	// Path is the file whose transaction failed, or "" for run-level
	// transactions such as the baseline advance.
	Path string

	// Op names the failing step, e.g. "replace" or "link".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *TransactionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the cause.
func (e *TransactionError) Unwrap() error {
	return e.Err
}
