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
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ParseError.
var (
	// ErrUnsupportedLanguage is returned when no profile is registered for
	// a file's extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent is returned for content that is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrSyntax is returned when the parse tree contains error nodes and
	// syntax errors are not tolerated.
	ErrSyntax = errors.New("source contains syntax errors")

	// ErrParseFailed is returned when the parser produced no tree.
	ErrParseFailed = errors.New("parse failed")

	// ErrNestingTooDeep is returned when the syntax tree is deeper than the
	// walker allows.
	ErrNestingTooDeep = errors.New("syntax tree nesting too deep")
)

// ParseError records why a single file produced an empty result.
//
// A ParseError never aborts a batch. The file keeps a bare File node and no
// children until its text becomes parsable.
type ParseError struct {
	// Path is the repository-relative path of the file.
	Path string

	// Err is one of the sentinel errors above, possibly wrapped.
	Err error
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}
