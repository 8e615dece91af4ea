// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrServerNotRunning indicates a closed connection.
	ErrServerNotRunning = errors.New("lsp server not running")

	// ErrServerNotInstalled indicates the server binary was not found.
	ErrServerNotInstalled = errors.New("lsp server not installed")

	// ErrInitializeFailed indicates the initialize handshake failed.
	ErrInitializeFailed = errors.New("lsp initialize failed")

	// ErrServerCrashed indicates the server closed its output.
	ErrServerCrashed = errors.New("lsp server crashed")

	// ErrInvalidResponse indicates a response that could not be decoded.
	ErrInvalidResponse = errors.New("invalid lsp response")

	// ErrResolverTimeout indicates a resolver call that exceeded its
	// deadline. It matches context.DeadlineExceeded under errors.Is.
	ErrResolverTimeout = fmt.Errorf("lsp resolver timeout: %w", context.DeadlineExceeded)
)

// ResponseError is an error returned by the server.
//
// Codes of note:
//   - -32601: Method not found
//   - -32603: Internal error
//   - -32800: Request cancelled
//   - -32802: Server not initialized
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements error.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("lsp error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound reports whether the server lacks the method.
func (e *ResponseError) IsMethodNotFound() bool {
	return e.Code == -32601
}
