// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeQueryFailed    = "QUERY_FAILED"
	CodeIngestFailed   = "INGEST_FAILED"
	CodeUnavailable    = "UNAVAILABLE"
	CodeCancelled      = "CANCELLED"
)

const requestIDKey = "codegraph.request_id"

// SymbolsRequest is the query string of GET /symbols.
type SymbolsRequest struct {
	Pattern string   `form:"pattern"`
	Kinds   []string `form:"kind"`
	File    string   `form:"file"`
	Limit   int      `form:"limit" binding:"gte=0"`
}

// NeighborsRequest is the query string of GET /callers and GET /callees.
type NeighborsRequest struct {
	Target string `form:"target" binding:"required"`
	Limit  int    `form:"limit" binding:"gte=0"`
}

// IngestRequest is the optional body of POST /ingest.
type IngestRequest struct {
	Force bool `json:"force"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code classifies the error.
	Code string `json:"code,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
