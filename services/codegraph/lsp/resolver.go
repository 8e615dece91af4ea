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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/codegraph/services/codegraph/link"
)

// Defaults for ResolverConfig.
const (
	DefaultRequestsPerSecond = 50
	DefaultBurst             = 10
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// RequestsPerSecond caps the request rate sent to the server.
	// Zero selects DefaultRequestsPerSecond; negative disables the cap.
	RequestsPerSecond float64

	// Burst is the limiter bucket size. Zero selects DefaultBurst.
	Burst int

	Logger *slog.Logger
}

// Resolver answers go-to-definition and implementation queries with a
// language server. Positions in and out are root-relative, slash
// separated, and 0-based.
//
// # Thread Safety
//
// Safe for concurrent use.
type Resolver struct {
	client  *Client
	root    string
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	opened map[string]bool
}

var _ link.Resolver = (*Resolver)(nil)

// NewResolver wraps an initialized client. The resolver owns the client;
// Close shuts it down.
func NewResolver(client *Client, cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	switch {
	case cfg.RequestsPerSecond == 0:
		limit = DefaultRequestsPerSecond
	case cfg.RequestsPerSecond < 0:
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Resolver{
		client:  client,
		root:    client.Root(),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		opened:  make(map[string]bool),
	}
}

// Resolve returns the definition of the symbol at the position. Results
// outside the workspace root, such as declaration files in
// node_modules, report ok=false.
func (r *Resolver) Resolve(ctx context.Context, file string, line, column int) (link.Location, bool, error) {
	const method = "textDocument/definition"
	start := time.Now()
	ctx, span := startRequestSpan(ctx, method, file)
	defer span.End()

	locs, err := r.request(ctx, method, file, line, column)
	var (
		loc link.Location
		ok  bool
	)
	if err == nil && len(locs) > 0 {
		loc, ok = locs[0], true
	}
	r.finish(ctx, span, method, start, err, ok)
	return loc, ok, err
}

// FindImplementations returns the implementations of the symbol at the
// position. A server without implementation support yields no results.
func (r *Resolver) FindImplementations(ctx context.Context, file string, line, column int) ([]link.Location, error) {
	const method = "textDocument/implementation"
	if !r.client.Capabilities().HasImplementation() {
		return nil, nil
	}
	start := time.Now()
	ctx, span := startRequestSpan(ctx, method, file)
	defer span.End()

	locs, err := r.request(ctx, method, file, line, column)
	r.finish(ctx, span, method, start, err, len(locs) > 0)
	return locs, err
}

// Close shuts down the underlying client.
func (r *Resolver) Close(ctx context.Context) error {
	return r.client.Shutdown(ctx)
}

func (r *Resolver) request(ctx context.Context, method, file string, line, column int) ([]link.Location, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s %s: %w", method, file, ErrResolverTimeout)
	}
	if err := r.ensureOpen(file); err != nil {
		return nil, err
	}

	params := TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: pathToURI(r.abs(file))},
		Position:     Position{Line: line, Character: column},
	}
	raw, err := r.client.Call(ctx, method, params)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%s %s: %w", method, file, ErrResolverTimeout)
		}
		return nil, fmt.Errorf("%s %s: %w", method, file, err)
	}

	targets, err := decodeLocations(raw)
	if err != nil {
		return nil, err
	}
	var out []link.Location
	for _, t := range targets {
		rel, ok := r.relative(t.URI)
		if !ok {
			continue
		}
		out = append(out, link.Location{File: rel, Line: t.Range.Start.Line, Column: t.Range.Start.Character})
	}
	return out, nil
}

func (r *Resolver) finish(ctx context.Context, span trace.Span, method string, start time.Time, err error, found bool) {
	result := outcome(err, found)
	span.SetAttributes(attribute.String("lsp.outcome", result))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("resolver request failed", slog.String("method", method), slog.String("error", err.Error()))
	}
	recordRequest(ctx, method, start, result)
}

// ensureOpen sends didOpen the first time a file is queried.
func (r *Resolver) ensureOpen(file string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opened[file] {
		return nil
	}
	abs := r.abs(file)
	text, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	err = r.client.Notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        pathToURI(abs),
			LanguageID: languageID(file),
			Version:    1,
			Text:       string(text),
		},
	})
	if err != nil {
		return fmt.Errorf("didOpen %s: %w", file, err)
	}
	r.opened[file] = true
	return nil
}

func (r *Resolver) abs(file string) string {
	return filepath.Join(r.root, filepath.FromSlash(file))
}

// relative maps a file URI to a root-relative path. URIs outside the root
// or with another scheme are rejected.
func (r *Resolver) relative(uri string) (string, bool) {
	p, ok := uriToPath(uri)
	if !ok {
		return "", false
	}
	rel, err := filepath.Rel(r.root, p)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// decodeLocations accepts every shape a definition result may take:
// null, Location, []Location, or []LocationLink.
func decodeLocations(raw json.RawMessage) ([]Location, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	} else {
		items = []json.RawMessage{raw}
	}

	out := make([]Location, 0, len(items))
	for _, item := range items {
		var either struct {
			Location
			LocationLink
		}
		if err := json.Unmarshal(item, &either); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		switch {
		case either.TargetURI != "":
			out = append(out, Location{URI: either.TargetURI, Range: either.TargetSelectionRange})
		case either.URI != "":
			out = append(out, either.Location)
		}
	}
	return out, nil
}

func languageID(file string) string {
	switch strings.ToLower(path.Ext(file)) {
	case ".ts", ".mts", ".cts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".jsx":
		return "javascriptreact"
	default:
		return "javascript"
	}
}

func pathToURI(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

func uriToPath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	p := u.Path
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.Clean(filepath.FromSlash(p)), true
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
