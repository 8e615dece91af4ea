// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns one source file into graph nodes, intra-file edges,
// and unresolved references.
//
// Extraction is stateless per file: the result depends only on the path and
// the text, so files can be processed in any order and in parallel. Each
// language is a Profile of declarative Rules selected by file extension.
//
// # Thread Safety
//
// Extractor is safe for concurrent use. Every Extract call creates its own
// tree-sitter parser.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/codegraph/services/codegraph/graph"
)

const (
	// DefaultMaxFileSize is the largest file parsed by default.
	DefaultMaxFileSize = 2 * 1024 * 1024

	// WarnFileSize triggers a warning log for large files.
	WarnFileSize = 512 * 1024
)

// Result is the output of extracting one file.
type Result struct {
	// Path is the normalized repository-relative path.
	Path string

	// Language is the profile language, empty when unsupported.
	Language string

	// Hash is the hex sha256 of the file content.
	Hash string

	// File is the File node. It is present even when Err is set.
	File graph.Node

	// Nodes are the symbol nodes in discovery order.
	Nodes []graph.Node

	// Edges are intra-file edges: Contains, local Handler, and Calls from a
	// function to a Request it issues.
	Edges []graph.Edge

	// Refs are the references left for the linker.
	Refs []graph.Reference

	// Err is set when the file could not be parsed. Nodes, Edges, and
	// Refs are then empty.
	Err *ParseError
}

// AllNodes returns the File node followed by the symbol nodes.
func (r *Result) AllNodes() []graph.Node {
	out := make([]graph.Node, 0, len(r.Nodes)+1)
	out = append(out, r.File)
	return append(out, r.Nodes...)
}

func (r *Result) fail(err error) {
	r.Err = &ParseError{Path: r.Path, Err: err}
	r.File.Attributes[graph.AttrParseError] = err.Error()
	r.Nodes = nil
	r.Edges = nil
	r.Refs = nil
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxFileSize sets the maximum file size in bytes. Non-positive values
// are ignored.
func WithMaxFileSize(bytes int64) Option {
	return func(e *Extractor) {
		if bytes > 0 {
			e.maxFileSize = bytes
		}
	}
}

// WithTolerateSyntaxErrors extracts what tree-sitter recovered from files
// with syntax errors instead of reporting a ParseError.
func WithTolerateSyntaxErrors(tolerate bool) Option {
	return func(e *Extractor) {
		e.tolerateErrors = tolerate
	}
}

// WithRegistry replaces the default language profiles.
func WithRegistry(r *Registry) Option {
	return func(e *Extractor) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Extractor runs language profiles over source files.
type Extractor struct {
	registry       *Registry
	maxFileSize    int64
	tolerateErrors bool
	logger         *slog.Logger
}

// NewExtractor creates an extractor with the default profiles.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		registry:    DefaultRegistry(),
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the extractor's language registry.
func (e *Extractor) Registry() *Registry {
	return e.registry
}

// Extract parses one file.
//
// Description:
//
//	Runs the profile registered for the file's extension and returns its
//	nodes, intra-file edges, and unresolved references. A file that cannot
//	be parsed yields a Result holding only the File node and a ParseError;
//	that is not an error return, so a batch never stops on one file.
//
// Inputs:
//
//	ctx - Cancellation. Checked before parsing and periodically during
//	      the walk.
//	path - Repository-relative path. Normalized before use.
//	src - File content.
//
// Outputs:
//
//	*Result - Never nil when error is nil.
//	error - Only the context's error.
func (e *Extractor) Extract(ctx context.Context, path string, src []byte) (*Result, error) {
	ctx, span := startExtractSpan(ctx, path, len(src))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	start := time.Now()
	p := graph.NormalizePath(path)
	sum := sha256.Sum256(src)
	res := &Result{
		Path: p,
		Hash: hex.EncodeToString(sum[:]),
		File: graph.Node{
			ID:   graph.FileID(p),
			Kind: graph.NodeKindFile,
			Name: p,
			File: p,
			Span: graph.Span{Start: 0, End: uint32(len(src))},
		},
	}
	res.File.Attributes = map[string]string{graph.AttrHash: res.Hash}

	profile := e.registry.ForPath(p)
	if profile != nil {
		res.Language = profile.Language
		res.File.Attributes[graph.AttrLanguage] = profile.Language
	}

	if err := e.extract(ctx, profile, res, src); err != nil {
		if ctx.Err() != nil {
			recordExtractMetrics(ctx, res.Language, time.Since(start), 0, false)
			return nil, fmt.Errorf("extract %s: %w", p, ctx.Err())
		}
		res.fail(err)
		e.logger.Debug("file not parsable",
			slog.String("path", p),
			slog.String("error", err.Error()))
	}

	span.SetAttributes(
		attribute.Int("extract.nodes", len(res.Nodes)),
		attribute.Int("extract.refs", len(res.Refs)),
		attribute.Bool("extract.parse_error", res.Err != nil),
	)
	recordExtractMetrics(ctx, res.Language, time.Since(start), len(res.Nodes), res.Err == nil)
	return res, nil
}

func (e *Extractor) extract(ctx context.Context, profile *Profile, res *Result, src []byte) error {
	if profile == nil {
		return ErrUnsupportedLanguage
	}
	if int64(len(src)) > e.maxFileSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(src), e.maxFileSize)
	}
	if len(src) > WarnFileSize {
		e.logger.Warn("parsing large file",
			slog.String("path", res.Path),
			slog.Int("size_bytes", len(src)))
	}
	if !utf8.Valid(src) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(profile.Grammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() && !e.tolerateErrors {
		if bad := firstError(root); bad != nil {
			return fmt.Errorf("%w at line %d", ErrSyntax, bad.StartPoint().Row+1)
		}
		return ErrSyntax
	}

	w := newWalker(ctx, profile, res, src)
	return w.run(root)
}
