// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest keeps a stored code graph in step with a source tree.
//
// An Engine run compares the stored baseline revision with HEAD and picks
// one of four states. A full rebuild extracts every discovered file; a
// diffable run extracts only changed files, relinks the unchanged files
// they can affect, and deletes what was removed. Every file is replaced in
// its own transaction, all nodes are written before any link edge, and the
// baseline advances only when every file succeeded.
//
// # Thread Safety
//
// Runs on one Engine are serialized.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/codegraph/services/codegraph/extract"
	"github.com/AleutianAI/codegraph/services/codegraph/git"
	"github.com/AleutianAI/codegraph/services/codegraph/graph"
	"github.com/AleutianAI/codegraph/services/codegraph/link"
	"github.com/AleutianAI/codegraph/services/codegraph/manifest"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
)

// metaDependencies holds the dependency manifest of the last full run as
// JSON. Incremental runs link against it; a package.json change forces a
// full run that rewrites it.
const metaDependencies = "dependency_manifest"

// Config configures an Engine.
type Config struct {
	// Root is the project root. Required.
	Root string

	// Store receives the graph. Required.
	Store storage.Store

	// Git is the version-control collaborator. Nil makes every run a full
	// rebuild that never records a baseline.
	Git git.Collaborator

	// Scanner discovers source files. Defaults to manifest.NewScanner().
	Scanner *manifest.Scanner

	// Extractor parses files. Defaults to extract.NewExtractor().
	Extractor *extract.Extractor

	// Resolver is the optional external resolver handed to the linker.
	Resolver link.Resolver

	// ResolverTimeout bounds each resolver call. Zero selects the
	// linker's default.
	ResolverTimeout time.Duration

	// Workers bounds parallel extraction. Defaults to runtime.NumCPU().
	Workers int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// RunOptions adjusts one run.
type RunOptions struct {
	// Force rebuilds every file even when the baseline is diffable.
	Force bool
}

// Engine is the synchronization engine.
type Engine struct {
	root            string
	repoName        string
	store           storage.Store
	git             git.Collaborator
	scanner         *manifest.Scanner
	extractor       *extract.Extractor
	resolver        link.Resolver
	resolverTimeout time.Duration
	workers         int
	logger          *slog.Logger

	mu sync.Mutex
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: empty root", manifest.ErrInvalidRoot)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", manifest.ErrInvalidRoot, err)
	}

	e := &Engine{
		root:            root,
		repoName:        manifest.RepositoryName(root),
		store:           cfg.Store,
		git:             cfg.Git,
		scanner:         cfg.Scanner,
		extractor:       cfg.Extractor,
		resolver:        cfg.Resolver,
		resolverTimeout: cfg.ResolverTimeout,
		workers:         cfg.Workers,
		logger:          cfg.Logger,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.scanner == nil {
		e.scanner = manifest.NewScanner(manifest.WithLogger(e.logger))
	}
	if e.extractor == nil {
		e.extractor = extract.NewExtractor(extract.WithLogger(e.logger))
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	return e, nil
}

// Root returns the absolute project root.
func (e *Engine) Root() string { return e.root }

// RepositoryID returns the id of the Repository node the engine writes.
func (e *Engine) RepositoryID() string { return graph.RepositoryID(e.repoName) }

// Run brings the stored graph up to date with the source tree.
//
// Description:
//
//	Decides the synchronization state, then performs a full rebuild, an
//	incremental update, or nothing. File-level failures are collected in
//	the Summary and keep the baseline where it was, so the next run
//	retries the same range.
//
// Outputs:
//
//	*Summary - Always non-nil once the decision was made, even on error.
//	error - Run-level failures only: storage unavailable, discovery
//	        failure, cancellation, or a failed structure or baseline
//	        transaction.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Engine.Run", trace.WithAttributes(
		attribute.String("ingest.run_id", runID),
		attribute.Bool("ingest.force", opts.Force),
	))
	defer span.End()
	logger := e.logger.With(slog.String("run_id", runID))

	d, err := e.Status(ctx, opts.Force)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s := newSummary(runID, d)
	span.SetAttributes(attribute.String("ingest.state", d.State.String()))

	switch d.State {
	case StateUpToDate:
		logger.Info("graph is up to date", slog.String("revision", d.Head))
	case StateDiffable:
		logger.Info("applying changes",
			slog.String("state", d.State.String()),
			slog.String("revision", d.Head),
			slog.Int("files", len(d.Changes)))
		err = e.incremental(ctx, logger, d, s)
	default:
		if d.State == StateUnreachable {
			logger.Warn("baseline unusable, rebuilding",
				slog.String("revision", d.Baseline),
				slog.String("error", d.Reason))
		} else {
			logger.Info("full rebuild", slog.String("state", d.State.String()), slog.String("reason", d.Reason))
		}
		err = e.full(ctx, logger, s)
	}
	if err == nil && d.State != StateUpToDate {
		err = e.advance(ctx, logger, s)
	}

	s.Duration = time.Since(start)
	recordRun(ctx, s, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("ingestion failed", slog.String("error", err.Error()))
		return s, err
	}

	span.SetAttributes(
		attribute.Int("ingest.files", s.FilesProcessed),
		attribute.Int("ingest.failures", len(s.Failures)),
	)
	logger.Info("ingestion finished",
		slog.String("state", d.State.String()),
		slog.Int("files", s.FilesProcessed),
		slog.Int("deleted_files", s.FilesDeleted),
		slog.Int("relinked_files", s.FilesRelinked),
		slog.Int("failures", len(s.Failures)),
		slog.Int("nodes_created", s.NodesCreated),
		slog.Int("nodes_updated", s.NodesUpdated),
		slog.Int("edges", s.EdgesWritten),
		slog.Int64("duration_ms", s.Duration.Milliseconds()))
	return s, nil
}

// full re-extracts every discovered file and deletes stored files that
// are no longer discovered.
func (e *Engine) full(ctx context.Context, logger *slog.Logger, s *Summary) error {
	ctx, span := tracer.Start(ctx, "Engine.full")
	defer span.End()

	scan, err := e.scanner.Scan(ctx, e.root)
	if err != nil {
		return fmt.Errorf("discover files: %w", err)
	}
	deps, depErrs := manifest.LoadDependencies(e.root, scan.Packages)
	s.ScanErrors = append(append(s.ScanErrors, scan.Errors...), depErrs...)
	s.FilesDiscovered = len(scan.Files)
	span.SetAttributes(attribute.Int("ingest.files", len(scan.Files)))

	extractions, err := e.extractAll(ctx, scan.Files)
	if err != nil {
		return err
	}

	stored, err := e.store.Files(ctx)
	if err != nil {
		return fmt.Errorf("list stored files: %w", err)
	}
	discovered := make(map[string]bool, len(scan.Files))
	for _, p := range scan.Files {
		discovered[p] = true
	}
	var stale []string
	for _, p := range stored {
		if !discovered[p] {
			stale = append(stale, p)
		}
	}

	raw, err := json.Marshal(deps)
	if err != nil {
		return fmt.Errorf("encode dependencies: %w", err)
	}
	if err := e.writeStructure(ctx, extractions, string(raw)); err != nil {
		return err
	}
	if err := e.deleteFiles(ctx, stale, s); err != nil {
		return err
	}

	ix := link.NewIndex()
	refs := make(map[string][]graph.Reference, len(extractions))
	processed, err := e.writeFiles(ctx, extractions, nil, ix, refs, s)
	if err != nil {
		return err
	}

	linker := e.newLinker(logger, deps)
	if _, err := e.linkFiles(ctx, linker, ix, processed, refs, s); err != nil {
		return err
	}
	return e.prune(ctx, ix, s)
}

func (e *Engine) newLinker(logger *slog.Logger, deps map[string]string) *link.Linker {
	return link.New(link.Config{
		Manifest:        link.Manifest(deps),
		Resolver:        e.resolver,
		ResolverTimeout: e.resolverTimeout,
		Logger:          logger,
	})
}

// advance records HEAD and the format version once every file succeeded.
func (e *Engine) advance(ctx context.Context, logger *slog.Logger, s *Summary) error {
	if !s.Success() {
		logger.Warn("baseline not advanced",
			slog.Int("failures", len(s.Failures)),
			slog.String("revision", s.Decision.Baseline))
		return nil
	}
	err := e.withTx(ctx, func(tx storage.Tx) error {
		if err := tx.SetMetadata(storage.MetaFormatVersion, strconv.Itoa(FormatVersion)); err != nil {
			return err
		}
		if s.Decision.Head == "" {
			return nil
		}
		return tx.SetMetadata(storage.MetaLastRevision, s.Decision.Head)
	})
	if err != nil {
		return &storage.TransactionError{Op: "advance", Err: err}
	}
	s.BaselineAdvanced = s.Decision.Head != ""
	return nil
}

// withTx runs fn in one write transaction.
func (e *Engine) withTx(ctx context.Context, fn func(storage.Tx) error) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}
	return nil
}

// writeStructure upserts the Repository node and the Language and
// Directory nodes of the extracted files. A non-empty deps is stored as
// the dependency manifest.
func (e *Engine) writeStructure(ctx context.Context, extractions []extraction, deps string) error {
	st := newStructure(e.repoName)
	for _, x := range extractions {
		if x.result != nil {
			st.addFile(x.result.Path, x.result.Language)
		}
	}
	err := e.withTx(ctx, func(tx storage.Tx) error {
		for _, n := range st.sortedNodes() {
			if err := tx.UpsertNode(n); err != nil {
				return err
			}
		}
		if _, err := tx.PutEdges(st.sortedEdges()); err != nil {
			return err
		}
		if deps != "" {
			return tx.SetMetadata(metaDependencies, deps)
		}
		return nil
	})
	if err != nil {
		return &storage.TransactionError{Op: "structure", Err: err}
	}
	return nil
}

// deleteFiles removes each path in its own transaction.
func (e *Engine) deleteFiles(ctx context.Context, paths []string, s *Summary) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		var removed storage.Removed
		err := e.withTx(ctx, func(tx storage.Tx) error {
			r, err := tx.DeleteFile(p)
			removed = r
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.fail(p, &storage.TransactionError{Path: p, Op: "delete", Err: err})
			continue
		}
		s.FilesDeleted++
		s.Deleted.Add(removed)
	}
	return nil
}

// writeFiles replaces each extracted file in its own transaction and adds
// the committed ones to ix and refs. A file that fails keeps its stored
// state, which is put back into ix and refs instead. renamedFrom maps a
// new path to the old path deleted in the same transaction.
//
// It returns the committed paths in order.
func (e *Engine) writeFiles(ctx context.Context, extractions []extraction, renamedFrom map[string]string, ix *link.Index, refs map[string][]graph.Reference, s *Summary) ([]string, error) {
	repoID := e.RepositoryID()
	var processed []string
	for _, x := range extractions {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if x.err != nil {
			s.fail(x.path, x.err)
			if err := e.restore(ctx, ix, refs, renamedFrom[x.path], x.path); err != nil {
				return processed, err
			}
			continue
		}
		res := x.result
		old := renamedFrom[res.Path]
		existing, err := e.storedIDs(ctx, old, res.Path)
		if err != nil {
			return processed, err
		}

		var created, updated, edges int
		var removed storage.Removed
		err = e.withTx(ctx, func(tx storage.Tx) error {
			created, updated, edges, removed = 0, 0, 0, storage.Removed{}
			for _, p := range []string{old, res.Path} {
				if p == "" {
					continue
				}
				r, err := tx.DeleteFile(p)
				if err != nil {
					return err
				}
				removed.Add(r)
			}
			for _, n := range res.AllNodes() {
				if err := tx.UpsertNode(n); err != nil {
					return err
				}
				if existing[n.ID] {
					updated++
				} else {
					created++
				}
			}
			all := make([]graph.Edge, 0, len(res.Edges)+1)
			all = append(all, fileContains(repoID, res.File))
			all = append(all, res.Edges...)
			n, err := tx.PutEdges(all)
			if err != nil {
				return err
			}
			edges = n
			return tx.PutRefs(res.Path, res.Refs)
		})
		if err != nil {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			s.fail(res.Path, &storage.TransactionError{Path: res.Path, Op: "replace", Err: err})
			if err := e.restore(ctx, ix, refs, old, res.Path); err != nil {
				return processed, err
			}
			continue
		}

		if res.Err != nil {
			s.ParseErrors = append(s.ParseErrors, FileFailure{Path: res.Path, Err: res.Err})
		}
		if old != "" {
			s.FilesDeleted++
		}
		s.FilesProcessed++
		s.NodesCreated += created
		s.NodesUpdated += updated
		s.EdgesWritten += edges
		removed.Nodes -= updated
		s.Deleted.Add(removed)
		ix.AddFile(res.File, res.Nodes)
		refs[res.Path] = res.Refs
		processed = append(processed, res.Path)
	}
	return processed, nil
}

// storedIDs returns the ids of the nodes currently stored for paths.
func (e *Engine) storedIDs(ctx context.Context, paths ...string) (map[string]bool, error) {
	ids := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		nodes, err := e.store.FileNodes(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		for _, n := range nodes {
			ids[n.ID] = true
		}
	}
	return ids, nil
}

// restore puts the stored nodes and references of paths whose replacement
// failed back into ix and refs, so files linking into them keep resolving
// against the prior state.
func (e *Engine) restore(ctx context.Context, ix *link.Index, refs map[string][]graph.Reference, paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		nodes, err := e.store.FileNodes(ctx, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if len(nodes) == 0 {
			continue
		}
		fileRefs, err := e.store.Refs(ctx, p)
		if err != nil {
			return fmt.Errorf("read references of %s: %w", p, err)
		}
		ix.AddFile(nodes[0], nodes[1:])
		refs[p] = fileRefs
	}
	return nil
}

// linkFiles resolves the references of each path against ix and replaces
// the path's link edges in its own transaction. It returns the number of
// files linked.
func (e *Engine) linkFiles(ctx context.Context, linker *link.Linker, ix *link.Index, paths []string, refs map[string][]graph.Reference, s *Summary) (int, error) {
	ctx, span := tracer.Start(ctx, "Engine.linkFiles", trace.WithAttributes(attribute.Int("ingest.files", len(paths))))
	defer span.End()

	repoID := e.RepositoryID()
	linked := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return linked, err
		}
		stats := link.NewStats()
		links := linker.LinkFile(ctx, ix, p, refs[p], stats)
		newLibs := 0
		for _, lib := range links.Libraries {
			_, found, err := e.store.Node(ctx, lib.ID)
			if err != nil {
				return linked, fmt.Errorf("read %s: %w", lib.ID, err)
			}
			if !found {
				newLibs++
			}
		}

		var removed, written int
		err := e.withTx(ctx, func(tx storage.Tx) error {
			n, err := tx.DeleteLinkEdges(p)
			if err != nil {
				return err
			}
			removed = n
			for _, lib := range links.Libraries {
				if err := tx.UpsertNode(lib); err != nil {
					return err
				}
			}
			edges := append(libraryContains(repoID, links.Libraries), links.Edges...)
			written, err = tx.PutEdges(edges)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return linked, ctx.Err()
			}
			s.fail(p, &storage.TransactionError{Path: p, Op: "link", Err: err})
			continue
		}
		linked++
		s.Link.Merge(stats)
		s.EdgesWritten += written
		s.NodesCreated += newLibs
		s.NodesUpdated += len(links.Libraries) - newLibs
		s.Deleted.Edges += removed
	}
	return linked, nil
}

// prune deletes Directory, Language, and Library nodes nothing needs
// anymore.
func (e *Engine) prune(ctx context.Context, ix *link.Index, s *Summary) error {
	stored, err := e.store.Files(ctx)
	if err != nil {
		return fmt.Errorf("list stored files: %w", err)
	}
	dirs := make(map[string]bool)
	langs := make(map[string]bool)
	for _, p := range stored {
		for _, d := range ancestors(p) {
			dirs[d] = true
		}
		file, ok := ix.File(p)
		if !ok {
			n, found, err := e.store.Node(ctx, graph.FileID(p))
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			file, ok = n, found
		}
		if ok {
			langs[file.Attr(graph.AttrLanguage)] = true
		}
	}

	var orphans []string
	candidates, err := e.store.FindNodes(ctx, storage.Query{
		Kinds: []graph.NodeKind{graph.NodeKindDirectory, graph.NodeKindLanguage, graph.NodeKindLibrary},
	})
	if err != nil {
		return fmt.Errorf("list structure nodes: %w", err)
	}
	for _, n := range candidates {
		switch n.Kind {
		case graph.NodeKindDirectory:
			if !dirs[n.Name] {
				orphans = append(orphans, n.ID)
			}
		case graph.NodeKindLanguage:
			if !langs[n.Name] {
				orphans = append(orphans, n.ID)
			}
		case graph.NodeKindLibrary:
			in, err := e.store.Incoming(ctx, n.ID, graph.EdgeKindImports)
			if err != nil {
				return fmt.Errorf("read imports of %s: %w", n.Name, err)
			}
			if len(in) == 0 {
				orphans = append(orphans, n.ID)
			}
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	sort.Strings(orphans)

	var removed storage.Removed
	err = e.withTx(ctx, func(tx storage.Tx) error {
		removed = storage.Removed{}
		for _, id := range orphans {
			r, err := tx.DeleteNode(id)
			if err != nil {
				return err
			}
			removed.Add(r)
		}
		return nil
	})
	if err != nil {
		return &storage.TransactionError{Op: "prune", Err: err}
	}
	s.Deleted.Add(removed)
	e.logger.Debug("pruned structure nodes", slog.Int("nodes", removed.Nodes))
	return nil
}

// exists reports whether p is a regular file under the root.
func (e *Engine) exists(p string) bool {
	info, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(p)))
	return err == nil && info.Mode().IsRegular()
}

// loadDependencies reads the manifest stored by the last full run.
func (e *Engine) loadDependencies(ctx context.Context) (map[string]string, error) {
	raw, ok, err := e.store.Metadata(ctx, metaDependencies)
	if err != nil {
		return nil, fmt.Errorf("read dependencies: %w", err)
	}
	deps := make(map[string]string)
	if !ok || raw == "" {
		return deps, nil
	}
	if err := json.Unmarshal([]byte(raw), &deps); err != nil {
		return nil, fmt.Errorf("decode dependencies: %w", err)
	}
	return deps, nil
}
