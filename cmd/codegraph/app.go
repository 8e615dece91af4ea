// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codegraph/pkg/logging"
	"github.com/AleutianAI/codegraph/services/codegraph/config"
	"github.com/AleutianAI/codegraph/services/codegraph/extract"
	"github.com/AleutianAI/codegraph/services/codegraph/git"
	"github.com/AleutianAI/codegraph/services/codegraph/ingest"
	"github.com/AleutianAI/codegraph/services/codegraph/lsp"
	"github.com/AleutianAI/codegraph/services/codegraph/manifest"
	"github.com/AleutianAI/codegraph/services/codegraph/query"
	"github.com/AleutianAI/codegraph/services/codegraph/storage"
	"github.com/AleutianAI/codegraph/services/codegraph/storage/badger"
	"github.com/AleutianAI/codegraph/services/codegraph/storage/sqlite"
	"github.com/AleutianAI/codegraph/services/codegraph/telemetry"
)

const shutdownTimeout = 10 * time.Second

// appOptions selects which collaborators a command needs.
type appOptions struct {
	// git opens the version-control collaborator.
	git bool

	// resolver starts the language server when the configuration enables
	// it.
	resolver bool

	// serving keeps the Prometheus exporter. One-shot commands never
	// expose /metrics, so they skip it.
	serving bool
}

// app is the wired runtime of one command invocation.
type app struct {
	cfg      *config.Config
	root     string
	log      *logging.Logger
	logger   *slog.Logger
	store    storage.Store
	git      git.Collaborator
	resolver *lsp.Resolver

	shutdownTelemetry func(context.Context) error
}

// loadConfig layers flags over the file and environment configuration.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("project") {
		cfg.Project = opts.project
	}
	if flags.Changed("db") {
		cfg.Storage.Path = opts.db
	}
	if flags.Changed("backend") {
		cfg.Storage.Backend = opts.backend
	}
	if flags.Changed("git") {
		cfg.Git.Backend = opts.gitBackend
	}
	if flags.Changed("workers") {
		cfg.Ingest.Workers = opts.workers
		if cfg.Ingest.Workers == 0 {
			cfg.Ingest.Workers = runtime.NumCPU()
		}
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = opts.logJSON
	}

	root, err := manifest.FindProjectRoot(cfg.Project)
	if err != nil {
		return nil, err
	}
	cfg.Project = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads configuration and opens everything the command needs.
// The caller must Close the app.
func newApp(cmd *cobra.Command, opts *rootOptions, ao appOptions) (*app, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "codegraph",
		JSON:    cfg.Log.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	a := &app{cfg: cfg, root: cfg.Project, log: log, logger: log.Slog()}
	slog.SetDefault(a.logger)

	if err := a.initTelemetry(ctx, ao.serving); err != nil {
		a.Close()
		return nil, err
	}
	if a.store, err = openStore(ctx, cfg, a.logger); err != nil {
		a.Close()
		return nil, err
	}
	if ao.git {
		if a.git, err = openGit(ctx, cfg, a.logger); err != nil {
			a.Close()
			return nil, err
		}
	}
	if ao.resolver {
		a.startResolver(ctx)
	}
	return a, nil
}

func (a *app) initTelemetry(ctx context.Context, serving bool) error {
	metrics := a.cfg.Telemetry.MetricExporter
	if metrics == "prometheus" && !serving {
		metrics = "none"
	}
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    a.cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    a.cfg.Telemetry.Environment,
		TraceExporter:  a.cfg.Telemetry.TraceExporter,
		MetricExporter: metrics,
		OTLPEndpoint:   a.cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   a.cfg.Telemetry.OTLPInsecure,
		SampleRate:     a.cfg.Telemetry.SampleRate,
		AllowDegraded:  true,
		Logger:         a.logger,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown
	return nil
}

// openStore opens the configured backend at cfg.DatabasePath().
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	path := cfg.DatabasePath()
	switch cfg.Storage.Backend {
	case sqlite.Backend:
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Debug("opened store", slog.String("backend", sqlite.Backend), slog.String("path", path))
		return s, nil
	default:
		bc := badger.DefaultConfig(path)
		bc.Logger = logger
		s, err := badger.Open(bc)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		logger.Debug("opened store", slog.String("backend", badger.Backend), slog.String("path", path))
		return s, nil
	}
}

// removeStore deletes the database files at cfg.DatabasePath().
func removeStore(cfg *config.Config) error {
	path := cfg.DatabasePath()
	if cfg.Storage.Backend == sqlite.Backend {
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", p, err)
			}
		}
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a badger database directory", path)
	}
	if _, err := os.Stat(filepath.Join(path, "MANIFEST")); err != nil {
		return fmt.Errorf("%s does not look like a badger database", path)
	}
	return os.RemoveAll(path)
}

// openGit returns nil without error when the project is not a git work
// tree or git is disabled; ingestion then always rebuilds.
func openGit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (git.Collaborator, error) {
	if cfg.Git.Backend == "none" {
		return nil, nil
	}
	if !manifest.HasGit(cfg.Project) {
		logger.Info("project is not a git work tree, every run rebuilds", slog.String("path", cfg.Project))
		return nil, nil
	}
	switch cfg.Git.Backend {
	case "cli":
		c, err := git.NewCLI(ctx, cfg.Project)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		r, err := git.Open(cfg.Project)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// startResolver starts the language server. A server that cannot start
// is logged and skipped; linking falls back to its heuristics.
func (a *app) startResolver(ctx context.Context) {
	rc := a.cfg.Resolver
	if !rc.Enabled {
		return
	}
	client, err := lsp.Start(ctx, lsp.ServerConfig{
		Command: rc.Command,
		Args:    rc.Args,
		Root:    a.root,
		Logger:  a.logger,
	})
	if err != nil {
		a.logger.Warn("resolver unavailable, continuing without it",
			slog.String("command", rc.Command), slog.String("error", err.Error()))
		return
	}
	a.resolver = lsp.NewResolver(client, lsp.ResolverConfig{
		RequestsPerSecond: rc.RequestsPerSecond,
		Burst:             rc.Burst,
		Logger:            a.logger,
	})
}

// engine builds the synchronization engine from the configuration.
func (a *app) engine() (*ingest.Engine, error) {
	ic := a.cfg.Ingest
	ec := ingest.Config{
		Root:  a.root,
		Store: a.store,
		Git:   a.git,
		Scanner: manifest.NewScanner(
			manifest.WithIncludes(ic.Include...),
			manifest.WithExcludes(ic.Exclude...),
			manifest.WithGitignore(ic.RespectGitignore),
			manifest.WithLogger(a.logger),
		),
		Extractor: extract.NewExtractor(
			extract.WithMaxFileSize(ic.MaxFileSize),
			extract.WithTolerateSyntaxErrors(ic.TolerateSyntaxErrors),
			extract.WithLogger(a.logger),
		),
		ResolverTimeout: a.cfg.Resolver.Timeout,
		Workers:         ic.Workers,
		Logger:          a.logger,
	}
	if a.resolver != nil {
		ec.Resolver = a.resolver
	}
	return ingest.New(ec)
}

func (a *app) query() *query.Service {
	return query.New(a.store, a.store.Backend())
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.resolver != nil {
		if err := a.resolver.Close(ctx); err != nil {
			a.logger.Warn("resolver shutdown failed", slog.String("error", err.Error()))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", slog.String("error", err.Error()))
		}
	}
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
	_ = a.log.Close()
}
