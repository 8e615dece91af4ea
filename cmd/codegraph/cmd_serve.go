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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codegraph/services/codegraph/api"
	"github.com/AleutianAI/codegraph/services/codegraph/git"
	"github.com/AleutianAI/codegraph/services/codegraph/ingest"
	"github.com/AleutianAI/codegraph/services/codegraph/mcp"
	"github.com/AleutianAI/codegraph/services/codegraph/telemetry"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Ingest now and again whenever HEAD moves",
		Long: `Run an ingest, then watch the git directory and re-run an incremental
ingest after every commit, checkout, merge, or pull. Stops on SIGINT or
SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cmd, opts, appOptions{git: true, resolver: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.git == nil {
				return fmt.Errorf("%w: watch needs a git work tree", git.ErrNotRepository)
			}
			gitDir, err := git.GitDir(a.root)
			if err != nil {
				return err
			}
			engine, err := a.engine()
			if err != nil {
				return err
			}
			return watch(ctx, engine, gitDir, a.logger)
		},
	}
}

// watch runs engine once, then after every HEAD move until ctx is done.
// Moves during a run coalesce into one follow-up run.
func watch(ctx context.Context, engine *ingest.Engine, gitDir string, logger *slog.Logger) error {
	trigger := make(chan struct{}, 1)
	notify := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	w, err := git.NewHeadWatcher(gitDir, notify, logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("head watcher stopped", slog.String("error", err.Error()))
		}
	}()

	notify()
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case <-trigger:
			summary, err := engine.Run(ctx, ingest.RunOptions{})
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case err != nil:
				logger.Error("ingest failed", slog.String("error", err.Error()))
			default:
				logger.Info("ingest finished",
					slog.String("run_id", summary.RunID),
					slog.String("state", summary.Decision.State.String()),
					slog.String("revision", summary.Decision.Head),
					slog.Int("files", summary.FilesProcessed),
					slog.Int("failures", len(summary.Failures)),
					slog.Int64("duration_ms", summary.Duration.Milliseconds()))
			}
		}
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP read API and /metrics",
		Long: `Serve the graph over HTTP.

Endpoints:
  GET  /v1/codegraph/symbols?pattern=&kind=&file=&limit=
  GET  /v1/codegraph/nodes/:id
  GET  /v1/codegraph/callers?target=
  GET  /v1/codegraph/callees?target=
  GET  /v1/codegraph/stats
  GET  /v1/codegraph/status
  POST /v1/codegraph/ingest
  GET  /v1/codegraph/health
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cmd, opts, appOptions{git: true, resolver: true, serving: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if cmd.Flags().Changed("addr") {
				a.cfg.API.Addr = addr
			}

			engine, err := a.engine()
			if err != nil {
				return err
			}
			handlers := api.NewHandlers(a.query(), engine, a.logger)
			router := api.NewRouter(handlers, api.RouterOptions{
				ServiceName: a.cfg.Telemetry.ServiceName,
				Metrics:     telemetry.MetricsHandler(),
				Debug:       debug,
				Logger:      a.logger,
			})

			a.logger.Info("starting codegraph server",
				slog.String("address", a.cfg.API.Addr),
				slog.String("project", a.root),
				slog.String("backend", a.store.Backend()))
			return api.Serve(ctx, a.cfg.API.Addr, router, a.cfg.API.ReadTimeout, a.cfg.API.WriteTimeout, shutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8088)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable gin debug mode")
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools on stdio",
		Long: `Serve the graph as Model Context Protocol tools over stdin/stdout.

Tools: find_symbols, get_node, find_callers, find_callees, graph_stats,
and unless --read-only, ingest_status and ingest.

Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cmd, opts, appOptions{git: !readOnly, resolver: !readOnly})
			if err != nil {
				return err
			}
			defer a.Close()

			var ingester mcp.Ingester
			if !readOnly {
				engine, err := a.engine()
				if err != nil {
					return err
				}
				ingester = engine
			}
			srv := mcp.NewServer(a.query(), ingester, a.logger)
			err = srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Expose only the query tools")
	return cmd
}
