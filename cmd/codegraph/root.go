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
	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	project    string
	db         string
	backend    string
	gitBackend string
	workers    int
	logLevel   string
	logJSON    bool
	jsonOutput bool
}

// =============================================================================
// COMMAND TREE
// =============================================================================

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "codegraph",
		Short: "Build and query a code graph of a TypeScript/JavaScript repository",
		Long: `codegraph extracts functions, classes, data models, routes, and HTTP
requests from source files, links them into a graph of imports, calls,
and requests, and keeps the graph in sync with git HEAD.

Examples:
  codegraph ingest --project ./shop
  codegraph find callers saveUser
  codegraph serve`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&opts.project, "project", "p", "", "Project directory (default: nearest git work tree of the current directory)")
	flags.StringVar(&opts.db, "db", "", "Database path (default: <project>/.codegraph/graph)")
	flags.StringVar(&opts.backend, "backend", "", "Storage backend: badger or sqlite")
	flags.StringVar(&opts.gitBackend, "git", "", "Git backend: gogit, cli, or none")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Parallel extraction workers (default: number of CPUs)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		newIngestCmd(opts),
		newStatusCmd(opts),
		newFindCmd(opts),
		newNodeCmd(opts),
		newStatsCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
	)
	return root
}
