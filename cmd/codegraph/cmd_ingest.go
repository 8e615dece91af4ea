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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codegraph/services/codegraph/ingest"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var force, clean bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Bring the graph up to date with HEAD",
		Long: `Ingest the project into the graph.

The stored baseline revision decides the work:
  no baseline    - every file is parsed and linked
  up to date     - nothing to do
  diffable       - only files changed since the baseline are re-ingested
  unreachable    - the baseline is gone (rebased, different format), full rebuild

Examples:
  codegraph ingest
  codegraph ingest --project ./shop --workers 8
  codegraph ingest --force
  codegraph ingest --clean --backend sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if clean {
				cfg, err := loadConfig(cmd, opts)
				if err != nil {
					return err
				}
				if err := removeStore(cfg); err != nil {
					return fmt.Errorf("clean: %w", err)
				}
			}

			a, err := newApp(cmd, opts, appOptions{git: true, resolver: true})
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := a.engine()
			if err != nil {
				return err
			}
			summary, err := engine.Run(cmd.Context(), ingest.RunOptions{Force: force || clean})
			if err != nil {
				return err
			}
			if err := printSummary(cmd.OutOrStdout(), summary, opts.jsonOutput); err != nil {
				return err
			}
			if !summary.Success() {
				return fmt.Errorf("%d of %d files failed", len(summary.Failures), summary.FilesDiscovered)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Rebuild every file even when the baseline is diffable")
	cmd.Flags().BoolVar(&clean, "clean", false, "Delete the database before a full rebuild")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the next ingest would do, without writing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts, appOptions{git: true})
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := a.engine()
			if err != nil {
				return err
			}
			decision, err := engine.Status(cmd.Context(), force)
			if err != nil {
				return err
			}
			return printDecision(cmd.OutOrStdout(), decision, opts.jsonOutput)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Report as if --force were passed to ingest")
	return cmd
}
