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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codegraph/services/codegraph/query"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newFindCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Search the graph",
		Long: `Commands for finding symbols and walking call edges.

Subcommands:
  symbol   - Find nodes by name pattern
  callers  - Find the functions and requests that call a symbol
  callees  - Find what a symbol calls

Examples:
  codegraph find symbol 'create*' --kind Function
  codegraph find callers saveUser
  codegraph find callees sym:4f1c...`,
	}
	cmd.AddCommand(
		newFindSymbolCmd(opts),
		newNeighborsCmd(opts, "callers", "Find the functions and requests that call a symbol", (*query.Service).Callers),
		newNeighborsCmd(opts, "callees", "Find the symbols and endpoints a symbol calls", (*query.Service).Callees),
	)
	return cmd
}

func newFindSymbolCmd(opts *rootOptions) *cobra.Command {
	var (
		kinds []string
		file  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "symbol PATTERN",
		Short: "Find nodes by case-insensitive name pattern",
		Long: `Find nodes whose name matches PATTERN, ignoring case.
* and % match any run of characters. An empty pattern matches everything.

Examples:
  codegraph find symbol UserService
  codegraph find symbol 'handle*' --kind Function,Endpoint
  codegraph find symbol '' --file src/api/users.ts`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.query().FindSymbols(cmd.Context(), query.SymbolParams{
				Pattern: pattern,
				Kinds:   kinds,
				File:    file,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			return printSymbols(cmd.OutOrStdout(), res, opts.jsonOutput)
		},
	}
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Node kinds, e.g. Function,Class")
	cmd.Flags().StringVar(&file, "file", "", "Only nodes owned by this repository-relative file")
	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultLimit, "Maximum results")
	return cmd
}

type neighborsFunc func(s *query.Service, ctx context.Context, target string, limit int) (*query.Neighbors, error)

func newNeighborsCmd(opts *rootOptions, name, short string, walk neighborsFunc) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   name + " SYMBOL",
		Short: short,
		Long: short + `.

SYMBOL is a node id, or a name matching every Function, Class, or
Endpoint with that name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := walk(a.query(), cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printNeighbors(cmd.OutOrStdout(), res, opts.jsonOutput)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultLimit, "Maximum results")
	return cmd
}

func newNodeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "node ID",
		Short: "Show one node with its edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.query().Node(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printNode(cmd.OutOrStdout(), res, opts.jsonOutput)
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show node and edge counts by kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.query().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), res, opts.jsonOutput)
		},
	}
}
