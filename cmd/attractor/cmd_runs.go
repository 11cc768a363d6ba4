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
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/attractor/services/attractor/export"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runsJSONOutput bool
	showSummary    bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE:  listRuns,
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print the result set of a stored run",
	Long: `Print the result set of a stored run as JSON, or with --summary one
line per result with its number of entries.

Examples:
  attractor show 3f1c2a9e-...
  attractor show 3f1c2a9e-... --summary`,
	Args: cobra.ExactArgs(1),
	RunE: showRun,
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteRun,
}

func init() {
	runsCmd.Flags().BoolVar(&runsJSONOutput, "json", false,
		"Output as JSON for scripting")
	showCmd.Flags().BoolVar(&showSummary, "summary", false,
		"Print entry counts instead of the full result set")

	rootCmd.AddCommand(runsCmd, showCmd, deleteCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runsJSONOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No stored runs.")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %-20s  %-6s  %8s  %-20s  %s\n", "ID", "MODEL", "DOMAIN", "STATES", "CREATED", "ELAPSED")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-20s  %-6s  %8d  %-20s  %s\n",
			r.ID, r.Model, r.Domain, r.States,
			r.CreatedAt.Local().Format(time.DateTime), r.Elapsed.Round(time.Millisecond))
	}
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	rs, err := st.LoadResultSet(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !showSummary {
		return export.Write(out, rs)
	}
	for _, r := range rs.Results {
		fmt.Fprintf(out, "%-20s  %d\n", r.Formula, len(r.Data))
	}
	return nil
}

func deleteRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteRun(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", args[0])
	return nil
}
