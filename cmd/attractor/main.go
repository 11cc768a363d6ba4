// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command attractor decomposes parametrised transition systems into
// their terminal strongly connected components and keeps the results in
// a local run store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/attractor/pkg/logging"
	"github.com/AleutianAI/attractor/pkg/telemetry"
	"github.com/AleutianAI/attractor/services/attractor/config"
	"github.com/AleutianAI/attractor/services/attractor/store"
)

// =============================================================================
// GLOBAL STATE
// =============================================================================

var (
	// Persistent flags
	configPath string
	logLevel   string
	storePath  string

	// Populated by the root pre-run hook.
	cfg               config.Config
	logger            *logging.Logger
	shutdownTelemetry func(context.Context) error
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "attractor",
	Short: "Terminal component decomposition of parametrised systems",
	Long: `Find the attractors (terminal strongly connected components) of a
transition system whose edges are guarded by parameter sets.

Models are YAML files with a grid or rect parameter domain, or the
built-in RED queue model.

Examples:
  attractor run model.yaml
  attractor run red --parallelism 8 --output red.json
  attractor runs
  attractor show 3f1c...`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "",
		"Run store directory (overrides config)")
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		loaded.Log.Level = logLevel
	}
	if cmd.Flags().Changed("store") {
		loaded.Store.Path = storePath
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	lc, err := loaded.LoggingConfig("attractor")
	if err != nil {
		return err
	}
	lc.Output = cmd.ErrOrStderr()
	tc := loaded.TelemetryConfig()
	tc.Output = cmd.ErrOrStderr()
	shutdown, err := telemetry.Init(cmd.Context(), tc)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	cfg = loaded
	logger = logging.New(lc)
	shutdownTelemetry = shutdown
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	var errs []error
	if shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, shutdownTelemetry(ctx))
		cancel()
		shutdownTelemetry = nil
	}
	if logger != nil {
		errs = append(errs, logger.Close())
	}
	return errors.Join(errs...)
}

// openStore opens the configured run store.
func openStore() (*store.Store, error) {
	return store.Open(cfg.StoreConfig(logger.Slog().With("component", "store")))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
