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
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/attractor/pkg/telemetry"
	"github.com/AleutianAI/attractor/pkg/ux"
	"github.com/AleutianAI/attractor/services/attractor/analysis"
	"github.com/AleutianAI/attractor/services/attractor/engine"
	"github.com/AleutianAI/attractor/services/attractor/export"
	"github.com/AleutianAI/attractor/services/attractor/model"
	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/store"
)

// redModelName selects the built-in RED model instead of a file.
const redModelName = "red"

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runParallelism int
	runPivot       string
	runSplit       float64
	runSmall       int
	runREDStates   int
	runOutput      string
	runNoSave      bool
	runTimeout     time.Duration
	runMetricsAddr string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var runCmd = &cobra.Command{
	Use:   "run MODEL",
	Short: "Decompose a model into terminal components",
	Long: `Decompose MODEL, a YAML model file or "red" for the built-in RED
queue model, and classify the components found.

The result set is written as JSON to --output (stdout by default) and
saved in the run store unless --no-save is given.

Examples:
  attractor run switch.yaml
  attractor run red --red-states 100 --pivot naive
  attractor run big.yaml --parallelism 16 --split 0.25 --output big.json`,
	Args: cobra.ExactArgs(1),
	RunE: runDecompose,
}

func init() {
	runCmd.Flags().IntVar(&runParallelism, "parallelism", 0,
		"Worker goroutines (overrides config)")
	runCmd.Flags().StringVar(&runPivot, "pivot", "",
		"Pivot policy: naive, heuristic (overrides config)")
	runCmd.Flags().Float64Var(&runSplit, "split", 0,
		"Parameter split threshold, 0 disables (overrides config)")
	runCmd.Flags().IntVar(&runSmall, "small", 0,
		"Largest component reported as stable (overrides config)")
	runCmd.Flags().IntVar(&runREDStates, "red-states", 0,
		"Number of queue intervals of the RED model (overrides config)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "",
		"Write the result set to this file instead of stdout")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false,
		"Do not save the run in the store")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0,
		"Abort the decomposition after this long, 0 waits forever")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address during the run (overrides config)")

	rootCmd.AddCommand(runCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runDecompose(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("parallelism") {
		cfg.Engine.Parallelism = runParallelism
	}
	if flags.Changed("pivot") {
		cfg.Engine.Pivot = runPivot
	}
	if flags.Changed("split") {
		cfg.Engine.SplitThreshold = runSplit
	}
	if flags.Changed("small") {
		cfg.Analysis.SmallThreshold = runSmall
	}
	if flags.Changed("red-states") {
		cfg.RED.States = runREDStates
	}
	if flags.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = runMetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		srv, err := telemetry.StartMetricsServer(addr)
		if err != nil {
			return err
		}
		logger.Info("serving metrics", "addr", srv.Addr())
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Warn("metrics server shutdown", "error", err)
			}
		}()
	}

	ctx := cmd.Context()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	if args[0] == redModelName {
		m, err := model.NewRED(cfg.RED)
		if err != nil {
			return err
		}
		return execute(ctx, cmd, m, export.RectEncoder{})
	}

	f, err := model.Load(args[0])
	if err != nil {
		return err
	}
	switch f.Domain {
	case model.DomainGrid:
		m, grid, err := f.BuildGrid()
		if err != nil {
			return err
		}
		return execute(ctx, cmd, m, export.GridEncoder{Grid: grid})
	default:
		m, err := f.BuildRect()
		if err != nil {
			return err
		}
		return execute[params.RectSet](ctx, cmd, m, export.RectEncoder{})
	}
}

// execute decomposes m, classifies the components and writes and stores
// the result set.
func execute[P any](ctx context.Context, cmd *cobra.Command, m *model.Model[P], enc export.Encoder[P]) error {
	log := logger.With("model", m.Name)
	alg, err := engine.New(m.System, m.Solver, cfg.EngineConfig(log.Slog()))
	if err != nil {
		return err
	}

	hook := func(component map[int]P) {
		log.Debug("terminal component", "states", len(component))
	}
	res, err := alg.Decompose(ctx, engine.WithComponentHook[P](hook))
	if err != nil {
		return fmt.Errorf("decompose %s: %w", m.Name, err)
	}
	groups := analysis.Classify(m.System, res.Components, cfg.Analysis.SmallThreshold)

	rs, err := export.Build(m, enc, res, &groups)
	if err != nil {
		return err
	}
	if err := writeResultSet(cmd.OutOrStdout(), rs); err != nil {
		return err
	}

	p := ux.NewPrinter(cmd.ErrOrStderr())
	p.Title(m.Name)
	p.Field("states", m.System.StateCount())
	p.Field("components", res.Stats.Components)
	p.Field("oscillation", groups.Oscillation.Len())
	p.Field("units", res.Stats.Units)
	p.Field("elapsed", res.Stats.Elapsed.Round(time.Millisecond))
	if runNoSave {
		return nil
	}

	id, err := saveRun(ctx, m, res, rs)
	if err != nil {
		return err
	}
	p.Success("saved run " + id)
	return nil
}

func writeResultSet(stdout io.Writer, rs *export.ResultSet) error {
	if runOutput == "" {
		return export.Write(stdout, rs)
	}
	f, err := os.Create(runOutput)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := export.Write(f, rs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func saveRun[P any](ctx context.Context, m *model.Model[P], res *engine.Result[P], rs *export.ResultSet) (string, error) {
	st, err := openStore()
	if err != nil {
		return "", err
	}
	defer st.Close()

	id, err := st.SaveRun(ctx, store.Run{
		Model:   m.Name,
		Domain:  string(m.Domain),
		States:  m.System.StateCount(),
		Elapsed: res.Stats.Elapsed,
		Labels: map[string]string{
			"pivot":       cfg.Engine.Pivot,
			"parallelism": strconv.Itoa(cfg.Engine.Parallelism),
		},
	}, rs)
	if err != nil {
		return "", err
	}
	if err := store.SaveMap(ctx, st, id, "components", res.Components); err != nil {
		return "", err
	}
	if err := store.SaveMap(ctx, st, id, "sinks", res.Sinks); err != nil {
		return "", err
	}
	return id, nil
}
