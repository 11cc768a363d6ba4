// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine decomposes a parametrised transition system into its
// terminal strongly connected components.
//
// # Algorithm
//
// Each unit of work takes a universe (a StateMap) and:
//
//  1. picks one pivot state per parameter valuation,
//  2. computes the forward closure F of the pivots and the part B of F
//     that can reach back to them,
//  3. records F as a terminal component for every valuation where F has
//     no state outside B,
//  4. recurses into F∖B where that is not the case,
//  5. recurses into the part of the universe that cannot reach F.
//
// Units run on a scheduler.Scheduler and may spawn further units. The
// shared accumulators merge by union, so the result does not depend on
// the order in which units run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/scheduler"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

// =============================================================================
// Configuration
// =============================================================================

// Config controls an Algorithm.
type Config struct {
	// Parallelism is the number of worker goroutines.
	Parallelism int

	// Pivot selects the built-in pivot chooser.
	Pivot PivotPolicy

	// HookBuffer is the capacity of the channel feeding the component
	// hook.
	HookBuffer int

	// SplitThreshold enables parameter splitting: when fewer units are
	// pending than Parallelism and a universe's parameter cardinality
	// exceeds this value, the universe is split instead of processed.
	// Zero disables splitting. Requires a solver implementing both
	// params.Splitter and params.Measurer.
	SplitThreshold float64

	// Logger receives run and unit logs. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns one worker per CPU and the heuristic pivot.
func DefaultConfig() Config {
	return Config{
		Parallelism: runtime.NumCPU(),
		Pivot:       PivotHeuristic,
		HookBuffer:  64,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism %d", ErrInvalidConfig, c.Parallelism)
	}
	if c.Pivot != PivotNaive && c.Pivot != PivotHeuristic {
		return fmt.Errorf("%w: pivot policy %q", ErrInvalidConfig, c.Pivot)
	}
	if c.HookBuffer < 0 {
		return fmt.Errorf("%w: hook buffer %d", ErrInvalidConfig, c.HookBuffer)
	}
	if c.SplitThreshold < 0 {
		return fmt.Errorf("%w: split threshold %v", ErrInvalidConfig, c.SplitThreshold)
	}
	return nil
}

// RunOption customises one Decompose call.
type RunOption[P any] func(*runOptions[P])

type runOptions[P any] struct {
	universe *params.StateMap[P]
	hook     ComponentHook[P]
	chooser  PivotChooser[P]
}

// WithInitialUniverse restricts the decomposition to universe instead of
// every state under TT.
func WithInitialUniverse[P any](universe *params.StateMap[P]) RunOption[P] {
	return func(o *runOptions[P]) { o.universe = universe }
}

// WithComponentHook delivers every discovered terminal component to hook.
func WithComponentHook[P any](hook ComponentHook[P]) RunOption[P] {
	return func(o *runOptions[P]) { o.hook = hook }
}

// WithPivotChooser replaces the configured pivot policy.
func WithPivotChooser[P any](chooser PivotChooser[P]) RunOption[P] {
	return func(o *runOptions[P]) { o.chooser = chooser }
}

// =============================================================================
// Results
// =============================================================================

// Stats summarises one run.
type Stats struct {
	Units      int64
	Splits     int64
	Components int64
	Levels     int
	Elapsed    time.Duration
}

// Result is the outcome of Decompose.
type Result[P any] struct {
	// Levels holds the stored components restricted to each Count level.
	Levels []*params.StateMap[P]

	// Components maps each state to the valuations for which it belongs
	// to some terminal component.
	Components *params.StateMap[P]

	// Sinks maps each state to the valuations for which it has no
	// outgoing edge other than a self loop.
	Sinks *params.StateMap[P]

	Stats Stats
}

// =============================================================================
// Algorithm
// =============================================================================

// Algorithm decomposes one transition system. It holds no per-run state,
// so Decompose may be called repeatedly or concurrently.
type Algorithm[P any] struct {
	system system.TransitionSystem[P]
	solver params.Solver[P]
	config Config
	logger *slog.Logger

	chooser PivotChooser[P]
}

// New validates cfg and prepares an Algorithm.
func New[P any](ts system.TransitionSystem[P], solver params.Solver[P], cfg Config) (*Algorithm[P], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ts == nil || solver == nil {
		return nil, fmt.Errorf("%w: system and solver are required", ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Algorithm[P]{
		system:  ts,
		solver:  solver,
		config:  cfg,
		logger:  logger.With(slog.String("component", "engine")),
		chooser: newChooser(cfg.Pivot, ts, solver),
	}, nil
}

// Decompose finds every terminal component of the system.
//
// Description:
//
//	The initial universe is every state under TT unless overridden. Work
//	is spread over Config.Parallelism workers. A failing or panicking
//	unit aborts the run: Decompose then returns an error wrapping
//	ErrUnitFailed and the cause, and every worker has exited.
//
// Inputs:
//
//	ctx - Cancels the run.
//	opts - Per-run options.
//
// Outputs:
//
//	*Result[P] - Components, per-level mapping, sinks and statistics.
//	error - Non-nil if the run failed or was cancelled.
func (a *Algorithm[P]) Decompose(ctx context.Context, opts ...RunOption[P]) (*Result[P], error) {
	var o runOptions[P]
	for _, opt := range opts {
		opt(&o)
	}
	n := a.system.StateCount()
	universe := o.universe
	if universe == nil {
		universe = params.FullStateMap(a.solver, n)
	} else if universe.StateCount() != n {
		return nil, fmt.Errorf("%w: universe over %d states, system has %d", ErrUniverseMismatch, universe.StateCount(), n)
	}
	chooser := o.chooser
	if chooser == nil {
		chooser = a.chooser
	}

	ctx, span := startDecomposeSpan(ctx, n, a.config.Parallelism)
	start := time.Now()

	r := &run[P]{
		alg:     a,
		solver:  a.solver,
		system:  a.system,
		chooser: chooser,
		store:   NewComponentStorage(a.solver, n),
		count:   NewCount(universe.AllParams()),
		sinks:   newLockedMap(a.solver, n),
		logger:  a.logger,
	}
	if a.config.SplitThreshold > 0 {
		sp, okSplit := a.solver.(params.Splitter[P])
		ms, okMeasure := a.solver.(params.Measurer[P])
		if okSplit && okMeasure {
			r.splitter, r.measurer = sp, ms
		} else {
			a.logger.Warn("split threshold ignored, solver cannot split or measure")
		}
	}

	err := r.execute(ctx, universe, o.hook)
	stats := r.stats(time.Since(start))
	recordDecomposeMetrics(ctx, stats.Elapsed, err == nil)
	finishDecomposeSpan(span, stats, err)
	if err != nil {
		a.logger.Error("decomposition failed", slog.String("error", err.Error()))
		return nil, err
	}

	levels := r.store.Mapping(r.count)
	components := params.NewStateMap(a.solver, n)
	for _, level := range levels {
		for s, p := range level.All() {
			components.SetOrUnion(s, p)
		}
	}
	stats.Levels = len(levels)
	a.logger.Info("decomposition finished",
		slog.Int("states", n),
		slog.Int64("units", stats.Units),
		slog.Int64("components", stats.Components),
		slog.Int("levels", stats.Levels),
		slog.Duration("elapsed", stats.Elapsed))

	return &Result[P]{
		Levels:     levels,
		Components: components,
		Sinks:      r.sinks.snapshot(),
		Stats:      stats,
	}, nil
}

// =============================================================================
// One run
// =============================================================================

type run[P any] struct {
	alg     *Algorithm[P]
	solver  params.Solver[P]
	system  system.TransitionSystem[P]
	chooser PivotChooser[P]
	logger  *slog.Logger

	sched *scheduler.Scheduler
	relay *hookRelay[P]

	store *ComponentStorage[P]
	count *Count[P]
	sinks *lockedMap[P]

	splitter params.Splitter[P]
	measurer params.Measurer[P]

	units      atomic.Int64
	splits     atomic.Int64
	components atomic.Int64
}

// execute owns the scheduler and hook relay for the run. Both are shut
// down on every path, workers first so no unit can still be sending to
// the hook.
func (r *run[P]) execute(ctx context.Context, universe *params.StateMap[P], hook ComponentHook[P]) (err error) {
	sched, err := scheduler.New(ctx, scheduler.Config{
		Workers: r.alg.config.Parallelism,
		Name:    "engine",
		Logger:  r.logger,
	})
	if err != nil {
		return err
	}
	r.sched = sched
	if hook != nil {
		r.relay = startHookRelay(hook, r.alg.config.HookBuffer, r.logger)
	}

	defer func() {
		closeErr := sched.Close()
		var hookErr error
		if r.relay != nil {
			hookErr = r.relay.close()
		}
		if err == nil && closeErr != nil {
			err = fmt.Errorf("%w: %w", ErrUnitFailed, closeErr)
		}
		if err == nil && hookErr != nil {
			err = hookErr
		}
	}()

	if universe.Len() == 0 {
		return nil
	}
	r.submit(universe)
	if err := sched.Drain(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
		}
		return fmt.Errorf("%w: %w", ErrUnitFailed, err)
	}
	return nil
}

func (r *run[P]) submit(universe *params.StateMap[P]) {
	r.sched.Submit(func(ctx context.Context) error {
		return r.step(ctx, universe)
	})
}

// step is one unit of work over universe.
func (r *run[P]) step(ctx context.Context, universe *params.StateMap[P]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.trySplit(ctx, universe) {
		return nil
	}
	r.units.Add(1)
	recordUnit(ctx, "step")
	s := r.solver

	if universe.Len() == 1 {
		for state, p := range universe.All() {
			r.store.Push(universe, p)
			r.sinks.union(state, p)
			return r.emit(ctx, universe, p)
		}
	}

	pivots := r.chooser.Choose(universe)
	forward := Reach(r.system, universe, pivots, true)
	backward := Reach(r.system, forward, pivots, false)
	forwardNotBackward := Complement(forward, backward)

	reachableParams := forwardNotBackward.AllParams()
	componentParams := s.And(pivots.AllParams(), s.Not(reachableParams))
	if s.IsSat(componentParams) {
		terminal := forward.Restrict(componentParams)
		r.detectSinks(terminal, universe)
		r.store.Push(forward, componentParams)
		if err := r.emit(ctx, forward, componentParams); err != nil {
			return err
		}
	}
	if s.IsSat(reachableParams) {
		r.submit(forwardNotBackward)
	}

	backwardFromForward := Reach(r.system, universe, forward, false)
	cantReach := Complement(universe, backwardFromForward)
	unreachableParams := cantReach.AllParams()
	if s.IsSat(unreachableParams) {
		r.count.Push(unreachableParams)
		r.submit(cantReach)
	}

	r.logger.Debug("unit done",
		slog.Int("universe", universe.Len()),
		slog.Int("forward", forward.Len()),
		slog.Int("backward", backward.Len()))
	return nil
}

// trySplit cuts a large universe into parameter orthants while the pool
// is underused. It reports whether it took over the unit.
func (r *run[P]) trySplit(ctx context.Context, universe *params.StateMap[P]) bool {
	if r.splitter == nil || r.sched.Pending() > r.alg.config.Parallelism {
		return false
	}
	all := universe.AllParams()
	if r.measurer.Cardinality(all) <= r.alg.config.SplitThreshold {
		return false
	}
	masks := r.splitter.Split(all)
	if len(masks) < 2 {
		return false
	}
	r.splits.Add(1)
	recordUnit(ctx, "split")
	for _, mask := range masks {
		part := universe.Restrict(mask)
		if part.Len() > 0 {
			r.submit(part)
		}
	}
	return true
}

// detectSinks records the states of terminal that have no edge, other
// than a self loop, inside universe.
func (r *run[P]) detectSinks(terminal, universe *params.StateMap[P]) {
	s := r.solver
	for state, p := range terminal.All() {
		sink := p
		for _, t := range r.system.Edges(state, true) {
			if t.Target == state || !universe.Contains(t.Target) {
				continue
			}
			enabled := s.And(t.Bound, universe.Get(t.Target))
			if !s.IsSat(enabled) {
				continue
			}
			sink = s.And(sink, s.Not(enabled))
			if !s.IsSat(sink) {
				break
			}
		}
		if s.IsSat(sink) {
			r.sinks.union(state, sink)
		}
	}
}

// emit counts a discovered component and hands it to the hook.
func (r *run[P]) emit(ctx context.Context, component *params.StateMap[P], mask P) error {
	r.components.Add(1)
	recordComponent(ctx)
	if r.relay == nil {
		return nil
	}
	msg := make(map[int]P, component.Len())
	for state, p := range component.All() {
		if q := r.solver.And(p, mask); r.solver.IsSat(q) {
			msg[state] = q
		}
	}
	if len(msg) == 0 {
		return nil
	}
	return r.relay.send(ctx, msg)
}

func (r *run[P]) stats(elapsed time.Duration) Stats {
	return Stats{
		Units:      r.units.Load(),
		Splits:     r.splits.Load(),
		Components: r.components.Load(),
		Levels:     r.count.Len(),
		Elapsed:    elapsed,
	}
}
