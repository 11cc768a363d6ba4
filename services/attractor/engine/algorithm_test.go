// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/scheduler"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

func testConfig(parallelism int, pivot PivotPolicy) Config {
	cfg := DefaultConfig()
	cfg.Parallelism = parallelism
	cfg.Pivot = pivot
	return cfg
}

func decompose[P any](t *testing.T, ts system.TransitionSystem[P], s params.Solver[P], cfg Config, opts ...RunOption[P]) *Result[P] {
	t.Helper()
	alg, err := New(ts, s, cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := alg.Decompose(ctx, opts...)
	require.NoError(t, err)
	return res
}

// =============================================================================
// Scenarios
// =============================================================================

func TestDecompose_CycleIsOneComponent(t *testing.T) {
	s, ts := plainSystem(t, 4, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}})
	rec := &hookRecorder[bits]{}

	res := decompose(t, ts, s, testConfig(2, PivotHeuristic), WithComponentHook[bits](rec.hook))

	assert.Equal(t, []int{0, 1, 2, 3}, res.Components.States())
	assert.Equal(t, [][]int{{0, 1, 2, 3}}, rec.stateSets())
	assert.Equal(t, 0, res.Sinks.Len())
	assert.Equal(t, int64(1), res.Stats.Components)
}

func TestDecompose_SinksAndCycleArePartitioned(t *testing.T) {
	s, ts := plainSystem(t, 4, [][2]int{{2, 3}, {3, 2}})
	rec := &hookRecorder[bits]{}

	res := decompose(t, ts, s, testConfig(3, PivotNaive), WithComponentHook[bits](rec.hook))

	assert.Equal(t, [][]int{{0}, {1}, {2, 3}}, rec.stateSets())
	assert.Equal(t, []int{0, 1, 2, 3}, res.Components.States())
	assert.Equal(t, []int{0, 1}, res.Sinks.States())
}

func TestDecompose_ParameterSelectsComponent(t *testing.T) {
	s, err := params.NewRectSolver(params.Real, params.MustRect(0, 1))
	require.NoError(t, err)
	low, high := s.Box(0, 0.5), s.Box(0.5, 1)
	b := system.NewBuilder[params.RectSet](s, 2)
	require.NoError(t, b.AddEdge(0, 1, low))
	require.NoError(t, b.AddEdge(1, 0, high))
	ts, err := b.Build()
	require.NoError(t, err)

	for _, parallelism := range []int{1, 4} {
		res := decompose(t, ts, s, testConfig(parallelism, PivotHeuristic))

		assert.True(t, s.Equal(res.Components.Get(1), low), "state 1 is terminal for p < 0.5")
		assert.True(t, s.Equal(res.Components.Get(0), high), "state 0 is terminal for p >= 0.5")

		for p := 0.05; p < 1; p += 0.1 {
			point := s.Box(p-0.01, p+0.01)
			var members []int
			for state, q := range res.Components.All() {
				if !s.AndNot(point, q) {
					members = append(members, state)
				}
			}
			want := []int{0}
			if p < 0.5 {
				want = []int{1}
			}
			assert.Equal(t, want, members, "p=%.2f", p)
		}
		assert.True(t, s.Equal(res.Sinks.Get(1), low))
		assert.True(t, s.Equal(res.Sinks.Get(0), high))
	}
}

// =============================================================================
// Properties
// =============================================================================

func TestDecompose_MatchesTarjanOnPlainGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 25; i++ {
		n := 5 + rng.Intn(40)
		edges := randomEdges(rng, n, 1.5)
		s, ts := plainSystem(t, n, edges)
		want := terminalSCCs(n, successorsUnder(ts, 0))

		for _, pivot := range []PivotPolicy{PivotNaive, PivotHeuristic} {
			rec := &hookRecorder[bits]{}
			res := decompose(t, ts, s, testConfig(1+i%4, pivot), WithComponentHook[bits](rec.hook))

			if diff := cmp.Diff(want, rec.stateSets()); diff != "" {
				t.Fatalf("graph %d, pivot %s: components mismatch (-want +got):\n%s", i, pivot, diff)
			}
			assert.Equal(t, flatten(want), res.Components.States())
		}
	}
}

func TestDecompose_MatchesPerValuationTarjan(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 10; i++ {
		n, k := 8+rng.Intn(20), 6
		s, ts := randomParamSystem(t, rng, n, k, 2)

		for _, parallelism := range []int{1, 4} {
			res := decompose(t, ts, s, testConfig(parallelism, PivotHeuristic))
			for v := 0; v < k; v++ {
				want := flatten(terminalSCCs(n, successorsUnder(ts, v)))
				assert.Equal(t, want, statesFor(res.Components, v),
					"graph %d valuation %d parallelism %d", i, v, parallelism)
			}
		}
	}
}

func TestDecompose_ResultIndependentOfParallelism(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 8; i++ {
		s, ts := randomParamSystem(t, rng, 40, 10, 2)

		serial := decompose(t, ts, s, testConfig(1, PivotNaive))
		parallel := decompose(t, ts, s, testConfig(6, PivotNaive))

		assert.True(t, serial.Components.Equal(parallel.Components), "components differ:\n%s\n%s",
			serial.Components, parallel.Components)
		assert.True(t, serial.Sinks.Equal(parallel.Sinks), "sinks differ")
	}
}

func TestDecompose_RectDomainIndependentOfParallelism(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	s, err := params.NewRectSolver(params.Integer, params.MustRect(0, 7, 0, 7))
	require.NoError(t, err)
	n := 25
	b := system.NewBuilder[params.RectSet](s, n)
	for _, e := range randomEdges(rng, n, 2) {
		x, y := float64(rng.Intn(8)), float64(rng.Intn(8))
		bound := s.Or(s.Box(0, x, 0, 7), s.Box(0, 7, y, 7))
		require.NoError(t, b.AddEdge(e[0], e[1], bound))
	}
	ts, err := b.Build()
	require.NoError(t, err)

	serial := decompose(t, ts, s, testConfig(1, PivotHeuristic))
	parallel := decompose(t, ts, s, testConfig(4, PivotHeuristic))
	assert.True(t, serial.Components.Equal(parallel.Components))
	assert.True(t, serial.Sinks.Equal(parallel.Sinks))

	naive := decompose(t, ts, s, testConfig(3, PivotNaive))
	assert.True(t, serial.Components.Equal(naive.Components), "pivot policy never changes the answer")
}

func TestDecompose_SplittingKeepsSemantics(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	s, err := params.NewRectSolver(params.Real, params.MustRect(0, 1, 0, 1))
	require.NoError(t, err)
	n := 15
	b := system.NewBuilder[params.RectSet](s, n)
	for _, e := range randomEdges(rng, n, 2) {
		x := float64(rng.Intn(4)) / 4
		require.NoError(t, b.AddEdge(e[0], e[1], s.Box(x, 1, 0, 1)))
	}
	ts, err := b.Build()
	require.NoError(t, err)

	plain := decompose(t, ts, s, testConfig(4, PivotHeuristic))

	cfg := testConfig(4, PivotHeuristic)
	cfg.SplitThreshold = 0.2
	split := decompose(t, ts, s, cfg)

	assert.Greater(t, split.Stats.Splits, int64(0))
	assert.True(t, plain.Components.Equal(split.Components), "components differ:\n%s\n%s",
		plain.Components, split.Components)
}

func TestDecompose_LevelsCoverComponents(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s, ts := randomParamSystem(t, rng, 30, 4, 1.5)

	res := decompose(t, ts, s, testConfig(2, PivotHeuristic))

	require.NotEmpty(t, res.Levels)
	assert.Equal(t, res.Stats.Levels, len(res.Levels))
	union := params.NewStateMap[bits](s, ts.StateCount())
	for _, level := range res.Levels {
		for state, p := range level.All() {
			assert.False(t, s.AndNot(p, res.Components.Get(state)), "level entries are components")
			union.SetOrUnion(state, p)
		}
	}
	assert.True(t, union.Equal(res.Components))
}

func TestDecompose_InitialUniverse(t *testing.T) {
	s, ts := plainSystem(t, 4, [][2]int{{0, 1}, {1, 0}, {2, 3}})
	universe := params.StateMapOf[bits](s, 4, map[int]bits{2: s.TT(), 3: s.TT()})

	res := decompose(t, ts, s, testConfig(2, PivotNaive), WithInitialUniverse(universe))
	assert.Equal(t, []int{3}, res.Components.States())

	empty := params.NewStateMap[bits](s, 4)
	res = decompose(t, ts, s, testConfig(2, PivotNaive), WithInitialUniverse(empty))
	assert.Equal(t, 0, res.Components.Len())

	alg, err := New[bits](ts, s, testConfig(1, PivotNaive))
	require.NoError(t, err)
	_, err = alg.Decompose(context.Background(), WithInitialUniverse(params.NewStateMap[bits](s, 3)))
	assert.ErrorIs(t, err, ErrUniverseMismatch)
}

func TestDecompose_CustomPivotChooser(t *testing.T) {
	s, ts := plainSystem(t, 3, [][2]int{{0, 1}, {1, 2}, {2, 1}})
	chooser := &countingChooser{}

	res := decompose(t, ts, s, testConfig(1, PivotHeuristic), WithPivotChooser[bits](chooser))
	assert.Equal(t, []int{1, 2}, res.Components.States())
	assert.Positive(t, chooser.calls)
}

type countingChooser struct {
	NaivePivots[bits]
	calls int
}

func (c *countingChooser) Choose(u *params.StateMap[bits]) *params.StateMap[bits] {
	c.calls++
	return c.NaivePivots.Choose(u)
}

// =============================================================================
// Failure handling
// =============================================================================

// panickingSystem panics when asked for the edges of one state.
type panickingSystem struct {
	*system.Explicit[bits]
	bad int
}

func (p panickingSystem) Edges(state int, forward bool) []system.Transition[bits] {
	if state == p.bad {
		panic(fmt.Sprintf("no edges for state %d", state))
	}
	return p.Explicit.Edges(state, forward)
}

func TestDecompose_UnitPanicFailsRun(t *testing.T) {
	s, ts := plainSystem(t, 6, [][2]int{{0, 1}, {1, 2}, {2, 0}, {3, 4}, {4, 5}})
	bad := panickingSystem{Explicit: ts, bad: 4}
	rec := &hookRecorder[bits]{}

	for _, parallelism := range []int{1, 4} {
		alg, err := New[bits](bad, s, testConfig(parallelism, PivotNaive))
		require.NoError(t, err)
		res, err := alg.Decompose(context.Background(), WithComponentHook[bits](rec.hook))
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrUnitFailed)
		assert.ErrorIs(t, err, scheduler.ErrUnitPanicked)
	}
}

func TestDecompose_HookPanicIsReported(t *testing.T) {
	s, ts := plainSystem(t, 2, nil)
	alg, err := New[bits](ts, s, testConfig(2, PivotNaive))
	require.NoError(t, err)

	_, err = alg.Decompose(context.Background(), WithComponentHook[bits](func(map[int]bits) {
		panic("hook down")
	}))
	assert.ErrorIs(t, err, ErrHookPanicked)
}

func TestDecompose_Cancelled(t *testing.T) {
	s, ts := plainSystem(t, 50, randomEdges(rand.New(rand.NewSource(1)), 50, 2))
	alg, err := New[bits](ts, s, testConfig(2, PivotNaive))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = alg.Decompose(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestNew_ValidatesConfig(t *testing.T) {
	s, ts := plainSystem(t, 1, nil)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero parallelism", Config{Parallelism: 0, Pivot: PivotNaive}},
		{"unknown pivot", Config{Parallelism: 1, Pivot: "random"}},
		{"negative buffer", Config{Parallelism: 1, Pivot: PivotNaive, HookBuffer: -1}},
		{"negative split", Config{Parallelism: 1, Pivot: PivotNaive, SplitThreshold: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New[bits](ts, s, tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
