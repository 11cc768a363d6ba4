// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/attractor/services/attractor/export"
	"github.com/AleutianAI/attractor/services/attractor/params"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResultSet() *export.ResultSet {
	return &export.ResultSet{
		Variables:       []string{"x"},
		Parameters:      []string{"p"},
		Thresholds:      [][]float64{{0, 1, 2}},
		ParameterBounds: [][2]float64{{0, 1}},
		States:          []export.State{{ID: 0, Name: "a", Bounds: [][2]float64{{0, 1}}}},
		Type:            "rectangular",
		ParameterValues: []any{[][][2]float64{{{0, 0.5}}}},
		Results:         []export.Result{{Formula: "components", Data: [][2]int{{0, 0}}}},
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(DefaultConfig())
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.GCInterval = time.Hour

	s, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Path, s.Path())
	assert.False(t, s.InMemory())
	id, err := s.SaveRun(ctx, Run{Model: "flip"}, sampleResultSet())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	run, err := s.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "flip", run.Model)
}

func TestSaveRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.SaveRun(ctx, Run{
		Model:   "flip",
		Domain:  "rect",
		States:  2,
		Elapsed: 3 * time.Millisecond,
		Labels:  map[string]string{"pivot": "naive"},
	}, sampleResultSet())
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	run, err := s.LoadRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "flip", run.Model)
	assert.Equal(t, 2, run.States)
	assert.Equal(t, 3*time.Millisecond, run.Elapsed)
	assert.Equal(t, "naive", run.Labels["pivot"])
	assert.False(t, run.CreatedAt.IsZero())

	rs, err := s.LoadResultSet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "rectangular", rs.Type)
	components, ok := rs.Result("components")
	require.True(t, ok)
	assert.Equal(t, [][2]int{{0, 0}}, components.Data)
}

func TestSaveRun_KeepsGivenID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	want := uuid.NewString()
	id, err := s.SaveRun(ctx, Run{ID: want}, sampleResultSet())
	require.NoError(t, err)
	assert.Equal(t, want, id)

	_, err = s.SaveRun(ctx, Run{ID: "not-a-uuid"}, sampleResultSet())
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestLoadRun_Errors(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LoadRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadResultSet(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadRun(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidID)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.LoadRun(cancelled, uuid.NewString())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListRuns_OldestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"second", "first", "third"} {
		offset := []time.Duration{time.Hour, 0, 2 * time.Hour}[i]
		_, err := s.SaveRun(ctx, Run{Model: name, CreatedAt: base.Add(offset)}, sampleResultSet())
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "first", runs[0].Model)
	assert.Equal(t, "second", runs[1].Model)
	assert.Equal(t, "third", runs[2].Model)
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	solver, err := params.NewBitsetSolver(4)
	require.NoError(t, err)

	keep, err := s.SaveRun(ctx, Run{Model: "keep"}, sampleResultSet())
	require.NoError(t, err)
	drop, err := s.SaveRun(ctx, Run{Model: "drop"}, sampleResultSet())
	require.NoError(t, err)
	m := params.StateMapOf[*bitset.BitSet](solver, 2, map[int]*bitset.BitSet{1: solver.Of(0, 2)})
	require.NoError(t, SaveMap(ctx, s, drop, "components", m))
	require.NoError(t, SaveMap(ctx, s, keep, "components", m))

	require.NoError(t, s.DeleteRun(ctx, drop))
	_, err = s.LoadRun(ctx, drop)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadResultSet(ctx, drop)
	assert.ErrorIs(t, err, ErrNotFound)
	gone, err := LoadMap[*bitset.BitSet](ctx, s, drop, "components", solver, 2)
	require.NoError(t, err)
	assert.Zero(t, gone.Len())

	kept, err := LoadMap[*bitset.BitSet](ctx, s, keep, "components", solver, 2)
	require.NoError(t, err)
	assert.True(t, kept.Equal(m))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, keep, runs[0].ID)

	assert.ErrorIs(t, s.DeleteRun(ctx, drop), ErrNotFound)
}

func TestSaveMap_RectRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	solver, err := params.NewRectSolver(params.Real, params.MustRect(0, 1, 0, 2))
	require.NoError(t, err)

	id := uuid.NewString()
	m := params.NewStateMap[params.RectSet](solver, 5)
	m.Set(0, solver.Box(0, 0.5, 0, 2))
	m.Set(4, solver.Or(solver.Box(0, 0.25, 0, 1), solver.Box(0.5, 1, 1, 2)))
	require.NoError(t, SaveMap(ctx, s, id, "sinks", m))

	back, err := LoadMap[params.RectSet](ctx, s, id, "sinks", solver, 5)
	require.NoError(t, err)
	assert.True(t, back.Equal(m), "got %s want %s", back, m)

	// Saving again replaces the earlier map.
	smaller := params.NewStateMap[params.RectSet](solver, 5)
	smaller.Set(2, solver.TT())
	require.NoError(t, SaveMap(ctx, s, id, "sinks", smaller))
	back, err = LoadMap[params.RectSet](ctx, s, id, "sinks", solver, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, back.States())

	_, err = LoadMap[params.RectSet](ctx, s, id, "sinks", solver, 2)
	assert.Error(t, err, "states beyond the count are rejected")
}
