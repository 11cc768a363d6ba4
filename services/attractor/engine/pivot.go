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
	"sort"

	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

// PivotChooser picks the seed of one decomposition step.
//
// Choose must return, for every parameter valuation present in universe,
// exactly one state that is a member of universe for that valuation.
type PivotChooser[P any] interface {
	Choose(universe *params.StateMap[P]) *params.StateMap[P]
}

// PivotPolicy names a built-in PivotChooser.
type PivotPolicy string

const (
	// PivotNaive takes states in ascending order.
	PivotNaive PivotPolicy = "naive"

	// PivotHeuristic prefers well connected states with large parameter
	// sets.
	PivotHeuristic PivotPolicy = "heuristic"
)

// NaivePivots assigns each valuation to the lowest numbered state that
// holds it.
type NaivePivots[P any] struct{}

// Choose implements PivotChooser.
func (NaivePivots[P]) Choose(universe *params.StateMap[P]) *params.StateMap[P] {
	return cover(universe, universe.States())
}

// HeuristicPivots ranks states by (in+1)·(out+1), scaled by the size of
// their parameter set when the solver is a params.Measurer, and assigns
// each valuation to the best ranked state holding it.
type HeuristicPivots[P any] struct {
	structure []float64
	measurer  params.Measurer[P]
}

// NewHeuristicPivots precomputes structure scores from ts.
func NewHeuristicPivots[P any](ts system.TransitionSystem[P], solver params.Solver[P]) *HeuristicPivots[P] {
	structure := make([]float64, ts.StateCount())
	for s := range structure {
		in := len(ts.Edges(s, false))
		out := len(ts.Edges(s, true))
		structure[s] = float64(in+1) * float64(out+1)
	}
	h := &HeuristicPivots[P]{structure: structure}
	if m, ok := solver.(params.Measurer[P]); ok {
		h.measurer = m
	}
	return h
}

// Choose implements PivotChooser.
func (h *HeuristicPivots[P]) Choose(universe *params.StateMap[P]) *params.StateMap[P] {
	type ranked struct {
		state int
		score float64
	}
	candidates := make([]ranked, 0, universe.Len())
	for s, p := range universe.All() {
		score := 1.0
		if s < len(h.structure) {
			score = h.structure[s]
		}
		if h.measurer != nil {
			score *= h.measurer.Cardinality(p)
		}
		candidates = append(candidates, ranked{state: s, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	order := make([]int, len(candidates))
	for i, c := range candidates {
		order[i] = c.state
	}
	return cover(universe, order)
}

// cover walks states in order and gives each one the valuations of the
// universe not yet claimed by an earlier state.
func cover[P any](universe *params.StateMap[P], order []int) *params.StateMap[P] {
	s := universe.Solver()
	pivots := params.NewStateMap(s, universe.StateCount())
	uncovered := universe.AllParams()
	for _, state := range order {
		if !s.IsSat(uncovered) {
			break
		}
		claim := s.And(universe.Get(state), uncovered)
		if !s.IsSat(claim) {
			continue
		}
		pivots.Set(state, claim)
		uncovered = s.And(uncovered, s.Not(claim))
	}
	return pivots
}

func newChooser[P any](policy PivotPolicy, ts system.TransitionSystem[P], solver params.Solver[P]) PivotChooser[P] {
	if policy == PivotNaive {
		return NaivePivots[P]{}
	}
	return NewHeuristicPivots(ts, solver)
}
