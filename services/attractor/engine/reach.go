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
	"github.com/bits-and-blooms/bitset"

	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

// Reach computes the states reachable from seed inside universe, per
// parameter valuation. With forward set it follows successors, otherwise
// predecessors.
//
// Description:
//
//	An edge s -> t contributes only where bound ∧ universe[s] ∧
//	universe[t] is satisfiable, so the search never leaves the universe.
//	The seed is clipped to the universe first. The search is a worklist
//	fixpoint: a state is re-queued whenever its parameter set grows.
//
// Outputs:
//
//	A new StateMap containing the seed and everything reachable from it.
func Reach[P any](ts system.TransitionSystem[P], universe, seed *params.StateMap[P], forward bool) *params.StateMap[P] {
	s := universe.Solver()
	result := params.NewStateMap(s, universe.StateCount())
	queued := bitset.New(uint(universe.StateCount()))
	var queue []int

	push := func(state int) {
		if !queued.Test(uint(state)) {
			queued.Set(uint(state))
			queue = append(queue, state)
		}
	}

	for state, p := range seed.All() {
		if result.SetOrUnion(state, s.And(p, universe.Get(state))) {
			push(state)
		}
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]
		queued.Clear(uint(state))

		current := result.Get(state)
		for _, t := range ts.Edges(state, forward) {
			if !universe.Contains(t.Target) {
				continue
			}
			p := s.And(s.And(current, t.Bound), universe.Get(t.Target))
			if result.SetOrUnion(t.Target, p) {
				push(t.Target)
			}
		}
	}
	return result
}

// Complement returns a ∧ ¬b per state.
func Complement[P any](a, b *params.StateMap[P]) *params.StateMap[P] {
	return a.Minus(b)
}

// Intersect returns a ∧ b per state.
func Intersect[P any](a, b *params.StateMap[P]) *params.StateMap[P] {
	s := a.Solver()
	out := params.NewStateMap(s, a.StateCount())
	for state, p := range a.All() {
		if b.Contains(state) {
			out.Set(state, s.And(p, b.Get(state)))
		}
	}
	return out
}

// Union returns a ∨ b per state.
func Union[P any](a, b *params.StateMap[P]) *params.StateMap[P] {
	out := a.Clone()
	for state, p := range b.All() {
		out.SetOrUnion(state, p)
	}
	return out
}
