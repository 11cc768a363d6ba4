// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis classifies terminal components after decomposition.
//
// All functions take the component map produced by the engine (state to
// the valuations for which the state lies in a terminal component) and
// split it by parameter valuation. A valuation lands in exactly one group
// of each split, so the groups of a split always partition the input.
package analysis

import (
	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

// Groups is the standard classification of a component map.
type Groups[P any] struct {
	// Oscillation holds components whose state graph is bipartite.
	Oscillation *params.StateMap[P]

	// Stable holds non-bipartite components with at most the small
	// component threshold of states.
	Stable *params.StateMap[P]

	// Unstable holds the remaining components.
	Unstable *params.StateMap[P]
}

// Classify splits components into oscillating, stable and unstable
// groups.
//
// Description:
//
//	The oscillation split runs first. The non-bipartite remainder is then
//	split by state count: valuations with at most smallThreshold states in
//	components are stable, the rest unstable.
//
// Limitations:
//
//	A valuation with several components is bipartite only if all of them
//	are, and its state count is summed over all of them.
func Classify[P any](ts system.TransitionSystem[P], components *params.StateMap[P], smallThreshold int) Groups[P] {
	oscillating, rest := ExtractOscillation(ts, components)
	small, big := ExtractSmall(rest, smallThreshold)
	return Groups[P]{Oscillation: oscillating, Stable: small, Unstable: big}
}

// ExtractOscillation splits components into the valuations whose
// component graph is bipartite and those where it is not.
//
// Description:
//
//	Starting from an unvisited state, states are coloured alternately by
//	breadth-first layers, per valuation. A valuation for which some state
//	receives both colours has an odd cycle. The search restarts from the
//	next unvisited state until every entry has been coloured. A sink
//	without a self loop has no odd cycle and is reported as oscillating,
//	so extract sinks first when that matters.
//
// Outputs:
//
//	oscillating - components restricted to bipartite valuations.
//	rest - components restricted to the other valuations.
func ExtractOscillation[P any](ts system.TransitionSystem[P], components *params.StateMap[P]) (oscillating, rest *params.StateMap[P]) {
	s := components.Solver()
	n := components.StateCount()
	notBipartite := s.FF()
	remaining := components.Clone()

	for remaining.Len() > 0 {
		current := params.NewStateMap(s, n)
		opposite := params.NewStateMap(s, n)
		frontier := params.NewStateMap(s, n)
		for state, p := range remaining.All() {
			frontier.Set(state, p)
			break
		}

		for frontier.Len() > 0 {
			for state, p := range frontier.All() {
				remaining.Set(state, s.And(remaining.Get(state), s.Not(p)))
				current.SetOrUnion(state, p)
			}
			// States already in the opposite colour are skipped, states of
			// the current colour are not: those are the conflicts.
			next := params.NewStateMap(s, n)
			for state, p := range frontier.All() {
				for _, t := range ts.Edges(state, true) {
					q := s.And(s.And(p, t.Bound), s.Not(opposite.Get(t.Target)))
					next.SetOrUnion(t.Target, q)
				}
			}
			frontier = next
			current, opposite = opposite, current
		}

		for state, p := range current.All() {
			if both := s.And(p, opposite.Get(state)); s.IsSat(both) {
				notBipartite = s.Or(notBipartite, both)
			}
		}
	}

	oscillating = components.Restrict(s.Not(notBipartite))
	rest = components.Restrict(notBipartite)
	return oscillating, rest
}

// ExtractSmall splits components by the number of states each valuation
// has in components. Valuations with between 1 and threshold states go to
// small, everything else to big.
func ExtractSmall[P any](components *params.StateMap[P], threshold int) (small, big *params.StateMap[P]) {
	s := components.Solver()
	c := newLayers(s)
	for _, p := range components.All() {
		c.push(p)
	}
	smallParams := s.FF()
	for k := 1; k <= threshold; k++ {
		smallParams = s.Or(smallParams, c.get(k))
	}
	return components.Restrict(smallParams), components.Restrict(s.Not(smallParams))
}

// layers counts, per valuation, how many pushed sets contained it. Level k
// holds the valuations seen exactly k times; level 0 starts as TT.
type layers[P any] struct {
	solver params.Solver[P]
	levels []P
}

func newLayers[P any](s params.Solver[P]) *layers[P] {
	return &layers[P]{solver: s, levels: []P{s.TT()}}
}

// push moves every valuation of p one level up. Levels are visited top
// down so no valuation moves twice.
func (l *layers[P]) push(p P) {
	s := l.solver
	for i := len(l.levels) - 1; i >= 0; i-- {
		moving := s.And(l.levels[i], p)
		if !s.IsSat(moving) {
			continue
		}
		l.levels[i] = s.And(l.levels[i], s.Not(p))
		if i+1 == len(l.levels) {
			l.levels = append(l.levels, moving)
		} else {
			l.levels[i+1] = s.Or(l.levels[i+1], moving)
		}
	}
}

func (l *layers[P]) get(k int) P {
	if k < 0 || k >= len(l.levels) {
		return l.solver.FF()
	}
	return l.levels[k]
}
