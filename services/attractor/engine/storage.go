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
	"sync"

	"github.com/AleutianAI/attractor/services/attractor/params"
)

// Count is the append-only list of parameter levels recorded during one
// decomposition. Level indices depend on scheduling and carry no meaning
// beyond grouping.
type Count[P any] struct {
	mu     sync.Mutex
	levels []P
}

// NewCount starts a Count whose level 0 is base.
func NewCount[P any](base P) *Count[P] {
	return &Count[P]{levels: []P{base}}
}

// Push appends a level.
func (c *Count[P]) Push(p P) {
	c.mu.Lock()
	c.levels = append(c.levels, p)
	c.mu.Unlock()
}

// Get returns level i.
func (c *Count[P]) Get(i int) P {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[i]
}

// Len returns the number of levels.
func (c *Count[P]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.levels)
}

// Levels returns a snapshot of all levels.
func (c *Count[P]) Levels() []P {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]P(nil), c.levels...)
}

// ComponentStorage accumulates the states of discovered terminal
// components. Pushes are unions, so their order does not matter.
type ComponentStorage[P any] struct {
	mu         sync.Mutex
	components *params.StateMap[P]
}

// NewComponentStorage creates empty storage over stateCount states.
func NewComponentStorage[P any](solver params.Solver[P], stateCount int) *ComponentStorage[P] {
	return &ComponentStorage[P]{components: params.NewStateMap(solver, stateCount)}
}

// Push merges component ∧ mask into the storage.
func (cs *ComponentStorage[P]) Push(component *params.StateMap[P], mask P) {
	s := component.Solver()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for state, p := range component.All() {
		cs.components.SetOrUnion(state, s.And(p, mask))
	}
}

// Components returns a snapshot of the accumulated states.
func (cs *ComponentStorage[P]) Components() *params.StateMap[P] {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.components.Clone()
}

// Mapping intersects the stored states with every level of count. Call it
// only once all work has drained.
func (cs *ComponentStorage[P]) Mapping(count *Count[P]) []*params.StateMap[P] {
	components := cs.Components()
	levels := count.Levels()
	out := make([]*params.StateMap[P], len(levels))
	for i, level := range levels {
		out[i] = components.Restrict(level)
	}
	return out
}

// lockedMap is a StateMap behind a mutex, used for the sink accumulator.
type lockedMap[P any] struct {
	mu sync.Mutex
	m  *params.StateMap[P]
}

func newLockedMap[P any](solver params.Solver[P], stateCount int) *lockedMap[P] {
	return &lockedMap[P]{m: params.NewStateMap(solver, stateCount)}
}

func (l *lockedMap[P]) union(state int, p P) {
	l.mu.Lock()
	l.m.SetOrUnion(state, p)
	l.mu.Unlock()
}

func (l *lockedMap[P]) snapshot() *params.StateMap[P] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Clone()
}
