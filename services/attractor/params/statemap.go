// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package params

import (
	"iter"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// StateMap is a partial map from state index to parameter set.
//
// Description:
//
//	A state is a member of the map iff its parameter set is satisfiable;
//	Set with an empty set removes the state. Iteration is in ascending
//	state order.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. The engine gives every unit of work
//	its own maps and only shares them read-only.
type StateMap[P any] struct {
	solver  Solver[P]
	size    int
	values  []P
	present *bitset.BitSet
	count   int
}

// NewStateMap creates an empty map over stateCount states.
func NewStateMap[P any](solver Solver[P], stateCount int) *StateMap[P] {
	return &StateMap[P]{
		solver:  solver,
		size:    stateCount,
		values:  make([]P, stateCount),
		present: bitset.New(uint(max(stateCount, 0))),
	}
}

// FullStateMap maps every state to TT.
func FullStateMap[P any](solver Solver[P], stateCount int) *StateMap[P] {
	m := NewStateMap(solver, stateCount)
	tt := solver.TT()
	for s := 0; s < stateCount; s++ {
		m.Set(s, tt)
	}
	return m
}

// StateMapOf builds a map from a plain Go map. Unsatisfiable entries and
// states outside [0, stateCount) are dropped.
func StateMapOf[P any](solver Solver[P], stateCount int, entries map[int]P) *StateMap[P] {
	m := NewStateMap(solver, stateCount)
	for s, p := range entries {
		if s >= 0 && s < stateCount {
			m.Set(s, p)
		}
	}
	return m
}

// Solver returns the algebra the map's values belong to.
func (m *StateMap[P]) Solver() Solver[P] { return m.solver }

// StateCount returns the size of the state space the map is over.
func (m *StateMap[P]) StateCount() int { return m.size }

// Len returns the number of member states.
func (m *StateMap[P]) Len() int { return m.count }

// Contains reports whether state is a member.
func (m *StateMap[P]) Contains(state int) bool {
	return state >= 0 && state < m.size && m.present.Test(uint(state))
}

// Get returns the parameters of state, or FF when it is not a member.
func (m *StateMap[P]) Get(state int) P {
	if !m.Contains(state) {
		return m.solver.FF()
	}
	return m.values[state]
}

// Set replaces the parameters of state. An unsatisfiable p removes it.
func (m *StateMap[P]) Set(state int, p P) {
	if state < 0 || state >= m.size {
		return
	}
	if !m.solver.IsSat(p) {
		m.Delete(state)
		return
	}
	if !m.present.Test(uint(state)) {
		m.present.Set(uint(state))
		m.count++
	}
	m.values[state] = p
}

// SetOrUnion adds p to the parameters of state and reports whether that
// added anything new.
func (m *StateMap[P]) SetOrUnion(state int, p P) bool {
	if state < 0 || state >= m.size || !m.solver.IsSat(p) {
		return false
	}
	if !m.Contains(state) {
		m.Set(state, p)
		return true
	}
	current := m.values[state]
	if !m.solver.AndNot(p, current) {
		return false
	}
	m.values[state] = m.solver.Or(current, p)
	return true
}

// Delete removes state.
func (m *StateMap[P]) Delete(state int) {
	if !m.Contains(state) {
		return
	}
	var zero P
	m.present.Clear(uint(state))
	m.values[state] = zero
	m.count--
}

// All yields member states and their parameters in ascending state order.
func (m *StateMap[P]) All() iter.Seq2[int, P] {
	return func(yield func(int, P) bool) {
		for i, ok := m.present.NextSet(0); ok; i, ok = m.present.NextSet(i + 1) {
			if !yield(int(i), m.values[i]) {
				return
			}
		}
	}
}

// States returns the member states in ascending order.
func (m *StateMap[P]) States() []int {
	out := make([]int, 0, m.count)
	for s := range m.All() {
		out = append(out, s)
	}
	return out
}

// Entries copies the map into a plain Go map.
func (m *StateMap[P]) Entries() map[int]P {
	out := make(map[int]P, m.count)
	for s, p := range m.All() {
		out[s] = p
	}
	return out
}

// AllParams returns the union of all member parameter sets.
func (m *StateMap[P]) AllParams() P {
	result := m.solver.FF()
	for _, p := range m.All() {
		result = m.solver.Or(result, p)
	}
	return result
}

// Restrict returns a new map with every entry intersected with mask.
func (m *StateMap[P]) Restrict(mask P) *StateMap[P] {
	out := NewStateMap(m.solver, m.size)
	for s, p := range m.All() {
		out.Set(s, m.solver.And(p, mask))
	}
	return out
}

// Minus returns the entries of m with the parameters of other removed.
func (m *StateMap[P]) Minus(other *StateMap[P]) *StateMap[P] {
	out := NewStateMap(m.solver, m.size)
	for s, p := range m.All() {
		if !other.Contains(s) {
			out.Set(s, p)
			continue
		}
		q := other.Get(s)
		if m.solver.AndNot(p, q) {
			out.Set(s, m.solver.And(p, m.solver.Not(q)))
		}
	}
	return out
}

// Clone returns an independent copy. Tokens are shared since they are
// immutable.
func (m *StateMap[P]) Clone() *StateMap[P] {
	return &StateMap[P]{
		solver:  m.solver,
		size:    m.size,
		values:  append([]P(nil), m.values...),
		present: m.present.Clone(),
		count:   m.count,
	}
}

// Equal reports whether m and other have the same members with
// semantically equal parameters.
func (m *StateMap[P]) Equal(other *StateMap[P]) bool {
	if m.count != other.count || !m.present.Equal(other.present) {
		return false
	}
	for s, p := range m.All() {
		if !m.solver.Equal(p, other.values[s]) {
			return false
		}
	}
	return true
}

// String renders the map as state:params pairs.
func (m *StateMap[P]) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for s, p := range m.All() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(strconv.Itoa(s))
		b.WriteString(": ")
		b.WriteString(m.solver.String(p))
	}
	b.WriteByte('}')
	return b.String()
}
