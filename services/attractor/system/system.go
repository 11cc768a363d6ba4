// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package system defines parametrised transition systems: directed graphs
// over states 0..N-1 whose edges are enabled only for a set of parameter
// valuations.
package system

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/attractor/services/attractor/params"
)

var (
	// ErrStateOutOfRange indicates a state index outside [0, StateCount).
	ErrStateOutOfRange = errors.New("state out of range")

	// ErrInvalidStateCount indicates a negative state count.
	ErrInvalidStateCount = errors.New("invalid state count")
)

// Transition is one edge as seen from a state. For a forward query Target
// is the successor; for a backward query it is the predecessor. Bound is
// the set of parameters for which the edge exists.
type Transition[P any] struct {
	Target int
	Bound  P
}

// TransitionSystem is a read-only parametrised graph.
//
// Thread Safety:
//
//	Implementations must allow concurrent calls to Edges.
type TransitionSystem[P any] interface {
	// StateCount returns N. States are 0..N-1.
	StateCount() int

	// Edges lists successors when forward is true and predecessors
	// otherwise. The returned slice must not be modified.
	Edges(state int, forward bool) []Transition[P]
}

// Explicit is an in-memory TransitionSystem with precomputed successor and
// predecessor lists, each sorted by target.
type Explicit[P any] struct {
	solver       params.Solver[P]
	successors   [][]Transition[P]
	predecessors [][]Transition[P]
	edgeCount    int
}

// StateCount implements TransitionSystem.
func (e *Explicit[P]) StateCount() int { return len(e.successors) }

// Edges implements TransitionSystem.
func (e *Explicit[P]) Edges(state int, forward bool) []Transition[P] {
	if state < 0 || state >= len(e.successors) {
		return nil
	}
	if forward {
		return e.successors[state]
	}
	return e.predecessors[state]
}

// EdgeCount returns the number of distinct edges.
func (e *Explicit[P]) EdgeCount() int { return e.edgeCount }

// Solver returns the algebra edge bounds belong to.
func (e *Explicit[P]) Solver() params.Solver[P] { return e.solver }

// Builder accumulates edges for an Explicit system. Adding the same edge
// twice unions the bounds.
type Builder[P any] struct {
	solver params.Solver[P]
	states int
	edges  map[[2]int]P
	err    error
}

// NewBuilder starts a system with the given number of states.
func NewBuilder[P any](solver params.Solver[P], states int) *Builder[P] {
	b := &Builder[P]{solver: solver, states: states, edges: make(map[[2]int]P)}
	if states < 0 {
		b.err = fmt.Errorf("%w: %d", ErrInvalidStateCount, states)
	}
	return b
}

// AddEdge records from -> to enabled under bound. Edges with an
// unsatisfiable bound are dropped. The first error is sticky and returned
// again by Build.
func (b *Builder[P]) AddEdge(from, to int, bound P) error {
	if b.err != nil {
		return b.err
	}
	if from < 0 || from >= b.states || to < 0 || to >= b.states {
		b.err = fmt.Errorf("%w: edge %d -> %d with %d states", ErrStateOutOfRange, from, to, b.states)
		return b.err
	}
	if !b.solver.IsSat(bound) {
		return nil
	}
	key := [2]int{from, to}
	if prev, ok := b.edges[key]; ok {
		bound = b.solver.Or(prev, bound)
	}
	b.edges[key] = bound
	return nil
}

// Build freezes the builder into an Explicit system.
func (b *Builder[P]) Build() (*Explicit[P], error) {
	if b.err != nil {
		return nil, b.err
	}
	e := &Explicit[P]{
		solver:       b.solver,
		successors:   make([][]Transition[P], b.states),
		predecessors: make([][]Transition[P], b.states),
		edgeCount:    len(b.edges),
	}
	for key, bound := range b.edges {
		from, to := key[0], key[1]
		e.successors[from] = append(e.successors[from], Transition[P]{Target: to, Bound: bound})
		e.predecessors[to] = append(e.predecessors[to], Transition[P]{Target: from, Bound: bound})
	}
	for s := 0; s < b.states; s++ {
		sortByTarget(e.successors[s])
		sortByTarget(e.predecessors[s])
	}
	return e, nil
}

// Materialize copies any TransitionSystem into an Explicit one, deriving
// the predecessor lists from the successor lists.
func Materialize[P any](solver params.Solver[P], ts TransitionSystem[P]) (*Explicit[P], error) {
	b := NewBuilder(solver, ts.StateCount())
	for s := 0; s < ts.StateCount(); s++ {
		for _, t := range ts.Edges(s, true) {
			if err := b.AddEdge(s, t.Target, t.Bound); err != nil {
				return nil, err
			}
		}
	}
	return b.Build()
}

func sortByTarget[P any](ts []Transition[P]) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Target < ts[j].Target })
}
