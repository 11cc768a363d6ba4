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
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

type bits = *bitset.BitSet

// plainSystem builds an unparametrised system: one valuation, every edge
// enabled.
func plainSystem(t *testing.T, n int, edges [][2]int) (*params.BitsetSolver, *system.Explicit[bits]) {
	t.Helper()
	s, err := params.NewBitsetSolver(1)
	require.NoError(t, err)
	b := system.NewBuilder[bits](s, n)
	for _, e := range edges {
		require.NoError(t, b.AddEdge(e[0], e[1], s.TT()))
	}
	ts, err := b.Build()
	require.NoError(t, err)
	return s, ts
}

// randomEdges draws about degree successors per state.
func randomEdges(rng *rand.Rand, n int, degree float64) [][2]int {
	var edges [][2]int
	p := degree / float64(n)
	for from := 0; from < n; from++ {
		for to := 0; to < n; to++ {
			if rng.Float64() < p {
				edges = append(edges, [2]int{from, to})
			}
		}
	}
	return edges
}

// randomParamSystem gives every edge a random subset of k valuations.
func randomParamSystem(t *testing.T, rng *rand.Rand, n, k int, degree float64) (*params.BitsetSolver, *system.Explicit[bits]) {
	t.Helper()
	s, err := params.NewBitsetSolver(k)
	require.NoError(t, err)
	b := system.NewBuilder[bits](s, n)
	for _, e := range randomEdges(rng, n, degree) {
		bound := s.Where(func(int) bool { return rng.Intn(3) > 0 })
		require.NoError(t, b.AddEdge(e[0], e[1], bound))
	}
	ts, err := b.Build()
	require.NoError(t, err)
	return s, ts
}

// terminalSCCs is the reference answer: Tarjan's algorithm followed by a
// filter keeping components with no edge leaving them. Components are
// returned sorted.
func terminalSCCs(n int, succ func(int) []int) [][]int {
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	var sccs [][]int
	next := 0

	var strongConnect func(v int)
	strongConnect = func(v int) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range succ(v) {
			if index[w] == -1 {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}
	for v := 0; v < n; v++ {
		if index[v] == -1 {
			strongConnect(v)
		}
	}

	var terminal [][]int
	for _, scc := range sccs {
		member := make(map[int]bool, len(scc))
		for _, v := range scc {
			member[v] = true
		}
		closed := true
		for _, v := range scc {
			for _, w := range succ(v) {
				if !member[w] {
					closed = false
				}
			}
		}
		if closed {
			sort.Ints(scc)
			terminal = append(terminal, scc)
		}
	}
	sortComponents(terminal)
	return terminal
}

// successorsUnder lists the successors of v enabled for valuation k.
func successorsUnder(ts *system.Explicit[bits], k int) func(int) []int {
	return func(v int) []int {
		var out []int
		for _, e := range ts.Edges(v, true) {
			if e.Bound.Test(uint(k)) {
				out = append(out, e.Target)
			}
		}
		return out
	}
}

func flatten(components [][]int) []int {
	var out []int
	for _, c := range components {
		out = append(out, c...)
	}
	sort.Ints(out)
	return out
}

func sortComponents(cs [][]int) {
	sort.Slice(cs, func(i, j int) bool { return cs[i][0] < cs[j][0] })
}

// statesFor lists the states of m whose parameters contain valuation k.
func statesFor(m *params.StateMap[bits], k int) []int {
	var out []int
	for s, p := range m.All() {
		if p.Test(uint(k)) {
			out = append(out, s)
		}
	}
	return out
}

// hookRecorder collects hook deliveries.
type hookRecorder[P any] struct {
	mu         sync.Mutex
	components []map[int]P
}

func (h *hookRecorder[P]) hook(c map[int]P) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components = append(h.components, c)
}

// stateSets returns the delivered components as sorted state lists.
func (h *hookRecorder[P]) stateSets() [][]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]int, 0, len(h.components))
	for _, c := range h.components {
		states := make([]int, 0, len(c))
		for s := range c {
			states = append(states, s)
		}
		sort.Ints(states)
		out = append(out, states)
	}
	sortComponents(out)
	return out
}
