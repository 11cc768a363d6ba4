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
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bitsetToken = *bitset.BitSet

func TestStateMap_MembershipFollowsSatisfiability(t *testing.T) {
	s, err := NewBitsetSolver(4)
	require.NoError(t, err)
	sm := NewStateMap(Solver[bitsetToken](s), 5)
	sm.Set(1, s.Of(0, 1))
	sm.Set(3, s.FF())
	assert.Equal(t, 1, sm.Len())
	assert.True(t, sm.Contains(1))
	assert.False(t, sm.Contains(3))
	assert.False(t, s.IsSat(sm.Get(3)))

	sm.Set(1, s.FF())
	assert.Equal(t, 0, sm.Len())
	assert.False(t, sm.Contains(1))

	sm.Set(7, s.TT())
	assert.Equal(t, 0, sm.Len(), "out of range states are ignored")
}

func TestStateMap_SetOrUnion(t *testing.T) {
	s, _ := NewBitsetSolver(4)
	sm := NewStateMap(Solver[bitsetToken](s), 3)

	assert.True(t, sm.SetOrUnion(0, s.Of(0)))
	assert.True(t, sm.SetOrUnion(0, s.Of(1)))
	assert.False(t, sm.SetOrUnion(0, s.Of(0, 1)), "nothing new")
	assert.False(t, sm.SetOrUnion(2, s.FF()))
	assert.Equal(t, []int{0, 1}, s.Members(sm.Get(0)))
}

func TestStateMap_IterationIsOrdered(t *testing.T) {
	s, _ := NewBitsetSolver(2)
	sm := StateMapOf(Solver[bitsetToken](s), 10, map[int]bitsetToken{
		7: s.Of(0),
		2: s.Of(1),
		5: s.TT(),
		9: s.FF(),
	})

	assert.Equal(t, []int{2, 5, 7}, sm.States())
	assert.True(t, s.Equal(sm.AllParams(), s.TT()))
	assert.Equal(t, "{2: {1}, 5: {0,1}, 7: {0}}", sm.String())
}

func TestStateMap_RestrictMinusClone(t *testing.T) {
	s, _ := NewBitsetSolver(4)
	sm := FullStateMap(Solver[bitsetToken](s), 3)

	r := sm.Restrict(s.Of(2))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{2}, s.Members(r.Get(1)))

	other := StateMapOf(Solver[bitsetToken](s), 3, map[int]bitsetToken{0: s.TT(), 1: s.Of(0, 1)})
	diff := sm.Minus(other)
	assert.Equal(t, []int{1, 2}, diff.States())
	assert.Equal(t, []int{2, 3}, s.Members(diff.Get(1)))

	c := sm.Clone()
	c.Delete(0)
	assert.True(t, sm.Contains(0), "clone is independent")
	assert.False(t, sm.Equal(c))
	c.Set(0, s.TT())
	assert.True(t, sm.Equal(c))
}

func TestStateMap_EqualIsSemantic(t *testing.T) {
	s, err := NewRectSolver(Real, MustRect(0, 2))
	require.NoError(t, err)
	a := NewStateMap(Solver[RectSet](s), 2)
	b := NewStateMap(Solver[RectSet](s), 2)
	a.Set(0, s.Box(0, 2))
	b.Set(0, RectSet{MustRect(0, 1), MustRect(1, 2)})

	assert.True(t, a.Equal(b))
}
