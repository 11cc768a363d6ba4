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
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// BitsetSolver is the algebra over a finite universe of Size indexed
// parameter valuations. Bit i of a token is set iff valuation i belongs to
// the set.
//
// Every token produced by the solver has exactly Size bits of length, so
// the word-level operations of the bitset library line up.
type BitsetSolver struct {
	size uint
	tt   *bitset.BitSet
	ff   *bitset.BitSet
}

// NewBitsetSolver creates a solver over size valuations.
func NewBitsetSolver(size int) (*BitsetSolver, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	n := uint(size)
	tt := bitset.New(n)
	for i := uint(0); i < n; i++ {
		tt.Set(i)
	}
	return &BitsetSolver{size: n, tt: tt, ff: bitset.New(n)}, nil
}

// Size returns the number of valuations in the universe.
func (s *BitsetSolver) Size() int { return int(s.size) }

// Of returns the set containing exactly the given valuation indices.
// Indices outside the universe are ignored.
func (s *BitsetSolver) Of(indices ...int) *bitset.BitSet {
	b := bitset.New(s.size)
	for _, i := range indices {
		if i >= 0 && uint(i) < s.size {
			b.Set(uint(i))
		}
	}
	return b
}

// Where returns the set of valuations accepted by keep.
func (s *BitsetSolver) Where(keep func(index int) bool) *bitset.BitSet {
	b := bitset.New(s.size)
	for i := uint(0); i < s.size; i++ {
		if keep(int(i)) {
			b.Set(i)
		}
	}
	return b
}

// Members lists the valuation indices in a, ascending.
func (s *BitsetSolver) Members(a *bitset.BitSet) []int {
	if a == nil {
		return nil
	}
	out := make([]int, 0, a.Count())
	for i, ok := a.NextSet(0); ok; i, ok = a.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

func (s *BitsetSolver) TT() *bitset.BitSet { return s.tt }

func (s *BitsetSolver) FF() *bitset.BitSet { return s.ff }

func (s *BitsetSolver) And(a, b *bitset.BitSet) *bitset.BitSet {
	return s.norm(a).Intersection(s.norm(b))
}

func (s *BitsetSolver) Or(a, b *bitset.BitSet) *bitset.BitSet {
	return s.norm(a).Union(s.norm(b))
}

func (s *BitsetSolver) Not(a *bitset.BitSet) *bitset.BitSet {
	return s.norm(a).Complement()
}

func (s *BitsetSolver) AndNot(a, b *bitset.BitSet) bool {
	return s.norm(a).DifferenceCardinality(s.norm(b)) > 0
}

func (s *BitsetSolver) IsSat(a *bitset.BitSet) bool {
	return a != nil && a.Any()
}

// Minimize is the identity; bitsets are already canonical.
func (s *BitsetSolver) Minimize(a *bitset.BitSet) *bitset.BitSet { return s.norm(a) }

func (s *BitsetSolver) Equal(a, b *bitset.BitSet) bool {
	return s.norm(a).Equal(s.norm(b))
}

func (s *BitsetSolver) Serialize(a *bitset.BitSet) ([]byte, error) {
	return s.norm(a).MarshalBinary()
}

func (s *BitsetSolver) Deserialize(data []byte) (*bitset.BitSet, error) {
	b := &bitset.BitSet{}
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if b.Len() != s.size {
		return nil, fmt.Errorf("%w: bitset of length %d, universe has %d", ErrDomainMismatch, b.Len(), s.size)
	}
	return b, nil
}

func (s *BitsetSolver) String(a *bitset.BitSet) string {
	return s.norm(a).String()
}

func (s *BitsetSolver) TransferTo(a *bitset.BitSet, other Solver[*bitset.BitSet]) (*bitset.BitSet, error) {
	target, ok := other.(*BitsetSolver)
	if !ok {
		if g, isGrid := other.(*Grid); isGrid {
			target = g.BitsetSolver
		}
	}
	if target == nil || target.size != s.size {
		return nil, ErrDomainMismatch
	}
	return s.norm(a).Clone(), nil
}

// Cardinality counts the valuations in a.
func (s *BitsetSolver) Cardinality(a *bitset.BitSet) float64 {
	if a == nil {
		return 0
	}
	return float64(a.Count())
}

// Split cuts a into two masks holding the lower and upper half of its
// members. Sets with fewer than two members are returned whole.
func (s *BitsetSolver) Split(a *bitset.BitSet) []*bitset.BitSet {
	members := s.Members(a)
	if len(members) < 2 {
		return []*bitset.BitSet{s.norm(a)}
	}
	half := len(members) / 2
	return []*bitset.BitSet{s.Of(members[:half]...), s.Of(members[half:]...)}
}

// norm maps nil to FF so zero-value tokens behave as the empty set.
func (s *BitsetSolver) norm(a *bitset.BitSet) *bitset.BitSet {
	if a == nil {
		return s.ff
	}
	return a
}
