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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
)

// RectSet is a finite union of boxes. The empty set is the nil RectSet.
// Boxes in a set may overlap until the set is minimized.
type RectSet []Rect

// minimizeFactor bounds how far a union may grow past the last minimized
// size before Or minimizes it again.
const minimizeFactor = 4

// RectSolver is the algebra of box unions inside a bounding box.
//
// Description:
//
//	TT is the bounding box itself, FF is the empty union. Not, And and
//	AndNot are computed by box intersection and subtraction on the
//	solver's lattice. Or concatenates and then minimizes only when the
//	union has grown past minimizeFactor times the size recorded at the
//	last minimization, which keeps repeated unions cheap. Minimize always
//	runs to a fixpoint.
//
// Thread Safety:
//
//	Safe for concurrent use. The only mutable state is the atomic
//	minimization watermark.
type RectSolver struct {
	bound   Rect
	lattice Lattice
	stable  atomic.Int64
}

// NewRectSolver creates a solver over bound on the given lattice.
func NewRectSolver(lattice Lattice, bound Rect) (*RectSolver, error) {
	if bound.Dim() == 0 {
		return nil, fmt.Errorf("%w: empty bounding box", ErrInvalidDimension)
	}
	if bound.Empty(lattice) {
		return nil, fmt.Errorf("%w: bounding box %s is empty on the %s lattice", ErrInvertedBounds, bound, lattice)
	}
	s := &RectSolver{bound: bound, lattice: lattice}
	s.stable.Store(2)
	return s, nil
}

// Bound returns the bounding box.
func (s *RectSolver) Bound() Rect { return s.bound }

// Lattice returns the lattice boxes are interpreted on.
func (s *RectSolver) Lattice() Lattice { return s.lattice }

// Dim returns the number of parameters.
func (s *RectSolver) Dim() int { return s.bound.Dim() }

// Box builds a single-box set clipped to the bound. Invalid or empty
// boxes yield FF.
func (s *RectSolver) Box(coords ...float64) RectSet {
	r, err := NewRect(coords...)
	if err != nil || r.Dim() != s.Dim() {
		return nil
	}
	clipped, ok := r.Intersect(s.lattice, s.bound)
	if !ok {
		return nil
	}
	return RectSet{clipped}
}

func (s *RectSolver) TT() RectSet { return RectSet{s.bound} }

func (s *RectSolver) FF() RectSet { return nil }

func (s *RectSolver) And(a, b RectSet) RectSet {
	switch {
	case len(a) == 0 || len(b) == 0:
		return nil
	case s.isTT(a):
		return b
	case s.isTT(b):
		return a
	}
	out := make(RectSet, 0, len(a))
	seen := make(map[string]struct{})
	for _, x := range a {
		for _, y := range b {
			if r, ok := x.Intersect(s.lattice, y); ok {
				out = addUnique(out, seen, r)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *RectSolver) Or(a, b RectSet) RectSet {
	switch {
	case len(a) == 0:
		return b
	case len(b) == 0:
		return a
	case s.isTT(a) || s.isTT(b):
		return s.TT()
	}
	out := make(RectSet, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, r := range a {
		out = addUnique(out, seen, r)
	}
	for _, r := range b {
		out = addUnique(out, seen, r)
	}
	if int64(len(out)) <= minimizeFactor*s.stable.Load() {
		return out
	}
	out = s.minimize(out)
	s.stable.Store(max(int64(len(out)), 2))
	return out
}

// Not returns the bound minus every box of a.
func (s *RectSolver) Not(a RectSet) RectSet {
	switch {
	case len(a) == 0:
		return s.TT()
	case s.isTT(a):
		return nil
	}
	result := s.TT()
	for _, r := range a {
		result = s.subtract(result, r)
		if len(result) == 0 {
			return nil
		}
	}
	return s.minimize(result)
}

// AndNot subtracts the boxes of b from the fragments of a one by one and
// stops as soon as the answer is known.
func (s *RectSolver) AndNot(a, b RectSet) bool {
	switch {
	case len(a) == 0:
		return false
	case len(b) == 0:
		return true
	case s.isTT(b):
		return false
	}
	fragments := []Rect(a)
	for i, r := range b {
		fragments = s.subtract(fragments, r)
		if len(fragments) == 0 {
			return false
		}
		if s.escapes(fragments, b[i+1:]) {
			return true
		}
	}
	return true
}

func (s *RectSolver) IsSat(a RectSet) bool { return len(a) > 0 }

func (s *RectSolver) Minimize(a RectSet) RectSet {
	if len(a) < 2 {
		return a
	}
	return s.minimize(a)
}

func (s *RectSolver) Equal(a, b RectSet) bool {
	return !s.AndNot(a, b) && !s.AndNot(b, a)
}

// Serialize writes a big-endian box count, then for every box its
// coordinate count followed by the coordinates as IEEE 754 doubles.
func (s *RectSolver) Serialize(a RectSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(a))); err != nil {
		return nil, err
	}
	for _, r := range a {
		if err := binary.Write(&buf, binary.BigEndian, uint32(len(r.coords))); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, r.coords); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (s *RectSolver) Deserialize(data []byte) (RectSet, error) {
	rd := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(rd, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if uint64(count)*8 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d boxes in %d bytes", ErrCorruptData, count, len(data))
	}
	var out RectSet
	for i := uint32(0); i < count; i++ {
		var n uint32
		if err := binary.Read(rd, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		if int(n) != 2*s.Dim() {
			return nil, fmt.Errorf("%w: box with %d coordinates in a %d-dimensional domain", ErrDomainMismatch, n, s.Dim())
		}
		coords := make([]float64, n)
		if err := binary.Read(rd, binary.BigEndian, coords); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		r, err := NewRect(coords...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		out = append(out, r)
	}
	if rd.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptData, rd.Len())
	}
	return out, nil
}

// String renders the boxes in a stable order.
func (s *RectSolver) String(a RectSet) string {
	if len(a) == 0 {
		return "[]"
	}
	parts := make([]string, len(a))
	for i, r := range a {
		parts[i] = r.String()
	}
	sort.Strings(parts)
	return "[" + strings.Join(parts, ", ") + "]"
}

func (s *RectSolver) TransferTo(a RectSet, other Solver[RectSet]) (RectSet, error) {
	target, ok := other.(*RectSolver)
	if !ok || target.lattice != s.lattice || !target.bound.Same(s.bound) {
		return nil, ErrDomainMismatch
	}
	return append(RectSet(nil), a...), nil
}

// Cardinality sums box volumes. Overlapping boxes are counted twice, so
// the result is an upper bound until the set is minimized.
func (s *RectSolver) Cardinality(a RectSet) float64 {
	total := 0.0
	for _, r := range a {
		total += r.Volume(s.lattice)
	}
	return total
}

// BoundingBox returns the smallest box holding every box of a.
func (s *RectSolver) BoundingBox(a RectSet) (Rect, bool) {
	if len(a) == 0 {
		return Rect{}, false
	}
	c := a[0].Coordinates()
	for _, r := range a[1:] {
		for d := 0; d < r.Dim(); d++ {
			c[2*d] = math.Min(c[2*d], r.Low(d))
			c[2*d+1] = math.Max(c[2*d+1], r.High(d))
		}
	}
	return Rect{coords: c}, true
}

// Split cuts the bounding box of a at its midpoint in every dimension and
// returns the resulting orthant masks. On the integer lattice the upper
// half starts one past the midpoint and single-point dimensions are not
// cut.
func (s *RectSolver) Split(a RectSet) []RectSet {
	box, ok := s.BoundingBox(a)
	if !ok {
		return nil
	}
	masks := []Rect{box}
	for d := 0; d < box.Dim(); d++ {
		lo, hi := box.Low(d), box.High(d)
		var lower, upper [2]float64
		if s.lattice == Integer {
			if hi-lo < 1 {
				continue
			}
			mid := math.Floor((lo + hi) / 2)
			lower, upper = [2]float64{lo, mid}, [2]float64{mid + 1, hi}
		} else {
			if hi <= lo {
				continue
			}
			mid := lo + (hi-lo)/2
			lower, upper = [2]float64{lo, mid}, [2]float64{mid, hi}
		}
		next := make([]Rect, 0, 2*len(masks))
		for _, m := range masks {
			for _, half := range [][2]float64{lower, upper} {
				c := m.Coordinates()
				c[2*d], c[2*d+1] = half[0], half[1]
				next = append(next, Rect{coords: c})
			}
		}
		masks = next
	}
	out := make([]RectSet, len(masks))
	for i, m := range masks {
		out[i] = RectSet{m}
	}
	return out
}

// isTT is a fast syntactic check; a false result does not mean a ≠ TT.
func (s *RectSolver) isTT(a RectSet) bool {
	return len(a) == 1 && a[0].Same(s.bound)
}

// subtract removes r from every box of set.
func (s *RectSolver) subtract(set []Rect, r Rect) []Rect {
	out := make([]Rect, 0, len(set))
	for _, x := range set {
		out = append(out, x.Subtract(s.lattice, r)...)
	}
	return out
}

// escapes reports whether some fragment misses every remaining box, in
// which case it will survive all further subtraction.
func (s *RectSolver) escapes(fragments []Rect, remaining []Rect) bool {
	for _, f := range fragments {
		hit := false
		for _, r := range remaining {
			if _, ok := f.Intersect(s.lattice, r); ok {
				hit = true
				break
			}
		}
		if !hit {
			return true
		}
	}
	return false
}

// minimize merges boxes pairwise until no pair can be merged.
func (s *RectSolver) minimize(a []Rect) RectSet {
	rects := append([]Rect(nil), a...)
	for {
		i, j, merged, ok := s.findMerge(rects)
		if !ok {
			return rects
		}
		rects[i] = merged
		rects[j] = rects[len(rects)-1]
		rects = rects[:len(rects)-1]
	}
}

func (s *RectSolver) findMerge(rects []Rect) (int, int, Rect, bool) {
	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if m, ok := rects[i].Merge(s.lattice, rects[j]); ok {
				return i, j, m, true
			}
		}
	}
	return 0, 0, Rect{}, false
}

func addUnique(out RectSet, seen map[string]struct{}, r Rect) RectSet {
	k := r.key()
	if _, ok := seen[k]; ok {
		return out
	}
	seen[k] = struct{}{}
	return append(out, r)
}
