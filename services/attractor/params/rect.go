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
	"math"
	"strconv"
	"strings"
)

// Lattice selects how rectangle boundaries are interpreted.
type Lattice int

const (
	// Real treats coordinates as continuous. Boxes are closed but a box of
	// zero volume in any dimension counts as empty, so two boxes that only
	// touch share nothing.
	Real Lattice = iota

	// Integer treats coordinates as integer points. [l, h] contains every
	// integer from l to h, so a box with l == h holds one point.
	Integer
)

// String implements fmt.Stringer.
func (l Lattice) String() string {
	switch l {
	case Real:
		return "real"
	case Integer:
		return "integer"
	default:
		return fmt.Sprintf("Lattice(%d)", int(l))
	}
}

// ParseLattice maps "real" or "integer" to a Lattice.
func ParseLattice(s string) (Lattice, error) {
	switch strings.ToLower(s) {
	case "", "real":
		return Real, nil
	case "integer", "int":
		return Integer, nil
	default:
		return 0, fmt.Errorf("unknown lattice %q", s)
	}
}

// empty reports whether the range [lo, hi] holds nothing.
func (l Lattice) empty(lo, hi float64) bool {
	if l == Integer {
		return lo > hi
	}
	return lo >= hi
}

// joinable reports whether [l1, h1] and [l2, h2] overlap or touch.
func (l Lattice) joinable(l1, h1, l2, h2 float64) bool {
	if l == Integer {
		return h1+1 >= l2 && h2+1 >= l1
	}
	return h1 >= l2 && h2 >= l1
}

// disjoint reports whether [l1, h1] and [l2, h2] share nothing.
func (l Lattice) disjoint(l1, h1, l2, h2 float64) bool {
	if l == Integer {
		return h2 < l1 || h1 < l2
	}
	return h2 <= l1 || h1 <= l2
}

// below is the part of [l1, h1] strictly under l2.
func (l Lattice) below(l1, l2 float64) (float64, float64) {
	if l == Integer {
		return l1, l2 - 1
	}
	return l1, l2
}

// above is the part of [l1, h1] strictly over h2.
func (l Lattice) above(h2, h1 float64) (float64, float64) {
	if l == Integer {
		return h2 + 1, h1
	}
	return h2, h1
}

// width of [lo, hi] as a measure on the lattice.
func (l Lattice) width(lo, hi float64) float64 {
	if l == Integer {
		return hi - lo + 1
	}
	return hi - lo
}

// Rect is an axis-aligned box stored as [l0, h0, l1, h1, ...].
// A Rect is immutable once built.
type Rect struct {
	coords []float64
}

// NewRect builds a box from interleaved low/high coordinates.
func NewRect(coords ...float64) (Rect, error) {
	if len(coords) == 0 || len(coords)%2 != 0 {
		return Rect{}, fmt.Errorf("%w: %d coordinates", ErrInvalidDimension, len(coords))
	}
	for i := 0; i < len(coords); i += 2 {
		if math.IsNaN(coords[i]) || math.IsNaN(coords[i+1]) || coords[i] > coords[i+1] {
			return Rect{}, fmt.Errorf("%w: dimension %d is [%v, %v]", ErrInvertedBounds, i/2, coords[i], coords[i+1])
		}
	}
	c := make([]float64, len(coords))
	copy(c, coords)
	return Rect{coords: c}, nil
}

// MustRect is NewRect that panics on invalid input. Meant for literals.
func MustRect(coords ...float64) Rect {
	r, err := NewRect(coords...)
	if err != nil {
		panic(err)
	}
	return r
}

// Dim returns the number of dimensions.
func (r Rect) Dim() int { return len(r.coords) / 2 }

// Low returns the lower bound of dimension d.
func (r Rect) Low(d int) float64 { return r.coords[2*d] }

// High returns the upper bound of dimension d.
func (r Rect) High(d int) float64 { return r.coords[2*d+1] }

// Coordinates returns a copy of the interleaved bounds.
func (r Rect) Coordinates() []float64 {
	c := make([]float64, len(r.coords))
	copy(c, r.coords)
	return c
}

// Bounds returns the box as one [low, high] pair per dimension.
func (r Rect) Bounds() [][2]float64 {
	out := make([][2]float64, r.Dim())
	for d := range out {
		out[d] = [2]float64{r.Low(d), r.High(d)}
	}
	return out
}

// Same reports whether r and o have identical coordinates.
func (r Rect) Same(o Rect) bool {
	if len(r.coords) != len(o.coords) {
		return false
	}
	for i, c := range r.coords {
		if c != o.coords[i] {
			return false
		}
	}
	return true
}

// Encloses reports whether o lies inside r. Shared boundaries count.
func (r Rect) Encloses(o Rect) bool {
	for d := 0; d < r.Dim(); d++ {
		if r.Low(d) > o.Low(d) || r.High(d) < o.High(d) {
			return false
		}
	}
	return true
}

// Empty reports whether r holds nothing on lattice l.
func (r Rect) Empty(l Lattice) bool {
	for d := 0; d < r.Dim(); d++ {
		if l.empty(r.Low(d), r.High(d)) {
			return true
		}
	}
	return false
}

// Volume returns the measure of r on lattice l. On the integer lattice it
// is the number of points.
func (r Rect) Volume(l Lattice) float64 {
	v := 1.0
	for d := 0; d < r.Dim(); d++ {
		v *= l.width(r.Low(d), r.High(d))
	}
	return v
}

// Intersect returns r ∩ o and false when it is empty.
func (r Rect) Intersect(l Lattice, o Rect) (Rect, bool) {
	c := make([]float64, len(r.coords))
	for d := 0; d < r.Dim(); d++ {
		lo := math.Max(r.Low(d), o.Low(d))
		hi := math.Min(r.High(d), o.High(d))
		if l.empty(lo, hi) {
			return Rect{}, false
		}
		c[2*d], c[2*d+1] = lo, hi
	}
	return Rect{coords: c}, true
}

// Merge returns the single box equal to r ∪ o when one exists. That is the
// case when one encloses the other, or when they agree on every dimension
// but one and overlap or touch there.
func (r Rect) Merge(l Lattice, o Rect) (Rect, bool) {
	if r.Encloses(o) {
		return r, true
	}
	if o.Encloses(r) {
		return o, true
	}
	split := -1
	for d := 0; d < r.Dim(); d++ {
		if r.Low(d) == o.Low(d) && r.High(d) == o.High(d) {
			continue
		}
		if split >= 0 {
			return Rect{}, false
		}
		split = d
	}
	if split < 0 {
		return r, true
	}
	if !l.joinable(r.Low(split), r.High(split), o.Low(split), o.High(split)) {
		return Rect{}, false
	}
	c := r.Coordinates()
	c[2*split] = math.Min(r.Low(split), o.Low(split))
	c[2*split+1] = math.Max(r.High(split), o.High(split))
	return Rect{coords: c}, true
}

// Subtract returns disjoint boxes whose union is r minus o. At most two
// boxes are produced per dimension.
func (r Rect) Subtract(l Lattice, o Rect) []Rect {
	for d := 0; d < r.Dim(); d++ {
		if l.disjoint(r.Low(d), r.High(d), o.Low(d), o.High(d)) {
			return []Rect{r}
		}
	}
	if o.Encloses(r) {
		return nil
	}
	var out []Rect
	working := r.Coordinates()
	for d := 0; d < r.Dim(); d++ {
		l1, h1 := working[2*d], working[2*d+1]
		l2, h2 := o.Low(d), o.High(d)
		if l1 < l2 {
			lo, hi := l.below(l1, l2)
			if !l.empty(lo, hi) {
				c := append([]float64(nil), working...)
				c[2*d], c[2*d+1] = lo, hi
				out = append(out, Rect{coords: c})
			}
			working[2*d] = l2
		}
		if h1 > h2 {
			lo, hi := l.above(h2, h1)
			if !l.empty(lo, hi) {
				c := append([]float64(nil), working...)
				c[2*d], c[2*d+1] = lo, hi
				out = append(out, Rect{coords: c})
			}
			working[2*d+1] = h2
		}
	}
	return out
}

// String renders the box as [l0, h0, l1, h1, ...].
func (r Rect) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range r.coords {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(c, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// key is an exact identity for deduplication.
func (r Rect) key() string {
	var b strings.Builder
	for _, c := range r.coords {
		b.WriteString(strconv.FormatUint(math.Float64bits(c), 36))
		b.WriteByte(':')
	}
	return b.String()
}
