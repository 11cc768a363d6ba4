// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package interval

import (
	"fmt"
	"math"
	"strings"

	"github.com/AleutianAI/attractor/services/attractor/params"
)

// Box is a product of intervals, one per dimension.
type Box []Interval

// NewBox builds a box from interleaved low/high coordinates.
func NewBox(coords ...float64) (Box, error) {
	if len(coords) == 0 || len(coords)%2 != 0 {
		return nil, fmt.Errorf("%w: %d coordinates", ErrDimension, len(coords))
	}
	b := make(Box, len(coords)/2)
	for d := range b {
		iv, err := New(coords[2*d], coords[2*d+1])
		if err != nil {
			return nil, fmt.Errorf("dimension %d: %w", d, err)
		}
		b[d] = iv
	}
	return b, nil
}

// Dim returns the number of dimensions.
func (b Box) Dim() int { return len(b) }

// Add returns b + o per dimension.
func (b Box) Add(o Box) (Box, error) {
	return b.zip(o, Interval.Add)
}

// Sub returns b - o per dimension.
func (b Box) Sub(o Box) (Box, error) {
	return b.zip(o, Interval.Sub)
}

// Mul returns b * o per dimension.
func (b Box) Mul(o Box) (Box, error) {
	return b.zip(o, Interval.Mul)
}

// Div returns b / o per dimension as a union of boxes. A divisor interval
// that straddles zero splits its dimension into the two half-lines of its
// inverse; one that touches zero yields a single half-bounded range.
func (b Box) Div(o Box) ([]Box, error) {
	if len(b) != len(o) {
		return nil, fmt.Errorf("%w: %d and %d", ErrDimension, len(b), len(o))
	}
	result := []Box{make(Box, 0, len(b))}
	for d := range b {
		parts := make([]Interval, 0, 2)
		for _, inv := range splitInverse(o[d]) {
			parts = append(parts, b[d].Mul(inv))
		}
		next := make([]Box, 0, len(result)*len(parts))
		for _, prefix := range result {
			for _, p := range parts {
				nb := append(append(Box(nil), prefix...), p)
				next = append(next, nb)
			}
		}
		result = next
	}
	return result, nil
}

// Intersect returns b ∩ o and false when they are disjoint.
func (b Box) Intersect(o Box) (Box, bool) {
	if len(b) != len(o) {
		return nil, false
	}
	out := make(Box, len(b))
	for d := range b {
		iv, ok := b[d].Intersect(o[d])
		if !ok {
			return nil, false
		}
		out[d] = iv
	}
	return out, true
}

// RoundTo rounds every dimension outward.
func (b Box) RoundTo(places int) Box {
	out := make(Box, len(b))
	for d, iv := range b {
		out[d] = iv.RoundTo(places)
	}
	return out
}

// Bounded reports whether every end is finite.
func (b Box) Bounded() bool {
	for _, iv := range b {
		if math.IsInf(iv.Lo, 0) || math.IsInf(iv.Hi, 0) {
			return false
		}
	}
	return true
}

// Rect converts b into a parameter rectangle.
func (b Box) Rect() (params.Rect, error) {
	coords := make([]float64, 0, 2*len(b))
	for _, iv := range b {
		coords = append(coords, iv.Lo, iv.Hi)
	}
	return params.NewRect(coords...)
}

// String implements fmt.Stringer.
func (b Box) String() string {
	parts := make([]string, len(b))
	for d, iv := range b {
		parts[d] = iv.String()
	}
	return strings.Join(parts, "x")
}

func (b Box) zip(o Box, op func(Interval, Interval) Interval) (Box, error) {
	if len(b) != len(o) {
		return nil, fmt.Errorf("%w: %d and %d", ErrDimension, len(b), len(o))
	}
	out := make(Box, len(b))
	for d := range b {
		out[d] = op(b[d], o[d])
	}
	return out, nil
}

// splitInverse returns 1/i as one or two intervals.
func splitInverse(i Interval) []Interval {
	if i.Lo < 0 && i.Hi > 0 {
		return []Interval{
			{Lo: math.Inf(-1), Hi: 1 / i.Lo},
			{Lo: 1 / i.Hi, Hi: math.Inf(1)},
		}
	}
	return []Interval{i.Inverse()}
}
