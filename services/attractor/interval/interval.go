// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package interval implements closed interval arithmetic used to build
// parametrised transition systems from numeric models.
//
// Every operation over-approximates: the result always contains every
// value the operation can produce for inputs drawn from its operands.
// Division by an interval that reaches zero widens rather than fails.
package interval

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInverted indicates a lower bound above the upper bound.
	ErrInverted = errors.New("interval lower bound above upper bound")

	// ErrDimension indicates boxes of different dimensions were combined.
	ErrDimension = errors.New("box dimension mismatch")
)

// Interval is the closed range [Lo, Hi]. Either end may be infinite.
type Interval struct {
	Lo, Hi float64
}

// New returns [lo, hi] or ErrInverted.
func New(lo, hi float64) (Interval, error) {
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return Interval{}, fmt.Errorf("%w: [%v, %v]", ErrInverted, lo, hi)
	}
	return Interval{Lo: lo, Hi: hi}, nil
}

// Must is New that panics. Meant for constants.
func Must(lo, hi float64) Interval {
	i, err := New(lo, hi)
	if err != nil {
		panic(err)
	}
	return i
}

// Point returns [v, v].
func Point(v float64) Interval { return Interval{Lo: v, Hi: v} }

// Unbounded returns (-inf, +inf).
func Unbounded() Interval { return Interval{Lo: math.Inf(-1), Hi: math.Inf(1)} }

// Width returns Hi - Lo.
func (i Interval) Width() float64 { return i.Hi - i.Lo }

// Contains reports whether v lies in i.
func (i Interval) Contains(v float64) bool { return i.Lo <= v && v <= i.Hi }

// Neg returns -i.
func (i Interval) Neg() Interval { return Interval{Lo: -i.Hi, Hi: -i.Lo} }

// Add returns i + o.
func (i Interval) Add(o Interval) Interval {
	return Interval{Lo: i.Lo + o.Lo, Hi: i.Hi + o.Hi}
}

// Sub returns i - o.
func (i Interval) Sub(o Interval) Interval {
	return Interval{Lo: i.Lo - o.Hi, Hi: i.Hi - o.Lo}
}

// Mul returns i * o.
func (i Interval) Mul(o Interval) Interval {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range [4]float64{
		product(i.Lo, o.Lo), product(i.Lo, o.Hi),
		product(i.Hi, o.Lo), product(i.Hi, o.Hi),
	} {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return Interval{Lo: lo, Hi: hi}
}

// Scale returns i * k for a scalar k.
func (i Interval) Scale(k float64) Interval { return i.Mul(Point(k)) }

// Inverse returns 1/i. An interval straddling zero, or equal to [0, 0],
// has an unbounded inverse. An interval with zero as one end has a
// half-bounded inverse.
func (i Interval) Inverse() Interval {
	switch {
	case i.Lo == 0 && i.Hi == 0, i.Lo < 0 && i.Hi > 0:
		return Unbounded()
	case i.Lo == 0:
		return Interval{Lo: 1 / i.Hi, Hi: math.Inf(1)}
	case i.Hi == 0:
		return Interval{Lo: math.Inf(-1), Hi: 1 / i.Lo}
	default:
		return Interval{Lo: 1 / i.Hi, Hi: 1 / i.Lo}
	}
}

// Div returns i / o, widening to an unbounded interval when o straddles
// zero.
func (i Interval) Div(o Interval) Interval { return i.Mul(o.Inverse()) }

// Intersect returns i ∩ o and false when they are disjoint.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	lo, hi := math.Max(i.Lo, o.Lo), math.Min(i.Hi, o.Hi)
	if lo > hi {
		return Interval{}, false
	}
	return Interval{Lo: lo, Hi: hi}, true
}

// Hull returns the smallest interval containing i and o.
func (i Interval) Hull(o Interval) Interval {
	return Interval{Lo: math.Min(i.Lo, o.Lo), Hi: math.Max(i.Hi, o.Hi)}
}

// RoundTo rounds outward to the given number of decimal places, so the
// result always contains i.
func (i Interval) RoundTo(places int) Interval {
	scale := math.Pow(10, float64(places))
	return Interval{Lo: math.Floor(i.Lo*scale) / scale, Hi: math.Ceil(i.Hi*scale) / scale}
}

// MapIncreasing applies a non-decreasing function to both ends.
func (i Interval) MapIncreasing(f func(float64) float64) Interval {
	return Interval{Lo: f(i.Lo), Hi: f(i.Hi)}
}

// MapDecreasing applies a non-increasing function to both ends.
func (i Interval) MapDecreasing(f func(float64) float64) Interval {
	return Interval{Lo: f(i.Hi), Hi: f(i.Lo)}
}

// String implements fmt.Stringer.
func (i Interval) String() string { return fmt.Sprintf("[%g, %g]", i.Lo, i.Hi) }

// product treats 0 * inf as 0, the limit that keeps bounds sound.
func product(a, b float64) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a * b
}
