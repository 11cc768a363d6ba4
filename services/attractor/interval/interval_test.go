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
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInverted(t *testing.T) {
	_, err := New(2, 1)
	require.ErrorIs(t, err, ErrInverted)

	_, err = New(math.NaN(), 1)
	require.ErrorIs(t, err, ErrInverted)

	iv, err := New(1, 1)
	require.NoError(t, err)
	assert.Equal(t, Point(1), iv)
}

func TestInterval_Arithmetic(t *testing.T) {
	a := Must(1, 2)
	b := Must(-3, 4)

	assert.Equal(t, Must(-2, 6), a.Add(b))
	assert.Equal(t, Must(-3, 5), a.Sub(b))
	assert.Equal(t, Must(-6, 8), a.Mul(b))
	assert.Equal(t, Must(-2, -1), a.Neg())
	assert.Equal(t, Must(2, 4), a.Scale(2))
	assert.Equal(t, Must(0.5, 1), Point(1).Div(a))
}

func TestInterval_DivisionThroughZeroWidens(t *testing.T) {
	tests := []struct {
		name    string
		divisor Interval
		want    Interval
	}{
		{"straddles zero", Must(-1, 1), Unbounded()},
		{"is zero", Point(0), Unbounded()},
		{"starts at zero", Must(0, 2), Must(0.5, math.Inf(1))},
		{"ends at zero", Must(-2, 0), Must(math.Inf(-1), -0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Point(1).Div(tt.divisor))
		})
	}
}

func TestInterval_MulWithInfinityAndZero(t *testing.T) {
	got := Point(0).Mul(Must(1, math.Inf(1)))
	assert.Equal(t, Point(0), got)

	got = Must(0, 2).Mul(Must(1, math.Inf(1)))
	assert.Equal(t, Must(0, math.Inf(1)), got)
}

func TestInterval_OperationsAreSound(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pick := func(iv Interval) float64 { return iv.Lo + rng.Float64()*iv.Width() }

	for i := 0; i < 500; i++ {
		x1, x2 := rng.Float64()*10-5, rng.Float64()*10-5
		y1, y2 := rng.Float64()*10-5, rng.Float64()*10-5
		a := Must(math.Min(x1, x2), math.Max(x1, x2))
		b := Must(math.Min(y1, y2), math.Max(y1, y2))
		x, y := pick(a), pick(b)

		assert.True(t, a.Add(b).Contains(x+y))
		assert.True(t, a.Sub(b).Contains(x-y))
		assert.True(t, a.Mul(b).Contains(x*y))
		if y != 0 {
			q := a.Div(b)
			slack := 1e-9 * math.Max(1, math.Abs(x/y))
			assert.True(t, q.Lo-slack <= x/y && x/y <= q.Hi+slack, "%v / %v at %v / %v", a, b, x, y)
		}
	}
}

func TestInterval_RoundToIsOutward(t *testing.T) {
	got := Must(0.12345, 0.98761).RoundTo(3)
	assert.Equal(t, Must(0.123, 0.988), got)

	neg := Must(-0.1234, -0.0011).RoundTo(2)
	assert.Equal(t, Must(-0.13, -0.0), neg)
}

func TestInterval_IntersectAndHull(t *testing.T) {
	iv, ok := Must(0, 2).Intersect(Must(1, 3))
	require.True(t, ok)
	assert.Equal(t, Must(1, 2), iv)

	_, ok = Must(0, 1).Intersect(Must(2, 3))
	assert.False(t, ok)

	assert.Equal(t, Must(0, 3), Must(0, 1).Hull(Must(2, 3)))
}

func TestInterval_MapMonotone(t *testing.T) {
	assert.Equal(t, Must(1, 2), Must(1, 4).MapIncreasing(math.Sqrt))
	assert.Equal(t, Must(0.25, 1), Must(1, 4).MapDecreasing(func(v float64) float64 { return 1 / v }))
}

func TestBox_Div(t *testing.T) {
	num, err := NewBox(1, 1, 2, 4)
	require.NoError(t, err)
	den, err := NewBox(-1, 1, 1, 2)
	require.NoError(t, err)

	boxes, err := num.Div(den)
	require.NoError(t, err)
	require.Len(t, boxes, 2, "straddling dimension splits in two")
	assert.Equal(t, Must(math.Inf(-1), -1), boxes[0][0])
	assert.Equal(t, Must(1, math.Inf(1)), boxes[1][0])
	for _, b := range boxes {
		assert.Equal(t, Must(1, 4), b[1])
	}

	_, err = num.Div(Box{Point(1)})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestBox_Conversions(t *testing.T) {
	b, err := NewBox(0, 0.12345, 1, 2)
	require.NoError(t, err)

	r, err := b.RoundTo(2).Rect()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.13, 1, 2}, r.Coordinates())
	assert.True(t, b.Bounded())
	assert.Equal(t, "[0, 0.12345]x[1, 2]", b.String())

	_, err = NewBox(1, 0)
	assert.ErrorIs(t, err, ErrInverted)
	_, err = NewBox(1)
	assert.ErrorIs(t, err, ErrDimension)
}
