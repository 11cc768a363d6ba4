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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// member reports whether point lies in some box of set. Sample points are
// kept off box boundaries so the closed/open distinction never matters.
func member(set RectSet, point []float64) bool {
	for _, r := range set {
		inside := true
		for d := range point {
			if point[d] < r.Low(d) || point[d] > r.High(d) {
				inside = false
				break
			}
		}
		if inside {
			return true
		}
	}
	return false
}

// samplePoints are centres of the quarter cells of [0,2]x[0,2].
func samplePoints() [][]float64 {
	var out [][]float64
	for x := 0.125; x < 2; x += 0.25 {
		for y := 0.125; y < 2; y += 0.25 {
			out = append(out, []float64{x, y})
		}
	}
	return out
}

func randomRects(rng *rand.Rand, s *RectSolver, n int) RectSet {
	var out RectSet
	for i := 0; i < n; i++ {
		x1, x2 := float64(rng.Intn(9))*0.25, float64(rng.Intn(9))*0.25
		y1, y2 := float64(rng.Intn(9))*0.25, float64(rng.Intn(9))*0.25
		out = s.Or(out, s.Box(min(x1, x2), max(x1, x2), min(y1, y2), max(y1, y2)))
	}
	return out
}

func TestNewRect_Validation(t *testing.T) {
	_, err := NewRect()
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = NewRect(0, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = NewRect(2, 1)
	assert.ErrorIs(t, err, ErrInvertedBounds)

	r, err := NewRect(0, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Dim())
	assert.Equal(t, [][2]float64{{0, 1}, {2, 3}}, r.Bounds())
}

func TestRect_Subtract(t *testing.T) {
	tests := []struct {
		name    string
		lattice Lattice
		a, b    Rect
		want    []Rect
	}{
		{
			name:    "integer hole in the middle",
			lattice: Integer,
			a:       MustRect(0, 10),
			b:       MustRect(3, 5),
			want:    []Rect{MustRect(0, 2), MustRect(6, 10)},
		},
		{
			name:    "real hole shares boundaries",
			lattice: Real,
			a:       MustRect(0, 10),
			b:       MustRect(3, 5),
			want:    []Rect{MustRect(0, 3), MustRect(5, 10)},
		},
		{
			name:    "real touching boxes are disjoint",
			lattice: Real,
			a:       MustRect(0, 1, 0, 1),
			b:       MustRect(1, 2, 0, 1),
			want:    []Rect{MustRect(0, 1, 0, 1)},
		},
		{
			name:    "integer touching boxes overlap",
			lattice: Integer,
			a:       MustRect(0, 1),
			b:       MustRect(1, 2),
			want:    []Rect{MustRect(0, 0)},
		},
		{
			name:    "enclosed is removed",
			lattice: Real,
			a:       MustRect(1, 2, 1, 2),
			b:       MustRect(0, 3, 0, 3),
			want:    nil,
		},
		{
			name:    "corner overlap",
			lattice: Real,
			a:       MustRect(0, 2, 0, 2),
			b:       MustRect(1, 3, 1, 3),
			want:    []Rect{MustRect(0, 1, 0, 2), MustRect(1, 2, 0, 1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Subtract(tt.lattice, tt.b)
			require.Len(t, got, len(tt.want))
			for i := range got {
				assert.True(t, tt.want[i].Same(got[i]), "got %s want %s", got[i], tt.want[i])
			}
		})
	}
}

func TestRect_Merge(t *testing.T) {
	m, ok := MustRect(0, 1, 0, 1).Merge(Real, MustRect(1, 2, 0, 1))
	require.True(t, ok)
	assert.True(t, MustRect(0, 2, 0, 1).Same(m))

	_, ok = MustRect(0, 1, 0, 1).Merge(Real, MustRect(1, 2, 0, 2))
	assert.False(t, ok, "boxes differing in two dimensions")

	m, ok = MustRect(0, 3).Merge(Integer, MustRect(4, 6))
	require.True(t, ok, "adjacent integer ranges")
	assert.True(t, MustRect(0, 6).Same(m))

	_, ok = MustRect(0, 3).Merge(Integer, MustRect(5, 6))
	assert.False(t, ok)

	m, ok = MustRect(0, 3, 0, 3).Merge(Real, MustRect(1, 2, 1, 2))
	require.True(t, ok, "enclosure")
	assert.True(t, MustRect(0, 3, 0, 3).Same(m))
}

func TestRect_Volume(t *testing.T) {
	r := MustRect(0, 2, 1, 4)
	assert.Equal(t, 6.0, r.Volume(Real))
	assert.Equal(t, 12.0, r.Volume(Integer))
	assert.True(t, MustRect(1, 1).Empty(Real))
	assert.False(t, MustRect(1, 1).Empty(Integer))
}

func TestRectSolver_AlgebraLaws(t *testing.T) {
	s, err := NewRectSolver(Real, MustRect(0, 2, 0, 2))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(11))
	points := samplePoints()

	for i := 0; i < 40; i++ {
		a, b := randomRects(rng, s, 3), randomRects(rng, s, 3)

		and, or, notA := s.And(a, b), s.Or(a, b), s.Not(a)
		for _, p := range points {
			assert.Equal(t, member(a, p) && member(b, p), member(and, p), "and at %v", p)
			assert.Equal(t, member(a, p) || member(b, p), member(or, p), "or at %v", p)
			assert.Equal(t, !member(a, p), member(notA, p), "not at %v", p)
		}

		assert.False(t, s.IsSat(s.And(a, s.Not(a))), "a∧¬a = ff")
		assert.True(t, s.Equal(s.Or(a, s.Not(a)), s.TT()), "a∨¬a = tt")
		assert.True(t, s.Equal(s.Not(s.Not(a)), a), "¬¬a = a")
		assert.Equal(t, s.IsSat(s.And(a, s.Not(b))), s.AndNot(a, b), "andNot agrees with a∧¬b")
		assert.True(t, s.Equal(s.Minimize(or), or), "minimize preserves meaning")
	}
}

func TestRectSolver_IntegerLatticeLaws(t *testing.T) {
	s, err := NewRectSolver(Integer, MustRect(0, 9, 0, 9))
	require.NoError(t, err)
	a := s.Or(s.Box(0, 3, 0, 3), s.Box(5, 9, 2, 2))

	assert.False(t, s.IsSat(s.And(a, s.Not(a))))
	assert.True(t, s.Equal(s.Or(a, s.Not(a)), s.TT()))
	assert.Equal(t, 16.0+5.0, s.Cardinality(a))
	assert.Equal(t, 100.0-21.0, s.Cardinality(s.Minimize(s.Not(a))))
}

func TestRectSolver_MinimizeMerges(t *testing.T) {
	s, err := NewRectSolver(Real, MustRect(0, 4, 0, 1))
	require.NoError(t, err)
	parts := RectSet{MustRect(0, 1, 0, 1), MustRect(1, 2, 0, 1), MustRect(2, 3, 0, 1), MustRect(3, 4, 0, 1)}

	got := s.Minimize(parts)
	require.Len(t, got, 1)
	assert.True(t, got[0].Same(s.Bound()))
}

func TestRectSolver_OrGuardsMinimize(t *testing.T) {
	s, err := NewRectSolver(Real, MustRect(0, 100))
	require.NoError(t, err)

	var acc RectSet
	for i := 0; i < 8; i++ {
		acc = s.Or(acc, s.Box(float64(i), float64(i)+1))
	}
	assert.Len(t, acc, 8, "below the watermark boxes are only concatenated")

	acc = s.Or(acc, s.Box(8, 9))
	assert.Len(t, acc, 1, "past the watermark the union is minimized")
}

func TestRectSolver_ShortCircuits(t *testing.T) {
	s, err := NewRectSolver(Real, MustRect(0, 1, 0, 1))
	require.NoError(t, err)
	a := s.Box(0, 0.5, 0, 0.5)

	assert.True(t, s.Equal(s.And(a, s.TT()), a))
	assert.True(t, s.Equal(s.Or(a, s.TT()), s.TT()))
	assert.False(t, s.IsSat(s.And(a, s.FF())))
	assert.False(t, s.AndNot(a, s.TT()))
	assert.True(t, s.AndNot(a, s.FF()))
	assert.False(t, s.AndNot(s.FF(), a))
	assert.Nil(t, s.Box(2, 3, 0, 1), "boxes outside the bound are empty")
}

func TestRectSolver_SerializeRoundTrip(t *testing.T) {
	s, err := NewRectSolver(Real, MustRect(0, 2, 0, 2))
	require.NoError(t, err)
	a := s.Or(s.Box(0, 1, 0, 1), s.Box(1.5, 2, 0.25, 0.75))

	data, err := s.Serialize(a)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 2}, data[:4], "big-endian box count")

	got, err := s.Deserialize(data)
	require.NoError(t, err)
	assert.True(t, s.Equal(a, got))

	empty, err := s.Serialize(s.FF())
	require.NoError(t, err)
	got, err = s.Deserialize(empty)
	require.NoError(t, err)
	assert.False(t, s.IsSat(got))

	oneDim, err := NewRectSolver(Real, MustRect(0, 1))
	require.NoError(t, err)
	_, err = oneDim.Deserialize(data)
	assert.ErrorIs(t, err, ErrDomainMismatch)

	_, err = s.Deserialize(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestRectSolver_TransferTo(t *testing.T) {
	s, _ := NewRectSolver(Real, MustRect(0, 1))
	same, _ := NewRectSolver(Real, MustRect(0, 1))
	integer, _ := NewRectSolver(Integer, MustRect(0, 1))
	a := s.Box(0, 0.5)

	got, err := s.TransferTo(a, same)
	require.NoError(t, err)
	assert.True(t, same.Equal(a, got))

	_, err = s.TransferTo(a, integer)
	assert.ErrorIs(t, err, ErrDomainMismatch)
}

func TestRectSolver_Split(t *testing.T) {
	s, err := NewRectSolver(Real, MustRect(0, 2, 0, 2))
	require.NoError(t, err)
	a := s.Or(s.Box(0, 1, 0, 1), s.Box(1, 2, 1, 2))

	masks := s.Split(a)
	require.Len(t, masks, 4)
	var cover RectSet
	for i, m := range masks {
		cover = s.Or(cover, m)
		for j := i + 1; j < len(masks); j++ {
			assert.False(t, s.IsSat(s.And(m, masks[j])), "masks %d and %d overlap", i, j)
		}
	}
	assert.False(t, s.AndNot(a, cover), "masks cover the set")

	is, err := NewRectSolver(Integer, MustRect(0, 0, 0, 3))
	require.NoError(t, err)
	assert.Len(t, is.Split(is.TT()), 2, "single-point dimensions are not cut")
}

func TestParseLattice(t *testing.T) {
	l, err := ParseLattice("integer")
	require.NoError(t, err)
	assert.Equal(t, Integer, l)

	l, err = ParseLattice("")
	require.NoError(t, err)
	assert.Equal(t, Real, l)

	_, err = ParseLattice("complex")
	assert.Error(t, err)
}
