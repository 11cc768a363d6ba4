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
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Axis is one named parameter sampled at a fixed list of values.
type Axis struct {
	Name   string
	Values []float64
}

// Steps returns an axis of n evenly spaced values from lo to hi inclusive.
func Steps(name string, lo, hi float64, n int) Axis {
	if n <= 1 {
		return Axis{Name: name, Values: []float64{lo}}
	}
	values := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range values {
		values[i] = lo + step*float64(i)
	}
	values[n-1] = hi
	return Axis{Name: name, Values: values}
}

// Grid is a BitsetSolver whose valuations are the points of the cartesian
// product of its axes. The last axis varies fastest.
type Grid struct {
	*BitsetSolver
	axes    []Axis
	strides []int
}

// NewGrid builds the grid spanned by axes.
func NewGrid(axes ...Axis) (*Grid, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("%w: grid needs at least one axis", ErrInvalidSize)
	}
	seen := make(map[string]struct{}, len(axes))
	strides := make([]int, len(axes))
	size := 1
	for i := len(axes) - 1; i >= 0; i-- {
		a := axes[i]
		if a.Name == "" {
			return nil, errors.New("grid axis must be named")
		}
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("duplicate grid axis %q", a.Name)
		}
		seen[a.Name] = struct{}{}
		if len(a.Values) == 0 {
			return nil, fmt.Errorf("%w: axis %q has no values", ErrInvalidSize, a.Name)
		}
		strides[i] = size
		size *= len(a.Values)
	}
	solver, err := NewBitsetSolver(size)
	if err != nil {
		return nil, err
	}
	return &Grid{BitsetSolver: solver, axes: axes, strides: strides}, nil
}

// Axes returns the grid axes.
func (g *Grid) Axes() []Axis { return g.axes }

// Point returns the coordinates of valuation index.
func (g *Grid) Point(index int) []float64 {
	point := make([]float64, len(g.axes))
	for i, a := range g.axes {
		point[i] = a.Values[(index/g.strides[i])%len(a.Values)]
	}
	return point
}

// Env returns valuation index as a name to value map.
func (g *Grid) Env(index int) map[string]any {
	env := make(map[string]any, len(g.axes))
	for i, v := range g.Point(index) {
		env[g.axes[i].Name] = v
	}
	return env
}

// Select returns the valuations for which keep returns true. The first
// error returned by keep aborts the scan.
func (g *Grid) Select(keep func(index int, point []float64) (bool, error)) (*bitset.BitSet, error) {
	b := bitset.New(uint(g.Size()))
	for i := 0; i < g.Size(); i++ {
		ok, err := keep(i, g.Point(i))
		if err != nil {
			return nil, err
		}
		if ok {
			b.Set(uint(i))
		}
	}
	return b, nil
}

// Points lists the coordinates of every valuation in a.
func (g *Grid) Points(a *bitset.BitSet) [][]float64 {
	members := g.Members(a)
	out := make([][]float64, len(members))
	for i, m := range members {
		out[i] = g.Point(m)
	}
	return out
}
