// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export renders decomposition results as a JSON result set.
//
// The format lists every state and every distinct parameter set once and
// describes each named result as a list of [state index, parameter index]
// pairs into those tables:
//
//	{
//	  "variables": ["queue"],
//	  "parameters": ["w"],
//	  "thresholds": [[300, 310, ...]],
//	  "parameter_bounds": [[0.1, 0.2]],
//	  "states": [{"id": 0, "bounds": [[300, 310]]}],
//	  "type": "rectangular",
//	  "parameter_values": [[[[0.1, 0.15]]]],
//	  "results": [{"formula": "components", "data": [[0, 0]]}]
//	}
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/AleutianAI/attractor/services/attractor/analysis"
	"github.com/AleutianAI/attractor/services/attractor/engine"
	"github.com/AleutianAI/attractor/services/attractor/model"
	"github.com/AleutianAI/attractor/services/attractor/params"
)

// ResultSet is the exported form of one run.
type ResultSet struct {
	Variables       []string       `json:"variables"`
	Parameters      []string       `json:"parameters"`
	Thresholds      [][]float64    `json:"thresholds"`
	ParameterBounds [][2]float64   `json:"parameter_bounds"`
	States          []State        `json:"states"`
	Type            string         `json:"type"`
	ParameterValues []any          `json:"parameter_values"`
	Results         []Result       `json:"results"`
	Stats           map[string]any `json:"stats,omitempty"`
}

// State is one exported state. ID is the state number in the system.
type State struct {
	ID     int          `json:"id"`
	Name   string       `json:"name,omitempty"`
	Bounds [][2]float64 `json:"bounds"`
}

// Result is one named state to parameters mapping.
type Result struct {
	Formula string   `json:"formula"`
	Data    [][2]int `json:"data"`
}

// Encoder turns parameter sets into JSON values.
type Encoder[P any] interface {
	// Type names the encoding in the result set.
	Type() string

	// Encode returns the JSON value for p.
	Encode(p P) any
}

// RectEncoder encodes box unions as lists of boxes, each a list of
// [lo, hi] pairs.
type RectEncoder struct{}

// Type implements Encoder.
func (RectEncoder) Type() string { return "rectangular" }

// Encode implements Encoder.
func (RectEncoder) Encode(p params.RectSet) any {
	boxes := make([][][2]float64, len(p))
	for i, r := range p {
		boxes[i] = r.Bounds()
	}
	return boxes
}

// GridEncoder encodes grid tokens as lists of points.
type GridEncoder struct {
	Grid *params.Grid
}

// Type implements Encoder.
func (GridEncoder) Type() string { return "grid" }

// Encode implements Encoder.
func (e GridEncoder) Encode(p *bitset.BitSet) any {
	return e.Grid.Points(p)
}

// Builder accumulates results over one model. Not safe for concurrent
// use.
type Builder[P any] struct {
	model   *model.Model[P]
	encoder Encoder[P]
	set     ResultSet

	stateIndex map[int]int
	paramIndex map[string]int
}

// NewBuilder starts a result set for m.
func NewBuilder[P any](m *model.Model[P], encoder Encoder[P]) *Builder[P] {
	set := ResultSet{
		Type:            encoder.Type(),
		Variables:       []string{},
		Parameters:      []string{},
		Thresholds:      [][]float64{},
		ParameterBounds: [][2]float64{},
		States:          []State{},
		ParameterValues: []any{},
		Results:         []Result{},
	}
	for _, v := range m.Variables {
		set.Variables = append(set.Variables, v.Name)
		set.Thresholds = append(set.Thresholds, v.Thresholds)
	}
	for _, p := range m.Parameters {
		set.Parameters = append(set.Parameters, p.Name)
		set.ParameterBounds = append(set.ParameterBounds, [2]float64{p.Min, p.Max})
	}
	return &Builder[P]{
		model:      m,
		encoder:    encoder,
		set:        set,
		stateIndex: make(map[int]int),
		paramIndex: make(map[string]int),
	}
}

// Add appends a result named formula holding the entries of every map.
// Parameter sets that serialize identically share one table entry.
func (b *Builder[P]) Add(formula string, maps ...*params.StateMap[P]) error {
	result := Result{Formula: formula, Data: [][2]int{}}
	s := b.model.Solver
	for _, m := range maps {
		for state, p := range m.All() {
			p = s.Minimize(p)
			key, err := s.Serialize(p)
			if err != nil {
				return fmt.Errorf("serialize parameters of state %d: %w", state, err)
			}
			pi, ok := b.paramIndex[string(key)]
			if !ok {
				pi = len(b.set.ParameterValues)
				b.paramIndex[string(key)] = pi
				b.set.ParameterValues = append(b.set.ParameterValues, b.encoder.Encode(p))
			}
			result.Data = append(result.Data, [2]int{b.state(state), pi})
		}
	}
	b.set.Results = append(b.set.Results, result)
	return nil
}

func (b *Builder[P]) state(state int) int {
	if i, ok := b.stateIndex[state]; ok {
		return i
	}
	i := len(b.set.States)
	b.stateIndex[state] = i
	exported := State{ID: state, Bounds: [][2]float64{}}
	if state < len(b.model.States) {
		exported.Name = b.model.States[state].Name
		if bounds := b.model.States[state].Bounds; bounds != nil {
			exported.Bounds = bounds
		}
	}
	b.set.States = append(b.set.States, exported)
	return i
}

// SetStats attaches run statistics.
func (b *Builder[P]) SetStats(stats engine.Stats) {
	b.set.Stats = map[string]any{
		"units":      stats.Units,
		"splits":     stats.Splits,
		"components": stats.Components,
		"levels":     stats.Levels,
		"elapsed_ms": stats.Elapsed.Milliseconds(),
	}
}

// ResultSet returns the accumulated result set.
func (b *Builder[P]) ResultSet() *ResultSet {
	return &b.set
}

// Build exports a full run: one "level <k>" result per non-empty count
// level, the component and sink maps and, when groups is non-nil, the
// stable, oscillation and unstable groups.
func Build[P any](m *model.Model[P], encoder Encoder[P], res *engine.Result[P], groups *analysis.Groups[P]) (*ResultSet, error) {
	type named struct {
		formula string
		m       *params.StateMap[P]
	}
	var results []named
	for i, level := range res.Levels {
		if level.Len() > 0 {
			results = append(results, named{fmt.Sprintf("level %d", i+1), level})
		}
	}
	results = append(results, named{"components", res.Components}, named{"sinks", res.Sinks})
	if groups != nil {
		results = append(results,
			named{"stable", groups.Stable},
			named{"oscillation", groups.Oscillation},
			named{"unstable", groups.Unstable})
	}

	b := NewBuilder(m, encoder)
	for _, r := range results {
		if err := b.Add(r.formula, r.m); err != nil {
			return nil, err
		}
	}
	b.SetStats(res.Stats)
	return b.ResultSet(), nil
}

// Write encodes rs as indented JSON.
func Write(w io.Writer, rs *ResultSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rs)
}

// Read decodes a result set written by Write.
func Read(r io.Reader) (*ResultSet, error) {
	var rs ResultSet
	if err := json.NewDecoder(r).Decode(&rs); err != nil {
		return nil, fmt.Errorf("decode result set: %w", err)
	}
	return &rs, nil
}

// Result returns the result named formula.
func (rs *ResultSet) Result(formula string) (Result, bool) {
	for _, r := range rs.Results {
		if r.Formula == formula {
			return r, true
		}
	}
	return Result{}, false
}
