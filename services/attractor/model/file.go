// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"fmt"
	"os"

	"github.com/bits-and-blooms/bitset"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

var fileValidate = validator.New()

// File is the YAML form of a model.
//
//	name: switch
//	domain: grid
//	parameters:
//	  - {name: k, min: 0, max: 1, steps: 11}
//	states:
//	  - {name: off}
//	  - {name: on}
//	edges:
//	  - {from: off, to: on, when: "k > 0.5"}
//	  - {from: on, to: off, when: "k <= 0.5"}
//
// Grid models guard edges with expressions over the parameter names. Rect
// models bound edges with boxes, each a flat [lo0, hi0, lo1, hi1, ...]
// list. An edge with neither is enabled everywhere.
type File struct {
	Name       string          `yaml:"name" validate:"required"`
	Domain     Domain          `yaml:"domain" validate:"required,oneof=grid rect"`
	Lattice    string          `yaml:"lattice" validate:"omitempty,oneof=real integer int"`
	Variables  []VariableSpec  `yaml:"variables" validate:"dive"`
	Parameters []ParameterSpec `yaml:"parameters" validate:"required,min=1,dive"`
	States     []StateSpec     `yaml:"states" validate:"required,min=1,dive"`
	Edges      []EdgeSpec      `yaml:"edges" validate:"dive"`
}

// VariableSpec declares a state variable.
type VariableSpec struct {
	Name       string    `yaml:"name" validate:"required"`
	Thresholds []float64 `yaml:"thresholds"`
}

// ParameterSpec declares a parameter. Grid models sample it either at
// the explicit values or at steps evenly spaced points from min to max.
type ParameterSpec struct {
	Name   string    `yaml:"name" validate:"required"`
	Min    float64   `yaml:"min"`
	Max    float64   `yaml:"max" validate:"gtefield=Min"`
	Steps  int       `yaml:"steps" validate:"gte=0"`
	Values []float64 `yaml:"values"`
}

// StateSpec declares a state.
type StateSpec struct {
	Name   string       `yaml:"name" validate:"required"`
	Bounds [][2]float64 `yaml:"bounds"`
}

// EdgeSpec declares a parametrised edge between two named states.
type EdgeSpec struct {
	From  string      `yaml:"from" validate:"required"`
	To    string      `yaml:"to" validate:"required"`
	When  string      `yaml:"when"`
	Boxes [][]float64 `yaml:"boxes"`
}

// Load reads and validates a model file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a model from YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the struct tags, then cross-field rules: unique state
// names, known edge endpoints and state bounds matching the variables.
func (f *File) Validate() error {
	if err := fileValidate.Struct(f); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	index, err := f.stateIndex()
	if err != nil {
		return err
	}
	for i, s := range f.States {
		if len(s.Bounds) != 0 && len(s.Bounds) != len(f.Variables) {
			return fmt.Errorf("%w: state %q has %d bounds for %d variables",
				ErrInvalidModel, s.Name, len(s.Bounds), len(f.Variables))
		}
		for _, b := range s.Bounds {
			if b[1] < b[0] {
				return fmt.Errorf("%w: state %d bounds %v", params.ErrInvertedBounds, i, b)
			}
		}
	}
	for _, e := range f.Edges {
		if _, ok := index[e.From]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownState, e.From)
		}
		if _, ok := index[e.To]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownState, e.To)
		}
	}
	return nil
}

func (f *File) stateIndex() (map[string]int, error) {
	index := make(map[string]int, len(f.States))
	for i, s := range f.States {
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate state %q", ErrInvalidModel, s.Name)
		}
		index[s.Name] = i
	}
	return index, nil
}

// metadata fills the descriptive fields shared by both domains.
func metadata[P any](f *File) *Model[P] {
	m := &Model[P]{Name: f.Name, Domain: f.Domain}
	for _, v := range f.Variables {
		m.Variables = append(m.Variables, Variable{Name: v.Name, Thresholds: v.Thresholds})
	}
	for _, p := range f.Parameters {
		lo, hi := p.Min, p.Max
		if len(p.Values) > 0 {
			lo, hi = p.Values[0], p.Values[0]
			for _, v := range p.Values {
				lo, hi = min(lo, v), max(hi, v)
			}
		}
		m.Parameters = append(m.Parameters, Parameter{Name: p.Name, Min: lo, Max: hi})
	}
	for _, s := range f.States {
		m.States = append(m.States, State{Name: s.Name, Bounds: s.Bounds})
	}
	return m
}

// BuildGrid builds a grid model. Every guard is compiled once and then
// evaluated at every grid point.
func (f *File) BuildGrid() (*Model[*bitset.BitSet], *params.Grid, error) {
	if f.Domain != DomainGrid {
		return nil, nil, fmt.Errorf("%w: %s model built as grid", ErrWrongDomain, f.Domain)
	}
	axes := make([]params.Axis, len(f.Parameters))
	for i, p := range f.Parameters {
		switch {
		case len(p.Values) > 0:
			axes[i] = params.Axis{Name: p.Name, Values: p.Values}
		case p.Steps > 0:
			axes[i] = params.Steps(p.Name, p.Min, p.Max, p.Steps)
		default:
			return nil, nil, fmt.Errorf("%w: grid parameter %q needs steps or values", ErrInvalidModel, p.Name)
		}
	}
	grid, err := params.NewGrid(axes...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	index, err := f.stateIndex()
	if err != nil {
		return nil, nil, err
	}
	b := system.NewBuilder[*bitset.BitSet](grid, len(f.States))
	for _, e := range f.Edges {
		if len(e.Boxes) > 0 {
			return nil, nil, fmt.Errorf("%w: edge %s -> %s has boxes in a grid model", ErrInvalidModel, e.From, e.To)
		}
		bound, err := guardSet(grid, e.When)
		if err != nil {
			return nil, nil, fmt.Errorf("edge %s -> %s: %w", e.From, e.To, err)
		}
		if err := b.AddEdge(index[e.From], index[e.To], bound); err != nil {
			return nil, nil, err
		}
	}
	ts, err := b.Build()
	if err != nil {
		return nil, nil, err
	}

	m := metadata[*bitset.BitSet](f)
	m.Solver = grid
	m.System = ts
	return m, grid, nil
}

// guardSet evaluates guard at every grid point. An empty guard is TT.
func guardSet(grid *params.Grid, guard string) (*bitset.BitSet, error) {
	if guard == "" {
		return grid.TT(), nil
	}
	program, err := expr.Compile(guard, expr.Env(grid.Env(0)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGuard, err)
	}
	return grid.Select(func(i int, _ []float64) (bool, error) {
		out, err := vm.Run(program, grid.Env(i))
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrGuard, err)
		}
		ok, _ := out.(bool)
		return ok, nil
	})
}

// BuildRect builds a rect model over the box spanned by the parameter
// ranges.
func (f *File) BuildRect() (*Model[params.RectSet], error) {
	if f.Domain != DomainRect {
		return nil, fmt.Errorf("%w: %s model built as rect", ErrWrongDomain, f.Domain)
	}
	lattice, err := params.ParseLattice(f.Lattice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	coords := make([]float64, 0, 2*len(f.Parameters))
	for _, p := range f.Parameters {
		coords = append(coords, p.Min, p.Max)
	}
	bound, err := params.NewRect(coords...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	solver, err := params.NewRectSolver(lattice, bound)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	index, err := f.stateIndex()
	if err != nil {
		return nil, err
	}
	b := system.NewBuilder[params.RectSet](solver, len(f.States))
	for _, e := range f.Edges {
		if e.When != "" {
			return nil, fmt.Errorf("%w: edge %s -> %s has a guard in a rect model", ErrInvalidModel, e.From, e.To)
		}
		set := solver.TT()
		if len(e.Boxes) > 0 {
			set = solver.FF()
			for _, box := range e.Boxes {
				if len(box) != 2*solver.Dim() {
					return nil, fmt.Errorf("%w: edge %s -> %s box %v has %d coordinates, want %d",
						params.ErrInvalidDimension, e.From, e.To, box, len(box), 2*solver.Dim())
				}
				if _, err := params.NewRect(box...); err != nil {
					return nil, fmt.Errorf("edge %s -> %s: %w", e.From, e.To, err)
				}
				set = solver.Or(set, solver.Box(box...))
			}
		}
		if err := b.AddEdge(index[e.From], index[e.To], set); err != nil {
			return nil, err
		}
	}
	ts, err := b.Build()
	if err != nil {
		return nil, err
	}

	m := metadata[params.RectSet](f)
	m.Solver = solver
	m.System = ts
	return m, nil
}
