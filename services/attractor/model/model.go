// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model builds parametrised transition systems to decompose.
//
// Two sources are supported: YAML model files (see Load) over either a
// grid of parameter points or a box of real or integer parameters, and
// the built-in RED queue model (see NewRED), whose edges are derived
// with interval arithmetic.
package model

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

// Sentinel errors for model construction.
var (
	// ErrInvalidModel indicates a model file that fails validation.
	ErrInvalidModel = errors.New("invalid model")

	// ErrUnknownState indicates an edge naming a state that does not exist.
	ErrUnknownState = errors.New("unknown state")

	// ErrGuard indicates a guard expression that does not compile or does
	// not evaluate to a boolean.
	ErrGuard = errors.New("invalid guard")

	// ErrWrongDomain indicates a build for a domain the file does not
	// declare.
	ErrWrongDomain = errors.New("wrong parameter domain")

	// ErrEscapes indicates a model state whose image leaves the state
	// space.
	ErrEscapes = errors.New("state image leaves the state space")
)

// Domain names the parameter representation of a model.
type Domain string

const (
	// DomainGrid samples parameters on a finite grid of points.
	DomainGrid Domain = "grid"

	// DomainRect represents parameters as unions of boxes.
	DomainRect Domain = "rect"
)

// Variable is a state variable with the thresholds that cut it into
// state intervals.
type Variable struct {
	Name       string
	Thresholds []float64
}

// Parameter is a named parameter with its range.
type Parameter struct {
	Name string
	Min  float64
	Max  float64
}

// State describes one state of the system.
type State struct {
	Name string

	// Bounds holds one [lo, hi] pair per variable. Empty when the model
	// has no variables.
	Bounds [][2]float64
}

// Model is a transition system together with the metadata needed to
// report its results.
type Model[P any] struct {
	Name       string
	Domain     Domain
	Variables  []Variable
	Parameters []Parameter
	States     []State
	Solver     params.Solver[P]
	System     *system.Explicit[P]
}

// StateName returns the name of state, or its index when unnamed.
func (m *Model[P]) StateName(state int) string {
	if state >= 0 && state < len(m.States) && m.States[state].Name != "" {
		return m.States[state].Name
	}
	return fmt.Sprintf("s%d", state)
}
