// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package params provides the boolean algebras used to describe sets of
// parameter valuations.
//
// A parameter set is an opaque token P produced and consumed by a Solver[P].
// Two implementations ship with the package:
//
//   - BitsetSolver: a finite universe of N indexed valuations, one bit each.
//   - RectSolver: finite unions of axis-aligned hyperrectangles inside a
//     bounding box, over either a real or an integer lattice.
//
// Tokens are immutable from the caller's point of view. Every operation
// returns a fresh token and never modifies its arguments, so tokens can be
// shared freely between goroutines.
package params

// Solver is the boolean algebra over parameter sets of one domain.
//
// Description:
//
//	All operations are pure. Equal is semantic: two tokens with different
//	internal representations that denote the same set are equal.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Solver[P any] interface {
	// TT returns the whole parameter space.
	TT() P

	// FF returns the empty set.
	FF() P

	// And returns the intersection of a and b.
	And(a, b P) P

	// Or returns the union of a and b.
	Or(a, b P) P

	// Not returns the complement of a relative to TT.
	Not(a P) P

	// AndNot reports whether a contains something outside b, that is
	// whether a ∧ ¬b is satisfiable.
	AndNot(a, b P) bool

	// IsSat reports whether a is non-empty.
	IsSat(a P) bool

	// Minimize returns a canonical, possibly smaller representation of a.
	Minimize(a P) P

	// Equal reports whether a and b denote the same set.
	Equal(a, b P) bool

	// Serialize encodes a into bytes that Deserialize accepts.
	Serialize(a P) ([]byte, error)

	// Deserialize decodes a token produced by Serialize on a solver with
	// the same domain.
	Deserialize(data []byte) (P, error)

	// String renders a for humans.
	String(a P) string

	// TransferTo copies a into a token usable by other. It fails with
	// ErrDomainMismatch when the two solvers do not share a domain.
	TransferTo(a P, other Solver[P]) (P, error)
}

// Measurer is implemented by solvers that can estimate the size of a
// parameter set. The pivot heuristic and the splitting scheduler use it.
type Measurer[P any] interface {
	Cardinality(a P) float64
}

// Splitter is implemented by solvers that can cut a parameter set into
// disjoint masks whose union covers it.
type Splitter[P any] interface {
	Split(a P) []P
}

// Union folds Or over values, starting from FF.
func Union[P any](s Solver[P], values ...P) P {
	result := s.FF()
	for _, v := range values {
		result = s.Or(result, v)
	}
	return result
}

// Intersection folds And over values, starting from TT.
func Intersection[P any](s Solver[P], values ...P) P {
	result := s.TT()
	for _, v := range values {
		result = s.And(result, v)
	}
	return result
}

// Subset reports whether a ⊆ b.
func Subset[P any](s Solver[P], a, b P) bool {
	return !s.AndNot(a, b)
}
