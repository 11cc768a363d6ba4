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

import "errors"

// Sentinel errors for parameter algebra operations.
var (
	// ErrDomainMismatch indicates two tokens or solvers describe different
	// parameter domains.
	ErrDomainMismatch = errors.New("parameter domain mismatch")

	// ErrInvalidDimension indicates a coordinate list that is empty or has
	// an odd number of entries.
	ErrInvalidDimension = errors.New("invalid rectangle dimension")

	// ErrInvertedBounds indicates a lower bound above its upper bound.
	ErrInvertedBounds = errors.New("inverted bounds")

	// ErrInvalidSize indicates a non-positive universe size.
	ErrInvalidSize = errors.New("invalid universe size")

	// ErrCorruptData indicates serialized bytes that cannot be decoded.
	ErrCorruptData = errors.New("corrupt parameter data")
)
