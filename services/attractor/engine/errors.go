// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

// Sentinel errors for decomposition.
var (
	// ErrInvalidConfig indicates an engine configuration that fails
	// validation.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrUnitFailed wraps the first error or panic raised by a unit of
	// work. The whole decomposition is abandoned when it occurs.
	ErrUnitFailed = errors.New("decomposition unit failed")

	// ErrHookPanicked indicates the component hook panicked.
	ErrHookPanicked = errors.New("component hook panicked")

	// ErrUniverseMismatch indicates an initial universe built for a
	// different number of states than the system has.
	ErrUniverseMismatch = errors.New("initial universe does not match the system")
)
