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

import (
	"context"
	"fmt"
	"log/slog"
)

// ComponentHook receives every terminal component as a state to
// parameters map. It runs on a single goroutine, never concurrently with
// itself.
type ComponentHook[P any] func(component map[int]P)

// hookRelay delivers components from workers to the hook through a
// bounded channel drained by one goroutine.
type hookRelay[P any] struct {
	hook   ComponentHook[P]
	ch     chan map[int]P
	done   chan struct{}
	err    error
	logger *slog.Logger
}

func startHookRelay[P any](hook ComponentHook[P], buffer int, logger *slog.Logger) *hookRelay[P] {
	r := &hookRelay[P]{
		hook:   hook,
		ch:     make(chan map[int]P, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.loop()
	return r
}

func (r *hookRelay[P]) loop() {
	defer close(r.done)
	for component := range r.ch {
		if r.err != nil {
			continue
		}
		r.deliver(component)
	}
}

func (r *hookRelay[P]) deliver(component map[int]P) {
	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("%w: %v", ErrHookPanicked, p)
			r.logger.Error("component hook panicked", slog.Any("panic", p))
		}
	}()
	r.hook(component)
}

// send blocks while the buffer is full, unless ctx is cancelled.
func (r *hookRelay[P]) send(ctx context.Context, component map[int]P) error {
	select {
	case r.ch <- component:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting components and waits for the hook to finish.
// No send may be in flight.
func (r *hookRelay[P]) close() error {
	close(r.ch)
	<-r.done
	return r.err
}
