// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scheduler runs units of work on a fixed pool of goroutines with
// an unbounded FIFO queue.
//
// Units may submit further units while they run. Submission never blocks
// on a busy pool, which is what lets recursive work fan out without
// deadlocking. Drain waits until every submitted unit, including ones
// submitted during the drain, has finished.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrClosed is the cancellation cause once Close has been called.
	ErrClosed = errors.New("scheduler closed")

	// ErrUnitPanicked wraps a panic recovered from a unit.
	ErrUnitPanicked = errors.New("unit panicked")

	// ErrInvalidWorkers indicates a worker count below one.
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
)

// =============================================================================
// Types
// =============================================================================

// Unit is one piece of work. The context is cancelled when the scheduler
// fails or is closed.
type Unit func(ctx context.Context) error

// Handle tracks one submitted unit.
type Handle struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newHandle() *Handle { return &Handle{done: make(chan struct{})} }

// finish completes the handle once and reports whether this call did it.
func (h *Handle) finish(err error) bool {
	finished := false
	h.once.Do(func() {
		h.err = err
		close(h.done)
		finished = true
	})
	return finished
}

// Done is closed when the unit has finished or been abandoned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the unit's error. Only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the unit finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config controls a Scheduler.
type Config struct {
	// Workers is the number of goroutines executing units.
	Workers int

	// Name labels metrics and logs. Defaults to "default".
	Name string

	// Logger receives lifecycle and failure logs. Defaults to slog.Default.
	Logger *slog.Logger

	// ProgressInterval is the least time between two debug progress logs.
	// Defaults to one second.
	ProgressInterval time.Duration
}

type task struct {
	unit   Unit
	handle *Handle
}

// Scheduler executes units on Config.Workers goroutines.
//
// Description:
//
//	A dispatcher goroutine owns the pending queue and hands units to idle
//	workers one at a time. The first unit error cancels the scheduler
//	context, stops the workers, and completes every queued unit with that
//	error so nothing waits forever.
//
// Thread Safety:
//
//	Submit, Pending and Drain are safe for concurrent use. Close is
//	idempotent.
type Scheduler struct {
	name   string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	group  *errgroup.Group

	submitCh chan *task
	workCh   chan *task

	mu      sync.Mutex
	pending []*Handle

	outstanding atomic.Int64
	progress    *rate.Sometimes

	failMu  sync.Mutex
	failure error

	closeOnce sync.Once
	closeErr  error
}

// New starts a scheduler. Cancelling ctx has the same effect as a unit
// failure with ctx's error.
func New(ctx context.Context, cfg Config) (*Scheduler, error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Workers)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}

	base, cancel := context.WithCancelCause(ctx)
	group, gctx := errgroup.WithContext(base)
	s := &Scheduler{
		name:     cfg.Name,
		logger:   cfg.Logger.With(slog.String("scheduler", cfg.Name)),
		ctx:      gctx,
		cancel:   cancel,
		group:    group,
		submitCh: make(chan *task),
		workCh:   make(chan *task),
		progress: &rate.Sometimes{Interval: cfg.ProgressInterval},
	}
	group.Go(s.dispatch)
	for i := 0; i < cfg.Workers; i++ {
		group.Go(s.work)
	}
	workersGauge.WithLabelValues(s.name).Set(float64(cfg.Workers))
	s.logger.Debug("scheduler started", slog.Int("workers", cfg.Workers))
	return s, nil
}

// Submit enqueues unit and returns its handle. It never waits for a free
// worker. After a failure or Close the handle completes immediately with
// the failure cause.
func (s *Scheduler) Submit(unit Unit) *Handle {
	h := newHandle()
	s.mu.Lock()
	s.pending = append(s.pending, h)
	s.mu.Unlock()
	s.outstanding.Add(1)
	submittedTotal.WithLabelValues(s.name).Inc()

	select {
	case s.submitCh <- &task{unit: unit, handle: h}:
	case <-s.ctx.Done():
		s.complete(h, s.cause())
	}
	return h
}

// Pending returns the number of submitted units that have not finished.
func (s *Scheduler) Pending() int {
	return int(s.outstanding.Load())
}

// Drain waits for every submitted unit to finish, oldest first, and keeps
// waiting while running units submit more. It returns the first unit error
// it meets, or ctx's error.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return nil
		}
		h := s.pending[0]
		s.mu.Unlock()

		if err := h.Wait(ctx); err != nil {
			return err
		}

		s.mu.Lock()
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()
	}
}

// Close cancels outstanding work and waits for every goroutine to exit.
// It returns the first unit error, if any.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.cancel(ErrClosed)
		s.closeErr = s.group.Wait()
		workersGauge.WithLabelValues(s.name).Set(0)
		s.logger.Debug("scheduler closed", slog.Any("error", s.closeErr))
	})
	return s.closeErr
}

// dispatch moves tasks from the submit channel into a FIFO slice and feeds
// them to workers. Tasks still queued on shutdown are completed with the
// failure cause.
func (s *Scheduler) dispatch() error {
	var queue []*task
	defer func() {
		cause := s.cause()
		for _, t := range queue {
			s.complete(t.handle, cause)
		}
		queueDepth.WithLabelValues(s.name).Set(0)
	}()

	for {
		var out chan *task
		var next *task
		if len(queue) > 0 {
			out = s.workCh
			next = queue[0]
		}
		select {
		case t := <-s.submitCh:
			queue = append(queue, t)
		case out <- next:
			queue[0] = nil
			queue = queue[1:]
		case <-s.ctx.Done():
			return nil
		}
		queueDepth.WithLabelValues(s.name).Set(float64(len(queue)))
	}
}

func (s *Scheduler) work() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case t := <-s.workCh:
			if s.ctx.Err() != nil {
				s.complete(t.handle, s.cause())
				return nil
			}
			start := time.Now()
			err := s.run(t.unit)
			unitDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
			if err != nil {
				s.fail(err)
				s.complete(t.handle, err)
				return err
			}
			s.complete(t.handle, nil)
		}
	}
}

func (s *Scheduler) run(unit Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnitPanicked, r)
			s.logger.Error("unit panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	return unit(s.ctx)
}

func (s *Scheduler) complete(h *Handle, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if h.finish(err) {
		left := s.outstanding.Add(-1)
		completedTotal.WithLabelValues(s.name, outcome).Inc()
		s.progress.Do(func() {
			s.logger.Debug("scheduler progress", slog.Int64("pending", left))
		})
	}
}

// fail records the first unit error.
func (s *Scheduler) fail(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.failure != nil {
		return
	}
	s.failure = err
	s.logger.Warn("unit failed, cancelling scheduler", slog.String("error", err.Error()))
}

// cause is the error handed to units abandoned by a shutdown.
func (s *Scheduler) cause() error {
	s.failMu.Lock()
	first := s.failure
	s.failMu.Unlock()
	if first != nil {
		return first
	}
	if c := context.Cause(s.ctx); c != nil {
		return c
	}
	return ErrClosed
}
