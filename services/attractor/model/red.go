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
	"math"

	"github.com/AleutianAI/attractor/services/attractor/interval"
	"github.com/AleutianAI/attractor/services/attractor/params"
	"github.com/AleutianAI/attractor/services/attractor/system"
)

// REDConstants are the network constants of the RED (random early
// detection) queue model.
type REDConstants struct {
	B    float64 `yaml:"b" validate:"gt=0"`      // buffer size
	QL   float64 `yaml:"q_low" validate:"gte=0"` // queue length where dropping starts
	QU   float64 `yaml:"q_high" validate:"gtfield=QL"`
	M    float64 `yaml:"m" validate:"gt=0"` // packet size
	PMax float64 `yaml:"p_max" validate:"gt=0,lte=1"`
	N    float64 `yaml:"n" validate:"gt=0"` // number of flows
	D    float64 `yaml:"d" validate:"gt=0"` // propagation delay
	C    float64 `yaml:"c" validate:"gt=0"` // link capacity
	K    float64 `yaml:"k" validate:"gt=0"`
}

// DefaultREDConstants returns the standard RED set-up.
func DefaultREDConstants() REDConstants {
	return REDConstants{
		B:    3750,
		QL:   250,
		QU:   750,
		M:    4000,
		PMax: 0.1,
		N:    250,
		D:    0.1,
		C:    75e6,
		K:    math.Sqrt(1.5),
	}
}

// REDConfig describes the RED model parametrised by the averaging weight.
type REDConfig struct {
	Constants REDConstants `yaml:"constants"`

	// QueueMin and QueueMax bound the averaged queue length.
	QueueMin float64 `yaml:"queue_min" validate:"gte=0"`
	QueueMax float64 `yaml:"queue_max" validate:"gtfield=QueueMin"`

	// States is the number of equal queue intervals.
	States int `yaml:"states" validate:"gte=1"`

	// WeightMin and WeightMax bound the parameter w.
	WeightMin float64 `yaml:"weight_min" validate:"gte=0"`
	WeightMax float64 `yaml:"weight_max" validate:"gtfield=WeightMin,lte=1"`

	// Places is the number of decimal places edge bounds are rounded
	// outward to.
	Places int `yaml:"places" validate:"gte=0"`
}

// DefaultREDConfig returns the weight model over queue lengths 300 to 600
// and weights 0.1 to 0.2.
func DefaultREDConfig() REDConfig {
	return REDConfig{
		Constants: DefaultREDConstants(),
		QueueMin:  300,
		QueueMax:  600,
		States:    300,
		WeightMin: 0.1,
		WeightMax: 0.2,
		Places:    3,
	}
}

// Validate checks the struct tags and that the queue range fits the
// buffer.
func (c REDConfig) Validate() error {
	if err := fileValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	if c.QueueMax > c.Constants.B {
		return fmt.Errorf("%w: queue max %g exceeds buffer %g", ErrInvalidModel, c.QueueMax, c.Constants.B)
	}
	return nil
}

// NewRED builds the RED weight model.
//
// Description:
//
//	The averaged queue evolves as q' = (1-w)·q + w·next(drop(q)), where
//	drop is the non-decreasing drop probability and next the
//	non-increasing queue length it induces. For a state Q and successor
//	Q', the weights that allow the step are
//
//	    w = (Q' - Q) / (next(drop(Q)) - Q)
//
//	evaluated in interval arithmetic, intersected with the weight range
//	and rounded outward. Division through zero widens instead of
//	failing, so the result over-approximates the true weight set.
//
// Outputs:
//
//	*Model[params.RectSet] - One-dimensional real parameter model.
//	error - ErrInvalidModel for a bad config, ErrEscapes when some state
//	    can jump out of the queue range.
func NewRED(cfg REDConfig) (*Model[params.RectSet], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	solver, err := params.NewRectSolver(params.Real, params.MustRect(cfg.WeightMin, cfg.WeightMax))
	if err != nil {
		return nil, err
	}
	dyn := newREDDynamics(cfg.Constants)
	weight := interval.Must(cfg.WeightMin, cfg.WeightMax)
	space := interval.Must(cfg.QueueMin, cfg.QueueMax)

	thresholds := make([]float64, cfg.States+1)
	step := (cfg.QueueMax - cfg.QueueMin) / float64(cfg.States)
	for i := range thresholds {
		thresholds[i] = cfg.QueueMin + step*float64(i)
	}
	thresholds[cfg.States] = cfg.QueueMax
	queues := make([]interval.Interval, cfg.States)
	states := make([]State, cfg.States)
	for i := range queues {
		queues[i] = interval.Must(thresholds[i], thresholds[i+1])
		states[i] = State{Bounds: [][2]float64{{thresholds[i], thresholds[i+1]}}}
	}

	b := system.NewBuilder[params.RectSet](solver, cfg.States)
	for from, q := range queues {
		next := dyn.nextQueueOf(q)
		image := interval.Point(1).Sub(weight).Mul(q).Add(weight.Mul(next))
		if image.Lo < space.Lo || image.Hi > space.Hi {
			return nil, fmt.Errorf("%w: state %v maps to %v", ErrEscapes, q, image)
		}
		denominator := interval.Box{next.Sub(q)}
		for to, target := range queues {
			quotients, err := interval.Box{target.Sub(q)}.Div(denominator)
			if err != nil {
				return nil, err
			}
			bound := solver.FF()
			for _, w := range quotients {
				clipped, ok := w.Intersect(interval.Box{weight})
				if !ok {
					continue
				}
				r := clipped.RoundTo(cfg.Places)
				bound = solver.Or(bound, solver.Box(r[0].Lo, r[0].Hi))
			}
			if err := b.AddEdge(from, to, bound); err != nil {
				return nil, err
			}
		}
	}
	ts, err := b.Build()
	if err != nil {
		return nil, err
	}

	return &Model[params.RectSet]{
		Name:       "red-weight",
		Domain:     DomainRect,
		Variables:  []Variable{{Name: "queue", Thresholds: thresholds}},
		Parameters: []Parameter{{Name: "w", Min: cfg.WeightMin, Max: cfg.WeightMax}},
		States:     states,
		Solver:     solver,
		System:     ts,
	}, nil
}

// redDynamics evaluates the point dynamics of the RED queue.
type redDynamics struct {
	REDConstants
	pL, pU float64
}

func newREDDynamics(c REDConstants) redDynamics {
	return redDynamics{
		REDConstants: c,
		pL:           math.Pow(c.N*c.M*c.K/(c.D*c.C+c.B*c.M), 2),
		pU:           math.Pow(c.N*c.M*c.K/(c.D*c.C), 2),
	}
}

// dropProbability is non-decreasing in q.
func (d redDynamics) dropProbability(q float64) float64 {
	switch {
	case q <= d.QL:
		return 0
	case q <= d.QU:
		return (q - d.QL) / (d.QU - d.QL) * d.PMax
	default:
		return 1
	}
}

// nextQueue is non-increasing in p.
func (d redDynamics) nextQueue(p float64) float64 {
	switch {
	case p <= d.pL:
		return d.B
	case p <= d.pU:
		return d.N*d.K/math.Sqrt(p) - d.C*d.D/d.M
	default:
		return 0
	}
}

// average is one step of the averaged queue for a fixed weight.
func (d redDynamics) average(q, w float64) float64 {
	return (1-w)*q + w*d.nextQueue(d.dropProbability(q))
}

// nextQueueOf bounds nextQueue over every queue length in q.
func (d redDynamics) nextQueueOf(q interval.Interval) interval.Interval {
	return q.MapIncreasing(d.dropProbability).MapDecreasing(d.nextQueue)
}
