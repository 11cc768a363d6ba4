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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for decomposition.
var (
	tracer = otel.Tracer("attractor.engine")
	meter  = otel.Meter("attractor.engine")
)

// Metrics for decomposition runs.
var (
	decomposeLatency metric.Float64Histogram
	decomposeTotal   metric.Int64Counter
	unitsTotal       metric.Int64Counter
	componentsTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		decomposeLatency, err = meter.Float64Histogram(
			"attractor_decompose_duration_seconds",
			metric.WithDescription("Duration of decomposition runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		decomposeTotal, err = meter.Int64Counter(
			"attractor_decompose_total",
			metric.WithDescription("Total number of decomposition runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unitsTotal, err = meter.Int64Counter(
			"attractor_units_total",
			metric.WithDescription("Total units of work executed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		componentsTotal, err = meter.Int64Counter(
			"attractor_components_total",
			metric.WithDescription("Total terminal components discovered"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startDecomposeSpan starts the span wrapping one Decompose call.
func startDecomposeSpan(ctx context.Context, states, parallelism int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.Decompose",
		trace.WithAttributes(
			attribute.Int("attractor.states", states),
			attribute.Int("attractor.parallelism", parallelism),
		),
	)
}

// finishDecomposeSpan records the outcome on span.
func finishDecomposeSpan(span trace.Span, stats Stats, err error) {
	span.SetAttributes(
		attribute.Int64("attractor.units", stats.Units),
		attribute.Int64("attractor.components", stats.Components),
		attribute.Int("attractor.levels", stats.Levels),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// recordDecomposeMetrics records metrics for a finished run.
func recordDecomposeMetrics(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	decomposeLatency.Record(ctx, duration.Seconds(), attrs)
	decomposeTotal.Add(ctx, 1, attrs)
}

func recordUnit(ctx context.Context, kind string) {
	if err := initMetrics(); err != nil {
		return
	}
	unitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func recordComponent(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	componentsTotal.Add(ctx, 1)
}
