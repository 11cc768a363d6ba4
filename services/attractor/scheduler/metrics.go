// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Work Scheduler
// =============================================================================

var (
	// submittedTotal counts units handed to Submit.
	// Labels: scheduler
	submittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attractor",
		Subsystem: "scheduler",
		Name:      "units_submitted_total",
		Help:      "Total units submitted to the scheduler",
	}, []string{"scheduler"})

	// completedTotal counts units that finished or were abandoned.
	// Labels: scheduler, outcome (ok, error)
	completedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attractor",
		Subsystem: "scheduler",
		Name:      "units_completed_total",
		Help:      "Total units completed by outcome",
	}, []string{"scheduler", "outcome"})

	// unitDuration measures how long units run on a worker.
	// Labels: scheduler
	unitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attractor",
		Subsystem: "scheduler",
		Name:      "unit_duration_seconds",
		Help:      "Unit execution time in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"scheduler"})

	// queueDepth is the number of units waiting for a worker.
	// Labels: scheduler
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attractor",
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Units queued and waiting for a worker",
	}, []string{"scheduler"})

	// workersGauge is the size of the worker pool.
	// Labels: scheduler
	workersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "attractor",
		Subsystem: "scheduler",
		Name:      "workers",
		Help:      "Number of running worker goroutines",
	}, []string{"scheduler"})
)
