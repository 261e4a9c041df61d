// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the chatcore
// service.
//
// # Description
//
// Metrics cover the grounded chat pipeline end to end:
//   - Request counters (by endpoint and status)
//   - Request latency histograms
//   - Per-model generation outcomes
//   - Guard fallback and corrupted-citation counters
//   - Active comparison gauge
//   - Dropped analytics events
//
// # Integration
//
// Exposed via the /metrics endpoint. Scrape with Prometheus.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "lodestar"

// Subsystem for chat pipeline metrics
const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for the chat pipeline.
// Initialize once at startup via InitMetrics().
type ChatMetrics struct {
	// RequestsTotal counts chat requests by endpoint and status.
	// Labels: endpoint (chat, compare, select), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures whole-request latency.
	// Labels: endpoint (chat, compare, select)
	RequestDurationSeconds *prometheus.HistogramVec

	// GenerationsTotal counts generation attempts by model and outcome.
	// Labels: model, outcome (success, timeout, rate_limited, error)
	GenerationsTotal *prometheus.CounterVec

	// GuardFallbacksTotal counts answers replaced by the grounding
	// fallback message.
	GuardFallbacksTotal prometheus.Counter

	// CorruptedCitationsTotal counts answers carrying out-of-range
	// citation markers.
	CorruptedCitationsTotal prometheus.Counter

	// ActiveComparisons tracks comparison requests currently in flight.
	ActiveComparisons prometheus.Gauge

	// AnalyticsDroppedTotal counts analytics events discarded because
	// the emitter queue was full.
	AnalyticsDroppedTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all chat pipeline metrics.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "request_duration_seconds",
				Help:      "Whole-request latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		),

		GenerationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "generations_total",
				Help:      "Generation attempts by model and outcome",
			},
			[]string{"model", "outcome"},
		),

		GuardFallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "guard_fallbacks_total",
				Help:      "Answers replaced by the grounding fallback message",
			},
		),

		CorruptedCitationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "corrupted_citations_total",
				Help:      "Answers carrying citation markers outside the context range",
			},
		),

		ActiveComparisons: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_comparisons",
				Help:      "Comparison requests currently in flight",
			},
		),

		AnalyticsDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "analytics_dropped_total",
				Help:      "Analytics events discarded because the queue was full",
			},
		),
	}
	return DefaultMetrics
}

// IncAnalyticsDropped satisfies the analytics emitter's drop counter.
func (m *ChatMetrics) IncAnalyticsDropped() {
	if m == nil {
		return
	}
	m.AnalyticsDroppedTotal.Inc()
}
