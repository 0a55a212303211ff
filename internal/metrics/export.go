// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics holds the Prometheus collectors of the composition engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExportSessionsTotal counts finished export sessions by outcome and reason.
	ExportSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelforge_export_sessions_total",
		Help: "Total number of finished export sessions by outcome",
	}, []string{"outcome", "reason"})

	// ExportActive is 1 while an export session holds the encode pipeline.
	ExportActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelforge_export_active",
		Help: "Number of export sessions currently holding the encode pipeline",
	})

	// ExportRejectedTotal counts start requests rejected because a session was active.
	ExportRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelforge_export_rejected_total",
		Help: "Total number of export starts rejected by the one-active-session rule",
	})

	// ExportDuration tracks wall time of export sessions from start to terminal state.
	ExportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelforge_export_duration_seconds",
		Help:    "Wall time of export sessions",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
	}, []string{"outcome"})
)

// ObserveExport records a terminal export session.
func ObserveExport(outcome, reason string, seconds float64) {
	if outcome == "" {
		outcome = "unknown"
	}
	if reason == "" {
		reason = "none"
	}
	ExportSessionsTotal.WithLabelValues(outcome, reason).Inc()
	ExportDuration.WithLabelValues(outcome).Observe(seconds)
}
