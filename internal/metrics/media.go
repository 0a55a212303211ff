// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelforge_probe_duration_seconds",
		Help:    "Duration of per-segment metadata probes",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
	})

	ProbeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelforge_probe_failures_total",
		Help: "Total number of probes that failed with unreadable media",
	})

	RenderPartDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelforge_render_part_duration_seconds",
		Help:    "Wall time spent encoding a single composition instruction",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	RenderFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelforge_render_failures_total",
		Help: "Total number of renderer failures by stage",
	}, []string{"stage"})

	FFmpegStallTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelforge_ffmpeg_stall_total",
		Help: "Total number of ffmpeg processes killed by the stall watchdog",
	})
)

// IncRenderFailure records a renderer failure for the given stage.
func IncRenderFailure(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	RenderFailuresTotal.WithLabelValues(stage).Inc()
}
