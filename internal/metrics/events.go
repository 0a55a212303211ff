// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var EventsCoalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reelforge_events_coalesced_total",
	Help: "Total number of progress ticks replaced by a newer tick before delivery",
}, []string{"phase"})

// IncEventCoalesced records a progress tick superseded before the consumer read it.
func IncEventCoalesced(phase string) {
	if phase == "" {
		phase = "unknown"
	}
	EventsCoalescedTotal.WithLabelValues(phase).Inc()
}
