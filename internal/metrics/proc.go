// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelforge_proc_terminate_total",
		Help: "Signals sent while terminating encoder process groups",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelforge_proc_wait_total",
		Help: "How terminated encoder processes exited",
	}, []string{"result"})
)

func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
