// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package events carries export progress from the session to one consumer.
package events

// Kind distinguishes the event shapes on a stream.
type Kind string

const (
	KindPhase    Kind = "phase"
	KindProgress Kind = "progress"
	KindTerminal Kind = "terminal"
)

// Phase is a stage of an export. Phases only move forward.
type Phase string

const (
	PhaseProbing    Phase = "probing"
	PhasePlanning   Phase = "planning"
	PhaseRendering  Phase = "rendering"
	PhaseFinalizing Phase = "finalizing"
)

func (p Phase) order() int {
	switch p {
	case PhaseProbing:
		return 1
	case PhasePlanning:
		return 2
	case PhaseRendering:
		return 3
	case PhaseFinalizing:
		return 4
	default:
		return 0
	}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p.order() > 0 }

// Result is the terminal payload of a stream.
type Result struct {
	State          string `json:"state"`
	Reason         string `json:"reason,omitempty"`
	OutputLocation string `json:"outputLocation,omitempty"`
	DurationMs     int64  `json:"durationMs,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Event is one message on a stream.
type Event struct {
	SessionID    string  `json:"sessionId"`
	Kind         Kind    `json:"kind"`
	Phase        Phase   `json:"phase,omitempty"`
	Progress     float64 `json:"progress"`
	SegmentIndex int     `json:"currentSegmentIndex"`
	Result       *Result `json:"result,omitempty"`
}

// Terminal reports whether e is the final event of its stream.
func (e Event) Terminal() bool { return e.Kind == KindTerminal }
