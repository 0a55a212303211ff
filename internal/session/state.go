// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import "fmt"

// State is the lifecycle state of an export session.
type State int

const (
	StateIdle State = iota
	StateProbing
	StatePlanning
	StateRendering
	StateFinalizing
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StatePlanning:
		return "planning"
	case StateRendering:
		return "rendering"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateCancelled; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// TransitionEvent describes a state transition trigger.
type TransitionEvent int

const (
	EventStart TransitionEvent = iota
	EventProbed
	EventPlanned
	EventRendered
	EventPublished
	EventFail
	EventCancel
	EventReset
)

// CanTransition validates if a state transition is legal.
func CanTransition(from State, event TransitionEvent) bool {
	switch from {
	case StateIdle:
		return event == EventStart
	case StateProbing:
		return event == EventProbed || event == EventFail || event == EventCancel
	case StatePlanning:
		return event == EventPlanned || event == EventFail || event == EventCancel
	case StateRendering:
		return event == EventRendered || event == EventFail || event == EventCancel
	case StateFinalizing:
		return event == EventPublished || event == EventFail || event == EventCancel
	default:
		return event == EventReset
	}
}

// Transition returns the new state given a valid transition event.
// Returns the original state if transition is invalid.
func Transition(from State, event TransitionEvent) State {
	if !CanTransition(from, event) {
		return from
	}

	switch event {
	case EventStart:
		return StateProbing
	case EventProbed:
		return StatePlanning
	case EventPlanned:
		return StateRendering
	case EventRendered:
		return StateFinalizing
	case EventPublished:
		return StateCompleted
	case EventFail:
		return StateFailed
	case EventCancel:
		return StateCancelled
	case EventReset:
		return StateIdle
	default:
		return from
	}
}
