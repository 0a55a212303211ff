// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ManuGH/reelforge/internal/plan"
	"github.com/ManuGH/reelforge/internal/probe"
	"github.com/ManuGH/reelforge/internal/render"
	"github.com/stretchr/testify/assert"
)

func TestTransition_HappyPath(t *testing.T) {
	s := StateIdle
	for _, ev := range []TransitionEvent{EventStart, EventProbed, EventPlanned, EventRendered, EventPublished, EventReset} {
		next := Transition(s, ev)
		assert.NotEqual(t, s, next, "event %d from %s", ev, s)
		s = next
	}
	assert.Equal(t, StateIdle, s)
}

func TestTransition_CancelAndFailFromEveryActiveState(t *testing.T) {
	for _, st := range []State{StateProbing, StatePlanning, StateRendering, StateFinalizing} {
		assert.Equal(t, StateCancelled, Transition(st, EventCancel), st.String())
		assert.Equal(t, StateFailed, Transition(st, EventFail), st.String())
	}
}

func TestTransition_TerminalStatesOnlyReset(t *testing.T) {
	for _, st := range []State{StateCompleted, StateFailed, StateCancelled} {
		assert.True(t, st.IsTerminal())
		for _, ev := range []TransitionEvent{EventStart, EventProbed, EventPublished, EventFail, EventCancel} {
			assert.False(t, CanTransition(st, ev), "%s on %d", st, ev)
		}
		assert.Equal(t, StateIdle, Transition(st, EventReset))
	}
	assert.False(t, CanTransition(StateIdle, EventCancel))
	assert.False(t, CanTransition(StateProbing, EventRendered))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		kind   string
		reason string
	}{
		{nil, OutcomeCompleted, ""},
		{ErrCancelled, OutcomeCancelled, ""},
		{fmt.Errorf("render: %w", context.Canceled), OutcomeCancelled, ""},
		{&probe.UnreadableMediaError{Path: "/x"}, OutcomeFailed, ReasonUnreadableMedia},
		{&plan.EmptyCompositionError{}, OutcomeFailed, ReasonEmptyComposition},
		{&render.EncodingFailure{Stage: render.StageConcat, Segment: -1}, OutcomeFailed, ReasonEncodingFailure},
		{&render.UnsupportedPlatformError{Platform: "js/wasm"}, OutcomeFailed, ReasonUnsupportedPlatform},
		{&ExportAlreadyInProgressError{ActiveSessionID: "s"}, OutcomeFailed, ReasonAlreadyInProgress},
		{fmt.Errorf("%w: bad", ErrInvalidRequest), OutcomeFailed, ReasonInvalidRequest},
		{errors.New("boom"), OutcomeFailed, ReasonInternal},
	}
	for _, tt := range tests {
		kind, reason := Classify(tt.err)
		assert.Equal(t, tt.kind, kind, "%v", tt.err)
		assert.Equal(t, tt.reason, reason, "%v", tt.err)
	}
}

func TestStateMarshalText(t *testing.T) {
	b, err := StateRendering.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "rendering", string(b))
}

func TestStateUnmarshalText(t *testing.T) {
	var s State
	assert.NoError(t, s.UnmarshalText([]byte("cancelled")))
	assert.Equal(t, StateCancelled, s)
	assert.Error(t, s.UnmarshalText([]byte("paused")))
}
