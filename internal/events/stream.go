// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package events

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Next once the terminal event has been delivered.
var ErrClosed = errors.New("event stream closed")

// Stream is a single-consumer event queue whose publishers never block.
//
// Progress ticks coalesce: a tick replaces the newest undelivered event when
// that event is a tick of the same phase. Phase changes and the terminal
// event are always delivered, in emission order.
type Stream struct {
	sessionID string
	logger    zerolog.Logger

	mu        sync.Mutex
	queue     []Event
	phase     Phase
	progress  float64
	closed    bool
	delivered bool // terminal event handed to the consumer

	notify  chan struct{}
	pump    sync.Once
	out     chan Event
	abandon chan struct{}
	stop    sync.Once
}

// NewStream creates an empty stream for sessionID.
func NewStream(sessionID string) *Stream {
	return &Stream{
		sessionID: sessionID,
		logger:    log.WithComponent("events").With().Str(log.FieldSessionID, sessionID).Logger(),
		notify:    make(chan struct{}, 1),
		out:       make(chan Event),
		abandon:   make(chan struct{}),
	}
}

// Phase records a phase transition. A transition to an earlier phase or to
// the current phase is ignored.
func (s *Stream) Phase(p Phase, segmentIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enterLocked(p, segmentIndex)
}

func (s *Stream) enterLocked(p Phase, segmentIndex int) bool {
	if s.closed || !p.Valid() {
		return false
	}
	if p.order() <= s.phase.order() {
		if p != s.phase {
			s.logger.Warn().
				Str(log.FieldPhase, string(p)).
				Str("current_phase", string(s.phase)).
				Msg("ignoring phase regression")
		}
		return p == s.phase
	}
	s.phase = p
	s.progress = 0
	s.pushLocked(Event{SessionID: s.sessionID, Kind: KindPhase, Phase: p, SegmentIndex: segmentIndex})
	return true
}

// Progress records a fraction in [0,1] of phase p. Fractions are clamped and
// never move backwards within a phase. A tick for a later phase implies the
// phase transition.
func (s *Stream) Progress(p Phase, fraction float64, segmentIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if p != s.phase && !s.enterLocked(p, segmentIndex) {
		return
	}

	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	if fraction < s.progress {
		fraction = s.progress
	}
	s.progress = fraction

	ev := Event{SessionID: s.sessionID, Kind: KindProgress, Phase: p, Progress: fraction, SegmentIndex: segmentIndex}
	if n := len(s.queue); n > 0 {
		last := &s.queue[n-1]
		if last.Kind == KindProgress && last.Phase == p {
			*last = ev
			metrics.IncEventCoalesced(string(p))
			return
		}
	}
	s.pushLocked(ev)
}

// Close enqueues the terminal event. Only the first call has any effect.
func (s *Stream) Close(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pushLocked(Event{
		SessionID: s.sessionID,
		Kind:      KindTerminal,
		Phase:     s.phase,
		Progress:  s.progress,
		Result:    &res,
	})
}

// Closed reports whether the terminal event has been enqueued.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) pushLocked(ev Event) {
	s.queue = append(s.queue, ev)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available and returns it. After the
// terminal event it returns ErrClosed. Do not mix Next with C.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			if ev.Terminal() {
				s.delivered = true
			}
			s.mu.Unlock()
			return ev, nil
		}
		if s.delivered {
			s.mu.Unlock()
			return Event{}, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// C returns a channel delivering the events in order. The channel is closed
// right after the terminal event. A consumer that stops reading early must
// call Abandon.
func (s *Stream) C() <-chan Event {
	s.pump.Do(func() {
		go s.run()
	})
	return s.out
}

// Abandon releases the goroutine behind C.
func (s *Stream) Abandon() {
	s.stop.Do(func() { close(s.abandon) })
}

func (s *Stream) run() {
	defer close(s.out)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.abandon:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		ev, err := s.Next(ctx)
		if err != nil {
			return
		}
		select {
		case s.out <- ev:
		case <-s.abandon:
			return
		}
	}
}
