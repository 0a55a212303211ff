// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/reelforge/internal/events"
	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/plan"
	"github.com/ManuGH/reelforge/internal/render"
	"github.com/ManuGH/reelforge/internal/segment"
	"github.com/rs/zerolog"
)

// Request asks for one export.
type Request struct {
	DraftID        string               `json:"draftId,omitempty"`
	Segments       []segment.Descriptor `json:"segments"`
	OutputLocation string               `json:"outputLocation"`
}

// Outcome is the terminal result of a session.
type Outcome struct {
	SessionID      string
	DraftID        string
	State          State
	Reason         string
	OutputLocation string
	Duration       media.Millis
	Err            error
}

// Result converts the outcome into the terminal event payload.
func (o Outcome) Result() events.Result {
	r := events.Result{
		State:      o.State.String(),
		Reason:     o.Reason,
		DurationMs: int64(o.Duration),
	}
	if o.State == StateCompleted {
		r.OutputLocation = o.OutputLocation
	}
	if o.Err != nil && o.State == StateFailed {
		r.Error = o.Err.Error()
	}
	return r
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	SessionID      string       `json:"sessionId"`
	DraftID        string       `json:"draftId,omitempty"`
	State          State        `json:"state"`
	Phase          events.Phase `json:"phase,omitempty"`
	Progress       float64      `json:"progress"`
	SegmentIndex   int          `json:"currentSegmentIndex"`
	Segments       int          `json:"segments"`
	OutputLocation string       `json:"outputLocation"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     *time.Time   `json:"finishedAt,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// Session is one export attempt. It owns its event stream, its renderer
// and every temporary file the renderer creates.
type Session struct {
	ID             string
	DraftID        string
	OutputLocation string

	segments  []segment.Descriptor
	startedAt time.Time
	logger    zerolog.Logger
	stream    *events.Stream
	renderer   *render.Renderer
	probeLimit int
	canvas     plan.CanvasPolicy
	grace      time.Duration
	release    func(*Session)
	completed  func(*Session, media.Millis)

	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{} // closed after the terminal outcome is recorded
	runDone    chan struct{} // closed when the run goroutine returns

	mu         sync.Mutex
	state      State
	phase      events.Phase
	progress   float64
	segIndex   int
	finishedAt time.Time
	outcome    *Outcome
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current progress and state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID:      s.ID,
		DraftID:        s.DraftID,
		State:          s.state,
		Phase:          s.phase,
		Progress:       s.progress,
		SegmentIndex:   s.segIndex,
		Segments:       len(s.segments),
		OutputLocation: s.OutputLocation,
		StartedAt:      s.startedAt,
	}
	if s.outcome != nil {
		fin := s.finishedAt
		snap.FinishedAt = &fin
		snap.Reason = s.outcome.Reason
		if s.outcome.Err != nil && s.outcome.State == StateFailed {
			snap.Error = s.outcome.Err.Error()
		}
	}
	return snap
}

// Events returns the ordered event channel. It is closed right after the
// terminal event.
func (s *Session) Events() <-chan events.Event {
	return s.stream.C()
}

// Stream exposes the underlying stream for pull-style consumers.
func (s *Session) Stream() *events.Stream {
	return s.stream
}

// Done is closed once the session reached a terminal state and released
// its resources.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is terminal. The returned error is only
// non-nil when ctx ends first; failures are reported in Outcome.Err.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return *s.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Cancel stops the session. It returns immediately; if the run does not
// acknowledge within the cancel grace the Cancelled state is forced and
// temporary files are removed. Cancel is idempotent and a no-op once the
// session is terminal.
func (s *Session) Cancel() {
	select {
	case <-s.done:
		return
	default:
	}
	s.cancelOnce.Do(func() {
		s.logger.Info().Str(log.FieldEvent, "export.cancel_requested").Msg("cancel requested")
		s.cancel()
		go s.enforceGrace()
	})
}

func (s *Session) enforceGrace() {
	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-s.runDone:
		return
	case <-s.done:
		return
	case <-timer.C:
	}
	s.logger.Warn().
		Dur("grace", s.grace).
		Str(log.FieldEvent, "export.cancel_forced").
		Msg("run did not acknowledge cancellation, forcing cancelled state")
	s.finish(ErrCancelled, 0)
}

// setState applies a transition and logs it.
func (s *Session) setState(ev TransitionEvent) bool {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, ev) {
		s.mu.Unlock()
		return false
	}
	to := Transition(from, ev)
	s.state = to
	s.mu.Unlock()

	s.logger.Debug().
		Str(log.FieldOldState, from.String()).
		Str(log.FieldNewState, to.String()).
		Msg("session state transition")
	return true
}

// finish records the terminal outcome exactly once, cleans up, closes the
// event stream and releases the controller slot, in that order. It reports
// whether this call recorded the outcome.
func (s *Session) finish(err error, total media.Millis) bool {
	kind, reason := Classify(err)
	ev := EventFail
	switch kind {
	case OutcomeCompleted:
		ev = EventPublished
	case OutcomeCancelled:
		ev = EventCancel
	}

	s.mu.Lock()
	if s.outcome != nil {
		s.mu.Unlock()
		return false
	}
	from := s.state
	if ev == EventPublished && from == StateRendering {
		from = StateFinalizing
	}
	to := Transition(from, ev)
	if !to.IsTerminal() {
		// Only reachable from Idle, which a running session never is.
		to = StateFailed
	}
	out := Outcome{
		SessionID:      s.ID,
		DraftID:        s.DraftID,
		State:          to,
		Reason:         reason,
		OutputLocation: s.OutputLocation,
		Err:            err,
	}
	if to == StateCompleted {
		out.Duration = total
		s.progress = 1
	}
	s.state = to
	s.finishedAt = time.Now()
	s.outcome = &out
	s.mu.Unlock()

	if to != StateCompleted {
		s.discardArtifacts()
	}

	if to == StateCompleted && s.completed != nil {
		s.completed(s, out.Duration)
	}
	observeExport(kind, reason, time.Since(s.startedAt).Seconds())

	evt := s.logger.Info()
	if to == StateFailed {
		evt = s.logger.Error().Err(err)
	}
	evt.Str(log.FieldEvent, "export."+kind).
		Str(log.FieldOldState, from.String()).
		Str(log.FieldNewState, to.String()).
		Str("reason", reason).
		Int64(log.FieldDurationMs, int64(out.Duration)).
		Dur("elapsed", time.Since(s.startedAt)).
		Msg("export finished")

	// Free the controller before anyone can observe the outcome, so a
	// caller reacting to it can start the next export.
	s.release(s)
	s.stream.Close(out.Result())
	close(s.done)
	return true
}

// discardArtifacts removes the renderer's temporary paths and a
// destination the renderer already published.
func (s *Session) discardArtifacts() {
	paths := s.renderer.TempPaths()
	if pub := s.renderer.Published(); pub != "" {
		paths = append(paths, pub)
	}
	for _, p := range paths {
		if err := removeAll(p); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldPath, p).Msg("failed to remove export artifact")
		}
	}
}

// sink forwards renderer progress to the stream and the snapshot.
type sink struct{ s *Session }

func (k sink) Phase(p events.Phase, idx int) {
	if p == events.PhaseFinalizing {
		k.s.setState(EventRendered)
	}
	k.s.mu.Lock()
	k.s.phase, k.s.progress, k.s.segIndex = p, 0, idx
	k.s.mu.Unlock()
	k.s.stream.Phase(p, idx)
}

func (k sink) Progress(p events.Phase, f float64, idx int) {
	k.s.mu.Lock()
	if p == k.s.phase && f > k.s.progress {
		k.s.progress = f
	}
	k.s.segIndex = idx
	k.s.mu.Unlock()
	k.s.stream.Progress(p, f, idx)
}
