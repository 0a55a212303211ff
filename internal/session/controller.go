// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session runs export sessions one at a time: probe every segment,
// plan the timeline, render it, and report a single terminal outcome.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/reelforge/internal/events"
	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/metrics"
	"github.com/ManuGH/reelforge/internal/plan"
	"github.com/ManuGH/reelforge/internal/probe"
	"github.com/ManuGH/reelforge/internal/render"
	"github.com/ManuGH/reelforge/internal/segment"
	"github.com/ManuGH/reelforge/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultCancelGrace bounds how long a cancelled run may take to stop.
	DefaultCancelGrace = 5 * time.Second

	recordTimeout = 5 * time.Second
)

// Recorder is told about completed exports of drafts.
type Recorder interface {
	RecordExport(ctx context.Context, draftID, outputLocation string, duration media.Millis) error
}

// Options configures a Controller.
type Options struct {
	Prober           probe.Prober
	Backend          render.Backend
	TempDir          string
	ProbeConcurrency int
	CancelGrace      time.Duration
	Canvas           plan.CanvasPolicy
	TickInterval     time.Duration
	Recorder         Recorder

	// Tuning, when set, is read at every Start and applies to that session
	// only. Its Canvas always applies; its other fields override the static
	// ones when non-zero.
	Tuning func() Tuning
}

// Tuning holds the settings that may change between sessions.
type Tuning struct {
	Backend          render.Backend
	ProbeConcurrency int
	CancelGrace      time.Duration
	Canvas           plan.CanvasPolicy
}

// Controller is the sole owner of the encode pipeline. At most one session
// is active at any time.
type Controller struct {
	opts     Options
	logger   zerolog.Logger
	tracer   trace.Tracer
	duration probe.Prober

	mu     sync.Mutex
	active *Session
	last   *Session
}

// NewController panics when Prober or Backend is missing.
func NewController(opts Options) *Controller {
	if opts.Prober == nil || opts.Backend == nil {
		panic("session: NewController requires a Prober and a Backend")
	}
	if opts.ProbeConcurrency < 1 {
		opts.ProbeConcurrency = 4
	}
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = DefaultCancelGrace
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = render.DefaultTickInterval
	}
	return &Controller{
		opts:     opts,
		logger:   log.WithComponent("session"),
		tracer:   telemetry.Tracer("reelforge/session"),
		duration: probe.NewCachingProber(opts.Prober),
	}
}

// Active returns the session holding the pipeline, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Latest returns the active session or, when idle, the most recently
// finished one. It returns nil before the first export.
func (c *Controller) Latest() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return c.active
	}
	return c.last
}

// State reports the controller state: Idle when no session is active.
func (c *Controller) State() State {
	if s := c.Active(); s != nil {
		return s.State()
	}
	return StateIdle
}

// Start begins an export. It fails with *ExportAlreadyInProgressError while
// another session is active, leaving that session undisturbed, and with
// ErrInvalidRequest when req is malformed.
func (c *Controller) Start(ctx context.Context, req Request) (*Session, error) {
	t := c.tuning()

	c.mu.Lock()
	if c.active != nil {
		activeID := c.active.ID
		c.mu.Unlock()
		metrics.ExportRejectedTotal.Inc()
		c.logger.Info().
			Str("active_session_id", activeID).
			Str(log.FieldEvent, "export.rejected").
			Msg("export already in progress")
		return nil, &ExportAlreadyInProgressError{ActiveSessionID: activeID}
	}
	if err := validateRequest(req); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		ID:             id,
		DraftID:        req.DraftID,
		OutputLocation: filepath.Clean(req.OutputLocation),
		segments:       append([]segment.Descriptor(nil), req.Segments...),
		startedAt:      time.Now(),
		logger: c.logger.With().
			Str(log.FieldSessionID, id).
			Str(log.FieldDraftID, req.DraftID).
			Logger(),
		stream:     events.NewStream(id),
		renderer:   render.NewRenderer(t.Backend, c.opts.TempDir, render.WithTickInterval(c.opts.TickInterval)),
		probeLimit: t.ProbeConcurrency,
		canvas:     t.Canvas,
		grace:      t.CancelGrace,
		release:    c.release,
		completed:  c.record,
		done:       make(chan struct{}),
		runDone:    make(chan struct{}),
		state:      StateIdle,
	}
	// The session outlives the request that started it. cancel is set
	// before the session becomes visible to Cancel.
	runCtx, cancel := context.WithCancel(log.ContextWithSessionID(context.WithoutCancel(ctx), id))
	s.cancel = cancel
	c.active = s
	c.mu.Unlock()

	metrics.ExportActive.Set(1)

	s.logger.Info().
		Int("segments", len(req.Segments)).
		Str(log.FieldOutputPath, s.OutputLocation).
		Str(log.FieldEvent, "export.start").
		Msg("export started")

	go c.run(runCtx, s)
	return s, nil
}

// Cancel cancels the active session, if any.
func (c *Controller) Cancel() {
	if s := c.Active(); s != nil {
		s.Cancel()
	}
}

// Duration probes the file at path and returns its duration in seconds,
// rounded the same way exports lay durations out.
func (c *Controller) Duration(ctx context.Context, path string) (float64, error) {
	return probe.Duration(ctx, c.duration, path)
}

// Shutdown cancels the active session and waits for it to finish.
func (c *Controller) Shutdown(ctx context.Context) error {
	s := c.Active()
	if s == nil {
		return nil
	}
	s.Cancel()
	_, err := s.Wait(ctx)
	return err
}

func (c *Controller) release(s *Session) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.last = s
	c.mu.Unlock()
	metrics.ExportActive.Set(0)
}

func (c *Controller) run(ctx context.Context, s *Session) {
	defer s.cancel()
	defer close(s.runDone)

	ctx, span := c.tracer.Start(ctx, "export.session",
		trace.WithAttributes(telemetry.ExportAttributes(s.ID, s.DraftID, s.OutputLocation, len(s.segments))...))
	defer span.End()

	var total media.Millis
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Msg("export run panicked")
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		total, err = c.execute(ctx, s)
		return err
	}()

	// Once cancelled, whatever the pipeline returned is a cancellation.
	if err != nil && ctx.Err() != nil {
		err = ErrCancelled
	}

	kind, reason := Classify(err)
	span.SetAttributes(telemetry.OutcomeAttributes(kind, reason)...)
	if kind == OutcomeFailed {
		span.SetAttributes(telemetry.ErrorAttributes(err)...)
		span.SetStatus(codes.Error, err.Error())
	}

	if !s.finish(err, total) {
		// The grace period already forced the outcome; drop anything this
		// late run produced.
		s.discardArtifacts()
	}
}

func (c *Controller) execute(ctx context.Context, s *Session) (media.Millis, error) {
	k := sink{s: s}

	s.setState(EventStart)
	k.Phase(events.PhaseProbing, 0)
	pctx, pspan := c.tracer.Start(ctx, "export.probe")
	meta, err := probe.ProbeAll(pctx, c.opts.Prober, s.segments, s.probeLimit)
	pspan.End()
	if err != nil {
		return 0, err
	}
	k.Progress(events.PhaseProbing, 1, max(len(s.segments)-1, 0))
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.setState(EventProbed)
	k.Phase(events.PhasePlanning, 0)
	_, lspan := c.tracer.Start(ctx, "export.plan")
	tl, err := plan.PlanWithCanvas(s.segments, meta, s.canvas)
	lspan.End()
	if err != nil {
		return 0, err
	}
	s.logger.Debug().
		Int64(log.FieldDurationMs, int64(tl.Total)).
		Str(log.FieldResolution, tl.Canvas.String()).
		Int("instructions", len(tl.Instructions)).
		Msg("timeline planned")
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.setState(EventPlanned)
	rctx, rspan := c.tracer.Start(ctx, "export.render")
	_, err = s.renderer.Render(rctx, tl, s.OutputLocation, k)
	rspan.End()
	if err != nil {
		return 0, err
	}
	return tl.Total, nil
}

// tuning returns the settings for a new session.
func (c *Controller) tuning() Tuning {
	t := Tuning{
		Backend:          c.opts.Backend,
		ProbeConcurrency: c.opts.ProbeConcurrency,
		CancelGrace:      c.opts.CancelGrace,
		Canvas:           c.opts.Canvas,
	}
	if c.opts.Tuning == nil {
		return t
	}
	next := c.opts.Tuning()
	if next.Backend != nil {
		t.Backend = next.Backend
	}
	if next.ProbeConcurrency >= 1 {
		t.ProbeConcurrency = next.ProbeConcurrency
	}
	if next.CancelGrace > 0 {
		t.CancelGrace = next.CancelGrace
	}
	t.Canvas = next.Canvas
	return t
}

func (c *Controller) record(s *Session, total media.Millis) {
	if c.opts.Recorder == nil || s.DraftID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.opts.Recorder.RecordExport(ctx, s.DraftID, s.OutputLocation, total); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record export on draft")
	}
}

func validateRequest(req Request) error {
	out := strings.TrimSpace(req.OutputLocation)
	if out == "" {
		return fmt.Errorf("%w: output location is required", ErrInvalidRequest)
	}
	if !filepath.IsAbs(out) {
		return fmt.Errorf("%w: output location must be absolute: %s", ErrInvalidRequest, out)
	}
	if fi, err := os.Stat(out); err == nil && fi.IsDir() {
		return fmt.Errorf("%w: output location is a directory: %s", ErrInvalidRequest, out)
	}
	if err := segment.ValidateList(req.Segments); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	for _, seg := range req.Segments {
		if filepath.Clean(seg.SourceLocation) == filepath.Clean(out) {
			return fmt.Errorf("%w: output location overwrites segment %s", ErrInvalidRequest, seg.ID)
		}
	}
	return nil
}

func observeExport(kind, reason string, seconds float64) {
	metrics.ObserveExport(kind, reason, seconds)
}

func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
