// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package render turns a planned timeline into a single output file.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/reelforge/internal/events"
	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/metrics"
	"github.com/ManuGH/reelforge/internal/plan"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultTickInterval bounds how often intra-segment progress is reported.
const DefaultTickInterval = 250 * time.Millisecond

// ProgressSink receives phase changes and progress fractions.
// *events.Stream implements it.
type ProgressSink interface {
	Phase(p events.Phase, segmentIndex int)
	Progress(p events.Phase, fraction float64, segmentIndex int)
}

type pendingOutput interface {
	Name() string
	CloseAtomicallyReplace() error
	Cleanup() error
}

// Renderer encodes the instructions of a timeline one after the other and
// muxes the parts into the destination. A Renderer serves one export.
type Renderer struct {
	backend      Backend
	tempDir      string
	tickInterval time.Duration
	logger       zerolog.Logger

	mu        sync.Mutex
	workDir   string
	pending   string
	published string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(r *Renderer) { r.tickInterval = d }
}

// NewRenderer returns a renderer placing its work directory under tempDir.
func NewRenderer(backend Backend, tempDir string, opts ...Option) *Renderer {
	if backend == nil {
		panic("render: nil backend")
	}
	r := &Renderer{
		backend:      backend,
		tempDir:      tempDir,
		tickInterval: DefaultTickInterval,
		logger:       log.WithComponent("render"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// TempPaths returns the work directory and pending output currently owned
// by the render, if any.
func (r *Renderer) TempPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	if r.workDir != "" {
		out = append(out, r.workDir)
	}
	if r.pending != "" {
		out = append(out, r.pending)
	}
	return out
}

// Published returns the destination once it has been written.
func (r *Renderer) Published() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published
}

func (r *Renderer) setPaths(workDir, pending *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if workDir != nil {
		r.workDir = *workDir
	}
	if pending != nil {
		r.pending = *pending
	}
}

// Render encodes tl into outputLocation and returns the location on success.
// Nothing is left at outputLocation when Render fails or ctx is cancelled.
func (r *Renderer) Render(ctx context.Context, tl *plan.Timeline, outputLocation string, sink ProgressSink) (string, error) {
	if sink == nil {
		sink = nopSink{}
	}
	if tl == nil {
		return "", fmt.Errorf("%w: nil timeline", ErrInvalidTimeline)
	}
	if err := tl.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTimeline, err)
	}
	if tl.Total <= 0 || tl.Canvas.Width <= 0 || tl.Canvas.Height <= 0 {
		return "", fmt.Errorf("%w: total %dms canvas %s", ErrInvalidTimeline, tl.Total, tl.Canvas)
	}
	if err := r.backend.Check(ctx); err != nil {
		return "", err
	}

	logger := log.WithContext(ctx, r.logger).With().
		Str(log.FieldBackend, r.backend.Name()).
		Str(log.FieldOutputPath, outputLocation).
		Logger()

	workDir, err := os.MkdirTemp(r.tempDir, "reelforge-render-*")
	if err != nil {
		metrics.IncRenderFailure(StageSetup)
		return "", &EncodingFailure{Stage: StageSetup, Segment: -1, Err: fmt.Errorf("create work dir: %w", err)}
	}
	r.setPaths(&workDir, nil)
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn().Err(err).Str(log.FieldWorkDir, workDir).Msg("failed to remove work dir")
		}
		empty := ""
		r.setPaths(&empty, nil)
	}()

	parts, lastIndex, err := r.encodeParts(ctx, logger, tl, workDir, sink)
	if err != nil {
		return "", err
	}

	sink.Phase(events.PhaseFinalizing, lastIndex)
	if err := r.publish(ctx, logger, parts, outputLocation, tl.Total, lastIndex, sink); err != nil {
		return "", err
	}
	sink.Progress(events.PhaseFinalizing, 1, lastIndex)

	logger.Info().
		Int("parts", len(parts)).
		Int64(log.FieldDurationMs, int64(tl.Total)).
		Msg("render complete")
	return outputLocation, nil
}

func (r *Renderer) encodeParts(ctx context.Context, logger zerolog.Logger, tl *plan.Timeline, workDir string, sink ProgressSink) ([]string, int, error) {
	total := float64(tl.Total)
	fraction := func(at media.Millis) float64 { return float64(at) / total }
	limiter := rate.NewLimiter(rate.Every(r.tickInterval), 1)

	parts := make([]string, 0, len(tl.Instructions))
	lastIndex := 0
	sink.Phase(events.PhaseRendering, 0)

	for _, in := range tl.Instructions {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if in.Empty() {
			logger.Debug().Str(log.FieldSegmentID, in.SegmentID).Int("index", in.Index).Msg("skipping zero-length segment")
			continue
		}

		lastIndex = in.Index
		sink.Progress(events.PhaseRendering, fraction(in.Output.Start), in.Index)

		job := SegmentJob{
			Instruction: in,
			Canvas:      tl.Canvas,
			Output:      filepath.Join(workDir, fmt.Sprintf("part-%04d.mp4", in.Index)),
		}
		partDur := in.Output.Duration()
		started := time.Now()
		err := r.backend.EncodeSegment(ctx, job, func(done media.Millis) {
			if limiter.Allow() {
				sink.Progress(events.PhaseRendering, fraction(in.Output.Start+done.Clamp(0, partDur)), in.Index)
			}
		})
		metrics.RenderPartDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			return nil, 0, r.fail(logger, StageEncode, in.Index, err)
		}

		parts = append(parts, job.Output)
		sink.Progress(events.PhaseRendering, fraction(in.Output.End), in.Index)
	}
	return parts, lastIndex, nil
}

func (r *Renderer) publish(ctx context.Context, logger zerolog.Logger, parts []string, out string, total media.Millis, lastIndex int, sink ProgressSink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return r.fail(logger, StagePublish, -1, fmt.Errorf("create output dir: %w", err))
	}

	pending, err := newPendingOutput(out)
	if err != nil {
		return r.fail(logger, StagePublish, -1, fmt.Errorf("create pending output: %w", err))
	}
	name := pending.Name()
	r.setPaths(nil, &name)
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending output")
		}
		empty := ""
		r.setPaths(nil, &empty)
	}()

	limiter := rate.NewLimiter(rate.Every(r.tickInterval), 1)
	err = r.backend.Concat(ctx, parts, name, func(done media.Millis) {
		if limiter.Allow() {
			sink.Progress(events.PhaseFinalizing, float64(done.Clamp(0, total))/float64(total), lastIndex)
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return r.fail(logger, StageConcat, -1, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return r.fail(logger, StagePublish, -1, fmt.Errorf("publish output: %w", err))
	}

	r.mu.Lock()
	r.published = out
	r.mu.Unlock()
	return nil
}

func (r *Renderer) fail(logger zerolog.Logger, stage string, segment int, err error) error {
	var ef *EncodingFailure
	if !errors.As(err, &ef) && !errors.Is(err, ErrUnsupportedPlatform) {
		ef = &EncodingFailure{Stage: stage, Segment: segment, Err: err}
		err = ef
	}
	if ef != nil {
		stage = ef.Stage
		logger.Error().Err(err).Str(log.FieldStage, stage).Strs("stderr_tail", ef.StderrTail).Msg("render failed")
	} else {
		logger.Error().Err(err).Str(log.FieldStage, stage).Msg("render failed")
	}
	metrics.IncRenderFailure(stage)
	return err
}

type nopSink struct{}

func (nopSink) Phase(events.Phase, int)            {}
func (nopSink) Progress(events.Phase, float64, int) {}
