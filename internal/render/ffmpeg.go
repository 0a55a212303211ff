// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix || windows

package render

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/metrics"
	"github.com/ManuGH/reelforge/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	stderrTailLines  = 40
	defaultKillGrace = 2 * time.Second
	maxWatchTick     = 5 * time.Second
)

var errStalled = errors.New("ffmpeg stalled")

// FFmpegBackend renders with the ffmpeg binary.
type FFmpegBackend struct {
	settings EncoderSettings
	logger   zerolog.Logger
}

// NewFFmpegBackend fills unset settings with defaults.
func NewFFmpegBackend(s EncoderSettings) *FFmpegBackend {
	if strings.TrimSpace(s.Bin) == "" {
		s.Bin = "ffmpeg"
	}
	if s.Preset == "" {
		s.Preset = "veryfast"
	}
	if s.CRF <= 0 {
		s.CRF = 20
	}
	if s.AudioBitrate == "" {
		s.AudioBitrate = "128k"
	}
	if s.FrameRate <= 0 {
		s.FrameRate = 30
	}
	if s.KillGrace <= 0 {
		s.KillGrace = defaultKillGrace
	}
	return &FFmpegBackend{
		settings: s,
		logger:   log.WithComponent("render").With().Str(log.FieldBackend, BackendFFmpeg).Logger(),
	}
}

func (b *FFmpegBackend) Name() string { return BackendFFmpeg }

// Check verifies that the ffmpeg binary resolves.
func (b *FFmpegBackend) Check(context.Context) error {
	if _, err := exec.LookPath(b.settings.Bin); err != nil {
		return &EncodingFailure{Stage: StageSetup, Segment: -1, Err: fmt.Errorf("locate ffmpeg: %w", err)}
	}
	return nil
}

// EncodeSegment implements Backend.
func (b *FFmpegBackend) EncodeSegment(ctx context.Context, job SegmentJob, progress func(media.Millis)) error {
	in := job.Instruction
	logger := log.WithContext(ctx, b.logger).With().
		Str(log.FieldSegmentID, in.SegmentID).
		Int("index", in.Index).
		Int(log.FieldRotation, in.Transform.Rotation).
		Bool("flip_h", in.Transform.FlipH).
		Logger()

	args := segmentArgs(b.settings, job)
	logger.Debug().Strs("args", args).Msg("encoding segment")

	err := b.run(ctx, logger, args, in.Source.Duration(), progress)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return wrapRunError(StageEncode, in.Index, err)
}

// Concat implements Backend.
func (b *FFmpegBackend) Concat(ctx context.Context, parts []string, out string, progress func(media.Millis)) error {
	if len(parts) == 0 {
		return &EncodingFailure{Stage: StageConcat, Segment: -1, Err: errors.New("no parts to concat")}
	}
	listFile := filepath.Join(filepath.Dir(parts[0]), "concat.txt")
	if err := writeConcatList(listFile, parts); err != nil {
		return &EncodingFailure{Stage: StageConcat, Segment: -1, Err: err}
	}

	logger := log.WithContext(ctx, b.logger).With().Str(log.FieldOutputPath, out).Logger()
	args := concatArgs(listFile, out)
	logger.Debug().Strs("args", args).Int("parts", len(parts)).Msg("concatenating parts")

	err := b.run(ctx, logger, args, 0, progress)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return wrapRunError(StageConcat, -1, err)
}

type runError struct {
	err  error
	tail []string
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

func wrapRunError(stage string, segment int, err error) error {
	var re *runError
	if errors.As(err, &re) {
		return &EncodingFailure{Stage: stage, Segment: segment, Err: re.err, StderrTail: re.tail}
	}
	return &EncodingFailure{Stage: stage, Segment: segment, Err: err}
}

// run executes ffmpeg in its own process group, reporting -progress output
// and killing the group on cancellation or stall.
func (b *FFmpegBackend) run(ctx context.Context, logger zerolog.Logger, args []string, limit media.Millis, progress func(media.Millis)) error {
	fullArgs := append([]string{"-nostdin", "-hide_banner", "-nostats", "-loglevel", "error", "-progress", "pipe:1"}, args...)

	// #nosec G204 -- binary comes from operator config; arguments are built internally
	cmd := exec.Command(b.settings.Bin, fullArgs...)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr := newLineRing(stderrTailLines)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	var latest atomic.Pointer[ffmpegProgress]
	tick := make(chan struct{}, 1)
	parsed := make(chan struct{})
	go func() {
		defer close(parsed)
		parseProgress(stdout, func(p ffmpegProgress) {
			latest.Store(&p)
			select {
			case tick <- struct{}{}:
			default:
			}
		})
	}()

	// Wait only after stdout is drained.
	done := make(chan error, 1)
	go func() {
		<-parsed
		done <- cmd.Wait()
	}()

	watchErr := b.watch(ctx, logger, cmd, done, tick, &latest, limit, progress)
	if watchErr != nil && !errors.Is(watchErr, context.Canceled) && !errors.Is(watchErr, context.DeadlineExceeded) {
		return &runError{err: watchErr, tail: stderr.Lines()}
	}
	return watchErr
}

func (b *FFmpegBackend) watch(
	ctx context.Context,
	logger zerolog.Logger,
	cmd *exec.Cmd,
	done <-chan error,
	tick <-chan struct{},
	latest *atomic.Pointer[ffmpegProgress],
	limit media.Millis,
	progress func(media.Millis),
) error {
	stall := b.settings.StallTimeout
	var watchdog <-chan time.Time
	if stall > 0 {
		interval := stall / 4
		if interval > maxWatchTick {
			interval = maxWatchTick
		}
		if interval <= 0 {
			interval = stall
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		watchdog = t.C
	}

	lastProgressAt := time.Now()
	var last ffmpegProgress
	report := func() {
		p := latest.Load()
		if p == nil {
			return
		}
		if p.hasAdvanced(last) || p.End {
			last = *p
			lastProgressAt = time.Now()
		}
		if progress != nil {
			pos := media.Millis(p.OutTimeUs / 1000)
			if limit > 0 {
				pos = pos.Clamp(0, limit)
			}
			progress(pos)
		}
	}

	for {
		select {
		case err := <-done:
			report()
			if err != nil {
				return fmt.Errorf("ffmpeg exited: %w", err)
			}
			return nil

		case <-ctx.Done():
			logger.Info().Msg("cancelling ffmpeg")
			_ = procgroup.Terminate(cmd, done, b.settings.KillGrace)
			return ctx.Err()

		case <-tick:
			report()

		case <-watchdog:
			if time.Since(lastProgressAt) <= stall {
				continue
			}
			metrics.FFmpegStallTotal.Inc()
			logger.Error().
				Dur("since_progress", time.Since(lastProgressAt)).
				Int64("last_out_time_us", last.OutTimeUs).
				Int64("last_total_size", last.TotalSize).
				Str("last_speed", last.Speed).
				Msg("ffmpeg stalled, killing process group")
			_ = procgroup.Terminate(cmd, done, b.settings.KillGrace)
			return errStalled
		}
	}
}
