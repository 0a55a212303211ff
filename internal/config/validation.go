// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate returns every problem in cfg joined into one error.
func Validate(cfg AppConfig) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(cfg.FFmpeg.Bin) == "" {
		fail("ffmpeg.bin must not be empty")
	}
	switch cfg.FFmpeg.Backend {
	case "auto", "ffmpeg", "unsupported":
	default:
		fail("ffmpeg.backend %q must be one of auto, ffmpeg, unsupported", cfg.FFmpeg.Backend)
	}
	if cfg.Probe.Concurrency < 1 {
		fail("probe.concurrency must be >= 1, got %d", cfg.Probe.Concurrency)
	}
	if cfg.Probe.Timeout <= 0 {
		fail("probe.timeout must be > 0")
	}
	if cfg.Export.CancelGrace <= 0 {
		fail("export.cancelGrace must be > 0")
	}
	if cfg.Export.KillGrace <= 0 {
		fail("export.killGrace must be > 0")
	}
	if cfg.Export.StallTimeout < 0 {
		fail("export.stallTimeout must be >= 0")
	}
	if cfg.Encoder.CRF < 0 || cfg.Encoder.CRF > 51 {
		fail("encoder.crf must be in [0,51], got %d", cfg.Encoder.CRF)
	}
	if cfg.Encoder.FrameRate < 1 || cfg.Encoder.FrameRate > 120 {
		fail("encoder.frameRate must be in [1,120], got %d", cfg.Encoder.FrameRate)
	}
	switch cfg.Encoder.CanvasPolicy {
	case CanvasFirstSegment:
	case CanvasFixed:
		if cfg.Encoder.CanvasWidth < 2 || cfg.Encoder.CanvasHeight < 2 {
			fail("encoder.canvas width/height are required for the fixed policy")
		}
	default:
		fail("encoder.canvas.policy %q must be %s or %s", cfg.Encoder.CanvasPolicy, CanvasFirstSegment, CanvasFixed)
	}
	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "grpc" && cfg.Tracing.Exporter != "http" {
			fail("tracing.exporter %q must be grpc or http", cfg.Tracing.Exporter)
		}
		if strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
			fail("tracing.endpoint is required when tracing is enabled")
		}
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		fail("tracing.samplingRate must be in [0,1]")
	}
	if strings.TrimSpace(cfg.TempDir) == "" {
		fail("tempDir must not be empty")
	}
	return errors.Join(errs...)
}
