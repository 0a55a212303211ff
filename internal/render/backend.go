// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package render

import (
	"context"
	"runtime"
	"time"

	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/plan"
)

// SegmentJob is one instruction to encode into a standalone part file.
type SegmentJob struct {
	Instruction plan.Instruction
	Canvas      media.Size
	Output      string
}

// Backend performs the platform media work. Implementations must stop
// promptly when ctx is cancelled and return ctx.Err() in that case.
type Backend interface {
	Name() string
	// Check verifies the backend can run on this host.
	Check(ctx context.Context) error
	// EncodeSegment encodes the instruction's source range with its
	// transform applied, normalised to the canvas. progress receives the
	// encoded position within the part.
	EncodeSegment(ctx context.Context, job SegmentJob, progress func(media.Millis)) error
	// Concat joins parts in order into out. progress receives the muxed
	// position within the final output.
	Concat(ctx context.Context, parts []string, out string, progress func(media.Millis)) error
}

// Backend names.
const (
	BackendAuto        = "auto"
	BackendFFmpeg      = "ffmpeg"
	BackendUnsupported = "unsupported"
)

// EncoderSettings configures the ffmpeg backend.
type EncoderSettings struct {
	Bin          string
	Preset       string
	CRF          int
	AudioBitrate string
	FrameRate    int
	KillGrace    time.Duration
	StallTimeout time.Duration
}

// NewPlatformBackend returns the backend named by choice, resolving "auto"
// to the best backend available on this platform.
func NewPlatformBackend(choice string, settings EncoderSettings) Backend {
	if choice == BackendUnsupported {
		return UnsupportedBackend{}
	}
	return platformBackend(settings)
}

// UnsupportedBackend fails every operation with *UnsupportedPlatformError.
type UnsupportedBackend struct{}

func (UnsupportedBackend) Name() string { return BackendUnsupported }

func (UnsupportedBackend) Check(context.Context) error { return unsupported() }

func (UnsupportedBackend) EncodeSegment(context.Context, SegmentJob, func(media.Millis)) error {
	return unsupported()
}

func (UnsupportedBackend) Concat(context.Context, []string, string, func(media.Millis)) error {
	return unsupported()
}

func unsupported() error {
	return &UnsupportedPlatformError{Platform: runtime.GOOS + "/" + runtime.GOARCH}
}
