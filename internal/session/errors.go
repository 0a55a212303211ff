// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/reelforge/internal/plan"
	"github.com/ManuGH/reelforge/internal/probe"
	"github.com/ManuGH/reelforge/internal/render"
	"github.com/ManuGH/reelforge/internal/segment"
)

var (
	// ErrExportAlreadyInProgress rejects a start while another session is active.
	ErrExportAlreadyInProgress = errors.New("export already in progress")

	// ErrCancelled marks a session ended by Cancel. It is not a failure.
	ErrCancelled = errors.New("export cancelled")

	// ErrInvalidRequest wraps start requests rejected before a session exists.
	ErrInvalidRequest = errors.New("invalid export request")
)

// ExportAlreadyInProgressError names the session holding the pipeline.
type ExportAlreadyInProgressError struct {
	ActiveSessionID string
}

func (e *ExportAlreadyInProgressError) Error() string {
	return fmt.Sprintf("export already in progress (session %s)", e.ActiveSessionID)
}

func (e *ExportAlreadyInProgressError) Unwrap() error { return ErrExportAlreadyInProgress }

// Outcome kinds.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Failure reasons.
const (
	ReasonUnreadableMedia     = "unreadable_media"
	ReasonEmptyComposition    = "empty_composition"
	ReasonEncodingFailure     = "encoding_failure"
	ReasonUnsupportedPlatform = "unsupported_platform"
	ReasonInvalidRequest      = "invalid_request"
	ReasonAlreadyInProgress   = "export_in_progress"
	ReasonInternal            = "internal"
)

// Classify maps err to an outcome kind and a stable reason. A nil error is
// a completed export.
func Classify(err error) (kind, reason string) {
	switch {
	case err == nil:
		return OutcomeCompleted, ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return OutcomeCancelled, ""
	case errors.Is(err, probe.ErrUnreadableMedia):
		return OutcomeFailed, ReasonUnreadableMedia
	case errors.Is(err, plan.ErrEmptyComposition):
		return OutcomeFailed, ReasonEmptyComposition
	case errors.Is(err, render.ErrUnsupportedPlatform):
		return OutcomeFailed, ReasonUnsupportedPlatform
	case errors.Is(err, render.ErrEncodingFailure):
		return OutcomeFailed, ReasonEncodingFailure
	case errors.Is(err, ErrExportAlreadyInProgress):
		return OutcomeFailed, ReasonAlreadyInProgress
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, segment.ErrInvalidDescriptor):
		return OutcomeFailed, ReasonInvalidRequest
	default:
		return OutcomeFailed, ReasonInternal
	}
}
