// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package render

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEncodingFailure classifies failures of the encode or mux stages.
	ErrEncodingFailure = errors.New("encoding failure")

	// ErrUnsupportedPlatform is returned when no composition backend exists
	// for the running platform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrInvalidTimeline is returned for timelines that fail validation.
	ErrInvalidTimeline = errors.New("invalid timeline")
)

// Failure stages.
const (
	StageSetup   = "setup"
	StageEncode  = "encode"
	StageConcat  = "concat"
	StagePublish = "publish"
)

// EncodingFailure describes which stage of the render failed.
type EncodingFailure struct {
	Stage string
	// Segment is the instruction index, or -1 when the failure is not tied
	// to one segment.
	Segment    int
	Err        error
	StderrTail []string
}

func (e *EncodingFailure) Error() string {
	var b strings.Builder
	b.WriteString("encoding failure")
	if e.Stage != "" {
		b.WriteString(" in ")
		b.WriteString(e.Stage)
	}
	if e.Segment >= 0 {
		fmt.Fprintf(&b, " (segment %d)", e.Segment)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if n := len(e.StderrTail); n > 0 {
		b.WriteString(": ")
		b.WriteString(e.StderrTail[n-1])
	}
	return b.String()
}

func (e *EncodingFailure) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrEncodingFailure}
	}
	return []error{ErrEncodingFailure, e.Err}
}

// UnsupportedPlatformError names the platform without a backend.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: no composition backend for %s", e.Platform)
}

func (e *UnsupportedPlatformError) Unwrap() error { return ErrUnsupportedPlatform }
