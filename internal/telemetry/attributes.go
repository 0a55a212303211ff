// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by export spans.
const (
	SessionIDKey    = "export.session_id"
	DraftIDKey      = "export.draft_id"
	SegmentCountKey = "export.segments"
	OutputKey       = "export.output"
	TotalMsKey      = "export.total_ms"
	CanvasKey       = "export.canvas"
	OutcomeKey      = "export.outcome"
	ReasonKey       = "export.reason"

	SegmentIDKey    = "segment.id"
	SegmentIndexKey = "segment.index"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ExportAttributes describes an export session at start.
func ExportAttributes(sessionID, draftID, output string, segments int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(SessionIDKey, sessionID),
		attribute.Int(SegmentCountKey, segments),
		attribute.String(OutputKey, output),
	}
	if draftID != "" {
		attrs = append(attrs, attribute.String(DraftIDKey, draftID))
	}
	return attrs
}

// OutcomeAttributes describes how a session ended.
func OutcomeAttributes(outcome, reason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(OutcomeKey, outcome)}
	if reason != "" {
		attrs = append(attrs, attribute.String(ReasonKey, reason))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	errType := "unknown"
	if u := errors.Unwrap(err); u != nil {
		errType = u.Error()
	}
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errType),
	}
}
