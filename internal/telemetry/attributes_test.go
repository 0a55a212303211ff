// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func find(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestExportAttributes(t *testing.T) {
	attrs := ExportAttributes("s1", "", "/out/final.mp4", 3)
	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}
	if v, _ := find(attrs, SegmentCountKey); v.AsInt64() != 3 {
		t.Errorf("segments = %d", v.AsInt64())
	}
	if _, ok := find(attrs, DraftIDKey); ok {
		t.Error("draft id must be omitted when empty")
	}

	attrs = ExportAttributes("s1", "d1", "/out/final.mp4", 3)
	if v, ok := find(attrs, DraftIDKey); !ok || v.AsString() != "d1" {
		t.Error("draft id missing")
	}
}

func TestOutcomeAttributes(t *testing.T) {
	if got := len(OutcomeAttributes("completed", "")); got != 1 {
		t.Errorf("Expected 1 attribute, got %d", got)
	}
	attrs := OutcomeAttributes("failed", "encoding_failure")
	if v, _ := find(attrs, ReasonKey); v.AsString() != "encoding_failure" {
		t.Errorf("reason = %q", v.AsString())
	}
}

func TestErrorAttributes(t *testing.T) {
	if ErrorAttributes(nil) != nil {
		t.Error("Expected nil for nil error")
	}
	sentinel := errors.New("unreadable media")
	attrs := ErrorAttributes(fmt.Errorf("probe: %w", sentinel))
	if v, _ := find(attrs, ErrorTypeKey); v.AsString() != "unreadable media" {
		t.Errorf("error.type = %q", v.AsString())
	}
}
