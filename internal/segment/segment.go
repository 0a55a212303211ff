// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package segment defines the descriptor of one input clip of a composition.
package segment

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ManuGH/reelforge/internal/media"
	"github.com/google/uuid"
)

// ErrInvalidDescriptor classifies descriptor validation failures.
var ErrInvalidDescriptor = errors.New("invalid segment descriptor")

// Descriptor describes one recorded or imported clip.
// SourceLocation is immutable once recording or import has completed.
type Descriptor struct {
	ID                      string  `json:"id" yaml:"id"`
	SourceLocation          string  `json:"source" yaml:"source"`
	RecordedDurationSeconds float64 `json:"recordedDurationSeconds" yaml:"recorded_duration_seconds"`
	TrimStartMs             *int64  `json:"trimStartMs,omitempty" yaml:"trim_start_ms,omitempty"`
	TrimEndMs               *int64  `json:"trimEndMs,omitempty" yaml:"trim_end_ms,omitempty"`
}

// NewID mints an opaque segment identifier.
func NewID() string {
	return uuid.NewString()
}

// HasValidTrim reports whether the trim window selects a non-empty sub-range.
// Both bounds must be present and satisfy end > start >= 0; anything else
// means the whole file is used.
func (d Descriptor) HasValidTrim() bool {
	if d.TrimStartMs == nil || d.TrimEndMs == nil {
		return false
	}
	return *d.TrimStartMs >= 0 && *d.TrimEndMs > *d.TrimStartMs
}

// Trim returns the trim window as a range. ok is false when HasValidTrim is false.
func (d Descriptor) Trim() (r media.Range, ok bool) {
	if !d.HasValidTrim() {
		return media.Range{}, false
	}
	return media.Range{Start: media.Millis(*d.TrimStartMs), End: media.Millis(*d.TrimEndMs)}, true
}

// Validate checks the fields that are known before probing. Trim bounds are
// checked against the real duration only at plan time.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDescriptor)
	}
	if strings.TrimSpace(d.SourceLocation) == "" {
		return fmt.Errorf("%w: segment %s: empty source location", ErrInvalidDescriptor, d.ID)
	}
	if !filepath.IsAbs(d.SourceLocation) {
		return fmt.Errorf("%w: segment %s: source location must be absolute: %s", ErrInvalidDescriptor, d.ID, d.SourceLocation)
	}
	if !(d.RecordedDurationSeconds > 0) {
		return fmt.Errorf("%w: segment %s: recorded duration must be > 0", ErrInvalidDescriptor, d.ID)
	}
	return nil
}

// ValidateList validates every descriptor and rejects duplicate ids.
// An empty list is valid here; the planner rejects it as an empty composition.
func ValidateList(segments []Descriptor) error {
	seen := make(map[string]int, len(segments))
	for i, d := range segments {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		if prev, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s at positions %d and %d", ErrInvalidDescriptor, d.ID, prev, i)
		}
		seen[d.ID] = i
	}
	return nil
}

// Ms returns a pointer to v, for building trim windows.
func Ms(v int64) *int64 {
	return &v
}
