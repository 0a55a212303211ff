// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyComposition is returned when the composition has zero total duration.
	ErrEmptyComposition = errors.New("empty composition")

	// ErrMissingMetadata is returned when a segment has no probed metadata.
	ErrMissingMetadata = errors.New("missing probed metadata")
)

// EmptyCompositionError reports how many segments produced nothing.
type EmptyCompositionError struct {
	Segments int
}

func (e *EmptyCompositionError) Error() string {
	if e.Segments == 0 {
		return "empty composition: no segments"
	}
	return fmt.Sprintf("empty composition: %d segment(s) with zero total duration", e.Segments)
}

func (e *EmptyCompositionError) Unwrap() error { return ErrEmptyComposition }
