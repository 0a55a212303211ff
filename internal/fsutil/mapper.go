// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ManuGH/reelforge/internal/segment"
)

// Mapper translates between draft-relative media locations and the absolute
// paths the export pipeline works with.
type Mapper struct {
	Root string
}

// Resolve returns the absolute path for location. Relative locations are
// confined to Root; absolute ones are cleaned and passed through.
func (m Mapper) Resolve(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", fmt.Errorf("empty location")
	}
	if filepath.IsAbs(location) {
		return filepath.Clean(location), nil
	}
	if m.Root == "" {
		return "", fmt.Errorf("relative location %q without a media root", location)
	}
	return ConfineRelPath(m.Root, location)
}

// Relativize returns abs relative to Root, or abs unchanged when it lies
// outside Root.
func (m Mapper) Relativize(abs string) string {
	if m.Root == "" || !filepath.IsAbs(abs) {
		return abs
	}
	rel, err := filepath.Rel(filepath.Clean(m.Root), filepath.Clean(abs))
	if err != nil || escapes(rel) {
		return abs
	}
	return filepath.ToSlash(rel)
}

// ResolveSegments returns a copy of segs with every source location resolved.
func (m Mapper) ResolveSegments(segs []segment.Descriptor) ([]segment.Descriptor, error) {
	out := make([]segment.Descriptor, len(segs))
	for i, s := range segs {
		p, err := m.Resolve(s.SourceLocation)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", s.ID, err)
		}
		s.SourceLocation = p
		out[i] = s
	}
	return out, nil
}
