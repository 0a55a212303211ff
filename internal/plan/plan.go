// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package plan lays segments out back to back on a single output timeline.
package plan

import (
	"fmt"

	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/segment"
)

// CanvasPolicy selects the output frame size.
type CanvasPolicy struct {
	// Fixed, when non-zero, is used as the output size. Otherwise the upright
	// size of the first non-empty segment is used.
	Fixed media.Size
}

// Plan builds the timeline with the default canvas policy.
func Plan(segments []segment.Descriptor, meta map[string]media.ProbedMetadata) (*Timeline, error) {
	return PlanWithCanvas(segments, meta, CanvasPolicy{})
}

// PlanWithCanvas builds the timeline for segments in caller order.
//
// Each segment contributes its valid trim window, or its whole probed
// duration, clamped to the probed duration. Slots are contiguous and every
// instruction carries the transform of its own segment. A segment that
// clamps to nothing keeps a zero-length instruction.
func PlanWithCanvas(segments []segment.Descriptor, meta map[string]media.ProbedMetadata, policy CanvasPolicy) (*Timeline, error) {
	tl := &Timeline{Instructions: make([]Instruction, 0, len(segments))}

	var cursor media.Millis
	for i, seg := range segments {
		md, ok := meta[seg.ID]
		if !ok {
			return nil, fmt.Errorf("%w: segment %s", ErrMissingMetadata, seg.ID)
		}

		src := effectiveRange(seg, md.Duration)
		in := Instruction{
			Index:          i,
			SegmentID:      seg.ID,
			SourceLocation: seg.SourceLocation,
			Output:         media.Range{Start: cursor, End: cursor + src.Duration()},
			Source:         src,
			Transform:      md.Transform,
			Natural:        md.Natural(),
			HasAudio:       md.HasAudio,
		}
		tl.Instructions = append(tl.Instructions, in)
		cursor = in.Output.End
	}
	tl.Total = cursor

	if tl.Total == 0 {
		return nil, &EmptyCompositionError{Segments: len(segments)}
	}

	tl.Canvas = canvasFor(tl, policy)
	return tl, nil
}

func effectiveRange(seg segment.Descriptor, dur media.Millis) media.Range {
	if dur < 0 {
		dur = 0
	}
	r, ok := seg.Trim()
	if !ok {
		return media.Range{Start: 0, End: dur}
	}
	r.Start = r.Start.Clamp(0, dur)
	r.End = r.End.Clamp(r.Start, dur)
	return r
}

func canvasFor(tl *Timeline, policy CanvasPolicy) media.Size {
	if policy.Fixed.Width > 0 && policy.Fixed.Height > 0 {
		return policy.Fixed.Even()
	}
	for _, in := range tl.Instructions {
		if !in.Empty() {
			return in.Display().Even()
		}
	}
	return media.Size{}
}
