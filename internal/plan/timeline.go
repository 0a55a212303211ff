// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package plan

import (
	"fmt"

	"github.com/ManuGH/reelforge/internal/media"
)

// Instruction maps one source range onto one output slot.
type Instruction struct {
	Index          int             `json:"index"`
	SegmentID      string          `json:"segmentId"`
	SourceLocation string          `json:"source"`
	Output         media.Range     `json:"output"`
	Source         media.Range     `json:"sourceRange"`
	Transform      media.Transform `json:"transform"`
	Natural        media.Size      `json:"natural"`
	HasAudio       bool            `json:"hasAudio"`
}

// Empty reports whether the instruction contributes no output time.
func (in Instruction) Empty() bool {
	return in.Output.Empty()
}

// Display returns the upright frame size of the source.
func (in Instruction) Display() media.Size {
	if in.Transform.SwapsAxes() {
		return media.Size{Width: in.Natural.Height, Height: in.Natural.Width}
	}
	return in.Natural
}

// Timeline is the ordered, gap-free layout of a composition.
type Timeline struct {
	Instructions []Instruction `json:"instructions"`
	Total        media.Millis  `json:"totalMs"`
	Canvas       media.Size    `json:"canvas"`
}

// At returns the instruction whose output range contains t.
func (tl *Timeline) At(t media.Millis) (Instruction, bool) {
	for _, in := range tl.Instructions {
		if in.Output.Contains(t) {
			return in, true
		}
	}
	return Instruction{}, false
}

// NonEmpty returns the instructions that contribute output time, in order.
func (tl *Timeline) NonEmpty() []Instruction {
	out := make([]Instruction, 0, len(tl.Instructions))
	for _, in := range tl.Instructions {
		if !in.Empty() {
			out = append(out, in)
		}
	}
	return out
}

// Validate re-checks ordering, contiguity and additivity of the layout.
func (tl *Timeline) Validate() error {
	var cursor media.Millis
	for i, in := range tl.Instructions {
		if in.Index != i {
			return fmt.Errorf("instruction %d: index %d out of order", i, in.Index)
		}
		if in.Output.Start != cursor {
			return fmt.Errorf("instruction %d: starts at %d, want %d", i, in.Output.Start, cursor)
		}
		if in.Output.End < in.Output.Start {
			return fmt.Errorf("instruction %d: negative output range", i)
		}
		if in.Output.Duration() != in.Source.Duration() {
			return fmt.Errorf("instruction %d: output %dms != source %dms", i, in.Output.Duration(), in.Source.Duration())
		}
		if in.Source.Start < 0 {
			return fmt.Errorf("instruction %d: negative source start", i)
		}
		cursor = in.Output.End
	}
	if cursor != tl.Total {
		return fmt.Errorf("total %d != sum of instructions %d", tl.Total, cursor)
	}
	return nil
}
