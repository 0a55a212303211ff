// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import "fmt"

// Transform is the display transform of a video track: mirror horizontally
// (when FlipH is set), then rotate clockwise by Rotation degrees.
// Rotation is always one of 0, 90, 180, 270.
type Transform struct {
	Rotation int  `json:"rotation"`
	FlipH    bool `json:"flipH,omitempty"`
}

// Identity is the transform of a track that already displays upright.
func Identity() Transform {
	return Transform{}
}

// NormalizeRotation maps arbitrary degrees onto the nearest quadrant in [0, 360).
func NormalizeRotation(deg float64) int {
	q := int(deg/90+sign(deg)*0.5) * 90
	q %= 360
	if q < 0 {
		q += 360
	}
	return q
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// IsIdentity reports whether the transform leaves frames untouched.
func (t Transform) IsIdentity() bool {
	return t.Rotation == 0 && !t.FlipH
}

// SwapsAxes reports whether displayed width and height are swapped.
func (t Transform) SwapsAxes() bool {
	return t.Rotation == 90 || t.Rotation == 270
}

func (t Transform) String() string {
	if t.FlipH {
		return fmt.Sprintf("hflip+rot%d", t.Rotation)
	}
	return fmt.Sprintf("rot%d", t.Rotation)
}

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Even rounds both dimensions down to even numbers (minimum 2), as required
// by 4:2:0 chroma subsampling.
func (s Size) Even() Size {
	w, h := s.Width&^1, s.Height&^1
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return Size{Width: w, Height: h}
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ProbedMetadata is what the probe learns about one source file.
type ProbedMetadata struct {
	NaturalWidth  int
	NaturalHeight int
	Transform     Transform
	Duration      Millis
	HasAudio      bool
	VideoCodec    string
	FrameRate     float64
}

// Natural returns the undecoded track size.
func (m ProbedMetadata) Natural() Size {
	return Size{Width: m.NaturalWidth, Height: m.NaturalHeight}
}

// DisplaySize returns the upright size after applying the display transform.
func (m ProbedMetadata) DisplaySize() Size {
	if m.Transform.SwapsAxes() {
		return Size{Width: m.NaturalHeight, Height: m.NaturalWidth}
	}
	return m.Natural()
}
