// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package media holds the time and orientation primitives shared by the
// probe, planner and renderer.
package media

import (
	"math"
	"strconv"
)

// Millis is a point or span on a media timeline in integer milliseconds.
// All composition arithmetic happens in Millis so many segments never
// accumulate floating point drift.
type Millis int64

// MillisFromSeconds converts probed float seconds, rounding half away from zero.
func MillisFromSeconds(sec float64) Millis {
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0
	}
	return Millis(math.Round(sec * 1000))
}

// Seconds returns the value as float seconds.
func (m Millis) Seconds() float64 {
	return float64(m) / 1000
}

// FFmpegSeconds formats the value as seconds with millisecond precision,
// the form accepted by ffmpeg's -ss and -t options.
func (m Millis) FFmpegSeconds() string {
	neg := m < 0
	if neg {
		m = -m
	}
	s := strconv.FormatInt(int64(m/1000), 10) + "." + pad3(int64(m%1000))
	if neg {
		return "-" + s
	}
	return s
}

func pad3(v int64) string {
	s := strconv.FormatInt(v, 10)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

// Clamp limits m to [lo, hi].
func (m Millis) Clamp(lo, hi Millis) Millis {
	if m < lo {
		return lo
	}
	if m > hi {
		return hi
	}
	return m
}

// Range is a half-open interval [Start, End) on a timeline.
type Range struct {
	Start Millis `json:"startMs"`
	End   Millis `json:"endMs"`
}

// Duration returns End-Start, never negative.
func (r Range) Duration() Millis {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range covers no time.
func (r Range) Empty() bool {
	return r.Duration() == 0
}

// Contains reports whether t lies inside [Start, End).
func (r Range) Contains(t Millis) bool {
	return t >= r.Start && t < r.End
}
