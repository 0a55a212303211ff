// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package render

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ffmpegProgress is one block of `-progress` output.
type ffmpegProgress struct {
	OutTimeUs int64
	TotalSize int64
	Frame     int64
	Speed     string
	End       bool
}

func (p ffmpegProgress) hasAdvanced(prev ffmpegProgress) bool {
	return p.OutTimeUs > prev.OutTimeUs || p.TotalSize > prev.TotalSize || p.Frame > prev.Frame
}

// parseProgress reads key=value lines from r and calls emit at every
// progress= flush line until r is exhausted.
func parseProgress(r io.Reader, emit func(ffmpegProgress)) {
	scanner := bufio.NewScanner(r)
	var current ffmpegProgress

	for scanner.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)

		switch key {
		case "out_time_us", "out_time_ms":
			// out_time_ms is microseconds too in every ffmpeg release.
			if v, err := strconv.ParseInt(val, 10, 64); err == nil && v >= 0 {
				current.OutTimeUs = v
			}
		case "total_size":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.TotalSize = v
			}
		case "frame":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				current.Frame = v
			}
		case "speed":
			current.Speed = val
		case "progress":
			current.End = val == "end"
			emit(current)
		}
	}
}
