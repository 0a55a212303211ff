// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package probe reads per-segment video metadata (natural size, display
// transform, duration, audio presence) with ffprobe.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/metrics"
)

const maxStderr = 4096

// Prober reads the metadata of a single source file.
type Prober interface {
	Probe(ctx context.Context, sourceLocation string) (media.ProbedMetadata, error)
}

// FFprobe implements Prober by running the ffprobe binary.
type FFprobe struct {
	Bin     string
	Timeout time.Duration
}

// NewFFprobe returns an FFprobe using bin, or "ffprobe" from PATH when empty.
func NewFFprobe(bin string, timeout time.Duration) *FFprobe {
	if strings.TrimSpace(bin) == "" {
		bin = "ffprobe"
	}
	return &FFprobe{Bin: bin, Timeout: timeout}
}

// Probe runs ffprobe against path. Each call is independent; nothing is
// cached or shared between files.
func (p *FFprobe) Probe(ctx context.Context, path string) (media.ProbedMetadata, error) {
	start := time.Now()
	md, err := p.probe(ctx, path)
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrUnreadableMedia) {
			metrics.ProbeFailuresTotal.Inc()
		}
		return media.ProbedMetadata{}, err
	}

	logger := log.WithComponentFromContext(ctx, "probe")
	logger.Debug().
		Str(log.FieldPath, path).
		Str(log.FieldCodec, md.VideoCodec).
		Str(log.FieldResolution, md.Natural().String()).
		Int(log.FieldRotation, md.Transform.Rotation).
		Bool("flip_h", md.Transform.FlipH).
		Int64(log.FieldDurationMs, int64(md.Duration)).
		Bool("has_audio", md.HasAudio).
		Msg("probed segment")
	return md, nil
}

func (p *FFprobe) probe(ctx context.Context, path string) (media.ProbedMetadata, error) {
	// ffprobe reports a missing file as a generic failure; check first so the
	// cause is explicit.
	fi, err := os.Stat(path)
	if err != nil {
		return media.ProbedMetadata{}, &UnreadableMediaError{Path: path, Err: err}
	}
	if fi.IsDir() {
		return media.ProbedMetadata{}, unreadable(path, "is a directory")
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	// #nosec G204 -- binary comes from operator config; path is passed as a single argument
	cmd := exec.CommandContext(ctx, p.Bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, runErr := cmd.Output()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return media.ProbedMetadata{}, fmt.Errorf("probe %s: %w", path, ctxErr)
	}
	if runErr != nil {
		var execErr *exec.Error
		if errors.As(runErr, &execErr) {
			// Binary missing is an environment problem, not a property of the file.
			return media.ProbedMetadata{}, fmt.Errorf("run ffprobe: %w", runErr)
		}
		return media.ProbedMetadata{}, unreadable(path, "ffprobe: %v (stderr: %s)", runErr, truncate(stderr.String()))
	}

	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return media.ProbedMetadata{}, unreadable(path, "decode ffprobe output: %v", err)
	}
	return data.metadata(path)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[:maxStderr] + "..."
	}
	return s
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	Duration     string            `json:"duration,omitempty"`
	AvgFrameRate string            `json:"avg_frame_rate,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	SideDataList []sideData        `json:"side_data_list,omitempty"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type sideData struct {
	SideDataType  string   `json:"side_data_type"`
	DisplayMatrix string   `json:"displaymatrix,omitempty"`
	Rotation      *float64 `json:"rotation,omitempty"`
}

type probeData struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

func (d probeData) metadata(path string) (media.ProbedMetadata, error) {
	var video *probeStream
	hasAudio := false
	for i := range d.Streams {
		s := &d.Streams[i]
		switch s.CodecType {
		case "video":
			// Cover art is reported as a video stream; it is not a track.
			if video == nil && s.CodecName != "" && s.Disposition.AttachedPic == 0 {
				video = s
			}
		case "audio":
			if s.CodecName != "" {
				hasAudio = true
			}
		}
	}
	if video == nil {
		return media.ProbedMetadata{}, unreadable(path, "no video track")
	}
	if video.Width <= 0 || video.Height <= 0 {
		return media.ProbedMetadata{}, unreadable(path, "video track has no dimensions")
	}

	dur := parseSeconds(video.Duration)
	if dur <= 0 {
		dur = parseSeconds(d.Format.Duration)
	}
	ms := media.MillisFromSeconds(dur)
	if ms <= 0 {
		return media.ProbedMetadata{}, unreadable(path, "unknown duration")
	}

	return media.ProbedMetadata{
		NaturalWidth:  video.Width,
		NaturalHeight: video.Height,
		Transform:     video.transform(),
		Duration:      ms,
		HasAudio:      hasAudio,
		VideoCodec:    video.CodecName,
		FrameRate:     parseRate(video.AvgFrameRate),
	}, nil
}

// transform derives the display transform. The display matrix side data wins
// over the legacy rotate tag.
func (s probeStream) transform() media.Transform {
	for _, sd := range s.SideDataList {
		if sd.SideDataType != "Display Matrix" {
			continue
		}
		if m, ok := parseDisplayMatrix(sd.DisplayMatrix); ok {
			return m.transform()
		}
		if sd.Rotation != nil {
			// Side data rotation is counter-clockwise.
			return media.Transform{Rotation: media.NormalizeRotation(-*sd.Rotation)}
		}
		return media.Identity()
	}
	if v, ok := s.Tags["rotate"]; ok {
		if deg, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return media.Transform{Rotation: media.NormalizeRotation(deg)}
		}
	}
	return media.Identity()
}

// displayMatrix is the 2x2 part of a display matrix, row major.
type displayMatrix struct {
	a, b float64
	c, d float64
}

// parseDisplayMatrix reads an ffprobe display matrix dump, three rows of
// three integers:
//
//	00000000:        65536           0           0
//	00000001:            0       65536           0
//	00000002:            0           0  1073741824
func parseDisplayMatrix(dump string) (displayMatrix, bool) {
	var rows [][]float64
	for _, line := range strings.Split(dump, "\n") {
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		var row []float64
		for _, f := range strings.Fields(rest) {
			v, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return displayMatrix{}, false
			}
			row = append(row, float64(v))
		}
		if len(row) >= 2 {
			rows = append(rows, row)
		}
	}
	if len(rows) < 2 {
		return displayMatrix{}, false
	}
	m := displayMatrix{a: rows[0][0], b: rows[0][1], c: rows[1][0], d: rows[1][1]}
	if (m.a == 0 && m.b == 0) || (m.c == 0 && m.d == 0) {
		return displayMatrix{}, false
	}
	return m, true
}

// mirrored reports a negative determinant.
func (m displayMatrix) mirrored() bool {
	return m.a*m.d-m.b*m.c < 0
}

// transform maps the matrix onto a mirror followed by a clockwise quarter
// turn, the same decomposition ffmpeg's autorotation picks.
func (m displayMatrix) transform() media.Transform {
	rot := media.NormalizeRotation(math.Atan2(m.b, m.a) * 180 / math.Pi)
	switch rot {
	case 90:
		if m.c > 0 {
			// Transpose: mirror, then a quarter turn counter-clockwise.
			return media.Transform{Rotation: 270, FlipH: true}
		}
		return media.Transform{Rotation: 90}
	case 270:
		if m.c < 0 {
			// Anti-transpose.
			return media.Transform{Rotation: 90, FlipH: true}
		}
		return media.Transform{Rotation: 270}
	case 180:
		h, v := m.a < 0, m.d < 0
		switch {
		case h && v:
			return media.Transform{Rotation: 180}
		case h:
			return media.Transform{FlipH: true}
		case v:
			// A vertical flip is a mirror turned half way.
			return media.Transform{Rotation: 180, FlipH: true}
		}
		return media.Identity()
	default:
		if m.d < 0 {
			return media.Transform{Rotation: 180, FlipH: true}
		}
		return media.Identity()
	}
}

func parseSeconds(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseSeconds(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
