// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package render

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ManuGH/reelforge/internal/media"
)

const (
	audioSampleRate = "48000"
	audioChannels   = "2"
)

// transformFilters returns the filters that turn decoded frames upright:
// mirror first, then rotate clockwise.
func transformFilters(t media.Transform) []string {
	var f []string
	if t.FlipH {
		f = append(f, "hflip")
	}
	switch t.Rotation {
	case 90:
		f = append(f, "transpose=clock")
	case 180:
		f = append(f, "hflip", "vflip")
	case 270:
		f = append(f, "transpose=cclock")
	}
	return f
}

// videoFilter builds the full -vf chain for one part.
func videoFilter(t media.Transform, canvas media.Size, fps int) string {
	w, h := canvas.Width, canvas.Height
	f := transformFilters(t)
	f = append(f,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:force_divisible_by=2", w, h),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", w, h),
		"setsar=1",
		"fps="+strconv.Itoa(fps),
		"format=yuv420p",
	)
	return strings.Join(f, ",")
}

// segmentArgs builds the ffmpeg arguments for one part. Autorotation is
// disabled so the probed transform is the only orientation applied.
func segmentArgs(s EncoderSettings, job SegmentJob) []string {
	in := job.Instruction
	start := in.Source.Start.FFmpegSeconds()
	dur := in.Source.Duration().FFmpegSeconds()

	args := []string{
		"-y",
		"-noautorotate",
		"-ss", start,
		"-t", dur,
		"-i", in.SourceLocation,
	}
	audioMap := "0:a:0"
	if !in.HasAudio {
		args = append(args,
			"-f", "lavfi",
			"-t", dur,
			"-i", "anullsrc=channel_layout=stereo:sample_rate="+audioSampleRate,
		)
		audioMap = "1:a:0"
	}

	args = append(args,
		"-map", "0:v:0",
		"-map", audioMap,
		"-vf", videoFilter(in.Transform, job.Canvas, s.FrameRate),
		"-c:v", "libx264",
		"-preset", s.Preset,
		"-crf", strconv.Itoa(s.CRF),
	)
	if in.HasAudio {
		// Pad short audio so parts keep A/V aligned after concat.
		args = append(args, "-af", "apad", "-shortest")
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", s.AudioBitrate,
		"-ac", audioChannels,
		"-ar", audioSampleRate,
		"-metadata:s:v:0", "rotate=0",
		"-f", "mp4",
		job.Output,
	)
	return args
}

// concatArgs builds the ffmpeg arguments that stream-copy the parts listed
// in listFile into out.
func concatArgs(listFile, out string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-map", "0",
		"-c", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}
}

// concatList renders the concat demuxer list for parts.
func concatList(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

func writeConcatList(path string, parts []string) error {
	if err := os.WriteFile(path, []byte(concatList(parts)), 0o600); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}
