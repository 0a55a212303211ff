// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveFFprobeBin returns an effective ffprobe binary path based on configured values.
//
// Resolution order:
// 1) Explicit ffprobeBin (e.g. REELFORGE_FFPROBE_BIN)
// 2) Derive from ffmpegBin (.../ffmpeg -> .../ffprobe) if the derived binary exists
// 3) "ffprobe" (PATH resolution)
func ResolveFFprobeBin(ffprobeBin, ffmpegBin string) string {
	return resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin, os.Stat)
}

func resolveFFprobeBinWithStat(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	ffprobeBin = strings.TrimSpace(ffprobeBin)
	if ffprobeBin != "" {
		return ffprobeBin
	}

	ffmpegBin = strings.TrimSpace(ffmpegBin)
	// Only derive from a concrete ffmpeg path; a bare "ffmpeg" is resolved via PATH.
	if !strings.ContainsRune(ffmpegBin, filepath.Separator) {
		return "ffprobe"
	}
	base := strings.TrimSuffix(filepath.Base(ffmpegBin), ".exe")
	if base != "ffmpeg" {
		return "ffprobe"
	}

	candidate := filepath.Join(filepath.Dir(ffmpegBin), strings.Replace(filepath.Base(ffmpegBin), "ffmpeg", "ffprobe", 1))
	if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
		return candidate
	}
	return "ffprobe"
}
