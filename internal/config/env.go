// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/ManuGH/reelforge/internal/log"
)

// Environment variable names.
const (
	EnvLogLevel         = "REELFORGE_LOG_LEVEL"
	EnvDataDir          = "REELFORGE_DATA_DIR"
	EnvTempDir          = "REELFORGE_TEMP_DIR"
	EnvListenAddr       = "REELFORGE_LISTEN_ADDR"
	EnvDraftsDB         = "REELFORGE_DRAFTS_DB"
	EnvMediaRoot        = "REELFORGE_MEDIA_ROOT"
	EnvFFmpegBin        = "REELFORGE_FFMPEG_BIN"
	EnvFFprobeBin       = "REELFORGE_FFPROBE_BIN"
	EnvBackend          = "REELFORGE_BACKEND"
	EnvProbeConcurrency = "REELFORGE_PROBE_CONCURRENCY"
	EnvProbeTimeout     = "REELFORGE_PROBE_TIMEOUT"
	EnvCancelGrace      = "REELFORGE_CANCEL_GRACE"
	EnvKillGrace        = "REELFORGE_KILL_GRACE"
	EnvStallTimeout     = "REELFORGE_STALL_TIMEOUT"
	EnvVideoPreset      = "REELFORGE_VIDEO_PRESET"
	EnvVideoCRF         = "REELFORGE_VIDEO_CRF"
	EnvAudioBitrate     = "REELFORGE_AUDIO_BITRATE"
	EnvFrameRate        = "REELFORGE_FRAME_RATE"
	EnvCanvasWidth      = "REELFORGE_CANVAS_WIDTH"
	EnvCanvasHeight     = "REELFORGE_CANVAS_HEIGHT"
	EnvTracingEnabled   = "REELFORGE_TRACING_ENABLED"
	EnvTracingExporter  = "REELFORGE_TRACING_EXPORTER"
	EnvTracingEndpoint  = "REELFORGE_TRACING_ENDPOINT"
)

// ParseString reads a string from environment variable or returns default value.
// It logs the source (environment or default) for observability.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if value, ok := os.LookupEnv(key); ok && value != "" {
		logger.Debug().
			Str("key", key).
			Str("value", value).
			Str("source", "environment").
			Msg("using environment variable")
		return value
	}
	logger.Debug().
		Str("key", key).
		Str("default", defaultValue).
		Str("source", "default").
		Msg("using default value")
	return defaultValue
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Int("value", i).
		Str("source", "environment").
		Msg("using environment variable")
	return i
}

// ParseDuration reads a duration from environment variable in Go duration format (e.g. "5s").
// It falls back to default on parse errors or empty variables and logs the choice.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Dur("value", d).
		Str("source", "environment").
		Msg("using environment variable")
	return d
}

// ParseBool reads a boolean from environment variable or returns default value.
// Accepts the forms understood by strconv.ParseBool.
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
		return defaultValue
	}
	return b
}
