// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the engine configuration with precedence
// ENV > YAML file > defaults.
package config

import "time"

// Canvas policies.
const (
	CanvasFirstSegment = "first_segment"
	CanvasFixed        = "fixed"
)

// Defaults.
const (
	DefaultLogLevel         = "info"
	DefaultListenAddr       = "127.0.0.1:8797"
	DefaultProbeConcurrency = 4
	DefaultCancelGrace      = 5 * time.Second
	DefaultKillGrace        = 2 * time.Second
	DefaultStallTimeout     = 2 * time.Minute
	DefaultVideoPreset      = "veryfast"
	DefaultVideoCRF         = 20
	DefaultAudioBitrate     = "128k"
	DefaultFrameRate        = 30
	DefaultBackend          = "auto"
	DefaultDraftsDB         = "drafts.db"
	DefaultMediaRoot        = "media"
)

// AppConfig is the effective runtime configuration.
type AppConfig struct {
	Version    string
	LogLevel   string
	LogService string
	DataDir    string
	TempDir    string
	ListenAddr string
	DraftsDB   string
	MediaRoot  string

	FFmpeg  FFmpegConfig
	Probe   ProbeConfig
	Export  ExportConfig
	Encoder EncoderConfig
	Tracing TracingConfig
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled      bool
	Exporter     string // "grpc" or "http"
	Endpoint     string
	SamplingRate float64
}

// FFmpegConfig locates the encoder binaries.
type FFmpegConfig struct {
	Bin        string
	FFprobeBin string
	Backend    string // "auto", "ffmpeg" or "unsupported"
}

// ProbeConfig tunes the metadata probe.
type ProbeConfig struct {
	Concurrency int
	Timeout     time.Duration
}

// ExportConfig tunes session control.
type ExportConfig struct {
	// CancelGrace bounds how long Cancel waits for the run to acknowledge
	// before forcing the Cancelled state.
	CancelGrace time.Duration
	// KillGrace is the SIGTERM -> SIGKILL delay for encoder processes.
	KillGrace    time.Duration
	StallTimeout time.Duration
}

// EncoderConfig describes the output encode.
type EncoderConfig struct {
	Preset       string
	CRF          int
	AudioBitrate string
	FrameRate    int
	CanvasPolicy string
	CanvasWidth  int
	CanvasHeight int
}

// FileConfig is the YAML shape of the configuration file.
type FileConfig struct {
	LogLevel   string `yaml:"logLevel,omitempty"`
	DataDir    string `yaml:"dataDir,omitempty"`
	TempDir    string `yaml:"tempDir,omitempty"`
	ListenAddr string `yaml:"listenAddr,omitempty"`
	DraftsDB   string `yaml:"draftsDb,omitempty"`
	MediaRoot  string `yaml:"mediaRoot,omitempty"`

	FFmpeg *struct {
		Bin        string `yaml:"bin,omitempty"`
		FFprobeBin string `yaml:"ffprobeBin,omitempty"`
		Backend    string `yaml:"backend,omitempty"`
	} `yaml:"ffmpeg,omitempty"`

	Probe *struct {
		Concurrency int    `yaml:"concurrency,omitempty"`
		Timeout     string `yaml:"timeout,omitempty"`
	} `yaml:"probe,omitempty"`

	Export *struct {
		CancelGrace  string `yaml:"cancelGrace,omitempty"`
		KillGrace    string `yaml:"killGrace,omitempty"`
		StallTimeout string `yaml:"stallTimeout,omitempty"`
	} `yaml:"export,omitempty"`

	Encoder *struct {
		Preset       string `yaml:"preset,omitempty"`
		CRF          int    `yaml:"crf,omitempty"`
		AudioBitrate string `yaml:"audioBitrate,omitempty"`
		FrameRate    int    `yaml:"frameRate,omitempty"`
		Canvas       *struct {
			Policy string `yaml:"policy,omitempty"`
			Width  int    `yaml:"width,omitempty"`
			Height int    `yaml:"height,omitempty"`
		} `yaml:"canvas,omitempty"`
	} `yaml:"encoder,omitempty"`

	Tracing *struct {
		Enabled      *bool    `yaml:"enabled,omitempty"`
		Exporter     string   `yaml:"exporter,omitempty"`
		Endpoint     string   `yaml:"endpoint,omitempty"`
		SamplingRate *float64 `yaml:"samplingRate,omitempty"`
	} `yaml:"tracing,omitempty"`
}
