// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is strict: defaults -> parse file (strict) -> apply env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fileCfg, err := LoadFileConfig(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	mergeEnvConfig(&cfg)
	cfg.FFmpeg.FFprobeBin = ResolveFFprobeBin(cfg.FFmpeg.FFprobeBin, cfg.FFmpeg.Bin)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.DraftsDB != "" && !filepath.IsAbs(cfg.DraftsDB) {
		cfg.DraftsDB = filepath.Join(cfg.DataDir, cfg.DraftsDB)
	}
	if cfg.MediaRoot != "" && !filepath.IsAbs(cfg.MediaRoot) {
		cfg.MediaRoot = filepath.Join(cfg.DataDir, cfg.MediaRoot)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   DefaultLogLevel,
		LogService: "reelforge",
		DataDir:    defaultDataDir(),
		TempDir:    os.TempDir(),
		ListenAddr: DefaultListenAddr,
		DraftsDB:   DefaultDraftsDB,
		MediaRoot:  DefaultMediaRoot,
		FFmpeg: FFmpegConfig{
			Bin:     "ffmpeg",
			Backend: DefaultBackend,
		},
		Probe: ProbeConfig{
			Concurrency: DefaultProbeConcurrency,
			Timeout:     30 * time.Second,
		},
		Export: ExportConfig{
			CancelGrace:  DefaultCancelGrace,
			KillGrace:    DefaultKillGrace,
			StallTimeout: DefaultStallTimeout,
		},
		Encoder: EncoderConfig{
			Preset:       DefaultVideoPreset,
			CRF:          DefaultVideoCRF,
			AudioBitrate: DefaultAudioBitrate,
			FrameRate:    DefaultFrameRate,
			CanvasPolicy: CanvasFirstSegment,
		},
		Tracing: TracingConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reelforge"
	}
	return filepath.Join(home, ".reelforge")
}

// LoadFileConfig loads a YAML config file without applying defaults or env overrides.
func LoadFileConfig(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseFileConfig(data)
}

func parseFileConfig(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.TempDir, f.TempDir)
	setString(&cfg.ListenAddr, f.ListenAddr)
	setString(&cfg.DraftsDB, f.DraftsDB)
	setString(&cfg.MediaRoot, f.MediaRoot)

	if f.FFmpeg != nil {
		setString(&cfg.FFmpeg.Bin, f.FFmpeg.Bin)
		setString(&cfg.FFmpeg.FFprobeBin, f.FFmpeg.FFprobeBin)
		setString(&cfg.FFmpeg.Backend, f.FFmpeg.Backend)
	}
	if f.Probe != nil {
		setInt(&cfg.Probe.Concurrency, f.Probe.Concurrency)
		if err := setDuration(&cfg.Probe.Timeout, "probe.timeout", f.Probe.Timeout); err != nil {
			return err
		}
	}
	if f.Export != nil {
		if err := setDuration(&cfg.Export.CancelGrace, "export.cancelGrace", f.Export.CancelGrace); err != nil {
			return err
		}
		if err := setDuration(&cfg.Export.KillGrace, "export.killGrace", f.Export.KillGrace); err != nil {
			return err
		}
		if err := setDuration(&cfg.Export.StallTimeout, "export.stallTimeout", f.Export.StallTimeout); err != nil {
			return err
		}
	}
	if f.Encoder != nil {
		setString(&cfg.Encoder.Preset, f.Encoder.Preset)
		setInt(&cfg.Encoder.CRF, f.Encoder.CRF)
		setString(&cfg.Encoder.AudioBitrate, f.Encoder.AudioBitrate)
		setInt(&cfg.Encoder.FrameRate, f.Encoder.FrameRate)
		if c := f.Encoder.Canvas; c != nil {
			setString(&cfg.Encoder.CanvasPolicy, c.Policy)
			setInt(&cfg.Encoder.CanvasWidth, c.Width)
			setInt(&cfg.Encoder.CanvasHeight, c.Height)
		}
	}
	if t := f.Tracing; t != nil {
		if t.Enabled != nil {
			cfg.Tracing.Enabled = *t.Enabled
		}
		setString(&cfg.Tracing.Exporter, t.Exporter)
		setString(&cfg.Tracing.Endpoint, t.Endpoint)
		if t.SamplingRate != nil {
			cfg.Tracing.SamplingRate = *t.SamplingRate
		}
	}
	return nil
}

func mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
	cfg.DataDir = ParseString(EnvDataDir, cfg.DataDir)
	cfg.TempDir = ParseString(EnvTempDir, cfg.TempDir)
	cfg.ListenAddr = ParseString(EnvListenAddr, cfg.ListenAddr)
	cfg.DraftsDB = ParseString(EnvDraftsDB, cfg.DraftsDB)
	cfg.MediaRoot = ParseString(EnvMediaRoot, cfg.MediaRoot)

	cfg.FFmpeg.Bin = ParseString(EnvFFmpegBin, cfg.FFmpeg.Bin)
	cfg.FFmpeg.FFprobeBin = ParseString(EnvFFprobeBin, cfg.FFmpeg.FFprobeBin)
	cfg.FFmpeg.Backend = ParseString(EnvBackend, cfg.FFmpeg.Backend)

	cfg.Probe.Concurrency = ParseInt(EnvProbeConcurrency, cfg.Probe.Concurrency)
	cfg.Probe.Timeout = ParseDuration(EnvProbeTimeout, cfg.Probe.Timeout)

	cfg.Export.CancelGrace = ParseDuration(EnvCancelGrace, cfg.Export.CancelGrace)
	cfg.Export.KillGrace = ParseDuration(EnvKillGrace, cfg.Export.KillGrace)
	cfg.Export.StallTimeout = ParseDuration(EnvStallTimeout, cfg.Export.StallTimeout)

	cfg.Encoder.Preset = ParseString(EnvVideoPreset, cfg.Encoder.Preset)
	cfg.Encoder.CRF = ParseInt(EnvVideoCRF, cfg.Encoder.CRF)
	cfg.Encoder.AudioBitrate = ParseString(EnvAudioBitrate, cfg.Encoder.AudioBitrate)
	cfg.Encoder.FrameRate = ParseInt(EnvFrameRate, cfg.Encoder.FrameRate)
	cfg.Encoder.CanvasWidth = ParseInt(EnvCanvasWidth, cfg.Encoder.CanvasWidth)
	cfg.Encoder.CanvasHeight = ParseInt(EnvCanvasHeight, cfg.Encoder.CanvasHeight)
	if cfg.Encoder.CanvasWidth > 0 && cfg.Encoder.CanvasHeight > 0 {
		cfg.Encoder.CanvasPolicy = CanvasFixed
	}

	cfg.Tracing.Enabled = ParseBool(EnvTracingEnabled, cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = ParseString(EnvTracingExporter, cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = ParseString(EnvTracingEndpoint, cfg.Tracing.Endpoint)
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
