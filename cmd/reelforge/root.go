// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/reelforge/internal/config"
	xglog "github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/plan"
	"github.com/ManuGH/reelforge/internal/probe"
	"github.com/ManuGH/reelforge/internal/render"
	"github.com/ManuGH/reelforge/internal/session"
	"github.com/ManuGH/reelforge/internal/version"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once the configuration is loaded.
type app struct {
	configPath string
	loadedPath string // file actually loaded, empty for env and defaults only
	cfg        config.AppConfig
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "reelforge",
		Short:         "Compose recorded segments into a single video",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file (YAML)")

	root.AddCommand(
		newServeCmd(a),
		newComposeCmd(a),
		newDurationCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and reconfigures logging from it. Without
// --config, <dataDir>/config.yaml is used when present.
func (a *app) load() error {
	xglog.Configure(xglog.Config{Level: "info", Service: "reelforge", Version: version.Version})

	path := strings.TrimSpace(a.configPath)
	if path == "" {
		auto := filepath.Join(config.ParseString(config.EnvDataDir, config.Defaults().DataDir), "config.yaml")
		if _, err := os.Stat(auto); err == nil {
			path = auto
		}
	}

	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg
	a.loadedPath = path

	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
	logger := xglog.WithComponent("cli")
	evt := logger.Debug().Str(xglog.FieldEvent, "config.loaded")
	if path != "" {
		evt = evt.Str("source", "file").Str(xglog.FieldPath, path)
	} else {
		evt = evt.Str("source", "env+defaults")
	}
	evt.Msg("configuration loaded")
	return nil
}

func (a *app) prober() *probe.FFprobe {
	return probe.NewFFprobe(a.cfg.FFmpeg.FFprobeBin, a.cfg.Probe.Timeout)
}

func (a *app) backend() render.Backend {
	return backendFor(a.cfg)
}

func backendFor(cfg config.AppConfig) render.Backend {
	return render.NewPlatformBackend(cfg.FFmpeg.Backend, render.EncoderSettings{
		Bin:          cfg.FFmpeg.Bin,
		Preset:       cfg.Encoder.Preset,
		CRF:          cfg.Encoder.CRF,
		AudioBitrate: cfg.Encoder.AudioBitrate,
		FrameRate:    cfg.Encoder.FrameRate,
		KillGrace:    cfg.Export.KillGrace,
		StallTimeout: cfg.Export.StallTimeout,
	})
}

func canvasFor(cfg config.AppConfig) plan.CanvasPolicy {
	if cfg.Encoder.CanvasPolicy != config.CanvasFixed {
		return plan.CanvasPolicy{}
	}
	return plan.CanvasPolicy{Fixed: media.Size{
		Width:  cfg.Encoder.CanvasWidth,
		Height: cfg.Encoder.CanvasHeight,
	}}
}

// tuningFor maps the reloadable part of cfg onto session settings.
func tuningFor(cfg config.AppConfig) session.Tuning {
	return session.Tuning{
		Backend:          backendFor(cfg),
		ProbeConcurrency: cfg.Probe.Concurrency,
		CancelGrace:      cfg.Export.CancelGrace,
		Canvas:           canvasFor(cfg),
	}
}

// controller builds the export controller. With a holder, every export
// picks up the configuration current at its start.
func (a *app) controller(recorder session.Recorder, holder *config.Holder) *session.Controller {
	opts := session.Options{
		Prober:           a.prober(),
		Backend:          a.backend(),
		TempDir:          a.cfg.TempDir,
		ProbeConcurrency: a.cfg.Probe.Concurrency,
		CancelGrace:      a.cfg.Export.CancelGrace,
		Canvas:           canvasFor(a.cfg),
		Recorder:         recorder,
	}
	if holder != nil {
		opts.Tuning = func() session.Tuning { return tuningFor(holder.Get()) }
	}
	return session.NewController(opts)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reelforge %s\n", version.String())
		},
	}
}
