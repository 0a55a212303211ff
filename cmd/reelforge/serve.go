// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/reelforge/internal/api"
	"github.com/ManuGH/reelforge/internal/config"
	"github.com/ManuGH/reelforge/internal/drafts"
	"github.com/ManuGH/reelforge/internal/fsutil"
	"github.com/ManuGH/reelforge/internal/health"
	xglog "github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/telemetry"
	"github.com/ManuGH/reelforge/internal/version"
	"github.com/spf13/cobra"
)

const controllerShutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local export API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.ListenAddr = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the configuration")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	logger := xglog.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, telemetry.FromAppConfig(a.cfg))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	if err := health.PerformStartupChecks(a.cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}
	store, err := drafts.Open(a.cfg.DraftsDB, drafts.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	holder := config.NewHolder(a.cfg, config.NewLoader(a.loadedPath, version.Version), a.loadedPath)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config watcher unavailable, reload disabled")
	}
	defer holder.Stop()
	go applyLogLevel(ctx, holder)

	ctrl := a.controller(store, holder)
	backend := a.backend()
	if err := backend.Check(ctx); err != nil {
		logger.Warn().
			Err(err).
			Str(xglog.FieldBackend, backend.Name()).
			Str(xglog.FieldEvent, "startup.backend_unavailable").
			Msg("encoder backend unavailable, exports will fail")
	}

	logger.Info().
		Str(xglog.FieldEvent, "startup.complete").
		Str("listen", a.cfg.ListenAddr).
		Str("drafts_db", a.cfg.DraftsDB).
		Str("media_root", a.cfg.MediaRoot).
		Msg("reelforge serving")

	hm := health.NewManager(version.Version)
	hm.Register(
		health.Func("encoder", backend.Check),
		health.NewBinaryChecker("ffprobe", a.cfg.FFmpeg.FFprobeBin),
		health.NewDirChecker("temp_dir", a.cfg.TempDir),
		health.Func("drafts_db", store.Ping),
	)

	srv := api.New(api.Deps{
		Exporter: ctrl,
		Drafts:   store,
		Health:   hm,
		Mapper:   fsutil.Mapper{Root: a.cfg.MediaRoot},
		Reloader: holder,
		Version:  version.Version,
	})
	serveErr := srv.ListenAndServe(ctx, a.cfg.ListenAddr)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), controllerShutdownTimeout)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("export did not stop before shutdown timeout")
	}
	logger.Info().Str(xglog.FieldEvent, "shutdown.complete").Msg("reelforge stopped")
	return serveErr
}

// applyLogLevel reconfigures logging when a reload changes the level.
func applyLogLevel(ctx context.Context, holder *config.Holder) {
	ch := make(chan config.AppConfig, 1)
	holder.RegisterListener(ch)
	level := holder.Get().LogLevel
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-ch:
			if cfg.LogLevel == level {
				continue
			}
			level = cfg.LogLevel
			xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
		}
	}
}
