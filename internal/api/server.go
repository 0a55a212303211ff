// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the local control API for exports.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/reelforge/internal/drafts"
	"github.com/ManuGH/reelforge/internal/fsutil"
	"github.com/ManuGH/reelforge/internal/health"
	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	defaultStartLimit  = 30
	defaultStartWindow = time.Minute
	shutdownTimeout    = 10 * time.Second
	maxBodyBytes       = 1 << 20
)

// Exporter is the export controller as seen by the API.
type Exporter interface {
	Start(ctx context.Context, req session.Request) (*session.Session, error)
	Active() *session.Session
	Latest() *session.Session
	State() session.State
	Cancel()
	Duration(ctx context.Context, path string) (float64, error)
}

// Reloader reloads the live configuration.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Deps are the collaborators of a Server. Drafts, Health and Reloader may
// be nil.
type Deps struct {
	Exporter    Exporter
	Drafts      drafts.Store
	Health      *health.Manager
	Reloader    Reloader
	Mapper      fsutil.Mapper
	Version     string
	StartLimit  int
	StartWindow time.Duration
}

// Server routes HTTP requests to the export controller.
type Server struct {
	deps   Deps
	logger zerolog.Logger

	// streaming marks sessions whose event stream has a reader.
	streaming sync.Map
}

// New returns a Server. It panics without an Exporter.
func New(deps Deps) *Server {
	if deps.Exporter == nil {
		panic("api: New requires an Exporter")
	}
	if deps.StartLimit < 1 {
		deps.StartLimit = defaultStartLimit
	}
	if deps.StartWindow <= 0 {
		deps.StartWindow = defaultStartWindow
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(deps.Version)
	}
	exporter := deps.Exporter
	deps.Health.SetDetails(func() map[string]any {
		return map[string]any{"exportState": exporter.State().String()}
	})
	return &Server{deps: deps, logger: log.WithComponent("api")}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(accessLog)

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(startLimit(s.deps.StartLimit, s.deps.StartWindow)).Post("/exports", s.handleStartExport)
		r.Get("/exports/current", s.handleCurrentExport)
		r.Get("/exports/current/events", s.handleExportEvents)
		r.Delete("/exports/current", s.handleCancelExport)
		r.Get("/duration", s.handleDuration)

		r.Get("/drafts", s.handleListDrafts)
		r.Get("/drafts/{id}", s.handleGetDraft)
		r.Put("/drafts/{id}", s.handlePutDraft)

		r.Post("/config/reload", s.handleConfigReload)
	})

	return traced(r, "reelforge")
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
// Open event streams end with ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str(log.FieldEvent, "api.listen").Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	s.logger.Info().Str(log.FieldEvent, "api.stopped").Msg("api stopped")
	return err
}
