// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"net/http"

	"github.com/ManuGH/reelforge/internal/log"
)

// handleConfigReload reloads the configuration. The next export uses it;
// a running export keeps the settings it started with.
func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reloader == nil {
		writeError(w, r, http.StatusNotImplemented, "reload_unavailable", errors.New("config reload not available"))
		return
	}
	if err := s.deps.Reloader.Reload(r.Context()); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_rejected").Msg("config reload rejected")
		writeError(w, r, http.StatusUnprocessableEntity, "invalid_config", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
