// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ManuGH/reelforge/internal/events"
	"github.com/ManuGH/reelforge/internal/log"
	"github.com/ManuGH/reelforge/internal/probe"
	"github.com/ManuGH/reelforge/internal/segment"
	"github.com/ManuGH/reelforge/internal/session"
)

type startExportRequest struct {
	DraftID        string               `json:"draftId"`
	OutputLocation string               `json:"outputLocation"`
	Segments       []segment.Descriptor `json:"segments"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// handleStartExport starts an export from inline segments or, when only a
// draft id is given, from the draft's saved segments.
func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	var body startExportRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err)
		return
	}

	segs := body.Segments
	out := body.OutputLocation
	if len(segs) == 0 && body.DraftID != "" {
		d, err := s.loadDraft(r, body.DraftID)
		if err != nil {
			s.writeDraftError(w, r, err)
			return
		}
		segs = d.Segments
	}

	resolved, err := s.deps.Mapper.ResolveSegments(segs)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(out) != "" {
		if out, err = s.deps.Mapper.Resolve(out); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", fmt.Errorf("output location: %w", err))
			return
		}
	}

	sess, err := s.deps.Exporter.Start(r.Context(), session.Request{
		DraftID:        body.DraftID,
		Segments:       resolved,
		OutputLocation: out,
	})
	if err != nil {
		var busy *session.ExportAlreadyInProgressError
		switch {
		case errors.As(err, &busy):
			writeJSON(w, http.StatusConflict, apiError{
				Error:           session.ReasonAlreadyInProgress,
				Detail:          err.Error(),
				RequestID:       log.RequestIDFromContext(r.Context()),
				ActiveSessionID: busy.ActiveSessionID,
			})
		case errors.Is(err, session.ErrInvalidRequest):
			writeError(w, r, http.StatusBadRequest, session.ReasonInvalidRequest, err)
		default:
			writeError(w, r, http.StatusInternalServerError, session.ReasonInternal, err)
		}
		return
	}

	w.Header().Set("Location", "/api/v1/exports/current")
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

func (s *Server) handleCurrentExport(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Exporter.Latest()
	if sess == nil {
		writeError(w, r, http.StatusNotFound, "not_found", errors.New("no export has run"))
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleExportEvents streams the current session's events as NDJSON until
// the terminal event. A client disconnect only ends the response.
func (s *Server) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.Exporter.Latest()
	if sess == nil {
		writeError(w, r, http.StatusNotFound, "not_found", errors.New("no export has run"))
		return
	}
	if _, busy := s.streaming.LoadOrStore(sess.ID, struct{}{}); busy {
		writeError(w, r, http.StatusConflict, "stream_in_use", errors.New("another client is reading this export's events"))
		return
	}
	defer s.streaming.Delete(sess.ID)

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	enc := json.NewEncoder(w)
	sawTerminal := false
	for {
		ev, err := sess.Stream().Next(r.Context())
		if errors.Is(err, events.ErrClosed) {
			break
		}
		if err != nil {
			return
		}
		if err := enc.Encode(ev); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if ev.Terminal() {
			sawTerminal = true
		}
	}

	// A previous reader consumed the terminal event; repeat the outcome.
	if !sawTerminal {
		outcome, err := sess.Wait(r.Context())
		if err != nil {
			return
		}
		res := outcome.Result()
		_ = enc.Encode(events.Event{SessionID: sess.ID, Kind: events.KindTerminal, Progress: 1, Result: &res})
	}
}

func (s *Server) handleCancelExport(w http.ResponseWriter, _ *http.Request) {
	s.deps.Exporter.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuration(w http.ResponseWriter, r *http.Request) {
	loc := r.URL.Query().Get("location")
	if strings.TrimSpace(loc) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", errors.New("location is required"))
		return
	}
	path, err := s.deps.Mapper.Resolve(loc)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err)
		return
	}
	sec, err := s.deps.Exporter.Duration(r.Context(), path)
	if err != nil {
		if errors.Is(err, probe.ErrUnreadableMedia) {
			writeError(w, r, http.StatusUnprocessableEntity, session.ReasonUnreadableMedia, err)
			return
		}
		writeError(w, r, http.StatusInternalServerError, session.ReasonInternal, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"location": loc, "seconds": sec})
}
