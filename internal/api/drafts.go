// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"net/http"

	"github.com/ManuGH/reelforge/internal/drafts"
	"github.com/ManuGH/reelforge/internal/segment"
	"github.com/go-chi/chi/v5"
)

var errNoDraftStore = errors.New("draft store not configured")

type putDraftRequest struct {
	Name     string               `json:"name"`
	Segments []segment.Descriptor `json:"segments"`
}

func (s *Server) loadDraft(r *http.Request, id string) (drafts.Draft, error) {
	if s.deps.Drafts == nil {
		return drafts.Draft{}, errNoDraftStore
	}
	return s.deps.Drafts.Get(r.Context(), id)
}

func (s *Server) writeDraftError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, drafts.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "draft_not_found", err)
	case errors.Is(err, errNoDraftStore):
		writeError(w, r, http.StatusServiceUnavailable, "drafts_unavailable", err)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", err)
	}
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		s.writeDraftError(w, r, errNoDraftStore)
		return
	}
	list, err := s.deps.Drafts.List(r.Context())
	if err != nil {
		s.writeDraftError(w, r, err)
		return
	}
	if list == nil {
		list = []drafts.Draft{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.loadDraft(r, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDraftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handlePutDraft stores a draft. Segment locations stay as given, relative
// to the media root.
func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		s.writeDraftError(w, r, errNoDraftStore)
		return
	}
	var body putDraftRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err)
		return
	}
	for i, seg := range body.Segments {
		if seg.ID == "" {
			body.Segments[i].ID = segment.NewID()
		}
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Drafts.Put(r.Context(), drafts.Draft{ID: id, Name: body.Name, Segments: body.Segments}); err != nil {
		s.writeDraftError(w, r, err)
		return
	}
	d, err := s.deps.Drafts.Get(r.Context(), id)
	if err != nil {
		s.writeDraftError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
