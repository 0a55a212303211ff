// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/reelforge/internal/log"
)

// apiError is the JSON body of every non-2xx response.
type apiError struct {
	Error           string `json:"error"`
	Detail          string `json:"detail,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
	ActiveSessionID string `json:"activeSessionId,omitempty"`
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind string, err error) {
	body := apiError{Error: kind, RequestID: log.RequestIDFromContext(r.Context())}
	if err != nil {
		body.Detail = err.Error()
	}
	writeJSON(w, code, body)
}
