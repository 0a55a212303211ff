// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/reelforge/internal/drafts"
	"github.com/ManuGH/reelforge/internal/events"
	"github.com/ManuGH/reelforge/internal/fsutil"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/probe"
	"github.com/ManuGH/reelforge/internal/render"
	"github.com/ManuGH/reelforge/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statProber reports 2s of 1280x720 video for any existing file.
type statProber struct{}

func (statProber) Probe(_ context.Context, path string) (media.ProbedMetadata, error) {
	if _, err := os.Stat(path); err != nil {
		return media.ProbedMetadata{}, &probe.UnreadableMediaError{Path: path, Err: err}
	}
	return media.ProbedMetadata{NaturalWidth: 1280, NaturalHeight: 720, Duration: 2000, HasAudio: true}, nil
}

type gatedBackend struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (b *gatedBackend) hold() {
	b.mu.Lock()
	b.gate = make(chan struct{})
	b.mu.Unlock()
}

func (b *gatedBackend) Name() string                { return "fake" }
func (b *gatedBackend) Check(context.Context) error { return nil }

func (b *gatedBackend) EncodeSegment(ctx context.Context, job render.SegmentJob, progress func(media.Millis)) error {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	progress(job.Instruction.Source.Duration())
	return os.WriteFile(job.Output, []byte("part"), 0o600)
}

func (b *gatedBackend) Concat(_ context.Context, parts []string, out string, _ func(media.Millis)) error {
	return os.WriteFile(out, []byte(strings.Repeat("x", len(parts))), 0o600)
}

type harness struct {
	handler http.Handler
	ctrl    *session.Controller
	backend *gatedBackend
	store   *drafts.SQLiteStore
	root    string
	outDir  string
}

func newHarness(t *testing.T, limit int) *harness {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"a.mov", "b.mov"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("media"), 0o600))
	}
	store, err := drafts.Open(filepath.Join(t.TempDir(), "drafts.sqlite"), drafts.DefaultConfig())
	require.NoError(t, err)

	h := &harness{backend: &gatedBackend{}, store: store, root: root, outDir: t.TempDir()}
	h.ctrl = session.NewController(session.Options{
		Prober:       statProber{},
		Backend:      h.backend,
		TempDir:      t.TempDir(),
		CancelGrace:  time.Second,
		TickInterval: time.Nanosecond,
		Recorder:     store,
	})
	h.handler = New(Deps{
		Exporter:   h.ctrl,
		Drafts:     store,
		Mapper:     fsutil.Mapper{Root: root},
		Version:    "test",
		StartLimit: limit,
	}).Handler()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.ctrl.Shutdown(ctx)
		_ = store.Close()
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) inlineRequest() map[string]any {
	return map[string]any{
		"outputLocation": filepath.Join(h.outDir, "out.mp4"),
		"segments": []map[string]any{
			{"id": "a", "source": filepath.Join(h.root, "a.mov"), "recordedDurationSeconds": 2},
			{"id": "b", "source": "b.mov", "recordedDurationSeconds": 2},
		},
	}
}

func (h *harness) wait(t *testing.T) session.Outcome {
	t.Helper()
	s := h.ctrl.Latest()
	require.NotNil(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := s.Wait(ctx)
	require.NoError(t, err)
	return out
}

func decodeEvents(t *testing.T, body []byte) []events.Event {
	t.Helper()
	var out []events.Event
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var ev events.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		out = append(out, ev)
	}
	return out
}

func TestStartExportAndStreamEvents(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(t, http.MethodPost, "/api/v1/exports", h.inlineRequest())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/exports/current", rec.Header().Get("Location"))
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, 2, snap.Segments)

	rec = h.do(t, http.MethodGet, "/api/v1/exports/current/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	evs := decodeEvents(t, rec.Body.Bytes())
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	require.True(t, last.Terminal())
	assert.Equal(t, "completed", last.Result.State)
	assert.Equal(t, int64(4000), last.Result.DurationMs)
	assert.Equal(t, snap.SessionID, last.SessionID)

	rec = h.do(t, http.MethodGet, "/api/v1/exports/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, session.StateCompleted, snap.State)
	assert.FileExists(t, filepath.Join(h.outDir, "out.mp4"))

	// The terminal outcome is repeated for a late reader.
	rec = h.do(t, http.MethodGet, "/api/v1/exports/current/events", nil)
	evs = decodeEvents(t, rec.Body.Bytes())
	require.Len(t, evs, 1)
	assert.Equal(t, "completed", evs[0].Result.State)
}

func TestStartExportConflictAndCancel(t *testing.T) {
	h := newHarness(t, 0)
	h.backend.hold()

	rec := h.do(t, http.MethodPost, "/api/v1/exports", h.inlineRequest())
	require.Equal(t, http.StatusAccepted, rec.Code)
	active := h.ctrl.Active()
	require.NotNil(t, active)

	rec = h.do(t, http.MethodPost, "/api/v1/exports", h.inlineRequest())
	require.Equal(t, http.StatusConflict, rec.Code)
	var body apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, session.ReasonAlreadyInProgress, body.Error)
	assert.Equal(t, active.ID, body.ActiveSessionID)
	assert.Same(t, active, h.ctrl.Active())

	rec = h.do(t, http.MethodDelete, "/api/v1/exports/current", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, session.StateCancelled, h.wait(t).State)
	assert.NoFileExists(t, filepath.Join(h.outDir, "out.mp4"))

	rec = h.do(t, http.MethodDelete, "/api/v1/exports/current", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "cancel is idempotent")
}

func TestStartExportFromDraft(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(t, http.MethodPut, "/api/v1/drafts/d1", map[string]any{
		"name": "trip",
		"segments": []map[string]any{
			{"id": "a", "source": "a.mov", "recordedDurationSeconds": 2},
			{"source": "b.mov", "recordedDurationSeconds": 2, "trimStartMs": 500, "trimEndMs": 1500},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var d drafts.Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	require.Len(t, d.Segments, 2)
	assert.NotEmpty(t, d.Segments[1].ID, "missing segment ids are minted")
	assert.Equal(t, "a.mov", d.Segments[0].SourceLocation, "draft keeps relative locations")

	out := filepath.Join(h.outDir, "trip.mp4")
	rec = h.do(t, http.MethodPost, "/api/v1/exports", map[string]any{"draftId": "d1", "outputLocation": out})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	outcome := h.wait(t)
	require.Equal(t, session.StateCompleted, outcome.State, "%v", outcome.Err)
	assert.Equal(t, media.Millis(3000), outcome.Duration)

	rec = h.do(t, http.MethodGet, "/api/v1/drafts/d1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, out, d.LastExport)
	assert.Equal(t, int64(3000), d.LastExportMs)

	rec = h.do(t, http.MethodGet, "/api/v1/drafts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []drafts.Draft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestStartExportRejectsBadRequests(t *testing.T) {
	h := newHarness(t, 0)
	tests := []struct {
		name string
		body any
		code int
	}{
		{"malformed json", "{", http.StatusBadRequest},
		{"unknown field", `{"outputLocation":"/x.mp4","bogus":1}`, http.StatusBadRequest},
		{"segment escapes media root", map[string]any{
			"outputLocation": "/tmp/x.mp4",
			"segments":       []map[string]any{{"id": "a", "source": "../a.mov", "recordedDurationSeconds": 1}},
		}, http.StatusBadRequest},
		{"missing output", map[string]any{
			"segments": []map[string]any{{"id": "a", "source": "a.mov", "recordedDurationSeconds": 1}},
		}, http.StatusBadRequest},
		{"zero duration", map[string]any{
			"outputLocation": "/tmp/x.mp4",
			"segments":       []map[string]any{{"id": "a", "source": "a.mov"}},
		}, http.StatusBadRequest},
		{"unknown draft", map[string]any{"draftId": "nope", "outputLocation": "/tmp/x.mp4"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/v1/exports", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Nil(t, h.ctrl.Active())
		})
	}
}

func TestCurrentExportBeforeAnyRun(t *testing.T) {
	h := newHarness(t, 0)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/exports/current", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/v1/exports/current/events", nil).Code)
	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/v1/exports/current", nil).Code)
}

func TestDuration(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(t, http.MethodGet, "/api/v1/duration?location=a.mov", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Seconds float64 `json:"seconds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2.0, body.Seconds)

	rec = h.do(t, http.MethodGet, "/api/v1/duration?location=missing.mov", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/duration", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	h := newHarness(t, 0)

	rec := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"exportState":"idle"`)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(HeaderRequestID))

	rec = h.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reelforge_export_active")
}

func TestStartExportRateLimited(t *testing.T) {
	h := newHarness(t, 1)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/v1/exports", "{").Code)
	rec := h.do(t, http.MethodPost, "/api/v1/exports", "{")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRecovererReturnsJSON(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

type fakeReloader struct{ err error }

func (f *fakeReloader) Reload(context.Context) error { return f.err }

func TestConfigReload(t *testing.T) {
	h := newHarness(t, 0)
	rec := h.do(t, http.MethodPost, "/api/v1/config/reload", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	for name, tc := range map[string]struct {
		err  error
		code int
	}{
		"applied":  {nil, http.StatusNoContent},
		"rejected": {errors.New("encoder.crf must be in [0,51]"), http.StatusUnprocessableEntity},
	} {
		t.Run(name, func(t *testing.T) {
			handler := New(Deps{Exporter: h.ctrl, Reloader: &fakeReloader{err: tc.err}}).Handler()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/config/reload", nil))
			assert.Equal(t, tc.code, rec.Code)
			if tc.err != nil {
				assert.Contains(t, rec.Body.String(), "invalid_config")
			}
		})
	}
}
