// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/probe"
	"github.com/ManuGH/reelforge/internal/render"
	"github.com/ManuGH/reelforge/internal/segment"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	meta map[string]media.ProbedMetadata
}

func (f *fakeProber) Probe(_ context.Context, path string) (media.ProbedMetadata, error) {
	md, ok := f.meta[path]
	if !ok {
		return media.ProbedMetadata{}, &probe.UnreadableMediaError{Path: path, Err: os.ErrNotExist}
	}
	return md, nil
}

// fakeBackend encodes instantly unless a gate is set for the segment index.
type fakeBackend struct {
	mu        sync.Mutex
	gates     map[int]chan struct{}
	ignoreCtx bool
	panicAt   int
	entered   chan int
	encoded   []int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{gates: map[int]chan struct{}{}, panicAt: -1, entered: make(chan int, 16)}
}

func (f *fakeBackend) gate(idx int) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[idx] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeBackend) encodedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.encoded)
}

// drain empties entered so the backend can be reused across sessions.
func (f *fakeBackend) drain() {
	for {
		select {
		case <-f.entered:
		default:
			return
		}
	}
}

func (f *fakeBackend) Name() string                { return "fake" }
func (f *fakeBackend) Check(context.Context) error { return nil }

func (f *fakeBackend) EncodeSegment(ctx context.Context, job render.SegmentJob, progress func(media.Millis)) error {
	idx := job.Instruction.Index
	f.entered <- idx
	if idx == f.panicAt {
		panic("encoder exploded")
	}
	f.mu.Lock()
	gate := f.gates[idx]
	f.mu.Unlock()
	if gate != nil {
		if f.ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	progress(job.Instruction.Source.Duration() / 2)
	f.mu.Lock()
	f.encoded = append(f.encoded, idx)
	f.mu.Unlock()
	return os.WriteFile(job.Output, []byte{byte('0' + idx)}, 0o600)
}

func (f *fakeBackend) Concat(_ context.Context, parts []string, out string, progress func(media.Millis)) error {
	var data []byte
	for _, p := range parts {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		data = append(data, b...)
	}
	progress(1)
	return os.WriteFile(out, data, 0o600)
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []string
	dur   media.Millis
}

func (r *fakeRecorder) RecordExport(_ context.Context, draftID, out string, d media.Millis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, draftID+"="+out)
	r.dur = d
	return nil
}

type fixture struct {
	ctrl     *Controller
	prober   *fakeProber
	backend  *fakeBackend
	recorder *fakeRecorder
	tempDir  string
	out      string
	segments []segment.Descriptor
}

func newFixture(t *testing.T, grace time.Duration) *fixture {
	t.Helper()
	src := t.TempDir()
	paths := []string{filepath.Join(src, "a.mov"), filepath.Join(src, "b.mov"), filepath.Join(src, "c.mov")}
	prober := &fakeProber{meta: map[string]media.ProbedMetadata{
		paths[0]: {NaturalWidth: 1920, NaturalHeight: 1080, Duration: 4000, HasAudio: true},
		paths[1]: {NaturalWidth: 1920, NaturalHeight: 1080, Duration: 6000, HasAudio: true, Transform: media.Transform{Rotation: 90}},
		paths[2]: {NaturalWidth: 1280, NaturalHeight: 720, Duration: 2000},
	}}
	segs := make([]segment.Descriptor, len(paths))
	for i, p := range paths {
		segs[i] = segment.Descriptor{ID: string(rune('a' + i)), SourceLocation: p, RecordedDurationSeconds: 1}
	}

	f := &fixture{
		prober:   prober,
		backend:  newFakeBackend(),
		recorder: &fakeRecorder{},
		tempDir:  t.TempDir(),
		out:      filepath.Join(t.TempDir(), "export.mp4"),
		segments: segs,
	}
	f.ctrl = NewController(Options{
		Prober:       prober,
		Backend:      f.backend,
		TempDir:      f.tempDir,
		CancelGrace:  grace,
		TickInterval: time.Nanosecond,
		Recorder:     f.recorder,
	})
	return f
}

func (f *fixture) request() Request {
	return Request{DraftID: "draft-1", Segments: f.segments, OutputLocation: f.out}
}

func wait(t *testing.T, s *Session) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := s.Wait(ctx)
	require.NoError(t, err, "session did not finish")
	return out
}

func tempEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}
