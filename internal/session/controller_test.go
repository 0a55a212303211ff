// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/reelforge/internal/events"
	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/plan"
	"github.com/ManuGH/reelforge/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(t *testing.T, s *Session) []events.Event {
	t.Helper()
	var out []events.Event
	timeout := time.After(5 * time.Second)
	ch := s.Events()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			s.Stream().Abandon()
			t.Fatal("event stream did not close")
		}
	}
}

func TestController_CompletedExport(t *testing.T) {
	f := newFixture(t, time.Second)

	s, err := f.ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	evs := collect(t, s)
	out := wait(t, s)

	assert.Equal(t, StateCompleted, out.State)
	assert.NoError(t, out.Err)
	assert.Equal(t, media.Millis(12000), out.Duration)
	assert.Equal(t, f.out, out.OutputLocation)

	data, err := os.ReadFile(f.out)
	require.NoError(t, err)
	assert.Equal(t, "012", string(data), "parts concatenated in caller order")
	assert.Empty(t, tempEntries(t, f.tempDir))

	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, "completed", last.Result.State)
	assert.Equal(t, int64(12000), last.Result.DurationMs)

	var phases []events.Phase
	progress := map[events.Phase]float64{}
	for _, ev := range evs {
		assert.Equal(t, s.ID, ev.SessionID)
		switch ev.Kind {
		case events.KindPhase:
			phases = append(phases, ev.Phase)
		case events.KindProgress:
			assert.GreaterOrEqual(t, ev.Progress, progress[ev.Phase])
			progress[ev.Phase] = ev.Progress
		}
	}
	assert.Equal(t, []events.Phase{events.PhaseProbing, events.PhasePlanning, events.PhaseRendering, events.PhaseFinalizing}, phases)

	assert.Equal(t, []string{"draft-1=" + f.out}, f.recorder.calls)
	assert.Equal(t, media.Millis(12000), f.recorder.dur)
	assert.Nil(t, f.ctrl.Active())
	assert.Same(t, s, f.ctrl.Latest())
	assert.Equal(t, StateIdle, f.ctrl.State())

	snap := s.Snapshot()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 1.0, snap.Progress)
	assert.NotNil(t, snap.FinishedAt)
}

func TestController_RejectsSecondStart(t *testing.T) {
	f := newFixture(t, time.Second)
	gate := f.backend.gate(1)

	first, err := f.ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	<-f.backend.entered
	<-f.backend.entered

	second, err := f.ctrl.Start(context.Background(), f.request())
	assert.Nil(t, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExportAlreadyInProgress)
	var busy *ExportAlreadyInProgressError
	require.True(t, errors.As(err, &busy))
	assert.Equal(t, first.ID, busy.ActiveSessionID)

	assert.Same(t, first, f.ctrl.Active())
	assert.Equal(t, StateRendering, first.State())

	close(gate)
	out := wait(t, first)
	assert.Equal(t, StateCompleted, out.State, "rejected start must not disturb the active export")

	// The slot is free again.
	third, err := f.ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, StateCompleted, wait(t, third).State)
}

func TestController_CancelMidRender(t *testing.T) {
	f := newFixture(t, time.Second)
	f.backend.gate(1)

	s, err := f.ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	<-f.backend.entered
	<-f.backend.entered

	f.ctrl.Cancel()
	f.ctrl.Cancel()
	s.Cancel()

	evs := collect(t, s)
	out := wait(t, s)
	assert.Equal(t, StateCancelled, out.State)
	assert.ErrorIs(t, out.Err, ErrCancelled)
	assert.Empty(t, out.Reason)

	assert.NoFileExists(t, f.out)
	assert.Empty(t, tempEntries(t, f.tempDir))
	assert.Equal(t, []int{0}, f.backend.encoded, "no further segment after cancel")

	last := evs[len(evs)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, "cancelled", last.Result.State)
	assert.Empty(t, last.Result.Error)
	assert.Nil(t, f.ctrl.Active())

	// Cancel after the terminal state is a no-op.
	s.Cancel()
	f.ctrl.Cancel()
	assert.Equal(t, StateCancelled, s.State())
}

func TestController_CancelGraceForcesCancelled(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	f.backend.ignoreCtx = true
	gate := f.backend.gate(1)

	s, err := f.ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	<-f.backend.entered
	<-f.backend.entered

	started := time.Now()
	s.Cancel()
	out := wait(t, s)
	assert.Equal(t, StateCancelled, out.State)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Empty(t, tempEntries(t, f.tempDir), "work dir removed by forced cancel")
	assert.Nil(t, f.ctrl.Active(), "slot released without the run acknowledging")

	// Let the stuck run return; its late result must not change anything.
	close(gate)
	<-s.runDone
	assert.Equal(t, StateCancelled, s.State())
	assert.NoFileExists(t, f.out)
	assert.Empty(t, tempEntries(t, f.tempDir))
}

func TestController_UnreadableMediaFails(t *testing.T) {
	f := newFixture(t, time.Second)
	req := f.request()
	req.Segments = append(req.Segments, segment.Descriptor{ID: "ghost", SourceLocation: filepath.Join(t.TempDir(), "ghost.mov"), RecordedDurationSeconds: 1})

	s, err := f.ctrl.Start(context.Background(), req)
	require.NoError(t, err)
	evs := collect(t, s)
	out := wait(t, s)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonUnreadableMedia, out.Reason)
	assert.Empty(t, f.backend.encoded)
	assert.NoFileExists(t, f.out)

	// Failure is the terminal result, not a side-channel event.
	for _, ev := range evs[:len(evs)-1] {
		assert.Nil(t, ev.Result)
	}
	assert.Equal(t, "failed", evs[len(evs)-1].Result.State)
	assert.Contains(t, evs[len(evs)-1].Result.Error, "ghost.mov")
	assert.Empty(t, f.recorder.calls)
}

func TestController_EmptyCompositionFails(t *testing.T) {
	f := newFixture(t, time.Second)
	req := f.request()
	req.Segments = []segment.Descriptor{f.segments[0]}
	req.Segments[0].TrimStartMs = segment.Ms(5000)
	req.Segments[0].TrimEndMs = segment.Ms(6000)

	s, err := f.ctrl.Start(context.Background(), req)
	require.NoError(t, err)
	out := wait(t, s)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonEmptyComposition, out.Reason)
	collect(t, s)
}

func TestController_NoSegmentsIsEmptyComposition(t *testing.T) {
	f := newFixture(t, time.Second)
	req := f.request()
	req.Segments = nil

	s, err := f.ctrl.Start(context.Background(), req)
	require.NoError(t, err)
	out := wait(t, s)
	assert.Equal(t, ReasonEmptyComposition, out.Reason)
	collect(t, s)
}

func TestController_PanicBecomesFailure(t *testing.T) {
	f := newFixture(t, time.Second)
	f.backend.panicAt = 0

	s, err := f.ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	out := wait(t, s)
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, ReasonInternal, out.Reason)
	assert.Contains(t, out.Err.Error(), "encoder exploded")
	assert.Empty(t, tempEntries(t, f.tempDir))
	assert.Nil(t, f.ctrl.Active())
	collect(t, s)
}

func TestController_InvalidRequest(t *testing.T) {
	f := newFixture(t, time.Second)
	tests := map[string]func(*Request){
		"relative output":  func(r *Request) { r.OutputLocation = "out.mp4" },
		"missing output":   func(r *Request) { r.OutputLocation = "" },
		"output is dir":    func(r *Request) { r.OutputLocation = t.TempDir() },
		"relative segment": func(r *Request) { r.Segments[0].SourceLocation = "a.mov" },
		"duplicate id":     func(r *Request) { r.Segments[1].ID = r.Segments[0].ID },
		"overwrites input": func(r *Request) { r.OutputLocation = r.Segments[2].SourceLocation },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := f.request()
			req.Segments = append([]segment.Descriptor(nil), f.segments...)
			mutate(&req)

			s, err := f.ctrl.Start(context.Background(), req)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, f.ctrl.Active())
		})
	}
}

func TestController_Shutdown(t *testing.T) {
	f := newFixture(t, time.Second)
	f.backend.gate(0)

	s, err := f.ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	<-f.backend.entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.ctrl.Shutdown(ctx))
	assert.Equal(t, StateCancelled, s.State())
	require.NoError(t, f.ctrl.Shutdown(ctx), "shutdown with nothing active")
}

func TestController_StartContextDoesNotBoundSession(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	s, err := f.ctrl.Start(ctx, f.request())
	require.NoError(t, err)
	cancel()
	assert.Equal(t, StateCompleted, wait(t, s).State)
}

func TestController_Duration(t *testing.T) {
	f := newFixture(t, time.Second)
	sec, err := f.ctrl.Duration(context.Background(), f.segments[1].SourceLocation)
	require.NoError(t, err)
	assert.Equal(t, 6.0, sec)

	_, err = f.ctrl.Duration(context.Background(), "/nope.mov")
	_, reason := Classify(err)
	assert.Equal(t, ReasonUnreadableMedia, reason)
}

func TestNewController_RequiresCollaborators(t *testing.T) {
	assert.Panics(t, func() { NewController(Options{}) })
}

func TestController_CancelConcurrentWithStart(t *testing.T) {
	f := newFixture(t, time.Second)

	for i := 0; i < 200; i++ {
		stop := make(chan struct{})
		hammered := make(chan struct{})
		go func() {
			defer close(hammered)
			for {
				select {
				case <-stop:
					return
				default:
					f.ctrl.Cancel()
				}
			}
		}()

		s, err := f.ctrl.Start(context.Background(), f.request())
		require.NoError(t, err)
		out := wait(t, s)
		close(stop)
		<-hammered
		f.backend.drain()

		require.Contains(t, []State{StateCompleted, StateCancelled}, out.State, "iteration %d", i)
		require.Nil(t, f.ctrl.Active())
	}
}

func TestController_TuningReadPerStart(t *testing.T) {
	f := newFixture(t, time.Second)
	second := newFakeBackend()

	var current atomic.Pointer[fakeBackend]
	current.Store(f.backend)
	fixed := plan.CanvasPolicy{Fixed: media.Size{Width: 640, Height: 360}}

	ctrl := NewController(Options{
		Prober:       f.prober,
		Backend:      f.backend,
		TempDir:      f.tempDir,
		TickInterval: time.Nanosecond,
		Tuning: func() Tuning {
			return Tuning{Backend: current.Load(), ProbeConcurrency: 1, CancelGrace: 3 * time.Second, Canvas: fixed}
		},
	})

	s1, err := ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, s1.grace)
	assert.Equal(t, 1, s1.probeLimit)
	assert.Equal(t, fixed, s1.canvas)
	require.Equal(t, StateCompleted, wait(t, s1).State)
	assert.Equal(t, 3, f.backend.encodedCount())

	current.Store(second)
	s2, err := ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, wait(t, s2).State)
	assert.Equal(t, 3, second.encodedCount(), "next session uses the reloaded backend")
	assert.Equal(t, 3, f.backend.encodedCount(), "previous backend untouched")
}

func TestController_TuningZeroFieldsKeepDefaults(t *testing.T) {
	f := newFixture(t, 1500*time.Millisecond)
	ctrl := NewController(Options{
		Prober:           f.prober,
		Backend:          f.backend,
		TempDir:          f.tempDir,
		ProbeConcurrency: 3,
		CancelGrace:      1500 * time.Millisecond,
		TickInterval:     time.Nanosecond,
		Tuning:           func() Tuning { return Tuning{} },
	})

	s, err := ctrl.Start(context.Background(), f.request())
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, s.grace)
	assert.Equal(t, 3, s.probeLimit)
	assert.Equal(t, plan.CanvasPolicy{}, s.canvas)
	require.Equal(t, StateCompleted, wait(t, s).State)
}
