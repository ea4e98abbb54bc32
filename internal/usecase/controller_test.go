package usecase

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"screenrec/internal/domain"
	"screenrec/internal/ports"
)

func TestSessionControllerStartStopSuccess(t *testing.T) {
	t.Parallel()

	screen := &fakeCapture{}
	audio := &fakeCapture{}
	merger := &fakeMerger{merged: true}
	events := &fakeEventSink{}
	controller := newTestController(t, screen, audio, merger, events)

	started, err := controller.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.Basename == "" || started.SessionID == "" {
		t.Fatalf("unexpected start result: %+v", started)
	}

	waitFor(t, "both workers active", func() bool {
		status := controller.Status()
		return len(status.Workers) == 2 && status.Workers[0].Active && status.Workers[1].Active
	})

	var statusAtMerge domain.Status
	merger.onMerge = func() { statusAtMerge = controller.Status() }

	result, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !result.Merged || result.Basename != started.Basename {
		t.Fatalf("unexpected stop result: %+v", result)
	}

	calls := merger.snapshotCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one merge call, got %d", len(calls))
	}
	if calls[0].video != started.Basename+VideoExt || calls[0].audio != started.Basename+AudioExt {
		t.Fatalf("unexpected merge inputs: %+v", calls[0])
	}
	if statusAtMerge.Active {
		t.Fatalf("merge ran while session was still active: %+v", statusAtMerge)
	}
	if screen.handle(0).stopCalls.Load() != 1 || audio.handle(0).stopCalls.Load() != 1 {
		t.Fatalf("expected each worker to be stopped exactly once")
	}

	status := controller.Status()
	if status.Active || status.State != domain.SessionStateIdle || status.PendingMerge != "" {
		t.Fatalf("unexpected final status: %+v", status)
	}

	states := events.snapshotStates()
	if states[0].reason != domain.SessionReasonRecordingStarted {
		t.Fatalf("unexpected first reason: %s", states[0].reason)
	}
	if states[len(states)-1].reason != domain.SessionReasonMergeCompleted {
		t.Fatalf("unexpected final reason: %s", states[len(states)-1].reason)
	}
}

func TestSessionControllerStopWithoutActiveSession(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, events)
	before := controller.Status()

	_, err := controller.Stop(context.Background())
	if !errors.Is(err, domain.ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}

	after := controller.Status()
	if before.State != after.State || before.Active != after.Active || !before.LastKeepAlive.Equal(after.LastKeepAlive) {
		t.Fatalf("stop while idle mutated state: before=%+v after=%+v", before, after)
	}
	if len(events.snapshotStates()) != 0 {
		t.Fatalf("expected no state events")
	}
}

func TestSessionControllerConcurrentStartAdmitsOne(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, &fakeEventSink{})

	const callers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	gate := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_, err := controller.Start(context.Background())
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrAlreadyRecording):
				rejected.Add(1)
			default:
				t.Errorf("unexpected start error: %v", err)
			}
		}()
	}
	close(gate)
	wg.Wait()

	if succeeded.Load() != 1 || rejected.Load() != callers-1 {
		t.Fatalf("expected exactly one admitted start, got %d admitted and %d rejected", succeeded.Load(), rejected.Load())
	}

	if _, err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestSessionControllerSecondStartKeepsBasename(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, &fakeEventSink{})

	first, err := controller.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := controller.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	if got := controller.Status().Basename; got != first.Basename {
		t.Fatalf("basename changed from %q to %q", first.Basename, got)
	}
}

func TestSessionControllerStopWaitsForWorkerFinalize(t *testing.T) {
	t.Parallel()

	order := &orderRecorder{}
	screen := &fakeCapture{stopDelay: 20 * time.Millisecond, order: order}
	audio := &fakeCapture{stopDelay: 120 * time.Millisecond, order: order}
	merger := &fakeMerger{merged: true, order: order}
	controller := newTestController(t, screen, audio, merger, &fakeEventSink{})

	if _, err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	got := order.snapshot()
	if len(got) != 3 || got[2] != "merge" {
		t.Fatalf("expected merge after both workers finalized, got %v", got)
	}
}

func TestSessionControllerStopMergeFailureKeepsSources(t *testing.T) {
	t.Parallel()

	merger := &fakeMerger{err: errors.New("ffmpeg exited with status 1")}
	events := &fakeEventSink{}
	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, merger, events)

	started, err := controller.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, err = controller.Stop(context.Background())
	var mergeErr *domain.MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("expected MergeError, got %v", err)
	}

	status := controller.Status()
	if status.Active || status.State != domain.SessionStateIdle {
		t.Fatalf("expected idle session after failed merge, got %+v", status)
	}
	if status.PendingMerge != started.Basename {
		t.Fatalf("expected %q to wait for retry, got %q", started.Basename, status.PendingMerge)
	}

	errs := events.snapshotErrors()
	if len(errs) == 0 || errs[len(errs)-1].code != domain.ErrorCodeMerge {
		t.Fatalf("expected merge error event")
	}

	merger.setErr(nil)
	merger.setMerged(true)
	result, err := controller.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if !result.Merged || result.Basename != started.Basename {
		t.Fatalf("unexpected finalize result: %+v", result)
	}
	if _, err := controller.Finalize(context.Background()); !errors.Is(err, domain.ErrNothingToMerge) {
		t.Fatalf("expected ErrNothingToMerge, got %v", err)
	}
}

func TestSessionControllerAudioLaunchFailureStopsScreen(t *testing.T) {
	t.Parallel()

	screen := &fakeCapture{}
	audio := &fakeCapture{err: errors.New("no default input device")}
	events := &fakeEventSink{}
	controller := newTestController(t, screen, audio, &fakeMerger{}, events)

	_, err := controller.Start(context.Background())
	var launchErr *domain.LaunchError
	if !errors.As(err, &launchErr) || launchErr.Worker != domain.WorkerAudio {
		t.Fatalf("expected audio LaunchError, got %v", err)
	}

	waitFor(t, "screen worker drained", func() bool {
		return !controller.Status().Active
	})
	if screen.handle(0).stopCalls.Load() != 1 {
		t.Fatalf("expected launched screen worker to be stopped")
	}
	if status := controller.Status(); status.PendingMerge != "" {
		t.Fatalf("failed launch must not leave a pending merge: %+v", status)
	}

	errs := events.snapshotErrors()
	if len(errs) == 0 || errs[0].code != domain.ErrorCodeAudioStart {
		t.Fatalf("expected audio start error event, got %+v", errs)
	}

	audio.setErr(nil)
	if _, err := controller.Start(context.Background()); err != nil {
		t.Fatalf("expected start to be admitted after rollback: %v", err)
	}
}

func TestSessionControllerScreenLaunchFailure(t *testing.T) {
	t.Parallel()

	screen := &fakeCapture{err: errors.New("cannot open display")}
	audio := &fakeCapture{}
	controller := newTestController(t, screen, audio, &fakeMerger{}, &fakeEventSink{})

	_, err := controller.Start(context.Background())
	var launchErr *domain.LaunchError
	if !errors.As(err, &launchErr) || launchErr.Worker != domain.WorkerScreen {
		t.Fatalf("expected screen LaunchError, got %v", err)
	}
	if audio.launches() != 0 {
		t.Fatalf("audio must not be launched after screen failure")
	}
	if status := controller.Status(); status.Active || status.State != domain.SessionStateIdle {
		t.Fatalf("expected idle status, got %+v", status)
	}
}

func TestSessionControllerCaptureSelfStopEndsSession(t *testing.T) {
	t.Parallel()

	screen := &fakeCapture{}
	audio := &fakeCapture{}
	merger := &fakeMerger{merged: true}
	events := &fakeEventSink{}
	controller := newTestController(t, screen, audio, merger, events)

	started, err := controller.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	screen.handle(0).finished.Store(true)

	waitFor(t, "session drained", func() bool {
		return !controller.Status().Active
	})
	if audio.handle(0).stopCalls.Load() != 1 {
		t.Fatalf("expected audio worker to observe the stop")
	}

	if _, err := controller.Stop(context.Background()); !errors.Is(err, domain.ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording after drain, got %v", err)
	}
	if got := controller.Status().PendingMerge; got != started.Basename {
		t.Fatalf("expected pending merge %q, got %q", started.Basename, got)
	}
	if len(merger.snapshotCalls()) != 0 {
		t.Fatalf("self-stopped session must not be merged implicitly")
	}

	var sawSelfStop bool
	for _, state := range events.snapshotStates() {
		if state.reason == domain.SessionReasonCaptureSelfStopped {
			sawSelfStop = true
		}
	}
	if !sawSelfStop {
		t.Fatalf("expected capture_self_stopped event")
	}
}

func TestSessionControllerStopHonorsCallerContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	audio := &fakeCapture{stopGate: release}
	merger := &fakeMerger{merged: true}
	controller := newTestController(t, &fakeCapture{}, audio, merger, &fakeEventSink{})

	if _, err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if _, err := controller.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if status := controller.Status(); !status.Active || status.Requested {
		t.Fatalf("expected draining session, got %+v", status)
	}

	type stopOutcome struct {
		result domain.StopResult
		err    error
	}
	outcome := make(chan stopOutcome, 1)
	go func() {
		result, err := controller.Stop(context.Background())
		outcome <- stopOutcome{result: result, err: err}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-outcome
	if got.err != nil {
		t.Fatalf("second stop failed: %v", got.err)
	}
	if !got.result.Merged {
		t.Fatalf("expected merge after drain")
	}
}

func TestSessionControllerConcurrentStopsMergeOnce(t *testing.T) {
	t.Parallel()

	merger := &fakeMerger{merged: true}
	audio := &fakeCapture{stopDelay: 50 * time.Millisecond}
	controller := newTestController(t, &fakeCapture{}, audio, merger, &fakeEventSink{})

	if _, err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]domain.StopResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := controller.Stop(context.Background())
			if err != nil && !errors.Is(err, domain.ErrNotRecording) {
				t.Errorf("stop %d failed: %v", i, err)
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	if len(merger.snapshotCalls()) != 1 {
		t.Fatalf("expected exactly one merge, got %d", len(merger.snapshotCalls()))
	}
}

func TestSessionControllerPingWhileIdle(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, events)

	controller.Ping()

	status := controller.Status()
	if status.Active || status.LastKeepAlive.IsZero() {
		t.Fatalf("unexpected status after ping: %+v", status)
	}
	if events.keepAlives.Load() != 1 {
		t.Fatalf("expected keep-alive event")
	}
}

func TestSessionControllerWithoutLoggerStaysQuiet(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, &fakeEventSink{})
	if controller.logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("expected a discarding logger when none is given")
	}
}

func TestSessionControllerBasenameInRecordingsDir(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, &fakeEventSink{})
	controller.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local) }

	started, err := controller.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if filepath.Dir(started.Basename) != controller.cfg.RecordingsDir {
		t.Fatalf("basename %q not in %q", started.Basename, controller.cfg.RecordingsDir)
	}
	if !strings.HasSuffix(started.Basename, "09.03.2024-14_05_07") {
		t.Fatalf("unexpected basename: %q", started.Basename)
	}
}

func newTestController(t *testing.T, screen *fakeCapture, audio *fakeCapture, merger *fakeMerger, events *fakeEventSink) *SessionController {
	t.Helper()
	controller, err := NewSessionController(screen, audio, merger, events, nil, Config{
		RecordingsDir:      t.TempDir(),
		StopPollInterval:   5 * time.Millisecond,
		WorkerPollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("controller init failed: %v", err)
	}
	return controller
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeCapture struct {
	mu        sync.Mutex
	handles   []*fakeHandle
	paths     []string
	err       error
	stopDelay time.Duration
	stopGate  chan struct{}
	order     *orderRecorder
}

func (f *fakeCapture) Launch(_ context.Context, outputPath string, _ ports.CaptureSettings) (ports.WorkerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	h := &fakeHandle{
		started:   make(chan struct{}),
		path:      outputPath,
		stopDelay: f.stopDelay,
		stopGate:  f.stopGate,
		order:     f.order,
	}
	close(h.started)
	f.handles = append(f.handles, h)
	f.paths = append(f.paths, outputPath)
	return h, nil
}

func (f *fakeCapture) handle(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

func (f *fakeCapture) launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *fakeCapture) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeHandle struct {
	started   chan struct{}
	path      string
	finished  atomic.Bool
	stopCalls atomic.Int32
	stopDelay time.Duration
	stopGate  chan struct{}
	stopErr   error
	order     *orderRecorder
}

func (h *fakeHandle) Started() <-chan struct{} { return h.started }

func (h *fakeHandle) Finished() bool { return h.finished.Load() }

func (h *fakeHandle) Stop() error {
	h.stopCalls.Add(1)
	if h.stopDelay > 0 {
		time.Sleep(h.stopDelay)
	}
	if h.stopGate != nil {
		<-h.stopGate
	}
	if h.order != nil {
		h.order.add("stop " + filepath.Ext(h.path))
	}
	return h.stopErr
}

func (h *fakeHandle) PID() int { return 0 }

type mergeCall struct {
	video string
	audio string
}

type fakeMerger struct {
	mu      sync.Mutex
	calls   []mergeCall
	err     error
	merged  bool
	onMerge func()
	order   *orderRecorder
}

func (f *fakeMerger) Merge(_ context.Context, videoPath string, audioPath string) (ports.MergeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, mergeCall{video: videoPath, audio: audioPath})
	onMerge := f.onMerge
	err := f.err
	merged := f.merged
	f.mu.Unlock()

	if onMerge != nil {
		onMerge()
	}
	if f.order != nil {
		f.order.add("merge")
	}
	if err != nil {
		return ports.MergeResult{}, err
	}
	if !merged {
		return ports.MergeResult{Output: videoPath}, nil
	}
	return ports.MergeResult{Output: strings.TrimSuffix(videoPath, VideoExt) + combinedSuffix + VideoExt, Merged: true}, nil
}

func (f *fakeMerger) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeMerger) setMerged(merged bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = merged
}

func (f *fakeMerger) snapshotCalls() []mergeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mergeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type orderRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (o *orderRecorder) add(step string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step)
}

func (o *orderRecorder) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.steps))
	copy(out, o.steps)
	return out
}

type fakeEventSink struct {
	mu sync.Mutex

	states     []stateEvent
	errors     []errEvent
	keepAlives atomic.Int32
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) KeepAlive(_ time.Time) {
	f.keepAlives.Add(1)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}
