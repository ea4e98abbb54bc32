package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"screenrec/internal/domain"
)

func TestWatchdogStopsSessionWithoutKeepAlive(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	merger := &fakeMerger{merged: true}
	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, merger, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewWatchdog(controller, 100*time.Millisecond, 10*time.Millisecond).Run(ctx)

	begin := time.Now()
	started, err := controller.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, "request withdrawn", func() bool {
		return !controller.Status().Requested
	})
	if elapsed := time.Since(begin); elapsed < 100*time.Millisecond {
		t.Fatalf("watchdog fired before the timeout: %s", elapsed)
	}

	waitFor(t, "workers drained", func() bool {
		return !controller.Status().Active
	})

	var sawTimeout bool
	for _, state := range events.snapshotStates() {
		if state.reason == domain.SessionReasonKeepAliveTimeout {
			sawTimeout = true
		}
	}
	if !sawTimeout {
		t.Fatalf("expected keep_alive_timeout event")
	}

	if calls := merger.snapshotCalls(); len(calls) != 0 {
		t.Fatalf("watchdog must leave merging to Stop or Finalize, got %d merges", len(calls))
	}
	if pending := controller.Status().PendingMerge; pending != started.Basename {
		t.Fatalf("expected %q waiting for merge, got %q", started.Basename, pending)
	}

	if _, err := controller.Stop(context.Background()); !errors.Is(err, domain.ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording after drain, got %v", err)
	}

	result, err := controller.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	calls := merger.snapshotCalls()
	if len(calls) != 1 || calls[0].video != started.Basename+VideoExt || calls[0].audio != started.Basename+AudioExt {
		t.Fatalf("unexpected merge calls: %+v", calls)
	}
	if result.Basename != started.Basename || !result.Merged {
		t.Fatalf("unexpected finalize result: %+v", result)
	}
	if pending := controller.Status().PendingMerge; pending != "" {
		t.Fatalf("expected no pending merge after finalize, got %q", pending)
	}
}

func TestWatchdogKeepsSessionWhilePinged(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, &fakeEventSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewWatchdog(controller, 150*time.Millisecond, 10*time.Millisecond).Run(ctx)

	if _, err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		controller.Ping()
		time.Sleep(30 * time.Millisecond)
		if !controller.Status().Requested {
			t.Fatalf("watchdog stopped a session that kept pinging")
		}
	}
}

func TestWatchdogCountsFromLastPing(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, &fakeEventSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	const timeout = 200 * time.Millisecond
	go NewWatchdog(controller, timeout, 10*time.Millisecond).Run(ctx)

	if _, err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	controller.Ping()
	pingedAt := time.Now()

	waitFor(t, "request withdrawn", func() bool {
		return !controller.Status().Requested
	})
	if elapsed := time.Since(pingedAt); elapsed < timeout {
		t.Fatalf("watchdog fired %s after the last ping, expected at least %s", elapsed, timeout)
	}
}

func TestWatchdogIgnoresIdleRecorder(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, events)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	NewWatchdog(controller, time.Millisecond, 5*time.Millisecond).Run(ctx)

	if len(events.snapshotStates()) != 0 {
		t.Fatalf("expected no events for an idle recorder")
	}
}

func TestExpireSkipsRefreshedSession(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, &fakeCapture{}, &fakeCapture{}, &fakeMerger{}, &fakeEventSink{})
	if _, err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	snap := controller.keepAliveSnapshot()
	time.Sleep(2 * time.Millisecond)
	controller.Ping()

	if controller.expire(snap) {
		t.Fatalf("expire must not withdraw a session pinged after the snapshot")
	}
	if !controller.Status().Requested {
		t.Fatalf("expected session to stay requested")
	}

	if !controller.expire(controller.keepAliveSnapshot()) {
		t.Fatalf("expected expire to withdraw the request")
	}
}
