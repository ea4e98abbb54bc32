package ports

import (
	"context"
	"time"

	"screenrec/internal/domain"
)

// CaptureSettings is passed through to the capture workers untouched by the controller.
type CaptureSettings struct {
	Bitrate     int
	FPS         int
	Display     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
}

// WorkerHandle is a running capture worker.
type WorkerHandle interface {
	// Started is closed once the worker produces output.
	Started() <-chan struct{}
	// Finished reports whether capture ended on its own.
	Finished() bool
	// Stop requests a cooperative stop and blocks until the output file is finalized.
	Stop() error
	// PID returns the backing process id, or 0 when capture runs in-process.
	PID() int
}

// ScreenCapture launches screen recording workers.
type ScreenCapture interface {
	Launch(ctx context.Context, outputPath string, settings CaptureSettings) (WorkerHandle, error)
}

// AudioCapture launches audio recording workers.
type AudioCapture interface {
	Launch(ctx context.Context, outputPath string, settings CaptureSettings) (WorkerHandle, error)
}

// MergeResult describes the artifact left after merging.
type MergeResult struct {
	Output string
	Merged bool
}

// Merger combines a session's video and audio files.
type Merger interface {
	Merge(ctx context.Context, videoPath string, audioPath string) (MergeResult, error)
}

// EventSink emits backend state/events to connected clients.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	KeepAlive(at time.Time)
	SessionError(code domain.ErrorCode, detail string)
}
