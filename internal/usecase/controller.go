package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenrec/internal/domain"
	"screenrec/internal/logging"
	"screenrec/internal/ports"
)

const (
	VideoExt = ".mp4"
	AudioExt = ".wav"

	DefaultStopPollInterval   = 50 * time.Millisecond
	DefaultWorkerPollInterval = 100 * time.Millisecond
)

// Config controls recording behavior.
type Config struct {
	RecordingsDir      string
	BasenameTemplate   string
	Screen             ports.CaptureSettings
	Audio              ports.CaptureSettings
	StopPollInterval   time.Duration
	WorkerPollInterval time.Duration
}

// SessionController orchestrates the single process-wide recording session.
type SessionController struct {
	screen    ports.ScreenCapture
	audio     ports.AudioCapture
	events    ports.EventSink
	finalizer mergeFinalizer
	names     *basenamer
	logger    *slog.Logger
	cfg       Config

	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	state sessionState
}

func NewSessionController(
	screen ports.ScreenCapture,
	audio ports.AudioCapture,
	merger ports.Merger,
	events ports.EventSink,
	logger *slog.Logger,
	cfg Config,
) (*SessionController, error) {
	if cfg.StopPollInterval <= 0 {
		cfg.StopPollInterval = DefaultStopPollInterval
	}
	if cfg.WorkerPollInterval <= 0 {
		cfg.WorkerPollInterval = DefaultWorkerPollInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}

	names, err := newBasenamer(cfg.RecordingsDir, cfg.BasenameTemplate, VideoExt, AudioExt, combinedSuffix+VideoExt)
	if err != nil {
		return nil, err
	}

	return &SessionController{
		screen:    screen,
		audio:     audio,
		events:    events,
		finalizer: newMergeFinalizer(merger, events),
		names:     names,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Start admits a new session and launches both capture workers.
func (c *SessionController) Start(ctx context.Context) (domain.StartResult, error) {
	now := c.now()
	id := c.newID()

	c.mu.Lock()
	if !c.state.idle() {
		c.mu.Unlock()
		return domain.StartResult{}, domain.ErrAlreadyRecording
	}
	basename := c.names.next(now, id)
	c.state.requested = true
	c.state.launching = true
	c.state.launched = false
	c.state.settled = false
	c.state.sessionID = id
	c.state.basename = basename
	c.state.startedAt = now
	c.state.lastKeepAlive = now
	c.mu.Unlock()

	logger := c.logger.With("session", id, "basename", basename)
	launchCtx := context.WithoutCancel(ctx)

	screen, err := c.screen.Launch(launchCtx, basename+VideoExt, c.cfg.Screen)
	if err != nil {
		return domain.StartResult{}, c.failLaunch(logger, domain.WorkerScreen, err)
	}
	c.supervise(id, domain.WorkerScreen, screen)

	audio, err := c.audio.Launch(launchCtx, basename+AudioExt, c.cfg.Audio)
	if err != nil {
		return domain.StartResult{}, c.failLaunch(logger, domain.WorkerAudio, err)
	}
	c.supervise(id, domain.WorkerAudio, audio)

	c.mu.Lock()
	c.state.launching = false
	c.state.launched = true
	c.state.lastKeepAlive = c.now()
	stillRequested := c.state.requested
	c.state.settle()
	c.mu.Unlock()

	if !stillRequested {
		logger.Warn("stop requested while workers were launching")
	}
	logger.Info("recording started")
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return domain.StartResult{SessionID: id, Basename: basename, StartedAt: now}, nil
}

// Stop requests both workers to stop, waits until they quiesced and merges their output.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	c.mu.Lock()
	if c.state.idle() {
		c.mu.Unlock()
		return domain.StopResult{}, domain.ErrNotRecording
	}
	wasRequested := c.state.requested
	c.state.requested = false
	id := c.state.sessionID
	basename := c.state.basename
	c.mu.Unlock()

	logger := c.logger.With("session", id, "basename", basename)
	if wasRequested {
		logger.Info("stop requested")
		c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonStopRequested)
	}

	claimed, err := c.awaitDrain(ctx, id, basename)
	if err != nil {
		return domain.StopResult{}, err
	}
	if !claimed {
		logger.Info("session output already handed to another caller")
		return domain.StopResult{Basename: basename}, nil
	}

	return c.merge(ctx, logger, basename)
}

// Finalize retries the merge of the most recent session whose output was not merged.
func (c *SessionController) Finalize(ctx context.Context) (domain.StopResult, error) {
	c.mu.Lock()
	if !c.state.idle() {
		c.mu.Unlock()
		return domain.StopResult{}, domain.ErrAlreadyRecording
	}
	basename, ok := c.state.lastPending()
	if !ok {
		c.mu.Unlock()
		return domain.StopResult{}, domain.ErrNothingToMerge
	}
	c.state.claim(basename)
	c.mu.Unlock()

	return c.merge(ctx, c.logger.With("basename", basename), basename)
}

// Ping refreshes the keep-alive timestamp. It is valid whether or not a session is active.
func (c *SessionController) Ping() {
	now := c.now()
	c.mu.Lock()
	c.state.lastKeepAlive = now
	c.mu.Unlock()
	c.events.KeepAlive(now)
}

// Status returns the current backend status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		State:         c.state.phase(),
		Active:        c.state.requested || c.state.screenActive || c.state.audioActive || len(c.state.tasks) > 0,
		Requested:     c.state.requested,
		LastKeepAlive: c.state.lastKeepAlive,
	}
	if pending, ok := c.state.lastPending(); ok {
		status.PendingMerge = pending
	}
	if status.Active || c.state.launching {
		status.SessionID = c.state.sessionID
		status.Basename = c.state.basename
		for _, kind := range []domain.WorkerKind{domain.WorkerScreen, domain.WorkerAudio} {
			worker := domain.WorkerStatus{Kind: kind, Active: c.state.active(kind)}
			if task, ok := c.state.task(kind); ok {
				worker.Draining = !c.state.requested
				worker.PID = task.handle.PID()
			}
			status.Workers = append(status.Workers, worker)
		}
	}
	return status
}

// Shutdown stops any running session. It is used when the process exits.
func (c *SessionController) Shutdown(ctx context.Context) error {
	_, err := c.Stop(ctx)
	if errors.Is(err, domain.ErrNotRecording) {
		return nil
	}
	return err
}

func (c *SessionController) failLaunch(logger *slog.Logger, kind domain.WorkerKind, cause error) error {
	c.mu.Lock()
	c.state.requested = false
	c.state.launching = false
	c.state.settle()
	c.mu.Unlock()

	err := &domain.LaunchError{Worker: kind, Err: cause}
	logger.Error("failed to launch capture worker", "worker", kind, "err", cause)

	code := domain.ErrorCodeScreenStart
	if kind == domain.WorkerAudio {
		code = domain.ErrorCodeAudioStart
	}
	c.events.SessionError(code, err.Error())
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonLaunchFailed)
	return err
}

// awaitDrain polls until the session identified by id has fully quiesced and
// then claims its output for merging. The lock is never held across the sleep.
func (c *SessionController) awaitDrain(ctx context.Context, id string, basename string) (bool, error) {
	ticker := time.NewTicker(c.cfg.StopPollInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		if c.state.drained(id) {
			claimed := c.state.claim(basename)
			c.mu.Unlock()
			return claimed, nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *SessionController) merge(ctx context.Context, logger *slog.Logger, basename string) (domain.StopResult, error) {
	c.mu.Lock()
	c.state.merging++
	c.mu.Unlock()

	result, reason, err := c.finalizer.Finalize(context.WithoutCancel(ctx), basename)

	c.mu.Lock()
	c.state.merging--
	if err != nil {
		c.state.pending = append(c.state.pending, basename)
	}
	c.mu.Unlock()

	if err != nil {
		logger.Error("merge failed, sources kept for retry", "err", err)
		c.events.SessionStateChanged(domain.SessionStateIdle, reason)
		return result, err
	}

	logger.Info("session finalized", "output", result.Output, "merged", result.Merged)
	c.events.SessionStateChanged(domain.SessionStateIdle, reason)
	return result, nil
}
