package usecase

import (
	"context"
	"log/slog"
	"time"

	"screenrec/internal/domain"
)

const DefaultWatchdogInterval = time.Second

// Watchdog force-stops a session whose client stopped sending keep-alives.
// It only withdraws the stop request; draining and merging are left to the
// workers and to a later Stop or Finalize call.
type Watchdog struct {
	controller *SessionController
	timeout    time.Duration
	interval   time.Duration
	logger     *slog.Logger
}

func NewWatchdog(controller *SessionController, timeout time.Duration, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	return &Watchdog{
		controller: controller,
		timeout:    timeout,
		interval:   interval,
		logger:     controller.logger.With("component", "keep_alive"),
	}
}

// Run loops until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	for {
		snap := w.controller.keepAliveSnapshot()

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		elapsed := w.controller.now().Sub(snap.lastKeepAlive)
		if !snap.requested || elapsed < w.timeout {
			continue
		}
		if w.controller.expire(snap) {
			w.logger.Warn("closing capture due to lack of keep-alives",
				"session", snap.sessionID,
				"since_keep_alive", elapsed.Round(time.Millisecond),
				"timeout", w.timeout)
			w.controller.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonKeepAliveTimeout)
		}
	}
}

type keepAliveSnapshot struct {
	requested     bool
	sessionID     string
	lastKeepAlive time.Time
}

func (c *SessionController) keepAliveSnapshot() keepAliveSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return keepAliveSnapshot{
		requested:     c.state.requested,
		sessionID:     c.state.sessionID,
		lastKeepAlive: c.state.lastKeepAlive,
	}
}

// expire withdraws the stop request if the snapshot still describes the
// current session and no keep-alive arrived since it was taken.
func (c *SessionController) expire(snap keepAliveSnapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.requested || c.state.sessionID != snap.sessionID {
		return false
	}
	if c.state.lastKeepAlive.After(snap.lastKeepAlive) {
		return false
	}
	c.state.requested = false
	return true
}
