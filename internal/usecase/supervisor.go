package usecase

import (
	"time"

	"github.com/samber/lo"

	"screenrec/internal/domain"
	"screenrec/internal/ports"
)

func (c *SessionController) supervise(sessionID string, kind domain.WorkerKind, handle ports.WorkerHandle) *workerTask {
	task := &workerTask{
		kind:      kind,
		sessionID: sessionID,
		handle:    handle,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.state.tasks = append(c.state.tasks, task)
	c.mu.Unlock()

	go c.runWorker(task)
	return task
}

// runWorker owns one capture worker for its whole life. It is the only place
// that clears the worker's active flag, and it does so only after Stop
// returned, i.e. after the output file was finalized.
func (c *SessionController) runWorker(task *workerTask) {
	defer close(task.done)

	logger := c.logger.With("session", task.sessionID, "worker", task.kind)
	started := task.handle.Started()
	ticker := time.NewTicker(c.cfg.WorkerPollInterval)
	defer ticker.Stop()

	selfStopped := false
	for {
		select {
		case <-started:
			started = nil
			c.mu.Lock()
			if c.state.sessionID == task.sessionID {
				c.state.setActive(task.kind, true)
			}
			c.mu.Unlock()
			logger.Debug("capture producing output")
		case <-ticker.C:
		}

		if !c.isRequested(task.sessionID) {
			break
		}
		if task.handle.Finished() {
			selfStopped = true
			break
		}
	}

	begin := time.Now()
	stopErr := task.handle.Stop()

	c.mu.Lock()
	if c.state.sessionID == task.sessionID {
		c.state.setActive(task.kind, false)
		if selfStopped {
			c.state.requested = false
		}
	}
	c.state.tasks = lo.Without(c.state.tasks, task)
	c.state.settle()
	c.mu.Unlock()

	if stopErr != nil {
		logger.Error("capture did not stop cleanly", "err", stopErr)
		c.events.SessionError(stopErrorCode(task.kind), stopErr.Error())
	}
	if selfStopped {
		logger.Warn("capture ended on its own, stopping session")
		c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonCaptureSelfStopped)
	}
	logger.Info("capture worker quiesced", "stop_took", time.Since(begin).Round(time.Millisecond))
}

func (c *SessionController) isRequested(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.requested && c.state.sessionID == sessionID
}

func stopErrorCode(kind domain.WorkerKind) domain.ErrorCode {
	if kind == domain.WorkerAudio {
		return domain.ErrorCodeAudioStop
	}
	return domain.ErrorCodeScreenStop
}
