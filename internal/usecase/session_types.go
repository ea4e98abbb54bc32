package usecase

import (
	"time"

	"github.com/samber/lo"

	"screenrec/internal/domain"
	"screenrec/internal/ports"
)

// sessionState is the single shared record of the recorder. It is only read or
// written while holding SessionController.mu.
type sessionState struct {
	requested     bool
	launching     bool
	launched      bool
	settled       bool
	screenActive  bool
	audioActive   bool
	lastKeepAlive time.Time

	sessionID string
	basename  string
	startedAt time.Time

	tasks   []*workerTask
	pending []string
	merging int
}

type workerTask struct {
	kind      domain.WorkerKind
	sessionID string
	handle    ports.WorkerHandle
	done      chan struct{}
}

// idle reports whether a new session may be admitted.
func (s *sessionState) idle() bool {
	return !s.requested && !s.launching && !s.screenActive && !s.audioActive && len(s.tasks) == 0
}

// drained reports whether the session identified by id has fully quiesced.
func (s *sessionState) drained(id string) bool {
	if s.sessionID != id {
		return true
	}
	return s.idle()
}

func (s *sessionState) setActive(kind domain.WorkerKind, active bool) {
	switch kind {
	case domain.WorkerScreen:
		s.screenActive = active
	case domain.WorkerAudio:
		s.audioActive = active
	}
}

func (s *sessionState) active(kind domain.WorkerKind) bool {
	if kind == domain.WorkerScreen {
		return s.screenActive
	}
	return s.audioActive
}

func (s *sessionState) task(kind domain.WorkerKind) (*workerTask, bool) {
	return lo.Find(s.tasks, func(t *workerTask) bool { return t.kind == kind })
}

// settle records the session's artifacts as waiting for a merge once the
// session drained after a complete launch. It is a no-op until then.
func (s *sessionState) settle() bool {
	if s.sessionID == "" || s.settled || !s.idle() {
		return false
	}
	s.settled = true
	if s.launched && !lo.Contains(s.pending, s.basename) {
		s.pending = append(s.pending, s.basename)
	}
	return true
}

// claim removes basename from the pending merges. It returns false when
// another caller already took it.
func (s *sessionState) claim(basename string) bool {
	if !lo.Contains(s.pending, basename) {
		return false
	}
	s.pending = lo.Without(s.pending, basename)
	return true
}

func (s *sessionState) lastPending() (string, bool) {
	if len(s.pending) == 0 {
		return "", false
	}
	return s.pending[len(s.pending)-1], true
}

func (s *sessionState) phase() domain.SessionState {
	switch {
	case s.requested || s.launching:
		return domain.SessionStateRecording
	case !s.idle():
		return domain.SessionStateStopping
	case s.merging > 0:
		return domain.SessionStateMerging
	default:
		return domain.SessionStateIdle
	}
}
