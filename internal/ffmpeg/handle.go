package ffmpeg

// Handle adapts a Process into a capture worker that counts as started once
// the startup probe has passed.
type Handle struct {
	proc    *Process
	started chan struct{}
}

func NewHandle(proc *Process) *Handle {
	started := make(chan struct{})
	close(started)
	return &Handle{proc: proc, started: started}
}

func (h *Handle) Started() <-chan struct{} { return h.started }

func (h *Handle) Finished() bool { return h.proc.Exited() }

func (h *Handle) Stop() error { return h.proc.Stop() }

func (h *Handle) PID() int { return h.proc.PID() }
