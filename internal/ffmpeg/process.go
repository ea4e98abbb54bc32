package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	DefaultCommand      = "ffmpeg"
	DefaultStartupProbe = 250 * time.Millisecond
	DefaultStopGrace    = 1200 * time.Millisecond
)

// Options controls how a capture process is started and stopped.
type Options struct {
	// Input keeps a pipe to the process stdin.
	Input bool
	// StopOnEOF stops the process by closing stdin instead of sending "q".
	StopOnEOF    bool
	StartupProbe time.Duration
	StopGrace    time.Duration
}

// Process is a running ffmpeg that writes one output file.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	opts   Options

	exited chan struct{}

	exitMu   sync.Mutex
	waitErr  error
	stopOnce sync.Once
	stopErr  error
}

// Start launches command and fails fast when it exits during the startup probe.
func Start(ctx context.Context, command string, args []string, opts Options) (*Process, error) {
	if command == "" {
		command = DefaultCommand
	}
	if opts.StartupProbe <= 0 {
		opts.StartupProbe = DefaultStartupProbe
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}

	cmd := exec.CommandContext(ctx, command, args...)
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	cmd.WaitDelay = opts.StopGrace

	var stdin io.WriteCloser
	if opts.Input {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
		}
		stdin = pipe
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		opts:   opts,
		exited: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.exitMu.Lock()
		p.waitErr = err
		p.exitMu.Unlock()
		close(p.exited)
	}()

	select {
	case <-p.exited:
		if err := p.exitError(); err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stderr.String())
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(opts.StartupProbe):
	}
	return p, nil
}

// Input returns the process stdin, or nil when Options.Input was not set.
func (p *Process) Input() io.Writer {
	if p.stdin == nil {
		return nil
	}
	return p.stdin
}

func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exited reports whether the process is gone.
func (p *Process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Stop asks ffmpeg to finish its output file and waits for it to exit,
// escalating to an interrupt and then a kill after each grace period.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.requestQuit()

		if err, ok := p.await(p.opts.StopGrace); ok {
			p.stopErr = err
			return
		}
		_ = p.cmd.Process.Signal(os.Interrupt)
		if err, ok := p.await(p.opts.StopGrace); ok {
			p.stopErr = err
			return
		}
		_ = p.cmd.Process.Kill()
		err, _ := p.await(-1)
		if err == nil {
			err = errors.New("ffmpeg did not exit after interrupt and was killed")
		}
		p.stopErr = err
	})
	return p.stopErr
}

func (p *Process) requestQuit() {
	if p.stdin == nil {
		_ = p.cmd.Process.Signal(os.Interrupt)
		return
	}
	if !p.opts.StopOnEOF {
		_, _ = p.stdin.Write([]byte("q"))
	}
	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}
}

// await waits up to timeout (forever when negative) for the process to exit.
func (p *Process) await(timeout time.Duration) (error, bool) {
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.exited:
		err := normalizeStopErr(p.exitError())
		if err != nil && p.stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, p.stderr.String())
		}
		return err, true
	case <-expired:
		return nil, false
	}
}

// exitError returns what Wait reported; it is only set once exited is closed.
func (p *Process) exitError() error {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	return p.waitErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf))
}
