package screen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgbutil"

	"screenrec/internal/ffmpeg"
	"screenrec/internal/ports"
)

// NativeCapture grabs the X11 root window in-process and feeds raw frames to
// an ffmpeg encoder over stdin.
type NativeCapture struct {
	command   string
	probe     time.Duration
	stopGrace time.Duration
	connect   func(display string) (frameSource, error)
}

func NewNativeCapture(command string) *NativeCapture {
	if command == "" {
		command = ffmpeg.DefaultCommand
	}
	return &NativeCapture{command: command, connect: connectX11}
}

// WithTimings overrides the encoder startup probe and stop grace period.
func (c *NativeCapture) WithTimings(probe, stopGrace time.Duration) *NativeCapture {
	c.probe = probe
	c.stopGrace = stopGrace
	return c
}

func (c *NativeCapture) Launch(ctx context.Context, outputPath string, cfg ports.CaptureSettings) (ports.WorkerHandle, error) {
	cfg = withDefaults(cfg)

	src, err := c.connect(cfg.Display)
	if err != nil {
		return nil, err
	}
	width, height := src.Size()

	proc, err := ffmpeg.Start(ctx, c.command, rawArgs(outputPath, width, height, cfg), ffmpeg.Options{
		Input:        true,
		StopOnEOF:    true,
		StartupProbe: c.probe,
		StopGrace:    c.stopGrace,
	})
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	h := &nativeHandle{
		proc:    proc,
		src:     src,
		started: make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go pumpFrames(src, proc.Input(), cfg.FPS, h.started, h.stop, h.done, &h.pumpErr)
	return h, nil
}

func rawArgs(outputPath string, width, height int, cfg ports.CaptureSettings) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "rawvideo",
		"-pixel_format", "bgr0",
		"-video_size", strconv.Itoa(width) + "x" + strconv.Itoa(height),
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", "-",
	}
	return append(args, encodeArgs(outputPath, cfg)...)
}

type nativeHandle struct {
	proc    *ffmpeg.Process
	src     frameSource
	started chan struct{}
	stop    chan struct{}
	done    chan struct{}
	pumpErr error

	stopOnce sync.Once
	stopErr  error
}

func (h *nativeHandle) Started() <-chan struct{} { return h.started }

func (h *nativeHandle) PID() int { return h.proc.PID() }

func (h *nativeHandle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return h.proc.Exited()
	}
}

func (h *nativeHandle) Stop() error {
	h.stopOnce.Do(func() {
		close(h.stop)
		<-h.done

		h.stopErr = errors.Join(h.pumpErr, h.proc.Stop(), h.src.Close())
	})
	return h.stopErr
}

type x11Source struct {
	xu     *xgbutil.XUtil
	root   xproto.Window
	width  int
	height int
}

func connectX11(display string) (frameSource, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to X11 display %q: %w", display, err)
	}

	root := xu.RootWin()
	geom, err := xproto.GetGeometry(xu.Conn(), xproto.Drawable(root)).Reply()
	if err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("failed to query root window geometry: %w", err)
	}
	return &x11Source{
		xu:     xu,
		root:   root,
		width:  int(geom.Width),
		height: int(geom.Height),
	}, nil
}

func (s *x11Source) Size() (int, int) { return s.width, s.height }

func (s *x11Source) Grab() ([]byte, error) {
	reply, err := xproto.GetImage(
		s.xu.Conn(),
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		0, 0,
		uint16(s.width), uint16(s.height),
		^uint32(0),
	).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Data, nil
}

func (s *x11Source) Close() error {
	s.xu.Conn().Close()
	return nil
}
