package screen

import (
	"context"
	"strconv"
	"time"

	"screenrec/internal/ffmpeg"
	"screenrec/internal/ports"
)

const (
	DefaultFPS     = 30
	DefaultBitrate = 5_000_000
)

// SubprocessCapture records the display with ffmpeg's own grabber.
type SubprocessCapture struct {
	command   string
	probe     time.Duration
	stopGrace time.Duration
}

func NewSubprocessCapture(command string) *SubprocessCapture {
	if command == "" {
		command = ffmpeg.DefaultCommand
	}
	return &SubprocessCapture{command: command}
}

// WithTimings overrides the startup probe and stop grace period.
func (c *SubprocessCapture) WithTimings(probe, stopGrace time.Duration) *SubprocessCapture {
	c.probe = probe
	c.stopGrace = stopGrace
	return c
}

func (c *SubprocessCapture) Launch(ctx context.Context, outputPath string, cfg ports.CaptureSettings) (ports.WorkerHandle, error) {
	proc, err := ffmpeg.Start(ctx, c.command, grabArgs(outputPath, cfg), ffmpeg.Options{
		Input:        true,
		StartupProbe: c.probe,
		StopGrace:    c.stopGrace,
	})
	if err != nil {
		return nil, err
	}
	return ffmpeg.NewHandle(proc), nil
}

func grabArgs(outputPath string, cfg ports.CaptureSettings) []string {
	cfg = withDefaults(cfg)
	format := cfg.InputFormat
	if format == "" {
		format = "x11grab"
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", format,
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", cfg.Display,
	}
	return append(args, encodeArgs(outputPath, cfg)...)
}

func encodeArgs(outputPath string, cfg ports.CaptureSettings) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", strconv.Itoa(cfg.Bitrate),
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}
}

func withDefaults(cfg ports.CaptureSettings) ports.CaptureSettings {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = DefaultBitrate
	}
	if cfg.Display == "" {
		cfg.Display = ":0"
	}
	return cfg
}
