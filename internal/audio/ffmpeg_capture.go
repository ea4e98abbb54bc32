package audio

import (
	"context"
	"strconv"
	"time"

	"screenrec/internal/ffmpeg"
	"screenrec/internal/ports"
)

// FFMPEGCapture records the default microphone into a WAV file using ffmpeg.
type FFMPEGCapture struct {
	command   string
	probe     time.Duration
	stopGrace time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = ffmpeg.DefaultCommand
	}
	return &FFMPEGCapture{command: command}
}

// WithTimings overrides the startup probe and stop grace period.
func (c *FFMPEGCapture) WithTimings(probe, stopGrace time.Duration) *FFMPEGCapture {
	c.probe = probe
	c.stopGrace = stopGrace
	return c
}

func (c *FFMPEGCapture) Launch(ctx context.Context, outputPath string, cfg ports.CaptureSettings) (ports.WorkerHandle, error) {
	proc, err := ffmpeg.Start(ctx, c.command, buildArgs(outputPath, cfg), ffmpeg.Options{
		Input:        true,
		StartupProbe: c.probe,
		StopGrace:    c.stopGrace,
	})
	if err != nil {
		return nil, err
	}
	return ffmpeg.NewHandle(proc), nil
}

func buildArgs(outputPath string, cfg ports.CaptureSettings) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	}
}
