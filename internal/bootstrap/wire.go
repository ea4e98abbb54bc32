package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"screenrec/internal/audio"
	"screenrec/internal/config"
	"screenrec/internal/ffmpeg"
	"screenrec/internal/ports"
	"screenrec/internal/screen"
	"screenrec/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Watchdog   *usecase.Watchdog
	Config     config.Config
}

// Build wires all backend dependencies for cfg.
func Build(cfg config.Config, eventSink ports.EventSink, logger *slog.Logger) (Services, error) {
	if err := os.MkdirAll(cfg.RecordingsFolder, 0o755); err != nil {
		return Services{}, fmt.Errorf("could not create the recordings folder: %w", err)
	}

	screenCapture, err := screen.New(cfg.Capture.Mode, cfg.FFmpeg.Command)
	if err != nil {
		return Services{}, err
	}

	controller, err := usecase.NewSessionController(
		screenCapture,
		audio.NewFFMPEGCapture(cfg.FFmpeg.Command),
		ffmpeg.NewMerger(cfg.FFmpeg.Command),
		eventSink,
		logger,
		usecase.Config{
			RecordingsDir:    cfg.RecordingsFolder,
			BasenameTemplate: cfg.BasenameTemplate,
			Screen: ports.CaptureSettings{
				Bitrate:     cfg.Capture.Bitrate,
				FPS:         cfg.Capture.FPS,
				Display:     cfg.Capture.Display,
				InputFormat: cfg.Capture.InputFormat,
			},
			Audio: ports.CaptureSettings{
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
			},
		},
	)
	if err != nil {
		return Services{}, err
	}

	watchdog := usecase.NewWatchdog(controller, cfg.KeepAliveTimeout(), usecase.DefaultWatchdogInterval)
	return Services{Controller: controller, Watchdog: watchdog, Config: cfg}, nil
}
