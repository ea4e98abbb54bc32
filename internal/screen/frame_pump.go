package screen

import (
	"fmt"
	"io"
	"time"
)

// frameSource yields raw BGRX frames of a fixed size.
type frameSource interface {
	Size() (width, height int)
	Grab() ([]byte, error)
	Close() error
}

// pumpFrames grabs a frame per tick and writes it to sink until stop is
// closed or a grab or write fails. started is closed after the first frame.
func pumpFrames(
	src frameSource,
	sink io.Writer,
	fps int,
	started chan struct{},
	stop <-chan struct{},
	done chan struct{},
	errOut *error,
) {
	defer close(done)

	if fps <= 0 {
		fps = DefaultFPS
	}
	width, height := src.Size()
	frameLen := width * height * 4

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	first := true
	for {
		frame, err := src.Grab()
		if err != nil {
			*errOut = fmt.Errorf("failed to grab frame: %w", err)
			return
		}
		if len(frame) != frameLen {
			*errOut = fmt.Errorf("unexpected frame size %d, want %d", len(frame), frameLen)
			return
		}
		if _, err := sink.Write(frame); err != nil {
			*errOut = fmt.Errorf("failed to write frame: %w", err)
			return
		}
		if first {
			close(started)
			first = false
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
