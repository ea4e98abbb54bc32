package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRecording = errors.New("capture is already in progress")
	ErrNotRecording     = errors.New("no capture is running")
	ErrNothingToMerge   = errors.New("no recording is waiting to be merged")
)

// LaunchError reports that a capture worker could not acquire its resource.
type LaunchError struct {
	Worker WorkerKind
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s capture: %v", e.Worker, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// MergeError reports a failed merge. The source files are left on disk.
type MergeError struct {
	Video string
	Audio string
	Err   error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("failed to merge %s and %s: %v", e.Video, e.Audio, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}
