package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"screenrec/internal/domain"
	"screenrec/internal/ports"
)

const CombinedSuffix = "-combined"

// Merger muxes a session's video and audio into one file and removes the
// sources once the combined file is written.
type Merger struct {
	command string
}

func NewMerger(command string) *Merger {
	if command == "" {
		command = DefaultCommand
	}
	return &Merger{command: command}
}

func (m *Merger) Merge(ctx context.Context, videoPath string, audioPath string) (ports.MergeResult, error) {
	if _, err := os.Stat(audioPath); errors.Is(err, fs.ErrNotExist) {
		return ports.MergeResult{Output: videoPath}, nil
	} else if err != nil {
		return ports.MergeResult{}, &domain.MergeError{Video: videoPath, Audio: audioPath, Err: err}
	}

	output := CombinedPath(videoPath)
	cmd := exec.CommandContext(ctx, m.command,
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		"-y",
		output,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(output)
		detail := string(bytes.TrimSpace(out))
		if len(detail) > 2048 {
			detail = detail[len(detail)-2048:]
		}
		return ports.MergeResult{}, &domain.MergeError{
			Video: videoPath,
			Audio: audioPath,
			Err:   fmt.Errorf("merging capture: %w: %s", err, detail),
		}
	}

	if err := errors.Join(os.Remove(videoPath), os.Remove(audioPath)); err != nil {
		return ports.MergeResult{Output: output, Merged: true}, fmt.Errorf("merged into %s but failed to remove sources: %w", output, err)
	}
	return ports.MergeResult{Output: output, Merged: true}, nil
}

// CombinedPath returns where the merged file for videoPath is written.
func CombinedPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + CombinedSuffix + ext
}
