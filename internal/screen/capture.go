package screen

import (
	"fmt"
	"strings"

	"screenrec/internal/ports"
)

const (
	ModeSubprocess = "subprocess"
	ModeNative     = "native"
)

// New returns the screen capture backend for mode.
func New(mode string, command string) (ports.ScreenCapture, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeSubprocess:
		return NewSubprocessCapture(command), nil
	case ModeNative:
		return NewNativeCapture(command), nil
	default:
		return nil, fmt.Errorf("unsupported capture mode %q", mode)
	}
}
