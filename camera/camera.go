// Package camera defines the short-range camera-control capability the
// controller core depends on. Implementations wake, command and query one
// physical camera; the radio protocol never sees past this interface.
package camera

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcotidei/LAURACam/protocol"
)

// ErrAdapter is the base error for short-range link failures. The protocol
// layer surfaces it as recordingState=Unknown, never as a fault.
var ErrAdapter = errors.New("camera adapter error")

// Errorf wraps a short-range failure so callers can test errors.Is(err, ErrAdapter).
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAdapter, fmt.Sprintf(format, args...))
}

// Adapter is the contract between the controller core and a camera. Every
// call takes a context so the event loop can bound how long the short-range
// link may block it.
type Adapter interface {
	// Wake brings the camera out of sleep. Idempotent on an awake camera.
	Wake(ctx context.Context) error
	// SetRecording starts or stops the shutter.
	SetRecording(ctx context.Context, recording bool) error
	// QueryStatus returns a fresh recording-state snapshot.
	QueryStatus(ctx context.Context) (protocol.CameraStatus, error)
	// Sleep puts the camera into its low-power state.
	Sleep(ctx context.Context) error
	Close() error
}
