// Package mock simulates a camera for tests and bench runs.
package mock

import (
	"context"
	"sync"

	"github.com/marcotidei/LAURACam/camera"
	"github.com/marcotidei/LAURACam/protocol"
)

// Camera is an in-memory camera.Adapter. Failure switches let tests steer
// every error path the controller has.
type Camera struct {
	mu sync.Mutex

	asleep    bool
	recording bool
	battery   uint8
	health    protocol.HealthFlags

	// Failure injection
	FailWake      bool
	FailRecording bool
	FailQuery     bool

	wakes      int
	actuations int
	queries    int
}

func New() *Camera {
	return &Camera{battery: 100}
}

func (c *Camera) Wake(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wakes++
	if c.FailWake {
		return camera.Errorf("camera did not respond to wake")
	}
	c.asleep = false
	return nil
}

func (c *Camera) SetRecording(_ context.Context, recording bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actuations++
	if c.FailRecording {
		return camera.Errorf("shutter command rejected")
	}
	c.asleep = false
	c.recording = recording
	return nil
}

func (c *Camera) QueryStatus(_ context.Context) (protocol.CameraStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	if c.FailQuery {
		return protocol.CameraStatus{RecordingState: protocol.RecordingUnknown},
			camera.Errorf("status query failed")
	}
	state := protocol.RecordingIdle
	if c.recording {
		state = protocol.RecordingActive
	}
	return protocol.CameraStatus{
		RecordingState: state,
		HealthFlags:    c.health,
		BatteryLevel:   c.battery,
	}, nil
}

func (c *Camera) Sleep(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.asleep = true
	c.recording = false
	return nil
}

func (c *Camera) Close() error { return nil }

// SetHealth lets tests raise overheating or low-temperature flags.
func (c *Camera) SetHealth(flags protocol.HealthFlags) {
	c.mu.Lock()
	c.health = flags
	c.mu.Unlock()
}

// SetBattery sets the reported battery percentage.
func (c *Camera) SetBattery(level uint8) {
	c.mu.Lock()
	c.battery = level
	c.mu.Unlock()
}

// Recording reports the shutter state.
func (c *Camera) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Asleep reports the power state.
func (c *Camera) Asleep() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asleep
}

// Actuations counts SetRecording calls, for idempotence tests.
func (c *Camera) Actuations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actuations
}

// Queries counts QueryStatus calls.
func (c *Camera) Queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

// Wakes counts Wake calls.
func (c *Camera) Wakes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wakes
}
