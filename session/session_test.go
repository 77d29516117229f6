package session

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/protocol"
)

var testThresholds = Thresholds{Stale: 16 * time.Second, Offline: 48 * time.Second}

func TestConnectivityLadder(t *testing.T) {
	base := time.Now()
	s := newSession(1, testThresholds)

	if s.Connectivity() != ConnUnknown {
		t.Fatalf("initial connectivity = %v, want %v", s.Connectivity(), ConnUnknown)
	}

	s.NoteFrame(base)
	if s.Connectivity() != ConnOnline {
		t.Fatalf("connectivity after frame = %v, want %v", s.Connectivity(), ConnOnline)
	}

	tests := []struct {
		name  string
		quiet time.Duration
		want  Connectivity
	}{
		{name: "within stale threshold", quiet: 10 * time.Second, want: ConnOnline},
		{name: "past stale threshold", quiet: 20 * time.Second, want: ConnStale},
		{name: "past offline threshold", quiet: 60 * time.Second, want: ConnOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.NoteFrame(base)
			s.Tick(base.Add(tt.quiet))
			if s.Connectivity() != tt.want {
				t.Errorf("connectivity = %v, want %v", s.Connectivity(), tt.want)
			}
		})
	}
}

func TestLivenessDeterministic(t *testing.T) {
	// Silence past the offline threshold always reports Offline, and a
	// single heartbeat thereafter always restores Online.
	base := time.Now()
	s := newSession(2, testThresholds)

	s.NoteFrame(base)
	s.Tick(base.Add(49 * time.Second))
	if s.Connectivity() != ConnOffline {
		t.Fatalf("connectivity = %v, want %v", s.Connectivity(), ConnOffline)
	}

	s.NoteFrame(base.Add(50 * time.Second))
	if s.Connectivity() != ConnOnline {
		t.Fatalf("connectivity after heartbeat = %v, want %v", s.Connectivity(), ConnOnline)
	}
	// Tick with fresh evidence must not demote again.
	s.Tick(base.Add(51 * time.Second))
	if s.Connectivity() != ConnOnline {
		t.Errorf("connectivity after tick = %v, want %v", s.Connectivity(), ConnOnline)
	}
}

func TestTickNeverPromotes(t *testing.T) {
	s := newSession(1, testThresholds)
	s.Tick(time.Now())
	if s.Connectivity() != ConnUnknown {
		t.Errorf("connectivity = %v, want %v untouched", s.Connectivity(), ConnUnknown)
	}
}

func TestNoDoublePending(t *testing.T) {
	s := newSession(1, testThresholds)

	if err := s.BeginCommand(protocol.KindTriggerStart, 1); err != nil {
		t.Fatalf("BeginCommand() error = %v", err)
	}
	// A second intent is rejected, never queued, and never replaces the first.
	if err := s.BeginCommand(protocol.KindTriggerStop, 2); !errors.Is(err, ErrCommandInFlight) {
		t.Fatalf("second BeginCommand() error = %v, want %v", err, ErrCommandInFlight)
	}
	if kind, pending := s.Pending(); !pending || kind != protocol.KindTriggerStart {
		t.Errorf("Pending() = %v, %v; want TriggerStart still pending", kind, pending)
	}

	kind, ok := s.ResolveCommand()
	if !ok || kind != protocol.KindTriggerStart {
		t.Fatalf("ResolveCommand() = %v, %v; want TriggerStart, true", kind, ok)
	}
	// Resolution frees the slot.
	if err := s.BeginCommand(protocol.KindTriggerStop, 3); err != nil {
		t.Errorf("BeginCommand() after resolve error = %v", err)
	}
}

func TestResolveWithoutPending(t *testing.T) {
	s := newSession(1, testThresholds)
	if _, ok := s.ResolveCommand(); ok {
		t.Error("ResolveCommand() with nothing pending = true, want false")
	}
}

func TestApplyStatusStampsLocalFields(t *testing.T) {
	now := time.Now()
	s := newSession(3, testThresholds)

	s.ApplyStatus(protocol.CameraStatus{
		RecordingState: protocol.RecordingActive,
		HealthFlags:    protocol.HealthOverheating,
		BatteryLevel:   70,
	}, -95, now)

	got := s.Status()
	if got.SignalQuality != -95 {
		t.Errorf("SignalQuality = %d, want -95", got.SignalQuality)
	}
	if !got.LastUpdated.Equal(now) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, now)
	}
	// Health flags pass through untouched.
	if !got.HealthFlags.Has(protocol.HealthOverheating) {
		t.Error("HealthFlags lost the overheating bit")
	}
}

func TestRegistryLazyIdempotentCreation(t *testing.T) {
	r := NewRegistry([]protocol.DeviceID{1, 2, 3}, testThresholds, zap.NewNop())

	a, err := r.Lookup(2)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	b, err := r.Lookup(2)
	if err != nil {
		t.Fatalf("second Lookup() error = %v", err)
	}
	if a != b {
		t.Error("Lookup() created two sessions for one ID")
	}
}

func TestRegistryRejectsUnknownDevice(t *testing.T) {
	r := NewRegistry([]protocol.DeviceID{1, 2, 3}, testThresholds, zap.NewNop())

	if _, err := r.Lookup(9); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("Lookup(9) error = %v, want %v", err, ErrUnknownDevice)
	}
	// The rejected lookup must not have grown session state.
	for _, snap := range r.Snapshot() {
		if snap.ID == 9 {
			t.Error("unknown device appeared in snapshot")
		}
	}
}

func TestRegistrySnapshotCoversConfiguredDevices(t *testing.T) {
	r := NewRegistry([]protocol.DeviceID{3, 1, 2}, testThresholds, zap.NewNop())

	// Only device 2 has been heard from.
	s, _ := r.Lookup(2)
	s.NoteFrame(time.Now())

	snaps := r.Snapshot()
	if len(snaps) != 3 {
		t.Fatalf("snapshot count = %d, want 3", len(snaps))
	}
	for i, want := range []protocol.DeviceID{1, 2, 3} {
		if snaps[i].ID != want {
			t.Errorf("snapshot[%d].ID = %d, want %d", i, snaps[i].ID, want)
		}
	}
	if snaps[0].Connectivity != ConnUnknown {
		t.Errorf("never-heard device connectivity = %v, want %v", snaps[0].Connectivity, ConnUnknown)
	}
	if snaps[1].Connectivity != ConnOnline {
		t.Errorf("heard device connectivity = %v, want %v", snaps[1].Connectivity, ConnOnline)
	}
}

func TestRegistryTickSweepsSessions(t *testing.T) {
	base := time.Now()
	r := NewRegistry([]protocol.DeviceID{1, 2}, testThresholds, zap.NewNop())

	s1, _ := r.Lookup(1)
	s2, _ := r.Lookup(2)
	s1.NoteFrame(base)
	s2.NoteFrame(base.Add(40 * time.Second))

	r.Tick(base.Add(50 * time.Second))

	if s1.Connectivity() != ConnOffline {
		t.Errorf("silent session = %v, want %v", s1.Connectivity(), ConnOffline)
	}
	if s2.Connectivity() != ConnOnline {
		t.Errorf("recent session = %v, want %v", s2.Connectivity(), ConnOnline)
	}
}
