// Package session tracks per-camera state: connectivity derived from
// heartbeats, the last known camera status, and the one in-flight command a
// device may have. Sessions are owned by a Registry and mutated only from
// its event loop.
package session

import (
	"errors"
	"time"

	"github.com/marcotidei/LAURACam/protocol"
)

var (
	ErrCommandInFlight = errors.New("command already in flight for device")
	ErrUnknownDevice   = errors.New("device ID not in configuration")
)

// Connectivity is the liveness ladder a session climbs and falls down.
type Connectivity int

const (
	ConnUnknown Connectivity = iota // never heard from
	ConnOffline
	ConnStale
	ConnOnline
)

func (c Connectivity) String() string {
	switch c {
	case ConnOnline:
		return "online"
	case ConnStale:
		return "stale"
	case ConnOffline:
		return "offline"
	}
	return "unknown"
}

// Thresholds configures when silence demotes a session. The defaults mirror
// the original remote firmware: heartbeats every 5 s, LOST after 16 s.
type Thresholds struct {
	Stale   time.Duration
	Offline time.Duration
}

func (t Thresholds) withDefaults() Thresholds {
	if t.Stale <= 0 {
		t.Stale = 16 * time.Second
	}
	if t.Offline <= 0 {
		t.Offline = 48 * time.Second
	}
	return t
}

// Session is the per-camera state machine. It never touches the radio
// itself; the event loop feeds it frames and timer ticks and reads the
// consequences back out.
type Session struct {
	id         protocol.DeviceID
	conn       Connectivity
	lastHeard  time.Time
	lastStatus protocol.CameraStatus

	pending     bool
	pendingKind protocol.CommandKind
	pendingSeq  uint16

	thresholds Thresholds
}

func newSession(id protocol.DeviceID, t Thresholds) *Session {
	return &Session{id: id, conn: ConnUnknown, thresholds: t}
}

func (s *Session) ID() protocol.DeviceID         { return s.id }
func (s *Session) Connectivity() Connectivity    { return s.conn }
func (s *Session) LastHeard() time.Time          { return s.lastHeard }
func (s *Session) Status() protocol.CameraStatus { return s.lastStatus }

// NoteFrame records any inbound frame from the device. Hearing anything at
// all restores Online.
func (s *Session) NoteFrame(now time.Time) {
	s.lastHeard = now
	s.conn = ConnOnline
}

// ApplyStatus stores a decoded status snapshot, stamping it with the local
// clock and the link's signal reading. Health flags pass through unchanged.
func (s *Session) ApplyStatus(status protocol.CameraStatus, rssi int16, now time.Time) {
	status.SignalQuality = rssi
	status.LastUpdated = now
	s.lastStatus = status
}

// Tick demotes connectivity as silence stretches out. It never promotes;
// only NoteFrame does that.
func (s *Session) Tick(now time.Time) {
	if s.conn == ConnUnknown || s.conn == ConnOffline {
		return
	}
	quiet := now.Sub(s.lastHeard)
	switch {
	case quiet > s.thresholds.Offline:
		s.conn = ConnOffline
	case quiet > s.thresholds.Stale:
		s.conn = ConnStale
	}
}

// BeginCommand claims the pending-command slot. A second intent while one is
// outstanding is rejected, not queued: out-of-order camera actuation is
// worse than asking the operator to wait.
func (s *Session) BeginCommand(kind protocol.CommandKind, seq uint16) error {
	if s.pending {
		return ErrCommandInFlight
	}
	s.pending = true
	s.pendingKind = kind
	s.pendingSeq = seq
	return nil
}

// ResolveCommand clears the pending slot. It reports false when nothing was
// pending, so duplicate resolutions are harmless no-ops.
func (s *Session) ResolveCommand() (protocol.CommandKind, bool) {
	if !s.pending {
		return 0, false
	}
	kind := s.pendingKind
	s.pending = false
	s.pendingKind = 0
	s.pendingSeq = 0
	return kind, true
}

// Pending reports the in-flight command, if any.
func (s *Session) Pending() (protocol.CommandKind, bool) {
	return s.pendingKind, s.pending
}

// Snapshot is the read-only view handed to display code.
type Snapshot struct {
	ID           protocol.DeviceID
	Connectivity Connectivity
	LastHeard    time.Time
	Status       protocol.CameraStatus
	Pending      bool
	PendingKind  protocol.CommandKind
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:           s.id,
		Connectivity: s.conn,
		LastHeard:    s.lastHeard,
		Status:       s.lastStatus,
		Pending:      s.pending,
		PendingKind:  s.pendingKind,
	}
}
