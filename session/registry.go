package session

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/protocol"
)

// Registry owns the DeviceID -> Session map. Sessions are created lazily on
// first reference and live for the process lifetime; lapsed devices demote
// to Offline instead of being destroyed. Only IDs named in configuration may
// ever grow a session, so a spoofed source can't inflate state.
type Registry struct {
	thresholds Thresholds
	log        *zap.Logger

	allowed  map[protocol.DeviceID]struct{}
	sessions map[protocol.DeviceID]*Session
}

func NewRegistry(ids []protocol.DeviceID, thresholds Thresholds, log *zap.Logger) *Registry {
	r := &Registry{
		thresholds: thresholds.withDefaults(),
		log:        log.With(zap.String("component", "registry")),
		allowed:    make(map[protocol.DeviceID]struct{}, len(ids)),
		sessions:   make(map[protocol.DeviceID]*Session, len(ids)),
	}
	for _, id := range ids {
		r.allowed[id] = struct{}{}
	}
	return r
}

// Lookup returns the session for id, creating it on first reference.
// Unconfigured IDs get ErrUnknownDevice; the caller logs and drops.
func (r *Registry) Lookup(id protocol.DeviceID) (*Session, error) {
	if _, ok := r.allowed[id]; !ok {
		return nil, ErrUnknownDevice
	}
	s, ok := r.sessions[id]
	if !ok {
		s = newSession(id, r.thresholds)
		r.sessions[id] = s
		r.log.Debug("session created", zap.Uint8("device", uint8(id)))
	}
	return s, nil
}

// IDs returns every configured device ID in ascending order.
func (r *Registry) IDs() []protocol.DeviceID {
	ids := make([]protocol.DeviceID, 0, len(r.allowed))
	for id := range r.allowed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Tick sweeps every live session's staleness. Nothing is ever deleted,
// only demoted, so a device that comes back after a long gap resumes its
// existing session.
func (r *Registry) Tick(now time.Time) {
	for _, s := range r.sessions {
		s.Tick(now)
	}
}

// Snapshot returns a read-only view of every configured device, in ID
// order. Devices never referenced yet appear with ConnUnknown so a display
// can show a "Wait" row for them.
func (r *Registry) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(r.allowed))
	for _, id := range r.IDs() {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s.Snapshot())
		} else {
			out = append(out, Snapshot{ID: id, Connectivity: ConnUnknown})
		}
	}
	return out
}
