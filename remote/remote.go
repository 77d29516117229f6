// Package remote implements the handheld role: it submits trigger, wake and
// status commands to camera controllers over the radio, tracks every
// camera's liveness and last known state, and exposes snapshots for a
// display to render.
package remote

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/link"
	"github.com/marcotidei/LAURACam/protocol"
	"github.com/marcotidei/LAURACam/reliable"
	"github.com/marcotidei/LAURACam/session"
)

const pollInterval = 50 * time.Millisecond

var ErrClosed = errors.New("remote is not running")

// Config carries the remote tunables.
type Config struct {
	DeviceID protocol.DeviceID
	Devices  []protocol.DeviceID

	Thresholds session.Thresholds
	Reliable   reliable.Config

	// IdleTimeout fires the OnIdle hook after this long without operator
	// input, so the host can enter deep sleep. Zero disables it.
	IdleTimeout time.Duration
}

// Hooks are the callbacks the UI layer may register before Run. Both are
// invoked from the event loop goroutine and must not block.
type Hooks struct {
	// OnTimeout reports a reliable command that exhausted its retries.
	// The session stays Online or Stale on heartbeat evidence alone; a
	// timed-out command is an alert, not proof the device is gone.
	OnTimeout func(id protocol.DeviceID, kind protocol.CommandKind)
	// OnIdle reports that the idle timeout elapsed with no operator input.
	OnIdle func()
}

type intent struct {
	id    protocol.DeviceID
	kind  protocol.CommandKind
	reply chan error
}

// Remote is the handheld-side event loop. Registry, engine and all session
// state are owned by the goroutine running Run; Submit and Snapshot talk to
// it through channels, so there is exactly one writer.
type Remote struct {
	cfg      Config
	tr       link.Transport
	engine   *reliable.Engine
	registry *session.Registry
	hooks    Hooks
	log      *zap.Logger

	intents   chan intent
	snapshots chan chan []session.Snapshot
	done      chan struct{}

	lastInput time.Time
	idleFired bool
}

func New(cfg Config, tr link.Transport, hooks Hooks, log *zap.Logger) *Remote {
	log = log.With(zap.String("component", "remote"))
	return &Remote{
		cfg:       cfg,
		tr:        tr,
		engine:    reliable.NewEngine(tr, cfg.Reliable, log),
		registry:  session.NewRegistry(cfg.Devices, cfg.Thresholds, log),
		hooks:     hooks,
		log:       log,
		intents:   make(chan intent),
		snapshots: make(chan chan []session.Snapshot),
		done:      make(chan struct{}),
	}
}

// Submit issues a command intent for one camera, or a WakeUp for all of
// them when id is the broadcast address. It returns
// session.ErrCommandInFlight when the device already has a command
// outstanding and session.ErrUnknownDevice for unconfigured IDs.
//
// Submit hands the intent to the goroutine running Run and parks until the
// loop picks it up, so it may be called as soon as Run has been started
// (even concurrently with the startup); once Run returns it reports
// ErrClosed. Calling it on a Remote whose Run is never started blocks.
func (r *Remote) Submit(id protocol.DeviceID, kind protocol.CommandKind) error {
	in := intent{id: id, kind: kind, reply: make(chan error, 1)}
	select {
	case r.intents <- in:
		return <-in.reply
	case <-r.done:
		return ErrClosed
	}
}

// Snapshot returns the read-only per-device view for display purposes. It
// shares Submit's lifetime contract: valid from the moment Run is started,
// nil once Run has returned.
func (r *Remote) Snapshot() []session.Snapshot {
	req := make(chan []session.Snapshot, 1)
	select {
	case r.snapshots <- req:
		return <-req
	case <-r.done:
		return nil
	}
}

// Run drives the event loop until ctx is cancelled.
func (r *Remote) Run(ctx context.Context) error {
	defer close(r.done)
	r.lastInput = time.Now()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-r.intents:
			in.reply <- r.handleIntent(in.id, in.kind)
		case req := <-r.snapshots:
			req <- r.registry.Snapshot()
		case <-ticker.C:
			for {
				rx, ok := r.tr.Poll()
				if !ok {
					break
				}
				r.handleRaw(rx)
			}
			now := time.Now()
			r.engine.Tick(now)
			r.registry.Tick(now)
			r.checkIdle(now)
		}
	}
}

func (r *Remote) handleIntent(id protocol.DeviceID, kind protocol.CommandKind) error {
	r.lastInput = time.Now()
	r.idleFired = false

	if !kind.NeedsAck() {
		return protocol.ErrUnknownCommandKind
	}
	if id == protocol.BroadcastID {
		return r.broadcastWake(kind)
	}

	sess, err := r.registry.Lookup(id)
	if err != nil {
		return err
	}
	return r.dispatch(sess, kind)
}

// broadcastWake fans a WakeUp out to every configured session. Devices with
// a command already outstanding are skipped rather than failed: waking the
// rest is better than waking none.
func (r *Remote) broadcastWake(kind protocol.CommandKind) error {
	if kind != protocol.KindWakeUp {
		return protocol.ErrUnknownCommandKind
	}
	for _, id := range r.registry.IDs() {
		sess, err := r.registry.Lookup(id)
		if err != nil {
			continue
		}
		if _, pending := sess.Pending(); pending {
			continue
		}
		if err := r.dispatch(sess, kind); err != nil {
			r.log.Warn("broadcast wake skipped device",
				zap.Uint8("device", uint8(id)), zap.Error(err))
		}
	}
	return nil
}

func (r *Remote) dispatch(sess *session.Session, kind protocol.CommandKind) error {
	id := sess.ID()
	seq := r.engine.NextSeq(id)
	if err := sess.BeginCommand(kind, seq); err != nil {
		return err
	}

	frame := &protocol.Frame{
		Dest:   id,
		Source: r.cfg.DeviceID,
		Role:   protocol.RoleRemote,
		Kind:   kind,
		Seq:    seq,
	}

	err := r.engine.Send(frame, func(outcome reliable.Outcome) {
		// Runs inside the event loop, from Tick or HandleAck.
		sess.ResolveCommand()
		if outcome == reliable.OutcomeTimedOut {
			r.log.Warn("command timed out",
				zap.Uint8("device", uint8(id)), zap.Stringer("kind", kind))
			if r.hooks.OnTimeout != nil {
				r.hooks.OnTimeout(id, kind)
			}
		}
	})
	if err != nil {
		sess.ResolveCommand()
		if errors.Is(err, reliable.ErrInFlight) {
			return session.ErrCommandInFlight
		}
		return err
	}

	r.log.Info("command sent",
		zap.Uint8("device", uint8(id)),
		zap.Stringer("kind", kind),
		zap.Uint16("seq", seq))
	return nil
}

func (r *Remote) handleRaw(rx link.Received) {
	frame, err := protocol.DecodeFrame(rx.Data)
	if err != nil {
		r.log.Warn("dropping frame", zap.Error(err), zap.Int("len", len(rx.Data)))
		return
	}
	// Ignore remote-role traffic: our own echo on a shared medium, or a
	// second remote working the same cameras.
	if frame.Role != protocol.RoleController {
		return
	}
	if frame.Dest != r.cfg.DeviceID && frame.Dest != protocol.BroadcastID {
		return
	}

	sess, err := r.registry.Lookup(frame.Source)
	if err != nil {
		// Unconfigured source: drop without growing session state.
		r.log.Warn("frame from unknown device dropped",
			zap.Uint8("source", uint8(frame.Source)), zap.Error(err))
		return
	}

	now := time.Now()
	sess.NoteFrame(now)

	switch frame.Kind {
	case protocol.KindAck:
		// Duplicate Acks miss the in-flight entry and fall through
		// without re-triggering resolution.
		r.engine.HandleAck(frame.Source, frame.Seq)

	case protocol.KindStatusReply, protocol.KindHeartbeat:
		status, err := protocol.DecodeStatus(frame.Payload)
		if err != nil {
			r.log.Warn("undecodable status payload",
				zap.Uint8("source", uint8(frame.Source)), zap.Error(err))
			return
		}
		sess.ApplyStatus(status, rx.RSSI, now)
		r.log.Debug("status updated",
			zap.Uint8("source", uint8(frame.Source)),
			zap.Stringer("state", status.RecordingState),
			zap.Int16("rssi", rx.RSSI))
	}
}

func (r *Remote) checkIdle(now time.Time) {
	if r.cfg.IdleTimeout <= 0 || r.idleFired || r.hooks.OnIdle == nil {
		return
	}
	// Sleep is only allowed while nothing is pending; an in-flight
	// command resets nothing but postpones the decision.
	for _, id := range r.registry.IDs() {
		if r.engine.InFlight(id) {
			return
		}
	}
	if now.Sub(r.lastInput) > r.cfg.IdleTimeout {
		r.idleFired = true
		r.log.Info("idle timeout reached", zap.Duration("idle", now.Sub(r.lastInput)))
		r.hooks.OnIdle()
	}
}
