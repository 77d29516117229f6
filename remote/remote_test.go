package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/link"
	"github.com/marcotidei/LAURACam/link/memlink"
	"github.com/marcotidei/LAURACam/protocol"
	"github.com/marcotidei/LAURACam/reliable"
	"github.com/marcotidei/LAURACam/session"
)

// testRig holds a remote wired to an in-memory medium plus an observer
// endpoint standing in for the controllers' radios.
type testRig struct {
	remote *Remote
	air    *memlink.Endpoint

	timeouts []protocol.CommandKind
	idles    int
}

func newTestRig(t *testing.T, devices ...protocol.DeviceID) *testRig {
	t.Helper()
	if len(devices) == 0 {
		devices = []protocol.DeviceID{1, 2, 3}
	}
	hub := memlink.NewHub()
	remoteEnd := hub.Attach()
	air := hub.Attach()

	rig := &testRig{air: air}
	cfg := Config{
		DeviceID:    0x10,
		Devices:     devices,
		Reliable:    reliable.Config{MaxRetries: 2, RetryInterval: time.Second, Timeout: 10 * time.Second},
		IdleTimeout: 5 * time.Minute,
	}
	hooks := Hooks{
		OnTimeout: func(_ protocol.DeviceID, kind protocol.CommandKind) {
			rig.timeouts = append(rig.timeouts, kind)
		},
		OnIdle: func() { rig.idles++ },
	}
	rig.remote = New(cfg, remoteEnd, hooks, zap.NewNop())
	return rig
}

// airFrames decodes everything the remote has transmitted so far.
func (rig *testRig) airFrames(t *testing.T) []*protocol.Frame {
	t.Helper()
	var frames []*protocol.Frame
	for {
		rx, ok := rig.air.Poll()
		if !ok {
			return frames
		}
		f, err := protocol.DecodeFrame(rx.Data)
		if err != nil {
			t.Fatalf("DecodeFrame() error = %v", err)
		}
		frames = append(frames, f)
	}
}

// deliver encodes a controller-role frame and feeds it to the remote's
// receive path with fixed signal metadata.
func (rig *testRig) deliver(t *testing.T, f *protocol.Frame) {
	t.Helper()
	data, err := protocol.EncodeFrame(f)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	rig.remote.handleRaw(link.Received{Data: data, RSSI: -88, SNR: 6})
}

func (rig *testRig) snapshotFor(t *testing.T, id protocol.DeviceID) session.Snapshot {
	t.Helper()
	for _, snap := range rig.remote.registry.Snapshot() {
		if snap.ID == id {
			return snap
		}
	}
	t.Fatalf("device %d missing from snapshot", id)
	return session.Snapshot{}
}

func TestCommandRoundTrip(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.remote.handleIntent(2, protocol.KindTriggerStart); err != nil {
		t.Fatalf("handleIntent() error = %v", err)
	}

	sent := rig.airFrames(t)
	if len(sent) != 1 {
		t.Fatalf("transmitted frames = %d, want 1", len(sent))
	}
	cmd := sent[0]
	if cmd.Kind != protocol.KindTriggerStart || cmd.Dest != 2 || cmd.Role != protocol.RoleRemote {
		t.Fatalf("transmitted frame = kind %v dest %d role %v", cmd.Kind, cmd.Dest, cmd.Role)
	}
	if snap := rig.snapshotFor(t, 2); !snap.Pending {
		t.Fatal("no pending command after dispatch")
	}

	// The controller answers with the Ack echoing our sequence and a
	// status reply.
	rig.deliver(t, &protocol.Frame{
		Dest: 0x10, Source: 2, Role: protocol.RoleController,
		Kind: protocol.KindAck, Seq: cmd.Seq,
	})
	rig.deliver(t, &protocol.Frame{
		Dest: 0x10, Source: 2, Role: protocol.RoleController,
		Kind: protocol.KindStatusReply, Seq: 0,
		Payload: protocol.EncodedStatus(protocol.CameraStatus{
			RecordingState: protocol.RecordingActive,
			BatteryLevel:   80,
		}),
	})

	snap := rig.snapshotFor(t, 2)
	if snap.Pending {
		t.Error("command still pending after ack")
	}
	if snap.Connectivity != session.ConnOnline {
		t.Errorf("connectivity = %v, want %v", snap.Connectivity, session.ConnOnline)
	}
	if snap.Status.RecordingState != protocol.RecordingActive {
		t.Errorf("recording state = %v, want %v", snap.Status.RecordingState, protocol.RecordingActive)
	}
	if snap.Status.BatteryLevel != 80 {
		t.Errorf("battery = %d, want 80", snap.Status.BatteryLevel)
	}
	if snap.Status.SignalQuality != -88 {
		t.Errorf("signal quality = %d, want the link's RSSI reading", snap.Status.SignalQuality)
	}
	if len(rig.timeouts) != 0 {
		t.Errorf("timeout hooks fired = %d, want 0", len(rig.timeouts))
	}
}

func TestWakeTimeoutFiresHookOnly(t *testing.T) {
	rig := newTestRig(t)
	base := time.Now()

	// The device is healthy as far as heartbeats go.
	rig.deliver(t, &protocol.Frame{
		Dest: protocol.BroadcastID, Source: 1, Role: protocol.RoleController,
		Kind: protocol.KindHeartbeat, Seq: 0,
		Payload: protocol.EncodedStatus(protocol.CameraStatus{RecordingState: protocol.RecordingIdle}),
	})

	if err := rig.remote.handleIntent(1, protocol.KindWakeUp); err != nil {
		t.Fatalf("handleIntent() error = %v", err)
	}

	// No ack ever arrives; walk time past the deadline.
	rig.remote.engine.Tick(base.Add(time.Minute))

	if len(rig.timeouts) != 1 || rig.timeouts[0] != protocol.KindWakeUp {
		t.Fatalf("timeout hooks = %v, want one WakeUp", rig.timeouts)
	}
	snap := rig.snapshotFor(t, 1)
	if snap.Pending {
		t.Error("command still pending after timeout")
	}
	// A timed-out command is an alert, not liveness evidence.
	if snap.Connectivity != session.ConnOnline {
		t.Errorf("connectivity = %v, want %v unchanged", snap.Connectivity, session.ConnOnline)
	}

	// The slot is free again.
	if err := rig.remote.handleIntent(1, protocol.KindWakeUp); err != nil {
		t.Errorf("handleIntent() after timeout error = %v", err)
	}
}

func TestUnknownSourceDropped(t *testing.T) {
	rig := newTestRig(t, 1, 2, 3)

	rig.deliver(t, &protocol.Frame{
		Dest: protocol.BroadcastID, Source: 9, Role: protocol.RoleController,
		Kind: protocol.KindHeartbeat, Seq: 0,
		Payload: protocol.EncodedStatus(protocol.CameraStatus{RecordingState: protocol.RecordingIdle}),
	})

	snaps := rig.remote.registry.Snapshot()
	if len(snaps) != 3 {
		t.Fatalf("snapshot count = %d, want 3", len(snaps))
	}
	for _, snap := range snaps {
		if snap.Connectivity != session.ConnUnknown {
			t.Errorf("device %d connectivity = %v, want untouched", snap.ID, snap.Connectivity)
		}
	}
}

func TestDuplicateAcksResolveOnce(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.remote.handleIntent(2, protocol.KindTriggerStop); err != nil {
		t.Fatalf("handleIntent() error = %v", err)
	}
	cmd := rig.airFrames(t)[0]

	ack := &protocol.Frame{
		Dest: 0x10, Source: 2, Role: protocol.RoleController,
		Kind: protocol.KindAck, Seq: cmd.Seq,
	}
	rig.deliver(t, ack)
	rig.deliver(t, ack)

	if snap := rig.snapshotFor(t, 2); snap.Pending {
		t.Error("command pending after acks")
	}
	// The duplicate must not have resolved a command it does not own:
	// a new dispatch works and is tracked under a fresh sequence.
	if err := rig.remote.handleIntent(2, protocol.KindTriggerStart); err != nil {
		t.Fatalf("handleIntent() after duplicate ack error = %v", err)
	}
	next := rig.airFrames(t)[0]
	if next.Seq == cmd.Seq {
		t.Error("sequence number reused for the next command")
	}
	rig.deliver(t, ack) // stale seq now
	if snap := rig.snapshotFor(t, 2); !snap.Pending {
		t.Error("stale ack resolved the new command")
	}
}

func TestSecondIntentWhilePendingRejected(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.remote.handleIntent(1, protocol.KindTriggerStart); err != nil {
		t.Fatalf("handleIntent() error = %v", err)
	}
	err := rig.remote.handleIntent(1, protocol.KindTriggerStop)
	if !errors.Is(err, session.ErrCommandInFlight) {
		t.Fatalf("second intent error = %v, want %v", err, session.ErrCommandInFlight)
	}
	// The rejected intent must not have transmitted anything.
	if frames := rig.airFrames(t); len(frames) != 1 {
		t.Errorf("transmitted frames = %d, want only the first command", len(frames))
	}
}

func TestIntentForUnknownDevice(t *testing.T) {
	rig := newTestRig(t, 1, 2, 3)

	err := rig.remote.handleIntent(9, protocol.KindTriggerStart)
	if !errors.Is(err, session.ErrUnknownDevice) {
		t.Fatalf("handleIntent(9) error = %v, want %v", err, session.ErrUnknownDevice)
	}
}

func TestIntentRejectsFireAndForgetKinds(t *testing.T) {
	rig := newTestRig(t)

	for _, kind := range []protocol.CommandKind{protocol.KindAck, protocol.KindHeartbeat, protocol.KindStatusReply} {
		if err := rig.remote.handleIntent(1, kind); !errors.Is(err, protocol.ErrUnknownCommandKind) {
			t.Errorf("handleIntent(%v) error = %v, want %v", kind, err, protocol.ErrUnknownCommandKind)
		}
	}
}

func TestBroadcastWakeFansOut(t *testing.T) {
	rig := newTestRig(t, 1, 2, 3)

	// Device 2 already has something outstanding; the fan-out skips it.
	if err := rig.remote.handleIntent(2, protocol.KindTriggerStart); err != nil {
		t.Fatalf("handleIntent() error = %v", err)
	}
	rig.airFrames(t)

	if err := rig.remote.handleIntent(protocol.BroadcastID, protocol.KindWakeUp); err != nil {
		t.Fatalf("broadcast intent error = %v", err)
	}

	frames := rig.airFrames(t)
	if len(frames) != 2 {
		t.Fatalf("wake frames = %d, want one per free device", len(frames))
	}
	dests := map[protocol.DeviceID]bool{}
	for _, f := range frames {
		if f.Kind != protocol.KindWakeUp {
			t.Errorf("frame kind = %v, want WakeUp", f.Kind)
		}
		dests[f.Dest] = true
	}
	if !dests[1] || !dests[3] || dests[2] {
		t.Errorf("wake destinations = %v, want 1 and 3 only", dests)
	}
}

func TestBroadcastOnlyWakes(t *testing.T) {
	rig := newTestRig(t)

	err := rig.remote.handleIntent(protocol.BroadcastID, protocol.KindTriggerStart)
	if !errors.Is(err, protocol.ErrUnknownCommandKind) {
		t.Fatalf("broadcast trigger error = %v, want %v", err, protocol.ErrUnknownCommandKind)
	}
}

func TestRemoteRoleFramesIgnored(t *testing.T) {
	rig := newTestRig(t)

	// A second remote's command, heard on the shared medium.
	data, err := protocol.EncodeFrame(&protocol.Frame{
		Dest: 1, Source: 0x11, Role: protocol.RoleRemote,
		Kind: protocol.KindTriggerStart, Seq: 0,
	})
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	rig.remote.handleRaw(link.Received{Data: data, RSSI: -90})

	for _, snap := range rig.remote.registry.Snapshot() {
		if snap.Connectivity != session.ConnUnknown {
			t.Errorf("device %d connectivity = %v, want untouched", snap.ID, snap.Connectivity)
		}
	}
}

func TestIdleHookFiresOnceWhenQuiet(t *testing.T) {
	rig := newTestRig(t)
	base := time.Now()
	rig.remote.lastInput = base

	rig.remote.checkIdle(base.Add(time.Minute))
	if rig.idles != 0 {
		t.Fatalf("idle hooks = %d before the timeout, want 0", rig.idles)
	}

	rig.remote.checkIdle(base.Add(6 * time.Minute))
	rig.remote.checkIdle(base.Add(7 * time.Minute))
	if rig.idles != 1 {
		t.Fatalf("idle hooks = %d, want exactly 1", rig.idles)
	}

	// Operator input re-arms the hook.
	if err := rig.remote.handleIntent(1, protocol.KindWakeUp); err != nil {
		t.Fatalf("handleIntent() error = %v", err)
	}
	cmd := rig.airFrames(t)[0]
	rig.deliver(t, &protocol.Frame{
		Dest: 0x10, Source: 1, Role: protocol.RoleController,
		Kind: protocol.KindAck, Seq: cmd.Seq,
	})
	rig.remote.checkIdle(time.Now().Add(6 * time.Minute))
	if rig.idles != 2 {
		t.Errorf("idle hooks = %d after re-arm, want 2", rig.idles)
	}
}

func TestSubmitConcurrentWithRunStartup(t *testing.T) {
	rig := newTestRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The bench wiring: Submit racing Run's startup. The intent parks
	// until the loop comes up and is then served normally.
	errCh := make(chan error, 1)
	go func() { errCh <- rig.remote.Submit(1, protocol.KindWakeUp) }()
	go rig.remote.Run(ctx)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Submit() did not return once the loop started")
	}
}

func TestSubmitAfterShutdownReportsClosed(t *testing.T) {
	rig := newTestRig(t)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan struct{})
	go func() {
		rig.remote.Run(ctx)
		close(runDone)
	}()
	cancel()
	<-runDone

	if err := rig.remote.Submit(1, protocol.KindWakeUp); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after shutdown error = %v, want %v", err, ErrClosed)
	}
	if snaps := rig.remote.Snapshot(); snaps != nil {
		t.Errorf("Snapshot() after shutdown = %v, want nil", snaps)
	}
}

func TestIdleDeferredWhileCommandInFlight(t *testing.T) {
	rig := newTestRig(t)
	base := time.Now()

	if err := rig.remote.handleIntent(1, protocol.KindWakeUp); err != nil {
		t.Fatalf("handleIntent() error = %v", err)
	}
	rig.remote.lastInput = base

	rig.remote.checkIdle(base.Add(10 * time.Minute))
	if rig.idles != 0 {
		t.Errorf("idle hooks = %d with a command in flight, want 0", rig.idles)
	}
}
