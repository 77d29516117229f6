// Package controller implements the camera-side role: it answers trigger,
// wake and status commands arriving over the radio, drives the camera
// through the short-range adapter, and beacons heartbeats carrying the
// camera's state.
package controller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/camera"
	"github.com/marcotidei/LAURACam/link"
	"github.com/marcotidei/LAURACam/protocol"
	"github.com/marcotidei/LAURACam/reliable"
)

const pollInterval = 50 * time.Millisecond

// Config carries the controller tunables.
type Config struct {
	DeviceID          protocol.DeviceID
	HeartbeatInterval time.Duration
	// FreshnessWindow bounds how old a cached status may be before a
	// StatusRequest re-queries the camera.
	FreshnessWindow time.Duration
	// WakeTimeout is the hard ceiling on any one adapter call.
	WakeTimeout time.Duration
	// IdleTimeout puts the camera to sleep after this long without a
	// command from any remote. Zero disables auto-sleep.
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 5 * time.Second
	}
	if c.WakeTimeout <= 0 {
		c.WakeTimeout = 15 * time.Second
	}
	return c
}

// Controller is the camera-side event loop. All state is owned by the one
// goroutine running Run; the adapter call is the only blocking operation,
// and it is bounded by WakeTimeout.
type Controller struct {
	cfg     Config
	tr      link.Transport
	adapter camera.Adapter
	log     *zap.Logger

	dedup *reliable.Deduper
	seq   map[protocol.DeviceID]uint16

	status        protocol.CameraStatus
	statusAt      time.Time
	lastHeartbeat time.Time
	lastCommandAt time.Time
	asleep        bool
}

func New(cfg Config, tr link.Transport, adapter camera.Adapter, log *zap.Logger) *Controller {
	return &Controller{
		cfg:     cfg.withDefaults(),
		tr:      tr,
		adapter: adapter,
		log:     log.With(zap.String("component", "controller"), zap.Uint8("device", uint8(cfg.DeviceID))),
		dedup:   reliable.NewDeduper(),
		seq:     make(map[protocol.DeviceID]uint16),
		status:  protocol.CameraStatus{RecordingState: protocol.RecordingUnknown},
	}
}

// Run drives the event loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.lastCommandAt = time.Now()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				rx, ok := c.tr.Poll()
				if !ok {
					break
				}
				c.handleRaw(ctx, rx)
			}
			c.tick(ctx, time.Now())
		}
	}
}

func (c *Controller) tick(ctx context.Context, now time.Time) {
	if now.Sub(c.lastHeartbeat) >= c.cfg.HeartbeatInterval {
		c.lastHeartbeat = now
		if !c.asleep {
			c.refreshStatus(ctx, now)
		}
		c.sendHeartbeat()
	}

	if c.cfg.IdleTimeout > 0 && !c.asleep && now.Sub(c.lastCommandAt) > c.cfg.IdleTimeout {
		c.log.Info("no commands received, putting camera to sleep",
			zap.Duration("idle", now.Sub(c.lastCommandAt)))
		sleepCtx, cancel := context.WithTimeout(ctx, c.cfg.WakeTimeout)
		if err := c.adapter.Sleep(sleepCtx); err != nil {
			c.log.Warn("camera sleep failed", zap.Error(err))
		}
		cancel()
		c.asleep = true
		c.status = protocol.CameraStatus{RecordingState: protocol.RecordingUnknown}
	}
}

func (c *Controller) handleRaw(ctx context.Context, rx link.Received) {
	frame, err := protocol.DecodeFrame(rx.Data)
	if err != nil {
		c.log.Warn("dropping frame", zap.Error(err), zap.Int("len", len(rx.Data)))
		return
	}
	// Our own transmissions come back on a shared medium; only remote
	// traffic matters here.
	if frame.Role != protocol.RoleRemote {
		return
	}
	if frame.Dest != c.cfg.DeviceID && frame.Dest != protocol.BroadcastID {
		return
	}
	if !frame.Kind.NeedsAck() {
		return
	}

	log := c.log.With(
		zap.Uint8("remote", uint8(frame.Source)),
		zap.Stringer("kind", frame.Kind),
		zap.Uint16("seq", frame.Seq))

	// A retransmission we already served gets the cached replies back,
	// and nothing else: a duplicate TriggerStart must not touch the
	// shutter again.
	if replies, seen := c.dedup.Replay(frame.Source, frame.Seq); seen {
		log.Debug("duplicate command, replaying ack")
		for _, data := range replies {
			if err := c.tr.Send(data); err != nil {
				log.Warn("ack replay failed", zap.Error(err))
			}
		}
		return
	}

	log.Info("command received", zap.Int16("rssi", rx.RSSI))
	c.lastCommandAt = time.Now()

	status := c.execute(ctx, frame.Kind)

	ack := &protocol.Frame{
		Dest:   frame.Source,
		Source: c.cfg.DeviceID,
		Role:   protocol.RoleController,
		Kind:   protocol.KindAck,
		Seq:    frame.Seq,
	}
	reply := &protocol.Frame{
		Dest:    frame.Source,
		Source:  c.cfg.DeviceID,
		Role:    protocol.RoleController,
		Kind:    protocol.KindStatusReply,
		Seq:     c.nextSeq(frame.Source),
		Payload: protocol.EncodedStatus(status),
	}

	var replies [][]byte
	for _, f := range []*protocol.Frame{ack, reply} {
		data, err := protocol.EncodeFrame(f)
		if err != nil {
			log.Error("encoding reply failed", zap.Error(err))
			continue
		}
		replies = append(replies, data)
		if err := c.tr.Send(data); err != nil {
			log.Warn("reply transmit failed", zap.Error(err))
		}
	}
	c.dedup.Record(frame.Source, frame.Seq, replies)
}

// execute performs the camera side effect and returns the status to report.
// Adapter failures degrade to RecordingUnknown plus a health flag; nothing
// here is fatal.
func (c *Controller) execute(ctx context.Context, kind protocol.CommandKind) protocol.CameraStatus {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.WakeTimeout)
	defer cancel()

	now := time.Now()

	switch kind {
	case protocol.KindTriggerStart, protocol.KindTriggerStop:
		recording := kind == protocol.KindTriggerStart
		if err := c.adapter.SetRecording(callCtx, recording); err != nil {
			c.log.Warn("shutter command failed", zap.Error(err))
			return c.unreachableStatus(now)
		}
		c.asleep = false
		return c.queryStatus(callCtx, now)

	case protocol.KindWakeUp:
		if err := c.adapter.Wake(callCtx); err != nil {
			// The remote still deserves an answer: an unreachable
			// camera reports itself as state Unknown.
			c.log.Warn("camera wake failed", zap.Error(err))
			return c.unreachableStatus(now)
		}
		c.asleep = false
		return c.queryStatus(callCtx, now)

	case protocol.KindStatusRequest:
		// Never actuates. Serve the cache inside the freshness window,
		// re-query beyond it.
		if !c.asleep && now.Sub(c.statusAt) > c.cfg.FreshnessWindow {
			return c.queryStatus(callCtx, now)
		}
		return c.status
	}
	return c.status
}

func (c *Controller) queryStatus(ctx context.Context, now time.Time) protocol.CameraStatus {
	status, err := c.adapter.QueryStatus(ctx)
	if err != nil {
		if !errors.Is(err, camera.ErrAdapter) {
			c.log.Error("unexpected adapter failure", zap.Error(err))
		} else {
			c.log.Warn("status query failed", zap.Error(err))
		}
		return c.unreachableStatus(now)
	}
	c.status = status
	c.statusAt = now
	return status
}

func (c *Controller) unreachableStatus(now time.Time) protocol.CameraStatus {
	status := protocol.CameraStatus{
		RecordingState: protocol.RecordingUnknown,
		HealthFlags:    protocol.HealthUnreachable,
	}
	c.status = status
	c.statusAt = now
	return status
}

func (c *Controller) refreshStatus(ctx context.Context, now time.Time) {
	if now.Sub(c.statusAt) <= c.cfg.FreshnessWindow {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.WakeTimeout)
	defer cancel()
	c.queryStatus(callCtx, now)
}

func (c *Controller) sendHeartbeat() {
	frame := &protocol.Frame{
		Dest:    protocol.BroadcastID,
		Source:  c.cfg.DeviceID,
		Role:    protocol.RoleController,
		Kind:    protocol.KindHeartbeat,
		Seq:     c.nextSeq(protocol.BroadcastID),
		Payload: protocol.EncodedStatus(c.status),
	}
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		c.log.Error("encoding heartbeat failed", zap.Error(err))
		return
	}
	if err := c.tr.Send(data); err != nil {
		c.log.Warn("heartbeat transmit failed", zap.Error(err))
	}
}

func (c *Controller) nextSeq(dest protocol.DeviceID) uint16 {
	s := c.seq[dest]
	c.seq[dest] = s + 1
	return s
}
