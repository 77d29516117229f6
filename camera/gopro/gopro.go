// Package gopro drives a GoPro over BLE: wake, shutter, sleep and status
// queries through the camera's command and query characteristics.
package gopro

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/marcotidei/LAURACam/camera"
	"github.com/marcotidei/LAURACam/protocol"
)

const (
	scanTimeout    = 10 * time.Second
	queryTimeout   = 5 * time.Second
	lowBatteryMark = 15
)

// Camera implements camera.Adapter against a physical GoPro. The BLE session
// is established lazily and re-established after the camera sleeps.
type Camera struct {
	log        *zap.Logger
	identifier string
	adapter    *bluetooth.Adapter

	mu        sync.Mutex
	enabled   bool
	connected bool
	device    bluetooth.Device
	cmdReq    bluetooth.DeviceCharacteristic
	queryReq  bluetooth.DeviceCharacteristic

	acc      queryAccumulator
	statusCh chan protocol.CameraStatus
}

// New returns an adapter that will connect to the first camera whose
// advertised name contains identifier ("GoPro" matches any of them).
func New(identifier string, log *zap.Logger) *Camera {
	if identifier == "" {
		identifier = "GoPro"
	}
	return &Camera{
		log:        log.With(zap.String("component", "gopro")),
		identifier: identifier,
		adapter:    bluetooth.DefaultAdapter,
		statusCh:   make(chan protocol.CameraStatus, 1),
	}
}

func (c *Camera) Wake(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	// Reconnecting wakes the camera; the keep-alive write confirms the
	// control channel is actually up.
	return c.writeCommand(cmdKeepAlive)
}

func (c *Camera) SetRecording(ctx context.Context, recording bool) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	if recording {
		return c.writeCommand(cmdShutterStart)
	}
	return c.writeCommand(cmdShutterStop)
}

func (c *Camera) QueryStatus(ctx context.Context) (protocol.CameraStatus, error) {
	unknown := protocol.CameraStatus{RecordingState: protocol.RecordingUnknown}

	if err := c.ensureConnected(ctx); err != nil {
		return unknown, err
	}

	// Drop a stale unread reply so we wait for the one we ask for.
	select {
	case <-c.statusCh:
	default:
	}

	c.mu.Lock()
	_, err := c.queryReq.WriteWithoutResponse(queryStatusReq)
	c.mu.Unlock()
	if err != nil {
		c.dropConnection()
		return unknown, camera.Errorf("status query write: %v", err)
	}

	timer := time.NewTimer(queryTimeout)
	defer timer.Stop()
	select {
	case status := <-c.statusCh:
		return status, nil
	case <-timer.C:
		return unknown, camera.Errorf("status query timed out")
	case <-ctx.Done():
		return unknown, camera.Errorf("status query cancelled: %v", ctx.Err())
	}
}

func (c *Camera) Sleep(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	if err := c.writeCommand(cmdSleep); err != nil {
		return err
	}
	// A sleeping camera drops the BLE session; forget it now rather than
	// discovering that on the next write.
	c.dropConnection()
	return nil
}

func (c *Camera) Close() error {
	c.dropConnection()
	return nil
}

func (c *Camera) writeCommand(cmd []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return camera.Errorf("not connected")
	}
	if _, err := c.cmdReq.WriteWithoutResponse(cmd); err != nil {
		c.connected = false
		return camera.Errorf("command write: %v", err)
	}
	return nil
}

func (c *Camera) dropConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		_ = c.device.Disconnect()
		c.connected = false
	}
}

// ensureConnected scans for the camera, connects and subscribes to the
// query-response characteristic. Honors ctx's deadline during the scan so a
// session timeout upstream cancels the wake attempt too.
func (c *Camera) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	if !c.enabled {
		if err := c.adapter.Enable(); err != nil {
			return camera.Errorf("enable BLE adapter: %v", err)
		}
		c.enabled = true
	}

	result, err := c.scan(ctx)
	if err != nil {
		return err
	}
	c.log.Info("camera found", zap.String("name", result.LocalName()))

	device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return camera.Errorf("connect: %v", err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceGoPro})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return camera.Errorf("discover control service: %v", err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		charCommandReq, charCommandRsp, charQueryReq, charQueryRsp,
	})
	if err != nil || len(chars) != 4 {
		_ = device.Disconnect()
		return camera.Errorf("discover characteristics: %v", err)
	}
	c.cmdReq = chars[0]
	c.queryReq = chars[2]

	if err := chars[3].EnableNotifications(c.onQueryNotification); err != nil {
		_ = device.Disconnect()
		return camera.Errorf("subscribe query responses: %v", err)
	}

	c.device = device
	c.connected = true
	c.log.Info("camera connected")
	return nil
}

func (c *Camera) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	var found bluetooth.ScanResult
	ok := false

	deadline := time.Now().Add(scanTimeout)
	if d, has := ctx.Deadline(); has && d.Before(deadline) {
		deadline = d
	}
	stop := time.AfterFunc(time.Until(deadline), func() { _ = c.adapter.StopScan() })
	defer stop.Stop()

	err := c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !strings.Contains(result.LocalName(), c.identifier) {
			return
		}
		if !result.HasServiceUUID(serviceGoPro) {
			return
		}
		found = result
		ok = true
		_ = adapter.StopScan()
	})
	if err != nil {
		return found, camera.Errorf("scan: %v", err)
	}
	if !ok {
		return found, camera.Errorf("no camera matching %q found", c.identifier)
	}
	return found, nil
}

// onQueryNotification runs on the bluetooth stack's goroutine. It only
// reassembles and parses; the parsed status is handed over through a
// buffered channel.
func (c *Camera) onQueryNotification(buf []byte) {
	payload, done := c.acc.feed(buf)
	if !done {
		return
	}
	status, ok := parseStatusResponse(payload)
	if !ok {
		c.log.Debug("unparseable query response", zap.Int("len", len(payload)))
		return
	}
	select {
	case c.statusCh <- status:
	default:
	}
}

// queryAccumulator reassembles fragmented GATT responses. The first packet
// carries the total length; continuation packets are prefixed with 0x80|seq.
type queryAccumulator struct {
	buf    []byte
	expect int
}

func (a *queryAccumulator) feed(packet []byte) ([]byte, bool) {
	if len(packet) == 0 {
		return nil, false
	}
	if packet[0]&0x80 == 0 {
		a.expect = int(packet[0])
		a.buf = append(a.buf[:0], packet[1:]...)
	} else {
		if a.expect == 0 {
			return nil, false
		}
		a.buf = append(a.buf, packet[1:]...)
	}
	if len(a.buf) < a.expect {
		return nil, false
	}
	payload := a.buf[:a.expect]
	a.expect = 0
	return payload, true
}

// parseStatusResponse walks the TLV triples of a get-status-values reply.
func parseStatusResponse(payload []byte) (protocol.CameraStatus, bool) {
	if len(payload) < 2 || payload[0] != queryGetStatusValues|0x80 || payload[1] != 0 {
		return protocol.CameraStatus{}, false
	}

	status := protocol.CameraStatus{RecordingState: protocol.RecordingIdle}
	i := 2
	for i+2 <= len(payload) {
		id := payload[i]
		length := int(payload[i+1])
		if i+2+length > len(payload) {
			return protocol.CameraStatus{}, false
		}
		value := payload[i+2 : i+2+length]
		i += 2 + length
		if length == 0 {
			continue
		}

		switch id {
		case statusRecording:
			if value[0] != 0 {
				status.RecordingState = protocol.RecordingActive
			}
		case statusSystemHot:
			if value[0] != 0 {
				status.HealthFlags |= protocol.HealthOverheating
			}
		case statusLowTemp:
			if value[0] != 0 {
				status.HealthFlags |= protocol.HealthLowTemperature
			}
		case statusBatteryPercent:
			status.BatteryLevel = value[0]
			if value[0] <= lowBatteryMark {
				status.HealthFlags |= protocol.HealthLowBattery
			}
		}
	}
	return status, true
}
