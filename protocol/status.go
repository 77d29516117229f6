package protocol

import "time"

// RecordingState is the camera's shutter state as last reported over the
// short-range link.
type RecordingState uint8

const (
	RecordingIdle RecordingState = iota
	RecordingActive
	RecordingError
	RecordingUnknown
)

func (s RecordingState) String() string {
	switch s {
	case RecordingIdle:
		return "idle"
	case RecordingActive:
		return "recording"
	case RecordingError:
		return "error"
	}
	return "unknown"
}

// HealthFlags is a bitmask of camera alerts. The controller surfaces the
// camera's own thresholds unchanged; nothing downstream reinterprets them.
type HealthFlags uint8

const (
	HealthOverheating HealthFlags = 1 << iota
	HealthLowTemperature
	HealthLowBattery
	// HealthUnreachable marks a failed short-range wake or query. It is set
	// by the controller itself, not by the camera.
	HealthUnreachable
)

func (h HealthFlags) Has(flag HealthFlags) bool { return h&flag != 0 }

// CameraStatus is the recording-state snapshot produced by a camera adapter
// and carried verbatim inside StatusReply and Heartbeat payloads.
// SignalQuality and LastUpdated are filled in on the receiving side: the
// first from the link's RSSI metadata, the second from the local clock.
type CameraStatus struct {
	RecordingState RecordingState
	HealthFlags    HealthFlags
	BatteryLevel   uint8 // percent
	SignalQuality  int16 // dBm, local measurement
	LastUpdated    time.Time
}

// StatusPayloadSize is the encoded size of a CameraStatus on the wire.
const StatusPayloadSize = 3

// EncodedStatus packs the camera-side fields of a status snapshot.
// Wire form: recordingState(1) | healthFlags(1) | batteryLevel(1).
func EncodedStatus(s CameraStatus) []byte {
	return []byte{byte(s.RecordingState), byte(s.HealthFlags), s.BatteryLevel}
}

// DecodeStatus parses a StatusReply or Heartbeat payload.
func DecodeStatus(payload []byte) (CameraStatus, error) {
	if len(payload) < StatusPayloadSize {
		return CameraStatus{RecordingState: RecordingUnknown}, ErrMalformedFrame
	}
	rs := RecordingState(payload[0])
	if rs > RecordingUnknown {
		rs = RecordingUnknown
	}
	return CameraStatus{
		RecordingState: rs,
		HealthFlags:    HealthFlags(payload[1]),
		BatteryLevel:   payload[2],
	}, nil
}
