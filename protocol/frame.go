package protocol

import (
	"encoding/binary"
	"hash/crc32"
)

// DeviceID identifies one camera controller on the radio network.
// IDs are assigned at configuration time and are stable for a session.
type DeviceID uint8

// Role tells which end of the link produced a frame.
type Role uint8

const (
	RoleRemote     Role = 0
	RoleController Role = 1
)

func (r Role) String() string {
	if r == RoleController {
		return "controller"
	}
	return "remote"
}

// CommandKind is the closed set of frame types carried over the link.
type CommandKind uint8

func (k CommandKind) String() string {
	switch k {
	case KindTriggerStart:
		return "trigger_start"
	case KindTriggerStop:
		return "trigger_stop"
	case KindWakeUp:
		return "wake_up"
	case KindStatusRequest:
		return "status_request"
	case KindStatusReply:
		return "status_reply"
	case KindAck:
		return "ack"
	case KindHeartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// Valid reports whether k belongs to the closed command set.
func (k CommandKind) Valid() bool {
	switch k {
	case KindTriggerStart, KindTriggerStop, KindWakeUp, KindStatusRequest,
		KindStatusReply, KindAck, KindHeartbeat:
		return true
	}
	return false
}

// NeedsAck reports whether a command requires at-least-once delivery.
// StatusReply and Heartbeat are fire-and-forget: latest value wins.
func (k CommandKind) NeedsAck() bool {
	switch k {
	case KindTriggerStart, KindTriggerStop, KindWakeUp, KindStatusRequest:
		return true
	}
	return false
}

// Frame is one unit of data on the radio link.
// Layout: Dest(1) | Flags(1) | Kind(1) | Seq(2, BE) | PayloadLen(1) | Payload | CRC(2, BE)
// Flags packs the source role into bit 7 and the source device ID into bits 0-6.
// Seq increases per (source, destination) pair and is used only for
// deduplication, never for reordering.
type Frame struct {
	Dest    DeviceID
	Source  DeviceID
	Role    Role
	Kind    CommandKind
	Seq     uint16
	Payload []byte
}

// EncodeFrame serialises a frame into on-air bytes. The CRC covers every
// preceding byte so a flipped destination is caught too, not just payload
// corruption.
func EncodeFrame(f *Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	if f.Source > MaxDeviceID {
		return nil, ErrInvalidDeviceID
	}

	total := FrameHeaderSize + len(f.Payload) + CRCSize
	data := make([]byte, total)

	data[0] = byte(f.Dest)
	data[1] = byte(f.Source) & sourceIDMask
	if f.Role == RoleController {
		data[1] |= roleFlagBit
	}
	data[2] = byte(f.Kind)
	binary.BigEndian.PutUint16(data[3:5], f.Seq)
	data[5] = byte(len(f.Payload))
	copy(data[FrameHeaderSize:], f.Payload)

	crc := uint16(crc32.ChecksumIEEE(data[:total-CRCSize]))
	binary.BigEndian.PutUint16(data[total-CRCSize:], crc)

	return data, nil
}

// DecodeFrame parses on-air bytes back into a frame. It returns
// ErrMalformedFrame when the buffer is truncated, the declared length
// disagrees with the buffer, or the CRC does not validate, and
// ErrUnknownCommandKind when the command byte falls outside the closed set.
// Both are recoverable: the caller logs and drops the frame.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize+CRCSize {
		return nil, ErrMalformedFrame
	}

	payloadLen := int(data[5])
	total := FrameHeaderSize + payloadLen + CRCSize
	if total != len(data) {
		return nil, ErrMalformedFrame
	}

	want := binary.BigEndian.Uint16(data[total-CRCSize:])
	got := uint16(crc32.ChecksumIEEE(data[:total-CRCSize]))
	if want != got {
		return nil, ErrMalformedFrame
	}

	kind := CommandKind(data[2])
	if !kind.Valid() {
		return nil, ErrUnknownCommandKind
	}

	f := &Frame{
		Dest:    DeviceID(data[0]),
		Source:  DeviceID(data[1] & sourceIDMask),
		Role:    RoleRemote,
		Kind:    kind,
		Seq:     binary.BigEndian.Uint16(data[3:5]),
		Payload: make([]byte, payloadLen),
	}
	if data[1]&roleFlagBit != 0 {
		f.Role = RoleController
	}
	copy(f.Payload, data[FrameHeaderSize:FrameHeaderSize+payloadLen])

	return f, nil
}
