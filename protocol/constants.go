package protocol

// Radio & protocol constants (platform independent). All higher layers depend on this file.
const (
	// Frame sizing
	// Layout:
	//   Dest (1) | Flags (1: role bit 7, source ID bits 0-6) | Kind (1) | Seq (2, BE) | PayloadLen (1) | Payload | CRC (2, BE)
	// PayloadLen counts payload bytes only.

	DestFieldSize   = 1
	FlagsFieldSize  = 1
	KindFieldSize   = 1
	SeqFieldSize    = 2
	LengthFieldSize = 1
	CRCSize         = 2 // low 16 bits of CRC-32/IEEE, big-endian

	FrameHeaderSize = DestFieldSize + FlagsFieldSize + KindFieldSize + SeqFieldSize + LengthFieldSize // 6 bytes

	// Total maximum frame length on air (SX126x-class modem buffer)
	MaxFrameSize = 255

	MaxPayloadSize = MaxFrameSize - FrameHeaderSize - CRCSize

	roleFlagBit  = 0x80
	sourceIDMask = 0x7F
)

// Destination byte addressing every configured controller at once.
const BroadcastID DeviceID = 0xFF

// Source IDs share a byte with the role bit, so they top out at 7 bits.
const MaxDeviceID DeviceID = 0x7F

// CommandKind values. Trigger/wake numbering carried over from the
// L.A.U.R.A. v2 firmware; 0x10 was its heartbeat marker byte.
const (
	KindTriggerStart  CommandKind = 0x01
	KindTriggerStop   CommandKind = 0x02
	KindWakeUp        CommandKind = 0x03
	KindStatusRequest CommandKind = 0x04
	KindStatusReply   CommandKind = 0x05
	KindAck           CommandKind = 0x06
	KindHeartbeat     CommandKind = 0x10
)
