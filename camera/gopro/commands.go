package gopro

import "tinygo.org/x/bluetooth"

// GoPro GATT surface. The camera advertises the 16-bit 0xFEA6 service; the
// control characteristics live under the vendor base
// B5F9xxxx-aa8d-11e3-9046-0002a5d5c51b.
var (
	serviceGoPro = bluetooth.New16BitUUID(0xFEA6)

	charCommandReq = goproUUID(0x00, 0x72)
	charCommandRsp = goproUUID(0x00, 0x73)
	charQueryReq   = goproUUID(0x00, 0x76)
	charQueryRsp   = goproUUID(0x00, 0x77)
)

func goproUUID(hi, lo byte) bluetooth.UUID {
	return bluetooth.NewUUID([16]byte{
		0xB5, 0xF9, hi, lo,
		0xAA, 0x8D, 0x11, 0xE3,
		0x90, 0x46, 0x00, 0x02,
		0xA5, 0xD5, 0xC5, 0x1B,
	})
}

// Command packets written to the command-request characteristic.
var (
	cmdShutterStart = []byte{0x03, 0x01, 0x01, 0x01}
	cmdShutterStop  = []byte{0x03, 0x01, 0x01, 0x00}
	cmdSleep        = []byte{0x01, 0x05}
	cmdKeepAlive    = []byte{0x03, 0x5B, 0x01, 0x42}
)

// Query for the status values the link layer cares about.
const queryGetStatusValues = 0x13

const (
	statusSystemHot      = 0x06
	statusRecording      = 0x0A
	statusBatteryPercent = 0x46
	statusLowTemp        = 0x55
)

var queryStatusReq = []byte{
	0x05, queryGetStatusValues,
	statusRecording, statusLowTemp, statusSystemHot, statusBatteryPercent,
}
