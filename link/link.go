// Package link abstracts the long-range radio transport. Implementations are
// best effort over a shared half-duplex medium: no ordering, no delivery
// guarantee, duplicates possible.
package link

import "errors"

// ErrTransmit wraps any failure to hand a frame to the radio.
var ErrTransmit = errors.New("transmit failed")

// Received is one inbound raw frame with the modem's signal-quality metadata.
type Received struct {
	Data []byte
	RSSI int16 // dBm
	SNR  int8  // dB
}

// Transport is the minimal contract the core needs from a radio.
// Poll returns (frame, true) when a frame is waiting and (zero, false)
// otherwise; it never blocks. Implementations that receive in interrupt or
// callback context must only enqueue into a bounded buffer and let the event
// loop drain it through Poll.
type Transport interface {
	Send(data []byte) error
	Poll() (Received, bool)
	Close() error
}
