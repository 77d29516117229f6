package protocol

import "errors"

var (
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum frame size")
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownCommandKind = errors.New("unknown command kind")
	ErrInvalidDeviceID    = errors.New("device ID outside valid range (0-127)")
)
