// Package lauracam provides a façade to access the camera trigger link.
package lauracam

import (
	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/camera"
	"github.com/marcotidei/LAURACam/controller"
	"github.com/marcotidei/LAURACam/link"
	"github.com/marcotidei/LAURACam/protocol"
	"github.com/marcotidei/LAURACam/remote"
	"github.com/marcotidei/LAURACam/session"
)

// Re-export the types embedders work with so most programs only need this
// import plus a transport.
type (
	DeviceID     = protocol.DeviceID
	CommandKind  = protocol.CommandKind
	CameraStatus = protocol.CameraStatus
	Frame        = protocol.Frame
	Transport    = link.Transport
	Adapter      = camera.Adapter
	Remote       = remote.Remote
	Controller   = controller.Controller
	Snapshot     = session.Snapshot
)

// Error constants exposed in the public API
var (
	ErrMalformedFrame  = protocol.ErrMalformedFrame
	ErrPayloadTooLarge = protocol.ErrPayloadTooLarge
	ErrInvalidDeviceID = protocol.ErrInvalidDeviceID
	ErrUnknownDevice   = session.ErrUnknownDevice
	ErrCommandInFlight = session.ErrCommandInFlight
)

// Constants exposed in the public API
const (
	BroadcastID = protocol.BroadcastID

	KindTriggerStart  = protocol.KindTriggerStart
	KindTriggerStop   = protocol.KindTriggerStop
	KindWakeUp        = protocol.KindWakeUp
	KindStatusRequest = protocol.KindStatusRequest
	KindStatusReply   = protocol.KindStatusReply
	KindAck           = protocol.KindAck
	KindHeartbeat     = protocol.KindHeartbeat
)

// NewRemote builds the handheld role on any transport. A nil logger
// silences the library.
func NewRemote(cfg remote.Config, tr link.Transport, hooks remote.Hooks, log *zap.Logger) *Remote {
	if log == nil {
		log = zap.NewNop()
	}
	return remote.New(cfg, tr, hooks, log)
}

// NewController builds the camera role on any transport.
func NewController(cfg controller.Config, tr link.Transport, adapter Adapter, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return controller.New(cfg, tr, adapter, log)
}
