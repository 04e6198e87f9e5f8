// Package pwclient owns the dedicated connection to the audio server and
// everything that must run on its single-threaded loop (spec.md §4.2).
// Two channels bridge it to the rest of the (asynchronous) daemon: a
// request channel drained from inside the loop, and an event channel the
// loop publishes to.
package pwclient

import "github.com/undertone-audio/undertone/internal/model"

// Request is the sum type of things the loop can be asked to do.
type Request interface{ isRequest() }

type CreateSinkRequest struct {
	Name            string
	Description     string
	Channels        uint32
	ChannelPosition string // "FL,FR" or "MONO"
}

type CreateVolumeFilterRequest struct {
	Name            string
	Description     string
	Channels        uint32
	ChannelPosition string
}

type CreateLinkRequest struct {
	OutputNodeID   uint32
	OutputPortName string
	InputNodeID    uint32
	InputPortName  string
}

type SetNodeVolumeRequest struct {
	NodeID uint32
	Value  float64
}

type SetNodeMuteRequest struct {
	NodeID uint32
	Muted  bool
}

type DestroyNodeRequest struct{ NodeID uint32 }

type DestroyLinkRequest struct{ LinkID uint32 }

type ShutdownRequest struct{}

func (CreateSinkRequest) isRequest()         {}
func (CreateVolumeFilterRequest) isRequest() {}
func (CreateLinkRequest) isRequest()         {}
func (SetNodeVolumeRequest) isRequest()      {}
func (SetNodeMuteRequest) isRequest()        {}
func (DestroyNodeRequest) isRequest()        {}
func (DestroyLinkRequest) isRequest()        {}
func (ShutdownRequest) isRequest()           {}

// Response is the sum type of replies the loop sends back.
type Response interface{ isResponse() }

type NodeCreatedResponse struct {
	ID   uint32
	Name string
}

type LinkCreatedResponse struct{ ID uint32 }

type VolumeSetResponse struct{}

type MuteSetResponse struct{}

type NodeDestroyedResponse struct{}

type LinkDestroyedResponse struct{}

// ErrorResponse carries a failure back to the caller; it is still a
// Response so it can flow through the same reply channel as a success.
type ErrorResponse struct{ Err error }

func (NodeCreatedResponse) isResponse()   {}
func (LinkCreatedResponse) isResponse()   {}
func (VolumeSetResponse) isResponse()     {}
func (MuteSetResponse) isResponse()       {}
func (NodeDestroyedResponse) isResponse() {}
func (LinkDestroyedResponse) isResponse() {}
func (ErrorResponse) isResponse()         {}

// GraphEvent is the sum type the loop publishes as it observes the live
// graph (spec.md §4.2).
type GraphEvent interface{ isGraphEvent() }

type ConnectedEvent struct{}

type DisconnectedEvent struct{}

type NodeAddedEvent struct{ Node model.NodeRecord }

type NodeRemovedEvent struct {
	ID   uint32
	Name string
}

type PortAddedEvent struct{ Port model.PortRecord }

type PortRemovedEvent struct{ ID uint32 }

type LinkCreatedEvent struct {
	ID         uint32
	OutputNode uint32
	InputNode  uint32
}

type LinkRemovedEvent struct{ ID uint32 }

type TargetDeviceDetectedEvent struct{ Serial string }

type TargetDeviceRemovedEvent struct{}

type ClientAppearedEvent struct {
	ID   uint32
	Name string
	PID  int
}

type ClientDisappearedEvent struct{ ID uint32 }

// LevelsUpdatedEvent carries a polled peak-level sample for a mix node
// (SPEC_FULL.md §B.8) — a scalar parameter read from the server, never a
// raw audio sample.
type LevelsUpdatedEvent struct {
	Mix  model.Mix
	Peak float64
}

func (ConnectedEvent) isGraphEvent()             {}
func (DisconnectedEvent) isGraphEvent()          {}
func (NodeAddedEvent) isGraphEvent()             {}
func (NodeRemovedEvent) isGraphEvent()           {}
func (PortAddedEvent) isGraphEvent()             {}
func (PortRemovedEvent) isGraphEvent()           {}
func (LinkCreatedEvent) isGraphEvent()           {}
func (LinkRemovedEvent) isGraphEvent()           {}
func (TargetDeviceDetectedEvent) isGraphEvent()  {}
func (TargetDeviceRemovedEvent) isGraphEvent()   {}
func (ClientAppearedEvent) isGraphEvent()        {}
func (ClientDisappearedEvent) isGraphEvent()     {}
func (LevelsUpdatedEvent) isGraphEvent()         {}
