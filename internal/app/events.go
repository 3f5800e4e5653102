package app

import (
	"encoding/json"

	"github.com/dkoval/peercast/internal/domain"
)

// Events the registry pushes to participants. The signaling adapter owns the
// transport; these structs are what go over it.

type UserConnectedEvent struct {
	Type string               `json:"type"`
	ID   domain.ParticipantID `json:"id"`
}

type UserDisconnectedEvent struct {
	Type string               `json:"type"`
	ID   domain.ParticipantID `json:"id"`
}

type StreamEvent struct {
	Type   string               `json:"type"`
	From   domain.ParticipantID `json:"from"`
	Stream domain.StreamID      `json:"stream"`
}

// RelayEvent wraps a negotiation message on its way to the other room
// members. Payload is opaque to the server.
type RelayEvent struct {
	Type    string               `json:"type"`
	From    domain.ParticipantID `json:"from"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

func NewUserConnected(id domain.ParticipantID) UserConnectedEvent {
	return UserConnectedEvent{Type: "user-connected", ID: id}
}

func NewUserDisconnected(id domain.ParticipantID) UserDisconnectedEvent {
	return UserDisconnectedEvent{Type: "user-disconnected", ID: id}
}

func NewStreamStopped(from domain.ParticipantID, stream domain.StreamID) StreamEvent {
	return StreamEvent{Type: "stream-stopped", From: from, Stream: stream}
}
