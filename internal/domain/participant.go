package domain

import "github.com/google/uuid"

type (
	ParticipantID string
	StreamID      string
)

// Role is decided client-side from the join request and never enforced by
// the registry.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Participant is one live signaling connection and the streams it has
// announced. Stream order is announcement order.
type Participant struct {
	ID      ParticipantID `json:"id"`
	Streams []StreamID    `json:"streams,omitempty"`
}

// NewParticipantID is assigned by the relay transport, one per connection.
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}
