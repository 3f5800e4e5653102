package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkoval/peercast/internal/app"
	"github.com/dkoval/peercast/internal/domain"
)

// handleRelay forwards offer/answer/ice-candidate to the rest of the room.
// The payload is never inspected; SDP and candidate blobs pass through as
// raw bytes.
func (ctl *SignalWSController) handleRelay(
	pid domain.ParticipantID,
	typ string,
	data []byte,
) {
	type relayPayload struct {
		Type    string          `json:"type"`
		Room    string          `json:"room"`
		Payload json.RawMessage `json:"payload"`
	}
	var p relayPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("bad relay payload")
		return
	}
	room := domain.RoomID(p.Room)
	if p.Room == "" {
		id, ok := ctl.Reg.RoomOf(pid)
		if !ok {
			return
		}
		room = id
	}

	log.Debug().Str("module", "signal").Str("type", typ).Str("pid", string(pid)).Str("room", string(room)).Msg("relay")
	ctl.Reg.Relay(room, pid, app.RelayEvent{
		Type:    typ,
		From:    pid,
		Payload: p.Payload,
	})
}

// handleStreamEvent updates the announced-stream set and then relays the
// event like any other negotiation message.
func (ctl *SignalWSController) handleStreamEvent(
	pid domain.ParticipantID,
	typ string,
	data []byte,
) {
	type streamPayload struct {
		Type   string `json:"type"`
		Room   string `json:"room"`
		Stream string `json:"stream"`
	}
	var p streamPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("bad stream payload")
		return
	}
	if p.Stream == "" {
		return
	}
	stream := domain.StreamID(p.Stream)
	if typ == "stream-started" {
		ctl.Reg.AnnounceStream(pid, stream)
	} else {
		ctl.Reg.StopStream(pid, stream)
	}

	room := domain.RoomID(p.Room)
	if p.Room == "" {
		id, ok := ctl.Reg.RoomOf(pid)
		if !ok {
			return
		}
		room = id
	}
	ctl.Reg.Relay(room, pid, app.StreamEvent{Type: typ, From: pid, Stream: stream})
}
