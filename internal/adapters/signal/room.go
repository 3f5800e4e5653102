package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkoval/peercast/internal/domain"
)

func (ctl *SignalWSController) handleJoin(
	pid domain.ParticipantID,
	conn *wsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.Room == "" {
		ctl.sendError(conn, "empty room")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(pid) {
		log.Warn().Str("module", "signal").Str("pid", string(pid)).Msg("join rate limited")
		ctl.sendError(conn, "too many join attempts")
		return
	}

	log.Info().Str("module", "signal").Str("pid", string(pid)).Str("room", p.Room).Msg("join")
	existing := ctl.Reg.Join(domain.RoomID(p.Room), pid, conn)

	ctl.sendJSON(conn, struct {
		Type  string               `json:"type"`
		Room  string               `json:"room"`
		Users []domain.Participant `json:"users"`
	}{"existing-users", p.Room, existing})
}

// handleLeave leaves the current room; the connection stays up.
func (ctl *SignalWSController) handleLeave(
	pid domain.ParticipantID,
	conn *wsSignalConn,
) {
	log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("leave")
	ctl.Reg.Leave(pid)
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{"left"})
}

func (ctl *SignalWSController) handleListUsers(
	pid domain.ParticipantID,
	conn *wsSignalConn,
	data []byte,
) {
	type listPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p listPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad list-users payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	roomID := domain.RoomID(p.Room)
	if p.Room == "" {
		// Default to the sender's own room, if any.
		if id, ok := ctl.Reg.RoomOf(pid); ok {
			roomID = id
		}
	}
	ctl.sendJSON(conn, struct {
		Type  string               `json:"type"`
		Room  string               `json:"room"`
		Users []domain.Participant `json:"users"`
	}{"list-users", string(roomID), ctl.Reg.ListMembers(roomID)})
}
