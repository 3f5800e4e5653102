package signal

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkoval/peercast/internal/domain"
)

// handleConsoleCommand serves the operator console over the socket:
// "people" reports rooms and users, "clear" kicks everyone.
func (ctl *SignalWSController) handleConsoleCommand(
	pid domain.ParticipantID,
	conn *wsSignalConn,
	data []byte,
) {
	type commandPayload struct {
		Type    string `json:"type"`
		Command string `json:"command"`
	}
	var p commandPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad console payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("pid", string(pid)).Str("command", p.Command).Msg("console command")

	var report string
	switch p.Command {
	case "people":
		report = ctl.Reg.Report()
	case "clear":
		rooms, users := ctl.Reg.Clear("Server clearing all rooms")
		report = fmt.Sprintf("Cleared %d rooms and disconnected %d users", rooms, users)
	default:
		ctl.sendError(conn, "unknown command")
		return
	}

	ctl.sendJSON(conn, struct {
		Type   string `json:"type"`
		Report string `json:"report"`
	}{"console-response", report})
}

// handleForceDisconnect lets a client ask to be dropped server-side.
func (ctl *SignalWSController) handleForceDisconnect(
	pid domain.ParticipantID,
	conn *wsSignalConn,
) {
	log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("client requested disconnect")
	ctl.Reg.Leave(pid)
	conn.Close()
}

func (ctl *SignalWSController) handlePing(
	conn *wsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}
