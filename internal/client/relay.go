package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkoval/peercast/internal/domain"
)

// Message is the wire envelope both directions of the relay socket use.
// Only the fields relevant to a given type are ever set.
type Message struct {
	Type    string               `json:"type"`
	ID      domain.ParticipantID `json:"id,omitempty"`
	From    domain.ParticipantID `json:"from,omitempty"`
	Room    string               `json:"room,omitempty"`
	Stream  string               `json:"stream,omitempty"`
	Reason  string               `json:"reason,omitempty"`
	Command string               `json:"command,omitempty"`
	Error   string               `json:"error,omitempty"`
	Report  string               `json:"report,omitempty"`
	Users   []domain.Participant `json:"users,omitempty"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

// relayLink is what the session needs from the relay connection; split out
// so session logic is testable without a socket.
type relayLink interface {
	JoinRoom(room domain.RoomID) error
	LeaveRoom() error
	SendOffer(room domain.RoomID, desc webrtc.SessionDescription) error
	SendAnswer(room domain.RoomID, desc webrtc.SessionDescription) error
	SendCandidate(room domain.RoomID, ci webrtc.ICECandidateInit) error
	StreamStarted(room domain.RoomID, stream domain.StreamID) error
	StreamStopped(room domain.RoomID, stream domain.StreamID) error
	Close() error
}

// RelayClient is the WebSocket connection to the signaling relay.
type RelayClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
}

// DialRelay connects to the relay's signaling endpoint.
func DialRelay(ctx context.Context, url string) (*RelayClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	log.Info().Str("module", "client.relay").Str("url", url).Msg("connected to relay")
	return &RelayClient{conn: conn}, nil
}

// Run reads relay messages and hands them to sink until the connection
// drops or ctx is cancelled. Relay connection loss is not retried here; it
// is surfaced to the caller.
func (rc *RelayClient) Run(ctx context.Context, sink func(Message)) error {
	defer rc.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			log.Error().Err(err).Str("module", "client.relay").Msg("relay read error")
			return err
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("module", "client.relay").Msg("bad relay json")
			continue
		}
		sink(msg)
	}
}

func (rc *RelayClient) send(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	if err := rc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return rc.conn.WriteMessage(websocket.TextMessage, b)
}

func (rc *RelayClient) JoinRoom(room domain.RoomID) error {
	return rc.send(Message{Type: "join-room", Room: string(room)})
}

func (rc *RelayClient) LeaveRoom() error {
	return rc.send(Message{Type: "leave-room"})
}

func (rc *RelayClient) SendOffer(room domain.RoomID, desc webrtc.SessionDescription) error {
	return rc.sendWithPayload("offer", room, desc)
}

func (rc *RelayClient) SendAnswer(room domain.RoomID, desc webrtc.SessionDescription) error {
	return rc.sendWithPayload("answer", room, desc)
}

func (rc *RelayClient) SendCandidate(room domain.RoomID, ci webrtc.ICECandidateInit) error {
	return rc.sendWithPayload("ice-candidate", room, ci)
}

func (rc *RelayClient) sendWithPayload(typ string, room domain.RoomID, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rc.send(Message{Type: typ, Room: string(room), Payload: payload})
}

func (rc *RelayClient) StreamStarted(room domain.RoomID, stream domain.StreamID) error {
	return rc.send(Message{Type: "stream-started", Room: string(room), Stream: string(stream)})
}

func (rc *RelayClient) StreamStopped(room domain.RoomID, stream domain.StreamID) error {
	return rc.send(Message{Type: "stream-stopped", Room: string(room), Stream: string(stream)})
}

func (rc *RelayClient) ListUsers(room domain.RoomID) error {
	return rc.send(Message{Type: "list-users", Room: string(room)})
}

func (rc *RelayClient) ConsoleCommand(cmd string) error {
	return rc.send(Message{Type: "console-command", Command: cmd})
}

func (rc *RelayClient) ForceDisconnect() error {
	return rc.send(Message{Type: "force-disconnect"})
}

func (rc *RelayClient) Close() error {
	var err error
	rc.closeOnce.Do(func() {
		err = rc.conn.Close()
	})
	return err
}
