package app

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkoval/peercast/internal/domain"
)

// SignalConn is a participant's signaling transport endpoint.
// Owned by the adapter; the adapter must close it.
type SignalConn interface {
	TrySend(v any) error
	// Kick delivers a force-disconnect with the reason and drops the
	// transport connection.
	Kick(reason string)
}

type member struct {
	id      domain.ParticipantID
	conn    SignalConn
	streams []domain.StreamID
}

type room struct {
	id      domain.RoomID
	members []*member
}

func (r *room) find(id domain.ParticipantID) (int, *member) {
	for i, m := range r.members {
		if m.id == id {
			return i, m
		}
	}
	return -1, nil
}

// Registry is the process-wide room store. Created at startup and handed to
// the signaling adapter; all mutation goes through its mutex, so concurrent
// connection handlers never race on membership.
type Registry struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*room
	byPID map[domain.ParticipantID]*room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomID]*room),
		byPID: make(map[domain.ParticipantID]*room),
	}
}

// Join inserts the participant into the room, creating the room on first
// join. A participant already in another room is implicitly removed from it
// first, with the full leave fan-out. Returns the members that were already
// present, so the joiner can start negotiating with each; everyone else gets
// a user-connected event.
func (reg *Registry) Join(roomID domain.RoomID, id domain.ParticipantID, conn SignalConn) []domain.Participant {
	reg.mu.Lock()
	if old, ok := reg.byPID[id]; ok {
		reg.leaveLocked(old, id)
	}

	r, ok := reg.rooms[roomID]
	if !ok {
		r = &room{id: roomID}
		reg.rooms[roomID] = r
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room created")
	}

	existing := make([]domain.Participant, 0, len(r.members))
	targets := make([]SignalConn, 0, len(r.members))
	for _, m := range r.members {
		existing = append(existing, domain.Participant{ID: m.id, Streams: append([]domain.StreamID(nil), m.streams...)})
		targets = append(targets, m.conn)
	}

	r.members = append(r.members, &member{id: id, conn: conn})
	reg.byPID[id] = r
	reg.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("pid", string(id)).Msg("join")
	ev := NewUserConnected(id)
	for _, t := range targets {
		_ = t.TrySend(ev)
	}
	return existing
}

// Leave removes the participant from its room, if any. Stream-stopped events
// for everything it announced go out before the user-disconnected event; the
// room is deleted the moment it empties.
func (reg *Registry) Leave(id domain.ParticipantID) {
	reg.mu.Lock()
	r, ok := reg.byPID[id]
	if !ok {
		reg.mu.Unlock()
		return
	}
	reg.leaveLocked(r, id)
	reg.mu.Unlock()
}

// leaveLocked sends through live conns while holding the registry mutex;
// TrySend never blocks, so this cannot deadlock against the write pumps.
func (reg *Registry) leaveLocked(r *room, id domain.ParticipantID) {
	i, m := r.find(id)
	if m == nil {
		return
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	delete(reg.byPID, id)

	for _, s := range m.streams {
		ev := NewStreamStopped(id, s)
		for _, other := range r.members {
			_ = other.conn.TrySend(ev)
		}
	}
	ev := NewUserDisconnected(id)
	for _, other := range r.members {
		_ = other.conn.TrySend(ev)
	}

	if len(r.members) == 0 {
		delete(reg.rooms, r.id)
		log.Info().Str("module", "app.registry").Str("room", string(r.id)).Msg("room deleted")
	}
	log.Info().Str("module", "app.registry").Str("room", string(r.id)).Str("pid", string(id)).Msg("leave")
}

// Relay fans a negotiation message out to every other member of the room,
// using a point-in-time snapshot of membership. Unknown room: silent no-op,
// late messages after teardown are simply dropped.
func (reg *Registry) Relay(roomID domain.RoomID, sender domain.ParticipantID, ev any) {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	if !ok {
		reg.mu.Unlock()
		return
	}
	targets := make([]SignalConn, 0, len(r.members))
	for _, m := range r.members {
		if m.id != sender {
			targets = append(targets, m.conn)
		}
	}
	reg.mu.Unlock()

	for _, t := range targets {
		_ = t.TrySend(ev)
	}
}

// AnnounceStream records a stream the participant started publishing.
func (reg *Registry) AnnounceStream(id domain.ParticipantID, stream domain.StreamID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.byPID[id]
	if !ok {
		return
	}
	if _, m := r.find(id); m != nil {
		for _, s := range m.streams {
			if s == stream {
				return
			}
		}
		m.streams = append(m.streams, stream)
	}
}

// StopStream drops a previously announced stream.
func (reg *Registry) StopStream(id domain.ParticipantID, stream domain.StreamID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.byPID[id]
	if !ok {
		return
	}
	if _, m := r.find(id); m != nil {
		for i, s := range m.streams {
			if s == stream {
				m.streams = append(m.streams[:i], m.streams[i+1:]...)
				return
			}
		}
	}
}

// ListMembers returns the room's members with their announced streams.
// Unknown room yields an empty list, never an error.
func (reg *Registry) ListMembers(roomID domain.RoomID) []domain.Participant {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[roomID]
	if !ok {
		return []domain.Participant{}
	}
	out := make([]domain.Participant, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, domain.Participant{ID: m.id, Streams: append([]domain.StreamID(nil), m.streams...)})
	}
	return out
}

// RoomOf reports which room the participant is currently in.
func (reg *Registry) RoomOf(id domain.ParticipantID) (domain.RoomID, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.byPID[id]; ok {
		return r.id, true
	}
	return "", false
}

// Clear forcibly disconnects every participant in every room and empties the
// registry. Returns counts for the operator report.
func (reg *Registry) Clear(reason string) (rooms, participants int) {
	reg.mu.Lock()
	var conns []SignalConn
	rooms = len(reg.rooms)
	for _, r := range reg.rooms {
		for _, m := range r.members {
			conns = append(conns, m.conn)
		}
	}
	participants = len(conns)
	reg.rooms = make(map[domain.RoomID]*room)
	reg.byPID = make(map[domain.ParticipantID]*room)
	reg.mu.Unlock()

	for _, c := range conns {
		c.Kick(reason)
	}
	log.Info().Str("module", "app.registry").Int("rooms", rooms).Int("participants", participants).Msg("registry cleared")
	return rooms, participants
}

// Report renders the operator "people" summary.
func (reg *Registry) Report() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var b strings.Builder
	b.WriteString("\n=== Current Rooms and Users ===\n")
	if len(reg.rooms) == 0 {
		b.WriteString("No active rooms")
		return b.String()
	}
	total := 0
	for id, r := range reg.rooms {
		fmt.Fprintf(&b, "\nRoom %s:\n", id)
		for _, m := range r.members {
			fmt.Fprintf(&b, "  %s (streams: %d)\n", m.id, len(m.streams))
		}
		fmt.Fprintf(&b, "Total users in room: %d\n", len(r.members))
		total += len(r.members)
	}
	fmt.Fprintf(&b, "\nTotal rooms: %d\n", len(reg.rooms))
	fmt.Fprintf(&b, "Total users: %d", total)
	return b.String()
}
