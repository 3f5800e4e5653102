package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkoval/peercast/internal/domain"
	"github.com/dkoval/peercast/internal/rtc"
)

// Session is the top-level client orchestration: it holds room membership,
// owns the shared local capture, and fans signaling out to one coordinator
// per remote participant.
type Session struct {
	role    domain.Role
	engine  rtc.Engine
	servers []rtc.ICEServer
	link    relayLink
	supOpts SupervisorOpts
	onForce func(reason string)

	mu      sync.Mutex
	id      domain.ParticipantID
	room    domain.RoomID
	capture rtc.Capture
	peers   map[domain.ParticipantID]*peerLink
	closed  bool
}

type peerLink struct {
	coord *Coordinator
	sup   *Supervisor
}

type SessionOpts struct {
	// Room selects the role: a join request that names a room is a viewer;
	// without one we are the host and mint a room id on Share.
	Room    domain.RoomID
	Engine  rtc.Engine
	Servers []rtc.ICEServer
	// Capture is required for the host role before streaming; device
	// failure is fatal there and is the caller's problem to surface.
	Capture    rtc.Capture
	Supervisor SupervisorOpts
	// OnForceDisconnect fires after an administrative disconnect has torn
	// the session down, with the server's reason.
	OnForceDisconnect func(reason string)
}

func NewSession(link relayLink, opts SessionOpts) *Session {
	role := domain.RoleHost
	if opts.Room != "" {
		role = domain.RoleViewer
	}
	return &Session{
		role:    role,
		engine:  opts.Engine,
		servers: opts.Servers,
		link:    link,
		supOpts: opts.Supervisor,
		onForce: opts.OnForceDisconnect,
		room:    opts.Room,
		capture: opts.Capture,
		peers:   make(map[domain.ParticipantID]*peerLink),
	}
}

func (s *Session) Role() domain.Role { return s.role }

func (s *Session) Room() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Join enters the configured room; viewer path.
func (s *Session) Join() error {
	if s.role != domain.RoleViewer {
		return fmt.Errorf("join is the viewer path, host shares instead")
	}
	return s.link.JoinRoom(s.Room())
}

// Share mints a room, joins it, and announces the capture's stream. The
// returned id goes into the URL the host hands out.
func (s *Session) Share() (domain.RoomID, error) {
	if s.role != domain.RoleHost {
		return "", fmt.Errorf("only hosts share")
	}
	s.mu.Lock()
	if s.capture == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("no local capture")
	}
	room := domain.NewRoomID()
	s.room = room
	stream := domain.StreamID(s.capture.StreamID())
	s.mu.Unlock()

	if err := s.link.JoinRoom(room); err != nil {
		return "", err
	}
	if err := s.link.StreamStarted(room, stream); err != nil {
		return "", err
	}
	log.Info().Str("module", "client.session").Str("room", string(room)).Msg("sharing")
	return room, nil
}

// Handle dispatches one relay message. The relay read loop is the only
// caller, so messages from one sender arrive here in relay order.
func (s *Session) Handle(msg Message) {
	switch msg.Type {
	case "connected":
		s.mu.Lock()
		s.id = msg.ID
		s.mu.Unlock()
		log.Info().Str("module", "client.session").Str("id", string(msg.ID)).Msg("relay assigned id")
	case "existing-users":
		for _, u := range msg.Users {
			s.onPeerAppeared(u.ID)
		}
	case "user-connected":
		s.onPeerAppeared(msg.ID)
	case "user-disconnected":
		s.dropPeer(msg.ID)
	case "offer":
		s.onOffer(msg)
	case "answer":
		s.onAnswer(msg)
	case "ice-candidate":
		s.onCandidate(msg)
	case "stream-started", "stream-stopped":
		log.Info().Str("module", "client.session").Str("type", msg.Type).Str("from", string(msg.From)).Str("stream", msg.Stream).Msg("remote stream event")
	case "force-disconnect":
		s.teardown()
		log.Warn().Str("module", "client.session").Str("reason", msg.Reason).Msg("disconnected by server")
		if s.onForce != nil {
			s.onForce(msg.Reason)
		}
	case "error":
		log.Warn().Str("module", "client.session").Str("error", msg.Error).Msg("relay error")
	case "console-response":
		log.Info().Str("module", "client.session").Msg(msg.Report)
	case "left", "pong", "list-users":
	default:
		log.Warn().Str("module", "client.session").Str("type", msg.Type).Msg("unknown relay message")
	}
}

// onPeerAppeared builds the coordinator for a remote participant; the host
// immediately offers.
func (s *Session) onPeerAppeared(id domain.ParticipantID) {
	if id == "" {
		return
	}
	p := s.ensurePeer(id)
	if p == nil {
		return
	}
	if s.role == domain.RoleHost {
		if err := p.coord.Initiate(); err != nil {
			log.Error().Err(err).Str("module", "client.session").Str("remote", string(id)).Msg("initiate")
		}
	}
}

// ensurePeer returns the coordinator for the remote id, creating it on
// first sight. Exactly one negotiation session exists per remote at a time.
func (s *Session) ensurePeer(id domain.ParticipantID) *peerLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if p, ok := s.peers[id]; ok {
		return p
	}

	p := &peerLink{}
	coord := NewCoordinator(CoordinatorOpts{
		Remote:   id,
		Role:     s.role,
		Engine:   s.engine,
		Servers:  s.servers,
		Signaler: peerSignaler{link: s.link, session: s},
		Capture:  s.capture,
		OnConnectionState: func(st webrtc.ICEConnectionState) {
			if p.sup != nil {
				p.sup.OnConnectionState(st)
			}
		},
	})
	p.coord = coord
	p.sup = NewSupervisor(coord, s.role == domain.RoleHost, s.supOpts)
	s.peers[id] = p
	log.Info().Str("module", "client.session").Str("remote", string(id)).Msg("peer added")
	return p
}

func (s *Session) dropPeer(id domain.ParticipantID) {
	s.mu.Lock()
	p, ok := s.peers[id]
	delete(s.peers, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	p.sup.Stop()
	p.coord.Close()
	log.Info().Str("module", "client.session").Str("remote", string(id)).Msg("peer removed")
}

func (s *Session) onOffer(msg Message) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(msg.Payload, &desc); err != nil {
		log.Error().Err(err).Str("module", "client.session").Msg("bad offer payload")
		return
	}
	p := s.ensurePeer(msg.From)
	if p == nil {
		return
	}
	if err := p.coord.HandleOffer(desc); err != nil {
		log.Error().Err(err).Str("module", "client.session").Str("remote", string(msg.From)).Msg("handle offer")
	}
}

func (s *Session) onAnswer(msg Message) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(msg.Payload, &desc); err != nil {
		log.Error().Err(err).Str("module", "client.session").Msg("bad answer payload")
		return
	}
	s.mu.Lock()
	p, ok := s.peers[msg.From]
	s.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "client.session").Str("remote", string(msg.From)).Msg("answer from unknown peer")
		return
	}
	if err := p.coord.HandleAnswer(desc); err != nil {
		log.Error().Err(err).Str("module", "client.session").Str("remote", string(msg.From)).Msg("handle answer")
	}
}

func (s *Session) onCandidate(msg Message) {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Payload, &ci); err != nil {
		log.Error().Err(err).Str("module", "client.session").Msg("bad candidate payload")
		return
	}
	s.mu.Lock()
	p, ok := s.peers[msg.From]
	s.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "client.session").Str("remote", string(msg.From)).Msg("candidate from unknown peer, dropped")
		return
	}
	if err := p.coord.HandleCandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "client.session").Str("remote", string(msg.From)).Msg("handle candidate")
	}
}

// StopStreaming stops the shared capture: outgoing tracks die across every
// coordinator at once, and the room is told.
func (s *Session) StopStreaming() error {
	s.mu.Lock()
	capture := s.capture
	room := s.room
	s.mu.Unlock()
	if capture == nil {
		return nil
	}
	capture.Close()
	return s.link.StreamStopped(room, domain.StreamID(capture.StreamID()))
}

// PeerCount is diagnostic.
func (s *Session) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Session) teardown() {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[domain.ParticipantID]*peerLink)
	capture := s.capture
	s.capture = nil
	s.mu.Unlock()

	for _, p := range peers {
		p.sup.Stop()
		p.coord.Close()
	}
	if capture != nil {
		capture.Close()
	}
}

// Close leaves the room and tears everything down, capture included.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.link.LeaveRoom()
	s.teardown()
	_ = s.link.Close()
	log.Info().Str("module", "client.session").Msg("session closed")
}

// peerSignaler routes a coordinator's outbound messages through the relay,
// tagged with the session's current room.
type peerSignaler struct {
	link    relayLink
	session *Session
}

func (p peerSignaler) SendOffer(desc webrtc.SessionDescription) error {
	return p.link.SendOffer(p.session.Room(), desc)
}

func (p peerSignaler) SendAnswer(desc webrtc.SessionDescription) error {
	return p.link.SendAnswer(p.session.Room(), desc)
}

func (p peerSignaler) SendCandidate(ci webrtc.ICECandidateInit) error {
	return p.link.SendCandidate(p.session.Room(), ci)
}
