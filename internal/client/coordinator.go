package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkoval/peercast/internal/domain"
	"github.com/dkoval/peercast/internal/rtc"
)

var ErrCoordinatorClosed = errors.New("coordinator closed")

// Signaler carries negotiation messages to the remote side through the relay.
type Signaler interface {
	SendOffer(desc webrtc.SessionDescription) error
	SendAnswer(desc webrtc.SessionDescription) error
	SendCandidate(candidate webrtc.ICECandidateInit) error
}

// Coordinator drives one peer connection through offer/answer/ICE exchange.
// One coordinator per remote participant; a closed coordinator is done for
// good, recovery means building a fresh one.
//
// Engine calls suspend, and signaling events interleave freely while one is
// pending. Every suspending call therefore brackets itself with the
// generation counter: captured before, re-checked after. A reset bumps the
// generation, which turns every in-flight completion for the old connection
// into a no-op.
type Coordinator struct {
	remote  domain.ParticipantID
	role    domain.Role
	engine  rtc.Engine
	servers []rtc.ICEServer
	sig     Signaler
	capture rtc.Capture
	onState func(webrtc.ICEConnectionState)
	onTrack func(*webrtc.TrackRemote)

	mu        sync.Mutex
	conn      rtc.Conn
	gen       uint64
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool
}

type CoordinatorOpts struct {
	Remote   domain.ParticipantID
	Role     domain.Role
	Engine   rtc.Engine
	Servers  []rtc.ICEServer
	Signaler Signaler
	// Capture is the local media to offer; nil for a receive-only peer.
	Capture rtc.Capture
	// OnConnectionState receives connectivity transitions for the current
	// generation only; stale callbacks are filtered out before this fires.
	OnConnectionState func(webrtc.ICEConnectionState)
	OnTrack           func(*webrtc.TrackRemote)
}

func NewCoordinator(o CoordinatorOpts) *Coordinator {
	return &Coordinator{
		remote:  o.Remote,
		role:    o.Role,
		engine:  o.Engine,
		servers: o.Servers,
		sig:     o.Signaler,
		capture: o.Capture,
		onState: o.OnConnectionState,
		onTrack: o.OnTrack,
	}
}

func (c *Coordinator) Remote() domain.ParticipantID { return c.remote }

// Generation increments on every reset; exposed for status reporting.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// State reports the underlying signaling state. With no connection yet the
// coordinator is idle, which gates the same operations as stable.
func (c *Coordinator) State() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return webrtc.SignalingStateClosed
	}
	if c.conn == nil {
		return webrtc.SignalingStateStable
	}
	return c.conn.SignalingState()
}

func (c *Coordinator) PendingCandidates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.gen == gen
}

// resetLocked discards the connection and builds a replacement with the
// local tracks re-attached. Queued candidates belong to the old remote
// description and die with it.
func (c *Coordinator) resetLocked() error {
	c.gen++
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	conn, err := c.engine.NewConnection(c.servers)
	if err != nil {
		return fmt.Errorf("new connection: %w", err)
	}

	gen := c.gen
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if !c.current(gen) {
			return
		}
		if err := c.sig.SendCandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "client").Str("remote", string(c.remote)).Msg("send candidate")
		}
	})
	conn.OnConnectionStateChange(func(s webrtc.ICEConnectionState) {
		if !c.current(gen) {
			return
		}
		if c.onState != nil {
			c.onState(s)
		}
	})
	if c.onTrack != nil {
		conn.OnTrack(c.onTrack)
	}
	if c.capture != nil {
		for _, t := range c.capture.Tracks() {
			if err := conn.AddTrack(t); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("add local track")
			}
		}
	}

	c.conn = conn
	c.remoteSet = false
	c.pending = nil
	log.Info().Str("module", "client").Str("remote", string(c.remote)).Uint64("gen", gen).Msg("connection reset")
	return nil
}

// Reset discards the current connection and starts a fresh generation.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCoordinatorClosed
	}
	return c.resetLocked()
}

// Initiate produces an offer and sends it out. Only an idle or stable
// session may initiate; anything else is torn down first and the offer goes
// out on the fresh connection.
func (c *Coordinator) Initiate() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	if c.conn == nil || c.conn.SignalingState() != webrtc.SignalingStateStable {
		if err := c.resetLocked(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	gen, conn := c.gen, c.conn
	c.mu.Unlock()

	offer, err := conn.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := conn.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	if !c.current(gen) {
		// A reset overtook us; the offer belongs to a dead generation.
		return nil
	}
	log.Info().Str("module", "client").Str("remote", string(c.remote)).Msg("sending offer")
	return c.sig.SendOffer(offer)
}

// Renegotiate restarts negotiation after a local media change. Same gating
// as Initiate.
func (c *Coordinator) Renegotiate() error { return c.Initiate() }

// HandleOffer answers a remote offer. The connection is rebuilt
// unconditionally first: whatever state the previous negotiation left
// behind, an incoming offer starts from a clean slate. That also means an
// offer of our own still in flight is silently abandoned: last offer
// received wins.
func (c *Coordinator) HandleOffer(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	if err := c.resetLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	gen, conn := c.gen, c.conn
	c.mu.Unlock()

	if err := conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	if !c.acceptRemote(gen, conn) {
		return nil
	}

	if st := conn.SignalingState(); st != webrtc.SignalingStateHaveRemoteOffer {
		// Something interleaved between applying the offer and now; leave
		// the session as-is, the caller resets if it wants to recover.
		log.Warn().Str("module", "client").Str("remote", string(c.remote)).Str("state", st.String()).Msg("wrong signaling state for answering")
		return nil
	}
	answer, err := conn.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := conn.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	if !c.current(gen) {
		return nil
	}
	log.Info().Str("module", "client").Str("remote", string(c.remote)).Msg("sending answer")
	return c.sig.SendAnswer(answer)
}

// HandleAnswer applies a remote answer if we are actually waiting for one.
// Otherwise the session restarts, and an initiator re-offers immediately.
func (c *Coordinator) HandleAnswer(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	conn := c.conn
	if conn != nil && conn.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		gen := c.gen
		c.mu.Unlock()

		if err := conn.SetRemoteDescription(desc); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		c.acceptRemote(gen, conn)
		return nil
	}

	log.Warn().Str("module", "client").Str("remote", string(c.remote)).Msg("answer in wrong state, resetting")
	err := c.resetLocked()
	role := c.role
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if role == domain.RoleHost {
		return c.Initiate()
	}
	return nil
}

// HandleCandidate applies a remote ICE candidate, queueing it when the
// remote description has not landed yet. With no connection at all the
// candidate has nothing to attach to and is dropped.
func (c *Coordinator) HandleCandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		log.Debug().Str("module", "client").Str("remote", string(c.remote)).Msg("candidate dropped, no connection")
		return nil
	}
	if !c.remoteSet {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()
	return conn.AddICECandidate(ci)
}

// acceptRemote marks the remote description as set and flushes the early
// candidate queue in receipt order. Returns false when the generation went
// stale, in which case nothing is touched.
func (c *Coordinator) acceptRemote(gen uint64, conn rtc.Conn) bool {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ci := range pending {
		if err := conn.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "client").Str("remote", string(c.remote)).Msg("flush queued candidate")
		}
	}
	return true
}

// Close tears the connection down synchronously. In-flight operations see
// the bumped generation and go inert on completion.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	conn := c.conn
	c.conn = nil
	c.pending = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "client").Str("remote", string(c.remote)).Msg("coordinator closed")
}
