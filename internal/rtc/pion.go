package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// PionEngine backs the Conn interface with pion/webrtc.
type PionEngine struct{}

func NewPionEngine() *PionEngine { return &PionEngine{} }

func (PionEngine) NewConnection(servers []ICEServer) (Conn, error) {
	cfg := webrtc.Configuration{}
	for _, s := range servers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &pionConn{pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
		if c.onState != nil {
			c.onState(s)
		}
	})
	pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		log.Debug().Str("module", "rtc").Str("signaling_state", s.String()).Msg("signaling state")
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("remote track")
		if c.onTrack != nil {
			c.onTrack(track)
		}
	})

	return c, nil
}

type pionConn struct {
	pc      *webrtc.PeerConnection
	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.ICEConnectionState)
	onTrack func(*webrtc.TrackRemote)
}

func (c *pionConn) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *pionConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *pionConn) AddTrack(track webrtc.TrackLocal) error {
	_, err := c.pc.AddTrack(track)
	return err
}

func (c *pionConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *pionConn) OnConnectionStateChange(fn func(webrtc.ICEConnectionState)) { c.onState = fn }

func (c *pionConn) OnTrack(fn func(*webrtc.TrackRemote)) { c.onTrack = fn }

func (c *pionConn) Close() error {
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
		return err
	}
	return nil
}
