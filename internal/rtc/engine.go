// Package rtc is the boundary to the real-time media engine. ICE
// connectivity checks, DTLS and SRTP all belong to the engine; the rest of
// the client only sees descriptions, candidates and state change callbacks.
package rtc

import "github.com/pion/webrtc/v4"

// Engine creates peer connections against a set of STUN/TURN endpoints.
type Engine interface {
	NewConnection(servers []ICEServer) (Conn, error)
}

// ICEServer mirrors the configuration surface: relay endpoint URLs with
// optional credentials.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Conn is one peer connection handle. CreateOffer, CreateAnswer, the
// description setters and AddICECandidate all suspend: the engine completes
// them asynchronously and other signaling events may interleave, so callers
// re-check state and generation after each call rather than assume nothing
// moved underneath them.
type Conn interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	AddTrack(track webrtc.TrackLocal) error

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(webrtc.ICEConnectionState))
	OnTrack(fn func(track *webrtc.TrackRemote))

	Close() error
}
