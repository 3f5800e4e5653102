package client

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkoval/peercast/internal/domain"
	"github.com/dkoval/peercast/internal/rtc"
)

// fakeConn mimics the engine's signaling-state rules closely enough for the
// coordinator: descriptions move the state the way a browser stack would,
// and candidates are rejected until a remote description lands.
type fakeConn struct {
	mu         sync.Mutex
	state      webrtc.SignalingState
	remoteSet  bool
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	closed     bool

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.ICEConnectionState)
	onTrack func(*webrtc.TrackRemote)

	// onSetRemote runs inside SetRemoteDescription, standing in for events
	// that interleave while the call is suspended.
	onSetRemote func()
}

func newFakeConn() *fakeConn {
	return &fakeConn{state: webrtc.SignalingStateStable}
}

func (f *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake-offer"}, nil
}

func (f *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer to answer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 fake-answer"}, nil
}

func (f *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		f.state = webrtc.SignalingStateHaveLocalOffer
	case webrtc.SDPTypeAnswer:
		if f.state != webrtc.SignalingStateHaveRemoteOffer {
			return errors.New("answer without remote offer")
		}
		f.state = webrtc.SignalingStateStable
	}
	return nil
}

func (f *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	hook := f.onSetRemote
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		f.state = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer:
		if f.state != webrtc.SignalingStateHaveLocalOffer {
			return errors.New("answer in wrong state")
		}
		f.state = webrtc.SignalingStateStable
	}
	f.remoteSet = true
	return nil
}

func (f *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.remoteSet {
		return errors.New("remote description not set")
	}
	f.candidates = append(f.candidates, ci)
	return nil
}

func (f *fakeConn) SignalingState() webrtc.SignalingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return webrtc.SignalingStateClosed
	}
	return f.state
}

func (f *fakeConn) AddTrack(track webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, track)
	return nil
}

func (f *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }

func (f *fakeConn) OnConnectionStateChange(fn func(webrtc.ICEConnectionState)) { f.onState = fn }

func (f *fakeConn) OnTrack(fn func(*webrtc.TrackRemote)) { f.onTrack = fn }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) appliedCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), f.candidates...)
}

type fakeEngine struct {
	mu    sync.Mutex
	conns []*fakeConn
	hook  func(*fakeConn)
}

func (e *fakeEngine) NewConnection(_ []rtc.ICEServer) (rtc.Conn, error) {
	c := newFakeConn()
	e.mu.Lock()
	if e.hook != nil {
		e.hook(c)
	}
	e.conns = append(e.conns, c)
	e.mu.Unlock()
	return c, nil
}

func (e *fakeEngine) last() *fakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conns) == 0 {
		return nil
	}
	return e.conns[len(e.conns)-1]
}

func (e *fakeEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

type fakeSignaler struct {
	mu         sync.Mutex
	offers     []webrtc.SessionDescription
	answers    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
}

func (s *fakeSignaler) SendOffer(d webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, d)
	return nil
}

func (s *fakeSignaler) SendAnswer(d webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, d)
	return nil
}

func (s *fakeSignaler) SendCandidate(ci webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, ci)
	return nil
}

func (s *fakeSignaler) offerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers)
}

func (s *fakeSignaler) answerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// fakeLink records relay traffic for session tests.
type fakeLink struct {
	mu     sync.Mutex
	joined []domain.RoomID
	left   int
	closed bool

	offers     []webrtc.SessionDescription
	answers    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	started    []domain.StreamID
	stopped    []domain.StreamID
}

func (l *fakeLink) JoinRoom(room domain.RoomID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.joined = append(l.joined, room)
	return nil
}

func (l *fakeLink) LeaveRoom() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.left++
	return nil
}

func (l *fakeLink) SendOffer(_ domain.RoomID, d webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offers = append(l.offers, d)
	return nil
}

func (l *fakeLink) SendAnswer(_ domain.RoomID, d webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers = append(l.answers, d)
	return nil
}

func (l *fakeLink) SendCandidate(_ domain.RoomID, ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, ci)
	return nil
}

func (l *fakeLink) StreamStarted(_ domain.RoomID, s domain.StreamID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, s)
	return nil
}

func (l *fakeLink) StreamStopped(_ domain.RoomID, s domain.StreamID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = append(l.stopped, s)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
