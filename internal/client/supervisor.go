package client

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	defaultCheckingTimeout = 10 * time.Second
	defaultRetryBase       = 2 * time.Second
	defaultRetryCap        = 30 * time.Second
)

// SupervisorOpts tunes the retry timing; zero values take the defaults.
type SupervisorOpts struct {
	CheckingTimeout time.Duration
	RetryBase       time.Duration
	RetryCap        time.Duration
}

// Supervisor watches a coordinator's connectivity and schedules recovery.
// A failure (failed, disconnected, or a connectivity check that never
// finishes) gets exactly one reset-and-renegotiate attempt; no second
// attempt is queued until another failure shows up. The delay doubles on
// consecutive failures up to a cap and snaps back to the base once the
// connection makes it to connected; retries never stop for good.
type Supervisor struct {
	coord     *Coordinator
	initiator bool
	opts      SupervisorOpts

	mu           sync.Mutex
	backoff      time.Duration
	retryPending bool
	checkTimer   *time.Timer
	retryTimer   *time.Timer
	stopped      bool
}

func NewSupervisor(coord *Coordinator, initiator bool, opts SupervisorOpts) *Supervisor {
	if opts.CheckingTimeout <= 0 {
		opts.CheckingTimeout = defaultCheckingTimeout
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.RetryCap <= 0 {
		opts.RetryCap = defaultRetryCap
	}
	return &Supervisor{
		coord:     coord,
		initiator: initiator,
		opts:      opts,
		backoff:   opts.RetryBase,
	}
}

// OnConnectionState is the coordinator's connectivity callback.
func (s *Supervisor) OnConnectionState(st webrtc.ICEConnectionState) {
	switch st {
	case webrtc.ICEConnectionStateChecking:
		s.armCheckTimer()
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		s.onConnected()
	case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed:
		log.Warn().Str("module", "client").Str("remote", string(s.coord.Remote())).Str("state", st.String()).Msg("connectivity lost")
		s.scheduleRetry()
	case webrtc.ICEConnectionStateClosed:
		s.disarmCheckTimer()
	}
}

func (s *Supervisor) armCheckTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.checkTimer != nil {
		return
	}
	s.checkTimer = time.AfterFunc(s.opts.CheckingTimeout, func() {
		s.mu.Lock()
		s.checkTimer = nil
		s.mu.Unlock()
		log.Warn().Str("module", "client").Str("remote", string(s.coord.Remote())).Msg("connectivity check timed out")
		s.scheduleRetry()
	})
}

func (s *Supervisor) disarmCheckTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}
}

func (s *Supervisor) onConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.retryPending = false
	s.backoff = s.opts.RetryBase
}

func (s *Supervisor) scheduleRetry() {
	s.mu.Lock()
	if s.stopped || s.retryPending {
		s.mu.Unlock()
		return
	}
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}
	s.retryPending = true
	delay := s.backoff
	s.backoff *= 2
	if s.backoff > s.opts.RetryCap {
		s.backoff = s.opts.RetryCap
	}
	s.retryTimer = time.AfterFunc(delay, s.retry)
	s.mu.Unlock()

	log.Info().Str("module", "client").Str("remote", string(s.coord.Remote())).Dur("delay", delay).Msg("reconnect scheduled")
}

func (s *Supervisor) retry() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.retryPending = false
	s.retryTimer = nil
	s.mu.Unlock()

	if err := s.coord.Reset(); err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(s.coord.Remote())).Msg("reconnect reset")
		return
	}
	if s.initiator {
		if err := s.coord.Initiate(); err != nil {
			log.Error().Err(err).Str("module", "client").Str("remote", string(s.coord.Remote())).Msg("reconnect offer")
		}
	}
}

// Stop disables the supervisor; pending timers are cancelled.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.retryPending = false
}
