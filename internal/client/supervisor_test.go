package client

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/peercast/internal/domain"
)

func newTestSupervisor(t *testing.T, role domain.Role) (*Supervisor, *Coordinator, *fakeEngine, *fakeSignaler) {
	t.Helper()
	engine := &fakeEngine{}
	sig := &fakeSignaler{}
	coord := NewCoordinator(CoordinatorOpts{
		Remote:   "peer-1",
		Role:     role,
		Engine:   engine,
		Signaler: sig,
	})
	sup := NewSupervisor(coord, role == domain.RoleHost, SupervisorOpts{
		CheckingTimeout: 30 * time.Millisecond,
		RetryBase:       20 * time.Millisecond,
		RetryCap:        50 * time.Millisecond,
	})
	t.Cleanup(sup.Stop)
	return sup, coord, engine, sig
}

func (s *Supervisor) currentBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoff
}

func (s *Supervisor) hasPendingRetry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryPending
}

func TestFailureTriggersSingleRetry(t *testing.T) {
	sup, coord, _, sig := newTestSupervisor(t, domain.RoleHost)
	require.NoError(t, coord.Initiate())
	require.Equal(t, 1, sig.offerCount())
	gen := coord.Generation()

	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)

	// The retry resets the connection and, as initiator, re-offers.
	assert.Eventually(t, func() bool { return sig.offerCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Greater(t, coord.Generation(), gen)

	// No second attempt without a fresh failure.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 2, sig.offerCount())
}

func TestDuplicateFailuresCoalesce(t *testing.T) {
	sup, coord, _, sig := newTestSupervisor(t, domain.RoleHost)
	require.NoError(t, coord.Initiate())

	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)
	sup.OnConnectionState(webrtc.ICEConnectionStateDisconnected)
	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)

	assert.Eventually(t, func() bool { return sig.offerCount() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 2, sig.offerCount())
}

func TestCheckingTimeoutRetries(t *testing.T) {
	sup, coord, _, sig := newTestSupervisor(t, domain.RoleHost)
	require.NoError(t, coord.Initiate())

	// A checking phase that never completes counts as a failure.
	sup.OnConnectionState(webrtc.ICEConnectionStateChecking)

	assert.Eventually(t, func() bool { return sig.offerCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestConnectedCancelsCheckTimerAndPendingRetry(t *testing.T) {
	sup, coord, _, sig := newTestSupervisor(t, domain.RoleHost)
	require.NoError(t, coord.Initiate())

	sup.OnConnectionState(webrtc.ICEConnectionStateChecking)
	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)
	require.True(t, sup.hasPendingRetry())

	sup.OnConnectionState(webrtc.ICEConnectionStateConnected)

	assert.False(t, sup.hasPendingRetry())
	assert.Equal(t, sup.opts.RetryBase, sup.currentBackoff())
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, sig.offerCount())
}

func TestBackoffDoublesToCapAndResets(t *testing.T) {
	sup, coord, _, sig := newTestSupervisor(t, domain.RoleHost)
	require.NoError(t, coord.Initiate())

	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)
	assert.Equal(t, 40*time.Millisecond, sup.currentBackoff())
	assert.Eventually(t, func() bool { return sig.offerCount() == 2 }, time.Second, 5*time.Millisecond)

	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)
	assert.Equal(t, 50*time.Millisecond, sup.currentBackoff())
	assert.Eventually(t, func() bool { return sig.offerCount() == 3 }, time.Second, 5*time.Millisecond)

	// Capped: it never grows past the limit.
	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)
	assert.Equal(t, 50*time.Millisecond, sup.currentBackoff())
	assert.Eventually(t, func() bool { return sig.offerCount() == 4 }, time.Second, 5*time.Millisecond)

	// A successful connection snaps the delay back to the base.
	sup.OnConnectionState(webrtc.ICEConnectionStateConnected)
	assert.Equal(t, sup.opts.RetryBase, sup.currentBackoff())
}

func TestViewerRetryResetsWithoutOffering(t *testing.T) {
	sup, coord, engine, sig := newTestSupervisor(t, domain.RoleViewer)

	// Viewer side has a live connection from an earlier offer exchange.
	require.NoError(t, coord.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote"}))
	require.Equal(t, 1, engine.count())
	gen := coord.Generation()

	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)

	// The reset tears the connection down and waits for the host's new offer.
	assert.Eventually(t, func() bool { return coord.Generation() > gen }, time.Second, 5*time.Millisecond)
	assert.Zero(t, sig.offerCount())
}

func TestStopCancelsPendingRetry(t *testing.T) {
	sup, coord, _, sig := newTestSupervisor(t, domain.RoleHost)
	require.NoError(t, coord.Initiate())

	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)
	sup.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, sig.offerCount())

	// A stopped supervisor ignores further failures.
	sup.OnConnectionState(webrtc.ICEConnectionStateFailed)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, sig.offerCount())
}
