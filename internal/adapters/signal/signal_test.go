package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoval/peercast/internal/app"
	"github.com/dkoval/peercast/internal/domain"
)

type wireMsg struct {
	Type    string               `json:"type"`
	ID      domain.ParticipantID `json:"id"`
	From    domain.ParticipantID `json:"from"`
	Room    string               `json:"room"`
	Stream  string               `json:"stream"`
	Reason  string               `json:"reason"`
	Error   string               `json:"error"`
	Report  string               `json:"report"`
	Users   []domain.Participant `json:"users"`
	Payload json.RawMessage      `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := NewSignalWSController(app.NewRegistry())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   domain.ParticipantID
}

// dial connects and consumes the initial "connected" greeting.
func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	tc := &testClient{t: t, conn: conn}
	msg := tc.expect("connected")
	require.NotEmpty(t, msg.ID)
	tc.id = msg.ID
	return tc
}

func (tc *testClient) send(v any) {
	tc.t.Helper()
	require.NoError(tc.t, tc.conn.WriteJSON(v))
}

func (tc *testClient) recv() wireMsg {
	tc.t.Helper()
	require.NoError(tc.t, tc.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMsg
	require.NoError(tc.t, tc.conn.ReadJSON(&msg))
	return msg
}

func (tc *testClient) expect(typ string) wireMsg {
	tc.t.Helper()
	msg := tc.recv()
	require.Equal(tc.t, typ, msg.Type)
	return msg
}

func (tc *testClient) join(room string) wireMsg {
	tc.t.Helper()
	tc.send(map[string]string{"type": "join-room", "room": room})
	return tc.expect("existing-users")
}

func TestJoinAndOfferRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv)
	joined := a.join("itest")
	assert.Empty(t, joined.Users)

	b := dial(t, srv)
	joined = b.join("itest")
	require.Len(t, joined.Users, 1)
	assert.Equal(t, a.id, joined.Users[0].ID)

	ev := a.expect("user-connected")
	assert.Equal(t, b.id, ev.ID)

	// The SDP payload passes through untouched and gains the sender id.
	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0 test"}`)
	b.send(map[string]any{"type": "offer", "payload": sdp})
	offer := a.expect("offer")
	assert.Equal(t, b.id, offer.From)
	assert.JSONEq(t, string(sdp), string(offer.Payload))

	a.send(map[string]any{"type": "answer", "payload": json.RawMessage(`{"type":"answer","sdp":"v=0 reply"}`)})
	answer := b.expect("answer")
	assert.Equal(t, a.id, answer.From)
}

func TestStreamEventsAndListUsers(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv)
	a.join("itest")
	b := dial(t, srv)
	b.join("itest")
	a.expect("user-connected")

	b.send(map[string]string{"type": "stream-started", "stream": "s1"})
	ev := a.expect("stream-started")
	assert.Equal(t, b.id, ev.From)
	assert.Equal(t, "s1", ev.Stream)

	// list-users without a room defaults to the sender's own.
	a.send(map[string]string{"type": "list-users"})
	list := a.expect("list-users")
	assert.Equal(t, "itest", list.Room)
	require.Len(t, list.Users, 2)
	streams := map[domain.ParticipantID][]domain.StreamID{}
	for _, u := range list.Users {
		streams[u.ID] = u.Streams
	}
	assert.Equal(t, []domain.StreamID{"s1"}, streams[b.id])
	assert.Empty(t, streams[a.id])
}

func TestLeaveFansOutStreamStopFirst(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv)
	a.join("itest")
	b := dial(t, srv)
	b.join("itest")
	a.expect("user-connected")

	b.send(map[string]string{"type": "stream-started", "stream": "s1"})
	a.expect("stream-started")

	b.send(map[string]string{"type": "leave-room"})
	b.expect("left")

	// The stream dies before the user does.
	stop := a.expect("stream-stopped")
	assert.Equal(t, b.id, stop.From)
	assert.Equal(t, "s1", stop.Stream)
	gone := a.expect("user-disconnected")
	assert.Equal(t, b.id, gone.ID)
}

func TestClientRequestedDisconnect(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv)
	a.join("itest")
	b := dial(t, srv)
	b.join("itest")
	a.expect("user-connected")

	b.send(map[string]string{"type": "force-disconnect"})

	gone := a.expect("user-disconnected")
	assert.Equal(t, b.id, gone.ID)

	// The server dropped B's transport.
	require.NoError(t, b.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := b.conn.ReadMessage()
	assert.Error(t, err)
}

func TestOperatorConsole(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv)
	a.join("itest")
	b := dial(t, srv)
	b.join("itest")
	a.expect("user-connected")

	// The operator connection never joins a room, so clearing does not kick it.
	op := dial(t, srv)

	op.send(map[string]string{"type": "console-command", "command": "people"})
	resp := op.expect("console-response")
	assert.Contains(t, resp.Report, "Room itest")
	assert.Contains(t, resp.Report, "Total users: 2")

	op.send(map[string]string{"type": "console-command", "command": "clear"})
	resp = op.expect("console-response")
	assert.Equal(t, "Cleared 1 rooms and disconnected 2 users", resp.Report)

	for _, tc := range []*testClient{a, b} {
		kicked := tc.expect("force-disconnect")
		assert.Equal(t, "Server clearing all rooms", kicked.Reason)
	}

	op.send(map[string]string{"type": "console-command", "command": "reboot"})
	errMsg := op.expect("error")
	assert.Equal(t, "unknown command", errMsg.Error)
}

func TestRelayToUnknownRoomIsDropped(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv)
	a.join("itest")

	a.send(map[string]any{"type": "offer", "room": "ghost", "payload": json.RawMessage(`{}`)})

	// Nothing came back in between: the next reply is the pong.
	a.send(map[string]string{"type": "ping"})
	a.expect("pong")
}

func TestJoinRateLimit(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv)
	a.send(map[string]string{"type": "join-room"})
	errMsg := a.expect("error")
	assert.Equal(t, "empty room", errMsg.Error)

	for i := 0; i < 10; i++ {
		a.join(fmt.Sprintf("room-%d", i))
	}
	a.send(map[string]string{"type": "join-room", "room": "one-too-many"})
	errMsg = a.expect("error")
	assert.Equal(t, "too many join attempts", errMsg.Error)
}
