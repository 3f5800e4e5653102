package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkoval/peercast/internal/app"
	"github.com/dkoval/peercast/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Reg     *app.Registry
	Limiter *JoinRateLimiter

	// ReadLimit caps inbound frame size; PingPeriod drives keepalive pings.
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(reg *app.Registry) *SignalWSController {
	return &SignalWSController{
		Reg:        reg,
		Limiter:    NewJoinRateLimiter(10, time.Minute),
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

// TrySend marshals and queues v without blocking. A slow reader loses
// messages rather than stalling the room.
func (c *wsSignalConn) TrySend(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

// Kick pushes a force-disconnect and tears the transport down.
func (c *wsSignalConn) Kick(reason string) {
	_ = c.TrySend(struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{"force-disconnect", reason})
	c.Close()
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	// The participant id is per live connection; the cookie token only ties
	// connections from the same browser together in the logs.
	pid := domain.NewParticipantID()
	log.Info().Str("module", "signal").Str("pid", string(pid)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	ctl.sendJSON(conn, struct {
		Type string               `json:"type"`
		ID   domain.ParticipantID `json:"id"`
	}{"connected", pid})

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, pid, conn)
}
