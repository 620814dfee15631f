// Package signal is the WebSocket control channel between a browser and
// the server: room membership, WebRTC negotiation, and the invite and
// join-request prompts.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/tempvoice/internal/app/commands"
	"github.com/dkeye/tempvoice/internal/app/orch"
	"github.com/dkeye/tempvoice/internal/clock"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const sendBuffer = 32

// WSConn is the part of *websocket.Conn the pumps use.
type WSConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Conn is a core.SignalConnection over a WebSocket. Frames queue in a
// bounded buffer drained by the write pump; a full buffer is backpressure.
type Conn struct {
	ws   WSConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewConn(ws WSConn) *Conn {
	return &Conn{ws: ws, send: make(chan core.Frame, sendBuffer)}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	RTC        webrtc.Configuration
	// ProposalLimit invites or join requests per ProposalInterval per user.
	ProposalLimit    int
	ProposalInterval time.Duration
}

type Controller struct {
	Orch     *orch.Orchestrator
	Commands *commands.Commands

	opts    Options
	clock   clock.Clock
	limiter *RateLimiter
}

func NewController(o *orch.Orchestrator, cmds *commands.Commands, clk clock.Clock, opts Options) *Controller {
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32 << 10
	}
	return &Controller{
		Orch:     o,
		Commands: cmds,
		opts:     opts,
		clock:    clk,
		limiter:  NewRateLimiter(clk, opts.ProposalLimit, opts.ProposalInterval),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ctl.Serve(ctx, sid, ws)
}

// Serve binds ws as sid's signal session and starts its pumps. A session
// already bound to sid is released first.
func (ctl *Controller) Serve(ctx context.Context, sid core.SessionID, ws WSConn) *Conn {
	if old, ok := ctl.Orch.Registry.GetSession(sid); ok {
		ctl.Orch.Registry.Cancel(sid)
		ctl.Orch.OnDisconnect(sid, old)
	}

	conn := NewConn(ws)
	user, _ := ctl.Orch.Registry.GetOrCreateUser(sid)
	sess := core.NewMemberSession(domain.NewMember(user, ctl.clock.Now())).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go func() {
		ctl.readPump(ctx, sid, conn)
		cancel()
		ctl.Orch.OnDisconnect(sid, sess)
	}()
	return conn
}
