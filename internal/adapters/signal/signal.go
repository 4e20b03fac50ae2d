package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/app/orch"
	"github.com/dkeye/TicTacToe/internal/config"
	"github.com/dkeye/TicTacToe/internal/core"
	"github.com/dkeye/TicTacToe/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	errClosed       = errors.New("connection closed")
)

// SessionNameKey is the gin context key holding the player name remembered
// by the HTTP session, used when a join omits playerName.
const SessionNameKey = "player_name"

// disconnectTimeout bounds the cleanup that runs after a socket closes.
const disconnectTimeout = 5 * time.Second

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	RateLimit    int
	RateInterval time.Duration
}

func OptionsFrom(cfg *config.Config) Options {
	return Options{
		ReadLimit:    cfg.WS.ReadLimit,
		PingPeriod:   cfg.WS.PingPeriod,
		PongWait:     cfg.WS.PongWait,
		WriteWait:    cfg.WS.WriteWait,
		SendBuffer:   cfg.WS.SendBuffer,
		RateLimit:    cfg.Rate.Limit,
		RateInterval: cfg.Rate.Interval,
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Limiter: NewRoomRateLimiter(opts.RateLimit, opts.RateInterval),
		opts:    opts,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
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

// HandleSignal upgrades the request and runs the connection until either side
// closes it or ctx ends.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.ConnID(uuid.NewString())
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("conn_id", string(id)).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	ps := core.NewPlayerSession(id, c.GetString(SessionNameKey), conn)

	ctx, cancel := context.WithCancel(ctx)
	context.AfterFunc(ctx, conn.Close)
	ctl.Orch.Registry.BindSignal(ps, cancel)

	ctl.handleWhoAmI(id, conn)

	go ctl.writePump(ctx, id, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
