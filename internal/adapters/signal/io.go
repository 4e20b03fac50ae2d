package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/app/orch"
	"github.com/dkeye/TicTacToe/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, id domain.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn_id", string(id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn_id", string(id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("writePump ping failed")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn_id", string(id)).Msg("readPump closing")
		c.Close()
		ctl.Limiter.Forget(id)

		dctx, stop := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer stop()
		ctl.Orch.OnDisconnect(dctx, id)
		cancel()
	}()

	if ctl.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.opts.ReadLimit)
	}
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	}
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("readPump read error")
			}
			return
		}
		_ = extend()
		ctl.handleSignal(ctx, id, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, id domain.ConnID, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("bad json")
		ctl.sendError(c, domain.ErrBadRequest)
		return
	}
	if !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("conn_id", string(id)).Str("type", env.Type).Msg("rate limited")
		ctl.sendError(c, domain.ErrRateLimited)
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, id, c, data)
	case "move":
		ctl.handleMove(ctx, id, c, data)
	case "requestRematch":
		ctl.handleRematch(ctx, id, c, data)
	case "ping":
		ctl.handlePing(c)
	case "whoami":
		ctl.handleWhoAmI(id, c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, domain.ErrBadRequest)
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	if f := orch.Encode(v); f != nil {
		_ = c.TrySend(f)
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, err error) {
	_ = c.TrySend(orch.ErrorFrame(err))
}
