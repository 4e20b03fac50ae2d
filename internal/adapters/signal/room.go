package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/domain"
)

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		RoomID     string `json:"roomId"`
		PlayerName string `json:"playerName"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("bad join payload")
		ctl.sendError(conn, domain.ErrBadRequest)
		return
	}
	name := p.PlayerName
	if name == "" {
		if ps, ok := ctl.Orch.Registry.GetSession(id); ok {
			name = ps.Name()
		}
	}

	if _, err := ctl.Orch.Join(ctx, id, domain.RoomID(p.RoomID), name); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleMove(
	ctx context.Context,
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type movePayload struct {
		RoomID     string `json:"roomId"`
		PlayerName string `json:"playerName"`
		CellIndex  *int   `json:"cellIndex"`
	}
	var p movePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" || p.CellIndex == nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("bad move payload")
		ctl.sendError(conn, domain.ErrBadRequest)
		return
	}
	// The seat comes from the connection; playerName is informational.
	if err := ctl.Orch.Move(ctx, id, domain.RoomID(p.RoomID), *p.CellIndex); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleRematch(
	ctx context.Context,
	id domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type rematchPayload struct {
		RoomID string `json:"roomId"`
	}
	var p rematchPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		ctl.sendError(conn, domain.ErrBadRequest)
		return
	}
	if err := ctl.Orch.RequestRematch(ctx, id, domain.RoomID(p.RoomID)); err != nil {
		ctl.sendError(conn, err)
	}
}
