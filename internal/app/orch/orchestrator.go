package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/app"
	"github.com/dkeye/TicTacToe/internal/core"
	"github.com/dkeye/TicTacToe/internal/domain"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
}

// broadcast publishes room to its group and applies the backpressure policy
// to members that could not take the frame.
func (o *Orchestrator) broadcast(rs core.RoomService, room domain.Room) {
	res := rs.Publish(room.Version, StateFrame(room))
	if res.Stale {
		log.Debug().Str("module", "app.orch").Str("room_id", string(room.ID)).Uint64("version", room.Version).Msg("stale state skipped")
		return
	}
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(rs, slow) {
		case app.KickMember:
			log.Warn().Str("module", "app.orch").Str("room_id", string(room.ID)).Str("conn_id", string(slow.ConnID())).Msg("kicking slow member")
			o.KickByConn(slow.ConnID())
		case app.DropFrame, app.NoAction:
			log.Warn().Str("module", "app.orch").Str("room_id", string(room.ID)).Str("conn_id", string(slow.ConnID())).Msg("dropped frame for slow member")
		}
	}
}

// KickByConn closes the connection; its read loop then runs disconnect recovery.
func (o *Orchestrator) KickByConn(id domain.ConnID) {
	o.Registry.Cancel(id)
}
