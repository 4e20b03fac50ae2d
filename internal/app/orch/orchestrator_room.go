package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/core"
	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
)

var errUnknownConn = errors.New("connection not registered")

const (
	// disconnectRetries bounds attempts to persist a disconnect.
	disconnectRetries = 3
	// refetchRetries bounds lookups of a room retired under a caller.
	refetchRetries = 3
)

// withRoom runs fn on the live instance of roomID, fetching it again when the
// one in hand was retired by the sweeper.
func (o *Orchestrator) withRoom(ctx context.Context, roomID domain.RoomID, fn func(core.RoomService) error) error {
	for attempt := 1; ; attempt++ {
		rs, err := o.Rooms.Get(ctx, roomID)
		if err != nil {
			return err
		}
		err = fn(rs)
		if !errors.Is(err, core.ErrRetired) || attempt == refetchRetries {
			return err
		}
		log.Debug().Str("module", "app.orch").Str("room_id", string(roomID)).Int("attempt", attempt).Msg("room retired, fetching again")
	}
}

// Join seats the connection and subscribes it to the room group while the
// room is locked, tells it its seat and then pushes the room state to
// everyone in the group.
func (o *Orchestrator) Join(ctx context.Context, id domain.ConnID, roomID domain.RoomID, name string) (game.Mark, error) {
	ps, ok := o.Registry.GetSession(id)
	if !ok {
		return game.Empty, errUnknownConn
	}
	name, err := domain.NormalizePlayerName(name)
	if err != nil {
		return game.Empty, err
	}
	ps = ps.WithName(name)
	greet := func(seat game.Mark) core.Frame { return RoleFrame(roomID, seat) }

	var res core.JoinResult
	err = o.withRoom(ctx, roomID, func(rs core.RoomService) error {
		var err error
		res, err = rs.Join(ctx, ps, name, greet)
		if err != nil {
			return err
		}
		o.Registry.UpdateName(id, name)
		if !o.Registry.BindSeat(id, roomID, res.Seat) {
			// The connection closed while joining; its disconnect already ran.
			o.release(ctx, rs, id)
			return errUnknownConn
		}
		o.broadcast(rs, res.Room)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("conn_id", string(id)).Str("room_id", string(roomID)).Msg("join rejected")
		return game.Empty, err
	}
	log.Info().Str("module", "app.orch").Str("conn_id", string(id)).Str("room_id", string(roomID)).
		Str("seat", res.Seat.String()).Bool("changed", res.Changed).Msg("joined room")
	return res.Seat, nil
}

// Move plays cell for whichever seat the connection holds.
func (o *Orchestrator) Move(ctx context.Context, id domain.ConnID, roomID domain.RoomID, cell int) error {
	err := o.withRoom(ctx, roomID, func(rs core.RoomService) error {
		room, err := rs.Move(ctx, id, cell)
		if err != nil {
			return err
		}
		o.broadcast(rs, room)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("conn_id", string(id)).Str("room_id", string(roomID)).Int("cell", cell).Msg("move rejected")
	}
	return err
}

func (o *Orchestrator) RequestRematch(ctx context.Context, id domain.ConnID, roomID domain.RoomID) error {
	err := o.withRoom(ctx, roomID, func(rs core.RoomService) error {
		room, changed, err := rs.RequestRematch(ctx, id)
		if err != nil {
			return err
		}
		if changed {
			o.broadcast(rs, room)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("conn_id", string(id)).Str("room_id", string(roomID)).Msg("rematch rejected")
	}
	return err
}

// OnDisconnect runs once per closed connection: every room where it held a
// seat gets the disconnect transition and a fresh broadcast.
func (o *Orchestrator) OnDisconnect(ctx context.Context, id domain.ConnID) {
	rooms := o.Registry.Unbind(id)
	for _, roomID := range rooms {
		rs, err := o.Rooms.Get(ctx, roomID)
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("conn_id", string(id)).Str("room_id", string(roomID)).Msg("disconnect: room lookup")
			continue
		}
		o.release(ctx, rs, id)
	}
	log.Info().Str("module", "app.orch").Str("conn_id", string(id)).Int("rooms", len(rooms)).Msg("connection closed")
}

// release takes id out of the group and runs the disconnect transition.
func (o *Orchestrator) release(ctx context.Context, rs core.RoomService, id domain.ConnID) {
	rs.Unsubscribe(id)

	var (
		room    domain.Room
		changed bool
		err     error
	)
	for attempt := 1; ; attempt++ {
		room, changed, err = rs.Disconnect(ctx, id)
		// A retired room had no seat connection left, so there is nothing to undo.
		if errors.Is(err, core.ErrRetired) {
			return
		}
		if err == nil || attempt == disconnectRetries || ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Str("module", "app.orch").Str("room_id", string(rs.ID())).Int("attempt", attempt).Msg("disconnect: retrying")
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("conn_id", string(id)).Str("room_id", string(rs.ID())).Msg("disconnect: giving up")
		return
	}
	if changed {
		o.broadcast(rs, room)
	}
}
