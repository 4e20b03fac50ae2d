package core

import (
	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
)

type SeatAction uint8

const (
	// SeatReject leaves the room untouched; Err says why.
	SeatReject SeatAction = iota
	// SeatBind attaches the caller to an existing named seat.
	SeatBind
	// SeatRejoin means the caller already holds Seat.
	SeatRejoin
	// SeatFillO names seat O, binds the caller and starts the match.
	SeatFillO
)

type SeatDecision struct {
	Action SeatAction
	Seat   game.Mark
	Err    error
}

// DecideSeat applies the join guards in order. Room existence is checked by
// the caller before the room is even available.
func DecideSeat(r domain.Room, conn domain.ConnID, name string) SeatDecision {
	bound := r.SeatOf(conn)

	switch {
	case r.Status == domain.StatusPlaying && bound == game.Empty:
		return SeatDecision{Action: SeatReject, Err: domain.ErrRoomFull}
	case r.Status == domain.StatusWaiting && name == r.X.Name && !r.X.Connected():
		return SeatDecision{Action: SeatBind, Seat: game.X}
	case bound == game.X:
		return SeatDecision{Action: SeatRejoin, Seat: game.X}
	case r.Status == domain.StatusWaiting && !r.O.Taken():
		return SeatDecision{Action: SeatFillO, Seat: game.O}
	case bound == game.O:
		return SeatDecision{Action: SeatRejoin, Seat: game.O}
	}

	// Reclaim a dropped seat by name. X wins when both seats carry the name.
	if r.Status == domain.StatusPlaying || r.Status == domain.StatusFinished {
		for _, m := range []game.Mark{game.X, game.O} {
			s := r.Seat(m)
			if s.Name == name && !s.Connected() {
				return SeatDecision{Action: SeatBind, Seat: m}
			}
		}
	}
	return SeatDecision{Action: SeatReject, Err: domain.ErrRoomFull}
}
