package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/core"
	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
)

// Outbound event types.
const (
	EventRoomState  = "roomStateUpdated"
	EventAssignRole = "assignRole"
	EventError      = "error"
	EventPong       = "pong"
	EventWhoAmI     = "whoami"
)

type RoomStateEvent struct {
	Type  string            `json:"type"`
	State domain.PublicRoom `json:"state"`
}

type AssignRoleEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	Seat   string        `json:"seat"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode event")
		return nil
	}
	return b
}

func StateFrame(r domain.Room) core.Frame {
	return encode(RoomStateEvent{Type: EventRoomState, State: r.Public()})
}

func RoleFrame(id domain.RoomID, seat game.Mark) core.Frame {
	return encode(AssignRoleEvent{Type: EventAssignRole, RoomID: id, Seat: seat.String()})
}

// ErrorFrame renders err with its stable code; unknown errors become Internal.
func ErrorFrame(err error) core.Frame {
	code, msg := domain.ErrorCode(err)
	return encode(ErrorEvent{Type: EventError, Code: code, Message: msg})
}

// Encode marshals any outbound event.
func Encode(v any) core.Frame { return encode(v) }
