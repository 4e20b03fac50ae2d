package domain

import (
	"errors"

	"github.com/dkeye/TicTacToe/internal/game"
)

// Caller errors. None of them mutates state.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrInvalidGameState = errors.New("invalid game state")
	ErrInvalidCell      = game.ErrInvalidCell
	ErrCellTaken        = game.ErrCellTaken
	ErrNotInGame        = errors.New("you are not in this game")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrInvalidName      = errors.New("invalid player name")
	ErrRateLimited      = errors.New("too many requests")
	ErrBadRequest       = errors.New("malformed request")
)

var codes = []struct {
	err     error
	code    string
	message string
}{
	{ErrRoomNotFound, "RoomNotFound", "Room not found"},
	{ErrRoomFull, "RoomFull", "Room is full"},
	{ErrInvalidGameState, "InvalidGameState", "Invalid game state"},
	{ErrInvalidCell, "InvalidCell", "Invalid cell"},
	{ErrCellTaken, "CellTaken", "Cell is taken"},
	{ErrNotInGame, "NotInGame", "You are not in this game"},
	{ErrNotYourTurn, "NotYourTurn", "Not your turn"},
	{ErrInvalidName, "InvalidName", "Invalid player name"},
	{ErrRateLimited, "RateLimited", "Too many requests"},
	{ErrBadRequest, "BadRequest", "Malformed request"},
}

// ErrorCode maps err to its stable wire code and message.
// Unknown errors become "Internal" so storage details never reach clients.
func ErrorCode(err error) (code, message string) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code, c.message
		}
	}
	return "Internal", "Internal error"
}
