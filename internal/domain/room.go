// Package domain contains the match entities and their error vocabulary.
// Transitions live in core; here are only data and small helpers.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/TicTacToe/internal/game"
)

type (
	RoomID string
	ConnID string
)

type Status uint8

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusFinished
	StatusAbandoned
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "Waiting"
	case StatusPlaying:
		return "Playing"
	case StatusFinished:
		return "Finished"
	case StatusAbandoned:
		return "Abandoned"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus is case-insensitive.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusWaiting, StatusPlaying, StatusFinished, StatusAbandoned} {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return StatusWaiting, fmt.Errorf("unknown status %q", s)
}

// Seat is one side of the match.
type Seat struct {
	Name string
	Conn ConnID
}

func (s Seat) Taken() bool     { return s.Name != "" }
func (s Seat) Connected() bool { return s.Conn != "" }

// Room is the authoritative record of one match. It is a plain value:
// copying it yields an independent snapshot.
type Room struct {
	ID        RoomID
	CreatedAt time.Time
	Status    Status
	X         Seat
	O         Seat
	Board     game.Board
	Turn      game.Mark
	Winner    game.Outcome
	RematchX  bool
	RematchO  bool
	Version   uint64
}

// NewRoom returns a Waiting room with seat X taken by creator.
func NewRoom(id RoomID, creator string, now time.Time) Room {
	return Room{
		ID:        id,
		CreatedAt: now.UTC(),
		Status:    StatusWaiting,
		X:         Seat{Name: creator},
		Turn:      game.X,
		Winner:    game.None,
	}
}

// Seat returns a pointer to the seat for mark, nil for game.Empty.
func (r *Room) Seat(m game.Mark) *Seat {
	switch m {
	case game.X:
		return &r.X
	case game.O:
		return &r.O
	}
	return nil
}

// SeatOf reports which seat conn is bound to, game.Empty if none.
func (r Room) SeatOf(conn ConnID) game.Mark {
	if conn == "" {
		return game.Empty
	}
	switch conn {
	case r.X.Conn:
		return game.X
	case r.O.Conn:
		return game.O
	}
	return game.Empty
}

// Connections lists the live seat connections.
func (r Room) Connections() []ConnID {
	out := make([]ConnID, 0, 2)
	if r.X.Connected() {
		out = append(out, r.X.Conn)
	}
	if r.O.Connected() {
		out = append(out, r.O.Conn)
	}
	return out
}

// Terminal reports whether no further transition can happen.
func (r Room) Terminal() bool { return r.Status == StatusAbandoned }
