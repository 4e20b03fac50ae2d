package app

import (
	"fmt"

	"github.com/dkeye/TicTacToe/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.PlayerSession) BackpressureAction
}

// KickPolicy tears slow connections down; their seats go through disconnect.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.RoomService, core.PlayerSession) BackpressureAction {
	return KickMember
}

// DropPolicy skips the frame. The next state update carries the full room
// again, so a skipped one is not lost for good.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.RoomService, core.PlayerSession) BackpressureAction {
	return DropFrame
}

// PolicyByName maps the ws.backpressure setting to a Policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return KickPolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
