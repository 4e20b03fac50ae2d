package core

import (
	"context"
	"errors"

	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
)

// ErrRetired is returned by a room the registry dropped from memory.
// The caller fetches the room again.
var ErrRetired = errors.New("room retired")

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []PlayerSession
	// Stale is set when a newer state was already published.
	Stale bool
}

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	Seat    game.Mark
	Room    domain.Room
	Changed bool
}

// RoomService is one match: its state machine and its broadcast group.
// State transitions are serialized per room; different rooms never share a lock.
type RoomService interface {
	ID() domain.RoomID
	Snapshot() domain.Room

	// Join seats ps and subscribes it to the group. greet, when set, builds a
	// frame sent to ps before any later state of the room can reach it.
	Join(ctx context.Context, ps PlayerSession, name string, greet func(game.Mark) Frame) (JoinResult, error)
	Move(ctx context.Context, conn domain.ConnID, cell int) (domain.Room, error)
	// RequestRematch reports changed=false when the seat had already asked.
	RequestRematch(ctx context.Context, conn domain.ConnID) (room domain.Room, changed bool, err error)
	// Disconnect reports changed=false when conn holds no seat or the room is terminal.
	Disconnect(ctx context.Context, conn domain.ConnID) (room domain.Room, changed bool, err error)

	// Retire marks an idle room as dropped from memory. Later transitions fail
	// with ErrRetired. Idle means Abandoned, or Finished with no seat
	// connection, and nobody subscribed.
	Retire() bool

	Subscribe(ps PlayerSession)
	Unsubscribe(conn domain.ConnID)
	MemberCount() int
	// Publish fans data out to the group unless a newer version went out already.
	Publish(version uint64, data Frame) PublishResult
}

// MatchRecorder persists a room entering Finished together with its stats.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, room domain.Room) error
}

type RoomManager interface {
	Create(ctx context.Context, creator string) (RoomService, error)
	Get(ctx context.Context, id domain.RoomID) (RoomService, error)
	List(ctx context.Context, status domain.Status, limit int) ([]domain.Room, error)
}
