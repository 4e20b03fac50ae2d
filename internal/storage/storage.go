// Package storage defines persistence for rooms and player statistics.
package storage

import (
	"context"
	"errors"

	"github.com/dkeye/TicTacToe/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// RoomStore persists room records.
type RoomStore interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	// ListRooms returns rooms with the given status, newest first.
	ListRooms(ctx context.Context, status domain.Status, limit int) ([]domain.Room, error)
	SaveRoom(ctx context.Context, room domain.Room) error
}

// StatsStore persists per-player statistics.
type StatsStore interface {
	GetStats(ctx context.Context, name string) (domain.PlayerStats, error)
	// CompleteMatch saves room and applies every delta as one atomic unit.
	CompleteMatch(ctx context.Context, room domain.Room, deltas []domain.StatsDelta) error
}

type Store interface {
	RoomStore
	StatsStore
	Ping(ctx context.Context) error
	Close() error
}
