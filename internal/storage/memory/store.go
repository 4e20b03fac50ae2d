// Package memory is an in-process storage.Store. State is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/storage"
)

type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.Room
	stats map[string]domain.PlayerStats
}

func New() *Store {
	return &Store{
		rooms: make(map[domain.RoomID]domain.Room),
		stats: make(map[string]domain.PlayerStats),
	}
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return fmt.Errorf("create room %s: %w", room.ID, storage.ErrAlreadyExists)
	}
	s.rooms[room.ID] = room
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, storage.ErrNotFound
	}
	return room, nil
}

func (s *Store) ListRooms(ctx context.Context, status domain.Status, limit int) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.Status == status {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveRoom(ctx context.Context, room domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return fmt.Errorf("save room %s: %w", room.ID, storage.ErrNotFound)
	}
	s.rooms[room.ID] = room
	return nil
}

func (s *Store) GetStats(ctx context.Context, name string) (domain.PlayerStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.PlayerStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[name]
	if !ok {
		return domain.PlayerStats{}, storage.ErrNotFound
	}
	return st, nil
}

// CompleteMatch holds the write lock across the room write and both stats
// rows, so GetStats never observes a half-applied match.
func (s *Store) CompleteMatch(ctx context.Context, room domain.Room, deltas []domain.StatsDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return fmt.Errorf("complete match %s: %w", room.ID, storage.ErrNotFound)
	}
	s.rooms[room.ID] = room
	for _, d := range deltas {
		s.stats[d.Name] = s.stats[d.Name].Apply(d)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

var _ storage.Store = (*Store)(nil)
