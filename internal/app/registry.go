package app

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/core"
	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
)

type connEntry struct {
	Session core.PlayerSession
	Cancel  context.CancelFunc
	Seats   map[domain.RoomID]game.Mark
}

// Registry is the connection binder: it knows every open connection and
// the seats it currently holds, possibly in several rooms.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*connEntry)}
}

func (r *Registry) BindSignal(ps core.PlayerSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[ps.ConnID()] = &connEntry{
		Session: ps,
		Cancel:  cancel,
		Seats:   make(map[domain.RoomID]game.Mark),
	}
	log.Info().Str("module", "app.registry").Str("conn_id", string(ps.ConnID())).Msg("bound signal")
}

func (r *Registry) GetSession(id domain.ConnID) (core.PlayerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Session, true
	}
	return nil, false
}

// UpdateName remembers the name the connection last joined with.
func (r *Registry) UpdateName(id domain.ConnID, name string) (core.PlayerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	if e.Session.Name() != name {
		e.Session = e.Session.WithName(name)
		log.Debug().Str("module", "app.registry").Str("conn_id", string(id)).Str("name", name).Msg("updated name")
	}
	return e.Session, true
}

func (r *Registry) BindSeat(id domain.ConnID, room domain.RoomID, seat game.Mark) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Seats[room] = seat
	log.Info().Str("module", "app.registry").Str("conn_id", string(id)).Str("room_id", string(room)).
		Str("seat", seat.String()).Msg("bound seat")
	return true
}

// SeatIn reports the seat id holds in room, game.Empty if none.
func (r *Registry) SeatIn(id domain.ConnID, room domain.RoomID) game.Mark {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Seats[room]
	}
	return game.Empty
}

// RoomsOf lists the rooms where id holds a seat, sorted for stable processing.
func (r *Registry) RoomsOf(id domain.ConnID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(e.Seats))
	for room := range e.Seats {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Unbind forgets id and returns the rooms it held seats in.
func (r *Registry) Unbind(id domain.ConnID) []domain.RoomID {
	r.mu.Lock()
	e, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	rooms := make([]domain.RoomID, 0, len(e.Seats))
	for room := range e.Seats {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	log.Info().Str("module", "app.registry").Str("conn_id", string(id)).Int("rooms", len(rooms)).Msg("unbind connection")
	return rooms
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn_id", string(id)).Msg("canceled connection")
	return true
}
