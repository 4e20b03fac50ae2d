package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dkeye/TicTacToe/internal/core"
	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/storage"
)

// RoomRegistry caches live rooms in front of the store.
// Its lock only covers the map; room transitions lock the room itself.
type RoomRegistry struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]core.RoomService
	loads    singleflight.Group
	store    storage.Store
	recorder core.MatchRecorder
	newID    func() domain.RoomID
	now      func() time.Time
}

func NewRoomRegistry(store storage.Store, recorder core.MatchRecorder) *RoomRegistry {
	return &RoomRegistry{
		rooms:    make(map[domain.RoomID]core.RoomService),
		store:    store,
		recorder: recorder,
		newID:    newRoomID,
		now:      time.Now,
	}
}

func newRoomID() domain.RoomID {
	return domain.RoomID(uuid.NewString()[:8])
}

func (f *RoomRegistry) Create(ctx context.Context, creator string) (core.RoomService, error) {
	name, err := domain.NormalizePlayerName(creator)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		room := domain.NewRoom(f.newID(), name, f.now())
		err := f.store.CreateRoom(ctx, room)
		if errors.Is(err, storage.ErrAlreadyExists) && attempt < 3 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}
		rs := core.NewRoomService(room, f.store, f.recorder)
		f.mu.Lock()
		f.rooms[room.ID] = rs
		f.mu.Unlock()
		log.Info().Str("module", "app.rooms").Str("room_id", string(room.ID)).Str("creator", name).Msg("room created")
		return rs, nil
	}
}

// Get returns the live room, loading it from the store on a cache miss.
// Seat connections found in a loaded room belong to a previous process and
// are disconnected before the room is handed out.
func (f *RoomRegistry) Get(ctx context.Context, id domain.RoomID) (core.RoomService, error) {
	f.mu.RLock()
	rs, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return rs, nil
	}

	v, err, _ := f.loads.Do(string(id), func() (any, error) {
		f.mu.RLock()
		rs, ok := f.rooms[id]
		f.mu.RUnlock()
		if ok {
			return rs, nil
		}

		room, err := f.store.GetRoom(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("load room %s: %w", id, err)
		}
		rs = core.NewRoomService(room, f.store, f.recorder)
		if stale := len(room.Connections()); stale > 0 {
			if err := core.RecoverConnections(ctx, rs); err != nil {
				return nil, fmt.Errorf("recover room %s: %w", id, err)
			}
			log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Int("stale_conns", stale).
				Str("status", rs.Snapshot().Status.String()).Msg("recovered room after restart")
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if cur, ok := f.rooms[id]; ok {
			return cur, nil
		}
		f.rooms[id] = rs
		return rs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.RoomService), nil
}

func (f *RoomRegistry) List(ctx context.Context, status domain.Status, limit int) ([]domain.Room, error) {
	rooms, err := f.store.ListRooms(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// Cached reports how many rooms are held in memory.
func (f *RoomRegistry) Cached() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms)
}

// Sweep drops idle rooms from memory: abandoned ones, and finished ones with
// no seat connection, as long as nobody is subscribed. Each room retires under
// its own lock so an operation already holding the instance either completes
// first or sees core.ErrRetired. The store keeps them all.
func (f *RoomRegistry) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	evicted := 0
	for id, rs := range f.rooms {
		if rs.Retire() {
			delete(f.rooms, id)
			evicted++
		}
	}
	if evicted > 0 {
		log.Debug().Str("module", "app.rooms").Int("evicted", evicted).Msg("swept idle rooms")
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (f *RoomRegistry) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			f.Sweep()
		}
	}
}

var _ core.RoomManager = (*RoomRegistry)(nil)
