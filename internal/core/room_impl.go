package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
	"github.com/dkeye/TicTacToe/internal/storage"
)

// roomImpl is a threadsafe room.
// mu guards state and retired; groupMu guards the broadcast group. When both
// are needed mu is taken first.
// It never closes adapter-owned resources.
type roomImpl struct {
	id       domain.RoomID
	mu       sync.Mutex
	state    domain.Room
	retired  bool
	store    storage.RoomStore
	recorder MatchRecorder

	groupMu   sync.RWMutex
	members   map[domain.ConnID]PlayerSession
	published uint64
}

// NewRoomService wraps an already persisted room.
func NewRoomService(room domain.Room, store storage.RoomStore, recorder MatchRecorder) RoomService {
	return &roomImpl{
		id:       room.ID,
		state:    room,
		store:    store,
		recorder: recorder,
		members:  make(map[domain.ConnID]PlayerSession),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) Snapshot() domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// commit persists next and only then makes it the live state.
// Caller holds r.mu.
func (r *roomImpl) commit(ctx context.Context, next domain.Room) error {
	next.Version = r.state.Version + 1
	var err error
	if next.Status == domain.StatusFinished && r.state.Status != domain.StatusFinished && r.recorder != nil {
		err = r.recorder.RecordMatch(ctx, next)
	} else {
		err = r.store.SaveRoom(ctx, next)
	}
	if err != nil {
		return fmt.Errorf("persist room %s: %w", next.ID, err)
	}
	r.state = next
	return nil
}

func (r *roomImpl) Join(ctx context.Context, ps PlayerSession, name string, greet func(game.Mark) Frame) (JoinResult, error) {
	name, err := domain.NormalizePlayerName(name)
	if err != nil {
		return JoinResult{}, err
	}
	conn := ps.ConnID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return JoinResult{}, ErrRetired
	}

	d := DecideSeat(r.state, conn, name)
	switch d.Action {
	case SeatReject:
		return JoinResult{}, d.Err
	case SeatRejoin:
		r.admit(ps, d.Seat, greet)
		return JoinResult{Seat: d.Seat, Room: r.state}, nil
	}

	next := r.state
	seat := next.Seat(d.Seat)
	seat.Conn = conn
	if d.Action == SeatFillO {
		seat.Name = name
		next.Status = domain.StatusPlaying
		next.Turn = game.X
	}
	if err := r.commit(ctx, next); err != nil {
		return JoinResult{}, err
	}
	r.admit(ps, d.Seat, greet)
	log.Info().Str("module", "core.room").Str("room_id", string(next.ID)).Str("conn_id", string(conn)).
		Str("seat", d.Seat.String()).Str("status", r.state.Status.String()).Msg("seat bound")
	return JoinResult{Seat: d.Seat, Room: r.state, Changed: true}, nil
}

// admit greets ps and adds it to the group. Caller holds r.mu, so no later
// transition can be published before ps is a member.
func (r *roomImpl) admit(ps PlayerSession, seat game.Mark, greet func(game.Mark) Frame) {
	if greet != nil {
		if err := ps.Signal().TrySend(greet(seat)); err != nil {
			log.Warn().Err(err).Str("module", "core.room").Str("room_id", string(r.id)).Str("conn_id", string(ps.ConnID())).Msg("greeting not delivered")
		}
	}
	r.Subscribe(ps)
}

func (r *roomImpl) Move(ctx context.Context, conn domain.ConnID, cell int) (domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state
	if r.retired {
		return cur, ErrRetired
	}
	if cur.Status != domain.StatusPlaying {
		return cur, domain.ErrInvalidGameState
	}
	if cell < 0 || cell >= game.Cells {
		return cur, domain.ErrInvalidCell
	}
	seat := cur.SeatOf(conn)
	if seat == game.Empty {
		return cur, domain.ErrNotInGame
	}
	if seat != cur.Turn {
		return cur, domain.ErrNotYourTurn
	}
	board, err := game.ApplyMove(cur.Board, cell, seat)
	if err != nil {
		return cur, err
	}

	next := cur
	next.Board = board
	if outcome := game.Evaluate(board); outcome != game.None {
		next.Winner = outcome
		next.Status = domain.StatusFinished
	} else {
		next.Turn = seat.Other()
	}
	if err := r.commit(ctx, next); err != nil {
		return cur, err
	}
	ev := log.Debug()
	if r.state.Status == domain.StatusFinished {
		ev = log.Info().Str("winner", r.state.Winner.String())
	}
	ev.Str("module", "core.room").Str("room_id", string(cur.ID)).Str("seat", seat.String()).Int("cell", cell).Msg("move applied")
	return r.state, nil
}

func (r *roomImpl) RequestRematch(ctx context.Context, conn domain.ConnID) (domain.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state
	if r.retired {
		return cur, false, ErrRetired
	}
	if cur.Status != domain.StatusFinished {
		return cur, false, domain.ErrInvalidGameState
	}
	seat := cur.SeatOf(conn)
	if seat == game.Empty {
		return cur, false, domain.ErrNotInGame
	}
	if (seat == game.X && cur.RematchX) || (seat == game.O && cur.RematchO) {
		return cur, false, nil
	}

	next := cur
	if seat == game.X {
		next.RematchX = true
	} else {
		next.RematchO = true
	}
	if next.RematchX && next.RematchO {
		next.Board = game.Board{}
		next.Turn = game.X
		next.Winner = game.None
		next.RematchX, next.RematchO = false, false
		next.Status = domain.StatusPlaying
	}
	if err := r.commit(ctx, next); err != nil {
		return cur, false, err
	}
	log.Info().Str("module", "core.room").Str("room_id", string(cur.ID)).Str("seat", seat.String()).
		Str("status", r.state.Status.String()).Msg("rematch requested")
	return r.state, true, nil
}

func (r *roomImpl) Disconnect(ctx context.Context, conn domain.ConnID) (domain.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state
	if r.retired {
		return cur, false, ErrRetired
	}
	seat := cur.SeatOf(conn)
	if seat == game.Empty || cur.Terminal() {
		return cur, false, nil
	}

	next := cur
	switch cur.Status {
	case domain.StatusWaiting:
		next.Status = domain.StatusAbandoned
	case domain.StatusPlaying:
		next.Status = domain.StatusAbandoned
		next.Seat(seat).Conn = ""
	case domain.StatusFinished:
		next.Seat(seat).Conn = ""
	}
	if err := r.commit(ctx, next); err != nil {
		return cur, false, err
	}
	log.Info().Str("module", "core.room").Str("room_id", string(cur.ID)).Str("conn_id", string(conn)).
		Str("seat", seat.String()).Str("status", r.state.Status.String()).Msg("seat disconnected")
	return r.state, true, nil
}

// RecoverConnections drops every seat connection recorded before a restart.
func RecoverConnections(ctx context.Context, rs RoomService) error {
	for _, conn := range rs.Snapshot().Connections() {
		if _, _, err := rs.Disconnect(ctx, conn); err != nil {
			return err
		}
	}
	return nil
}

func (r *roomImpl) Retire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return true
	}
	idle := r.state.Status == domain.StatusAbandoned ||
		(r.state.Status == domain.StatusFinished && len(r.state.Connections()) == 0)
	if !idle || r.MemberCount() > 0 {
		return false
	}
	r.retired = true
	log.Debug().Str("module", "core.room").Str("room_id", string(r.id)).Str("status", r.state.Status.String()).Msg("room retired")
	return true
}

func (r *roomImpl) Subscribe(ps PlayerSession) {
	r.groupMu.Lock()
	defer r.groupMu.Unlock()
	r.members[ps.ConnID()] = ps
	log.Debug().Str("module", "core.room").Str("room_id", string(r.ID())).Str("conn_id", string(ps.ConnID())).Msg("member subscribed")
}

func (r *roomImpl) Unsubscribe(conn domain.ConnID) {
	r.groupMu.Lock()
	defer r.groupMu.Unlock()
	delete(r.members, conn)
}

func (r *roomImpl) MemberCount() int {
	r.groupMu.RLock()
	defer r.groupMu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) Publish(version uint64, data Frame) PublishResult {
	r.groupMu.Lock()
	defer r.groupMu.Unlock()
	if version < r.published {
		return PublishResult{Stale: true}
	}
	r.published = version

	res := PublishResult{}
	for _, m := range r.members {
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room_id", string(r.ID())).Uint64("version", version).
		Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
