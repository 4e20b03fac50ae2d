package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/TicTacToe/internal/app"
	"github.com/dkeye/TicTacToe/internal/core"
	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
	"github.com/dkeye/TicTacToe/internal/storage/memory"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

type event struct {
	Type    string            `json:"type"`
	Seat    string            `json:"seat"`
	Code    string            `json:"code"`
	State   domain.PublicRoom `json:"state"`
	Message string            `json:"message"`
}

func (f *fakeSignal) events(t *testing.T) []event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]event, 0, len(f.frames))
	for _, fr := range f.frames {
		var e event
		require.NoError(t, json.Unmarshal(fr, &e))
		out = append(out, e)
	}
	return out
}

func (f *fakeSignal) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

type harness struct {
	orch     *Orchestrator
	rooms    *app.RoomRegistry
	store    *memory.Store
	kicked   map[domain.ConnID]bool
	kickedMu sync.Mutex
}

func newHarness() *harness {
	store := memory.New()
	h := &harness{store: store, kicked: make(map[domain.ConnID]bool)}
	h.rooms = app.NewRoomRegistry(store, app.NewStatsAggregator(store))
	h.orch = &Orchestrator{Registry: app.NewRegistry(), Rooms: h.rooms, Policy: app.KickPolicy{}}
	return h
}

func (h *harness) connect(id domain.ConnID) *fakeSignal {
	sig := &fakeSignal{}
	h.orch.Registry.BindSignal(core.NewPlayerSession(id, "", sig), func() {
		h.kickedMu.Lock()
		h.kicked[id] = true
		h.kickedMu.Unlock()
	})
	return sig
}

func (h *harness) room(t *testing.T, creator string) domain.RoomID {
	t.Helper()
	rs, err := h.rooms.Create(context.Background(), creator)
	require.NoError(t, err)
	return rs.ID()
}

func TestJoinSendsRoleThenState(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.room(t, "Ann")
	ann, bo := h.connect("c1"), h.connect("c2")

	seat, err := h.orch.Join(ctx, "c1", id, "Ann")
	require.NoError(t, err)
	assert.Equal(t, game.X, seat)
	ev := ann.events(t)
	require.Len(t, ev, 2)
	assert.Equal(t, EventAssignRole, ev[0].Type)
	assert.Equal(t, "X", ev[0].Seat)
	assert.Equal(t, EventRoomState, ev[1].Type)
	assert.Equal(t, "Waiting", ev[1].State.Status)

	seat, err = h.orch.Join(ctx, "c2", id, "Bo")
	require.NoError(t, err)
	assert.Equal(t, game.O, seat)

	ev = bo.events(t)
	require.Len(t, ev, 2)
	assert.Equal(t, "O", ev[0].Seat)
	assert.Equal(t, "Playing", ev[1].State.Status)

	ev = ann.events(t)
	require.Len(t, ev, 3)
	assert.Equal(t, "Playing", ev[2].State.Status)
	require.NotNil(t, ev[2].State.PlayerOName)
	assert.Equal(t, "Bo", *ev[2].State.PlayerOName)
	assert.Equal(t, domain.ConnID("c2"), ev[2].State.PlayerOConnectionID)
}

func TestRejectedJoinDoesNotSubscribe(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.room(t, "Ann")
	h.connect("c1")
	h.connect("c2")
	cy := h.connect("c3")

	_, err := h.orch.Join(ctx, "c1", id, "Ann")
	require.NoError(t, err)
	_, err = h.orch.Join(ctx, "c2", id, "Bo")
	require.NoError(t, err)

	_, err = h.orch.Join(ctx, "c3", id, "Cy")
	assert.ErrorIs(t, err, domain.ErrRoomFull)
	_, err = h.orch.Join(ctx, "c3", "missing", "Cy")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = h.orch.Join(ctx, "ghost", id, "Cy")
	assert.Error(t, err)

	assert.Empty(t, cy.events(t))
	assert.Empty(t, h.orch.Registry.RoomsOf("c3"))

	rs, err := h.rooms.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.MemberCount())
}

func TestIdempotentJoinKeepsOneMembership(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.room(t, "Ann")
	ann := h.connect("c1")

	for i := 0; i < 3; i++ {
		seat, err := h.orch.Join(ctx, "c1", id, "Ann")
		require.NoError(t, err)
		assert.Equal(t, game.X, seat)
	}
	rs, err := h.rooms.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.MemberCount())
	assert.Equal(t, uint64(1), rs.Snapshot().Version)
	// Each join still answers with role and state.
	assert.Len(t, ann.events(t), 6)
}

func TestMoveBroadcastsAndErrorsStayLocal(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.room(t, "Ann")
	ann, bo := h.connect("c1"), h.connect("c2")
	_, err := h.orch.Join(ctx, "c1", id, "Ann")
	require.NoError(t, err)
	_, err = h.orch.Join(ctx, "c2", id, "Bo")
	require.NoError(t, err)
	ann.reset()
	bo.reset()

	require.NoError(t, h.orch.Move(ctx, "c1", id, 0))
	for _, sig := range []*fakeSignal{ann, bo} {
		ev := sig.events(t)
		require.Len(t, ev, 1)
		assert.Equal(t, "100000000", ev[0].State.Board)
		assert.Equal(t, "O", ev[0].State.Turn)
	}

	err = h.orch.Move(ctx, "c1", id, 1)
	assert.ErrorIs(t, err, domain.ErrNotYourTurn)
	err = h.orch.Move(ctx, "c2", id, 9)
	assert.ErrorIs(t, err, domain.ErrInvalidCell)
	assert.Len(t, ann.events(t), 1, "rejections are not broadcast")
	assert.Len(t, bo.events(t), 1)

	err = h.orch.RequestRematch(ctx, "c1", id)
	assert.ErrorIs(t, err, domain.ErrInvalidGameState)
}

func TestFullMatchAndRematch(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.room(t, "Ann")
	ann := h.connect("c1")
	h.connect("c2")
	_, err := h.orch.Join(ctx, "c1", id, "Ann")
	require.NoError(t, err)
	_, err = h.orch.Join(ctx, "c2", id, "Bo")
	require.NoError(t, err)

	for _, m := range []struct {
		conn domain.ConnID
		cell int
	}{{"c1", 0}, {"c2", 4}, {"c1", 1}, {"c2", 8}, {"c1", 2}} {
		require.NoError(t, h.orch.Move(ctx, m.conn, id, m.cell))
	}
	ev := ann.events(t)
	last := ev[len(ev)-1].State
	assert.Equal(t, "Finished", last.Status)
	assert.Equal(t, "X", last.Winner)

	st, err := h.store.GetStats(ctx, "Ann")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Wins)

	require.NoError(t, h.orch.RequestRematch(ctx, "c2", id))
	require.NoError(t, h.orch.RequestRematch(ctx, "c1", id))
	ev = ann.events(t)
	last = ev[len(ev)-1].State
	assert.Equal(t, "Playing", last.Status)
	assert.Equal(t, "000000000", last.Board)
	assert.Equal(t, "None", last.Winner)
}

func TestDisconnectAcrossRooms(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	active := h.room(t, "Ann")
	done := h.room(t, "Ann")
	h.connect("c1")
	bo := h.connect("c2")

	for _, id := range []domain.RoomID{active, done} {
		_, err := h.orch.Join(ctx, "c1", id, "Ann")
		require.NoError(t, err)
		_, err = h.orch.Join(ctx, "c2", id, "Bo")
		require.NoError(t, err)
	}
	for _, m := range []struct {
		conn domain.ConnID
		cell int
	}{{"c1", 0}, {"c2", 3}, {"c1", 1}, {"c2", 4}, {"c1", 2}} {
		require.NoError(t, h.orch.Move(ctx, m.conn, done, m.cell))
	}
	bo.reset()

	h.orch.OnDisconnect(ctx, "c1")

	rs, err := h.rooms.Get(ctx, active)
	require.NoError(t, err)
	a := rs.Snapshot()
	assert.Equal(t, domain.StatusAbandoned, a.Status)
	assert.False(t, a.X.Connected())
	assert.Equal(t, domain.ConnID("c2"), a.O.Conn)
	assert.Equal(t, 1, rs.MemberCount())

	rs, err = h.rooms.Get(ctx, done)
	require.NoError(t, err)
	d := rs.Snapshot()
	assert.Equal(t, domain.StatusFinished, d.Status)
	assert.False(t, d.X.Connected())

	ev := bo.events(t)
	require.Len(t, ev, 2, "one update per affected room")
	assert.Empty(t, h.orch.Registry.RoomsOf("c1"))

	// Running it again finds nothing to do.
	h.orch.OnDisconnect(ctx, "c1")
	assert.Len(t, bo.events(t), 2)
}

func TestSlowMemberIsKicked(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.room(t, "Ann")
	h.connect("c1")
	bo := h.connect("c2")
	_, err := h.orch.Join(ctx, "c1", id, "Ann")
	require.NoError(t, err)
	_, err = h.orch.Join(ctx, "c2", id, "Bo")
	require.NoError(t, err)

	bo.mu.Lock()
	bo.full = true
	bo.mu.Unlock()
	require.NoError(t, h.orch.Move(ctx, "c1", id, 4))

	h.kickedMu.Lock()
	defer h.kickedMu.Unlock()
	assert.True(t, h.kicked["c2"])
	assert.False(t, h.kicked["c1"])
}

func TestErrorFrame(t *testing.T) {
	var e ErrorEvent
	require.NoError(t, json.Unmarshal(ErrorFrame(domain.ErrCellTaken), &e))
	assert.Equal(t, ErrorEvent{Type: EventError, Code: "CellTaken", Message: "Cell is taken"}, e)

	require.NoError(t, json.Unmarshal(ErrorFrame(errors.New("db down")), &e))
	assert.Equal(t, "Internal", e.Code)
}

// hookedRooms hands out rooms whose Join runs callbacks around the real one.
type hookedRooms struct {
	core.RoomManager
	before, after func()
}

func (h *hookedRooms) Get(ctx context.Context, id domain.RoomID) (core.RoomService, error) {
	rs, err := h.RoomManager.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return hookedRoom{RoomService: rs, rooms: h}, nil
}

type hookedRoom struct {
	core.RoomService
	rooms *hookedRooms
}

func (r hookedRoom) Join(ctx context.Context, ps core.PlayerSession, name string, greet func(game.Mark) core.Frame) (core.JoinResult, error) {
	if f := r.rooms.before; f != nil {
		r.rooms.before = nil
		f()
	}
	res, err := r.RoomService.Join(ctx, ps, name, greet)
	if f := r.rooms.after; err == nil && f != nil {
		r.rooms.after = nil
		f()
	}
	return res, err
}

func TestJoinerSeesStateCommittedRightAfterIt(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.room(t, "Ann")
	hooked := &hookedRooms{RoomManager: h.rooms}
	h.orch.Rooms = hooked
	h.connect("c1")
	bo := h.connect("c2")

	_, err := h.orch.Join(ctx, "c1", id, "Ann")
	require.NoError(t, err)

	// X moves between O's seat commit and O's own broadcast.
	hooked.after = func() { require.NoError(t, h.orch.Move(ctx, "c1", id, 0)) }
	_, err = h.orch.Join(ctx, "c2", id, "Bo")
	require.NoError(t, err)

	ev := bo.events(t)
	require.Len(t, ev, 2)
	assert.Equal(t, EventAssignRole, ev[0].Type)
	assert.Equal(t, EventRoomState, ev[1].Type)
	assert.Equal(t, "100000000", ev[1].State.Board)
	assert.Equal(t, "O", ev[1].State.Turn)
	assert.Equal(t, uint64(3), ev[1].State.Version)
}

func TestJoinFetchesRoomRetiredMeanwhile(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	room := domain.NewRoom("done0001", "Ann", time.Now())
	room.O = domain.Seat{Name: "Bo"}
	room.Status = domain.StatusFinished
	room.Winner = game.WinX
	require.NoError(t, h.store.CreateRoom(ctx, room))

	hooked := &hookedRooms{RoomManager: h.rooms}
	h.orch.Rooms = hooked
	ann := h.connect("c1")

	hooked.before = func() { require.Equal(t, 1, h.rooms.Sweep()) }
	seat, err := h.orch.Join(ctx, "c1", room.ID, "Ann")
	require.NoError(t, err)
	assert.Equal(t, game.X, seat)

	rs, err := h.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnID("c1"), rs.Snapshot().X.Conn)
	assert.Equal(t, 1, rs.MemberCount())
	require.NoError(t, h.orch.RequestRematch(ctx, "c1", room.ID))

	ev := ann.events(t)
	require.Len(t, ev, 3)
	assert.True(t, ev[2].State.PlayerXWantsRematch)
}

func TestRepeatedRematchIsSilent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	id := h.room(t, "Ann")
	ann := h.connect("c1")
	h.connect("c2")
	_, err := h.orch.Join(ctx, "c1", id, "Ann")
	require.NoError(t, err)
	_, err = h.orch.Join(ctx, "c2", id, "Bo")
	require.NoError(t, err)
	for _, m := range []struct {
		conn domain.ConnID
		cell int
	}{{"c1", 0}, {"c2", 3}, {"c1", 1}, {"c2", 4}, {"c1", 2}} {
		require.NoError(t, h.orch.Move(ctx, m.conn, id, m.cell))
	}

	require.NoError(t, h.orch.RequestRematch(ctx, "c1", id))
	n := len(ann.events(t))
	require.NoError(t, h.orch.RequestRematch(ctx, "c1", id))
	assert.Len(t, ann.events(t), n)
}
