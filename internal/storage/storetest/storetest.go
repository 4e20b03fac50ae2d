// Package storetest is the behavioural suite every storage.Store driver runs.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
	"github.com/dkeye/TicTacToe/internal/storage"
)

// Run executes the suite; open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Run("RoomRoundTrip", func(t *testing.T) { testRoomRoundTrip(t, open(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
	t.Run("ListRooms", func(t *testing.T) { testListRooms(t, open(t)) })
	t.Run("CompleteMatch", func(t *testing.T) { testCompleteMatch(t, open(t)) })
	t.Run("CompleteMatchAtomic", func(t *testing.T) { testCompleteMatchAtomic(t, open(t)) })
}

var base = time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)

func playing(id domain.RoomID, x, o string, at time.Time) domain.Room {
	r := domain.NewRoom(id, x, at)
	r.O = domain.Seat{Name: o, Conn: domain.ConnID("conn-" + o)}
	r.X.Conn = domain.ConnID("conn-" + x)
	r.Status = domain.StatusPlaying
	return r
}

func testRoomRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	r := domain.NewRoom("rt000001", "Ann", base)
	require.NoError(t, s.CreateRoom(ctx, r))

	got, err := s.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "Ann", got.X.Name)
	assert.False(t, got.O.Taken())
	assert.Equal(t, domain.StatusWaiting, got.Status)
	assert.True(t, base.Equal(got.CreatedAt))

	r = playing(r.ID, "Ann", "Bo", base)
	r.Board, err = game.ApplyMove(r.Board, 4, game.X)
	require.NoError(t, err)
	r.Turn = game.O
	r.RematchO = true
	r.Version = 7
	require.NoError(t, s.SaveRoom(ctx, r))

	got, err = s.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "000010000", got.Board.String())
	assert.Equal(t, game.O, got.Turn)
	assert.Equal(t, domain.Seat{Name: "Bo", Conn: "conn-Bo"}, got.O)
	assert.Equal(t, domain.ConnID("conn-Ann"), got.X.Conn)
	assert.True(t, got.RematchO)
	assert.False(t, got.RematchX)
	assert.Equal(t, uint64(7), got.Version)
	assert.Equal(t, domain.StatusPlaying, got.Status)
}

func testCreateDuplicate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	r := domain.NewRoom("dup00001", "Ann", base)
	require.NoError(t, s.CreateRoom(ctx, r))
	assert.ErrorIs(t, s.CreateRoom(ctx, r), storage.ErrAlreadyExists)
}

func testNotFound(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetRoom(ctx, "missing1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetStats(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.SaveRoom(ctx, domain.NewRoom("missing2", "Ann", base)), storage.ErrNotFound)
}

func testListRooms(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r := domain.NewRoom(domain.RoomID(fmt.Sprintf("list%04d", i)), "Ann", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.CreateRoom(ctx, r))
	}
	moved := playing("list0002", "Ann", "Bo", base.Add(2*time.Minute))
	require.NoError(t, s.SaveRoom(ctx, moved))

	waiting, err := s.ListRooms(ctx, domain.StatusWaiting, 3)
	require.NoError(t, err)
	ids := make([]domain.RoomID, 0, len(waiting))
	for _, r := range waiting {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []domain.RoomID{"list0004", "list0003", "list0001"}, ids)

	active, err := s.ListRooms(ctx, domain.StatusPlaying, 50)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.RoomID("list0002"), active[0].ID)

	none, err := s.ListRooms(ctx, domain.StatusAbandoned, 50)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testCompleteMatch(t *testing.T, s storage.Store) {
	ctx := context.Background()
	r := playing("done0001", "Ann", "Bo", base)
	require.NoError(t, s.CreateRoom(ctx, r))

	r.Board = mustBoard(t, "111220000")
	r.Status = domain.StatusFinished
	r.Winner = game.WinX
	seen := base.Add(time.Hour)
	require.NoError(t, s.CompleteMatch(ctx, r, domain.MatchDeltas(r, seen)))

	got, err := s.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, got.Status)
	assert.Equal(t, game.WinX, got.Winner)

	ann, err := s.GetStats(ctx, "Ann")
	require.NoError(t, err)
	assert.Equal(t, 1, ann.GamesPlayed)
	assert.Equal(t, 1, ann.Wins)
	assert.Equal(t, 0, ann.Losses)
	assert.True(t, seen.Equal(ann.LastSeen))

	bo, err := s.GetStats(ctx, "Bo")
	require.NoError(t, err)
	assert.Equal(t, domain.PlayerStats{Name: "Bo", GamesPlayed: 1, Losses: 1, LastSeen: bo.LastSeen}, bo)

	// Rematch ends in a draw: counters accumulate.
	r.Board = mustBoard(t, "121122212")
	r.Winner = game.Draw
	require.NoError(t, s.CompleteMatch(ctx, r, domain.MatchDeltas(r, seen)))
	ann, err = s.GetStats(ctx, "Ann")
	require.NoError(t, err)
	assert.Equal(t, 2, ann.GamesPlayed)
	assert.Equal(t, 1, ann.Wins)
	assert.Equal(t, 1, ann.Draws)
}

// testCompleteMatchAtomic checks that readers never see gamesPlayed without
// the matching outcome counter.
func testCompleteMatchAtomic(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const matches = 20
	for i := 0; i < matches; i++ {
		require.NoError(t, s.CreateRoom(ctx, playing(domain.RoomID(fmt.Sprintf("atom%04d", i)), "Cy", "Di", base)))
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			st, err := s.GetStats(ctx, "Cy")
			if err != nil {
				continue
			}
			if st.GamesPlayed != st.Wins+st.Losses+st.Draws {
				t.Errorf("torn read: %+v", st)
				return
			}
		}
	}()

	for i := 0; i < matches; i++ {
		r := playing(domain.RoomID(fmt.Sprintf("atom%04d", i)), "Cy", "Di", base)
		r.Status = domain.StatusFinished
		r.Winner = []game.Outcome{game.WinX, game.WinO, game.Draw}[i%3]
		require.NoError(t, s.CompleteMatch(ctx, r, domain.MatchDeltas(r, base)))
	}
	close(done)
	wg.Wait()

	cy, err := s.GetStats(ctx, "Cy")
	require.NoError(t, err)
	assert.Equal(t, matches, cy.GamesPlayed)
	assert.Equal(t, cy.GamesPlayed, cy.Wins+cy.Losses+cy.Draws)
}

func mustBoard(t *testing.T, s string) game.Board {
	t.Helper()
	b, err := game.ParseBoard(s)
	require.NoError(t, err)
	return b
}
