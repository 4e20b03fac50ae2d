package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/storage"
	"github.com/dkeye/TicTacToe/internal/storage/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "tictac.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store { return openTestStore(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tictac.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	room := domain.NewRoom("keep0001", "Ann", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.CreateRoom(ctx, room))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.X.Name)

	var n int
	require.NoError(t, s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+migrationTable).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestUpSection(t *testing.T) {
	assert.Equal(t, "\nA;\n", upSection("-- +migrate Up\nA;\n-- +migrate Down\nB;"))
	assert.Equal(t, "plain", upSection("plain"))
}
