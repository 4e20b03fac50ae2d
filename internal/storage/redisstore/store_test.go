package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/storage"
	"github.com/dkeye/TicTacToe/internal/storage/storetest"
)

// startRedis runs a throwaway redis container, skipping when Docker is absent.
func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in -short mode")
	}
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func TestStore(t *testing.T) {
	addr := startRedis(t)
	storetest.Run(t, func(t *testing.T) storage.Store {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		require.NoError(t, rdb.FlushDB(context.Background()).Err())
		s := New(rdb)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenAndStatusIndex(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	s, err := Open(ctx, "redis://"+addr+"/1")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	room := domain.NewRoom("idx00001", "Ann", time.Now())
	require.NoError(t, s.CreateRoom(ctx, room))
	room.Status = domain.StatusAbandoned
	require.NoError(t, s.SaveRoom(ctx, room))

	n, err := s.rdb.ZCard(ctx, statusKey(domain.StatusWaiting)).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "room left the waiting index")
	n, err = s.rdb.ZCard(ctx, statusKey(domain.StatusAbandoned)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpenBadURL(t *testing.T) {
	_, err := Open(context.Background(), "not a url")
	assert.Error(t, err)
}
