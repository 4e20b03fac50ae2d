package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/TicTacToe/internal/core"
	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/storage"
)

var errNoResult = errors.New("room has no result")

// StatsAggregator folds finished matches into per-player counters.
type StatsAggregator struct {
	store storage.StatsStore
	now   func() time.Time
}

func NewStatsAggregator(store storage.StatsStore) *StatsAggregator {
	return &StatsAggregator{store: store, now: time.Now}
}

// RecordMatch stores room and both players' deltas as one unit.
func (a *StatsAggregator) RecordMatch(ctx context.Context, room domain.Room) error {
	deltas := domain.MatchDeltas(room, a.now())
	if deltas == nil {
		return fmt.Errorf("record match %s: %w", room.ID, errNoResult)
	}
	if err := a.store.CompleteMatch(ctx, room, deltas); err != nil {
		return fmt.Errorf("record match %s: %w", room.ID, err)
	}
	log.Info().Str("module", "app.stats").Str("room_id", string(room.ID)).Str("winner", room.Winner.String()).
		Str("x", room.X.Name).Str("o", room.O.Name).Msg("match recorded")
	return nil
}

// Stats returns the player's row, or a zeroed one seen now if none exists.
func (a *StatsAggregator) Stats(ctx context.Context, name string) (domain.PlayerStats, error) {
	st, err := a.store.GetStats(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.PlayerStats{Name: name, LastSeen: a.now().UTC()}, nil
	}
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("get stats: %w", err)
	}
	return st, nil
}

var _ core.MatchRecorder = (*StatsAggregator)(nil)
