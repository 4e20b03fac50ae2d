// Package redisstore keeps rooms and player stats in Redis.
//
// Key layout:
//
//	tictac:room:<id>        JSON room record
//	tictac:rooms:<status>   ZSET of room ids scored by creation time (ms)
//	tictac:stats:<name>     HASH of counters and last_seen
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
	"github.com/dkeye/TicTacToe/internal/storage"
)

const (
	keyPrefix = "tictac:"
	// maxRetries bounds optimistic WATCH retries on contended keys.
	maxRetries = 16
)

type Store struct {
	rdb *redis.Client
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// New wraps an existing client. The Store takes ownership of it.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) Close() error { return s.rdb.Close() }

func roomKey(id domain.RoomID) string { return keyPrefix + "room:" + string(id) }

func statusKey(st domain.Status) string { return keyPrefix + "rooms:" + st.String() }

func statsKey(name string) string { return keyPrefix + "stats:" + name }

// record is the stored JSON shape.
type record struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	Status    string `json:"status"`
	XName     string `json:"xName"`
	OName     string `json:"oName,omitempty"`
	XConn     string `json:"xConn,omitempty"`
	OConn     string `json:"oConn,omitempty"`
	Board     string `json:"board"`
	Turn      string `json:"turn"`
	Winner    string `json:"winner"`
	RematchX  bool   `json:"rematchX,omitempty"`
	RematchO  bool   `json:"rematchO,omitempty"`
	Version   uint64 `json:"version"`
}

func toRecord(r domain.Room) record {
	return record{
		ID:        string(r.ID),
		CreatedAt: r.CreatedAt.UTC().UnixMilli(),
		Status:    r.Status.String(),
		XName:     r.X.Name,
		OName:     r.O.Name,
		XConn:     string(r.X.Conn),
		OConn:     string(r.O.Conn),
		Board:     r.Board.String(),
		Turn:      r.Turn.String(),
		Winner:    r.Winner.String(),
		RematchX:  r.RematchX,
		RematchO:  r.RematchO,
		Version:   r.Version,
	}
}

func (rec record) room() (domain.Room, error) {
	r := domain.Room{
		ID:        domain.RoomID(rec.ID),
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
		X:         domain.Seat{Name: rec.XName, Conn: domain.ConnID(rec.XConn)},
		O:         domain.Seat{Name: rec.OName, Conn: domain.ConnID(rec.OConn)},
		RematchX:  rec.RematchX,
		RematchO:  rec.RematchO,
		Version:   rec.Version,
	}
	var err error
	if r.Status, err = domain.ParseStatus(rec.Status); err != nil {
		return domain.Room{}, err
	}
	if r.Board, err = game.ParseBoard(rec.Board); err != nil {
		return domain.Room{}, err
	}
	if r.Turn, err = game.ParseMark(rec.Turn); err != nil {
		return domain.Room{}, err
	}
	if r.Winner, err = game.ParseOutcome(rec.Winner); err != nil {
		return domain.Room{}, err
	}
	return r, nil
}

func decodeRoom(raw []byte) (domain.Room, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Room{}, fmt.Errorf("decode room: %w", err)
	}
	return rec.room()
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	raw, err := json.Marshal(toRecord(room))
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	key := roomKey(room.ID)
	return s.retry(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("create room %s: %w", room.ID, storage.ErrAlreadyExists)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.ZAdd(ctx, statusKey(room.Status), redis.Z{Score: float64(room.CreatedAt.UnixMilli()), Member: string(room.ID)})
			return nil
		})
		return err
	}, key)
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	raw, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", id, err)
	}
	return decodeRoom(raw)
}

func (s *Store) ListRooms(ctx context.Context, status domain.Status, limit int) ([]domain.Room, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	// Equal scores come back in reverse lexicographic order, matching id DESC.
	ids, err := s.rdb.ZRevRange(ctx, statusKey(status), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(domain.RoomID(id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]domain.Room, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		r, err := decodeRoom([]byte(str))
		if err != nil {
			return nil, err
		}
		// The index can briefly lag a concurrent status move.
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) SaveRoom(ctx context.Context, room domain.Room) error {
	return s.update(ctx, room, nil)
}

func (s *Store) GetStats(ctx context.Context, name string) (domain.PlayerStats, error) {
	m, err := s.rdb.HGetAll(ctx, statsKey(name)).Result()
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("get stats %s: %w", name, err)
	}
	if len(m) == 0 {
		return domain.PlayerStats{}, storage.ErrNotFound
	}
	st := domain.PlayerStats{Name: name}
	for field, dst := range map[string]*int{
		"games_played": &st.GamesPlayed,
		"wins":         &st.Wins,
		"losses":       &st.Losses,
		"draws":        &st.Draws,
	} {
		if *dst, err = atoi(m[field]); err != nil {
			return domain.PlayerStats{}, fmt.Errorf("stats %s field %s: %w", name, field, err)
		}
	}
	ms, err := strconv.ParseInt(m["last_seen"], 10, 64)
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("stats %s field last_seen: %w", name, err)
	}
	st.LastSeen = time.UnixMilli(ms).UTC()
	return st, nil
}

// CompleteMatch writes the room and increments both stats hashes inside one
// MULTI/EXEC block.
func (s *Store) CompleteMatch(ctx context.Context, room domain.Room, deltas []domain.StatsDelta) error {
	return s.update(ctx, room, deltas)
}

func (s *Store) update(ctx context.Context, room domain.Room, deltas []domain.StatsDelta) error {
	raw, err := json.Marshal(toRecord(room))
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	key := roomKey(room.ID)
	return s.retry(ctx, func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("save room %s: %w", room.ID, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}
		old, err := decodeRoom(prev)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			if old.Status != room.Status {
				pipe.ZRem(ctx, statusKey(old.Status), string(room.ID))
				pipe.ZAdd(ctx, statusKey(room.Status), redis.Z{Score: float64(room.CreatedAt.UnixMilli()), Member: string(room.ID)})
			}
			for _, d := range deltas {
				k := statsKey(d.Name)
				pipe.HIncrBy(ctx, k, "games_played", 1)
				pipe.HIncrBy(ctx, k, "wins", int64(d.Wins))
				pipe.HIncrBy(ctx, k, "losses", int64(d.Losses))
				pipe.HIncrBy(ctx, k, "draws", int64(d.Draws))
				pipe.HSet(ctx, k, "last_seen", d.SeenAt.UTC().UnixMilli())
			}
			return nil
		})
		return err
	}, key)
}

// retry runs fn under WATCH keys, retrying when another client touched them.
func (s *Store) retry(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %v: too much contention", keys)
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

var _ storage.Store = (*Store)(nil)
