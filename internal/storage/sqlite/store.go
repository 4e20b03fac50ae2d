// Package sqlite provides a SQLite-backed storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/dkeye/TicTacToe/internal/domain"
	"github.com/dkeye/TicTacToe/internal/game"
	"github.com/dkeye/TicTacToe/internal/storage"
	"github.com/dkeye/TicTacToe/internal/storage/sqlite/migrations"
)

// Store persists rooms and player stats in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; CompleteMatch transactions serialize with readers.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const roomColumns = `id, created_at, status, player_x_name, player_o_name, player_x_conn, player_o_conn,
	board, turn, winner, rematch_x, rematch_o, version`

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(room.ID),
		toMillis(room.CreatedAt),
		room.Status.String(),
		room.X.Name,
		room.O.Name,
		string(room.X.Conn),
		string(room.O.Conn),
		room.Board.String(),
		room.Turn.String(),
		room.Winner.String(),
		room.RematchX,
		room.RematchO,
		int64(room.Version),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create room %s: %w", room.ID, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, string(id))
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", id, err)
	}
	return room, nil
}

func (s *Store) ListRooms(ctx context.Context, status domain.Status, limit int) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		status.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return out, nil
}

func (s *Store) SaveRoom(ctx context.Context, room domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return saveRoom(ctx, s.sqlDB, room)
}

func (s *Store) GetStats(ctx context.Context, name string) (domain.PlayerStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.PlayerStats{}, err
	}
	var (
		st       domain.PlayerStats
		lastSeen int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, games_played, wins, losses, draws, last_seen FROM player_stats WHERE name = ?`, name,
	).Scan(&st.Name, &st.GamesPlayed, &st.Wins, &st.Losses, &st.Draws, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlayerStats{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.PlayerStats{}, fmt.Errorf("get stats %s: %w", name, err)
	}
	st.LastSeen = fromMillis(lastSeen)
	return st, nil
}

// CompleteMatch writes the room and both stats rows in one transaction.
func (s *Store) CompleteMatch(ctx context.Context, room domain.Room, deltas []domain.StatsDelta) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete match: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = saveRoom(ctx, tx, room); err != nil {
		return err
	}
	for _, d := range deltas {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO player_stats (name, games_played, wins, losses, draws, last_seen)
			 VALUES (?, 1, ?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
			   games_played = games_played + 1,
			   wins = wins + excluded.wins,
			   losses = losses + excluded.losses,
			   draws = draws + excluded.draws,
			   last_seen = excluded.last_seen`,
			d.Name, d.Wins, d.Losses, d.Draws, toMillis(d.SeenAt),
		)
		if err != nil {
			return fmt.Errorf("apply stats %s: %w", d.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit complete match: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveRoom(ctx context.Context, db execer, room domain.Room) error {
	res, err := db.ExecContext(ctx,
		`UPDATE rooms SET
		   status = ?, player_x_name = ?, player_o_name = ?, player_x_conn = ?, player_o_conn = ?,
		   board = ?, turn = ?, winner = ?, rematch_x = ?, rematch_o = ?, version = ?
		 WHERE id = ?`,
		room.Status.String(),
		room.X.Name,
		room.O.Name,
		string(room.X.Conn),
		string(room.O.Conn),
		room.Board.String(),
		room.Turn.String(),
		room.Winner.String(),
		room.RematchX,
		room.RematchO,
		int64(room.Version),
		string(room.ID),
	)
	if err != nil {
		return fmt.Errorf("save room %s: %w", room.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save room %s: %w", room.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("save room %s: %w", room.ID, storage.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (domain.Room, error) {
	var (
		id, status, xName, oName, xConn, oConn string
		board, turn, winner                    string
		createdAt, version                     int64
		rematchX, rematchO                     bool
	)
	if err := row.Scan(&id, &createdAt, &status, &xName, &oName, &xConn, &oConn,
		&board, &turn, &winner, &rematchX, &rematchO, &version); err != nil {
		return domain.Room{}, err
	}

	room := domain.Room{
		ID:        domain.RoomID(id),
		CreatedAt: fromMillis(createdAt),
		X:         domain.Seat{Name: xName, Conn: domain.ConnID(xConn)},
		O:         domain.Seat{Name: oName, Conn: domain.ConnID(oConn)},
		RematchX:  rematchX,
		RematchO:  rematchO,
		Version:   uint64(version),
	}
	var err error
	if room.Status, err = domain.ParseStatus(status); err != nil {
		return domain.Room{}, err
	}
	if room.Board, err = game.ParseBoard(board); err != nil {
		return domain.Room{}, err
	}
	if room.Turn, err = game.ParseMark(turn); err != nil {
		return domain.Room{}, err
	}
	if room.Winner, err = game.ParseOutcome(winner); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
