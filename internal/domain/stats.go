package domain

import (
	"time"

	"github.com/dkeye/TicTacToe/internal/game"
)

// PlayerStats is the per-name scoreboard row.
type PlayerStats struct {
	Name        string    `json:"name"`
	GamesPlayed int       `json:"gamesPlayed"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	LastSeen    time.Time `json:"lastSeen"`
}

// StatsDelta is one player's share of a completed match.
// GamesPlayed always grows by one.
type StatsDelta struct {
	Name   string
	Wins   int
	Losses int
	Draws  int
	SeenAt time.Time
}

// Apply adds d to s.
func (s PlayerStats) Apply(d StatsDelta) PlayerStats {
	s.Name = d.Name
	s.GamesPlayed++
	s.Wins += d.Wins
	s.Losses += d.Losses
	s.Draws += d.Draws
	s.LastSeen = d.SeenAt.UTC()
	return s
}

// MatchDeltas derives the two stats deltas for a finished room.
// It returns nil unless the room is Finished with a real outcome.
func MatchDeltas(r Room, now time.Time) []StatsDelta {
	if r.Status != StatusFinished || r.Winner == game.None {
		return nil
	}
	x := StatsDelta{Name: r.X.Name, SeenAt: now}
	o := StatsDelta{Name: r.O.Name, SeenAt: now}
	switch r.Winner {
	case game.WinX:
		x.Wins, o.Losses = 1, 1
	case game.WinO:
		o.Wins, x.Losses = 1, 1
	case game.Draw:
		x.Draws, o.Draws = 1, 1
	}
	return []StatsDelta{x, o}
}
