package domain

import "time"

// PublicRoom is the externally visible projection of a Room.
type PublicRoom struct {
	ID                  RoomID    `json:"id"`
	CreatedAt           time.Time `json:"createdAt"`
	Status              string    `json:"status"`
	PlayerXName         string    `json:"playerXName"`
	PlayerOName         *string   `json:"playerOName"`
	Board               string    `json:"board"`
	Turn                string    `json:"turn"`
	Winner              string    `json:"winner"`
	PlayerXWantsRematch bool      `json:"playerXWantsRematch"`
	PlayerOWantsRematch bool      `json:"playerOWantsRematch"`
	PlayerXConnected    bool      `json:"playerXConnected"`
	PlayerOConnected    bool      `json:"playerOConnected"`
	PlayerXConnectionID ConnID    `json:"playerXConnectionId,omitempty"`
	PlayerOConnectionID ConnID    `json:"playerOConnectionId,omitempty"`
	Version             uint64    `json:"version"`
}

func (r Room) Public() PublicRoom {
	p := PublicRoom{
		ID:                  r.ID,
		CreatedAt:           r.CreatedAt,
		Status:              r.Status.String(),
		PlayerXName:         r.X.Name,
		Board:               r.Board.String(),
		Turn:                r.Turn.String(),
		Winner:              r.Winner.String(),
		PlayerXWantsRematch: r.RematchX,
		PlayerOWantsRematch: r.RematchO,
		PlayerXConnected:    r.X.Connected(),
		PlayerOConnected:    r.O.Connected(),
		PlayerXConnectionID: r.X.Conn,
		PlayerOConnectionID: r.O.Conn,
		Version:             r.Version,
	}
	if r.O.Taken() {
		name := r.O.Name
		p.PlayerOName = &name
	}
	return p
}
