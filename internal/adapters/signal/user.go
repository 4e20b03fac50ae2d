package signal

import (
	"github.com/dkeye/TicTacToe/internal/app/orch"
	"github.com/dkeye/TicTacToe/internal/domain"
)

// handleWhoAmI reports the connection id, the remembered name and the seat
// held in every room the connection joined.
func (ctl *SignalWSController) handleWhoAmI(
	id domain.ConnID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type         string                   `json:"type"`
		ConnectionID domain.ConnID            `json:"connectionId"`
		PlayerName   string                   `json:"playerName,omitempty"`
		Seats        map[domain.RoomID]string `json:"seats"`
	}{
		Type:         orch.EventWhoAmI,
		ConnectionID: id,
		Seats:        make(map[domain.RoomID]string),
	}
	if ps, ok := ctl.Orch.Registry.GetSession(id); ok {
		resp.PlayerName = ps.Name()
	}
	for _, room := range ctl.Orch.Registry.RoomsOf(id) {
		resp.Seats[room] = ctl.Orch.Registry.SeatIn(id, room).String()
	}
	ctl.sendJSON(conn, resp)
}
