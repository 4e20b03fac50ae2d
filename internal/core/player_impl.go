package core

import "github.com/dkeye/TicTacToe/internal/domain"

// playerSession implements PlayerSession. It is immutable; WithName copies.
type playerSession struct {
	id   domain.ConnID
	name string
	sig  SignalConnection
}

func NewPlayerSession(id domain.ConnID, name string, sig SignalConnection) PlayerSession {
	return &playerSession{id: id, name: name, sig: sig}
}

func (p *playerSession) ConnID() domain.ConnID    { return p.id }
func (p *playerSession) Name() string             { return p.name }
func (p *playerSession) Signal() SignalConnection { return p.sig }

func (p *playerSession) WithName(name string) PlayerSession {
	return &playerSession{id: p.id, name: name, sig: p.sig}
}
