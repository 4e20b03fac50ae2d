package core

import "github.com/dkeye/TicTacToe/internal/domain"

// Frame is one encoded outbound event.
type Frame []byte

// SignalConnection abstracts the real-time transport of one client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend must not block; a full buffer is reported as an error.
	TrySend(Frame) error
	Close()
}

// PlayerSession binds a connection id and a display name to its transport.
// This is what a room's broadcast group stores and fans out to.
type PlayerSession interface {
	ConnID() domain.ConnID
	Name() string
	Signal() SignalConnection
	WithName(name string) PlayerSession
}
