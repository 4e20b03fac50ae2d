// Package game holds the tic-tac-toe rules: pure functions over a 9-cell board.
package game

import (
	"errors"
	"fmt"
)

const Cells = 9

var (
	ErrInvalidCell = errors.New("invalid cell")
	ErrCellTaken   = errors.New("cell is taken")
	ErrBadBoard    = errors.New("malformed board")
)

// Mark is the content of a cell and also names a seat.
type Mark uint8

const (
	Empty Mark = iota
	X
	O
)

func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return "None"
	}
}

// Other returns the opposing mark. Empty maps to Empty.
func (m Mark) Other() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// ParseMark accepts "X" or "O".
func ParseMark(s string) (Mark, error) {
	switch s {
	case "X":
		return X, nil
	case "O":
		return O, nil
	}
	return Empty, fmt.Errorf("unknown mark %q", s)
}

// Board is the 3x3 grid, row-major.
type Board [Cells]Mark

// String encodes the board as nine digits: 0 empty, 1 X, 2 O.
func (b Board) String() string {
	buf := make([]byte, Cells)
	for i, c := range b {
		buf[i] = '0' + byte(c)
	}
	return string(buf)
}

// ParseBoard is the inverse of Board.String.
func ParseBoard(s string) (Board, error) {
	var b Board
	if len(s) != Cells {
		return b, fmt.Errorf("%w: length %d", ErrBadBoard, len(s))
	}
	for i := 0; i < Cells; i++ {
		switch s[i] {
		case '0':
			b[i] = Empty
		case '1':
			b[i] = X
		case '2':
			b[i] = O
		default:
			return Board{}, fmt.Errorf("%w: cell %d is %q", ErrBadBoard, i, s[i])
		}
	}
	return b, nil
}

// Full reports whether no cell is empty.
func (b Board) Full() bool {
	for _, c := range b {
		if c == Empty {
			return false
		}
	}
	return true
}

// ApplyMove returns a copy of board with cell set to mark.
func ApplyMove(board Board, cell int, mark Mark) (Board, error) {
	if cell < 0 || cell >= Cells {
		return board, fmt.Errorf("%w: %d", ErrInvalidCell, cell)
	}
	if board[cell] != Empty {
		return board, fmt.Errorf("%w: %d", ErrCellTaken, cell)
	}
	next := board
	next[cell] = mark
	return next, nil
}
