package game

import "fmt"

// Outcome is the result of evaluating a board.
type Outcome uint8

const (
	None Outcome = iota
	WinX
	WinO
	Draw
)

func (o Outcome) String() string {
	switch o {
	case WinX:
		return "X"
	case WinO:
		return "O"
	case Draw:
		return "Draw"
	default:
		return "None"
	}
}

// Winner returns the winning mark, Empty for None and Draw.
func (o Outcome) Winner() Mark {
	switch o {
	case WinX:
		return X
	case WinO:
		return O
	default:
		return Empty
	}
}

// ParseOutcome accepts the values produced by Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "None", "":
		return None, nil
	case "X":
		return WinX, nil
	case "O":
		return WinO, nil
	case "Draw":
		return Draw, nil
	}
	return None, fmt.Errorf("unknown outcome %q", s)
}

// lines are the 8 winning combinations.
var lines = [8][3]int{
	{0, 1, 2}, // rows
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6}, // columns
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8}, // diagonals
	{2, 4, 6},
}

// Evaluate reports the winner, Draw on a full board without a line, None otherwise.
func Evaluate(board Board) Outcome {
	for _, l := range lines {
		a := board[l[0]]
		if a != Empty && a == board[l[1]] && a == board[l[2]] {
			if a == X {
				return WinX
			}
			return WinO
		}
	}
	if board.Full() {
		return Draw
	}
	return None
}
