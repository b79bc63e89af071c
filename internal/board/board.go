package board

import (
	"errors"
	"fmt"
	"strings"
)

// Mark is the logical symbol of a cell. Display emojis live elsewhere.
type Mark uint8

const (
	Empty Mark = iota
	First
	Second
)

func (m Mark) String() string {
	switch m {
	case First:
		return "X"
	case Second:
		return "O"
	default:
		return "."
	}
}

// MarkForTurn maps a turn index (0 or 1) to the mark that player places.
func MarkForTurn(turn int) Mark {
	if turn == 1 {
		return Second
	}
	return First
}

// Cells is the number of cells on the board, indexed row-major 0..8.
const Cells = 9

// ErrInvalidMove is returned for out-of-range or occupied cells.
var ErrInvalidMove = errors.New("invalid move")

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Lines returns the eight winning triples.
func Lines() [8][3]int { return lines }

// Board is a 3x3 grid stored as a value; Apply returns a copy.
type Board [Cells]Mark

// Apply places m at index and returns the resulting board.
func (b Board) Apply(index int, m Mark) (Board, error) {
	if m == Empty {
		return b, fmt.Errorf("apply empty mark: %w", ErrInvalidMove)
	}
	if index < 0 || index >= Cells {
		return b, fmt.Errorf("cell %d out of range: %w", index, ErrInvalidMove)
	}
	if b[index] != Empty {
		return b, fmt.Errorf("cell %d occupied: %w", index, ErrInvalidMove)
	}
	b[index] = m
	return b, nil
}

// WinningLine reports the first completed line, if any.
func (b Board) WinningLine() ([3]int, bool) {
	for _, l := range lines {
		if b[l[0]] != Empty && b[l[0]] == b[l[1]] && b[l[1]] == b[l[2]] {
			return l, true
		}
	}
	return [3]int{}, false
}

// Winner reports whether any line holds three identical non-empty marks.
func (b Board) Winner() bool {
	_, ok := b.WinningLine()
	return ok
}

// WinningMark returns the mark on the completed line or Empty.
func (b Board) WinningMark() Mark {
	if l, ok := b.WinningLine(); ok {
		return b[l[0]]
	}
	return Empty
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

// IsDraw is true when the board is full without a winning line.
func (b Board) IsDraw() bool { return b.Full() && !b.Winner() }

// EmptyCells lists the free indices in ascending order.
func (b Board) EmptyCells() []int {
	out := make([]int, 0, Cells)
	for i, c := range b {
		if c == Empty {
			out = append(out, i)
		}
	}
	return out
}

// Count returns how many cells hold m.
func (b Board) Count(m Mark) int {
	n := 0
	for _, c := range b {
		if c == m {
			n++
		}
	}
	return n
}

func (b Board) String() string {
	var sb strings.Builder
	for i, c := range b {
		sb.WriteString(c.String())
		if i%3 == 2 && i != Cells-1 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// Parse reads a 9-character layout of X, O and '.' (slashes and spaces ignored).
func Parse(s string) (Board, error) {
	var b Board
	i := 0
	for _, r := range s {
		switch r {
		case '/', ' ', '\n':
			continue
		}
		if i >= Cells {
			return Board{}, fmt.Errorf("layout %q longer than %d cells", s, Cells)
		}
		switch r {
		case 'X', 'x':
			b[i] = First
		case 'O', 'o':
			b[i] = Second
		case '.', '_', '-':
			b[i] = Empty
		default:
			return Board{}, fmt.Errorf("layout %q: unexpected %q", s, r)
		}
		i++
	}
	if i != Cells {
		return Board{}, fmt.Errorf("layout %q has %d cells", s, i)
	}
	return b, nil
}

// CellFromKey converts the user-facing 1..9 key into a 0..8 index.
func CellFromKey(key string) (int, bool) {
	key = strings.TrimSpace(key)
	if len(key) != 1 || key[0] < '1' || key[0] > '9' {
		return 0, false
	}
	return int(key[0] - '1'), true
}
