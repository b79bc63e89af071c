package render

import (
	"strconv"
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
)

// CellLabel is what a cell shows to players: the player's mark, or the
// 1-based key to type when empty.
func CellLabel(b board.Board, i int, symbols [2]string) string {
	switch b[i] {
	case board.First:
		return symbols[0]
	case board.Second:
		return symbols[1]
	default:
		return strconv.Itoa(i + 1)
	}
}

// Text draws the board as three lines for chat transports.
func Text(b board.Board, symbols [2]string) string {
	var sb strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for col := 0; col < 3; col++ {
			if col > 0 {
				sb.WriteString(" | ")
			}
			sb.WriteString(CellLabel(b, row*3+col, symbols))
		}
	}
	return sb.String()
}
