package render

import (
	"fmt"
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
)

const (
	gridColor   = "#5b6280"
	firstColor  = "#ff6b6b"
	secondColor = "#4dabf7"
	winColor    = "#ffd43b"
	boardFill   = "#1c1f2e"
	lastFill    = "#ffe478"
)

// boardSVG returns an SVG document of size x size for b. lastCell < 0
// disables the last-move highlight.
func boardSVG(b board.Board, size int, lastCell int) string {
	cell := float64(size) / 3
	pad := cell * 0.24
	stroke := cell * 0.11

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, size, size, size, size)
	fmt.Fprintf(&sb, `<rect x="0" y="0" width="%d" height="%d" rx="16" ry="16" fill="%s"/>`, size, size, boardFill)

	if lastCell >= 0 && lastCell < board.Cells {
		x, y := float64(lastCell%3)*cell, float64(lastCell/3)*cell
		fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" fill-opacity="0.18"/>`, x+4, y+4, cell-8, cell-8, lastFill)
	}

	inset := cell * 0.1
	for i := 1; i < 3; i++ {
		p := float64(i) * cell
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="6" stroke-linecap="round"/>`, p, inset, p, float64(size)-inset, gridColor)
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="6" stroke-linecap="round"/>`, inset, p, float64(size)-inset, p, gridColor)
	}

	for i, m := range b {
		x0, y0 := float64(i%3)*cell, float64(i/3)*cell
		switch m {
		case board.First:
			fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f" stroke-linecap="round"/>`,
				x0+pad, y0+pad, x0+cell-pad, y0+cell-pad, firstColor, stroke)
			fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="%.1f" stroke-linecap="round"/>`,
				x0+cell-pad, y0+pad, x0+pad, y0+cell-pad, firstColor, stroke)
		case board.Second:
			fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="none" stroke="%s" stroke-width="%.1f"/>`,
				x0+cell/2, y0+cell/2, cell/2-pad, secondColor, stroke)
		}
	}

	if l, ok := b.WinningLine(); ok {
		cx := func(i int) float64 { return float64(i%3)*cell + cell/2 }
		cy := func(i int) float64 { return float64(i/3)*cell + cell/2 }
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-opacity="0.85" stroke-width="%.1f" stroke-linecap="round"/>`,
			cx(l[0]), cy(l[0]), cx(l[2]), cy(l[2]), winColor, stroke*0.8)
	}

	sb.WriteString(`</svg>`)
	return sb.String()
}
