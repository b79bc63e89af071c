package engine

import (
	"math/rand/v2"
	"sync"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
)

// MoveChooser picks the bot's cell. It is only called on boards with at
// least one empty cell.
type MoveChooser interface {
	ChooseMove(b board.Board) int
}

// RandomChooser picks uniformly among empty cells.
type RandomChooser struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomChooser(seed uint64) *RandomChooser {
	return &RandomChooser{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (c *RandomChooser) ChooseMove(b board.Board) int {
	free := b.EmptyCells()
	if len(free) == 0 {
		return -1
	}
	c.mu.Lock()
	i := c.rng.IntN(len(free))
	c.mu.Unlock()
	return free[i]
}

// ChooserFunc adapts a plain function.
type ChooserFunc func(b board.Board) int

func (f ChooserFunc) ChooseMove(b board.Board) int { return f(b) }
