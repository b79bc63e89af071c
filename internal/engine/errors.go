package engine

import (
	"errors"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
)

var (
	ErrInvalidMove      = board.ErrInvalidMove
	ErrNotYourTurn      = errors.New("not your turn")
	ErrNoActiveSession  = errors.New("no active game")
	ErrAlreadyJoined    = errors.New("already joined")
	ErrSessionFull      = errors.New("game already has 2 players")
	ErrNotEnoughPlayers = errors.New("need 2 players to start")
	ErrNotParticipant   = errors.New("not a participant")
	ErrAlreadyStarted   = errors.New("game already in progress")
)
