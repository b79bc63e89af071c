package bot

import (
	"errors"

	"github.com/park285/Cheese-TicTacToe-bot/internal/engine"
	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/pkg/tttdto"
)

type errorKind struct {
	target error
	code   string
	key    string
	silent bool
}

// Move errors other than an invalid cell get no chat reply.
var moveErrors = []errorKind{
	{engine.ErrInvalidMove, "invalid_move", "move.invalid", false},
	{engine.ErrNotYourTurn, "not_your_turn", "move.not_your_turn", true},
	{engine.ErrNotParticipant, "not_participant", "move.not_participant", true},
	{engine.ErrNoActiveSession, "no_active_session", "game.none", true},
}

func describe(cat *msgcat.Catalog, err error) tttdto.DomainError {
	for _, k := range moveErrors {
		if errors.Is(err, k.target) {
			return tttdto.DomainError{Code: k.code, Message: cat.Text(k.key, nil), Silent: k.silent}
		}
	}
	return tttdto.DomainError{Code: "internal", Message: cat.Text("game.busy", nil)}
}
