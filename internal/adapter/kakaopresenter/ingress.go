package kakaopresenter

import (
	"context"
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/bot"
	"github.com/park285/Cheese-TicTacToe-bot/internal/irisfast"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"go.uber.org/zap"
)

// ToMessage converts an iris event. Events without text or sender are dropped.
func ToMessage(msg *irisfast.Message) (bot.Message, bool) {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" || strings.TrimSpace(msg.Room) == "" {
		return bot.Message{}, false
	}
	id := msg.UserID()
	if id == "" {
		return bot.Message{}, false
	}
	return bot.Message{
		Chat: strings.TrimSpace(msg.Room),
		User: session.Identity{ID: id, Name: msg.SenderName()},
		Text: msg.Msg,
	}, true
}

// Attach routes websocket events into r. Each event is handled on its own
// goroutine so a paced bot reply never blocks the read loop.
func Attach(ctx context.Context, ws irisfast.WSClient, r *bot.Router) int {
	return ws.OnMessage(func(msg *irisfast.Message) {
		m, ok := ToMessage(msg)
		if !ok {
			return
		}
		if !r.Allowed(m.Chat) {
			obslog.L().Debug("iris_room_ignored", zap.String("room", m.Chat))
			return
		}
		go r.HandleText(ctx, m)
	})
}
