package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/bot"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// Commands handled by the router; each is registered as /name.
var Commands = []string{
	"start", "help", "join", "leave", "new", "solo", "end", "reset",
	"status", "leaderboard", "top", "mystats", "history", "emoji",
}

// NewBot creates a long-polling telebot instance.
func NewBot(token string) (*tele.Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			obslog.L().Error("telegram_handler_error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return b, nil
}

// Register wires commands, digit messages and board buttons into r.
func Register(ctx context.Context, b *tele.Bot, r *bot.Router) {
	b.Use(LoggingMiddleware())
	for _, name := range Commands {
		name := name
		b.Handle("/"+name, func(c tele.Context) error {
			m, ok := ToMessage(c)
			if !ok {
				return nil
			}
			r.HandleCommand(ctx, m, name, c.Args())
			return nil
		})
	}
	b.Handle(tele.OnText, func(c tele.Context) error {
		m, ok := ToMessage(c)
		if !ok {
			return nil
		}
		r.HandleText(ctx, m)
		return nil
	})
	b.Handle(tele.OnCallback, func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: HandleCallback(ctx, r, c)})
	})
}

// HandleCallback returns the notice for a pressed button.
func HandleCallback(ctx context.Context, r *bot.Router, c tele.Context) string {
	cb := c.Callback()
	if cb == nil {
		return ""
	}
	data := strings.TrimPrefix(cb.Data, "\f")
	if data == callbackDone || !strings.HasPrefix(data, CallbackPrefix) {
		return ""
	}
	m, ok := ToMessage(c)
	if !ok {
		return ""
	}
	return r.HandlePress(ctx, m, strings.TrimPrefix(data, CallbackPrefix))
}

// ToMessage extracts chat and sender from an update.
func ToMessage(c tele.Context) (bot.Message, bool) {
	chat, user := c.Chat(), c.Sender()
	if chat == nil || user == nil || user.IsBot {
		return bot.Message{}, false
	}
	return bot.Message{
		Chat: strconv.FormatInt(chat.ID, 10),
		User: session.Identity{ID: strconv.FormatInt(user.ID, 10), Name: DisplayName(user)},
		Text: c.Text(),
	}, true
}

// DisplayName prefers the full name, then the username, then the id.
func DisplayName(u *tele.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

// LoggingMiddleware logs every update at debug level.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			fields := []zap.Field{zap.String("text", c.Text())}
			if chat := c.Chat(); chat != nil {
				fields = append(fields, zap.Int64("chat", chat.ID))
			}
			if u := c.Sender(); u != nil {
				fields = append(fields, zap.Int64("user_id", u.ID))
			}
			obslog.L().Debug("telegram_update", fields...)
			return next(c)
		}
	}
}
