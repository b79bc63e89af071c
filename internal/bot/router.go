// Package bot maps chat commands, digit moves and button presses onto the
// engine and reports the results through a transport Replier.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/park285/Cheese-TicTacToe-bot/internal/engine"
	"github.com/park285/Cheese-TicTacToe-bot/internal/marks"
	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/render"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/park285/Cheese-TicTacToe-bot/internal/stats"
	"github.com/park285/Cheese-TicTacToe-bot/internal/util"
	"github.com/park285/Cheese-TicTacToe-bot/pkg/tttdto"
	"go.uber.org/zap"
)

// Message is one inbound chat event.
type Message struct {
	Chat string
	User session.Identity
	Text string
}

// Replier is implemented by each transport.
type Replier interface {
	SendText(ctx context.Context, chat, text string) error
	SendPhoto(ctx context.Context, chat string, png []byte, caption string) error
	SendBoard(ctx context.Context, chat, caption string, st *tttdto.SessionState) error
}

type Config struct {
	Prefix          string
	AllowedRooms    []string
	LeaderboardSize int
	HistoryLimit    int
	WelcomeImage    []byte
	// SeeMore folds long lists behind KakaoTalk's "see more" fold.
	SeeMore bool
}

type Router struct {
	eng      *engine.Engine
	sink     stats.Sink
	marks    *marks.Registry
	cat      *msgcat.Catalog
	renderer render.BoardRenderer
	out      Replier
	cfg      Config
	allowed  map[string]struct{}
	now      func() time.Time
}

type Option func(*Router)

// WithRenderer attaches PNG board images to board replies.
func WithRenderer(br render.BoardRenderer) Option { return func(r *Router) { r.renderer = br } }

// WithNow sets the clock used for the "today" leaderboard.
func WithNow(now func() time.Time) Option { return func(r *Router) { r.now = now } }

func NewRouter(eng *engine.Engine, sink stats.Sink, reg *marks.Registry, cat *msgcat.Catalog, out Replier, cfg Config, opts ...Option) *Router {
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 10
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	r := &Router{
		eng:   eng,
		sink:  sink,
		marks: reg,
		cat:   cat,
		out:   out,
		cfg:   cfg,
		now:   time.Now,
	}
	if len(cfg.AllowedRooms) > 0 {
		r.allowed = make(map[string]struct{}, len(cfg.AllowedRooms))
		for _, room := range cfg.AllowedRooms {
			r.allowed[room] = struct{}{}
		}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Allowed reports whether chat passes the room filter.
func (r *Router) Allowed(chat string) bool {
	if r.allowed == nil {
		return true
	}
	_, ok := r.allowed[chat]
	return ok
}

// HandleText routes a plain chat line: prefixed commands and bare 1-9 moves.
// Anything else is ignored.
func (r *Router) HandleText(ctx context.Context, m Message) {
	if !r.Allowed(m.Chat) {
		return
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if cell, ok := board.CellFromKey(text); ok {
		r.textMove(ctx, m, cell)
		return
	}
	if r.cfg.Prefix == "" || !strings.HasPrefix(text, r.cfg.Prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(text, r.cfg.Prefix))
	if len(fields) == 0 {
		r.HandleCommand(ctx, m, "help", nil)
		return
	}
	r.HandleCommand(ctx, m, fields[0], fields[1:])
}

// HandleCommand runs a command whose name has already been split off.
func (r *Router) HandleCommand(ctx context.Context, m Message, name string, args []string) {
	if !r.Allowed(m.Chat) {
		return
	}
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	obslog.L().Debug("ttt_command", zap.String("chat", m.Chat), zap.String("user_id", m.User.ID), zap.String("command", name))

	switch name {
	case "start":
		r.welcome(ctx, m)
	case "help":
		r.reply(ctx, m.Chat, "help", nil)
	case "join":
		r.join(ctx, m)
	case "leave":
		r.leave(ctx, m)
	case "new":
		r.start(ctx, m)
	case "solo":
		r.solo(ctx, m)
	case "end":
		r.end(ctx, m)
	case "reset":
		r.reset(ctx, m)
	case "status":
		r.status(ctx, m)
	case "leaderboard", "top":
		today := len(args) > 0 && strings.EqualFold(args[0], "today")
		r.leaderboard(ctx, m, today)
	case "mystats", "stats":
		r.myStats(ctx, m)
	case "history":
		r.history(ctx, m)
	case "emoji":
		r.emoji(ctx, m, args)
	default:
		r.reply(ctx, m.Chat, "unknown", nil)
	}
}

// HandlePress applies a board button press and returns a short notice for
// the presser, empty when the move was accepted.
func (r *Router) HandlePress(ctx context.Context, m Message, payload string) string {
	if !r.Allowed(m.Chat) {
		return ""
	}
	key, cell, err := ParsePayload(payload)
	if err != nil || (key != m.Chat && !strings.HasPrefix(key, m.Chat+":")) {
		return r.cat.Text("move.invalid", nil)
	}
	if err := r.move(ctx, m, key, cell); err != nil {
		return describe(r.cat, err).Message
	}
	return ""
}

// NotifyTimeout is installed as the engine's timeout handler.
func (r *Router) NotifyTimeout(ctx context.Context, ended *session.Session, idle session.Identity) {
	r.reply(ctx, ended.Chat, "game.timeout", map[string]any{"Name": idle.Name})
}

func (r *Router) data(extra map[string]any) map[string]any {
	d := map[string]any{"Prefix": r.cfg.Prefix}
	for k, v := range extra {
		d[k] = v
	}
	return d
}

func (r *Router) reply(ctx context.Context, chat, key string, extra map[string]any) {
	r.send(ctx, chat, r.cat.Text(key, r.data(extra)))
}

func (r *Router) send(ctx context.Context, chat, text string) {
	if err := r.out.SendText(ctx, chat, text); err != nil {
		obslog.L().Warn("ttt_send_error", zap.String("chat", chat), zap.Error(err))
	}
}

func (r *Router) sendBoard(ctx context.Context, s *session.Session, caption string, lastCell int, footer string) {
	if err := r.out.SendBoard(ctx, s.Chat, caption, r.view(ctx, s, lastCell, footer)); err != nil {
		obslog.L().Warn("ttt_send_error", zap.String("chat", s.Chat), zap.String("key", s.Key), zap.Error(err))
	}
}

func (r *Router) fail(ctx context.Context, chat, op string, err error) {
	obslog.L().Error("ttt_command_error", zap.String("chat", chat), zap.String("op", op), zap.Error(err))
	r.reply(ctx, chat, "game.busy", nil)
}

func (r *Router) welcome(ctx context.Context, m Message) {
	text := r.cat.Text("welcome", r.data(nil))
	if len(r.cfg.WelcomeImage) > 0 {
		err := r.out.SendPhoto(ctx, m.Chat, r.cfg.WelcomeImage, text)
		if err == nil {
			return
		}
		obslog.L().Warn("ttt_welcome_photo_error", zap.String("chat", m.Chat), zap.Error(err))
	}
	r.send(ctx, m.Chat, text)
}

func (r *Router) join(ctx context.Context, m Message) {
	s, err := r.eng.Join(ctx, m.Chat, m.User)
	switch {
	case err == nil && len(s.Players) >= 2:
		r.reply(ctx, m.Chat, "join.ready", nil)
	case err == nil:
		r.reply(ctx, m.Chat, "join.joined", map[string]any{"Name": m.User.Name})
	case errors.Is(err, engine.ErrAlreadyJoined):
		r.reply(ctx, m.Chat, "join.already", nil)
	case errors.Is(err, engine.ErrSessionFull):
		r.reply(ctx, m.Chat, "join.full", nil)
	default:
		r.fail(ctx, m.Chat, "join", err)
	}
}

func (r *Router) leave(ctx context.Context, m Message) {
	_, err := r.eng.Leave(ctx, m.Chat, m.User)
	switch {
	case err == nil:
		r.reply(ctx, m.Chat, "leave.left", map[string]any{"Name": m.User.Name})
	case errors.Is(err, engine.ErrAlreadyStarted):
		r.reply(ctx, m.Chat, "leave.started", nil)
	case errors.Is(err, engine.ErrNotParticipant), errors.Is(err, engine.ErrNoActiveSession):
		r.reply(ctx, m.Chat, "leave.not_joined", nil)
	default:
		r.fail(ctx, m.Chat, "leave", err)
	}
}

func (r *Router) start(ctx context.Context, m Message) {
	s, err := r.eng.Start(ctx, m.Chat)
	switch {
	case err == nil:
		pair := r.marks.Pair(s)
		caption := r.cat.Text("start.started", map[string]any{
			"First": s.Players[0].Name, "FirstMark": pair[0],
			"Second": s.Players[1].Name, "SecondMark": pair[1],
		}) + "\n" + r.turnLine(s)
		r.sendBoard(ctx, s, caption, -1, r.turnFooter(s))
	case errors.Is(err, engine.ErrNotEnoughPlayers):
		r.reply(ctx, m.Chat, "start.need_players", nil)
	case errors.Is(err, engine.ErrAlreadyStarted):
		r.reply(ctx, m.Chat, "start.already", nil)
	default:
		r.fail(ctx, m.Chat, "start", err)
	}
}

func (r *Router) solo(ctx context.Context, m Message) {
	s, err := r.eng.Solo(ctx, m.Chat, m.User)
	switch {
	case err == nil:
		caption := r.cat.Text("solo.started", map[string]any{"Mark": r.marks.Pair(s)[0]}) + "\n" + r.turnLine(s)
		r.sendBoard(ctx, s, caption, -1, r.turnFooter(s))
	case errors.Is(err, engine.ErrAlreadyStarted) && s != nil:
		r.sendBoard(ctx, s, r.cat.Text("solo.already", nil)+"\n"+r.turnLine(s), -1, r.turnFooter(s))
	default:
		r.fail(ctx, m.Chat, "solo", err)
	}
}

// target picks the session a command applies to: a running chat game the
// user plays in, then the user's solo game, then whatever the chat holds.
func (r *Router) target(ctx context.Context, m Message) (*session.Session, error) {
	chat, err := r.eng.Status(ctx, m.Chat)
	if err != nil {
		return nil, err
	}
	if chat != nil && chat.Active && chat.HasPlayer(m.User.ID) {
		return chat, nil
	}
	solo, err := r.eng.Status(ctx, session.SoloKey(m.Chat, m.User.ID))
	if err != nil {
		return nil, err
	}
	if solo != nil {
		return solo, nil
	}
	return chat, nil
}

func (r *Router) end(ctx context.Context, m Message) {
	s, err := r.target(ctx, m)
	if err != nil {
		r.fail(ctx, m.Chat, "end", err)
		return
	}
	if s == nil {
		r.reply(ctx, m.Chat, "game.none", nil)
		return
	}
	if _, err := r.eng.End(ctx, s.Key); err != nil {
		if errors.Is(err, engine.ErrNoActiveSession) {
			r.reply(ctx, m.Chat, "game.none", nil)
			return
		}
		r.fail(ctx, m.Chat, "end", err)
		return
	}
	r.reply(ctx, m.Chat, "game.ended", nil)
}

func (r *Router) reset(ctx context.Context, m Message) {
	s, err := r.target(ctx, m)
	if err != nil {
		r.fail(ctx, m.Chat, "reset", err)
		return
	}
	if s == nil {
		r.reply(ctx, m.Chat, "game.none", nil)
		return
	}
	s, err = r.eng.Reset(ctx, s.Key)
	switch {
	case err == nil:
		r.sendBoard(ctx, s, r.cat.Text("game.reset", nil)+"\n"+r.turnLine(s), -1, r.turnFooter(s))
	case errors.Is(err, engine.ErrNoActiveSession):
		r.reply(ctx, m.Chat, "game.none", nil)
	default:
		r.fail(ctx, m.Chat, "reset", err)
	}
}

func (r *Router) status(ctx context.Context, m Message) {
	s, err := r.target(ctx, m)
	if err != nil {
		r.fail(ctx, m.Chat, "status", err)
		return
	}
	if s == nil {
		r.reply(ctx, m.Chat, "game.none", nil)
		return
	}
	if !s.Active {
		names := make([]string, 0, len(s.Players))
		for _, p := range s.Players {
			names = append(names, p.Name)
		}
		r.reply(ctx, m.Chat, "status.recruiting", map[string]any{"Count": len(s.Players), "Names": strings.Join(names, ", ")})
		return
	}
	pair := r.marks.Pair(s)
	caption := r.cat.Text("status.playing", map[string]any{
		"First": s.Players[0].Name, "FirstMark": pair[0],
		"Second": s.Players[1].Name, "SecondMark": pair[1],
		"Turn": s.Current().Name,
	})
	r.sendBoard(ctx, s, caption, -1, r.turnFooter(s))
}

// textMove resolves a bare digit to the sender's game. Failures other than
// an occupied or invalid cell stay silent so ordinary chatter is not answered.
func (r *Router) textMove(ctx context.Context, m Message, cell int) {
	s, err := r.target(ctx, m)
	if err != nil {
		obslog.L().Warn("ttt_lookup_error", zap.String("chat", m.Chat), zap.Error(err))
		return
	}
	if s == nil {
		return
	}
	if err := r.move(ctx, m, s.Key, cell); err != nil {
		if d := describe(r.cat, err); !d.Silent {
			r.send(ctx, m.Chat, d.Message)
		}
	}
}

func (r *Router) move(ctx context.Context, m Message, key string, cell int) error {
	res, err := r.eng.Move(ctx, key, m.User, cell)
	if err != nil {
		if d := describe(r.cat, err); d.Code == "internal" {
			obslog.L().Error("ttt_move_error", zap.String("key", key), zap.String("user_id", m.User.ID), zap.Error(err))
		}
		return err
	}
	caption, footer := r.moveCaption(res)
	r.sendBoard(ctx, res.Session, caption, res.Last().Cell, footer)
	return nil
}

func (r *Router) leaderboard(ctx context.Context, m Message, today bool) {
	var since time.Time
	header := "leaderboard.header"
	if today {
		since = stats.StartOfDay(r.now())
		header = "leaderboard.header_today"
	}
	recs, err := r.sink.QueryTop(ctx, r.cfg.LeaderboardSize, since)
	if err != nil {
		r.fail(ctx, m.Chat, "leaderboard", err)
		return
	}
	if len(recs) == 0 {
		r.reply(ctx, m.Chat, "leaderboard.empty", nil)
		return
	}
	lines := make([]string, 0, len(recs))
	for _, row := range leaderRows(recs) {
		lines = append(lines, r.cat.Text("leaderboard.row", map[string]any{
			"Rank": row.Rank, "Name": row.Name, "Wins": row.Wins, "Losses": row.Losses, "Draws": row.Draws,
		}))
	}
	r.sendList(ctx, m.Chat, r.cat.Text(header, nil), lines)
}

func leaderRows(recs []stats.Record) []tttdto.LeaderRow {
	rows := make([]tttdto.LeaderRow, 0, len(recs))
	for i, rec := range recs {
		name := rec.Name
		if name == "" {
			name = rec.PlayerID
		}
		rows = append(rows, tttdto.LeaderRow{
			Rank: i + 1, PlayerID: rec.PlayerID, Name: name,
			Wins: rec.Wins, Losses: rec.Losses, Draws: rec.Draws, LastActive: rec.LastActive,
		})
	}
	return rows
}

func (r *Router) myStats(ctx context.Context, m Message) {
	rec, err := r.sink.GetStats(ctx, m.User.ID)
	if err != nil {
		r.fail(ctx, m.Chat, "mystats", err)
		return
	}
	r.reply(ctx, m.Chat, "stats.mine", map[string]any{
		"Name": m.User.Name, "Wins": rec.Wins, "Losses": rec.Losses, "Draws": rec.Draws,
	})
}

func (r *Router) history(ctx context.Context, m Message) {
	entries, err := r.sink.GetHistory(ctx, m.Chat, r.cfg.HistoryLimit)
	if err != nil {
		r.fail(ctx, m.Chat, "history", err)
		return
	}
	if len(entries) == 0 {
		r.reply(ctx, m.Chat, "history.empty", nil)
		return
	}
	lines := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := tttdto.HistoryItem{Text: entries[i].Text, At: entries[i].At}
		lines = append(lines, fmt.Sprintf("%s  %s", e.At.Format("01-02 15:04"), e.Text))
	}
	r.sendList(ctx, m.Chat, r.cat.Text("history.header", nil), lines)
}

func (r *Router) sendList(ctx context.Context, chat, header string, lines []string) {
	r.send(ctx, chat, util.ListMessage(header, lines, r.cfg.SeeMore))
}

func (r *Router) emoji(ctx context.Context, m Message, args []string) {
	if len(args) == 0 {
		r.reply(ctx, m.Chat, "emoji.usage", nil)
		return
	}
	switch strings.ToLower(args[0]) {
	case "reset", "clear", "default":
		r.marks.Clear(m.User.ID)
		r.reply(ctx, m.Chat, "emoji.reset", nil)
		return
	}
	if err := r.marks.Set(m.User.ID, args[0]); err != nil {
		r.reply(ctx, m.Chat, "emoji.invalid", nil)
		return
	}
	r.reply(ctx, m.Chat, "emoji.set", map[string]any{"Mark": args[0]})
}
