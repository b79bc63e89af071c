package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/park285/Cheese-TicTacToe-bot/internal/engine"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/render"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/park285/Cheese-TicTacToe-bot/pkg/tttdto"
	"go.uber.org/zap"
)

var errBadPayload = errors.New("bad button payload")

// Payload encodes a board button. Cells are 1-based like the text moves.
func Payload(key string, cell int) string {
	return key + "|" + strconv.Itoa(cell+1)
}

// ParsePayload returns the session key and the 0-based cell.
func ParsePayload(p string) (string, int, error) {
	i := strings.LastIndexByte(p, '|')
	if i <= 0 {
		return "", 0, errBadPayload
	}
	cell, ok := board.CellFromKey(p[i+1:])
	if !ok {
		return "", 0, errBadPayload
	}
	return p[:i], cell, nil
}

func (r *Router) view(ctx context.Context, s *session.Session, lastCell int, footer string) *tttdto.SessionState {
	pair := r.marks.Pair(s)
	st := &tttdto.SessionState{
		Key:      s.Key,
		Chat:     s.Chat,
		GameID:   s.GameID,
		Status:   string(s.Status()),
		Grid:     render.Text(s.Board, pair),
		Turn:     s.Turn,
		LastCell: lastCell,
		Moves:    s.Moves,
		Playable: s.Active,
		Solo:     s.Solo,
	}
	for i, p := range s.Players {
		st.Players = append(st.Players, tttdto.PlayerView{ID: p.ID, Name: p.Name, Mark: pair[i&1], Bot: p.IsBot()})
	}
	for i := 0; i < board.Cells; i++ {
		st.Cells[i] = render.CellLabel(s.Board, i, pair)
		st.Filled[i] = s.Board[i] != board.Empty
	}
	if r.renderer == nil || len(s.Players) < 2 {
		return st
	}
	header := r.cat.Text("image.players", map[string]any{"First": s.Players[0].Name, "Second": s.Players[1].Name})
	img, err := r.renderer.RenderPNG(ctx, s.Board, render.Options{
		Header:   header,
		Footer:   footer,
		LastCell: lastCell,
		ShowKeys: st.Playable,
	})
	if err != nil {
		obslog.L().Warn("ttt_render_error", zap.String("key", s.Key), zap.Error(err))
		return st
	}
	st.BoardImage = img
	return st
}

func (r *Router) turnFooter(s *session.Session) string {
	return r.cat.Text("image.turn", map[string]any{"Name": s.Current().Name})
}

func (r *Router) turnLine(s *session.Session) string {
	pair := r.marks.Pair(s)
	return r.cat.Text("move.turn", map[string]any{"Name": s.Current().Name, "Mark": pair[s.Turn&1]})
}

// moveCaption describes every step of a move result, bot replies included.
func (r *Router) moveCaption(res *engine.MoveResult) (caption, footer string) {
	var lines []string
	for _, st := range res.Steps {
		if st.Actor.IsBot() {
			lines = append(lines, r.cat.Text("move.bot", map[string]any{"Cell": st.Cell + 1}))
		}
	}
	last := res.Last()
	if res.Abandoned {
		return strings.Join(append(lines, r.cat.Text("game.bot_failed", nil)), "\n"), ""
	}
	switch last.Result {
	case engine.Won:
		lines = append(lines, r.cat.Text("move.win", map[string]any{"Name": last.Winner.Name}))
		footer = r.cat.Text("image.win", map[string]any{"Name": last.Winner.Name})
	case engine.Drawn:
		lines = append(lines, r.cat.Text("move.draw", nil))
		footer = r.cat.Text("image.draw", nil)
	default:
		lines = append(lines, r.turnLine(res.Session))
		footer = r.turnFooter(res.Session)
	}
	return strings.Join(lines, "\n"), footer
}
