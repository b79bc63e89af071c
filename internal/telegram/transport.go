// Package telegram runs the game over the Telegram Bot API with telebot.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/park285/Cheese-TicTacToe-bot/internal/bot"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/pkg/tttdto"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// CallbackPrefix marks board buttons in callback data.
const CallbackPrefix = "ttt:"

const callbackDone = CallbackPrefix + "done"

// API is the part of *tele.Bot the transport needs.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type boardRef struct {
	gameID string
	msg    *tele.Message
}

// Transport implements bot.Replier. Text boards of a running game are edited
// in place; a new game or an image board is sent as a new message.
type Transport struct {
	api API

	mu     sync.Mutex
	boards map[string]boardRef
}

var _ bot.Replier = (*Transport)(nil)

func NewTransport(api API) *Transport {
	return &Transport{api: api, boards: make(map[string]boardRef)}
}

func chatID(chat string) (tele.ChatID, error) {
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat id %q: %w", chat, err)
	}
	return tele.ChatID(id), nil
}

func (t *Transport) SendText(_ context.Context, chat, text string) error {
	to, err := chatID(chat)
	if err != nil {
		return err
	}
	_, err = t.api.Send(to, text)
	return err
}

func (t *Transport) SendPhoto(_ context.Context, chat string, png []byte, caption string) error {
	to, err := chatID(chat)
	if err != nil {
		return err
	}
	_, err = t.api.Send(to, &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: caption})
	return err
}

func (t *Transport) SendBoard(_ context.Context, chat, caption string, st *tttdto.SessionState) error {
	to, err := chatID(chat)
	if err != nil {
		return err
	}
	markup := Keyboard(st)
	if len(st.BoardImage) > 0 {
		_, err := t.api.Send(to, &tele.Photo{File: tele.FromReader(bytes.NewReader(st.BoardImage)), Caption: caption}, markup)
		t.forget(st.Key)
		return err
	}

	text := caption
	if text == "" {
		text = st.Grid
	}
	if prev, ok := t.lookup(st.Key, st.GameID); ok {
		msg, err := t.api.Edit(prev, text, markup)
		if err == nil {
			t.remember(st, msg)
			return nil
		}
		obslog.L().Debug("telegram_edit_failed", zap.String("key", st.Key), zap.Error(err))
	}
	msg, err := t.api.Send(to, text, markup)
	if err != nil {
		return err
	}
	t.remember(st, msg)
	return nil
}

func (t *Transport) lookup(key, gameID string) (*tele.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ref, ok := t.boards[key]
	if !ok || ref.gameID != gameID || ref.msg == nil {
		return nil, false
	}
	return ref.msg, true
}

func (t *Transport) remember(st *tttdto.SessionState, msg *tele.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !st.Playable || msg == nil {
		delete(t.boards, st.Key)
		return
	}
	t.boards[st.Key] = boardRef{gameID: st.GameID, msg: msg}
}

func (t *Transport) forget(key string) {
	t.mu.Lock()
	delete(t.boards, key)
	t.mu.Unlock()
}

// Keyboard lays the board out as a 3x3 inline keyboard. A finished game keeps
// its layout but the buttons no longer carry moves.
func Keyboard(st *tttdto.SessionState) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, 3)
	for r := 0; r < 3; r++ {
		row := make([]tele.InlineButton, 0, 3)
		for c := 0; c < 3; c++ {
			i := r*3 + c
			data := callbackDone
			if st.Playable {
				data = CallbackPrefix + bot.Payload(st.Key, i)
			}
			row = append(row, tele.InlineButton{Text: st.Cells[i], Data: data})
		}
		rows = append(rows, row)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
