package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/Cheese-TicTacToe-bot/internal/bot"
	"github.com/park285/Cheese-TicTacToe-bot/pkg/tttdto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type call struct {
	op     string
	to     tele.Recipient
	what   interface{}
	markup *tele.ReplyMarkup
}

type fakeAPI struct {
	calls   []call
	nextID  int
	editErr error
}

func markupOf(opts []interface{}) *tele.ReplyMarkup {
	for _, o := range opts {
		if m, ok := o.(*tele.ReplyMarkup); ok {
			return m
		}
	}
	return nil
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.nextID++
	f.calls = append(f.calls, call{op: "send", to: to, what: what, markup: markupOf(opts)})
	return &tele.Message{ID: f.nextID, Chat: &tele.Chat{ID: -100}}, nil
}

func (f *fakeAPI) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.calls = append(f.calls, call{op: "edit", what: what, markup: markupOf(opts)})
	if f.editErr != nil {
		return nil, f.editErr
	}
	m, _ := msg.(*tele.Message)
	return m, nil
}

func state(gameID string, playable bool) *tttdto.SessionState {
	st := &tttdto.SessionState{Key: "-100", GameID: gameID, Playable: playable, Grid: "grid"}
	for i := range st.Cells {
		st.Cells[i] = string(rune('1' + i))
	}
	return st
}

func TestSendBoardEditsRunningGame(t *testing.T) {
	api := &fakeAPI{}
	tr := NewTransport(api)
	ctx := context.Background()

	require.NoError(t, tr.SendBoard(ctx, "-100", "Ann's turn", state("g1", true)))
	require.NoError(t, tr.SendBoard(ctx, "-100", "Bob's turn", state("g1", true)))
	require.Len(t, api.calls, 2)
	assert.Equal(t, "send", api.calls[0].op)
	assert.Equal(t, tele.ChatID(-100), api.calls[0].to)
	assert.Equal(t, "edit", api.calls[1].op)
	assert.Equal(t, "Bob's turn", api.calls[1].what)

	// a new game starts a new message
	require.NoError(t, tr.SendBoard(ctx, "-100", "Ann's turn", state("g2", true)))
	assert.Equal(t, "send", api.calls[2].op)
}

func TestSendBoardFinishedGameIsForgotten(t *testing.T) {
	api := &fakeAPI{}
	tr := NewTransport(api)
	ctx := context.Background()

	require.NoError(t, tr.SendBoard(ctx, "-100", "turn", state("g1", true)))
	require.NoError(t, tr.SendBoard(ctx, "-100", "Ann wins!", state("g1", false)))
	require.NoError(t, tr.SendBoard(ctx, "-100", "status", state("g1", false)))
	require.Len(t, api.calls, 3)
	assert.Equal(t, []string{"send", "edit", "send"}, []string{api.calls[0].op, api.calls[1].op, api.calls[2].op})
	assert.Equal(t, callbackDone, api.calls[1].markup.InlineKeyboard[0][0].Data)
}

func TestSendBoardFallsBackWhenEditFails(t *testing.T) {
	api := &fakeAPI{}
	tr := NewTransport(api)
	ctx := context.Background()

	require.NoError(t, tr.SendBoard(ctx, "-100", "turn", state("g1", true)))
	api.editErr = errors.New("message is not modified")
	require.NoError(t, tr.SendBoard(ctx, "-100", "turn", state("g1", true)))
	require.Len(t, api.calls, 3)
	assert.Equal(t, "send", api.calls[2].op)
}

func TestSendBoardImage(t *testing.T) {
	api := &fakeAPI{}
	tr := NewTransport(api)
	st := state("g1", true)
	st.BoardImage = []byte{0x89, 'P', 'N', 'G'}

	require.NoError(t, tr.SendBoard(context.Background(), "-100", "Ann's turn", st))
	require.Len(t, api.calls, 1)
	photo, ok := api.calls[0].what.(*tele.Photo)
	require.True(t, ok)
	assert.Equal(t, "Ann's turn", photo.Caption)
	require.NotNil(t, api.calls[0].markup)
}

func TestSendTextRejectsBadChat(t *testing.T) {
	tr := NewTransport(&fakeAPI{})
	assert.Error(t, tr.SendText(context.Background(), "room", "hi"))
}

func TestKeyboardPayloads(t *testing.T) {
	st := state("g1", true)
	kb := Keyboard(st)
	require.Len(t, kb.InlineKeyboard, 3)
	btn := kb.InlineKeyboard[2][1]
	assert.Equal(t, "8", btn.Text)

	key, cell, err := bot.ParsePayload(btn.Data[len(CallbackPrefix):])
	require.NoError(t, err)
	assert.Equal(t, "-100", key)
	assert.Equal(t, 7, cell)
	assert.LessOrEqual(t, len(CallbackPrefix+bot.Payload("-1001234567890:1234567890", 8)), 64)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ann Lee", DisplayName(&tele.User{ID: 1, FirstName: "Ann", LastName: "Lee"}))
	assert.Equal(t, "@ann", DisplayName(&tele.User{ID: 1, Username: "ann"}))
	assert.Equal(t, "7", DisplayName(&tele.User{ID: 7}))
}
