package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/park285/Cheese-TicTacToe-bot/internal/engine"
	"github.com/park285/Cheese-TicTacToe-bot/internal/marks"
	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/internal/render"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/park285/Cheese-TicTacToe-bot/internal/stats"
	"github.com/park285/Cheese-TicTacToe-bot/internal/util"
	"github.com/park285/Cheese-TicTacToe-bot/internal/watchdog"
	"github.com/park285/Cheese-TicTacToe-bot/pkg/tttdto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ann = session.Identity{ID: "u1", Name: "Ann"}
	bob = session.Identity{ID: "u2", Name: "Bob"}
	cat = session.Identity{ID: "u3", Name: "Cat"}
)

type boardMsg struct {
	chat    string
	caption string
	st      *tttdto.SessionState
}

type fakeOut struct {
	mu     sync.Mutex
	texts  []string
	boards []boardMsg
	photos []string
}

func (f *fakeOut) SendText(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeOut) SendPhoto(_ context.Context, _ string, _ []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, caption)
	return nil
}

func (f *fakeOut) SendBoard(_ context.Context, chat, caption string, st *tttdto.SessionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards = append(f.boards, boardMsg{chat: chat, caption: caption, st: st})
	return nil
}

func (f *fakeOut) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeOut) lastBoard() boardMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.boards) == 0 {
		return boardMsg{}
	}
	return f.boards[len(f.boards)-1]
}

func (f *fakeOut) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts) + len(f.boards) + len(f.photos)
}

type harness struct {
	r     *Router
	out   *fakeOut
	clock *watchdog.ManualClock
	sink  *stats.MemorySink
	rec   *stats.Recorder
}

var firstEmpty = engine.ChooserFunc(func(b board.Board) int { return b.EmptyCells()[0] })

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{out: &fakeOut{}, sink: stats.NewMemorySink(50)}
	h.clock = watchdog.NewManualClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := session.NewMemoryStore()
	dog := watchdog.New(store, 60*time.Second, watchdog.WithClock(h.clock))
	h.rec = stats.NewRecorder(h.sink, stats.WithRetry(1, func(int) time.Duration { return 0 }))
	eng := engine.New(store, dog, h.rec, engine.WithClock(h.clock), engine.WithChooser(firstEmpty))
	if cfg.Prefix == "" {
		cfg.Prefix = "/"
	}
	opts = append([]Option{WithNow(h.clock.Now)}, opts...)
	h.r = NewRouter(eng, h.sink, marks.NewRegistry(marks.Default, nil), msgcat.MustDefault(), h.out, cfg, opts...)
	eng.OnTimeout(h.r.NotifyTimeout)
	t.Cleanup(func() {
		eng.Shutdown()
		_ = h.rec.Close(context.Background())
	})
	return h
}

func (h *harness) say(chat string, who session.Identity, text string) {
	h.r.HandleText(context.Background(), Message{Chat: chat, User: who, Text: text})
}

// flush waits for queued outcomes to reach the sink.
func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.rec.Close(ctx))
}

func (h *harness) started(t *testing.T, chat string) {
	t.Helper()
	h.say(chat, ann, "/join")
	h.say(chat, bob, "/join")
	h.say(chat, ann, "/new")
	require.Contains(t, h.out.lastBoard().caption, "Game started!")
}

func TestJoinFlowMessages(t *testing.T) {
	h := newHarness(t, Config{})
	h.say("g1", ann, "/join")
	assert.Equal(t, "Ann joined. Waiting for one more player.", h.out.lastText())
	h.say("g1", ann, "/join")
	assert.Equal(t, "You already joined.", h.out.lastText())
	h.say("g1", ann, "/new")
	assert.Equal(t, "Need 2 players to start. Use /join.", h.out.lastText())
	h.say("g1", bob, "/join")
	assert.Equal(t, "2 players joined! Use /new to start the game.", h.out.lastText())
	h.say("g1", cat, "/join")
	assert.Equal(t, "Game already has 2 players.", h.out.lastText())
	h.say("g1", cat, "/status")
	assert.Equal(t, "Waiting for players (2/2): Ann, Bob", h.out.lastText())
}

func TestLeaveBeforeStart(t *testing.T) {
	h := newHarness(t, Config{})
	h.say("g1", cat, "/leave")
	assert.Equal(t, "You have not joined this game.", h.out.lastText())
	h.say("g1", ann, "/join")
	h.say("g1", ann, "/leave")
	assert.Equal(t, "Ann left the game.", h.out.lastText())
	h.started(t, "g1")
	h.say("g1", bob, "/leave")
	assert.Equal(t, "The game already started. Use /end to stop it.", h.out.lastText())
}

func TestGameWonThroughTextMoves(t *testing.T) {
	h := newHarness(t, Config{})
	h.started(t, "g1")
	first := h.out.lastBoard()
	assert.Contains(t, first.caption, "Ann ❌ vs Bob ⭕")
	assert.Contains(t, first.caption, "Ann's turn (❌)")
	assert.True(t, first.st.Playable)
	assert.Nil(t, first.st.BoardImage)

	for _, mv := range []struct {
		who  session.Identity
		cell string
	}{{ann, "1"}, {bob, "4"}, {ann, "2"}, {bob, "5"}, {ann, "3"}} {
		h.say("g1", mv.who, mv.cell)
	}
	last := h.out.lastBoard()
	assert.Equal(t, "Ann wins! 🎉", last.caption)
	assert.False(t, last.st.Playable)
	assert.Equal(t, 2, last.st.LastCell)
	assert.Equal(t, "❌ | ❌ | ❌\n⭕ | ⭕ | 6\n7 | 8 | 9", last.st.Grid)

	h.say("g1", bob, "6")
	assert.Equal(t, last, h.out.lastBoard(), "finished game ignores further moves")

	h.flush(t)
	h.say("g1", ann, "/mystats")
	assert.Equal(t, "📊 Ann\nWins: 1  Losses: 0  Draws: 0", h.out.lastText())
	h.say("g1", bob, "/history")
	assert.Contains(t, h.out.lastText(), "Ann defeated Bob")
	assert.True(t, strings.HasPrefix(h.out.lastText(), "📜 Recent games\n"))
}

func TestRejectedMoves(t *testing.T) {
	h := newHarness(t, Config{})
	h.started(t, "g1")
	n := h.out.count()

	h.say("g1", bob, "1")
	h.say("g1", cat, "1")
	h.say("g1", ann, "hello")
	assert.Equal(t, n, h.out.count(), "wrong turn, outsiders and chatter get no reply")

	h.say("g1", ann, "1")
	h.say("g1", bob, "1")
	assert.Equal(t, "Invalid move.", h.out.lastText())
	assert.Contains(t, h.out.lastBoard().caption, "Bob's turn")
}

func TestButtonPress(t *testing.T) {
	h := newHarness(t, Config{})
	h.started(t, "g1")
	ctx := context.Background()

	assert.Equal(t, "Not your turn.", h.r.HandlePress(ctx, Message{Chat: "g1", User: bob}, Payload("g1", 0)))
	assert.Equal(t, "Invalid move.", h.r.HandlePress(ctx, Message{Chat: "g2", User: ann}, Payload("g1", 0)))
	assert.Equal(t, "Invalid move.", h.r.HandlePress(ctx, Message{Chat: "g1", User: ann}, "garbage"))
	assert.Equal(t, "", h.r.HandlePress(ctx, Message{Chat: "g1", User: ann}, Payload("g1", 4)))
	assert.Equal(t, 4, h.out.lastBoard().st.LastCell)
	assert.Equal(t, "Invalid move.", h.r.HandlePress(ctx, Message{Chat: "g1", User: bob}, Payload("g1", 4)))
	assert.Equal(t, "You are not playing in this game.", h.r.HandlePress(ctx, Message{Chat: "g1", User: cat}, Payload("g1", 0)))
}

func TestSoloGameBotReplies(t *testing.T) {
	h := newHarness(t, Config{})
	h.say("g1", ann, "/solo")
	b := h.out.lastBoard()
	assert.Equal(t, "g1:u1", b.st.Key)
	assert.Contains(t, b.caption, "Solo game against the bot. You are ❌.")
	assert.True(t, b.st.Solo)
	assert.True(t, b.st.Players[1].Bot)

	h.say("g1", ann, "5")
	b = h.out.lastBoard()
	assert.Equal(t, "Bot played 1.\nAnn's turn (❌). Send 1-9.", b.caption)
	assert.True(t, b.st.Filled[0])
	assert.True(t, b.st.Filled[4])
	assert.False(t, b.st.EmptyCell(0))
	assert.True(t, b.st.EmptyCell(8))

	h.say("g1", ann, "/solo")
	assert.Contains(t, h.out.lastBoard().caption, "You already have a game running here.")
}

func TestTimeoutIsAnnounced(t *testing.T) {
	h := newHarness(t, Config{})
	h.started(t, "g1")
	h.clock.Advance(59 * time.Second)
	h.say("g1", ann, "1")
	h.clock.Advance(59 * time.Second)
	assert.NotContains(t, h.out.lastText(), "took too long")
	h.clock.Advance(2 * time.Second)
	assert.Equal(t, "Bob took too long! Game ended.", h.out.lastText())
	h.say("g1", ann, "/status")
	assert.Equal(t, "No active game.", h.out.lastText())
}

func TestEndAndReset(t *testing.T) {
	h := newHarness(t, Config{})
	h.say("g1", ann, "/reset")
	assert.Equal(t, "No active game.", h.out.lastText())
	h.say("g1", ann, "/end")
	assert.Equal(t, "No active game.", h.out.lastText())

	h.started(t, "g1")
	h.say("g1", ann, "1")
	h.say("g1", cat, "/reset")
	b := h.out.lastBoard()
	assert.True(t, strings.HasPrefix(b.caption, "Board reset.\nAnn's turn"))
	assert.Equal(t, 0, b.st.Moves)
	assert.Equal(t, "1 | 2 | 3\n4 | 5 | 6\n7 | 8 | 9", b.st.Grid)

	h.say("g1", cat, "/end")
	assert.Equal(t, "Game ended and data cleared.", h.out.lastText())
	h.say("g1", ann, "/status")
	assert.Equal(t, "No active game.", h.out.lastText())
}

func TestLeaderboardViews(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	now := h.clock.Now()
	require.NoError(t, h.sink.IncrementStat(ctx, stats.Player{ID: "a", Name: "Ann"}, stats.KindWin, now.Add(-48*time.Hour)))
	require.NoError(t, h.sink.IncrementStat(ctx, stats.Player{ID: "a", Name: "Ann"}, stats.KindWin, now.Add(-48*time.Hour)))
	require.NoError(t, h.sink.IncrementStat(ctx, stats.Player{ID: "b", Name: "Bob"}, stats.KindWin, now.Add(-time.Hour)))

	h.say("g1", cat, "/leaderboard")
	assert.Equal(t, "🏆 Leaderboard\n1. Ann · 2W 0L 0D\n2. Bob · 1W 0L 0D", h.out.lastText())
	h.say("g1", cat, "/leaderboard today")
	assert.Equal(t, "🏆 Today's leaderboard\n1. Bob · 1W 0L 0D", h.out.lastText())
}

func TestEmptyListsAndSeeMore(t *testing.T) {
	h := newHarness(t, Config{SeeMore: true})
	h.say("g1", ann, "/history")
	assert.Equal(t, "No history yet.", h.out.lastText())
	h.say("g1", ann, "/top")
	assert.Equal(t, "No games played yet.", h.out.lastText())

	require.NoError(t, h.sink.AppendHistory(context.Background(), "g1", stats.HistoryEntry{Text: "Ann defeated Bob", At: h.clock.Now()}))
	h.say("g1", ann, "/history")
	got := h.out.lastText()
	assert.True(t, strings.HasPrefix(got, "📜 Recent games"+util.KakaoZeroWidthSpace))
	assert.Contains(t, got, "Ann defeated Bob")
}

func TestEmojiCommand(t *testing.T) {
	h := newHarness(t, Config{})
	h.say("g1", ann, "/emoji")
	assert.Equal(t, "Usage: /emoji [emoji]", h.out.lastText())
	h.say("g1", ann, "/emoji 🐱")
	assert.Equal(t, "Your mark is now 🐱.", h.out.lastText())
	h.say("g1", ann, "/emoji waytoolongmark")
	assert.Equal(t, "That mark can't be used.", h.out.lastText())

	h.say("g1", ann, "/solo")
	assert.Contains(t, h.out.lastBoard().caption, "You are 🐱.")

	h.say("g1", ann, "/emoji reset")
	assert.Equal(t, "Your mark was reset.", h.out.lastText())
	h.say("g1", ann, "/status")
	assert.Contains(t, h.out.lastBoard().caption, "Ann ❌ vs Bot ⭕")
}

func TestRoomFilterAndUnknown(t *testing.T) {
	h := newHarness(t, Config{AllowedRooms: []string{"g1"}})
	h.say("g2", ann, "/join")
	assert.Equal(t, 0, h.out.count())
	h.say("g1", ann, "/dance")
	assert.Equal(t, "Unknown command. Try /help.", h.out.lastText())
	h.say("g1", ann, "/")
	assert.True(t, strings.HasPrefix(h.out.lastText(), "Commands\n/join"))
}

func TestWelcomePhoto(t *testing.T) {
	h := newHarness(t, Config{WelcomeImage: []byte{0x89, 'P', 'N', 'G'}})
	h.r.HandleCommand(context.Background(), Message{Chat: "g1", User: ann}, "/start@tttbot", nil)
	require.Len(t, h.out.photos, 1)
	assert.True(t, strings.HasPrefix(h.out.photos[0], "Welcome to Tic-Tac-Toe!"))
}

func TestRenderedBoardImage(t *testing.T) {
	h := newHarness(t, Config{}, WithRenderer(render.NewPNGRenderer()))
	h.started(t, "g1")
	img := h.out.lastBoard().st.BoardImage
	require.NotEmpty(t, img)
	assert.Equal(t, "\x89PNG", string(img[:4]))
}

func TestParsePayload(t *testing.T) {
	key, cell, err := ParsePayload(Payload("-100:42", 8))
	require.NoError(t, err)
	assert.Equal(t, "-100:42", key)
	assert.Equal(t, 8, cell)

	for _, bad := range []string{"", "|3", "g1|0", "g1|10", "g1"} {
		_, _, err := ParsePayload(bad)
		assert.Error(t, err, bad)
	}
}
