// Package engine runs the game lifecycle on top of a session.Store: joining,
// starting, validating moves, deciding outcomes and driving the bot.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/park285/Cheese-TicTacToe-bot/internal/stats"
	"github.com/park285/Cheese-TicTacToe-bot/internal/watchdog"
	"go.uber.org/zap"
)

// Result classifies a single applied move.
type Result int

const (
	Ongoing Result = iota
	Won
	Drawn
)

func (r Result) String() string {
	switch r {
	case Won:
		return "won"
	case Drawn:
		return "drawn"
	default:
		return "ongoing"
	}
}

// Step is one applied move.
type Step struct {
	Actor  session.Identity
	Cell   int
	Mark   board.Mark
	Result Result
	Winner *session.Identity
	Loser  *session.Identity
}

// MoveResult carries the human step and, in solo games, the bot reply.
// Session is the state after the last step; for a finished game it is the
// final state of the already deleted session. Abandoned is set when the bot
// reply failed and the game was dropped.
type MoveResult struct {
	Session   *session.Session
	Steps     []Step
	Abandoned bool
}

func (r *MoveResult) Last() Step {
	if len(r.Steps) == 0 {
		return Step{}
	}
	return r.Steps[len(r.Steps)-1]
}

func (r *MoveResult) Finished() bool { return r.Abandoned || r.Last().Result != Ongoing }

// Recorder receives finished games.
type Recorder interface {
	Record(o stats.Outcome) error
}

// TimeoutFunc is notified after the watchdog ends a game.
type TimeoutFunc func(ctx context.Context, ended *session.Session, idle session.Identity)

type Engine struct {
	store    session.Store
	dog      *watchdog.Supervisor
	rec      Recorder
	chooser  MoveChooser
	clock    watchdog.Clock
	botDelay time.Duration

	onTimeout TimeoutFunc
}

type Option func(*Engine)

func WithChooser(c MoveChooser) Option        { return func(e *Engine) { e.chooser = c } }
func WithClock(c watchdog.Clock) Option       { return func(e *Engine) { e.clock = c } }
func WithBotDelay(d time.Duration) Option     { return func(e *Engine) { e.botDelay = d } }
func WithTimeoutHandler(f TimeoutFunc) Option { return func(e *Engine) { e.onTimeout = f } }

func New(store session.Store, dog *watchdog.Supervisor, rec Recorder, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		dog:     dog,
		rec:     rec,
		chooser: NewRandomChooser(uint64(time.Now().UnixNano())),
		clock:   watchdog.RealClock(),
	}
	for _, o := range opts {
		o(e)
	}
	dog.OnExpire(e.expired)
	return e
}

// OnTimeout replaces the timeout handler.
func (e *Engine) OnTimeout(f TimeoutFunc) { e.onTimeout = f }

func (e *Engine) now() time.Time { return e.clock.Now().Round(0) }

func (e *Engine) expired(ctx context.Context, ended *session.Session, idle session.Identity) {
	if e.onTimeout != nil {
		e.onTimeout(ctx, ended, idle)
	}
}

// Join adds who to the recruiting session of chat, creating it if needed.
func (e *Engine) Join(ctx context.Context, chat string, who session.Identity) (*session.Session, error) {
	if who.IsBot() || who.ID == "" {
		return nil, ErrNotParticipant
	}
	for attempt := 0; attempt < 3; attempt++ {
		if _, _, err := e.store.Create(ctx, session.NewRecruiting(chat, chat, e.now())); err != nil {
			return nil, err
		}
		snap, err := e.store.Mutate(ctx, chat, func(s *session.Session) (session.Commit, error) {
			if s.HasPlayer(who.ID) {
				return session.Keep, ErrAlreadyJoined
			}
			if len(s.Players) >= 2 {
				return session.Keep, ErrSessionFull
			}
			s.Players = append(s.Players, who)
			return session.Save, nil
		})
		if errors.Is(err, session.ErrNotFound) {
			continue
		}
		if err == nil {
			obslog.L().Info("ttt_join", zap.String("key", chat), zap.String("user_id", who.ID), zap.Int("players", len(snap.Players)))
		}
		return snap, err
	}
	return nil, ErrNoActiveSession
}

// Leave removes who from a session that has not started yet.
func (e *Engine) Leave(ctx context.Context, chat string, who session.Identity) (*session.Session, error) {
	snap, err := e.store.Mutate(ctx, chat, func(s *session.Session) (session.Commit, error) {
		if s.Active {
			return session.Keep, ErrAlreadyStarted
		}
		idx := s.IndexOf(who.ID)
		if idx < 0 {
			return session.Keep, ErrNotParticipant
		}
		s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
		if len(s.Players) == 0 {
			return session.Delete, nil
		}
		return session.Save, nil
	})
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	return snap, err
}

func (e *Engine) begin(s *session.Session) {
	s.Board = board.Board{}
	s.Turn = 0
	s.Moves = 0
	s.Active = true
	s.GameID = uuid.NewString()
	s.Seq++
	s.LastMoveAt = e.now()
}

// Start moves a two-player recruiting session into play.
func (e *Engine) Start(ctx context.Context, chat string) (*session.Session, error) {
	snap, err := e.store.Mutate(ctx, chat, func(s *session.Session) (session.Commit, error) {
		if s.Active {
			return session.Keep, ErrAlreadyStarted
		}
		if len(s.Players) < 2 {
			return session.Keep, ErrNotEnoughPlayers
		}
		e.begin(s)
		return session.Save, nil
	})
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNotEnoughPlayers
	}
	if err != nil {
		return snap, err
	}
	e.dog.Arm(snap)
	obslog.L().Info("ttt_start", zap.String("key", chat), zap.String("game_id", snap.GameID),
		zap.String("first", snap.Players[0].ID), zap.String("second", snap.Players[1].ID))
	return snap, nil
}

// Solo starts a game of who against the bot, keyed by chat and user. The
// human always moves first.
func (e *Engine) Solo(ctx context.Context, chat string, who session.Identity) (*session.Session, error) {
	if who.IsBot() || who.ID == "" {
		return nil, ErrNotParticipant
	}
	key := session.SoloKey(chat, who.ID)
	s := session.NewRecruiting(key, chat, e.now())
	s.Solo = true
	s.Players = []session.Identity{who, session.Bot}
	e.begin(s)
	cur, created, err := e.store.Create(ctx, s)
	if err != nil {
		return nil, err
	}
	if !created {
		return cur, ErrAlreadyStarted
	}
	e.dog.Arm(cur)
	obslog.L().Info("ttt_solo_start", zap.String("key", key), zap.String("game_id", cur.GameID), zap.String("user_id", who.ID))
	return cur, nil
}

// Move applies actor's mark at cell (0..8). In solo games the bot replies
// before Move returns.
func (e *Engine) Move(ctx context.Context, key string, actor session.Identity, cell int) (*MoveResult, error) {
	var step Step
	snap, err := e.store.Mutate(ctx, key, func(s *session.Session) (session.Commit, error) {
		st, commit, err := e.apply(s, actor.ID, cell)
		step = st
		return commit, err
	})
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return &MoveResult{Session: snap}, err
	}
	res := &MoveResult{Session: snap, Steps: []Step{step}}
	e.after(snap, step)
	if step.Result == Ongoing && snap.Current().IsBot() {
		e.botTurn(ctx, res)
	}
	return res, nil
}

// apply validates and applies a move in place. It must run inside Mutate.
func (e *Engine) apply(s *session.Session, actorID string, cell int) (Step, session.Commit, error) {
	if !s.Active {
		return Step{}, session.Keep, ErrNoActiveSession
	}
	cur := s.Current()
	if cur.ID != actorID {
		if !s.HasPlayer(actorID) {
			return Step{}, session.Keep, ErrNotParticipant
		}
		return Step{}, session.Keep, ErrNotYourTurn
	}
	mark := board.MarkForTurn(s.Turn)
	nb, err := s.Board.Apply(cell, mark)
	if err != nil {
		return Step{}, session.Keep, err
	}
	s.Board = nb
	s.Moves++
	s.Seq++
	s.LastMoveAt = e.now()

	step := Step{Actor: cur, Cell: cell, Mark: mark}
	switch {
	case nb.Winner():
		winner, loser := cur, s.Other(s.Turn)
		step.Result, step.Winner, step.Loser = Won, &winner, &loser
		s.Active = false
		return step, session.Delete, nil
	case nb.Full():
		step.Result = Drawn
		s.Active = false
		return step, session.Delete, nil
	}
	s.Turn = 1 - s.Turn
	return step, session.Save, nil
}

func (e *Engine) after(snap *session.Session, step Step) {
	obslog.L().Info("ttt_move",
		zap.String("key", snap.Key),
		zap.String("game_id", snap.GameID),
		zap.String("user_id", step.Actor.ID),
		zap.Int("cell", step.Cell+1),
		zap.String("result", step.Result.String()),
	)
	if step.Result == Ongoing {
		if snap.Current().IsBot() {
			e.dog.Cancel(snap.Key)
		} else {
			e.dog.Arm(snap)
		}
		return
	}
	e.dog.Cancel(snap.Key)
	e.record(snap, step)
}

func toPlayer(id session.Identity) stats.Player {
	return stats.Player{ID: id.ID, Name: id.Name, Bot: id.IsBot()}
}

func (e *Engine) record(snap *session.Session, step Step) {
	if e.rec == nil {
		return
	}
	o := stats.Outcome{Chat: snap.Chat, GameID: snap.GameID, At: snap.LastMoveAt}
	for _, p := range snap.Players {
		o.Players = append(o.Players, toPlayer(p))
	}
	if step.Result == Won {
		w, l := toPlayer(*step.Winner), toPlayer(*step.Loser)
		o.Winner, o.Loser = &w, &l
	}
	if err := e.rec.Record(o); err != nil {
		obslog.L().Warn("ttt_record_error", zap.String("game_id", snap.GameID), zap.Error(err))
	}
}

var errBotSkipped = errors.New("bot turn no longer current")

const botAttempts = 2

func (e *Engine) pause(ctx context.Context) {
	if e.botDelay <= 0 {
		return
	}
	t := time.NewTimer(e.botDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// botTurn plays the bot's reply. The session is re-read under the lock, so a
// game ended or reset during the pause is left alone. A reply that cannot be
// stored is tried once more; after that the game is abandoned without stats.
func (e *Engine) botTurn(ctx context.Context, res *MoveResult) {
	prev := res.Session
	e.pause(ctx)

	// 사람 쪽 요청이 끝나도 봇 수는 끝까지 둔다
	ctx = context.WithoutCancel(ctx)
	var (
		step Step
		snap *session.Session
		err  error
	)
	for attempt := 1; attempt <= botAttempts; attempt++ {
		snap, err = e.store.Mutate(ctx, prev.Key, func(s *session.Session) (session.Commit, error) {
			if !s.Active || s.GameID != prev.GameID || s.Seq != prev.Seq || !s.Current().IsBot() {
				return session.Keep, errBotSkipped
			}
			st, commit, err := e.apply(s, session.BotID, e.chooser.ChooseMove(s.Board))
			step = st
			return commit, err
		})
		if err == nil || errors.Is(err, errBotSkipped) || errors.Is(err, session.ErrNotFound) {
			break
		}
		obslog.L().Error("ttt_bot_move_error", zap.String("key", prev.Key), zap.Int("attempt", attempt), zap.Error(err))
	}
	switch {
	case err == nil:
		res.Session = snap
		res.Steps = append(res.Steps, step)
		e.after(snap, step)
	case errors.Is(err, errBotSkipped), errors.Is(err, session.ErrNotFound):
	default:
		e.abandon(ctx, res)
	}
}

// abandon removes a game the bot could not continue.
func (e *Engine) abandon(ctx context.Context, res *MoveResult) {
	key := res.Session.Key
	ended, err := e.store.Mutate(ctx, key, func(s *session.Session) (session.Commit, error) {
		// 그 사이 새 대국이 시작됐으면 건드리지 않음
		if s.GameID != res.Session.GameID {
			return session.Keep, errBotSkipped
		}
		s.Active = false
		return session.Delete, nil
	})
	if err != nil {
		obslog.L().Warn("ttt_bot_abandon_error", zap.String("key", key), zap.Error(err))
		return
	}
	e.dog.Cancel(key)
	res.Session = ended
	res.Abandoned = true
	obslog.L().Warn("ttt_bot_abandoned", zap.String("key", key), zap.String("game_id", ended.GameID))
}

// Reset clears the board of a running game; players and GameID are kept.
func (e *Engine) Reset(ctx context.Context, key string) (*session.Session, error) {
	snap, err := e.store.Mutate(ctx, key, func(s *session.Session) (session.Commit, error) {
		if !s.Active {
			return session.Keep, ErrNoActiveSession
		}
		s.Board = board.Board{}
		s.Turn = 0
		s.Moves = 0
		s.Seq++
		s.LastMoveAt = e.now()
		return session.Save, nil
	})
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return snap, err
	}
	e.dog.Arm(snap)
	obslog.L().Info("ttt_reset", zap.String("key", key), zap.String("game_id", snap.GameID))
	return snap, nil
}

// End deletes the session regardless of state. No stats are written.
func (e *Engine) End(ctx context.Context, key string) (*session.Session, error) {
	snap, err := e.store.Mutate(ctx, key, func(s *session.Session) (session.Commit, error) {
		s.Active = false
		return session.Delete, nil
	})
	e.dog.Cancel(key)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	obslog.L().Info("ttt_end", zap.String("key", key), zap.String("game_id", snap.GameID))
	return snap, nil
}

// Status returns the session for key or nil.
func (e *Engine) Status(ctx context.Context, key string) (*session.Session, error) {
	return e.store.Get(ctx, key)
}

// Shutdown stops all pending timers.
func (e *Engine) Shutdown() { e.dog.Stop() }
