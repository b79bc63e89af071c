// Package watchdog ends games whose current player has been idle for longer
// than the turn window.
package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"go.uber.org/zap"
)

// ExpireFunc is called after a timed-out session has been removed. idle is
// the player who failed to move.
type ExpireFunc func(ctx context.Context, ended *session.Session, idle session.Identity)

type armed struct {
	timer  Timer
	gen    uint64
	gameID string
	seq    uint64
}

// Supervisor keeps at most one pending timer per session key.
type Supervisor struct {
	store  session.Store
	window time.Duration
	clock  Clock

	mu       sync.Mutex
	gen      uint64
	timers   map[string]*armed
	onExpire ExpireFunc
	stopped  bool
}

type Option func(*Supervisor)

func WithClock(c Clock) Option { return func(s *Supervisor) { s.clock = c } }

func New(store session.Store, window time.Duration, opts ...Option) *Supervisor {
	s := &Supervisor{
		store:  store,
		window: window,
		clock:  RealClock(),
		timers: make(map[string]*armed),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OnExpire registers the expiry callback. Replaces any previous one.
func (s *Supervisor) OnExpire(fn ExpireFunc) {
	s.mu.Lock()
	s.onExpire = fn
	s.mu.Unlock()
}

func (s *Supervisor) Window() time.Duration { return s.window }

// Arm (re)starts the countdown for key. The snapshot's GameID and Seq are
// remembered; the timer is a no-op if the session has moved on by the time
// it fires. A snapshot older than the armed one for the same game is ignored.
func (s *Supervisor) Arm(snap *session.Session) {
	if snap == nil || !snap.Active || snap.Current().IsBot() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	// 늦게 도착한 이전 스냅샷이 최신 타이머를 덮지 않도록
	if prev, ok := s.timers[snap.Key]; ok && prev.gameID == snap.GameID && prev.seq > snap.Seq {
		return
	}
	s.armLocked(snap, s.window)
}

func (s *Supervisor) armLocked(snap *session.Session, d time.Duration) {
	if prev, ok := s.timers[snap.Key]; ok {
		prev.timer.Stop()
	}
	s.gen++
	a := &armed{gen: s.gen, gameID: snap.GameID, seq: snap.Seq}
	key, gen := snap.Key, a.gen
	a.timer = s.clock.AfterFunc(d, func() { s.fire(key, gen) })
	s.timers[key] = a
}

// remaining is what is left of the window since last. A clock that stepped
// backwards yields the full window.
func (s *Supervisor) remaining(last time.Time) time.Duration {
	d := s.window - s.clock.Now().Sub(last)
	if d > s.window {
		return s.window
	}
	return max(d, 0)
}

// Cancel stops the timer for key if one is pending.
func (s *Supervisor) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.timers[key]; ok {
		a.timer.Stop()
		delete(s.timers, key)
	}
}

// Armed reports whether a timer is pending for key.
func (s *Supervisor) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Stop cancels every timer and refuses new ones.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for k, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, k)
	}
}

func (s *Supervisor) fire(key string, gen uint64) {
	s.mu.Lock()
	a, ok := s.timers[key]
	if !ok || a.gen != gen {
		s.mu.Unlock()
		return
	}
	gameID, seq := a.gameID, a.seq
	s.mu.Unlock()

	ctx := context.Background()
	var (
		idle    session.Identity
		resched *session.Session
	)
	ended, err := s.store.Mutate(ctx, key, func(cur *session.Session) (session.Commit, error) {
		if !cur.Active {
			return session.Keep, nil
		}
		if cur.GameID != gameID || cur.Seq != seq || s.clock.Now().Sub(cur.LastMoveAt) < s.window {
			// 대국이 진행됐거나 시계가 뒤로 감: 저장된 상태 기준으로 다시 감시
			if !cur.Current().IsBot() {
				resched = cur.Clone()
			}
			return session.Keep, nil
		}
		idle = cur.Current()
		cur.Active = false
		return session.Delete, nil
	})

	s.mu.Lock()
	if cur, ok := s.timers[key]; ok && cur.gen == gen {
		if resched != nil && err == nil && !s.stopped {
			s.armLocked(resched, s.remaining(resched.LastMoveAt))
		} else {
			delete(s.timers, key)
		}
	}
	cb := s.onExpire
	s.mu.Unlock()

	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			obslog.L().Warn("watchdog_expire_error", zap.String("key", key), zap.Error(err))
		}
		return
	}
	if idle.ID == "" {
		obslog.L().Debug("watchdog_stale", zap.String("key", key), zap.String("game_id", gameID), zap.Bool("rearmed", resched != nil))
		return
	}
	obslog.L().Info("watchdog_expired",
		zap.String("key", key),
		zap.String("game_id", gameID),
		zap.String("idle_id", idle.ID),
		zap.Int("moves", ended.Moves),
	)
	if cb != nil {
		cb(ctx, ended, idle)
	}
}
