package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"go.uber.org/zap"
)

// Outcome is a finished game handed from the engine to the recorder.
// Winner and Loser are nil for a draw.
type Outcome struct {
	Chat    string
	GameID  string
	Players []Player
	Winner  *Player
	Loser   *Player
	At      time.Time
}

func (o Outcome) Draw() bool { return o.Winner == nil }

// HistoryText is the line appended to the chat history.
func (o Outcome) HistoryText() string {
	if o.Draw() {
		return "Game ended in draw"
	}
	loser := ""
	if o.Loser != nil {
		loser = o.Loser.Name
	}
	return o.Winner.Name + " defeated " + loser
}

// ErrRecorderClosed is returned by Record after Close.
var ErrRecorderClosed = errors.New("recorder closed")

// Recorder writes outcomes to a Sink off the caller's goroutine. Each sink
// call is retried with backoff; after the last attempt the write is dropped
// and logged.
type Recorder struct {
	sink     Sink
	queue    chan Outcome
	attempts int
	backoff  func(attempt int) time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type RecorderOption func(*Recorder)

// WithRetry sets the attempts per sink call and the backoff between them.
func WithRetry(attempts int, backoff func(attempt int) time.Duration) RecorderOption {
	return func(r *Recorder) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if backoff != nil {
			r.backoff = backoff
		}
	}
}

func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Outcome, n)
		}
	}
}

func defaultBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := 200 * time.Millisecond * time.Duration(1<<uint(attempt-1))
	if d > 3*time.Second {
		d = 3 * time.Second
	}
	return d
}

func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sink:     sink,
		queue:    make(chan Outcome, 256),
		attempts: 3,
		backoff:  defaultBackoff,
		timeout:  5 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Recorder) Sink() Sink { return r.sink }

// Record enqueues o without blocking the caller. A full queue drops the outcome.
func (r *Recorder) Record(o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- o:
		return nil
	default:
		obslog.L().Warn("stats_queue_full", zap.String("game_id", o.GameID), zap.String("chat", o.Chat))
		return ErrSinkUnavailable
	}
}

// Close stops accepting outcomes and waits for queued ones, bounded by ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for o := range r.queue {
		r.write(o)
	}
}

func (r *Recorder) write(o Outcome) {
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	inc := func(p *Player, kind Kind) {
		if p == nil || p.Bot {
			return
		}
		pl := *p
		r.retry(o, "increment_"+string(kind), func(ctx context.Context) error {
			return r.sink.IncrementStat(ctx, pl, kind, at)
		})
	}
	if o.Draw() {
		for i := range o.Players {
			inc(&o.Players[i], KindDraw)
		}
	} else {
		inc(o.Winner, KindWin)
		inc(o.Loser, KindLoss)
	}
	entry := HistoryEntry{Text: o.HistoryText(), At: at}
	r.retry(o, "append_history", func(ctx context.Context) error {
		return r.sink.AppendHistory(ctx, o.Chat, entry)
	})
}

func (r *Recorder) retry(o Outcome, op string, fn func(ctx context.Context) error) {
	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if d := r.backoff(attempt); d > 0 {
			time.Sleep(d)
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err = fn(ctx)
		cancel()
		if err == nil {
			return
		}
		obslog.L().Warn("stats_write_retry",
			zap.String("op", op),
			zap.String("game_id", o.GameID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	obslog.L().Error("stats_write_dropped", zap.String("op", op), zap.String("game_id", o.GameID), zap.String("chat", o.Chat), zap.Error(err))
}
