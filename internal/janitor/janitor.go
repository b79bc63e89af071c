// Package janitor trims stored game history on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs the prune once an hour.
const DefaultSchedule = "@hourly"

// cronParser accepts 5-field expressions and descriptors such as @hourly.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Pruner deletes all but the newest keep history rows per chat.
type Pruner interface {
	PruneHistory(ctx context.Context, keep int) (int64, error)
}

type Janitor struct {
	pruner  Pruner
	keep    int
	timeout time.Duration
	cron    *cron.Cron

	mu      sync.Mutex
	started bool
}

// New validates schedule and registers the prune job. keep <= 0 disables
// pruning; RunOnce then reports zero deletions.
func New(p Pruner, schedule string, keep int) (*Janitor, error) {
	if p == nil {
		return nil, fmt.Errorf("janitor: pruner is required")
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", schedule, err)
	}
	j := &Janitor{pruner: p, keep: keep, timeout: 30 * time.Second}
	j.cron = cron.New(cron.WithParser(cronParser))
	j.cron.Schedule(sched, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	}))
	return j, nil
}

// RunOnce prunes immediately.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if j.keep <= 0 {
		return 0, nil
	}
	n, err := j.pruner.PruneHistory(ctx, j.keep)
	if err != nil {
		obslog.L().Warn("history_prune_failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		obslog.L().Info("history_pruned", zap.Int64("deleted", n), zap.Int("keep", j.keep))
	}
	return n, nil
}

// Next reports the next scheduled run after now.
func (j *Janitor) Next(now time.Time) time.Time {
	entries := j.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(now)
}

func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.cron.Start()
}

// Stop halts the scheduler and waits for a running prune to finish or ctx to end.
func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	j.mu.Unlock()

	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}
