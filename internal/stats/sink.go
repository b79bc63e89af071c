// Package stats persists per-player win/loss/draw counters and per-chat
// game history.
package stats

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrSinkUnavailable wraps backend failures that callers may retry.
var ErrSinkUnavailable = errors.New("stats sink unavailable")

type Kind string

const (
	KindWin  Kind = "win"
	KindLoss Kind = "loss"
	KindDraw Kind = "draw"
)

func (k Kind) Valid() bool { return k == KindWin || k == KindLoss || k == KindDraw }

// Player is who a counter belongs to. Bot players are never recorded.
type Player struct {
	ID   string
	Name string
	Bot  bool
}

// Record holds one player's counters.
type Record struct {
	PlayerID   string    `json:"player_id"`
	Name       string    `json:"name"`
	Wins       int64     `json:"wins"`
	Losses     int64     `json:"losses"`
	Draws      int64     `json:"draws"`
	LastActive time.Time `json:"last_active"`
}

func (r Record) Games() int64 { return r.Wins + r.Losses + r.Draws }

// HistoryEntry is one finished game line for a chat.
type HistoryEntry struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Sink is the persistence contract for statistics. QueryTop with a zero
// since returns the overall table; otherwise only players active at or
// after since. GetHistory returns entries oldest first; limit <= 0 means all.
type Sink interface {
	IncrementStat(ctx context.Context, p Player, kind Kind, at time.Time) error
	QueryTop(ctx context.Context, n int, since time.Time) ([]Record, error)
	AppendHistory(ctx context.Context, chat string, e HistoryEntry) error
	GetStats(ctx context.Context, playerID string) (Record, error)
	GetHistory(ctx context.Context, chat string, limit int) ([]HistoryEntry, error)
}

// sortTop orders by wins, then fewer losses, then name.
func sortTop(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.PlayerID < b.PlayerID
	})
}

func lastN(entries []HistoryEntry, limit int) []HistoryEntry {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]HistoryEntry(nil), entries...)
}

// StartOfDay returns local midnight of t, used for the "today" leaderboard.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
