package stats

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemorySink is the in-process sink used when no backend is configured.
type MemorySink struct {
	mu         sync.RWMutex
	records    map[string]*Record
	history    map[string][]HistoryEntry
	historyCap int
}

// NewMemorySink keeps at most historyCap entries per chat (0 keeps all).
func NewMemorySink(historyCap int) *MemorySink {
	return &MemorySink{
		records:    make(map[string]*Record),
		history:    make(map[string][]HistoryEntry),
		historyCap: historyCap,
	}
}

func (m *MemorySink) IncrementStat(_ context.Context, p Player, kind Kind, at time.Time) error {
	if p.Bot {
		return nil
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown stat kind %q", kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[p.ID]
	if !ok {
		r = &Record{PlayerID: p.ID}
		m.records[p.ID] = r
	}
	if p.Name != "" {
		r.Name = p.Name
	}
	switch kind {
	case KindWin:
		r.Wins++
	case KindLoss:
		r.Losses++
	case KindDraw:
		r.Draws++
	}
	if at.After(r.LastActive) {
		r.LastActive = at
	}
	return nil
}

func (m *MemorySink) QueryTop(_ context.Context, n int, since time.Time) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if !since.IsZero() && r.LastActive.Before(since) {
			continue
		}
		out = append(out, *r)
	}
	m.mu.RUnlock()
	sortTop(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemorySink) AppendHistory(_ context.Context, chat string, e HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := append(m.history[chat], e)
	if m.historyCap > 0 && len(h) > m.historyCap {
		h = append([]HistoryEntry(nil), h[len(h)-m.historyCap:]...)
	}
	m.history[chat] = h
	return nil
}

func (m *MemorySink) GetStats(_ context.Context, playerID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.records[playerID]; ok {
		return *r, nil
	}
	return Record{PlayerID: playerID}, nil
}

func (m *MemorySink) GetHistory(_ context.Context, chat string, limit int) ([]HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lastN(m.history[chat], limit), nil
}
