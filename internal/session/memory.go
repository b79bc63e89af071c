package session

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/Cheese-TicTacToe-bot/internal/session/keylock"
)

// MemoryStore holds sessions in process. Per-key locks keep one chat from
// blocking another.
type MemoryStore struct {
	locks *keylock.Locks

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: keylock.New(), sessions: make(map[string]*Session)}
}

func (m *MemoryStore) load(key string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[key]
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) (*Session, bool, error) {
	var (
		out     *Session
		created bool
	)
	err := m.locks.With(ctx, s.Key, func() error {
		if cur := m.load(s.Key); cur != nil {
			out = cur.Clone()
			return nil
		}
		m.mu.Lock()
		m.sessions[s.Key] = s.Clone()
		m.mu.Unlock()
		out, created = s.Clone(), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Session, error) {
	return m.load(key).Clone(), nil
}

func (m *MemoryStore) Mutate(ctx context.Context, key string, fn MutateFunc) (*Session, error) {
	unlock, err := m.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur := m.load(key)
	if cur == nil {
		return nil, ErrNotFound
	}
	work := cur.Clone()
	commit, err := fn(work)
	if err != nil {
		return cur.Clone(), err
	}
	switch commit {
	case Save:
		m.mu.Lock()
		m.sessions[key] = work.Clone()
		m.mu.Unlock()
	case Delete:
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
	default:
		return cur.Clone(), nil
	}
	return work, nil
}

func (m *MemoryStore) Remove(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := m.locks.With(ctx, key, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		_, ok = m.sessions[key]
		delete(m.sessions, key)
		return nil
	})
	return ok, err
}

func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	out := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		out = append(out, k)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}
