// Package marks resolves the emoji shown for each player. Marks are purely
// cosmetic; the board stores logical marks only.
package marks

import (
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
)

var ErrInvalidMark = errors.New("invalid mark")

const maxMarkRunes = 8

// Registry holds the default pair and per-user overrides.
type Registry struct {
	mu        sync.RWMutex
	defaults  [2]string
	overrides map[string]string
}

// Default pair used when nothing is configured.
var Default = [2]string{"❌", "⭕"}

func NewRegistry(defaults [2]string, overrides map[string]string) *Registry {
	if defaults[0] == "" {
		defaults[0] = Default[0]
	}
	if defaults[1] == "" {
		defaults[1] = Default[1]
	}
	r := &Registry{defaults: defaults, overrides: make(map[string]string, len(overrides))}
	for k, v := range overrides {
		if v = strings.TrimSpace(v); v != "" {
			r.overrides[k] = v
		}
	}
	return r
}

// Set stores a user's preferred mark.
func (r *Registry) Set(userID, mark string) error {
	mark = strings.TrimSpace(mark)
	if mark == "" || utf8.RuneCountInString(mark) > maxMarkRunes || strings.ContainsAny(mark, " \t\n") {
		return ErrInvalidMark
	}
	r.mu.Lock()
	r.overrides[userID] = mark
	r.mu.Unlock()
	return nil
}

// Clear drops a user's override.
func (r *Registry) Clear(userID string) {
	r.mu.Lock()
	delete(r.overrides, userID)
	r.mu.Unlock()
}

// Mark returns the symbol for userID playing in slot turn.
func (r *Registry) Mark(userID string, turn int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.overrides[userID]; ok {
		return m
	}
	return r.defaults[turn&1]
}

// Pair resolves both symbols for a session. If both players picked the same
// mark the second player falls back to the default for its slot.
func (r *Registry) Pair(s *session.Session) [2]string {
	var out [2]string
	for i := 0; i < 2; i++ {
		id := ""
		if i < len(s.Players) {
			id = s.Players[i].ID
		}
		out[i] = r.Mark(id, i)
	}
	if out[0] == out[1] {
		if out[1] != r.defaults[1] {
			out[1] = r.defaults[1]
		} else {
			out[1] = r.defaults[0]
		}
	}
	return out
}
