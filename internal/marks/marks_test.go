package marks

import (
	"testing"

	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/stretchr/testify/assert"
)

func sess(ids ...string) *session.Session {
	s := &session.Session{}
	for _, id := range ids {
		s.Players = append(s.Players, session.Identity{ID: id})
	}
	return s
}

func TestDefaultsAndOverrides(t *testing.T) {
	r := NewRegistry([2]string{}, map[string]string{"u2": "🐱"})
	assert.Equal(t, [2]string{"❌", "⭕"}, r.Pair(sess("u1", "u3")))
	assert.Equal(t, [2]string{"❌", "🐱"}, r.Pair(sess("u1", "u2")))
	assert.Equal(t, [2]string{"🐱", "⭕"}, r.Pair(sess("u2", "u1")))
}

func TestSetValidates(t *testing.T) {
	r := NewRegistry(Default, nil)
	assert.ErrorIs(t, r.Set("u", ""), ErrInvalidMark)
	assert.ErrorIs(t, r.Set("u", "a b"), ErrInvalidMark)
	assert.ErrorIs(t, r.Set("u", "waytoolongmark"), ErrInvalidMark)
	assert.NoError(t, r.Set("u", "🔥"))
	assert.Equal(t, "🔥", r.Mark("u", 1))
	r.Clear("u")
	assert.Equal(t, "⭕", r.Mark("u", 1))
}

func TestSameMarkFallsBack(t *testing.T) {
	r := NewRegistry(Default, map[string]string{"a": "🔥", "b": "🔥"})
	assert.Equal(t, [2]string{"🔥", "⭕"}, r.Pair(sess("a", "b")))

	r = NewRegistry(Default, map[string]string{"b": "❌"})
	assert.Equal(t, [2]string{"❌", "⭕"}, r.Pair(sess("a", "b")))

	r = NewRegistry(Default, map[string]string{"a": "⭕"})
	assert.Equal(t, [2]string{"⭕", "❌"}, r.Pair(sess("a", "b")))
}
