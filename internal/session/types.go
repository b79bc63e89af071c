package session

import (
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
)

// BotID identifies the built-in random opponent.
const BotID = "__bot__"

// Identity is a participant as seen by the transport.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Bot is the identity used for solo games.
var Bot = Identity{ID: BotID, Name: "Bot"}

func (i Identity) IsBot() bool { return i.ID == BotID }

// Status is derived from Active and the player count.
type Status string

const (
	StatusRecruiting Status = "RECRUITING"
	StatusInProgress Status = "IN_PROGRESS"
)

// Session is the persisted state of one game keyed by chat (or chat:user for solo).
type Session struct {
	Key        string      `json:"key"`
	Chat       string      `json:"chat"`
	GameID     string      `json:"game_id,omitempty"`
	Players    []Identity  `json:"players"`
	Board      board.Board `json:"board"`
	Turn       int         `json:"turn"`
	Active     bool        `json:"active"`
	Solo       bool        `json:"solo,omitempty"`
	Seq        uint64      `json:"seq"`
	Moves      int         `json:"moves"`
	CreatedAt  time.Time   `json:"created_at"`
	LastMoveAt time.Time   `json:"last_move_at"`
}

// NewRecruiting returns an empty session waiting for players.
func NewRecruiting(key, chat string, now time.Time) *Session {
	return &Session{Key: key, Chat: chat, CreatedAt: now, LastMoveAt: now}
}

func (s *Session) Status() Status {
	if s.Active {
		return StatusInProgress
	}
	return StatusRecruiting
}

// Current returns the identity whose turn it is.
func (s *Session) Current() Identity {
	if s.Turn < 0 || s.Turn >= len(s.Players) {
		return Identity{}
	}
	return s.Players[s.Turn]
}

// Other returns the player that is not at index i.
func (s *Session) Other(i int) Identity {
	if len(s.Players) != 2 {
		return Identity{}
	}
	return s.Players[1-i]
}

// IndexOf returns the player slot of id or -1.
func (s *Session) IndexOf(id string) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) HasPlayer(id string) bool { return s.IndexOf(id) >= 0 }

// Clone returns a deep copy. Board is an array so it copies by value.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = append([]Identity(nil), s.Players...)
	return &c
}

// SoloKey scopes a bot game to one user inside a chat.
func SoloKey(chat, userID string) string { return chat + ":" + userID }
