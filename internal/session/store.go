package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Mutate when no session exists for the key.
var ErrNotFound = errors.New("session not found")

// Commit tells the store what to do with the session after a mutation.
type Commit int

const (
	Keep Commit = iota
	Save
	Delete
)

// MutateFunc edits s in place. It runs while the key is held exclusively,
// so reads and writes inside it are atomic with respect to other callers.
type MutateFunc func(s *Session) (Commit, error)

// Store keeps sessions keyed by chat. Implementations must serialize
// Create, Mutate and Remove on the same key.
type Store interface {
	// Create inserts s unless a session already exists, in which case the
	// existing one is returned with created=false.
	Create(ctx context.Context, s *Session) (cur *Session, created bool, err error)
	// Get returns nil, nil when absent.
	Get(ctx context.Context, key string) (*Session, error)
	// Mutate returns a snapshot after fn ran. On Delete the snapshot is the
	// final state. When fn fails nothing is written and the unmodified
	// session is returned with fn's error.
	Mutate(ctx context.Context, key string, fn MutateFunc) (*Session, error)
	Remove(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}
