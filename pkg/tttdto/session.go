package tttdto

type PlayerView struct {
	ID   string
	Name string
	Mark string
	Bot  bool
}

// SessionState is what a transport needs to draw a game.
type SessionState struct {
	Key        string
	Chat       string
	GameID     string
	Status     string
	Players    []PlayerView
	Cells      [9]string
	Filled     [9]bool
	Grid       string
	Turn       int
	LastCell   int
	Moves      int
	BoardImage []byte
	// Playable is false once the game is over; transports drop the keyboard.
	Playable bool
	Solo     bool
}

// Current returns the player to move, or nil while recruiting.
func (s *SessionState) Current() *PlayerView {
	if s == nil || s.Turn < 0 || s.Turn >= len(s.Players) {
		return nil
	}
	return &s.Players[s.Turn]
}

// EmptyCell reports whether cell i (0..8) can still be played.
func (s *SessionState) EmptyCell(i int) bool {
	if s == nil || i < 0 || i >= len(s.Filled) {
		return false
	}
	return !s.Filled[i]
}
