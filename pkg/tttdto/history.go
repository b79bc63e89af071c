package tttdto

import "time"

type HistoryItem struct {
	Text string
	At   time.Time
}

type LeaderRow struct {
	Rank       int
	PlayerID   string
	Name       string
	Wins       int64
	Losses     int64
	Draws      int64
	LastActive time.Time
}
