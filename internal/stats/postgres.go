package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS ttt_stats (
	player_id   TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	win         BIGINT NOT NULL DEFAULT 0,
	loss        BIGINT NOT NULL DEFAULT 0,
	draw        BIGINT NOT NULL DEFAULT 0,
	last_active TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ttt_stats_win_idx ON ttt_stats (win DESC);
CREATE INDEX IF NOT EXISTS ttt_stats_active_idx ON ttt_stats (last_active);
CREATE TABLE IF NOT EXISTS ttt_history (
	id         BIGSERIAL PRIMARY KEY,
	chat       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ttt_history_chat_idx ON ttt_history (chat, id DESC);
`

// PostgresSink stores statistics in two tables. History retention is done
// by PruneHistory rather than on every insert.
type PostgresSink struct {
	db *sql.DB
}

// OpenPostgres connects with the pool settings used across the bot.
func OpenPostgres(databaseURL string) (*PostgresSink, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("ping", err)
	}
	return &PostgresSink{db: db}, nil
}

func NewPostgresSink(db *sql.DB) *PostgresSink { return &PostgresSink{db: db} }

func (p *PostgresSink) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Migrate creates the tables when missing.
func (p *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate stats schema: %w", err)
	}
	return nil
}

var kindColumn = map[Kind]string{KindWin: "win", KindLoss: "loss", KindDraw: "draw"}

func (p *PostgresSink) IncrementStat(ctx context.Context, pl Player, kind Kind, at time.Time) error {
	if pl.Bot {
		return nil
	}
	col, ok := kindColumn[kind]
	if !ok {
		return fmt.Errorf("unknown stat kind %q", kind)
	}
	q := fmt.Sprintf(`INSERT INTO ttt_stats (player_id, name, %[1]s, last_active)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (player_id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name = '' THEN ttt_stats.name ELSE EXCLUDED.name END,
			%[1]s = ttt_stats.%[1]s + 1,
			last_active = GREATEST(ttt_stats.last_active, EXCLUDED.last_active)`, col)
	if _, err := p.db.ExecContext(ctx, q, pl.ID, pl.Name, at); err != nil {
		return unavailable("increment", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.PlayerID, &r.Name, &r.Wins, &r.Losses, &r.Draws, &r.LastActive); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresSink) QueryTop(ctx context.Context, n int, since time.Time) ([]Record, error) {
	if n <= 0 {
		n = 1 << 20
	}
	const cols = `SELECT player_id, name, win, loss, draw, last_active FROM ttt_stats`
	const order = ` ORDER BY win DESC, loss ASC, name ASC, player_id ASC LIMIT $1`
	var (
		rows *sql.Rows
		err  error
	)
	if since.IsZero() {
		rows, err = p.db.QueryContext(ctx, cols+order, n)
	} else {
		rows, err = p.db.QueryContext(ctx, cols+` WHERE last_active >= $2`+order, n, since)
	}
	if err != nil {
		return nil, unavailable("top", err)
	}
	return scanRecords(rows)
}

func (p *PostgresSink) AppendHistory(ctx context.Context, chat string, e HistoryEntry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := p.db.ExecContext(ctx, `INSERT INTO ttt_history (chat, text, created_at) VALUES ($1, $2, $3)`, chat, e.Text, at); err != nil {
		return unavailable("history append", err)
	}
	return nil
}

func (p *PostgresSink) GetStats(ctx context.Context, playerID string) (Record, error) {
	r := Record{PlayerID: playerID}
	err := p.db.QueryRowContext(ctx,
		`SELECT name, win, loss, draw, last_active FROM ttt_stats WHERE player_id = $1`, playerID,
	).Scan(&r.Name, &r.Wins, &r.Losses, &r.Draws, &r.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{PlayerID: playerID}, nil
	}
	if err != nil {
		return Record{}, unavailable("stats", err)
	}
	return r, nil
}

func (p *PostgresSink) GetHistory(ctx context.Context, chat string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 1 << 20
	}
	rows, err := p.db.QueryContext(ctx, `SELECT text, created_at FROM (
			SELECT id, text, created_at FROM ttt_history WHERE chat = $1 ORDER BY id DESC LIMIT $2
		) h ORDER BY id ASC`, chat, limit)
	if err != nil {
		return nil, unavailable("history", err)
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Text, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneHistory keeps the newest keep rows per chat and returns how many were deleted.
func (p *PostgresSink) PruneHistory(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM ttt_history WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (PARTITION BY chat ORDER BY id DESC) AS rn FROM ttt_history
			) ranked WHERE rn > $1
		)`, keep)
	if err != nil {
		return 0, unavailable("prune", err)
	}
	return res.RowsAffected()
}
