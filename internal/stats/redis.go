package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyWins   = "ttt:stats:wins"
	keyActive = "ttt:stats:active"
)

func playerKey(id string) string    { return "ttt:stats:player:" + strings.TrimSpace(id) }
func historyKey(chat string) string { return "ttt:history:" + strings.TrimSpace(chat) }

// RedisSink keeps counters in hashes, rankings in sorted sets and history
// in capped lists.
type RedisSink struct {
	rdb        *redis.Client
	historyCap int64
}

func NewRedisSink(rdb *redis.Client, historyCap int) *RedisSink {
	return &RedisSink{rdb: rdb, historyCap: int64(historyCap)}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSinkUnavailable, op, err)
}

func (r *RedisSink) IncrementStat(ctx context.Context, p Player, kind Kind, at time.Time) error {
	if p.Bot {
		return nil
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown stat kind %q", kind)
	}
	var winDelta float64
	if kind == KindWin {
		winDelta = 1
	}
	pipe := r.rdb.TxPipeline()
	pk := playerKey(p.ID)
	if p.Name != "" {
		pipe.HSet(ctx, pk, "name", p.Name)
	}
	pipe.HIncrBy(ctx, pk, string(kind), 1)
	pipe.HSet(ctx, pk, "last", at.UnixMilli())
	pipe.ZIncrBy(ctx, keyWins, winDelta, p.ID)
	pipe.ZAdd(ctx, keyActive, redis.Z{Score: float64(at.UnixMilli()), Member: p.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("increment", err)
	}
	return nil
}

func (r *RedisSink) load(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, playerKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("load", err)
	}
	out := make([]Record, 0, len(ids))
	for i, c := range cmds {
		m, err := c.Result()
		if err != nil || len(m) == 0 {
			continue
		}
		out = append(out, recordFromHash(ids[i], m))
	}
	return out, nil
}

func recordFromHash(id string, m map[string]string) Record {
	num := func(k string) int64 {
		n, _ := strconv.ParseInt(m[k], 10, 64)
		return n
	}
	rec := Record{
		PlayerID: id,
		Name:     m["name"],
		Wins:     num(string(KindWin)),
		Losses:   num(string(KindLoss)),
		Draws:    num(string(KindDraw)),
	}
	if ms := num("last"); ms > 0 {
		rec.LastActive = time.UnixMilli(ms)
	}
	return rec
}

func (r *RedisSink) QueryTop(ctx context.Context, n int, since time.Time) ([]Record, error) {
	var (
		ids []string
		err error
	)
	if since.IsZero() {
		ids, err = r.topByWins(ctx, n)
	} else {
		ids, err = r.rdb.ZRangeByScore(ctx, keyActive, &redis.ZRangeBy{
			Min: strconv.FormatInt(since.UnixMilli(), 10),
			Max: "+inf",
		}).Result()
	}
	if err != nil {
		return nil, unavailable("top", err)
	}
	recs, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	sortTop(recs)
	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs, nil
}

// topByWins returns the n best by wins plus everyone tied with the n-th, so
// sortTop decides the order at the cut instead of the sorted set.
func (r *RedisSink) topByWins(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return r.rdb.ZRevRange(ctx, keyWins, 0, -1).Result()
	}
	edge, err := r.rdb.ZRevRangeWithScores(ctx, keyWins, int64(n-1), int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(edge) == 0 {
		return r.rdb.ZRevRange(ctx, keyWins, 0, -1).Result()
	}
	return r.rdb.ZRevRangeByScore(ctx, keyWins, &redis.ZRangeBy{
		Min: strconv.FormatFloat(edge[0].Score, 'f', -1, 64),
		Max: "+inf",
	}).Result()
}

func (r *RedisSink) AppendHistory(ctx context.Context, chat string, e HistoryEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.RPush(ctx, historyKey(chat), raw)
	if r.historyCap > 0 {
		pipe.LTrim(ctx, historyKey(chat), -r.historyCap, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("history append", err)
	}
	return nil
}

func (r *RedisSink) GetStats(ctx context.Context, playerID string) (Record, error) {
	m, err := r.rdb.HGetAll(ctx, playerKey(playerID)).Result()
	if err != nil {
		return Record{}, unavailable("stats", err)
	}
	if len(m) == 0 {
		return Record{PlayerID: playerID}, nil
	}
	return recordFromHash(playerID, m), nil
}

func (r *RedisSink) GetHistory(ctx context.Context, chat string, limit int) ([]HistoryEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raws, err := r.rdb.LRange(ctx, historyKey(chat), start, -1).Result()
	if err != nil {
		return nil, unavailable("history", err)
	}
	out := make([]HistoryEntry, 0, len(raws))
	for _, raw := range raws {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
