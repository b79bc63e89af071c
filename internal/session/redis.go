package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessionTTL       = 24 * time.Hour
	maxWatchAttempts = 32
	keyPrefix        = "ttt:session:"
)

// RedisStore keeps sessions as JSON documents and uses WATCH/MULTI for
// optimistic concurrency. Any process sharing the Redis sees the same games.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: sessionTTL}
}

func sessionKey(key string) string { return keyPrefix + strings.TrimSpace(key) }

func decode(raw []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Create(ctx context.Context, s *Session) (*Session, bool, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, false, err
	}
	ok, err := r.rdb.SetNX(ctx, sessionKey(s.Key), raw, r.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return s.Clone(), true, nil
	}
	cur, err := r.Get(ctx, s.Key)
	if err != nil {
		return nil, false, err
	}
	if cur == nil {
		// SETNX와 GET 사이에 삭제됨
		return r.Create(ctx, s)
	}
	return cur, false, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (r *RedisStore) Mutate(ctx context.Context, key string, fn MutateFunc) (*Session, error) {
	k := sessionKey(key)
	// WATCH 충돌 시 재시도: 동시에 들어온 수는 하나만 반영됨
	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		var (
			out    *Session
			userEr error
		)
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, k).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			cur, err := decode(raw)
			if err != nil {
				return err
			}
			work := cur.Clone()
			commit, ferr := fn(work)
			if ferr != nil {
				out, userEr = cur, ferr
				return nil
			}
			pipe := tx.TxPipeline()
			switch commit {
			case Save:
				newRaw, err := json.Marshal(work)
				if err != nil {
					return err
				}
				pipe.Set(ctx, k, newRaw, r.ttl)
			case Delete:
				pipe.Del(ctx, k)
			default:
				out = cur
				return nil
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = work
			return nil
		}, k)
		if errors.Is(err, redis.TxFailedErr) {
			obslog.L().Debug("session_mutate_retry", zap.String("key", key), zap.Int("attempt", attempt+1))
			if err := sleepCtx(ctx, retryDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, userEr
	}
	return nil, fmt.Errorf("session %s: too much contention", key)
}

func (r *RedisStore) Remove(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Del(ctx, sessionKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func retryDelay(attempt int) time.Duration {
	d := time.Duration(attempt+1) * 2 * time.Millisecond
	if d > 50*time.Millisecond {
		d = 50 * time.Millisecond
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
