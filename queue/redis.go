package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the sorted set holding pending refreshes.
const DefaultRedisKey = "stock-api:refresh-queue"

// Redis is a RefreshQueue backed by a Redis sorted set. The score is the
// priority; ZADD replaces the score of an existing member, which gives
// deduplication for free.
type Redis struct {
	rdb   redis.UniversalClient
	key   string
	owned bool
}

// NewRedis creates a queue on an existing client. The client is not closed
// by Close.
func NewRedis(rdb redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{rdb: rdb, key: key}
}

// NewRedisAddr creates a queue with its own client.
func NewRedisAddr(addr, password string, db int, key string) *Redis {
	q := NewRedis(redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), key)
	q.owned = true
	return q
}

// Enqueue implements RefreshQueue.
func (r *Redis) Enqueue(ctx context.Context, key string, priority float64) error {
	err := r.rdb.ZAdd(ctx, r.key, redis.Z{Score: priority, Member: quote.Canonical(key)}).Err()
	return wrap("enqueue", err)
}

// DequeueOldest implements RefreshQueue. ZPOPMAX is atomic, so concurrent
// consumers never receive the same key.
func (r *Redis) DequeueOldest(ctx context.Context) (string, bool, error) {
	zs, err := r.rdb.ZPopMax(ctx, r.key, 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, wrap("dequeue", err)
	}
	if len(zs) == 0 {
		return "", false, nil
	}
	return memberString(zs[0].Member), true, nil
}

// Peek implements RefreshQueue.
func (r *Redis) Peek(ctx context.Context) (Entry, bool, error) {
	zs, err := r.rdb.ZRevRangeWithScores(ctx, r.key, 0, 0).Result()
	if err != nil {
		return Entry{}, false, wrap("peek", err)
	}
	if len(zs) == 0 {
		return Entry{}, false, nil
	}
	return Entry{Key: memberString(zs[0].Member), Priority: zs[0].Score}, true, nil
}

// Remove implements RefreshQueue.
func (r *Redis) Remove(ctx context.Context, key string) error {
	return wrap("remove", r.rdb.ZRem(ctx, r.key, quote.Canonical(key)).Err())
}

// Contains implements RefreshQueue.
func (r *Redis) Contains(ctx context.Context, key string) (bool, error) {
	err := r.rdb.ZScore(ctx, r.key, quote.Canonical(key)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, wrap("contains", err)
	}
	return true, nil
}

// Len implements RefreshQueue.
func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, wrap("len", err)
	}
	return int(n), nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the client when the queue created it.
func (r *Redis) Close() error {
	if r.owned {
		return r.rdb.Close()
	}
	return nil
}

func memberString(m any) string {
	if s, ok := m.(string); ok {
		return s
	}
	return fmt.Sprint(m)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", quote.ErrQueueUnavailable, op, err)
}
