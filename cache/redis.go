package cache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces quote documents in Redis.
const KeyPrefix = "stock-api:"

// L2 is a Redis-backed document backend. Documents live under
// KeyPrefix+ticker. Unlike a plain cache it does not fail soft: connection
// failures surface as quote.ErrCacheUnavailable so the read path can fall
// back to a direct fetch.
type L2 struct {
	rdb redis.UniversalClient
}

// NewL2 creates a new Redis-backed L2 backend.
func NewL2(addr, password string, db int) *L2 {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &L2{rdb: rdb}
}

// NewL2FromURL creates an L2 backend from a redis:// URL. A URL without a
// scheme is treated as redis://.
func NewL2FromURL(rawURL string) (*L2, error) {
	opts, err := ParseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &L2{rdb: redis.NewClient(opts)}, nil
}

// NewL2WithClient wraps an existing client. The queue package shares one
// client with the cache this way.
func NewL2WithClient(rdb redis.UniversalClient) *L2 {
	return &L2{rdb: rdb}
}

// ParseRedisURL parses a Redis connection URL, adding the redis:// scheme
// when missing.
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	if !strings.HasPrefix(rawURL, "redis://") && !strings.HasPrefix(rawURL, "rediss://") {
		rawURL = "redis://" + rawURL
	}
	return redis.ParseURL(rawURL)
}

// Client exposes the underlying Redis client.
func (l *L2) Client() redis.UniversalClient {
	return l.rdb
}

// Get retrieves a document by key. A missing key is a miss, not an error.
func (l *L2) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := l.rdb.Get(ctx, KeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, unavailable("get", key, err)
	}
	return val, true, nil
}

// Set stores a document under key. A zero TTL means no expiry.
func (l *L2) Set(ctx context.Context, key string, doc []byte, ttl time.Duration) error {
	if err := l.rdb.Set(ctx, KeyPrefix+key, doc, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// Delete removes key.
func (l *L2) Delete(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// Symbols scans KeyPrefix and returns the stored tickers sorted. Keys that
// are not canonical tickers, such as the refresh queue, are skipped.
func (l *L2) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	iter := l.rdb.Scan(ctx, 0, KeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		sym := strings.TrimPrefix(iter.Val(), KeyPrefix)
		if sym == "" || sym != quote.Canonical(sym) {
			continue
		}
		out = append(out, sym)
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list", "*", err)
	}
	slices.Sort(out)
	return out, nil
}

// Ping checks the Redis connection.
func (l *L2) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (l *L2) Close() error {
	return l.rdb.Close()
}
