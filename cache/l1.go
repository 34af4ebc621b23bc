package cache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 is an in-process document backend backed by ristretto. Every document
// costs one unit, so the size bounds the number of tickers held.
type L1 struct {
	rc *ristretto.Cache[string, []byte]
}

// L1Stats is a snapshot of the ristretto counters of an [L1].
type L1Stats struct {
	Hits    uint64
	Misses  uint64
	Evicted uint64
}

// Ratio returns hits over lookups, or 0 before the first lookup.
func (s L1Stats) Ratio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewL1 creates an L1 backend holding at most maxEntries documents.
func NewL1(maxEntries int64) (*L1, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("cache: l1 size must be positive, got %d", maxEntries)
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: l1: %w", err)
	}
	return &L1{rc: rc}, nil
}

// Get retrieves a copy of the document under key.
func (l *L1) Get(_ context.Context, key string) ([]byte, bool, error) {
	doc, ok := l.rc.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(doc), true, nil
}

// Set stores a copy of doc. The write is visible to readers once Set
// returns. ristretto may still refuse an admission under pressure; that is
// a miss later, never an error.
func (l *L1) Set(_ context.Context, key string, doc []byte, ttl time.Duration) error {
	l.rc.SetWithTTL(key, bytes.Clone(doc), 1, ttl)
	l.rc.Wait()
	return nil
}

// Delete removes key.
func (l *L1) Delete(_ context.Context, key string) error {
	l.rc.Del(key)
	return nil
}

// Stats returns the lookup and eviction counters.
func (l *L1) Stats() L1Stats {
	m := l.rc.Metrics
	return L1Stats{Hits: m.Hits(), Misses: m.Misses(), Evicted: m.KeysEvicted()}
}

// Close stops ristretto's background goroutines.
func (l *L1) Close() error {
	l.rc.Close()
	return nil
}
