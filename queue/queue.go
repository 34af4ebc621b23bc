// Package queue holds tickers waiting for a background refresh, ordered by
// cache age so the stalest ticker is always processed next.
package queue

import (
	"context"
	"math"
)

// NeverCached is the priority of a ticker with no cache entry. It sorts
// ahead of every real age.
const NeverCached = math.MaxFloat64

// Entry is one pending refresh.
type Entry struct {
	Key      string
	Priority float64
}

// RefreshQueue is the refresh queue contract. Keys are unique: enqueueing a
// key that is already pending only replaces its priority. Implementations
// are safe for concurrent producers and a single consumer.
type RefreshQueue interface {
	// Enqueue adds key with priority, or updates the priority of a pending
	// key.
	Enqueue(ctx context.Context, key string, priority float64) error

	// DequeueOldest removes and returns the highest-priority key. ok is
	// false when the queue is empty; it never blocks.
	DequeueOldest(ctx context.Context) (key string, ok bool, err error)

	// Peek returns the highest-priority entry without removing it.
	Peek(ctx context.Context) (Entry, bool, error)

	// Remove deletes key if present.
	Remove(ctx context.Context, key string) error

	// Contains reports whether key is pending.
	Contains(ctx context.Context, key string) (bool, error)

	// Len returns the number of pending keys.
	Len(ctx context.Context) (int, error)

	// Close releases the queue's resources.
	Close() error
}
