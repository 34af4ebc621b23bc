package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultLocalTTL bounds how long a [Tiered] serves a document from L1
// before reading the shared layer again. Other processes refresh the shared
// layer, so an unbounded L1 copy would hide their writes.
const DefaultLocalTTL = time.Minute

// TieredOption configures a Tiered backend.
type TieredOption func(*Tiered)

// WithLocalTTL caps the L1 lifetime of every document. Zero removes the
// cap and L1 keeps documents as long as the shared layer would.
func WithLocalTTL(d time.Duration) TieredOption {
	return func(t *Tiered) { t.localTTL = d }
}

// Tiered puts an L1 in front of a shared backend (Redis or SQLite). Reads
// check L1 first, then the shared layer. Writes populate both.
type Tiered struct {
	l1       *L1
	l2       Backend
	localTTL time.Duration
}

// NewTiered creates a two-level backend.
func NewTiered(l1 *L1, l2 Backend, opts ...TieredOption) *Tiered {
	t := &Tiered{l1: l1, l2: l2, localTTL: DefaultLocalTTL}
	for _, o := range opts {
		o(t)
	}
	return t
}

// L1 returns the in-process layer.
func (t *Tiered) L1() *L1 { return t.l1 }

// local returns the L1 lifetime for a document the shared layer keeps for
// ttl (zero meaning forever).
func (t *Tiered) local(ttl time.Duration) time.Duration {
	if t.localTTL <= 0 {
		return ttl
	}
	if ttl <= 0 || ttl > t.localTTL {
		return t.localTTL
	}
	return ttl
}

// Get checks L1, then the shared layer. A shared hit is promoted into L1
// for the local lifetime.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if doc, ok, err := t.l1.Get(ctx, key); err != nil || ok {
		return doc, ok, err
	}
	doc, ok, err := t.l2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.l1.Set(ctx, key, doc, t.local(0))
	return doc, true, nil
}

// Set writes the document to the shared layer, then L1. L1 is written even
// when the shared write fails so this process keeps serving the fresh
// value; the shared error is returned.
func (t *Tiered) Set(ctx context.Context, key string, doc []byte, ttl time.Duration) error {
	err := t.l2.Set(ctx, key, doc, ttl)
	return errors.Join(err, t.l1.Set(ctx, key, doc, t.local(ttl)))
}

// Delete removes key from both layers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	return errors.Join(t.l2.Delete(ctx, key), t.l1.Delete(ctx, key))
}

// Ping reports the reachability of the shared layer.
func (t *Tiered) Ping(ctx context.Context) error {
	if p, ok := t.l2.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Symbols lists the keys of the shared layer when it can enumerate them.
func (t *Tiered) Symbols(ctx context.Context) ([]string, error) {
	if l, ok := t.l2.(Lister); ok {
		return l.Symbols(ctx)
	}
	return nil, nil
}

// Close closes both layers.
func (t *Tiered) Close() error {
	return errors.Join(t.l2.Close(), t.l1.Close())
}
