package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/retry"
)

// Default backoff bounds for rate-limited tickers.
const (
	DefaultBackoffInitial = 2 * time.Second
	DefaultBackoffMax     = 60 * time.Second
)

// State is the backoff record of a single ticker.
type State struct {
	Attempts int
	Until    time.Time
}

// Backoff tracks per-ticker exponential backoff after rate-limit refusals.
// After the n-th consecutive refusal the ticker waits
// min(initial * 2^(n-1), max). Only a successful fetch clears the record;
// an expired wait keeps the attempt count so the next refusal backs off
// further. State is process-local and not persisted.
type Backoff struct {
	cfg   retry.Config
	clock Clock

	mu     sync.Mutex
	states map[string]State
}

// NewBackoff creates a tracker. Zero bounds select the defaults; a nil
// clock means the system clock.
func NewBackoff(initial, max time.Duration, clock Clock) *Backoff {
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Backoff{
		cfg:    retry.Config{BaseDelay: initial, MaxDelay: max},
		clock:  clock,
		states: make(map[string]State),
	}
}

// Record registers a rate-limit refusal for key and returns the wait now in
// effect.
func (b *Backoff) Record(key string) time.Duration {
	key = quote.Canonical(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.states[key]
	st.Attempts++
	d := retry.Delay(b.cfg, st.Attempts-1)
	st.Until = b.clock.Now().Add(d)
	b.states[key] = st
	return d
}

// Remaining returns how much longer key must wait. It is zero for keys
// without a record and never increases as time passes.
func (b *Backoff) Remaining(key string) time.Duration {
	b.mu.Lock()
	st, ok := b.states[quote.Canonical(key)]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	if d := st.Until.Sub(b.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// InBackoff reports whether key currently has to wait.
func (b *Backoff) InBackoff(key string) bool {
	return b.Remaining(key) > 0
}

// Attempts returns the consecutive refusal count for key.
func (b *Backoff) Attempts(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[quote.Canonical(key)].Attempts
}

// Snapshot returns a copy of key's record.
func (b *Backoff) Snapshot(key string) (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[quote.Canonical(key)]
	return st, ok
}

// Clear drops key's record after a successful fetch.
func (b *Backoff) Clear(key string) {
	b.mu.Lock()
	delete(b.states, quote.Canonical(key))
	b.mu.Unlock()
}

// Len returns the number of tickers with a backoff record.
func (b *Backoff) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.states)
}

// Wait blocks until key's backoff has elapsed or ctx is done.
func (b *Backoff) Wait(ctx context.Context, key string) error {
	d := b.Remaining(key)
	if d <= 0 {
		return nil
	}
	return b.clock.Sleep(ctx, d)
}
