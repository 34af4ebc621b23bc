package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/ratelimit"
)

// fakeClock advances its own time whenever something sleeps on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_AllowUnderLimit(t *testing.T) {
	// burst=5 means the first 5 calls must succeed.
	l := ratelimit.NewLimiter(1, 5)
	for i := range 5 {
		if !l.Allow() {
			t.Fatalf("expected Allow() == true for request %d", i)
		}
	}
}

func TestLimiter_BlocksWhenBurstExhausted(t *testing.T) {
	// burst=2, very low rps so tokens don't refill during the test.
	l := ratelimit.NewLimiter(0.001, 2)

	l.Allow()
	l.Allow()

	if l.Allow() {
		t.Fatal("expected Allow() == false after burst exhausted")
	}
}

func TestSpacer_EnforcesInterval(t *testing.T) {
	clk := newFakeClock()
	s := ratelimit.NewSpacer(2*time.Second, clk)
	ctx := t.Context()

	// First call goes straight through.
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait 1: %v", err)
	}
	if len(clk.sleeps) != 0 {
		t.Fatalf("first call should not sleep, slept %v", clk.sleeps)
	}

	if d := s.Delay(); d != 2*time.Second {
		t.Fatalf("Delay = %v, want 2s", d)
	}

	// Immediately after, the next call waits the full interval.
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait 2: %v", err)
	}
	if len(clk.sleeps) != 1 || clk.sleeps[0] != 2*time.Second {
		t.Fatalf("expected one 2s sleep, got %v", clk.sleeps)
	}

	// After a long idle period there is no wait.
	clk.Advance(10 * time.Second)
	if d := s.Delay(); d != 0 {
		t.Fatalf("Delay after idle = %v, want 0", d)
	}
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait 3: %v", err)
	}
	if len(clk.sleeps) != 1 {
		t.Fatalf("idle call should not sleep, got %v", clk.sleeps)
	}
}

func TestSpacer_ZeroIntervalNeverWaits(t *testing.T) {
	clk := newFakeClock()
	s := ratelimit.NewSpacer(0, clk)
	for range 5 {
		_ = s.Wait(t.Context())
	}
	if len(clk.sleeps) != 0 {
		t.Fatalf("unexpected sleeps %v", clk.sleeps)
	}
}

func TestSpacer_CancelledWait(t *testing.T) {
	clk := newFakeClock()
	s := ratelimit.NewSpacer(time.Minute, clk)
	_ = s.Wait(t.Context())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	clk := newFakeClock()
	b := ratelimit.NewBackoff(2*time.Second, 60*time.Second, clk)

	want := []time.Duration{2, 4, 8, 16, 32, 60, 60}
	for i, w := range want {
		if d := b.Record("goog"); d != w*time.Second {
			t.Fatalf("attempt %d: got %v, want %v", i+1, d, w*time.Second)
		}
	}
	if n := b.Attempts("GOOG"); n != len(want) {
		t.Fatalf("Attempts = %d, want %d", n, len(want))
	}
}

func TestBackoff_RemainingMonotoneAndBounded(t *testing.T) {
	clk := newFakeClock()
	b := ratelimit.NewBackoff(2*time.Second, 60*time.Second, clk)

	b.Record("GOOG")
	b.Record("GOOG")
	b.Record("GOOG") // attempts=3 → 8s

	prev := b.Remaining("GOOG")
	if prev != 8*time.Second {
		t.Fatalf("Remaining = %v, want 8s", prev)
	}
	for range 10 {
		clk.Advance(time.Second)
		cur := b.Remaining("GOOG")
		if cur > prev {
			t.Fatalf("Remaining increased: %v -> %v", prev, cur)
		}
		prev = cur
	}
	if prev != 0 {
		t.Fatalf("Remaining should reach 0 within 8s, got %v", prev)
	}
	if b.InBackoff("GOOG") {
		t.Fatal("expired backoff should not block")
	}

	// Expiry keeps the attempt count; the next refusal backs off further.
	if d := b.Record("GOOG"); d != 16*time.Second {
		t.Fatalf("after expiry: got %v, want 16s", d)
	}
}

func TestBackoff_ClearResets(t *testing.T) {
	clk := newFakeClock()
	b := ratelimit.NewBackoff(0, 0, clk)

	b.Record("MSFT")
	b.Clear("msft")

	if b.Attempts("MSFT") != 0 || b.Remaining("MSFT") != 0 || b.Len() != 0 {
		t.Fatal("Clear should remove the record")
	}
	if d := b.Record("MSFT"); d != ratelimit.DefaultBackoffInitial {
		t.Fatalf("after Clear: got %v, want initial", d)
	}
}

func TestBackoff_UnknownKeyNeverWaits(t *testing.T) {
	clk := newFakeClock()
	b := ratelimit.NewBackoff(0, 0, clk)

	if err := b.Wait(t.Context(), "AAPL"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(clk.sleeps) != 0 {
		t.Fatalf("unexpected sleep %v", clk.sleeps)
	}
	if _, ok := b.Snapshot("AAPL"); ok {
		t.Fatal("no record expected")
	}
}

func TestBackoff_WaitSleepsRemaining(t *testing.T) {
	clk := newFakeClock()
	b := ratelimit.NewBackoff(2*time.Second, time.Minute, clk)

	b.Record("GOOG")
	clk.Advance(500 * time.Millisecond)

	if err := b.Wait(t.Context(), "GOOG"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(clk.sleeps) != 1 || clk.sleeps[0] != 1500*time.Millisecond {
		t.Fatalf("sleeps = %v, want [1.5s]", clk.sleeps)
	}
}
