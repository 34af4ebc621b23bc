package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between outbound refresh calls.
const DefaultInterval = 2 * time.Second

// Spacer enforces a minimum interval between consecutive outbound calls
// across all tickers and providers. It is a token bucket with a burst of one
// refilled once per interval.
type Spacer struct {
	lim      *rate.Limiter
	interval time.Duration
	clock    Clock
}

// NewSpacer creates a Spacer. An interval ≤ 0 disables spacing. A nil clock
// means the system clock.
func NewSpacer(interval time.Duration, clock Clock) *Spacer {
	if clock == nil {
		clock = SystemClock{}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Spacer{lim: rate.NewLimiter(limit, 1), interval: interval, clock: clock}
}

// Interval returns the configured spacing.
func (s *Spacer) Interval() time.Duration { return s.interval }

// Delay reports how long a call made now would have to wait, without
// consuming a slot.
func (s *Spacer) Delay() time.Duration {
	if s.interval <= 0 {
		return 0
	}
	missing := 1 - s.lim.TokensAt(s.clock.Now())
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing * float64(s.interval))
}

// Wait blocks until the next call slot and consumes it. If ctx ends first
// the slot is returned and ctx's error reported.
func (s *Spacer) Wait(ctx context.Context) error {
	now := s.clock.Now()
	r := s.lim.ReserveN(now, 1)
	if !r.OK() {
		return nil
	}
	d := r.DelayFrom(now)
	if d <= 0 {
		return nil
	}
	if err := s.clock.Sleep(ctx, d); err != nil {
		r.CancelAt(s.clock.Now())
		return err
	}
	return nil
}
