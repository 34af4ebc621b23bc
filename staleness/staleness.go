// Package staleness decides whether a cached quote needs refreshing.
package staleness

import (
	"time"

	"github.com/Keksclan/goQuoteSquirrel/cache"
	"github.com/Keksclan/goQuoteSquirrel/quote"
)

// Thresholds maps each source class to the age at which its entries turn
// stale.
type Thresholds map[quote.SourceClass]time.Duration

// DefaultThresholds returns the built-in table: 300s for fast providers and
// 2340s for quota-limited ones.
func DefaultThresholds() Thresholds {
	return Thresholds{
		quote.ClassFast: quote.DefaultFastTTL,
		quote.ClassSlow: quote.DefaultSlowTTL,
	}
}

// Policy evaluates staleness against a threshold table. It is immutable
// after construction and safe for concurrent use.
type Policy struct {
	thresholds Thresholds
	nowFunc    func() time.Time // for testing; defaults to time.Now
}

// New creates a Policy. Classes missing from t fall back to the defaults.
func New(t Thresholds) *Policy {
	merged := DefaultThresholds()
	for class, d := range t {
		merged[class] = d
	}
	return &Policy{thresholds: merged, nowFunc: time.Now}
}

// WithClock returns a copy of p that reads time from now.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	cp := *p
	cp.nowFunc = now
	return &cp
}

// Threshold returns the freshness window for class. Unknown classes use the
// fast threshold.
func (p *Policy) Threshold(class quote.SourceClass) time.Duration {
	if d, ok := p.thresholds[class]; ok {
		return d
	}
	return p.thresholds[quote.ClassFast]
}

// IsStale reports whether e needs refreshing. A nil entry is stale, and an
// entry exactly at its threshold is stale.
func (p *Policy) IsStale(e *cache.Entry) bool {
	if e == nil {
		return true
	}
	return p.now().Sub(e.FetchedAt) >= p.Threshold(e.SourceClass)
}

// Age returns the entry's age in seconds, the refresh queue priority. ok is
// false for a nil entry.
func (p *Policy) Age(e *cache.Entry) (seconds float64, ok bool) {
	if e == nil {
		return 0, false
	}
	return p.now().Sub(e.FetchedAt).Seconds(), true
}

func (p *Policy) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now()
}
