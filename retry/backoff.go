// Package retry provides exponential backoff calculation and a generic
// retry helper. The read path wraps synchronous fetches in [Do]; the worker
// reuses [Delay] for per-ticker rate-limit backoff.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Delay returns the wait after the given failed attempt (0-indexed):
// BaseDelay doubled per attempt, capped at MaxDelay, then spread by Jitter.
func Delay(cfg Config, attempt int) time.Duration {
	d := cfg.BaseDelay
	for range max(attempt, 0) {
		if cfg.MaxDelay > 0 && d >= cfg.MaxDelay {
			break
		}
		if d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		d += time.Duration(float64(d) * cfg.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}
