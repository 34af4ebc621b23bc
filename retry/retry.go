package retry

import (
	"context"
	"errors"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls [Do]. The zero Config calls fn exactly once.
type Config struct {
	// MaxAttempts counts every call of fn, the first one included.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; each further retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration

	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64

	// Retryable accepts the errors worth another call. Nil retries nothing.
	Retryable func(error) bool

	// OnRetry, when set, is called before each wait with the 1-based number
	// of the failed attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// OnCodes accepts gRPC status errors carrying one of cs.
func OnCodes(cs ...codes.Code) func(error) bool {
	return func(err error) bool {
		st, ok := status.FromError(err)
		return ok && slices.Contains(cs, st.Code())
	}
}

// Except narrows pred: errors matching any of targets (per errors.Is) are
// never retried.
func Except(pred func(error) bool, targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return false
			}
		}
		return pred != nil && pred(err)
	}
}

// Do calls fn until it succeeds, returns an error cfg.Retryable rejects, or
// cfg.MaxAttempts calls were made. The last error is returned as is. A done
// ctx ends the wait between attempts with ctx.Err().
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		v, err := fn(ctx)
		switch {
		case err == nil:
			return v, nil
		case i == attempts-1, cfg.Retryable == nil, !cfg.Retryable(err):
			return zero, err
		}

		wait := Delay(cfg, i)
		if cfg.OnRetry != nil {
			cfg.OnRetry(i+1, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
