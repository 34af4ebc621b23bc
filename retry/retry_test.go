package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func transient() error {
	return quote.NewFetchError(quote.Transient, "finnhub", "AAPL", "timeout", nil)
}

// script returns fn that fails with errs in order, then succeeds.
func script(calls *int, errs ...error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		if *calls <= len(errs) {
			return "", errs[*calls-1]
		}
		return "ok", nil
	}
}

func fast(attempts int, pred func(error) bool) Config {
	return Config{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Retryable: pred}
}

func TestDo(t *testing.T) {
	errOpen := errors.New("circuit open")
	rateLimited := quote.NewFetchError(quote.RateLimited, "finnhub", "AAPL", "429", nil)

	cases := []struct {
		name      string
		cfg       Config
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"transient then ok", fast(4, quote.IsTransient), []error{transient(), transient()}, 3, nil},
		{"rate limit is final", fast(5, quote.IsTransient), []error{rateLimited}, 1, rateLimited},
		{"nil predicate", fast(3, nil), []error{transient()}, 1, nil},
		{"attempts exhausted", fast(2, quote.IsTransient), []error{transient(), transient(), transient()}, 2, nil},
		{"zero config", Config{}, []error{transient()}, 1, nil},
		{"except open breaker", fast(3, Except(quote.IsTransient, errOpen)),
			[]error{quote.NewFetchError(quote.Transient, "finnhub", "AAPL", "circuit open", errOpen)}, 1, errOpen},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			calls := 0
			v, err := Do(t.Context(), c.cfg, script(&calls, c.errs...))
			if calls != c.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, c.wantCalls)
			}
			if calls > len(c.errs) {
				if err != nil || v != "ok" {
					t.Fatalf("Do = %q, %v", v, err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if c.wantErr != nil && !errors.Is(err, c.wantErr) {
				t.Fatalf("err = %v, want %v", err, c.wantErr)
			}
		})
	}
}

func TestDo_OnCodes(t *testing.T) {
	calls := 0
	_, err := Do(t.Context(), fast(3, OnCodes(codes.Unavailable, codes.ResourceExhausted)),
		script(&calls,
			status.Error(codes.Unavailable, "down"),
			status.Error(codes.ResourceExhausted, "slow down"),
			status.Error(codes.NotFound, "ZZZZ"),
		))
	if st, _ := status.FromError(err); st.Code() != codes.NotFound {
		t.Fatalf("code = %v, want NotFound", st.Code())
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if OnCodes(codes.Unavailable)(errors.New("plain")) {
		t.Fatal("non-status error must not match")
	}
}

func TestDo_OnRetryReportsEachWait(t *testing.T) {
	var attempts []int
	cfg := fast(3, quote.IsTransient)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		if !quote.IsTransient(err) || wait <= 0 {
			t.Errorf("OnRetry(%d, %v, %v)", attempt, err, wait)
		}
		attempts = append(attempts, attempt)
	}

	calls := 0
	_, _ = Do(t.Context(), cfg, script(&calls, transient(), transient(), transient()))
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}

func TestDo_ContextEndsWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	cfg := Config{MaxAttempts: 100, BaseDelay: 50 * time.Millisecond, Retryable: quote.IsTransient}
	calls := 0
	start := time.Now()
	_, err := Do(ctx, cfg, func(context.Context) (int, error) {
		calls++
		return 0, transient()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if calls != 1 || time.Since(start) > time.Second {
		t.Fatalf("calls = %d after %v", calls, time.Since(start))
	}
}

func TestDelay_ExponentialWithCap(t *testing.T) {
	cfg := Config{BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second}
	want := []time.Duration{2, 4, 8, 16, 32, 60, 60}
	for attempt, w := range want {
		if got := Delay(cfg, attempt); got != w*time.Second {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, w*time.Second)
		}
	}
	if got := Delay(cfg, 10_000); got != 60*time.Second {
		t.Fatalf("Delay(10000) = %v", got)
	}
}

func TestDelay_UncappedDoesNotOverflow(t *testing.T) {
	if got := Delay(Config{BaseDelay: time.Second}, 200); got <= 0 {
		t.Fatalf("Delay overflowed to %v", got)
	}
}

func TestDelay_JitterStaysInBand(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, Jitter: 0.2}
	for range 50 {
		if d := Delay(cfg, 0); d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±20%%", d)
		}
	}
}
