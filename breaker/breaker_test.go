package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTimeout = quote.NewFetchError(quote.Transient, "finnhub", "AAPL", "timeout", nil)

func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	b.nowFunc = func() time.Time { return now }
	return b, &now
}

func fail(b *Breaker, n int) {
	for range n {
		_ = b.Do(func() error { return errTimeout })
	}
}

func succeed(b *Breaker) error { return b.Do(func() error { return nil }) }

func TestClosedToOpen(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: 5 * time.Second})
	assert.Equal(t, Closed, b.State())

	fail(b, 2)
	assert.Equal(t, Closed, b.State())

	fail(b, 1)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "fn must not run while open")
	assert.Contains(t, err.Error(), "next probe in 5s")
}

func TestSuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	fail(b, 2)
	require.NoError(t, succeed(b))
	fail(b, 2)
	assert.Equal(t, Closed, b.State(), "failures must be consecutive")
}

func TestHalfOpenProbesThenCloses(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: 5 * time.Second, HalfOpenMaxSuccess: 2})

	fail(b, 1)
	*now = now.Add(6 * time.Second)
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, succeed(b))
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, succeed(b))
	assert.Equal(t, Closed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: 5 * time.Second})

	fail(b, 1)
	*now = now.Add(5 * time.Second)
	fail(b, 1)
	assert.Equal(t, Open, b.State())

	// The cool-down restarts from the failed probe.
	*now = now.Add(4 * time.Second)
	assert.Equal(t, Open, b.State())
	*now = now.Add(time.Second)
	assert.Equal(t, HalfOpen, b.State())
}

func TestHalfOpenBoundsConcurrentProbes(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second})
	fail(b, 1)
	*now = now.Add(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := succeed(b)
	require.ErrorIs(t, err, ErrOpen, "second probe must wait for the first")

	close(release)
	wg.Wait()
	assert.Equal(t, Closed, b.State())
	require.NoError(t, succeed(b))
}

func TestIsFailureIgnoresProviderAnswers(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2, OpenTimeout: time.Minute, IsFailure: quote.IsTransient})

	notFound := quote.NewFetchError(quote.NotFound, "finnhub", "ZZZZ", "", nil)
	for range 5 {
		err := b.Do(func() error { return notFound })
		require.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, Closed, b.State())

	fail(b, 2)
	assert.Equal(t, Open, b.State())
}

func TestOnStateChange(t *testing.T) {
	var transitions []string
	b, now := newTestBreaker(Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	fail(b, 1)
	*now = now.Add(2 * time.Second)
	require.NoError(t, succeed(b))

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestNew_ClampsConfig(t *testing.T) {
	b := New(Config{OpenTimeout: time.Minute})
	assert.Equal(t, 1, b.cfg.FailureThreshold)
	assert.Equal(t, 1, b.cfg.HalfOpenMaxSuccess)

	err := b.Do(func() error { return errors.New("down") })
	require.Error(t, err)
	assert.Equal(t, Open, b.State())
}
