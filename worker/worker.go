// Package worker runs the background refresh loop. Each tick takes the
// highest-priority ticker off the refresh queue, re-checks that it is still
// stale, waits out its backoff and the global call spacing, and fetches it.
// Only one tick runs at a time, and a Worker owns at most one loop goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/cache"
	"github.com/Keksclan/goQuoteSquirrel/market"
	"github.com/Keksclan/goQuoteSquirrel/metrics"
	"github.com/Keksclan/goQuoteSquirrel/queue"
	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/ratelimit"
	"github.com/Keksclan/goQuoteSquirrel/routing"
	"github.com/rs/zerolog"
)

// DefaultInterval is the tick period.
const DefaultInterval = 2 * time.Second

// requeueTimeout bounds the queue write that keeps a ticker pending when the
// tick's own context is already gone.
const requeueTimeout = 5 * time.Second

// Fetcher fetches a ticker from whichever provider its route names.
type Fetcher interface {
	Fetch(ctx context.Context, ticker string) (quote.Quote, routing.Route, error)
}

// Cache is the part of the quote cache the worker reads and writes.
type Cache interface {
	Get(ctx context.Context, key string) (*cache.Entry, bool, error)
	Set(ctx context.Context, key string, payload quote.Quote, source string, class quote.SourceClass) (*cache.Entry, error)
}

// Staleness decides whether an entry needs refreshing.
type Staleness interface {
	IsStale(e *cache.Entry) bool
	Age(e *cache.Entry) (float64, bool)
}

// Derivations identifies synthetic tickers that are computed, never fetched.
type Derivations interface {
	IsDerived(ticker string) bool
}

// Deps are the collaborators a Worker needs. All fields except Derived are
// required.
type Deps struct {
	Queue   queue.RefreshQueue
	Cache   Cache
	Policy  Staleness
	Fetcher Fetcher
	Derived Derivations
	Spacer  *ratelimit.Spacer
	Backoff *ratelimit.Backoff
}

// Outcome describes what a tick did.
type Outcome string

const (
	OutcomeIdle         Outcome = "idle"
	OutcomeMarketClosed Outcome = "market_closed"
	OutcomeDerived      Outcome = "derived"
	OutcomeFresh        Outcome = "fresh"
	OutcomeRefreshed    Outcome = "refreshed"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeDropped      Outcome = "dropped"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeError        Outcome = "error"
)

// Option configures a Worker.
type Option func(*Worker)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMarketGate skips ticks while gate reports the market closed. Nil
// disables gating.
func WithMarketGate(g market.Gate) Option {
	return func(w *Worker) { w.gate = g }
}

// WithLogger sets the worker's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) { w.log = l.With().Str("component", "worker").Logger() }
}

// WithMetrics records tick outcomes and queue gauges on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock sets the time source used for market gating.
func WithClock(c ratelimit.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// Worker is the singleton refresh loop.
type Worker struct {
	deps     Deps
	interval time.Duration
	gate     market.Gate
	clock    ratelimit.Clock
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	tickMu sync.Mutex // held for the whole of a tick
}

// New creates a Worker. It does not start the loop.
func New(deps Deps, opts ...Option) (*Worker, error) {
	switch {
	case deps.Queue == nil:
		return nil, errors.New("worker: refresh queue is required")
	case deps.Cache == nil:
		return nil, errors.New("worker: cache is required")
	case deps.Policy == nil:
		return nil, errors.New("worker: staleness policy is required")
	case deps.Fetcher == nil:
		return nil, errors.New("worker: fetcher is required")
	}
	w := &Worker{
		deps:     deps,
		interval: DefaultInterval,
		clock:    ratelimit.SystemClock{},
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.deps.Spacer == nil {
		w.deps.Spacer = ratelimit.NewSpacer(ratelimit.DefaultInterval, w.clock)
	}
	if w.deps.Backoff == nil {
		w.deps.Backoff = ratelimit.NewBackoff(0, 0, w.clock)
	}
	return w, nil
}

// Start launches the loop. The first tick runs immediately. Starting a
// running worker logs a warning and does nothing.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.log.Warn().Msg("refresh worker already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.log.Info().Dur("interval", w.interval).Msg("starting refresh worker")
	go w.run(ctx, w.done)
}

// Stop cancels any in-flight wait and blocks until the loop has exited.
// Stopping a stopped worker does nothing.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.log.Info().Msg("refresh worker stopped")
}

// Running reports whether the loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(w.interval)
	defer t.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick processes at most one ticker and reports what happened. Concurrent
// calls, from the loop or from outside it, run one after another. Tick
// never panics; a panic inside the tick is logged, the dequeued ticker is
// put back, and the tick is reported as OutcomeError.
func (w *Worker) Tick(ctx context.Context) (out Outcome) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	var ticker string
	priority := queue.NeverCached
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Str("panic", fmt.Sprint(r)).Str("ticker", ticker).Msg("refresh tick panicked")
			if ticker != "" {
				w.requeue(ctx, ticker, priority)
			}
			out = OutcomeError
		}
		w.metrics.Tick(string(out))
		w.reportGauges(ctx)
	}()

	if w.gate != nil && !w.gate.IsOpen(w.clock.Now()) {
		return OutcomeMarketClosed
	}

	ticker, ok, err := w.deps.Queue.DequeueOldest(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("refresh queue unavailable")
		return OutcomeError
	}
	if !ok {
		return OutcomeIdle
	}
	log := w.log.With().Str("ticker", ticker).Logger()

	if w.deps.Derived != nil && w.deps.Derived.IsDerived(ticker) {
		log.Debug().Msg("skipping derived ticker")
		return OutcomeDerived
	}

	entry, hit, err := w.deps.Cache.Get(ctx, ticker)
	if err != nil {
		log.Warn().Err(err).Msg("cache read failed, treating as stale")
		entry, hit = nil, false
	}
	if hit && !w.deps.Policy.IsStale(entry) {
		return OutcomeFresh
	}
	if age, ok := w.deps.Policy.Age(entry); ok && hit {
		priority = age
	}

	if err := w.deps.Backoff.Wait(ctx, ticker); err != nil {
		w.requeue(ctx, ticker, priority)
		return OutcomeCancelled
	}
	if err := w.deps.Spacer.Wait(ctx); err != nil {
		w.requeue(ctx, ticker, priority)
		return OutcomeCancelled
	}

	q, route, err := w.deps.Fetcher.Fetch(ctx, ticker)
	if err == nil {
		if _, err := w.deps.Cache.Set(ctx, ticker, q, route.Provider, route.Class); err != nil {
			log.Warn().Err(err).Msg("failed to store refreshed quote")
			w.requeue(ctx, ticker, priority)
			return OutcomeError
		}
		w.deps.Backoff.Clear(ticker)
		log.Debug().Str("provider", route.Provider).Float64("price", q.Price).Msg("refreshed")
		return OutcomeRefreshed
	}

	switch quote.KindOf(err) {
	case quote.RateLimited:
		wait := w.deps.Backoff.Record(ticker)
		w.requeue(ctx, ticker, priority)
		log.Info().Err(err).Dur("retry_in", wait).Int("attempts", w.deps.Backoff.Attempts(ticker)).Msg("rate limited, will retry")
		return OutcomeRateLimited
	case quote.Config:
		log.Error().Err(err).Str("provider", route.Provider).Msg("provider misconfigured, dropping refresh")
		return OutcomeDropped
	}
	if ctx.Err() != nil {
		w.requeue(ctx, ticker, priority)
		return OutcomeCancelled
	}
	log.Warn().Err(err).Msg("refresh failed, dropping")
	return OutcomeDropped
}

// requeue puts ticker back so it stays pending. It runs on a detached
// context so a stopping worker still records the key.
func (w *Worker) requeue(ctx context.Context, ticker string, priority float64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()
	if err := w.deps.Queue.Enqueue(ctx, ticker, priority); err != nil {
		w.log.Warn().Err(err).Str("ticker", ticker).Msg("failed to re-enqueue ticker")
	}
}

func (w *Worker) reportGauges(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if n, err := w.deps.Queue.Len(ctx); err == nil {
		w.metrics.QueueDepth(n)
	}
	w.metrics.BackoffKeys(w.deps.Backoff.Len())
}
