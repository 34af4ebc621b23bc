// Package resolver implements the quote read path. A lookup serves fresh
// cache entries directly, serves stale entries while scheduling a background
// refresh, and fetches synchronously on a miss.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/breaker"
	"github.com/Keksclan/goQuoteSquirrel/cache"
	"github.com/Keksclan/goQuoteSquirrel/metrics"
	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/retry"
	"github.com/Keksclan/goQuoteSquirrel/routing"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrNotResolvable is returned when no quote can be produced for a ticker.
// API layers report such tickers as absent.
var ErrNotResolvable = errors.New("resolver: ticker not resolvable")

// maxDerivedDepth bounds chains of derived tickers.
const maxDerivedDepth = 4

// Defaults.
const (
	DefaultConcurrency       = 8
	DefaultBackgroundTimeout = 5 * time.Second
)

// Fetcher fetches a ticker from whichever provider its route names.
type Fetcher interface {
	Fetch(ctx context.Context, ticker string) (quote.Quote, routing.Route, error)
}

// Cache is the part of the quote cache the read path uses.
type Cache interface {
	Get(ctx context.Context, key string) (*cache.Entry, bool, error)
	Set(ctx context.Context, key string, payload quote.Quote, source string, class quote.SourceClass) (*cache.Entry, error)
}

// Queue is the part of the refresh queue the read path uses.
type Queue interface {
	Enqueue(ctx context.Context, key string, priority float64) error
	Remove(ctx context.Context, key string) error
}

// Staleness decides whether an entry needs refreshing.
type Staleness interface {
	IsStale(e *cache.Entry) bool
	Age(e *cache.Entry) (float64, bool)
}

// Derivations looks up synthetic tickers.
type Derivations interface {
	Derived(ticker string) (routing.Derived, bool)
}

// Deps are the collaborators of a Resolver. Queue and Derived are optional.
type Deps struct {
	Cache   Cache
	Queue   Queue
	Policy  Staleness
	Fetcher Fetcher
	Derived Derivations
}

// Metadata describes where a quote came from.
type Metadata struct {
	FetchedAt   time.Time         `json:"fetchedAt"`
	Source      string            `json:"source"`
	SourceClass quote.SourceClass `json:"sourceClass"`
}

// Result is one resolved ticker.
type Result struct {
	Ticker   string      `json:"ticker"`
	Quote    quote.Quote `json:"quote"`
	Metadata Metadata    `json:"metadata"`
	Stale    bool        `json:"stale"`
}

// Batch partitions the outcome of ResolveMany.
type Batch struct {
	Succeeded []Result `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l.With().Str("component", "resolver").Logger() }
}

// WithMetrics records cache lookup results on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithRetry sets the retry policy for synchronous fetches on a miss. The
// default retries transient failures twice but not an open circuit.
func WithRetry(cfg retry.Config) Option {
	return func(r *Resolver) { r.retry = cfg }
}

// WithConcurrency bounds how many tickers ResolveMany works on at once.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithBackgroundTimeout bounds the fire-and-forget queue writes made on
// behalf of readers.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.bgTimeout = d
		}
	}
}

// WithClock sets the time source for results that could not be cached.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.nowFunc = now }
}

// Resolver serves quotes. It is safe for concurrent use.
type Resolver struct {
	deps        Deps
	log         zerolog.Logger
	metrics     *metrics.Metrics
	retry       retry.Config
	concurrency int
	bgTimeout   time.Duration
	nowFunc     func() time.Time

	flight singleflight.Group
	bg     sync.WaitGroup
}

// New creates a Resolver.
func New(deps Deps, opts ...Option) (*Resolver, error) {
	switch {
	case deps.Cache == nil:
		return nil, errors.New("resolver: cache is required")
	case deps.Policy == nil:
		return nil, errors.New("resolver: staleness policy is required")
	case deps.Fetcher == nil:
		return nil, errors.New("resolver: fetcher is required")
	}
	r := &Resolver{
		deps: deps,
		log:  zerolog.Nop(),
		retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      0.2,
			Retryable:   retry.Except(quote.IsTransient, breaker.ErrOpen),
		},
		concurrency: DefaultConcurrency,
		bgTimeout:   DefaultBackgroundTimeout,
		nowFunc:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// ResolveOne returns the quote for ticker. A blank ticker yields
// quote.ErrEmptySymbol; a ticker nothing can produce yields an error
// wrapping ErrNotResolvable.
func (r *Resolver) ResolveOne(ctx context.Context, ticker string) (*Result, error) {
	key, err := quote.Validate(ticker)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, key, 0)
}

// ResolveMany resolves every distinct ticker concurrently. One failure never
// affects the others; failed tickers are listed in canonical form, blank
// inputs verbatim.
func (r *Resolver) ResolveMany(ctx context.Context, tickers []string) Batch {
	var (
		keys   []string
		seen   = make(map[string]struct{}, len(tickers))
		failed []string
	)
	for _, t := range tickers {
		key, err := quote.Validate(t)
		if err != nil {
			failed = append(failed, t)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	results := make([]*Result, len(keys))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			res, err := r.resolve(ctx, key, 0)
			if err == nil {
				results[i] = res
			}
			return nil
		})
	}
	_ = g.Wait()

	batch := Batch{Succeeded: make([]Result, 0, len(keys)), Failed: failed}
	for i, res := range results {
		if res == nil {
			batch.Failed = append(batch.Failed, keys[i])
			continue
		}
		batch.Succeeded = append(batch.Succeeded, *res)
	}
	return batch
}

// Wait blocks until background queue writes started by earlier reads have
// finished.
func (r *Resolver) Wait() {
	r.bg.Wait()
}

func (r *Resolver) resolve(ctx context.Context, key string, depth int) (*Result, error) {
	if r.deps.Derived != nil {
		if d, ok := r.deps.Derived.Derived(key); ok {
			return r.resolveDerived(ctx, d, depth)
		}
	}

	entry, hit, err := r.deps.Cache.Get(ctx, key)
	if err != nil {
		r.log.Warn().Err(err).Str("ticker", key).Msg("cache read failed, fetching directly")
		r.metrics.CacheLookup("error")
		hit = false
	}
	if hit {
		stale := r.deps.Policy.IsStale(entry)
		if stale {
			r.metrics.CacheLookup("stale")
			priority, _ := r.deps.Policy.Age(entry)
			r.background(key, "enqueue", func(ctx context.Context, q Queue) error {
				return q.Enqueue(ctx, key, priority)
			})
		} else {
			r.metrics.CacheLookup("fresh")
			r.background(key, "remove", func(ctx context.Context, q Queue) error {
				return q.Remove(ctx, key)
			})
		}
		return fromEntry(entry, stale), nil
	}
	if err == nil {
		r.metrics.CacheLookup("miss")
	}
	return r.fetch(ctx, key)
}

func (r *Resolver) resolveDerived(ctx context.Context, d routing.Derived, depth int) (*Result, error) {
	if depth >= maxDerivedDepth {
		return nil, fmt.Errorf("%w: %s: derived chain too deep", ErrNotResolvable, d.Ticker)
	}
	base, err := r.resolve(ctx, d.Base, depth+1)
	if err != nil {
		return nil, fmt.Errorf("%s from %s: %w", d.Ticker, d.Base, err)
	}
	out := *base
	out.Ticker = d.Ticker
	out.Quote = base.Quote.Scale(d.Divisor)
	out.Quote.Ticker = d.Ticker
	return &out, nil
}

type fetched struct {
	q     quote.Quote
	route routing.Route
}

// fetch performs the synchronous miss path. Concurrent misses for the same
// key share one provider call.
func (r *Resolver) fetch(ctx context.Context, key string) (*Result, error) {
	policy := r.retry
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			r.log.Debug().Err(err).Str("ticker", key).Int("attempt", attempt).
				Dur("wait", wait).Msg("retrying provider fetch")
		}
	}
	v, err, _ := r.flight.Do(key, func() (any, error) {
		f, err := retry.Do(ctx, policy, func(ctx context.Context) (fetched, error) {
			q, route, err := r.deps.Fetcher.Fetch(ctx, key)
			return fetched{q: q, route: route}, err
		})
		if err != nil {
			return nil, err
		}

		entry, err := r.deps.Cache.Set(ctx, key, f.q, f.route.Provider, f.route.Class)
		if err != nil {
			r.log.Warn().Err(err).Str("ticker", key).Msg("failed to cache fetched quote")
			return &Result{
				Ticker:   key,
				Quote:    f.q,
				Metadata: Metadata{FetchedAt: r.nowFunc(), Source: f.route.Provider, SourceClass: f.route.Class},
			}, nil
		}
		return fromEntry(entry, false), nil
	})
	if err != nil {
		r.log.Debug().Err(err).Str("ticker", key).Msg("ticker not resolvable")
		return nil, fmt.Errorf("%w: %s: %w", ErrNotResolvable, key, err)
	}
	out := *v.(*Result)
	out.Quote = out.Quote.Clone()
	return &out, nil
}

// background runs a best-effort queue write detached from the reader. Errors
// are logged and swallowed.
func (r *Resolver) background(key, op string, fn func(ctx context.Context, q Queue) error) {
	if r.deps.Queue == nil {
		return
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.bgTimeout)
		defer cancel()
		if err := fn(ctx, r.deps.Queue); err != nil {
			r.log.Warn().Err(err).Str("ticker", key).Str("op", op).Msg("refresh queue write failed")
		}
	}()
}

func fromEntry(e *cache.Entry, stale bool) *Result {
	return &Result{
		Ticker: e.Key,
		Quote:  e.Payload.Clone(),
		Metadata: Metadata{
			FetchedAt:   e.FetchedAt,
			Source:      e.Source,
			SourceClass: e.SourceClass,
		},
		Stale: stale,
	}
}
