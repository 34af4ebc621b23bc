// Package quotesquirrel is a quote cache that sits in front of rate-limited
// market data providers. Reads are served from the cache; stale entries are
// returned immediately and refreshed in the background by a single worker
// that spaces calls to providers and backs off per ticker when refused.
//
//	svc, err := quotesquirrel.New(
//		quotesquirrel.WithFetcher(finnhub.New(key)),
//		quotesquirrel.WithMarketGate(market.MustHours()),
//	)
//	if err != nil { ... }
//	svc.Start()
//	defer svc.Close()
//	res, err := svc.Resolver().ResolveOne(ctx, "AAPL")
package quotesquirrel

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
	"github.com/Keksclan/goQuoteSquirrel/ratelimit"
	"github.com/Keksclan/goQuoteSquirrel/resolver"
	"github.com/Keksclan/goQuoteSquirrel/routing"
	"github.com/Keksclan/goQuoteSquirrel/source"
	"github.com/Keksclan/goQuoteSquirrel/staleness"
	"github.com/Keksclan/goQuoteSquirrel/sweep"
	"github.com/Keksclan/goQuoteSquirrel/worker"
	"github.com/rs/zerolog"
)

const (
	// defaultL1Cost is the entry budget of the default in-process cache.
	defaultL1Cost = 10_000
	// startupTimeout bounds listing persisted tickers in Start.
	startupTimeout = 5 * time.Second
)

// Service wires the cache, refresh queue, provider router, read path,
// refresh worker and optional sweeper together.
type Service struct {
	log      zerolog.Logger
	store    *cache.Store
	queue    queue.RefreshQueue
	policy   *staleness.Policy
	registry *source.Registry
	router   *source.Router
	resolver *resolver.Resolver
	worker   *worker.Worker
	sweeper  *sweep.Sweeper
	metrics  *metrics.Metrics

	mu      sync.Mutex
	started bool
	closed  bool
}

// New assembles a Service. Nothing runs until Start.
func New(opts ...Option) (*Service, error) {
	cfg := options{
		log:      zerolog.Nop(),
		interval: worker.DefaultInterval,
		gate:     market.AlwaysOpen{},
		clock:    ratelimit.SystemClock{},
	}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.spacingSet {
		cfg.spacing = cfg.interval
	}
	if cfg.table == nil {
		cfg.table = routing.Default()
	}
	if cfg.queue == nil {
		cfg.queue = queue.NewMemory()
	}
	if cfg.backend == nil {
		l1, err := cache.NewL1(defaultL1Cost)
		if err != nil {
			return nil, fmt.Errorf("quotesquirrel: default cache: %w", err)
		}
		cfg.backend = l1
	}

	registry := source.NewRegistry()
	for _, f := range cfg.fetchers {
		if err := registry.Register(f); err != nil {
			return nil, fmt.Errorf("quotesquirrel: %w", err)
		}
	}
	for _, p := range cfg.table.Providers() {
		if _, ok := registry.Get(p); !ok {
			cfg.log.Warn().Str("provider", p).Msg("routing table names a provider with no registered fetcher")
		}
	}

	now := cfg.clock.Now
	policy := staleness.New(cfg.thresholds).WithClock(now)
	store := cache.NewStore(cfg.backend,
		cache.WithQueue(cfg.queue),
		cache.WithTTLs(policy),
		cache.WithHardExpiry(cfg.hardExpiry),
		cache.WithLogger(cfg.log),
		cache.WithClock(now),
	)

	routerOpts := []source.RouterOption{source.WithLogger(cfg.log), source.WithMetrics(cfg.metrics)}
	if cfg.tp != nil {
		routerOpts = append(routerOpts, source.WithTracerProvider(cfg.tp))
	}
	if cfg.breaker != nil {
		routerOpts = append(routerOpts, source.WithBreaker(*cfg.breaker))
	}
	router := source.NewRouter(cfg.table, registry, routerOpts...)

	resolverOpts := []resolver.Option{
		resolver.WithLogger(cfg.log),
		resolver.WithMetrics(cfg.metrics),
		resolver.WithClock(now),
	}
	if cfg.retry != nil {
		resolverOpts = append(resolverOpts, resolver.WithRetry(*cfg.retry))
	}
	res, err := resolver.New(resolver.Deps{
		Cache:   store,
		Queue:   cfg.queue,
		Policy:  policy,
		Fetcher: router,
		Derived: cfg.table,
	}, resolverOpts...)
	if err != nil {
		return nil, err
	}

	w, err := worker.New(worker.Deps{
		Queue:   cfg.queue,
		Cache:   store,
		Policy:  policy,
		Fetcher: router,
		Derived: cfg.table,
		Spacer:  ratelimit.NewSpacer(cfg.spacing, cfg.clock),
		Backoff: ratelimit.NewBackoff(cfg.backoffMin, cfg.backoffMax, cfg.clock),
	},
		worker.WithInterval(cfg.interval),
		worker.WithMarketGate(cfg.gate),
		worker.WithLogger(cfg.log),
		worker.WithMetrics(cfg.metrics),
		worker.WithClock(cfg.clock),
	)
	if err != nil {
		return nil, err
	}

	s := &Service{
		log:      cfg.log.With().Str("component", "service").Logger(),
		store:    store,
		queue:    cfg.queue,
		policy:   policy,
		registry: registry,
		router:   router,
		resolver: res,
		worker:   w,
		metrics:  cfg.metrics,
	}

	if cfg.sweep != nil {
		sw, err := sweep.New(sweep.Deps{
			Keys:    store,
			Cache:   store,
			Queue:   cfg.queue,
			Policy:  policy,
			Derived: cfg.table,
		},
			sweep.WithSchedule(cfg.sweep.schedule),
			sweep.WithWatchlist(cfg.sweep.watchlist...),
			sweep.WithLogger(cfg.log),
		)
		if err != nil {
			return nil, fmt.Errorf("quotesquirrel: sweeper: %w", err)
		}
		s.sweeper = sw
	}
	return s, nil
}

// Start remembers the tickers the backend already holds, then launches the
// refresh worker and, when configured, the sweeper.
// Calling Start again is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	if n, err := s.store.Load(ctx); err != nil {
		s.log.Warn().Err(err).Msg("could not list persisted tickers")
	} else if n > 0 {
		s.log.Info().Int("tickers", n).Msg("remembered persisted tickers")
	}
	cancel()
	s.worker.Start()
	if s.sweeper != nil {
		s.sweeper.Start()
	}
	s.log.Info().Strs("providers", s.registry.Names()).Msg("quote service started")
}

// Close stops background work, waits for pending queue writes, and closes
// the queue and the cache backend. It is safe to call more than once.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.sweeper != nil && s.started {
		s.sweeper.Stop()
	}
	s.worker.Stop()
	s.resolver.Wait()

	var errs []error
	if err := s.queue.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close queue: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	s.log.Info().Msg("quote service stopped")
	return errors.Join(errs...)
}

// Ping checks that the cache backend is reachable.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// Resolver returns the read path.
func (s *Service) Resolver() *resolver.Resolver { return s.resolver }

// Worker returns the refresh worker.
func (s *Service) Worker() *worker.Worker { return s.worker }

// Store returns the quote cache.
func (s *Service) Store() *cache.Store { return s.store }

// Queue returns the refresh queue.
func (s *Service) Queue() queue.RefreshQueue { return s.queue }

// Router returns the provider router.
func (s *Service) Router() *source.Router { return s.router }

// Sweeper returns the sweeper, or nil when none is configured.
func (s *Service) Sweeper() *sweep.Sweeper { return s.sweeper }

// Metrics returns the metrics passed to WithMetrics, or nil.
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }
