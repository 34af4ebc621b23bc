package quotesquirrel

import (
	"time"

	"github.com/Keksclan/goQuoteSquirrel/breaker"
	"github.com/Keksclan/goQuoteSquirrel/cache"
	"github.com/Keksclan/goQuoteSquirrel/market"
	"github.com/Keksclan/goQuoteSquirrel/metrics"
	"github.com/Keksclan/goQuoteSquirrel/queue"
	"github.com/Keksclan/goQuoteSquirrel/ratelimit"
	"github.com/Keksclan/goQuoteSquirrel/retry"
	"github.com/Keksclan/goQuoteSquirrel/routing"
	"github.com/Keksclan/goQuoteSquirrel/source"
	"github.com/Keksclan/goQuoteSquirrel/staleness"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// options holds the internal configuration assembled via functional options.
type options struct {
	log        zerolog.Logger
	backend    cache.Backend
	queue      queue.RefreshQueue
	table      *routing.Table
	fetchers   []source.Fetcher
	interval   time.Duration
	spacing    time.Duration
	spacingSet bool
	backoffMin time.Duration
	backoffMax time.Duration
	thresholds staleness.Thresholds
	hardExpiry float64
	gate       market.Gate
	sweep      *sweepConfig
	tp         trace.TracerProvider
	metrics    *metrics.Metrics
	clock      ratelimit.Clock
	breaker    *breaker.Config
	retry      *retry.Config
}

type sweepConfig struct {
	schedule  string
	watchlist []string
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the logger every component derives its own from.
func WithLogger(l zerolog.Logger) Option {
	return func(c *options) { c.log = l }
}

// WithBackend sets the cache document store. The default is an in-process
// L1 cache.
func WithBackend(b cache.Backend) Option {
	return func(c *options) { c.backend = b }
}

// WithQueue sets the refresh queue. The default is an in-memory queue.
func WithQueue(q queue.RefreshQueue) Option {
	return func(c *options) { c.queue = q }
}

// WithRouting sets the routing table. The default is [routing.Default].
func WithRouting(t *routing.Table) Option {
	return func(c *options) { c.table = t }
}

// WithFetcher registers provider fetchers. May be given more than once;
// duplicate provider names are rejected by New.
func WithFetcher(fs ...source.Fetcher) Option {
	return func(c *options) { c.fetchers = append(c.fetchers, fs...) }
}

// WithWorkerInterval sets how often the refresh worker ticks.
func WithWorkerInterval(d time.Duration) Option {
	return func(c *options) { c.interval = d }
}

// WithSpacing sets the minimum interval between outbound provider calls.
// Zero disables spacing. Without this option it follows the worker
// interval.
func WithSpacing(d time.Duration) Option {
	return func(c *options) {
		c.spacing = d
		c.spacingSet = true
	}
}

// WithBackoff sets the per-ticker rate-limit backoff bounds.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *options) {
		c.backoffMin = initial
		c.backoffMax = max
	}
}

// WithThresholds overrides staleness thresholds per source class.
func WithThresholds(t staleness.Thresholds) Option {
	return func(c *options) { c.thresholds = t }
}

// WithHardExpiry makes the backend expire documents after factor times
// their staleness threshold. Zero keeps them forever.
func WithHardExpiry(factor float64) Option {
	return func(c *options) { c.hardExpiry = factor }
}

// WithMarketGate pauses the refresh worker while g reports the market
// closed. The default never pauses.
func WithMarketGate(g market.Gate) Option {
	return func(c *options) { c.gate = g }
}

// WithSweep enables the periodic sweeper with the given cron schedule and
// tickers to keep warm.
func WithSweep(schedule string, watchlist ...string) Option {
	return func(c *options) { c.sweep = &sweepConfig{schedule: schedule, watchlist: watchlist} }
}

// WithTracerProvider emits provider fetch spans through tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *options) { c.tp = tp }
}

// WithMetrics records cache, fetch and worker metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *options) { c.metrics = m }
}

// WithClock sets the time source for stamping, staleness and waits.
func WithClock(clk ratelimit.Clock) Option {
	return func(c *options) { c.clock = clk }
}

// WithBreaker sets the per-provider circuit breaker configuration.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *options) { c.breaker = &cfg }
}

// WithRetry sets the retry policy of synchronous fetches on a cache miss.
func WithRetry(cfg retry.Config) Option {
	return func(c *options) { c.retry = &cfg }
}
