package quotesquirrel

import (
	"errors"
	"fmt"

	"github.com/Keksclan/goQuoteSquirrel/cache"
	"github.com/Keksclan/goQuoteSquirrel/config"
	"github.com/Keksclan/goQuoteSquirrel/market"
	"github.com/Keksclan/goQuoteSquirrel/queue"
	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/source"
	"github.com/Keksclan/goQuoteSquirrel/source/alphavantage"
	"github.com/Keksclan/goQuoteSquirrel/source/finnhub"
	"github.com/Keksclan/goQuoteSquirrel/source/scraper"
	"github.com/Keksclan/goQuoteSquirrel/source/yahoo"
	"github.com/Keksclan/goQuoteSquirrel/staleness"
	"github.com/rs/zerolog"
)

// FidelityPricePattern captures the daily price on a Fidelity fund summary
// page.
const FidelityPricePattern = `class="[^"]*value-column[^"]*font-xxl[^"]*"[^>]*>([^<]+)<`

// Fetchers returns the built-in provider fetchers configured from cfg,
// sharing one HTTP client.
func Fetchers(cfg *config.Config) ([]source.Fetcher, error) {
	client := source.NewClient(cfg.ProviderTimeout())
	page, err := scraper.NewPageScraper(scraper.Fidelity, FidelityPricePattern, client)
	if err != nil {
		return nil, err
	}
	return []source.Fetcher{
		finnhub.New(cfg.Providers.FinnhubAPIKey, finnhub.WithClient(client)),
		alphavantage.New(cfg.Providers.AlphaVantageAPIKey, alphavantage.WithClient(client)),
		yahoo.New(yahoo.WithClient(client)),
		scraper.NewFidelity(page),
	}, nil
}

// Backend opens the cache backend cfg describes: an L1 cache, tiered in
// front of Redis when Redis is configured, or else in front of SQLite when
// a path is set. When Redis is used the returned queue shares its client;
// otherwise the queue is nil and New falls back to the in-memory one.
func Backend(cfg *config.Config) (cache.Backend, queue.RefreshQueue, error) {
	l1, err := cache.NewL1(cfg.L1.MaxCost)
	if err != nil {
		return nil, nil, err
	}
	local := cache.WithLocalTTL(cfg.L1LocalTTL())
	switch {
	case cfg.RedisConfigured():
		var l2 *cache.L2
		if cfg.Redis.URL != "" {
			l2, err = cache.NewL2FromURL(cfg.Redis.URL)
			if err != nil {
				_ = l1.Close()
				return nil, nil, fmt.Errorf("redis: %w", err)
			}
		} else {
			l2 = cache.NewL2(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		}
		return cache.NewTiered(l1, l2, local), queue.NewRedis(l2.Client(), queue.DefaultRedisKey), nil
	case cfg.SQLite.Path != "":
		db, err := cache.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			_ = l1.Close()
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return cache.NewTiered(l1, db, local), nil, nil
	default:
		return l1, nil, nil
	}
}

// FromConfig translates cfg into Service options. The returned options own
// the opened backend; Close on the Service releases it.
func FromConfig(cfg *config.Config, log zerolog.Logger) ([]Option, error) {
	if cfg == nil {
		return nil, errors.New("quotesquirrel: nil config")
	}
	table, err := cfg.RoutingTable()
	if err != nil {
		return nil, err
	}
	fetchers, err := Fetchers(cfg)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLogger(log),
		WithRouting(table),
		WithFetcher(fetchers...),
		WithWorkerInterval(cfg.WorkerInterval()),
		WithSpacing(cfg.Spacing()),
		WithBackoff(cfg.BackoffInitial(), cfg.BackoffMax()),
		WithThresholds(staleness.Thresholds{
			quote.ClassFast: cfg.FastThreshold(),
			quote.ClassSlow: cfg.SlowThreshold(),
		}),
		WithHardExpiry(cfg.Thresholds.HardExpiryFactor),
	}
	if g := cfg.Worker.MarketHoursGating; g == nil || *g {
		hours, err := market.NewHours()
		if err != nil {
			return nil, fmt.Errorf("quotesquirrel: market hours: %w", err)
		}
		opts = append(opts, WithMarketGate(hours))
	}
	if cfg.Sweep.Enabled {
		watch := append(table.ExactTickers(), cfg.Sweep.Watchlist...)
		opts = append(opts, WithSweep(cfg.Sweep.Schedule, watch...))
	}

	// Opened last so an earlier failure leaves nothing to close.
	backend, q, err := Backend(cfg)
	if err != nil {
		return nil, fmt.Errorf("quotesquirrel: %w", err)
	}
	opts = append(opts, WithBackend(backend))
	if q != nil {
		opts = append(opts, WithQueue(q))
	}
	return opts, nil
}
