// Package sweep periodically walks the known tickers and enqueues the stale
// ones for refresh, so quotes nobody reads still converge to fresh.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/cache"
	"github.com/Keksclan/goQuoteSquirrel/queue"
	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule runs a sweep every minute.
const DefaultSchedule = "@every 1m"

// KeySource lists the tickers the cache has seen.
type KeySource interface {
	Keys() []string
}

// Cache reads entries.
type Cache interface {
	Get(ctx context.Context, key string) (*cache.Entry, bool, error)
}

// Enqueuer adds tickers to the refresh queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, key string, priority float64) error
}

// Staleness decides whether an entry needs refreshing.
type Staleness interface {
	IsStale(e *cache.Entry) bool
	Age(e *cache.Entry) (float64, bool)
}

// Derivations identifies synthetic tickers.
type Derivations interface {
	IsDerived(ticker string) bool
}

// Deps are the collaborators of a Sweeper. Derived is optional.
type Deps struct {
	Keys    KeySource
	Cache   Cache
	Queue   Enqueuer
	Policy  Staleness
	Derived Derivations
}

// Report summarises one sweep.
type Report struct {
	Checked  int
	Enqueued int
	Failed   int
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithSchedule sets the cron spec. Descriptors such as "@every 30s" are
// accepted.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithWatchlist adds tickers that are swept even before anyone reads them.
func WithWatchlist(tickers ...string) Option {
	return func(s *Sweeper) { s.watch = append(s.watch, tickers...) }
}

// WithLogger sets the sweeper's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sweeper) { s.log = l.With().Str("component", "sweep").Logger() }
}

// WithTimeout bounds a single scheduled sweep.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Sweeper enqueues stale tickers on a schedule.
type Sweeper struct {
	deps     Deps
	schedule string
	watch    []string
	timeout  time.Duration
	log      zerolog.Logger
	cron     *cron.Cron
}

// New creates a Sweeper and registers its job. An invalid schedule is
// reported here rather than at Start.
func New(deps Deps, opts ...Option) (*Sweeper, error) {
	if deps.Keys == nil || deps.Cache == nil || deps.Queue == nil || deps.Policy == nil {
		return nil, errors.New("sweep: keys, cache, queue and policy are required")
	}
	s := &Sweeper{
		deps:     deps,
		schedule: DefaultSchedule,
		timeout:  30 * time.Second,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("sweeper stopped")
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	r := s.Sweep(ctx)
	s.log.Debug().Int("checked", r.Checked).Int("enqueued", r.Enqueued).Int("failed", r.Failed).Msg("sweep finished")
}

// Sweep checks every known and watched ticker once and enqueues the stale
// ones. Tickers never cached are enqueued with the never-cached priority.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	var r Report
	seen := make(map[string]struct{})
	for _, key := range append(s.deps.Keys.Keys(), s.watch...) {
		key = quote.Canonical(key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if s.deps.Derived != nil && s.deps.Derived.IsDerived(key) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		r.Checked++

		entry, hit, err := s.deps.Cache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", key).Msg("cache read failed during sweep")
			r.Failed++
			continue
		}
		if hit && !s.deps.Policy.IsStale(entry) {
			continue
		}
		priority := queue.NeverCached
		if age, ok := s.deps.Policy.Age(entry); ok && hit {
			priority = age
		}
		if err := s.deps.Queue.Enqueue(ctx, key, priority); err != nil {
			s.log.Warn().Err(err).Str("ticker", key).Msg("enqueue failed during sweep")
			r.Failed++
			continue
		}
		r.Enqueued++
	}
	return r
}
