package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/breaker"
	"github.com/Keksclan/goQuoteSquirrel/metrics"
	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/routing"
	"github.com/Keksclan/goQuoteSquirrel/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l zerolog.Logger) RouterOption {
	return func(r *Router) { r.log = l.With().Str("component", "source").Logger() }
}

// WithMetrics records fetch outcomes and breaker transitions on m.
func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithTracerProvider emits a span per fetch through tp.
func WithTracerProvider(tp trace.TracerProvider) RouterOption {
	return func(r *Router) { r.tracer = tracing.NewFetchTracer(tp) }
}

// WithBreaker sets the circuit breaker configuration applied to every
// provider. IsFailure defaults to [quote.IsTransient].
func WithBreaker(cfg breaker.Config) RouterOption {
	return func(r *Router) { r.breakerCfg = cfg }
}

// Router fetches a ticker from the provider its route names.
type Router struct {
	table      *routing.Table
	registry   *Registry
	log        zerolog.Logger
	metrics    *metrics.Metrics
	tracer     *tracing.FetchTracer
	breakerCfg breaker.Config

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker
}

// NewRouter creates a Router over table and registry.
func NewRouter(table *routing.Table, registry *Registry, opts ...RouterOption) *Router {
	r := &Router{
		table:      table,
		registry:   registry,
		log:        zerolog.Nop(),
		breakerCfg: breaker.DefaultConfig(),
		breakers:   make(map[string]*breaker.Breaker),
	}
	for _, o := range opts {
		o(r)
	}
	if r.breakerCfg.IsFailure == nil {
		r.breakerCfg.IsFailure = quote.IsTransient
	}
	return r
}

// Table returns the routing table.
func (r *Router) Table() *routing.Table { return r.table }

// Route returns the route for ticker.
func (r *Router) Route(ticker string) routing.Route {
	return r.table.Lookup(ticker)
}

// Fetch resolves the route for ticker and calls its provider. The returned
// route tells the caller which source class the quote belongs to.
func (r *Router) Fetch(ctx context.Context, ticker string) (quote.Quote, routing.Route, error) {
	ticker = quote.Canonical(ticker)
	route := r.table.Lookup(ticker)

	f, ok := r.registry.Get(route.Provider)
	if !ok {
		err := quote.NewFetchError(quote.Config, route.Provider, ticker, "no fetcher registered", nil)
		r.metrics.Fetch(route.Provider, quote.Config.String(), 0)
		return quote.Quote{}, route, err
	}

	ctx, span := r.tracer.Start(ctx, ticker, route.Provider)
	start := time.Now()

	var q quote.Quote
	err := r.breaker(route.Provider).Do(func() error {
		var ferr error
		if rf, ok := f.(RouteFetcher); ok {
			q, ferr = rf.FetchRoute(ctx, ticker, route)
		} else {
			q, ferr = f.Fetch(ctx, ticker)
		}
		return ferr
	})
	if errors.Is(err, breaker.ErrOpen) {
		err = quote.NewFetchError(quote.Transient, route.Provider, ticker, "circuit open", err)
	}

	outcome, kind := "ok", ""
	if err != nil {
		kind = quote.KindOf(err).String()
		outcome = kind
	}
	r.metrics.Fetch(route.Provider, outcome, time.Since(start))
	tracing.End(span, err, kind)

	if err != nil {
		return quote.Quote{}, route, err
	}
	q.Ticker = ticker
	if q.Source() == "" {
		if q.APIMetadata == nil {
			q.APIMetadata = make(map[string]any, 1)
		}
		q.APIMetadata["source"] = route.Provider
	}
	return q, route, nil
}

// BreakerState reports the breaker state of provider. Providers that have
// never been called are closed.
func (r *Router) BreakerState(provider string) breaker.State {
	r.mu.Lock()
	b, ok := r.breakers[NormalizeName(provider)]
	r.mu.Unlock()
	if !ok {
		return breaker.Closed
	}
	return b.State()
}

func (r *Router) breaker(provider string) *breaker.Breaker {
	key := NormalizeName(provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	cfg := r.breakerCfg
	user := cfg.OnStateChange
	cfg.OnStateChange = func(from, to breaker.State) {
		r.log.Warn().Str("provider", provider).Stringer("from", from).Stringer("to", to).Msg("circuit breaker transition")
		r.metrics.BreakerState(provider, int(to))
		if user != nil {
			user(from, to)
		}
	}
	b := breaker.New(cfg)
	r.breakers[key] = b
	return b
}
