// Package source turns "give me a quote for this ticker" into a call to the
// right provider. Each provider implements [Fetcher]; the [Registry] names
// them and the [Router] picks one per ticker from the routing table, guarding
// every provider with its own circuit breaker.
package source

import (
	"context"
	"strings"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/routing"
)

//go:generate mockgen -package=source -destination=mock_source_test.go -source=source.go

// Fetcher retrieves a normalized quote from one provider. Failures are
// reported as *quote.FetchError.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (quote.Quote, error)
}

// RouteFetcher is implemented by fetchers that need per-ticker route data,
// such as the page URL a scraper reads. The router prefers FetchRoute when
// it is available.
type RouteFetcher interface {
	Fetcher
	FetchRoute(ctx context.Context, ticker string, route routing.Route) (quote.Quote, error)
}

// FetcherFunc adapts a function into a Fetcher.
type FetcherFunc struct {
	ProviderName string
	Func         func(ctx context.Context, ticker string) (quote.Quote, error)
}

// Name implements Fetcher.
func (f FetcherFunc) Name() string { return f.ProviderName }

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, ticker string) (quote.Quote, error) {
	return f.Func(ctx, ticker)
}

// NormalizeName folds a provider name to its registry key: lower case with
// dashes, underscores and spaces removed, so "Alpha-Vantage" and
// "alphavantage" name the same provider.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)
}
