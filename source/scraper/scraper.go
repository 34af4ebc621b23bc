// Package scraper adapts page scrapers into quote fetchers. A scraper is a
// black box that returns the current price shown on a page; this package
// supplies the page URL from the ticker's route and turns the price into a
// quote.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/routing"
)

// Fidelity is the registry name of the Fidelity fund-research scraper.
const Fidelity = "Fidelity"

// FidelityURL is the page template used when a Fidelity route has no URL.
const FidelityURL = "https://fundresearch.fidelity.com/mutual-funds/summary/%s?appcode=529"

// PriceScraper reads the price of ticker from the page at url.
type PriceScraper interface {
	ScrapePrice(ctx context.Context, ticker, url string) (float64, error)
}

// PriceScraperFunc adapts a function into a PriceScraper.
type PriceScraperFunc func(ctx context.Context, ticker, url string) (float64, error)

// ScrapePrice implements PriceScraper.
func (f PriceScraperFunc) ScrapePrice(ctx context.Context, ticker, url string) (float64, error) {
	return f(ctx, ticker, url)
}

// Fetcher implements source.RouteFetcher over a PriceScraper.
type Fetcher struct {
	name        string
	scraper     PriceScraper
	urlTemplate string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithURLTemplate sets the fmt template (one %s for the ticker) used when a
// route carries no URL.
func WithURLTemplate(tmpl string) Option {
	return func(f *Fetcher) { f.urlTemplate = tmpl }
}

// New creates a Fetcher registered as name.
func New(name string, s PriceScraper, opts ...Option) *Fetcher {
	f := &Fetcher{name: name, scraper: s}
	for _, o := range opts {
		o(f)
	}
	return f
}

// NewFidelity returns the Fidelity fetcher over s.
func NewFidelity(s PriceScraper) *Fetcher {
	return New(Fidelity, s, WithURLTemplate(FidelityURL))
}

// Name implements source.Fetcher.
func (f *Fetcher) Name() string { return f.name }

// Fetch implements source.Fetcher using the URL template.
func (f *Fetcher) Fetch(ctx context.Context, ticker string) (quote.Quote, error) {
	return f.FetchRoute(ctx, ticker, routing.Route{})
}

// FetchRoute implements source.RouteFetcher.
func (f *Fetcher) FetchRoute(ctx context.Context, ticker string, route routing.Route) (quote.Quote, error) {
	ticker = quote.Canonical(ticker)
	url := route.URL
	if url == "" && f.urlTemplate != "" {
		url = fmt.Sprintf(f.urlTemplate, ticker)
	}
	if url == "" {
		return quote.Quote{}, quote.NewFetchError(quote.Config, f.name, ticker, "no page url configured", nil)
	}

	price, err := f.scraper.ScrapePrice(ctx, ticker, url)
	if err != nil {
		var fe *quote.FetchError
		if errors.As(err, &fe) {
			return quote.Quote{}, err
		}
		msg := "scrape failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "scrape timed out"
		}
		return quote.Quote{}, quote.NewFetchError(quote.Transient, f.name, ticker, msg, err)
	}
	if price <= 0 {
		return quote.Quote{}, quote.NewFetchError(quote.NotFound, f.name, ticker, "no price on page", nil)
	}

	meta := map[string]any{"source": f.name, "url": url}
	if route.DataType != "" {
		meta["dataType"] = route.DataType
	}
	return quote.Quote{Ticker: ticker, Price: price, APIMetadata: meta}, nil
}

// ParsePrice reads a displayed price such as "$1,234.56". Currency symbols,
// thousands separators and surrounding text are ignored.
func ParsePrice(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("scraper: cannot parse price %q", text)
	}
	return v, nil
}
