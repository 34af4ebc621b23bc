// Package alphavantage fetches quotes from the Alpha Vantage GLOBAL_QUOTE
// endpoint. The free tier allows a handful of calls per day, so tickers
// routed here normally sit in the slow source class.
package alphavantage

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/source"
)

// Name is the provider name Alpha Vantage registers under.
const Name = "alphavantage"

// DefaultBaseURL is the public query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL points the fetcher at a different endpoint.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) { f.baseURL = u }
}

// WithClient sets the HTTP client.
func WithClient(c *source.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// Fetcher implements source.Fetcher for Alpha Vantage.
type Fetcher struct {
	apiKey  string
	baseURL string
	client  *source.Client
}

// New creates a Fetcher authenticating with apiKey.
func New(apiKey string, opts ...Option) *Fetcher {
	f := &Fetcher{apiKey: apiKey, baseURL: DefaultBaseURL}
	for _, o := range opts {
		o(f)
	}
	if f.client == nil {
		f.client = source.NewClient(source.DefaultTimeout)
	}
	return f
}

// Name implements source.Fetcher.
func (f *Fetcher) Name() string { return Name }

type response struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	ErrorMessage string            `json:"Error Message"`
	Note         string            `json:"Note"`
	Information  string            `json:"Information"`
}

// Fetch implements source.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, ticker string) (quote.Quote, error) {
	ticker = quote.Canonical(ticker)
	if f.apiKey == "" {
		return quote.Quote{}, quote.NewFetchError(quote.Config, Name, ticker, "ALPHA_VANTAGE_API_KEY is not set", nil)
	}

	params := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {ticker},
		"apikey":   {f.apiKey},
	}
	var resp response
	if err := f.client.GetJSON(ctx, f.baseURL+"?"+params.Encode(), Name, ticker, &resp); err != nil {
		return quote.Quote{}, err
	}

	// Quota refusals come back as 200 with an explanatory field.
	switch {
	case resp.ErrorMessage != "":
		return quote.Quote{}, quote.NewFetchError(quote.NotFound, Name, ticker, resp.ErrorMessage, nil)
	case resp.Note != "":
		return quote.Quote{}, quote.NewFetchError(quote.RateLimited, Name, ticker, resp.Note, nil)
	case resp.Information != "":
		return quote.Quote{}, quote.NewFetchError(quote.RateLimited, Name, ticker, resp.Information, nil)
	}

	return parseGlobalQuote(ticker, resp.GlobalQuote)
}

func parseGlobalQuote(ticker string, gq map[string]string) (quote.Quote, error) {
	price := parse(gq["05. price"])
	if price == nil || *price == 0 {
		return quote.Quote{}, quote.NewFetchError(quote.NotFound, Name, ticker, "no data for symbol", nil)
	}

	meta := map[string]any{"source": Name}
	for field, key := range map[string]string{
		"01. symbol":             "symbol",
		"06. volume":             "volume",
		"07. latest trading day": "latestTradingDay",
	} {
		if v, ok := gq[field]; ok {
			meta[key] = v
		}
	}

	return quote.Quote{
		Ticker:        ticker,
		Price:         *price,
		Change:        parse(gq["09. change"]),
		PercentChange: parse(strings.TrimSuffix(gq["10. change percent"], "%")),
		High:          parse(gq["03. high"]),
		Low:           parse(gq["04. low"]),
		Open:          parse(gq["02. open"]),
		PreviousClose: parse(gq["08. previous close"]),
		APIMetadata:   meta,
	}, nil
}

// parse reads a decimal string; empty or malformed input is absent.
func parse(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
