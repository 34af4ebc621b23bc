// Package finnhub fetches real-time quotes from the Finnhub REST API.
package finnhub

import (
	"context"
	"net/url"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/source"
)

// Name is the provider name Finnhub registers under.
const Name = "finnhub"

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://finnhub.io/api/v1"

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL points the fetcher at a different API root.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) { f.baseURL = u }
}

// WithClient sets the HTTP client.
func WithClient(c *source.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// Fetcher implements source.Fetcher for Finnhub.
type Fetcher struct {
	apiKey  string
	baseURL string
	client  *source.Client
}

// New creates a Fetcher authenticating with apiKey. A missing key is not an
// error here; every Fetch reports it as a configuration failure instead.
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

type quoteResponse struct {
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	DP float64 `json:"dp"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"`
	T  int64   `json:"t"`
}

// Fetch implements source.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, ticker string) (quote.Quote, error) {
	ticker = quote.Canonical(ticker)
	if f.apiKey == "" {
		return quote.Quote{}, quote.NewFetchError(quote.Config, Name, ticker, "FINNHUB_API_KEY is not set", nil)
	}

	q := url.Values{"symbol": {ticker}, "token": {f.apiKey}}
	var resp quoteResponse
	if err := f.client.GetJSON(ctx, f.baseURL+"/quote?"+q.Encode(), Name, ticker, &resp); err != nil {
		return quote.Quote{}, err
	}

	// Finnhub answers unknown symbols with an all-zero body.
	if resp.C == 0 && resp.D == 0 && resp.DP == 0 {
		return quote.Quote{}, quote.NewFetchError(quote.NotFound, Name, ticker, "no data for symbol", nil)
	}

	meta := map[string]any{"source": Name}
	if resp.T != 0 {
		meta["timestamp"] = resp.T
	}
	return quote.Quote{
		Ticker:        ticker,
		Price:         resp.C,
		Change:        quote.Float(resp.D),
		PercentChange: quote.Float(resp.DP),
		High:          quote.Float(resp.H),
		Low:           quote.Float(resp.L),
		Open:          quote.Float(resp.O),
		PreviousClose: quote.Float(resp.PC),
		APIMetadata:   meta,
	}, nil
}
