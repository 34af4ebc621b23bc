// Package yahoo fetches quotes from the Yahoo Finance v8 chart endpoint,
// reading only the summary block the endpoint returns alongside the bars.
package yahoo

import (
	"context"
	"net/url"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/source"
)

// Name is the provider name Yahoo registers under.
const Name = "yahoo"

// DefaultBaseURL is the public chart API root.
const DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

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

// Fetcher implements source.Fetcher for Yahoo Finance. It needs no
// credentials.
type Fetcher struct {
	baseURL string
	client  *source.Client
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{baseURL: DefaultBaseURL}
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

type chartMeta struct {
	Symbol             string   `json:"symbol"`
	Currency           string   `json:"currency"`
	ExchangeName       string   `json:"exchangeName"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	ChartPreviousClose *float64 `json:"chartPreviousClose"`
	PreviousClose      *float64 `json:"previousClose"`
	DayHigh            *float64 `json:"regularMarketDayHigh"`
	DayLow             *float64 `json:"regularMarketDayLow"`
	Open               *float64 `json:"regularMarketOpen"`
	RegularMarketTime  int64    `json:"regularMarketTime"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta chartMeta `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch implements source.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, ticker string) (quote.Quote, error) {
	ticker = quote.Canonical(ticker)
	params := url.Values{"interval": {"1d"}, "range": {"1d"}}

	var resp chartResponse
	if err := f.client.GetJSON(ctx, f.baseURL+"/"+url.PathEscape(ticker)+"?"+params.Encode(), Name, ticker, &resp); err != nil {
		return quote.Quote{}, err
	}
	if e := resp.Chart.Error; e != nil {
		return quote.Quote{}, quote.NewFetchError(quote.NotFound, Name, ticker, e.Code+": "+e.Description, nil)
	}
	if len(resp.Chart.Result) == 0 {
		return quote.Quote{}, quote.NewFetchError(quote.NotFound, Name, ticker, "empty chart result", nil)
	}

	m := resp.Chart.Result[0].Meta
	if m.RegularMarketPrice == nil || *m.RegularMarketPrice <= 0 {
		return quote.Quote{}, quote.NewFetchError(quote.NotFound, Name, ticker, "no market price", nil)
	}

	q := quote.Quote{
		Ticker: ticker,
		Price:  *m.RegularMarketPrice,
		High:   m.DayHigh,
		Low:    m.DayLow,
		Open:   m.Open,
		APIMetadata: map[string]any{
			"source":   Name,
			"currency": m.Currency,
			"exchange": m.ExchangeName,
		},
	}
	if m.RegularMarketTime != 0 {
		q.APIMetadata["timestamp"] = m.RegularMarketTime
	}

	prev := m.ChartPreviousClose
	if prev == nil {
		prev = m.PreviousClose
	}
	if prev != nil && *prev != 0 {
		q.PreviousClose = quote.Float(*prev)
		change := q.Price - *prev
		q.Change = quote.Float(change)
		q.PercentChange = quote.Float(change / *prev * 100)
	}
	return q, nil
}
