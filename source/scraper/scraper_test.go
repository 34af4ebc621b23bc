package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRoute_UsesRouteURL(t *testing.T) {
	var gotURL string
	f := NewFidelity(PriceScraperFunc(func(_ context.Context, _, url string) (float64, error) {
		gotURL = url
		return 25.31, nil
	}))

	q, err := f.FetchRoute(t.Context(), "fskax", routing.Route{URL: "https://example.test/p", DataType: "scrapped"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/p", gotURL)
	assert.Equal(t, "FSKAX", q.Ticker)
	assert.Equal(t, 25.31, q.Price)
	assert.Equal(t, Fidelity, q.Source())
	assert.Equal(t, "scrapped", q.APIMetadata["dataType"])
}

func TestFetch_FallsBackToTemplate(t *testing.T) {
	var gotURL string
	f := NewFidelity(PriceScraperFunc(func(_ context.Context, _, url string) (float64, error) {
		gotURL = url
		return 1, nil
	}))

	_, err := f.Fetch(t.Context(), "FXAIX")
	require.NoError(t, err)
	assert.Equal(t, "https://fundresearch.fidelity.com/mutual-funds/summary/FXAIX?appcode=529", gotURL)
}

func TestFetch_Classification(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		err   error
		want  quote.Kind
	}{
		{"zero price", 0, nil, quote.NotFound},
		{"negative price", -1, nil, quote.NotFound},
		{"timeout", 0, context.DeadlineExceeded, quote.Transient},
		{"broken page", 0, errors.New("selector missing"), quote.Transient},
		{"typed error", 0, quote.NewFetchError(quote.RateLimited, Fidelity, "X", "", nil), quote.RateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFidelity(PriceScraperFunc(func(context.Context, string, string) (float64, error) {
				return tt.price, tt.err
			}))
			_, err := f.Fetch(t.Context(), "X")
			require.Error(t, err)
			assert.Equal(t, tt.want, quote.KindOf(err))
		})
	}
}

func TestFetch_NoURLIsConfig(t *testing.T) {
	f := New("custom", PriceScraperFunc(func(context.Context, string, string) (float64, error) { return 1, nil }))
	_, err := f.Fetch(t.Context(), "X")
	assert.Equal(t, quote.Config, quote.KindOf(err))
}

func TestParsePrice(t *testing.T) {
	v, err := ParsePrice(" $1,234.56 ")
	require.NoError(t, err)
	assert.Equal(t, 1234.56, v)

	_, err = ParsePrice("n/a")
	assert.Error(t, err)
}

func TestPageScraper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div class="mfl-daily-info-snapshot"><span class="value-column">$182.40</span></div>`))
	}))
	t.Cleanup(srv.Close)

	ps, err := NewPageScraper(Fidelity, `class="value-column">([^<]+)<`, nil)
	require.NoError(t, err)

	q, err := NewFidelity(ps).FetchRoute(t.Context(), "FXAIX", routing.Route{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 182.40, q.Price)
}

func TestPageScraper_NoMatchIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	t.Cleanup(srv.Close)

	ps, err := NewPageScraper(Fidelity, `price">([^<]+)<`, nil)
	require.NoError(t, err)

	_, err = NewFidelity(ps).FetchRoute(t.Context(), "FXAIX", routing.Route{URL: srv.URL})
	assert.Equal(t, quote.NotFound, quote.KindOf(err))
}

func TestNewPageScraper_RequiresGroup(t *testing.T) {
	_, err := NewPageScraper(Fidelity, `price`, nil)
	assert.Error(t, err)
}
