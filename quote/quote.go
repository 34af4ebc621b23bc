// Package quote defines the normalized quote shape shared by fetchers, the
// cache store and the read path, together with ticker canonicalisation and
// the source-class freshness tiers.
package quote

import (
	"fmt"
	"strings"
	"time"
)

// Canonical returns the canonical form of a ticker symbol: surrounding
// whitespace removed, upper case. Every cache key, queue member and fetcher
// input goes through this function.
func Canonical(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Validate canonicalises ticker and rejects the empty symbol.
func Validate(ticker string) (string, error) {
	c := Canonical(ticker)
	if c == "" {
		return "", ErrEmptySymbol
	}
	return c, nil
}

// SourceClass is the freshness tier a ticker belongs to. It decides how long
// a cached quote counts as fresh.
type SourceClass string

const (
	// ClassFast covers high-quota providers (Finnhub, Yahoo, scrapers).
	ClassFast SourceClass = "fast"
	// ClassSlow covers providers limited to a handful of calls per day
	// (Alpha Vantage).
	ClassSlow SourceClass = "slow"
)

// Default freshness thresholds. The slow threshold spreads 20 calls a day
// over two tickers across a 6.5 hour session: 23400s / 10 = 2340s.
const (
	DefaultFastTTL = 300 * time.Second
	DefaultSlowTTL = 2340 * time.Second
)

// ParseSourceClass maps a configuration value to a SourceClass. The legacy
// single-letter names "A" and "B" are accepted as aliases.
func ParseSourceClass(s string) (SourceClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fast", "a":
		return ClassFast, nil
	case "slow", "b":
		return ClassSlow, nil
	}
	return "", fmt.Errorf("quote: unknown source class %q", s)
}

// Quote is the provider-independent quote. Price is always present; the
// remaining figures are optional because not every provider reports them.
type Quote struct {
	Ticker        string         `json:"ticker,omitempty"`
	Price         float64        `json:"price"`
	Change        *float64       `json:"change,omitempty"`
	PercentChange *float64       `json:"percentChange,omitempty"`
	High          *float64       `json:"highPrice,omitempty"`
	Low           *float64       `json:"lowPrice,omitempty"`
	Open          *float64       `json:"openPrice,omitempty"`
	PreviousClose *float64       `json:"previousClose,omitempty"`
	APIMetadata   map[string]any `json:"apiMetadata,omitempty"`
}

// Float returns a pointer to v. Fetchers use it to fill optional fields.
func Float(v float64) *float64 { return &v }

// Source returns the provider tag recorded in the API metadata.
func (q Quote) Source() string {
	s, _ := q.APIMetadata["source"].(string)
	return s
}

// Clone returns a deep copy of q so callers may mutate the result without
// affecting cached values.
func (q Quote) Clone() Quote {
	out := q
	out.Change = cloneFloat(q.Change)
	out.PercentChange = cloneFloat(q.PercentChange)
	out.High = cloneFloat(q.High)
	out.Low = cloneFloat(q.Low)
	out.Open = cloneFloat(q.Open)
	out.PreviousClose = cloneFloat(q.PreviousClose)
	if q.APIMetadata != nil {
		out.APIMetadata = make(map[string]any, len(q.APIMetadata))
		for k, v := range q.APIMetadata {
			out.APIMetadata[k] = v
		}
	}
	return out
}

// Scale divides every absolute price figure by divisor. PercentChange is a
// ratio and is left untouched; metadata is copied verbatim.
func (q Quote) Scale(divisor float64) Quote {
	out := q.Clone()
	out.Price = q.Price / divisor
	out.Change = divFloat(q.Change, divisor)
	out.High = divFloat(q.High, divisor)
	out.Low = divFloat(q.Low, divisor)
	out.Open = divFloat(q.Open, divisor)
	out.PreviousClose = divFloat(q.PreviousClose, divisor)
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func divFloat(p *float64, d float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p / d
	return &v
}
