package routing

import (
	"fmt"
	"slices"

	"github.com/Keksclan/goQuoteSquirrel/quote"
)

// Provider names used by the built-in table.
const (
	ProviderFinnhub      = "finnhub"
	ProviderAlphaVantage = "alphavantage"
	ProviderYahoo        = "yahoo"
)

// Derived describes a synthetic ticker computed from another ticker's quote
// by dividing its prices by Divisor. Derived tickers are never fetched or
// cached themselves.
type Derived struct {
	Ticker  string
	Base    string
	Divisor float64
}

// Table resolves tickers to routes. It is immutable after construction and
// safe for concurrent use.
type Table struct {
	fallback Route
	groups   []*GroupBuilder
	derived  map[string]Derived
}

// NewTable creates a Table. fallback is used for tickers no group matches.
func NewTable(fallback Route, groups ...*GroupBuilder) *Table {
	if fallback.Class == "" {
		fallback.Class = quote.ClassFast
	}
	return &Table{fallback: fallback, groups: groups, derived: make(map[string]Derived)}
}

// WithDerived registers derived tickers and returns t.
func (t *Table) WithDerived(ds ...Derived) (*Table, error) {
	for _, d := range ds {
		d.Ticker = quote.Canonical(d.Ticker)
		d.Base = quote.Canonical(d.Base)
		if d.Ticker == "" || d.Base == "" {
			return t, fmt.Errorf("routing: derived ticker needs a name and a base")
		}
		if d.Divisor == 0 {
			return t, fmt.Errorf("routing: derived ticker %s has a zero divisor", d.Ticker)
		}
		if d.Ticker == d.Base {
			return t, fmt.Errorf("routing: derived ticker %s cannot be its own base", d.Ticker)
		}
		t.derived[d.Ticker] = d
	}
	return t, nil
}

// Default returns the built-in routes: Fidelity index funds through Alpha
// Vantage on the slow tier, everything else through Finnhub, and NHFSMKX98
// derived from FXAIX.
func Default() *Table {
	t := NewTable(
		Route{Provider: ProviderFinnhub, Class: quote.ClassFast},
		Group("index-funds").
			Exact("FXAIX", "VFIAX").
			Route(Route{Provider: ProviderAlphaVantage, Class: quote.ClassSlow}),
	)
	t, _ = t.WithDerived(Derived{Ticker: "NHFSMKX98", Base: "FXAIX", Divisor: 3.43})
	return t
}

// Match finds the best-matching group for ticker.
//
// Priority rules:
//   - Exact matches beat prefix matches, which beat regex matches.
//   - Among matches of the same kind the longer match wins.
//   - When two matches have equal kind and length the group that was
//     registered first (stable order) wins.
//
// If no group matches, ok is false.
func (t *Table) Match(ticker string) (groupName string, route Route, ok bool) {
	ticker = quote.Canonical(ticker)
	bestKind := matchKind(-1)
	bestLen := -1
	var best *Route

	for _, g := range t.groups {
		for _, r := range g.rules {
			matched, mLen := r.match(ticker)
			if !matched {
				continue
			}
			// A lower kind value means higher priority.
			better := bestKind < 0 ||
				r.kind < bestKind ||
				(r.kind == bestKind && mLen > bestLen)
			if better {
				bestKind = r.kind
				bestLen = mLen
				groupName = g.name
				best = g.route
				ok = true
			}
		}
	}
	if best != nil {
		route = *best
	}
	if ok && route.Class == "" {
		route.Class = quote.ClassFast
	}
	return groupName, route, ok
}

// Lookup returns the route for ticker, falling back to the default route.
func (t *Table) Lookup(ticker string) Route {
	if _, r, ok := t.Match(ticker); ok && r.Provider != "" {
		return r
	}
	return t.fallback
}

// Fallback returns the default route.
func (t *Table) Fallback() Route { return t.fallback }

// Derived returns the derived definition for ticker, if any.
func (t *Table) Derived(ticker string) (Derived, bool) {
	d, ok := t.derived[quote.Canonical(ticker)]
	return d, ok
}

// IsDerived reports whether ticker is synthetic.
func (t *Table) IsDerived(ticker string) bool {
	_, ok := t.Derived(ticker)
	return ok
}

// Providers lists every provider name the table can route to, sorted.
func (t *Table) Providers() []string {
	set := map[string]struct{}{t.fallback.Provider: {}}
	for _, g := range t.groups {
		if g.route != nil && g.route.Provider != "" {
			set[g.route.Provider] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// ExactTickers lists the tickers named by exact rules, sorted. The sweeper
// seeds its watchlist from it.
func (t *Table) ExactTickers() []string {
	var out []string
	for _, g := range t.groups {
		for _, r := range g.rules {
			if r.kind == kindExact {
				out = append(out, r.pattern)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
