// Package routing maps tickers to the provider that fetches them and the
// freshness class their quotes belong to. Rules match tickers exactly, by
// prefix, or by regular expression; unmatched tickers use the table's
// default route.
package routing

import (
	"regexp"

	"github.com/Keksclan/goQuoteSquirrel/quote"
)

// Route is the fetch configuration resolved for a ticker.
type Route struct {
	// Provider names the registered fetcher, e.g. "finnhub".
	Provider string
	// Class is the freshness tier of the provider's data.
	Class quote.SourceClass
	// URL is the page a scraper reads for this ticker.
	URL string
	// DataType labels scraped data sets (e.g. "scrapped").
	DataType string
	// Extra carries provider-specific settings.
	Extra map[string]string
}

// matchKind distinguishes the three matching strategies.
type matchKind int

const (
	kindExact  matchKind = iota // highest priority
	kindPrefix                  // medium priority
	kindRegex                   // lowest priority
)

// rule is a single matching rule inside a group.
type rule struct {
	kind    matchKind
	pattern string         // used for exact and prefix matches
	re      *regexp.Regexp // used for regex matches
}

// GroupBuilder constructs a ticker group with one or more matching rules
// and the route its tickers use.
type GroupBuilder struct {
	name  string
	rules []rule
	route *Route
}

// Group starts building a new ticker group with the given name.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Exact adds exact-match rules for the given tickers.
func (g *GroupBuilder) Exact(tickers ...string) *GroupBuilder {
	for _, t := range tickers {
		g.rules = append(g.rules, rule{kind: kindExact, pattern: quote.Canonical(t)})
	}
	return g
}

// Prefix adds a prefix-match rule.
func (g *GroupBuilder) Prefix(prefix string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindPrefix, pattern: quote.Canonical(prefix)})
	return g
}

// Regex adds a regex-match rule. The pattern is matched against the
// canonical (upper-case) ticker and compiled immediately; an invalid regex
// will panic. Use [CompileRegex] for patterns from configuration.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: regexp.MustCompile(pattern)})
	return g
}

// CompileRegex is the error-returning form of Regex.
func (g *GroupBuilder) CompileRegex(pattern string) (*GroupBuilder, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return g, err
	}
	g.rules = append(g.rules, rule{kind: kindRegex, pattern: pattern, re: re})
	return g, nil
}

// Route attaches the route to the group and returns the finished builder.
func (g *GroupBuilder) Route(r Route) *GroupBuilder {
	g.route = &r
	return g
}

// Name returns the group's name.
func (g *GroupBuilder) Name() string { return g.name }
