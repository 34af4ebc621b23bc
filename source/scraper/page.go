package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/Keksclan/goQuoteSquirrel/source"
)

// PageScraper is a PriceScraper for pages that render the price in the
// initial HTML. It fetches the page and applies a regular expression whose
// first capture group is the price text. Pages that need a browser are out
// of its reach; plug in another PriceScraper for those.
type PageScraper struct {
	client *source.Client
	re     *regexp.Regexp
	name   string
}

// NewPageScraper compiles pattern, which must contain one capture group.
func NewPageScraper(name, pattern string, client *source.Client) (*PageScraper, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("scraper: pattern %q has no capture group", pattern)
	}
	if client == nil {
		client = source.NewClient(source.DefaultTimeout)
	}
	return &PageScraper{client: client, re: re, name: name}, nil
}

// ScrapePrice implements PriceScraper.
func (p *PageScraper) ScrapePrice(ctx context.Context, ticker, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return 0, source.TransportError(p.name, ticker, err)
	}
	defer resp.Body.Close()
	if err := source.ClassifyStatus(p.name, ticker, resp.StatusCode); err != nil {
		return 0, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, source.TransportError(p.name, ticker, err)
	}
	m := p.re.FindSubmatch(body)
	if m == nil {
		return 0, nil
	}
	return ParsePrice(string(m[1]))
}
