package source

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a provider response is read.
const maxBody = 1 << 20

// Client is a small wrapper around http.Client shared by the HTTP fetchers.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

// NewClient returns a Client with pooled connections and the given overall
// timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: "goQuoteSquirrel/1.0",
	}
}

// Do sends req with the client's default headers.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}

// GetJSON issues a GET to rawURL and decodes the JSON body into out. Status
// codes are classified with [ClassifyStatus]; transport and decode failures
// are transient.
func (c *Client) GetJSON(ctx context.Context, rawURL, provider, symbol string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return quote.NewFetchError(quote.Config, provider, symbol, "bad request url", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return TransportError(provider, symbol, err)
	}
	defer resp.Body.Close()

	if err := ClassifyStatus(provider, symbol, resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return quote.NewFetchError(quote.Transient, provider, symbol, "malformed response", err)
	}
	return nil
}
