package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Keksclan/goQuoteSquirrel/quote"
)

// ClassifyStatus maps an HTTP status code to a fetch error. 2xx is success
// and yields nil.
//
//	429        -> RateLimited
//	401, 403   -> Config (bad or missing credentials)
//	404        -> NotFound
//	5xx, other -> Transient
func ClassifyStatus(provider, symbol string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	msg := fmt.Sprintf("HTTP %d %s", code, http.StatusText(code))
	switch {
	case code == http.StatusTooManyRequests:
		return quote.NewFetchError(quote.RateLimited, provider, symbol, msg, nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return quote.NewFetchError(quote.Config, provider, symbol, msg, nil)
	case code == http.StatusNotFound:
		return quote.NewFetchError(quote.NotFound, provider, symbol, msg, nil)
	default:
		return quote.NewFetchError(quote.Transient, provider, symbol, msg, nil)
	}
}

// TransportError wraps a failed round trip. Everything that never produced
// a response is transient, including deadline expiry.
func TransportError(provider, symbol string, err error) error {
	msg := "request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return quote.NewFetchError(quote.Transient, provider, symbol, msg, err)
}
