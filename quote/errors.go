package quote

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySymbol is returned when a ticker is blank after trimming.
	ErrEmptySymbol = errors.New("quote: empty ticker symbol")

	// ErrCacheUnavailable marks failures of the cache backend. Readers treat
	// it as a miss.
	ErrCacheUnavailable = errors.New("quote: cache unavailable")

	// ErrQueueUnavailable marks failures of the refresh queue backend.
	ErrQueueUnavailable = errors.New("quote: refresh queue unavailable")
)

// Kind classifies a fetch failure.
type Kind int

const (
	// Transient covers network failures, timeouts and 5xx responses.
	Transient Kind = iota
	// RateLimited means the provider refused the call because of quota.
	RateLimited
	// NotFound means the provider has no data for the symbol.
	NotFound
	// Config means the provider cannot be called at all (missing key,
	// unknown route).
	Config
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case NotFound:
		return "not_found"
	case Config:
		return "config"
	default:
		return "transient"
	}
}

// FetchError is the error type every fetcher returns.
type FetchError struct {
	Kind     Kind
	Provider string
	Symbol   string
	Msg      string
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Symbol, e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a FetchError of the given kind.
func NewFetchError(kind Kind, provider, symbol, msg string, err error) *FetchError {
	return &FetchError{Kind: kind, Provider: provider, Symbol: symbol, Msg: msg, Err: err}
}

// KindOf returns the Kind of err. Errors that are not a FetchError are
// reported as Transient.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Transient
}

// IsRateLimited reports whether err is a rate-limit refusal.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == RateLimited
}

// IsTransient reports whether err is worth retrying immediately.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == Transient
}
