// Package cache stores quote documents by ticker. A [Store] stamps each
// write with its fetch time and source class on top of a pluggable
// [Backend]: an in-process L1 backed by ristretto, a Redis L2, a SQLite
// document table, or a [Tiered] combination.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
)

// Backend is the document storage contract. Implementations must write
// whole documents atomically per key; a reader never observes a partial
// write.
type Backend interface {
	// Get retrieves the document stored under key. The boolean indicates a
	// hit. Backend failures are reported as errors wrapping
	// quote.ErrCacheUnavailable.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set replaces the document under key. A zero TTL means the document
	// never expires at the storage level.
	Set(ctx context.Context, key string, doc []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Lister is implemented by backends that can enumerate stored keys.
type Lister interface {
	Symbols(ctx context.Context) ([]string, error)
}

// Entry is one cached quote with its bookkeeping.
type Entry struct {
	Key         string
	Payload     quote.Quote
	FetchedAt   time.Time
	Source      string
	SourceClass quote.SourceClass
	TTL         time.Duration
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// document is the stored JSON shape: the quote fields at top level plus a
// nested _metadata block.
type document struct {
	quote.Quote
	Metadata docMetadata `json:"_metadata"`
}

type docMetadata struct {
	FetchedAt   int64             `json:"fetchedAt"`
	Source      string            `json:"source"`
	SourceClass quote.SourceClass `json:"sourceClass,omitempty"`
	TTLSeconds  int64             `json:"ttlSeconds,omitempty"`
}

// Encode serialises e into its stored document form. FetchedAt is kept in
// unix seconds.
func Encode(e Entry) ([]byte, error) {
	doc := document{
		Quote: e.Payload,
		Metadata: docMetadata{
			FetchedAt:   e.FetchedAt.Unix(),
			Source:      e.Source,
			SourceClass: e.SourceClass,
			TTLSeconds:  int64(e.TTL / time.Second),
		},
	}
	return json.Marshal(doc)
}

// Decode parses a stored document. Documents written before source classes
// existed decode with ClassFast.
func Decode(key string, data []byte) (Entry, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Entry{}, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	class := doc.Metadata.SourceClass
	if class == "" {
		class = quote.ClassFast
	}
	if doc.Quote.Ticker == "" {
		doc.Quote.Ticker = key
	}
	return Entry{
		Key:         key,
		Payload:     doc.Quote,
		FetchedAt:   time.Unix(doc.Metadata.FetchedAt, 0),
		Source:      doc.Metadata.Source,
		SourceClass: class,
		TTL:         time.Duration(doc.Metadata.TTLSeconds) * time.Second,
	}, nil
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", quote.ErrCacheUnavailable, op, key, err)
}
