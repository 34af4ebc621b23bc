package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/rs/zerolog"
)

// TTLResolver maps a source class to its freshness threshold.
type TTLResolver interface {
	Threshold(class quote.SourceClass) time.Duration
}

// QueueRemover is the slice of the refresh queue the store needs: a write
// clears any pending refresh for the same key.
type QueueRemover interface {
	Remove(ctx context.Context, key string) error
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithQueue makes Set remove written keys from q.
func WithQueue(q QueueRemover) StoreOption {
	return func(s *Store) { s.queue = q }
}

// WithTTLs sets the threshold table used to stamp Entry.TTL.
func WithTTLs(r TTLResolver) StoreOption {
	return func(s *Store) { s.ttls = r }
}

// WithHardExpiry sets the storage-level expiry as a multiple of the entry
// TTL. Zero (the default) disables storage expiry entirely.
func WithHardExpiry(factor float64) StoreOption {
	return func(s *Store) { s.hardExpiry = factor }
}

// WithLogger sets the store's logger.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = l.With().Str("component", "cache").Logger() }
}

// WithClock overrides the time source used to stamp FetchedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.nowFunc = now }
}

// Store is the quote cache. It is safe for concurrent use; writes replace
// whole entries and the last writer for a key wins.
type Store struct {
	backend    Backend
	queue      QueueRemover
	ttls       TTLResolver
	hardExpiry float64
	log        zerolog.Logger
	nowFunc    func() time.Time

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		log:     zerolog.Nop(),
		nowFunc: time.Now,
		keys:    make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the entry for key. It has no side effects. Documents that
// cannot be decoded are reported as a miss.
func (s *Store) Get(ctx context.Context, key string) (*Entry, bool, error) {
	key = quote.Canonical(key)
	data, ok, err := s.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := Decode(key, data)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", key).Msg("discarding undecodable cache document")
		return nil, false, nil
	}
	return &e, true, nil
}

// Set stamps payload with the current time and the TTL of class, replaces
// the stored entry, and clears key from the refresh queue. The returned
// entry is the stored form, as a later Get decodes it. A queue failure
// is logged, not returned: the cached value is already in place.
func (s *Store) Set(ctx context.Context, key string, payload quote.Quote, source string, class quote.SourceClass) (*Entry, error) {
	key = quote.Canonical(key)
	payload.Ticker = key

	e := Entry{
		Key:         key,
		Payload:     payload,
		FetchedAt:   s.nowFunc(),
		Source:      source,
		SourceClass: class,
		TTL:         s.threshold(class),
	}
	doc, err := Encode(e)
	if err != nil {
		return nil, err
	}

	var storageTTL time.Duration
	if s.hardExpiry > 0 {
		storageTTL = time.Duration(float64(e.TTL) * s.hardExpiry)
	}
	if err := s.backend.Set(ctx, key, doc, storageTTL); err != nil {
		return nil, err
	}
	stored, err := Decode(key, doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()

	if s.queue != nil {
		if err := s.queue.Remove(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("ticker", key).Msg("failed to clear refresh queue entry")
		}
	}
	return &stored, nil
}

// Remove deletes the entry for key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	key = quote.Canonical(key)
	if err := s.backend.Delete(ctx, key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

// Remember adds keys to the known-key set without touching the backend.
func (s *Store) Remember(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k = quote.Canonical(k); k != "" {
			s.keys[k] = struct{}{}
		}
	}
}

// Keys returns the sorted set of keys written or remembered by this store.
func (s *Store) Keys() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}

// Load remembers every key the backend can list. Backends that cannot
// enumerate their keys leave the set unchanged.
func (s *Store) Load(ctx context.Context) (int, error) {
	l, ok := s.backend.(Lister)
	if !ok {
		return 0, nil
	}
	keys, err := l.Symbols(ctx)
	if err != nil {
		return 0, err
	}
	s.Remember(keys...)
	return len(keys), nil
}

// Ping reports backend reachability. Backends without a health check are
// always reachable.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) threshold(class quote.SourceClass) time.Duration {
	if s.ttls != nil {
		return s.ttls.Threshold(class)
	}
	if class == quote.ClassSlow {
		return quote.DefaultSlowTTL
	}
	return quote.DefaultFastTTL
}
