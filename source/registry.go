package source

import (
	"fmt"
	"slices"
	"sync"
)

// Registry is the explicit list of providers the service can call. Names
// are matched after [NormalizeName].
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewRegistry creates a Registry holding fs. Duplicate names panic: the
// static provider list is fixed at startup.
func NewRegistry(fs ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[string]Fetcher)}
	for _, f := range fs {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds f. It fails when a provider with the same name exists.
func (r *Registry) Register(f Fetcher) error {
	key := NormalizeName(f.Name())
	if key == "" {
		return fmt.Errorf("source: fetcher has an empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.fetchers[key]; dup {
		return fmt.Errorf("source: provider %q already registered", f.Name())
	}
	r.fetchers[key] = f
	return nil
}

// Discover adds every fetcher whose name is not yet registered and returns
// the names it added. Existing registrations are never replaced.
func (r *Registry) Discover(fs ...Fetcher) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var added []string
	for _, f := range fs {
		key := NormalizeName(f.Name())
		if key == "" {
			continue
		}
		if _, ok := r.fetchers[key]; ok {
			continue
		}
		r.fetchers[key] = f
		added = append(added, f.Name())
	}
	return added
}

// Get returns the fetcher registered under name.
func (r *Registry) Get(name string) (Fetcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[NormalizeName(name)]
	return f, ok
}

// Names lists the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		out = append(out, f.Name())
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}
