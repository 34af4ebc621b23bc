// Package core orders the gRPC middleware of a server and turns it into
// server options.
package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"
)

// middleware is one named interceptor pair (unary + stream). Lower Order
// values run first, i.e. further out.
type middleware struct {
	Name   string
	Unary  grpc.UnaryServerInterceptor
	Stream grpc.StreamServerInterceptor
	Order  int
}

// MiddlewareBuilder collects middleware entries and produces sorted
// interceptor slices ready for chaining. Adding a name twice replaces the
// earlier entry.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers a middleware entry with the given order. Either interceptor
// may be nil if only one direction is needed.
func (b *MiddlewareBuilder) Add(order int, name string, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	m := middleware{Name: name, Unary: unary, Stream: stream, Order: order}
	if name != "" {
		if i := slices.IndexFunc(b.entries, func(e middleware) bool { return e.Name == name }); i >= 0 {
			b.entries[i] = m
			return
		}
	}
	b.entries = append(b.entries, m)
}

func (b *MiddlewareBuilder) sorted() []middleware {
	out := slices.Clone(b.entries)
	slices.SortStableFunc(out, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})
	return out
}

// Names returns the registered middleware names in execution order.
func (b *MiddlewareBuilder) Names() []string {
	var names []string
	for _, m := range b.sorted() {
		names = append(names, m.Name)
	}
	return names
}

// Build returns the unary and stream interceptors in execution order.
func (b *MiddlewareBuilder) Build() ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor
	for _, m := range b.sorted() {
		if m.Unary != nil {
			unary = append(unary, m.Unary)
		}
		if m.Stream != nil {
			stream = append(stream, m.Stream)
		}
	}
	return unary, stream
}
