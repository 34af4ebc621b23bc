package core

import (
	"context"
	"slices"
	"testing"

	"google.golang.org/grpc"
)

func tag(name string, log *[]string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		*log = append(*log, name)
		return handler(ctx, req)
	}
}

func run(t *testing.T, unary []grpc.UnaryServerInterceptor, log *[]string) {
	t.Helper()
	curr := func(_ context.Context, req any) (any, error) {
		*log = append(*log, "handler")
		return req, nil
	}
	for i := len(unary) - 1; i >= 0; i-- {
		next, ic := curr, unary[i]
		curr = func(ctx context.Context, req any) (any, error) {
			return ic(ctx, req, &grpc.UnaryServerInfo{}, next)
		}
	}
	if _, err := curr(t.Context(), "req"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuild_OrderDeterminesExecution(t *testing.T) {
	var log []string
	var b MiddlewareBuilder
	// Register in reverse order; Order values should sort them correctly.
	b.Add(300, "C", tag("C", &log), nil)
	b.Add(100, "A", tag("A", &log), nil)
	b.Add(200, "B", tag("B", &log), nil)

	unary, stream := b.Build()
	if len(stream) != 0 {
		t.Fatalf("expected no stream interceptors, got %d", len(stream))
	}
	run(t, unary, &log)

	want := []string{"A", "B", "C", "handler"}
	if !slices.Equal(log, want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	if got := b.Names(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("Names() = %v", got)
	}
}

func TestBuild_StableForSameOrder(t *testing.T) {
	var log []string
	var b MiddlewareBuilder
	b.Add(100, "first", tag("first", &log), nil)
	b.Add(100, "second", tag("second", &log), nil)
	b.Add(100, "third", tag("third", &log), nil)

	unary, _ := b.Build()
	run(t, unary, &log)

	want := []string{"first", "second", "third", "handler"}
	if !slices.Equal(log, want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
}

func TestAdd_ReplacesByName(t *testing.T) {
	var log []string
	var b MiddlewareBuilder
	b.Add(100, "logging", tag("old", &log), nil)
	b.Add(100, "logging", tag("new", &log), nil)

	unary, _ := b.Build()
	run(t, unary, &log)
	if !slices.Equal(log, []string{"new", "handler"}) {
		t.Fatalf("log = %v", log)
	}
}

func TestBuildServerOptions(t *testing.T) {
	var b MiddlewareBuilder
	if n := len(BuildServerOptions(&b)); n != 0 {
		t.Fatalf("empty builder produced %d options", n)
	}
	var log []string
	b.Add(1, "a", tag("a", &log), func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, h grpc.StreamHandler) error {
		return h(srv, ss)
	})
	if n := len(BuildServerOptions(&b, grpc.MaxRecvMsgSize(1<<20))); n != 3 {
		t.Fatalf("expected unary, stream and extra option, got %d", n)
	}
}
