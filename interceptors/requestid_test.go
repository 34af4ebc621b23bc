package interceptors

import (
	"context"
	"testing"

	"github.com/Keksclan/goQuoteSquirrel/contextx"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func captureID(got *string) grpc.UnaryHandler {
	return func(ctx context.Context, _ any) (any, error) {
		*got = contextx.RequestIDFromContext(ctx)
		return nil, nil
	}
}

func TestRequestIDUnary_Generates(t *testing.T) {
	var id string
	_, _ = RequestIDUnary()(t.Context(), nil, &grpc.UnaryServerInfo{}, captureID(&id))
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a UUID, got %q: %v", id, err)
	}
}

func TestRequestIDUnary_AdoptsIncoming(t *testing.T) {
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs(RequestIDHeader, "abc-123"))
	var id string
	_, _ = RequestIDUnary()(ctx, nil, &grpc.UnaryServerInfo{}, captureID(&id))
	if id != "abc-123" {
		t.Fatalf("id = %q, want abc-123", id)
	}
}

func TestRequestIDUnary_KeepsExisting(t *testing.T) {
	ctx := contextx.WithRequestID(t.Context(), "already-set")
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(RequestIDHeader, "ignored"))
	var id string
	_, _ = RequestIDUnary()(ctx, nil, &grpc.UnaryServerInfo{}, captureID(&id))
	if id != "already-set" {
		t.Fatalf("id = %q, want already-set", id)
	}
}

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s stubStream) Context() context.Context { return s.ctx }

func TestRequestIDStream(t *testing.T) {
	var id string
	h := func(_ any, ss grpc.ServerStream) error {
		id = contextx.RequestIDFromContext(ss.Context())
		return nil
	}
	if err := RequestIDStream()(nil, stubStream{ctx: t.Context()}, &grpc.StreamServerInfo{}, h); err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("stream context carries no request id")
	}
}
