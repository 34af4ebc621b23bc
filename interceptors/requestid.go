package interceptors

import (
	"context"

	"github.com/Keksclan/goQuoteSquirrel/contextx"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the metadata key carrying the request ID in both
// directions.
const RequestIDHeader = "x-request-id"

// maxRequestIDLen caps client-supplied IDs.
const maxRequestIDLen = 128

// ensureRequestID adopts the caller's request ID from incoming metadata or
// generates one, stores it in the context, and echoes it as a response
// header.
func ensureRequestID(ctx context.Context) context.Context {
	id := contextx.RequestIDFromContext(ctx)
	if id == "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(RequestIDHeader); len(v) > 0 && v[0] != "" && len(v[0]) <= maxRequestIDLen {
				id = v[0]
			}
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))
	return contextx.WithRequestID(ctx, id)
}

// RequestIDUnary returns a unary server interceptor that ensures a request ID
// is present in the context.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		return handler(ensureRequestID(ctx), req)
	}
}

// RequestIDStream returns a stream server interceptor that ensures a request
// ID is present in the stream's context.
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, &contextStream{ServerStream: ss, ctx: ensureRequestID(ss.Context())})
	}
}

// contextStream overrides Context() on a wrapped stream.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }
