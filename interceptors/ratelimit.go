package interceptors

import (
	"context"

	"github.com/Keksclan/goQuoteSquirrel/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errRateLimited is allocated once to avoid per-request allocations on the hot path.
var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

// Limits selects the inbound limiter for a call. Methods listed in
// PerMethod use their own bucket; every other call draws from Global. A nil
// limiter admits everything.
type Limits struct {
	Global    *ratelimit.Limiter
	PerMethod map[string]*ratelimit.Limiter
}

func (l Limits) allow(fullMethod string) bool {
	if lim, ok := l.PerMethod[fullMethod]; ok {
		return lim == nil || lim.Allow()
	}
	return l.Global == nil || l.Global.Allow()
}

// RateLimitUnary returns a unary server interceptor that rejects calls with
// codes.ResourceExhausted once the applicable bucket is empty.
func RateLimitUnary(l Limits) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !l.allow(info.FullMethod) {
			return nil, errRateLimited
		}
		return handler(ctx, req)
	}
}

// RateLimitStream applies the same limits when a stream is opened.
func RateLimitStream(l Limits) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if !l.allow(info.FullMethod) {
			return errRateLimited
		}
		return handler(srv, ss)
	}
}
