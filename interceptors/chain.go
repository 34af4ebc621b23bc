// Package interceptors holds the gRPC server middleware of the quote
// service: panic recovery, request IDs, access logging and inbound rate
// limiting. Chain order is fixed by the server package.
package interceptors

import (
	"context"

	"google.golang.org/grpc"
)

// ChainUnary composes unary interceptors into one. The first interceptor
// is the outermost. Nil entries are skipped.
func ChainUnary(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	var ics []grpc.UnaryServerInterceptor
	for _, ic := range interceptors {
		if ic != nil {
			ics = append(ics, ic)
		}
	}
	switch len(ics) {
	case 0:
		return nil
	case 1:
		return ics[0]
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		next := handler
		for i := len(ics) - 1; i > 0; i-- {
			ic, inner := ics[i], next
			next = func(ctx context.Context, req any) (any, error) {
				return ic(ctx, req, info, inner)
			}
		}
		return ics[0](ctx, req, info, next)
	}
}

// ChainStream composes stream interceptors into one, outermost first.
func ChainStream(interceptors ...grpc.StreamServerInterceptor) grpc.StreamServerInterceptor {
	var ics []grpc.StreamServerInterceptor
	for _, ic := range interceptors {
		if ic != nil {
			ics = append(ics, ic)
		}
	}
	switch len(ics) {
	case 0:
		return nil
	case 1:
		return ics[0]
	}

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		next := handler
		for i := len(ics) - 1; i > 0; i-- {
			ic, inner := ics[i], next
			next = func(srv any, ss grpc.ServerStream) error {
				return ic(srv, ss, info, inner)
			}
		}
		return ics[0](srv, ss, info, next)
	}
}
