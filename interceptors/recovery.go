package interceptors

import (
	"context"
	"runtime/debug"

	"github.com/Keksclan/goQuoteSquirrel/contextx"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errInternal hides the panic value from the caller.
var errInternal = status.Error(codes.Internal, "internal server error")

func logPanic(ctx context.Context, log zerolog.Logger, method string, r any) {
	l := contextx.Logger(ctx, log)
	l.Error().
		Str("component", "grpc").
		Str("method", method).
		Interface("panic", r).
		Bytes("stack", debug.Stack()).
		Msg("recovered from handler panic")
}

// RecoveryUnary turns a handler panic into codes.Internal and logs it with
// the call's request ID, if one is set.
func RecoveryUnary(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ctx, log, info.FullMethod, r)
				resp, err = nil, errInternal
			}
		}()
		return handler(ctx, req)
	}
}

// RecoveryStream is the streaming counterpart of RecoveryUnary.
func RecoveryStream(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ss.Context(), log, info.FullMethod, r)
				err = errInternal
			}
		}()
		return handler(srv, ss)
	}
}
