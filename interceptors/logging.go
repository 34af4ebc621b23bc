package interceptors

import (
	"context"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/contextx"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// levelFor picks the access-log level for a status code. Client-side
// failures stay at info so a noisy client cannot flood the error log.
func levelFor(code codes.Code) zerolog.Level {
	switch code {
	case codes.OK, codes.NotFound, codes.InvalidArgument, codes.Canceled, codes.ResourceExhausted:
		return zerolog.InfoLevel
	case codes.DeadlineExceeded, codes.Unavailable:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func logCall(ctx context.Context, log zerolog.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	ev := log.WithLevel(levelFor(code)).
		Str("method", method).
		Str("code", code.String()).
		Dur("took", time.Since(start))
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		ev = ev.Str("request_id", id)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("rpc finished")
}

// LoggingUnary returns a unary server interceptor that writes one access-log
// line per call.
func LoggingUnary(log zerolog.Logger) grpc.UnaryServerInterceptor {
	log = log.With().Str("component", "grpc").Logger()
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, log, info.FullMethod, start, err)
		return resp, err
	}
}

// LoggingStream returns a stream server interceptor that logs when a stream
// ends.
func LoggingStream(log zerolog.Logger) grpc.StreamServerInterceptor {
	log = log.With().Str("component", "grpc").Logger()
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(ss.Context(), log, info.FullMethod, start, err)
		return err
	}
}
