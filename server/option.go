package server

import (
	"github.com/Keksclan/goQuoteSquirrel/interceptors"
	"github.com/Keksclan/goQuoteSquirrel/internal/core"
	"github.com/Keksclan/goQuoteSquirrel/tracing"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// Middleware slots. Lower values run further out, so the chain is always
// recovery, request id, logging, rate limit, tracing, then custom
// interceptors, regardless of the order options are passed in.
const (
	OrderRecovery  = 100
	OrderRequestID = 200
	OrderLogging   = 300
	OrderRateLimit = 400
	OrderTracing   = 500
	OrderCustom    = 1000
)

// config holds the internal configuration assembled via functional options.
type config struct {
	middlewares core.MiddlewareBuilder
	serverOpts  []grpc.ServerOption
	custom      int
}

// Option configures a Server.
type Option func(*config)

// WithRecovery turns handler panics into codes.Internal and logs them.
func WithRecovery(log zerolog.Logger) Option {
	return func(c *config) {
		c.middlewares.Add(OrderRecovery, "recovery", interceptors.RecoveryUnary(log), interceptors.RecoveryStream(log))
	}
}

// WithRequestID assigns every call a request ID.
func WithRequestID() Option {
	return func(c *config) {
		c.middlewares.Add(OrderRequestID, "requestid", interceptors.RequestIDUnary(), interceptors.RequestIDStream())
	}
}

// WithLogging writes one access-log line per call.
func WithLogging(log zerolog.Logger) Option {
	return func(c *config) {
		c.middlewares.Add(OrderLogging, "logging", interceptors.LoggingUnary(log), interceptors.LoggingStream(log))
	}
}

// WithRateLimit rejects calls beyond the given inbound limits.
func WithRateLimit(l interceptors.Limits) Option {
	return func(c *config) {
		c.middlewares.Add(OrderRateLimit, "ratelimit", interceptors.RateLimitUnary(l), interceptors.RateLimitStream(l))
	}
}

// WithTracing opens a server span per call. A nil cfg uses the global
// tracer provider.
func WithTracing(cfg *tracing.Config) Option {
	return func(c *config) {
		if cfg == nil {
			cfg = &tracing.Config{}
		}
		c.middlewares.Add(OrderTracing, "tracing", tracing.UnaryServerInterceptor(cfg), tracing.StreamServerInterceptor(cfg))
	}
}

// WithUnaryInterceptor appends a unary server interceptor after the
// built-in ones.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) {
		c.middlewares.Add(OrderCustom+c.custom, "", i, nil)
		c.custom++
	}
}

// WithStreamInterceptor appends a stream server interceptor after the
// built-in ones.
func WithStreamInterceptor(i grpc.StreamServerInterceptor) Option {
	return func(c *config) {
		c.middlewares.Add(OrderCustom+c.custom, "", nil, i)
		c.custom++
	}
}

// WithServerOption passes a raw option through to grpc.NewServer.
func WithServerOption(o grpc.ServerOption) Option {
	return func(c *config) { c.serverOpts = append(c.serverOpts, o) }
}
