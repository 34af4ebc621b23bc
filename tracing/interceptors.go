// Package tracing provides OpenTelemetry spans for the quote service: server
// interceptors for the gRPC surface and client spans around provider
// fetches. Without a configured provider the global one (a no-op unless
// the process installs one) is used.
package tracing

import (
	"context"
	"strings"

	"github.com/Keksclan/goQuoteSquirrel/contextx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	grpcStatus "google.golang.org/grpc/status"
)

// maxTickerAttrs caps how many tickers of a batch request go on a span.
const maxTickerAttrs = 20

// Config selects the tracer provider and propagator of the server
// interceptors. Nil fields fall back to the otel globals.
type Config struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
}

// TickerCarrier is implemented by request messages that name tickers. The
// interceptors record them as the quote.tickers attribute.
type TickerCarrier interface {
	TracedTickers() []string
}

func (c *Config) tracer() trace.Tracer {
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentation)
}

func (c *Config) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// start extracts the caller's trace context and opens the server span.
func (c *Config) start(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.MD{}
	}
	ctx = c.propagators().Extract(ctx, metadataCarrier(md))

	service, method := splitFullMethod(fullMethod)
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	}
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("request.id", id))
	}
	return c.tracer().Start(ctx, fullMethod,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// UnaryServerInterceptor traces every unary call. A nil cfg yields a
// passthrough.
func UnaryServerInterceptor(cfg *Config) grpc.UnaryServerInterceptor {
	if cfg == nil {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, span := cfg.start(ctx, info.FullMethod)
		defer span.End()
		annotateTickers(span, req)

		resp, err := handler(ctx, req)
		recordStatus(span, err)
		return resp, err
	}
}

// StreamServerInterceptor traces every stream. Tickers of the first
// received message are recorded. A nil cfg yields a passthrough.
func StreamServerInterceptor(cfg *Config) grpc.StreamServerInterceptor {
	if cfg == nil {
		return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			return handler(srv, ss)
		}
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, span := cfg.start(ss.Context(), info.FullMethod)
		defer span.End()

		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx, span: span})
		recordStatus(span, err)
		return err
	}
}

func annotateTickers(span trace.Span, msg any) {
	tc, ok := msg.(TickerCarrier)
	if !ok {
		return
	}
	tickers := tc.TracedTickers()
	if len(tickers) == 0 {
		return
	}
	span.SetAttributes(attribute.Int("quote.ticker_count", len(tickers)))
	if len(tickers) > maxTickerAttrs {
		tickers = tickers[:maxTickerAttrs]
	}
	span.SetAttributes(attribute.StringSlice("quote.tickers", tickers))
}

type metadataCarrier metadata.MD

func (mc metadataCarrier) Get(key string) string {
	vals := metadata.MD(mc).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (mc metadataCarrier) Set(key, value string) { metadata.MD(mc).Set(key, value) }

func (mc metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}

// splitFullMethod splits "/service/method".
func splitFullMethod(fullMethod string) (service, method string) {
	service, method, _ = strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	return service, method
}

func recordStatus(span trace.Span, err error) {
	st, _ := grpcStatus.FromError(err)
	span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, st.Message())
}

// tracedStream carries the span context and annotates the span with the
// tickers of the first message the client sends.
type tracedStream struct {
	grpc.ServerStream
	ctx  context.Context
	span trace.Span
	seen bool
}

func (s *tracedStream) Context() context.Context { return s.ctx }

func (s *tracedStream) RecvMsg(m any) error {
	err := s.ServerStream.RecvMsg(m)
	if err == nil && !s.seen {
		s.seen = true
		annotateTickers(s.span, m)
	}
	return err
}
