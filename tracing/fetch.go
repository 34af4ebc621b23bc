package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/Keksclan/goQuoteSquirrel/tracing"

// FetchTracer creates client spans around provider fetches. The zero value
// uses the global tracer provider.
type FetchTracer struct {
	tp trace.TracerProvider
}

// NewFetchTracer returns a FetchTracer using tp, or the global provider when
// tp is nil.
func NewFetchTracer(tp trace.TracerProvider) *FetchTracer {
	return &FetchTracer{tp: tp}
}

// Start opens a "source.fetch" span for ticker on provider.
func (f *FetchTracer) Start(ctx context.Context, ticker, provider string) (context.Context, trace.Span) {
	tp := otel.GetTracerProvider()
	if f != nil && f.tp != nil {
		tp = f.tp
	}
	return tp.Tracer(instrumentation).Start(ctx, "source.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("quote.ticker", ticker),
			attribute.String("quote.provider", provider),
		),
	)
}

// End records the outcome on span and ends it. kind is the error
// classification, empty on success.
func End(span trace.Span, err error, kind string) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("quote.error_kind", kind))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
