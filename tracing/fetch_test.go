package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newFetchTracer(t *testing.T) (*FetchTracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return NewFetchTracer(tp), rec
}

func TestFetchTracer_Success(t *testing.T) {
	ft, rec := newFetchTracer(t)

	_, span := ft.Start(t.Context(), "AAPL", "finnhub")
	End(span, nil, "")

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "source.fetch" {
		t.Fatalf("span name = %q", s.Name())
	}
	if s.SpanKind() != trace.SpanKindClient {
		t.Fatalf("span kind = %v, want client", s.SpanKind())
	}
	wantString(t, s, "quote.ticker", "AAPL")
	wantString(t, s, "quote.provider", "finnhub")
	if s.Status().Code != codes.Ok {
		t.Fatalf("status = %v, want Ok", s.Status().Code)
	}
}

func TestFetchTracer_Error(t *testing.T) {
	ft, rec := newFetchTracer(t)

	_, span := ft.Start(t.Context(), "GOOG", "finnhub")
	End(span, errors.New("429"), "rate_limited")

	s := rec.Ended()[0]
	wantString(t, s, "quote.error_kind", "rate_limited")
	if s.Status().Code != codes.Error {
		t.Fatalf("status = %v, want Error", s.Status().Code)
	}
	if len(s.Events()) == 0 {
		t.Fatal("expected the error to be recorded as an event")
	}
}

func TestFetchTracer_NilUsesGlobal(t *testing.T) {
	var ft *FetchTracer
	_, span := ft.Start(t.Context(), "AAPL", "finnhub")
	End(span, nil, "")
}
