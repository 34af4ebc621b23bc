package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/Keksclan/goQuoteSquirrel/contextx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	grpcStatus "google.golang.org/grpc/status"
)

func recorded(t *testing.T) (*Config, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return &Config{TracerProvider: tp, Propagators: propagation.TraceContext{}}, rec
}

func onlySpan(t *testing.T, rec *tracetest.SpanRecorder) sdktrace.ReadOnlySpan {
	t.Helper()
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	return spans[0]
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func wantString(t *testing.T, s sdktrace.ReadOnlySpan, key, want string) {
	t.Helper()
	v, ok := attr(s.Attributes(), key)
	if !ok {
		t.Fatalf("attribute %q missing", key)
	}
	if v.AsString() != want {
		t.Fatalf("attribute %q = %q, want %q", key, v.AsString(), want)
	}
}

type manyReq struct{ tickers []string }

func (r *manyReq) TracedTickers() []string { return r.tickers }

func TestUnary_SpanShape(t *testing.T) {
	cfg, rec := recorded(t)
	ic := UnaryServerInterceptor(cfg)
	ctx := contextx.WithRequestID(t.Context(), "req-7")

	_, err := ic(ctx, &manyReq{tickers: []string{"AAPL", "MSFT"}},
		&grpc.UnaryServerInfo{FullMethod: "/squirrel.Quotes/ResolveMany"},
		func(context.Context, any) (any, error) { return "ok", nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := onlySpan(t, rec)
	if s.Name() != "/squirrel.Quotes/ResolveMany" || s.SpanKind() != trace.SpanKindServer {
		t.Fatalf("span = %q kind %v", s.Name(), s.SpanKind())
	}
	wantString(t, s, "rpc.system", "grpc")
	wantString(t, s, "rpc.service", "squirrel.Quotes")
	wantString(t, s, "rpc.method", "ResolveMany")
	wantString(t, s, "rpc.grpc.status_code", "OK")
	wantString(t, s, "request.id", "req-7")

	v, ok := attr(s.Attributes(), "quote.tickers")
	if !ok || len(v.AsStringSlice()) != 2 || v.AsStringSlice()[1] != "MSFT" {
		t.Fatalf("quote.tickers = %v", v.AsStringSlice())
	}
	if s.Status().Code != codes.Ok {
		t.Fatalf("status = %v, want Ok", s.Status().Code)
	}
}

func TestUnary_TickerAttributeCapped(t *testing.T) {
	cfg, rec := recorded(t)
	tickers := make([]string, maxTickerAttrs+5)
	for i := range tickers {
		tickers[i] = "T"
	}
	_, _ = UnaryServerInterceptor(cfg)(t.Context(), &manyReq{tickers: tickers},
		&grpc.UnaryServerInfo{FullMethod: "/squirrel.Quotes/ResolveMany"},
		func(context.Context, any) (any, error) { return nil, nil })

	s := onlySpan(t, rec)
	if v, _ := attr(s.Attributes(), "quote.tickers"); len(v.AsStringSlice()) != maxTickerAttrs {
		t.Fatalf("tickers on span = %d, want %d", len(v.AsStringSlice()), maxTickerAttrs)
	}
	if v, _ := attr(s.Attributes(), "quote.ticker_count"); v.AsInt64() != int64(len(tickers)) {
		t.Fatalf("ticker_count = %d", v.AsInt64())
	}
}

func TestUnary_NotFoundIsError(t *testing.T) {
	cfg, rec := recorded(t)
	_, err := UnaryServerInterceptor(cfg)(t.Context(), "plain",
		&grpc.UnaryServerInfo{FullMethod: "/squirrel.Quotes/ResolveOne"},
		func(context.Context, any) (any, error) {
			return nil, grpcStatus.Error(grpcCodes.NotFound, "ZZZZ not resolvable")
		})
	if err == nil {
		t.Fatal("expected error")
	}

	s := onlySpan(t, rec)
	if s.Status().Code != codes.Error || s.Status().Description != "ZZZZ not resolvable" {
		t.Fatalf("status = %+v", s.Status())
	}
	wantString(t, s, "rpc.grpc.status_code", "NotFound")
	if _, ok := attr(s.Attributes(), "quote.tickers"); ok {
		t.Fatal("plain request must not carry tickers")
	}
}

func TestUnary_JoinsCallerTrace(t *testing.T) {
	cfg, rec := recorded(t)
	md := metadata.Pairs("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := metadata.NewIncomingContext(t.Context(), md)

	_, _ = UnaryServerInterceptor(cfg)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/squirrel.Quotes/Ping"},
		func(context.Context, any) (any, error) { return nil, nil })

	s := onlySpan(t, rec)
	if got := s.SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace id = %s", got)
	}
	if got := s.Parent().SpanID().String(); got != "00f067aa0ba902b7" {
		t.Fatalf("parent span = %s", got)
	}
}

func TestNilConfig_Passthrough(t *testing.T) {
	resp, err := UnaryServerInterceptor(nil)(t.Context(), "hello", &grpc.UnaryServerInfo{},
		func(_ context.Context, req any) (any, error) { return req, nil })
	if err != nil || resp != "hello" {
		t.Fatalf("unary = %v, %v", resp, err)
	}

	called := false
	err = StreamServerInterceptor(nil)(nil, &fakeStream{ctx: t.Context()}, &grpc.StreamServerInfo{},
		func(any, grpc.ServerStream) error { called = true; return nil })
	if err != nil || !called {
		t.Fatalf("stream called=%v err=%v", called, err)
	}
}

// fakeStream delivers one queued message to RecvMsg.
type fakeStream struct {
	grpc.ServerStream
	ctx     context.Context
	tickers []string
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func (f *fakeStream) RecvMsg(m any) error {
	if r, ok := m.(*manyReq); ok {
		r.tickers = f.tickers
	}
	return nil
}

func TestStream_AnnotatesFirstMessage(t *testing.T) {
	cfg, rec := recorded(t)
	ss := &fakeStream{ctx: t.Context(), tickers: []string{"FXAIX"}}

	err := StreamServerInterceptor(cfg)(nil, ss, &grpc.StreamServerInfo{FullMethod: "/squirrel.Quotes/Watch"},
		func(_ any, stream grpc.ServerStream) error {
			if _, ok := stream.Context().Deadline(); ok {
				t.Error("unexpected deadline")
			}
			return stream.RecvMsg(&manyReq{})
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := onlySpan(t, rec)
	wantString(t, s, "rpc.method", "Watch")
	if v, _ := attr(s.Attributes(), "quote.tickers"); len(v.AsStringSlice()) != 1 || v.AsStringSlice()[0] != "FXAIX" {
		t.Fatalf("quote.tickers = %v", v.AsStringSlice())
	}
}

func TestStream_Error(t *testing.T) {
	cfg, rec := recorded(t)
	err := StreamServerInterceptor(cfg)(nil, &fakeStream{ctx: t.Context()},
		&grpc.StreamServerInfo{FullMethod: "/squirrel.Quotes/Watch"},
		func(any, grpc.ServerStream) error { return errors.New("client went away") })
	if err == nil {
		t.Fatal("expected error")
	}
	if s := onlySpan(t, rec); s.Status().Code != codes.Error {
		t.Fatalf("status = %v, want Error", s.Status().Code)
	}
}

func TestSplitFullMethod(t *testing.T) {
	cases := map[string][2]string{
		"/squirrel.Quotes/ResolveOne": {"squirrel.Quotes", "ResolveOne"},
		"squirrel.Quotes/Watch":       {"squirrel.Quotes", "Watch"},
		"noSlash":                     {"noSlash", ""},
	}
	for in, want := range cases {
		svc, m := splitFullMethod(in)
		if svc != want[0] || m != want[1] {
			t.Errorf("splitFullMethod(%q) = (%q, %q), want %v", in, svc, m, want)
		}
	}
}
