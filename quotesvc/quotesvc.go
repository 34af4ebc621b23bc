// Package quotesvc exposes the resolver as the squirrel.Quotes gRPC service.
// It registers through a hand-written [grpc.ServiceDesc], so no protobuf
// code generation is required.
//
// The request and response types are plain Go structs. The package installs
// a codec under the "proto" name that JSON-encodes them and delegates every
// other message to the standard proto codec.
package quotesvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/contextx"
	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/resolver"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // ensure default proto codec is registered first
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "squirrel.Quotes"

// Full method names.
const (
	MethodResolveOne  = "/" + ServiceName + "/ResolveOne"
	MethodResolveMany = "/" + ServiceName + "/ResolveMany"
	MethodPing        = "/" + ServiceName + "/Ping"
	MethodWatch       = "/" + ServiceName + "/Watch"
)

// Watch interval bounds.
const (
	DefaultWatchInterval = 5 * time.Second
	MinWatchInterval     = time.Second
)

type ResolveOneRequest struct {
	Ticker string `json:"ticker"`
}

type ResolveOneResponse struct {
	Result resolver.Result `json:"result"`
}

type ResolveManyRequest struct {
	Tickers []string `json:"tickers"`
}

// ResolveManyResponse maps each resolved ticker to its result and lists the
// tickers that could not be resolved.
type ResolveManyResponse struct {
	Success map[string]resolver.Result `json:"success"`
	Failed  []string                   `json:"failed"`
}

type PingRequest struct {
	Message string `json:"message"`
}

type PingResponse struct {
	Message        string `json:"message"`
	ServerTimeUnix int64  `json:"server_time_unix"`
}

// WatchRequest subscribes to periodic snapshots of tickers.
type WatchRequest struct {
	Tickers    []string `json:"tickers"`
	IntervalMs int      `json:"interval_ms"`
}

// quoteMsg is a marker interface satisfied by the service's messages.
type quoteMsg interface {
	isQuoteMsg()
}

func (*ResolveOneRequest) isQuoteMsg()   {}
func (*ResolveOneResponse) isQuoteMsg()  {}
func (*ResolveManyRequest) isQuoteMsg()  {}
func (*ResolveManyResponse) isQuoteMsg() {}
func (*PingRequest) isQuoteMsg()         {}
func (*PingResponse) isQuoteMsg()        {}
func (*WatchRequest) isQuoteMsg()        {}

// TracedTickers lists the tickers a request names, for span attributes.
func (r *ResolveOneRequest) TracedTickers() []string { return []string{r.Ticker} }

// TracedTickers implements tracing.TickerCarrier.
func (r *ResolveManyRequest) TracedTickers() []string { return r.Tickers }

// TracedTickers implements tracing.TickerCarrier.
func (r *WatchRequest) TracedTickers() []string { return r.Tickers }

// Resolver is the read path the service serves from.
type Resolver interface {
	ResolveOne(ctx context.Context, ticker string) (*resolver.Result, error)
	ResolveMany(ctx context.Context, tickers []string) resolver.Batch
}

// WatchStream is the server side of a Watch call.
type WatchStream interface {
	Send(*ResolveManyResponse) error
	Context() context.Context
}

// Handler is the interface a squirrel.Quotes implementation must satisfy.
type Handler interface {
	ResolveOne(ctx context.Context, req *ResolveOneRequest) (*ResolveOneResponse, error)
	ResolveMany(ctx context.Context, req *ResolveManyRequest) (*ResolveManyResponse, error)
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
	Watch(req *WatchRequest, stream WatchStream) error
}

// Option configures the default handler.
type Option func(*service)

// WithLogger sets the handler's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *service) { s.log = l.With().Str("component", "quotesvc").Logger() }
}

// WithClock sets the time source used by Ping.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.nowFunc = now }
}

// NewHandler returns a Handler backed by r.
func NewHandler(r Resolver, opts ...Option) Handler {
	s := &service{r: r, log: zerolog.Nop(), nowFunc: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

type service struct {
	r       Resolver
	log     zerolog.Logger
	nowFunc func() time.Time
}

func (s *service) ResolveOne(ctx context.Context, req *ResolveOneRequest) (*ResolveOneResponse, error) {
	res, err := s.r.ResolveOne(ctx, req.Ticker)
	if err != nil {
		l := contextx.Logger(ctx, s.log)
		l.Debug().Err(err).Str("ticker", req.Ticker).Msg("resolve failed")
		return nil, StatusError(err)
	}
	return &ResolveOneResponse{Result: *res}, nil
}

func (s *service) ResolveMany(ctx context.Context, req *ResolveManyRequest) (*ResolveManyResponse, error) {
	if len(req.Tickers) == 0 {
		return nil, status.Error(codes.InvalidArgument, "at least one ticker is required")
	}
	return toResponse(s.r.ResolveMany(ctx, req.Tickers)), nil
}

func (s *service) Ping(_ context.Context, req *PingRequest) (*PingResponse, error) {
	return &PingResponse{Message: req.Message, ServerTimeUnix: s.nowFunc().Unix()}, nil
}

// Watch sends a snapshot immediately and then once per interval until the
// client goes away.
func (s *service) Watch(req *WatchRequest, stream WatchStream) error {
	if len(req.Tickers) == 0 {
		return status.Error(codes.InvalidArgument, "at least one ticker is required")
	}
	interval := DefaultWatchInterval
	if req.IntervalMs > 0 {
		interval = max(time.Duration(req.IntervalMs)*time.Millisecond, MinWatchInterval)
	}

	ctx := stream.Context()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := stream.Send(toResponse(s.r.ResolveMany(ctx, req.Tickers))); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func toResponse(b resolver.Batch) *ResolveManyResponse {
	resp := &ResolveManyResponse{
		Success: make(map[string]resolver.Result, len(b.Succeeded)),
		Failed:  b.Failed,
	}
	if resp.Failed == nil {
		resp.Failed = []string{}
	}
	for _, r := range b.Succeeded {
		resp.Success[r.Ticker] = r
	}
	return resp
}

// StatusError maps resolver errors onto gRPC status codes.
func StatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, quote.ErrEmptySymbol):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, resolver.ErrNotResolvable):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ServiceDesc is the grpc.ServiceDesc for the squirrel.Quotes service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveOne", Handler: resolveOneHandler},
		{MethodName: "ResolveMany", Handler: resolveManyHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "squirrel/quotes.proto",
}

// unary adapts a typed method to the grpc.MethodDesc handler signature.
func unary[Req any, Resp any](
	fullMethod string,
	call func(h Handler, ctx context.Context, req *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Handler), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, r any) (any, error) {
			return call(srv.(Handler), ctx, r.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var (
	resolveOneHandler = unary(MethodResolveOne, func(h Handler, ctx context.Context, req *ResolveOneRequest) (*ResolveOneResponse, error) {
		return h.ResolveOne(ctx, req)
	})
	resolveManyHandler = unary(MethodResolveMany, func(h Handler, ctx context.Context, req *ResolveManyRequest) (*ResolveManyResponse, error) {
		return h.ResolveMany(ctx, req)
	})
	pingHandler = unary(MethodPing, func(h Handler, ctx context.Context, req *PingRequest) (*PingResponse, error) {
		return h.Ping(ctx, req)
	})
)

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(m *ResolveManyResponse) error {
	return w.ServerStream.SendMsg(m)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	req := new(WatchRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(Handler).Watch(req, &watchServer{ServerStream: stream})
}

// Register registers a squirrel.Quotes implementation on the given server.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}

// ---------- codec wrapper ----------

func init() {
	grpcEncoding.RegisterCodec(quoteCodec{})
}

// quoteCodec JSON-encodes the service's messages and delegates all other
// types to proto.Marshal/Unmarshal.
type quoteCodec struct{}

func (quoteCodec) Name() string { return "proto" }

func (quoteCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(quoteMsg); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("quotesvc codec: unsupported message type %T", v)
}

func (quoteCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(quoteMsg); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("quotesvc codec: unsupported message type %T", v)
}
