package quotesvc

import (
	"context"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// DefaultClientRetry retries calls the server refused for capacity or
// could not take.
var DefaultClientRetry = retry.Config{
	MaxAttempts: 4,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    2 * time.Second,
	Jitter:      0.2,
	Retryable:   retry.OnCodes(codes.Unavailable, codes.ResourceExhausted),
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientRetry sets the retry policy of unary calls. A zero Config
// disables retries.
func WithClientRetry(cfg retry.Config) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// Client calls a squirrel.Quotes server.
type Client struct {
	cc    grpc.ClientConnInterface
	retry retry.Config
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{cc: cc, retry: DefaultClientRetry}
	for _, o := range opts {
		o(c)
	}
	return c
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	return retry.Do(ctx, c.retry, func(ctx context.Context) (*Resp, error) {
		out := new(Resp)
		if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// ResolveOne resolves a single ticker.
func (c *Client) ResolveOne(ctx context.Context, ticker string, opts ...grpc.CallOption) (*ResolveOneResponse, error) {
	return invoke[ResolveOneResponse](ctx, c, MethodResolveOne, &ResolveOneRequest{Ticker: ticker}, opts)
}

// ResolveMany resolves a batch of tickers.
func (c *Client) ResolveMany(ctx context.Context, tickers []string, opts ...grpc.CallOption) (*ResolveManyResponse, error) {
	return invoke[ResolveManyResponse](ctx, c, MethodResolveMany, &ResolveManyRequest{Tickers: tickers}, opts)
}

// Ping checks the server is serving.
func (c *Client) Ping(ctx context.Context, message string, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c, MethodPing, &PingRequest{Message: message}, opts)
}

// WatchClient receives snapshots from a Watch stream.
type WatchClient struct {
	stream grpc.ClientStream
}

// Recv blocks for the next snapshot. It returns io.EOF once the server
// ends the stream.
func (w *WatchClient) Recv() (*ResolveManyResponse, error) {
	out := new(ResolveManyResponse)
	if err := w.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch opens a stream of snapshots for tickers every interval. Cancel ctx
// to end it. Streams are not retried.
func (c *Client) Watch(ctx context.Context, tickers []string, interval time.Duration, opts ...grpc.CallOption) (*WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodWatch, opts...)
	if err != nil {
		return nil, err
	}
	req := &WatchRequest{Tickers: tickers, IntervalMs: int(interval.Milliseconds())}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClient{stream: stream}, nil
}
