package core

import (
	"github.com/Keksclan/goQuoteSquirrel/interceptors"
	"google.golang.org/grpc"
)

// BuildServerOptions chains the builder's middleware into grpc.ServerOption
// values and appends extra.
func BuildServerOptions(b *MiddlewareBuilder, extra ...grpc.ServerOption) []grpc.ServerOption {
	unary, stream := b.Build()

	var opts []grpc.ServerOption
	if u := interceptors.ChainUnary(unary...); u != nil {
		opts = append(opts, grpc.UnaryInterceptor(u))
	}
	if s := interceptors.ChainStream(stream...); s != nil {
		opts = append(opts, grpc.StreamInterceptor(s))
	}
	return append(opts, extra...)
}
