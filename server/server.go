// Package server builds the gRPC server that hosts the quote service.
//
//	srv := server.New(
//		server.WithRecovery(log),
//		server.WithRequestID(),
//		server.WithLogging(log),
//	)
//	quotesvc.Register(srv.GRPC(), handler)
//	go srv.Serve(lis)
package server

import (
	"context"
	"errors"
	"net"

	"github.com/Keksclan/goQuoteSquirrel/internal/core"
	"google.golang.org/grpc"
)

// Server wraps a *grpc.Server with an ordered middleware chain.
type Server struct {
	grpcServer  *grpc.Server
	middlewares []string
}

// New creates a Server by applying functional options and wiring the
// resulting interceptor chains into grpc.NewServer.
func New(opts ...Option) *Server {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	return &Server{
		grpcServer:  grpc.NewServer(core.BuildServerOptions(&cfg.middlewares, cfg.serverOpts...)...),
		middlewares: cfg.middlewares.Names(),
	}
}

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// Middlewares lists the named built-in middleware in execution order.
func (s *Server) Middlewares() []string {
	var out []string
	for _, n := range s.middlewares {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Serve accepts connections on lis until Shutdown. A graceful stop is not
// reported as an error.
func (s *Server) Serve(lis net.Listener) error {
	err := s.grpcServer.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Shutdown stops accepting calls and waits for in-flight ones. When ctx
// ends first, remaining calls are cancelled.
func (s *Server) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
}
