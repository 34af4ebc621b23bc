// Command quoted runs the quote cache with its gRPC and HTTP front ends.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	quotesquirrel "github.com/Keksclan/goQuoteSquirrel"
	"github.com/Keksclan/goQuoteSquirrel/config"
	"github.com/Keksclan/goQuoteSquirrel/httpapi"
	"github.com/Keksclan/goQuoteSquirrel/interceptors"
	"github.com/Keksclan/goQuoteSquirrel/logging"
	"github.com/Keksclan/goQuoteSquirrel/metrics"
	"github.com/Keksclan/goQuoteSquirrel/quotesvc"
	"github.com/Keksclan/goQuoteSquirrel/ratelimit"
	"github.com/Keksclan/goQuoteSquirrel/server"
	"github.com/Keksclan/goQuoteSquirrel/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("QUOTED_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New(logging.Config{Level: "info"})
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logging.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("quoted exited with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := metrics.New(nil)
	if err != nil {
		return err
	}

	var traceCfg *tracing.Config
	if cfg.Tracing.Stdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		traceCfg = &tracing.Config{TracerProvider: tp}
	}

	opts, err := quotesquirrel.FromConfig(cfg, log)
	if err != nil {
		return err
	}
	opts = append(opts, quotesquirrel.WithMetrics(m))
	if traceCfg != nil {
		opts = append(opts, quotesquirrel.WithTracerProvider(traceCfg.TracerProvider))
	}
	svc, err := quotesquirrel.New(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("quote service close failed")
		}
	}()
	svc.Start()

	grpcSrv := server.New(
		server.WithRecovery(log),
		server.WithRequestID(),
		server.WithLogging(log),
		server.WithRateLimit(interceptors.Limits{
			Global: ratelimit.NewLimiter(cfg.Server.RPS, cfg.Server.Burst),
		}),
		server.WithTracing(traceCfg),
	)
	quotesvc.Register(grpcSrv.GRPC(), quotesvc.NewHandler(svc.Resolver(), quotesvc.WithLogger(log)))

	httpSrv := httpapi.New(httpapi.Config{
		Addr:       cfg.Server.HTTPAddr,
		Log:        log,
		Resolver:   svc.Resolver(),
		Cache:      svc,
		Queue:      svc.Queue(),
		Worker:     svc.Worker(),
		Metrics:    m.Handler(),
		CronSecret: cfg.Server.CronSecret,
	})

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() { errc <- grpcSrv.Serve(lis) }()
	go func() { errc <- httpSrv.Start() }()
	log.Info().
		Str("grpc_addr", lis.Addr().String()).
		Str("http_addr", cfg.Server.HTTPAddr).
		Strs("middlewares", grpcSrv.Middlewares()).
		Msg("quoted started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errc:
		log.Error().Err(err).Msg("listener failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	grpcSrv.Shutdown(shutdownCtx)
	log.Info().Msg("quoted stopped")
	return err
}
