package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/store-transfer/internal/adapter/handler"
	"github.com/rl1809/store-transfer/internal/adapter/notify"
	"github.com/rl1809/store-transfer/internal/adapter/storage"
	"github.com/rl1809/store-transfer/internal/config"
	"github.com/rl1809/store-transfer/internal/core/service"
	"github.com/rl1809/store-transfer/internal/platform/logging"
	"github.com/rl1809/store-transfer/internal/platform/metrics"
	"github.com/rl1809/store-transfer/internal/platform/tracing"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OtelEndpoint, version)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	// Initialize database
	db, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database", zap.String("driver", cfg.DBDriver))

	if cfg.DBAutoMigrate {
		if err := storage.Migrate(ctx, db, cfg.DBDriver); err != nil {
			return err
		}
	}

	promMetrics := metrics.NewPrometheus()
	sqlAdapter := storage.NewSQLAdapter(db)
	opts := []service.Option{service.WithMetrics(promMetrics), service.WithLogger(logger)}

	// Initialize Redis
	var sinks []notify.Sink
	if cfg.RedisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

		opts = append(opts, service.WithCache(storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL, cfg.StoreCacheTTL)))
		sinks = append(sinks, notify.NewRedisSink(rdb))
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
		logger.Info("streaming transfer events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	dispatcher := notify.NewDispatcher(cfg.NotifyQueue, cfg.NotifyWorkers, logger, promMetrics, sinks...)

	transferService := service.NewTransferService(
		sqlAdapter,
		service.NewStatusValidator(service.DefaultTransitionPolicy),
		service.NewReconciler(logger, promMetrics),
		dispatcher,
		opts...,
	)
	stockService := service.NewStockService(sqlAdapter, promMetrics, logger)
	auth := handler.NewAuthenticator(cfg.JWTSecret)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryAuthInterceptor))
	handler.RegisterTransferServiceServer(grpcServer, handler.NewGRPCHandler(transferService, logger))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(transferService, stockService, auth, logger).Routes(promMetrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return err
	})

	err = g.Wait()

	// no more writers: drain queued notifications before the sinks close
	dispatcher.Close()
	logger.Info("notification workers stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
