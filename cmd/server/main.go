package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TemirB/order-service/internal/application/handler"
	"github.com/TemirB/order-service/internal/application/service"
	"github.com/TemirB/order-service/internal/cache"
	"github.com/TemirB/order-service/internal/config"
	"github.com/TemirB/order-service/internal/health"
	"github.com/TemirB/order-service/internal/httpapi"
	"github.com/TemirB/order-service/internal/kafka"
	"github.com/TemirB/order-service/internal/logger"
	"github.com/TemirB/order-service/internal/observability"
	"github.com/TemirB/order-service/internal/pkg/breaker"
	"github.com/TemirB/order-service/internal/storage/postgres"
	"github.com/TemirB/order-service/internal/storage/sqlite"
)

var version = "dev"

// orderStore is what main needs from either storage backend.
type orderStore interface {
	service.Storage
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("service stopped with error", zap.Error(err))
	}
	log.Info("service stopped")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	if cfg.DB.Synchronize {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("schema synchronized", zap.String("driver", cfg.DB.Driver))
	}

	orderCache, err := cache.New(cfg.Cache.Size)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	metrics := observability.NewPrometheus(prometheus.DefaultRegisterer)
	svc := service.NewService(orderCache, store, cfg.Cache.TTL, log.Named("service"), metrics)

	healthHandler := health.NewHandler(version)
	healthHandler.RegisterChecker("database", health.NewSimpleChecker("database", store.Ping))

	server := httpapi.New(svc, log.Named("http"), metrics, cfg.CORSOrigins)
	server.Mount("/metrics", promhttp.Handler())
	server.Mount("/healthz", healthHandler)
	server.Mount("/readyz", http.HandlerFunc(healthHandler.ReadinessHandler))
	server.Mount("/livez", http.HandlerFunc(health.LivenessHandler))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.HTTPAddr)
	})

	if cfg.KafkaEnabled() {
		if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions, 1, log.Named("kafka")); err != nil {
			log.Warn("ensure topic", zap.Error(err))
		}

		reader := kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Group)
		defer func() {
			if err := reader.Close(); err != nil {
				log.Warn("close kafka reader", zap.Error(err))
			}
		}()

		msgHandler := handler.NewHandler(svc, breaker.New(cfg.Breaker), cfg.Retry, log.Named("handler"))
		consumer := kafka.NewConsumer(msgHandler, reader, cfg.Kafka.Workers, log.Named("kafka"), metrics)

		g.Go(func() error {
			return consumer.Start(gctx)
		})
	} else {
		log.Info("kafka ingestion disabled, KAFKA_BROKERS is empty")
	}

	log.Info("service started",
		zap.String("version", version),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("driver", cfg.DB.Driver),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (orderStore, error) {
	switch cfg.DB.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DSN(), cfg.DB.Trace, log.Named("db"))
		if err != nil {
			return nil, err
		}
		return postgres.NewOrderStore(pool), nil
	}
}
