// Command outbox-publisher drains outbox_events to the configured broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/kafka"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
	"github.com/angelmondragon/bazaar-backend/pkg/pubsub"
	"github.com/angelmondragon/bazaar-backend/pkg/telemetry"
)

const serviceKind = "outbox-publisher"

type closableSink interface {
	Sink
	io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
		Version:     cfg.Telemetry.ServiceVersion,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

// run owns every resource so deferred closes happen before main exits.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry, serviceKind)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer closeWith(logg, "tracing", func() error { return shutdownTracing(context.WithoutCancel(ctx)) })

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	sink, err := newSink(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("bootstrap %s sink: %w", cfg.Outbox.Sink, err)
	}
	defer closeWith(logg, "sink", sink.Close)

	routes, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	service, err := NewService(ServiceParams{
		Settings:   settingsFromConfig(cfg.Outbox),
		Logger:     logg,
		DB:         dbClient,
		Sink:       sink,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   routes,
		DLQ:        outbox.NewDLQRepository(dbClient.DB()),
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "sink": cfg.Outbox.Sink})
	go func() {
		if err := metrics.Serve(ctx, cfg.Telemetry.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	logg.Info(ctx, "outbox publisher running")
	return service.Run(ctx)
}

func newSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (closableSink, error) {
	switch cfg.Outbox.Sink {
	case config.OutboxSinkKafka:
		return kafka.NewProducer(cfg.Kafka, logg)
	case config.OutboxSinkPubSub:
		return pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	default:
		return nil, fmt.Errorf("unknown outbox sink %q", cfg.Outbox.Sink)
	}
}

func closeWith(logg *logger.Logger, what string, close func() error) {
	if err := close(); err != nil {
		logg.Error(context.Background(), "close "+what, err)
	}
}
