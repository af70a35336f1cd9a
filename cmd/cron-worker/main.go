package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/coupons"
	"github.com/angelmondragon/bazaar-backend/internal/cron"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/refunds"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/internal/sequence"
	"github.com/angelmondragon/bazaar-backend/internal/shipping"
	"github.com/angelmondragon/bazaar-backend/internal/webhooks"
	"github.com/angelmondragon/bazaar-backend/pkg/carrier"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
	"github.com/angelmondragon/bazaar-backend/pkg/square"
	"github.com/angelmondragon/bazaar-backend/pkg/telemetry"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
		Version:     cfg.Telemetry.ServiceVersion,
	})

	shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.Telemetry, "cron-worker")
	if err != nil {
		logg.Error(context.Background(), "failed to init tracing", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobs, err := buildJobs(context.Background(), cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		logg.Error(context.Background(), "invalid cron job set", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metricsCollector,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	go func() {
		if err := metrics.Serve(ctx, cfg.Telemetry.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	gdb := dbClient.DB()
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(gdb)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	unitsRepo := fulfillment.NewRepository(gdb)
	catalogRepo := catalog.NewRepository(gdb)
	inventoryRepo := inventory.NewRepository(gdb)
	sequences := sequence.NewRepository(gdb)
	paymentsRepo := payments.NewRepository(gdb)

	couponSvc, err := coupons.NewService(coupons.NewRepository(gdb), nil)
	if err != nil {
		return nil, err
	}

	invoiceSvc, err := invoices.NewService(invoices.ServiceParams{
		DB:        dbClient,
		Repo:      invoices.NewRepository(gdb),
		Units:     unitsRepo,
		Catalog:   catalogRepo,
		Sequences: sequences,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	// confirm hooks stay empty here; the backfill jobs below cover them
	fulfillmentSvc, err := fulfillment.NewService(fulfillment.ServiceParams{
		DB:        dbClient,
		Repo:      unitsRepo,
		Inventory: inventoryRepo,
		Coupons:   couponSvc,
		Outbox:    outboxSvc,
		Logger:    logg,
		Metrics:   fulfillmentMetrics,
	})
	if err != nil {
		return nil, err
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		DB:          dbClient,
		Repo:        paymentsRepo,
		Orders:      unitsRepo,
		Fulfillment: fulfillmentSvc,
		Outbox:      outboxSvc,
		Logger:      logg,
		Metrics:     fulfillmentMetrics,
		Currency:    cfg.Fulfillment.Currency,
	})
	if err != nil {
		return nil, err
	}

	refundParams := refunds.ServiceParams{
		DB:        dbClient,
		Repo:      refunds.NewRepository(gdb),
		Returns:   returns.NewRepository(gdb),
		Units:     unitsRepo,
		Inventory: inventoryRepo,
		Sequences: sequences,
		Outbox:    outboxSvc,
		Logger:    logg,
		Metrics:   fulfillmentMetrics,
		Currency:  cfg.Fulfillment.Currency,
	}
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		refundParams.Gateway = squareClient
	}
	refundSvc, err := refunds.NewService(refundParams)
	if err != nil {
		return nil, err
	}

	invoiceJob, err := cron.NewInvoiceBackfillJob(cron.InvoiceBackfillJobParams{
		Logger:    logg,
		Units:     unitsRepo,
		Invoices:  invoiceSvc,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	refundJob, err := cron.NewRefundProcessJob(cron.RefundProcessJobParams{
		Logger:     logg,
		Refunds:    refundSvc,
		BatchSize:  cfg.Cron.BatchSize,
		StaleAfter: cfg.Cron.RefundStaleAfter,
	})
	if err != nil {
		return nil, err
	}
	unpaidJob, err := cron.NewUnpaidOrderJob(cron.UnpaidOrderJobParams{
		Logger:    logg,
		Orders:    unitsRepo,
		Payments:  paymentSvc,
		TTL:       cfg.Cron.UnpaidOrderTTL,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	failures := webhooks.NewFailureRepository(gdb)
	retentionJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger: logg,
		DB:     dbClient,
		Policies: []cron.RetentionPolicy{
			cron.OutboxRetention(cfg.Cron.OutboxRetentionDays, cfg.Outbox.MaxAttempts, outboxRepo.Prune),
			{Table: "payment_events", Keep: days(cfg.Cron.LedgerRetentionDays), Prune: paymentsRepo.DeleteBefore},
			{Table: "webhook_failures", Keep: days(cfg.Cron.FailureRetentionDays), Prune: failures.DeleteBefore},
		},
	})
	if err != nil {
		return nil, err
	}
	jobs := []cron.Job{invoiceJob, refundJob, unpaidJob, retentionJob}

	if cfg.Carrier.BaseURL == "" {
		logg.Warn(ctx, "carrier not configured; shipment retry job disabled")
		return jobs, nil
	}
	carrierClient, err := carrier.NewClient(cfg.Carrier.BaseURL, cfg.Carrier.APIToken, carrier.WithTimeout(cfg.Carrier.Timeout))
	if err != nil {
		return nil, err
	}
	shippingSvc, err := shipping.NewService(shipping.ServiceParams{
		DB:      dbClient,
		Units:   unitsRepo,
		Catalog: catalogRepo,
		Carrier: carrierClient,
		Outbox:  outboxSvc,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}
	shipmentJob, err := cron.NewShipmentRetryJob(cron.ShipmentRetryJobParams{
		Logger:      logg,
		Units:       unitsRepo,
		Shipping:    shippingSvc,
		MaxAttempts: cfg.Cron.ShipmentMaxAttempts,
		BatchSize:   cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	return append(jobs, shipmentJob), nil
}

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey("cron-worker:" + env)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
