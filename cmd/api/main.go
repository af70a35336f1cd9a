package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bazaar-backend/api/routes"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/coupons"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/pricing"
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

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == "console",
		Version:     cfg.Telemetry.ServiceVersion,
	})

	shutdownTracing, err := telemetry.InitTracing(context.Background(), cfg.Telemetry, "api")
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

	services, err := buildServices(context.Background(), cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	gdb := dbClient.DB()
	fulfillmentMetrics := metrics.NewFulfillmentMetrics(prometheus.DefaultRegisterer)
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	unitsRepo := fulfillment.NewRepository(gdb)
	catalogRepo := catalog.NewRepository(gdb)
	inventoryRepo := inventory.NewRepository(gdb)
	sequences := sequence.NewRepository(gdb)
	returnsRepo := returns.NewRepository(gdb)
	shippingRepo := shipping.NewRepository(gdb)

	couponSvc, err := coupons.NewService(coupons.NewRepository(gdb), nil)
	if err != nil {
		return routes.Services{}, err
	}
	calculator, err := pricing.NewCalculator(cfg.Fulfillment)
	if err != nil {
		return routes.Services{}, err
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
		return routes.Services{}, err
	}

	hooks := []fulfillment.ConfirmHook{{Name: "invoice", Run: invoiceSvc.GenerateForOrderOfUnit}}
	if cfg.Carrier.BaseURL != "" {
		carrierClient, err := carrier.NewClient(cfg.Carrier.BaseURL, cfg.Carrier.APIToken, carrier.WithTimeout(cfg.Carrier.Timeout))
		if err != nil {
			return routes.Services{}, err
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
			return routes.Services{}, err
		}
		hooks = append(hooks, fulfillment.ConfirmHook{Name: "shipment", Run: shippingSvc.CreateForUnit})
	} else {
		logg.Warn(ctx, "carrier not configured; shipments are left to the cron worker")
	}

	fulfillmentSvc, err := fulfillment.NewService(fulfillment.ServiceParams{
		DB:        dbClient,
		Repo:      unitsRepo,
		Inventory: inventoryRepo,
		Coupons:   couponSvc,
		Outbox:    outboxSvc,
		Hooks:     hooks,
		Logger:    logg,
		Metrics:   fulfillmentMetrics,
	})
	if err != nil {
		return routes.Services{}, err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		DB:        dbClient,
		Carts:     cart.NewRepository(gdb),
		Catalog:   catalogRepo,
		Inventory: inventoryRepo,
		Coupons:   couponSvc,
		Pricing:   calculator,
		Orders:    unitsRepo,
		Outbox:    outboxSvc,
		Logger:    logg,
		Metrics:   fulfillmentMetrics,
		Currency:  cfg.Fulfillment.Currency,
	})
	if err != nil {
		return routes.Services{}, err
	}

	returnLoc, err := cfg.Fulfillment.Location()
	if err != nil {
		return routes.Services{}, err
	}
	returnSvc, err := returns.NewService(returns.ServiceParams{
		DB:           dbClient,
		Repo:         returnsRepo,
		Units:        unitsRepo,
		Fulfillment:  fulfillmentSvc,
		Sequences:    sequences,
		Outbox:       outboxSvc,
		Logger:       logg,
		Metrics:      fulfillmentMetrics,
		ReturnWindow: cfg.Fulfillment.ReturnWindow(),
		Location:     returnLoc,
	})
	if err != nil {
		return routes.Services{}, err
	}

	refundParams := refunds.ServiceParams{
		DB:        dbClient,
		Repo:      refunds.NewRepository(gdb),
		Returns:   returnsRepo,
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
			return routes.Services{}, err
		}
		refundParams.Gateway = squareClient
	}
	refundSvc, err := refunds.NewService(refundParams)
	if err != nil {
		return routes.Services{}, err
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		DB:          dbClient,
		Repo:        payments.NewRepository(gdb),
		Orders:      unitsRepo,
		Fulfillment: fulfillmentSvc,
		Outbox:      outboxSvc,
		Logger:      logg,
		Metrics:     fulfillmentMetrics,
		Currency:    cfg.Fulfillment.Currency,
	})
	if err != nil {
		return routes.Services{}, err
	}

	tracker, err := shipping.NewTracker(dbClient, shippingRepo, unitsRepo, fulfillmentSvc, logg, fulfillmentMetrics)
	if err != nil {
		return routes.Services{}, err
	}

	guard, err := webhooks.NewDeliveryGuard(redisClient, cfg.Payments.IdempotencyTTL)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Orders:          fulfillmentSvc,
		Invoices:        invoiceSvc,
		Tracking:        shippingRepo,
		Checkout:        checkoutSvc,
		Returns:         returnSvc,
		Refunds:         refundSvc,
		Payments:        paymentSvc,
		Tracker:         tracker,
		WebhookGuard:    guard,
		WebhookFailures: webhooks.NewFailureRepository(gdb),
	}, nil
}
