package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/orders"
	returncontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/returns"
	webhookcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/webhooks"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs.
type Store interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Services groups the domain handlers mounted under /api/v1.
type Services struct {
	Orders          ordercontrollers.Service
	Invoices        ordercontrollers.InvoiceService
	Tracking        ordercontrollers.TrackingReader
	Checkout        controllers.CheckoutService
	Returns         returncontrollers.ReturnService
	Refunds         returncontrollers.RefundService
	Payments        webhookcontrollers.PaymentService
	Tracker         webhookcontrollers.TrackingService
	WebhookGuard    *webhooks.DeliveryGuard
	WebhookFailures *webhooks.FailureRepository
	// Metrics defaults to the process-wide Prometheus handler.
	Metrics http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, store Store, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		otelhttp.NewMiddleware("bazaar-api", otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		})),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.HTTP.RateLimitWindow, cfg.HTTP.ActorRateLimit, cfg.HTTP.IPRateLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.HTTP.RateLimitWindow, 0, cfg.HTTP.WebhookRateLimit)

	metricsHandler := svc.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, store))
	})
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, store, logg))
		r.Post("/payments", webhookcontrollers.PaymentWebhook(svc.Payments, cfg.Payments.WebhookSecret, svc.WebhookGuard, svc.WebhookFailures, logg))
		r.Post("/carrier", webhookcontrollers.CarrierWebhook(svc.Tracker, cfg.Carrier.WebhookSecret, svc.WebhookGuard, svc.WebhookFailures, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(auth.NewTokens(cfg.JWT), logg))
		r.Use(middleware.RateLimit(apiPolicy, store, logg))

		buyers := middleware.RequireActorKind(logg, enums.ActorKindBuyer)
		sellers := middleware.RequireActorKind(logg, enums.ActorKindSeller)
		admins := middleware.RequireActorKind(logg, enums.ActorKindAdmin)
		idempotent := middleware.Idempotent(store, middleware.ReplayWindow, logg)
		moneyIdempotent := middleware.Idempotent(store, middleware.MoneyReplayWindow, logg)

		r.With(buyers, moneyIdempotent).Post("/checkout", controllers.Checkout(svc.Checkout, logg))
		r.With(buyers).Post("/coupons/quote", controllers.CouponQuote(svc.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(buyers).Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Get(svc.Orders, logg))
			r.With(middleware.RequireActorKind(logg, enums.ActorKindBuyer, enums.ActorKindAdmin), moneyIdempotent).
				Post("/{orderId}/cancel", ordercontrollers.Cancel(svc.Orders, logg))
		})

		r.Route("/units", func(r chi.Router) {
			r.With(sellers).Get("/", ordercontrollers.ListUnits(svc.Orders, logg))
			r.Get("/{unitId}", ordercontrollers.GetUnit(svc.Orders, logg))
			r.With(middleware.RequireActorKind(logg, enums.ActorKindSeller, enums.ActorKindAdmin), idempotent).
				Post("/{unitId}/status", ordercontrollers.TransitionUnit(svc.Orders, logg))
			r.Get("/{unitId}/invoice", ordercontrollers.Invoice(svc.Invoices, logg))
			r.Get("/{unitId}/invoice/document", ordercontrollers.InvoiceDocument(svc.Invoices, logg))
			r.Get("/{unitId}/tracking", ordercontrollers.Tracking(svc.Orders, svc.Tracking, logg))
		})

		r.Route("/returns", func(r chi.Router) {
			r.With(buyers, idempotent).Post("/", returncontrollers.Create(svc.Returns, logg))
			r.Get("/", returncontrollers.List(svc.Returns, logg))
			r.Get("/{returnId}", returncontrollers.Get(svc.Returns, logg))
			r.With(idempotent).Post("/{returnId}/status", returncontrollers.Transition(svc.Returns, logg))
		})

		r.Route("/refunds", func(r chi.Router) {
			r.With(admins, moneyIdempotent).Post("/", returncontrollers.CreateRefund(svc.Refunds, logg))
			r.Get("/{refundId}", returncontrollers.GetRefund(svc.Refunds, logg))
			r.With(admins, idempotent).Post("/{refundId}/status", returncontrollers.TransitionRefund(svc.Refunds, logg))
			r.With(middleware.RequireActorKind(logg, enums.ActorKindAdmin, enums.ActorKindSystem), moneyIdempotent).
				Post("/{refundId}/process", returncontrollers.ProcessRefund(svc.Refunds, logg))
		})
	})

	return r
}
