package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryStore struct {
	data   map[string]string
	counts map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func (m *memoryStore) Ping(context.Context) error {
	return nil
}

type stubOrders struct{}

func (stubOrders) GetOrder(_ context.Context, _ auth.Actor, id uuid.UUID) (*models.AggregateOrder, error) {
	return &models.AggregateOrder{ID: id}, nil
}

func (stubOrders) GetUnit(_ context.Context, _ auth.Actor, id uuid.UUID) (*models.FulfillmentUnit, error) {
	return &models.FulfillmentUnit{ID: id}, nil
}

func (stubOrders) ListOrders(context.Context, auth.Actor, pagination.Params) ([]models.AggregateOrder, string, error) {
	return nil, "", nil
}

func (stubOrders) ListUnits(context.Context, auth.Actor, enums.FulfillmentStatus, pagination.Params) ([]models.FulfillmentUnit, string, error) {
	return nil, "", nil
}

func (stubOrders) Transition(_ context.Context, _ auth.Actor, id uuid.UUID, to enums.FulfillmentStatus) (*models.FulfillmentUnit, error) {
	return &models.FulfillmentUnit{ID: id, Status: to}, nil
}

func (stubOrders) CancelOrder(_ context.Context, _ auth.Actor, id uuid.UUID, _ string) (*models.AggregateOrder, error) {
	return &models.AggregateOrder{ID: id, Status: enums.AggregateOrderStatusCancelled}, nil
}

type stubPayments struct{ calls int }

func (s *stubPayments) Apply(context.Context, payments.Event) (payments.Outcome, error) {
	s.calls++
	return payments.OutcomeConfirmed, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		HTTP: config.HTTPConfig{
			RateLimitWindow:  time.Minute,
			ActorRateLimit:   3,
			IPRateLimit:      100,
			WebhookRateLimit: 100,
		},
		Payments: config.PaymentsConfig{WebhookSecret: "whsec"},
	}
}

func newTestRouter(cfg *config.Config, pay *stubPayments) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{}, newMemoryStore(), Services{
		Orders:   stubOrders{},
		Payments: pay,
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	})
}

func buildToken(t *testing.T, cfg *config.Config, kind enums.ActorKind) string {
	t.Helper()
	token, _, err := auth.NewTokens(cfg.JWT).Issue(auth.Actor{ID: uuid.New(), Kind: kind})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), &stubPayments{})
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		if resp := serve(router, httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestAPIRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), &stubPayments{})
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestOrderListIsBuyerOnly(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubPayments{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorKindSeller))
	if resp := serve(router, req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorKindBuyer))
	if resp := serve(router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for buyer got %d", resp.Code)
	}
}

func TestCancelRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubPayments{})
	path := "/api/v1/orders/" + uuid.NewString() + "/cancel"
	token := buildToken(t, cfg, enums.ActorKindBuyer)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	if resp := serve(router, req); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "k1")
	if resp := serve(router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "k1")
	resp := serve(router, req)
	if resp.Code != http.StatusOK || resp.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed 200 got %d replayed=%q", resp.Code, resp.Header().Get("Idempotent-Replayed"))
	}
}

func TestActorRateLimit(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubPayments{})
	token := buildToken(t, cfg, enums.ActorKindBuyer)

	var last int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		last = serve(router, req).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit got %d", last)
	}
}

func TestPaymentWebhookSkipsJWT(t *testing.T) {
	pay := &stubPayments{}
	router := newTestRouter(testConfig(), pay)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`{}`))
	req.Header.Set("X-Bazaar-Signature", "00")
	resp := serve(router, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected signature rejection got %d", resp.Code)
	}
	if pay.calls != 0 {
		t.Fatalf("payment service should not run on a bad signature")
	}
}
