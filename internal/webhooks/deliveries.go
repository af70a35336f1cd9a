package webhooks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

const defaultDeliveryTTL = 72 * time.Hour

type markStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// DeliveryGuard remembers recently applied provider deliveries in Redis so
// redeliveries short-circuit before touching the database. It is a fast path
// only; the payment and tracking ledgers dedupe on their own natural keys.
type DeliveryGuard struct {
	store markStore
	ttl   time.Duration
}

func NewDeliveryGuard(store markStore, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("delivery guard: store required")
	}
	if ttl <= 0 {
		ttl = defaultDeliveryTTL
	}
	return &DeliveryGuard{store: store, ttl: ttl}, nil
}

// Seen marks the delivery and reports whether an earlier call already had.
func (g *DeliveryGuard) Seen(ctx context.Context, source enums.WebhookSource, deliveryID string) (bool, error) {
	key, err := g.key(source, deliveryID)
	if err != nil {
		return false, err
	}
	first, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, err
	}
	return !first, nil
}

// Forget drops the mark so the provider's retry is processed again.
func (g *DeliveryGuard) Forget(ctx context.Context, source enums.WebhookSource, deliveryID string) error {
	key, err := g.key(source, deliveryID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *DeliveryGuard) key(source enums.WebhookSource, deliveryID string) (string, error) {
	if !source.IsValid() {
		return "", errors.New("delivery guard: unknown webhook source")
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return "", errors.New("delivery guard: delivery id required")
	}
	return g.store.IdempotencyKey("webhook:"+string(source), deliveryID), nil
}
