package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

type couponStub struct {
	released []uuid.UUID
}

func (c *couponStub) Release(_ context.Context, _ *gorm.DB, orderID uuid.UUID) error {
	c.released = append(c.released, orderID)
	return nil
}

type harness struct {
	conn    *db.Client
	svc     *Service
	coupons *couponStub
	hooked  []uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	h := &harness{conn: conn, coupons: &couponStub{}}
	publisher := outbox.NewService(outbox.NewRepository(conn.DB()), logger.Nop())
	orders := fulfillment.NewRepository(conn.DB())
	flow, err := fulfillment.NewService(fulfillment.ServiceParams{
		DB:        conn,
		Repo:      orders,
		Inventory: inventory.NewRepository(conn.DB()),
		Coupons:   h.coupons,
		Outbox:    publisher,
		Hooks: []fulfillment.ConfirmHook{{
			Name: "record",
			Run: func(_ context.Context, unitID uuid.UUID) error {
				h.hooked = append(h.hooked, unitID)
				return nil
			},
		}},
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		DB:          conn,
		Repo:        NewRepository(conn.DB()),
		Orders:      orders,
		Fulfillment: flow,
		Outbox:      publisher,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seed(t *testing.T, method enums.PaymentMethod) *models.AggregateOrder {
	t.Helper()
	return dbtest.SeedOrder(t, h.conn.DB(), dbtest.OrderSpec{
		PaymentMethod: method,
		Units: []dbtest.UnitSpec{
			{Items: []dbtest.ItemSpec{{PricePaise: 10000, Qty: 1, Stock: 5}}},
			{Items: []dbtest.ItemSpec{{PricePaise: 2500, Qty: 2, Stock: 0}}},
		},
	})
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.AggregateOrder {
	t.Helper()
	order, err := fulfillment.NewRepository(h.conn.DB()).FindOrder(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.DB().Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func captured(eventID string, order *models.AggregateOrder) Event {
	return Event{
		EventID: eventID,
		Event:   "payment.captured",
		Payload: Payload{
			OrderRef:   order.OrderNumber,
			PaymentRef: "pay_" + eventID,
			Amount:     order.FinalAmountPaise,
			Currency:   "INR",
		},
	}
}

func TestCapturedConfirmsPendingUnits(t *testing.T) {
	h := newHarness(t)
	order := h.seed(t, enums.PaymentMethodOnline)
	ctx := context.Background()

	outcome, err := h.svc.Apply(ctx, captured("evt_1", order))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	got := h.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusPaid, got.PaymentStatus)
	require.NotNil(t, got.PaymentRef)
	assert.Equal(t, "pay_evt_1", *got.PaymentRef)
	assert.Equal(t, enums.AggregateOrderStatusPending, got.Status)
	for _, unit := range got.Units {
		assert.Equal(t, enums.FulfillmentStatusConfirmed, unit.Status)
	}
	assert.Len(t, h.hooked, 2)
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentConfirmed))
	assert.Equal(t, int64(1), h.count(t, &models.PaymentEvent{}, "provider_event_id = ? AND outcome = ?", "evt_1", string(OutcomeConfirmed)))
}

func TestReplayedEventIsNoOp(t *testing.T) {
	h := newHarness(t)
	order := h.seed(t, enums.PaymentMethodOnline)
	ctx := context.Background()

	_, err := h.svc.Apply(ctx, captured("evt_1", order))
	require.NoError(t, err)
	outcome, err := h.svc.Apply(ctx, captured("evt_1", order))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.Len(t, h.hooked, 2)
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentConfirmed))
}

func TestSecondCaptureWithNewIDIsIgnored(t *testing.T) {
	h := newHarness(t)
	order := h.seed(t, enums.PaymentMethodOnline)
	ctx := context.Background()

	_, err := h.svc.Apply(ctx, captured("evt_1", order))
	require.NoError(t, err)
	outcome, err := h.svc.Apply(ctx, captured("evt_2", order))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Len(t, h.hooked, 2)
}

func TestAmountMismatchRejectsWithoutWrites(t *testing.T) {
	h := newHarness(t)
	order := h.seed(t, enums.PaymentMethodOnline)
	ev := captured("evt_short", order)
	ev.Payload.Amount--

	_, err := h.svc.Apply(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	got := h.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, got.PaymentStatus)
	assert.Equal(t, int64(0), h.count(t, &models.PaymentEvent{}, "provider_event_id = ?", "evt_short"))
}

func TestCurrencyMismatchRejected(t *testing.T) {
	h := newHarness(t)
	order := h.seed(t, enums.PaymentMethodOnline)
	ev := captured("evt_usd", order)
	ev.Payload.Currency = "USD"

	_, err := h.svc.Apply(context.Background(), ev)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFailedCancelsUnitsAndRestocks(t *testing.T) {
	h := newHarness(t)
	order := h.seed(t, enums.PaymentMethodOnline)

	outcome, err := h.svc.Apply(context.Background(), Event{
		EventID: "evt_fail",
		Event:   "payment.failed",
		Payload: Payload{OrderRef: order.OrderNumber, ErrorCode: "BAD_CARD", ErrorDescription: "card declined"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	got := h.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusFailed, got.PaymentStatus)
	assert.Equal(t, enums.AggregateOrderStatusCancelled, got.Status)
	for _, unit := range got.Units {
		assert.Equal(t, enums.FulfillmentStatusCancelled, unit.Status)
	}
	assert.Equal(t, []uuid.UUID{order.ID}, h.coupons.released)
	assert.Empty(t, h.hooked)

	var stock models.InventoryItem
	require.NoError(t, h.conn.DB().Where("variant_id = ?", order.Units[1].Items[0].VariantID).First(&stock).Error)
	assert.Equal(t, 2, stock.AvailableQty)
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentFailed))
}

func TestCODOrdersIgnorePaymentWebhooks(t *testing.T) {
	h := newHarness(t)
	order := h.seed(t, enums.PaymentMethodCOD)

	_, err := h.svc.Apply(context.Background(), captured("evt_cod", order))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, enums.PaymentStatusPending, h.reload(t, order.ID).PaymentStatus)
}

func TestUnknownOrderAndStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Apply(ctx, Event{EventID: "evt_x", Event: "payment.captured", Payload: Payload{OrderRef: "ORD-missing"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Apply(ctx, Event{EventID: "evt_y", Event: "payment.authorized", Payload: Payload{OrderRef: "ORD-1"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Apply(ctx, Event{Event: "payment.captured", Payload: Payload{OrderRef: "ORD-1"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEventStatusPrefersPayload(t *testing.T) {
	assert.Equal(t, "failed", Event{Event: "payment.captured", Payload: Payload{Status: " FAILED "}}.Status())
	assert.Equal(t, "captured", Event{Event: "Payment.Captured"}.Status())
	assert.Equal(t, "captured", Event{Event: "captured"}.Status())
}

func TestExpireUnpaidCancelsOnlyPendingOnlineOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	unpaid := h.seed(t, enums.PaymentMethodOnline)
	paid := h.seed(t, enums.PaymentMethodOnline)
	_, err := h.svc.Apply(ctx, captured("evt_paid", paid))
	require.NoError(t, err)

	expired, err := h.svc.ExpireUnpaid(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.True(t, expired)
	got := h.reload(t, unpaid.ID)
	assert.Equal(t, enums.PaymentStatusFailed, got.PaymentStatus)
	assert.Equal(t, enums.AggregateOrderStatusCancelled, got.Status)

	expired, err = h.svc.ExpireUnpaid(ctx, paid.ID)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, enums.PaymentStatusPaid, h.reload(t, paid.ID).PaymentStatus)
}
