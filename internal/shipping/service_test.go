package shipping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/pkg/carrier"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

type carrierStub struct {
	calls    int
	requests []carrier.ShipmentRequest
	fn       func(req carrier.ShipmentRequest) (*carrier.Shipment, error)
}

func (c *carrierStub) CreateShipment(_ context.Context, req carrier.ShipmentRequest) (*carrier.Shipment, error) {
	c.calls++
	c.requests = append(c.requests, req)
	return c.fn(req)
}

type noopCoupons struct{}

func (noopCoupons) Release(context.Context, *gorm.DB, uuid.UUID) error { return nil }

func okCarrier() *carrierStub {
	return &carrierStub{fn: func(req carrier.ShipmentRequest) (*carrier.Shipment, error) {
		return &carrier.Shipment{AWBNumber: "AWB-" + req.Reference, CourierName: "Delhivery", TrackingURL: "https://track/" + req.Reference}, nil
	}}
}

func newShippingService(t *testing.T, stub *carrierStub) (*Service, *db.Client) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		DB:      conn,
		Units:   fulfillment.NewRepository(conn.DB()),
		Catalog: catalog.NewRepository(conn.DB()),
		Carrier: stub,
		Outbox:  outbox.NewService(outbox.NewRepository(conn.DB()), logger.Nop()),
	})
	require.NoError(t, err)
	return svc, conn
}

func loadUnit(t *testing.T, conn *db.Client, id uuid.UUID) *models.FulfillmentUnit {
	t.Helper()
	unit, err := fulfillment.NewRepository(conn.DB()).FindUnit(context.Background(), id)
	require.NoError(t, err)
	return unit
}

func confirmed(price int64) dbtest.UnitSpec {
	return dbtest.UnitSpec{Status: enums.FulfillmentStatusConfirmed, Items: []dbtest.ItemSpec{{PricePaise: price, Qty: 2}}}
}

func TestCreateForUnitStoresShipmentOnce(t *testing.T) {
	stub := okCarrier()
	svc, conn := newShippingService(t, stub)
	order := dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSpec{Units: []dbtest.UnitSpec{confirmed(1000)}})
	unit := order.Units[0]
	ctx := context.Background()

	require.NoError(t, svc.CreateForUnit(ctx, unit.ID))
	require.NoError(t, svc.CreateForUnit(ctx, unit.ID))
	assert.Equal(t, 1, stub.calls)

	got := loadUnit(t, conn, unit.ID)
	require.NotNil(t, got.AWBNumber)
	assert.Equal(t, "AWB-"+unit.UnitNumber, *got.AWBNumber)
	assert.Equal(t, "PREPAID", stub.requests[0].PaymentMode)
	assert.Nil(t, stub.requests[0].CODAmountPaise)
	require.Len(t, stub.requests[0].Items, 1)
	assert.Equal(t, 2, stub.requests[0].Items[0].Quantity)

	var events int64
	require.NoError(t, conn.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventShipmentCreated).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestCreateForUnitCODDeclaresAmountDue(t *testing.T) {
	stub := okCarrier()
	svc, conn := newShippingService(t, stub)
	order := dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSpec{
		PaymentMethod: enums.PaymentMethodCOD,
		Units:         []dbtest.UnitSpec{confirmed(1000)},
	})

	require.NoError(t, svc.CreateForUnit(context.Background(), order.Units[0].ID))
	require.NotNil(t, stub.requests[0].CODAmountPaise)
	assert.Equal(t, "COD", stub.requests[0].PaymentMode)
	assert.Equal(t, int64(2000+360), *stub.requests[0].CODAmountPaise)
}

func TestCreateForUnitRecordsFailure(t *testing.T) {
	stub := &carrierStub{fn: func(carrier.ShipmentRequest) (*carrier.Shipment, error) {
		return nil, errors.New("pincode not serviceable")
	}}
	svc, conn := newShippingService(t, stub)
	order := dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSpec{Units: []dbtest.UnitSpec{confirmed(1000)}})

	err := svc.CreateForUnit(context.Background(), order.Units[0].ID)
	require.Error(t, err)

	got := loadUnit(t, conn, order.Units[0].ID)
	assert.Nil(t, got.AWBNumber)
	assert.Equal(t, 1, got.ShipmentAttempts)
	require.NotNil(t, got.ShipmentError)
	assert.Contains(t, *got.ShipmentError, "pincode")
}

func TestCreateForUnitSkipsPendingUnits(t *testing.T) {
	stub := okCarrier()
	svc, conn := newShippingService(t, stub)
	order := dbtest.SeedOrder(t, conn.DB(), dbtest.OrderSpec{Units: []dbtest.UnitSpec{{Items: []dbtest.ItemSpec{{PricePaise: 100, Qty: 1}}}}})

	require.NoError(t, svc.CreateForUnit(context.Background(), order.Units[0].ID))
	assert.Zero(t, stub.calls)
}

type trackerHarness struct {
	conn     *db.Client
	tracker  *Tracker
	advancer *flakyAdvancer
}

func newTrackerHarness(t *testing.T) *trackerHarness {
	t.Helper()
	conn := dbtest.Open(t)
	units := fulfillment.NewRepository(conn.DB())
	fsvc, err := fulfillment.NewService(fulfillment.ServiceParams{
		DB:        conn,
		Repo:      units,
		Inventory: inventory.NewRepository(conn.DB()),
		Coupons:   noopCoupons{},
		Outbox:    outbox.NewService(outbox.NewRepository(conn.DB()), logger.Nop()),
	})
	require.NoError(t, err)
	flaky := &flakyAdvancer{Service: fsvc}
	tracker, err := NewTracker(conn, NewRepository(conn.DB()), units, flaky, nil, nil)
	require.NoError(t, err)
	return &trackerHarness{conn: conn, tracker: tracker, advancer: flaky}
}

// flakyAdvancer fails the next failNext calls before delegating.
type flakyAdvancer struct {
	*fulfillment.Service
	failNext int
}

func (f *flakyAdvancer) AdvanceToTx(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, target enums.FulfillmentStatus) ([]enums.FulfillmentStatus, error) {
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("connection reset")
	}
	return f.Service.AdvanceToTx(ctx, tx, unitID, target)
}

func (h *trackerHarness) shippedUnit(t *testing.T, awb string) models.FulfillmentUnit {
	t.Helper()
	order := dbtest.SeedOrder(t, h.conn.DB(), dbtest.OrderSpec{Units: []dbtest.UnitSpec{confirmed(1000)}})
	unit := order.Units[0]
	require.NoError(t, h.conn.DB().Model(&models.FulfillmentUnit{}).Where("id = ?", unit.ID).Update("awb_number", awb).Error)
	return unit
}

func TestTrackerAdvancesAndDedupes(t *testing.T) {
	h := newTrackerHarness(t)
	unit := h.shippedUnit(t, "AWB1")
	ctx := context.Background()
	at := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

	outcome, err := h.tracker.Apply(ctx, TrackingUpdate{AWBNumber: "AWB1", Status: "In Transit", Timestamp: at, Location: "Pune hub"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, outcome)
	assert.Equal(t, enums.FulfillmentStatusShipped, loadUnit(t, h.conn, unit.ID).Status)

	outcome, err = h.tracker.Apply(ctx, TrackingUpdate{AWBNumber: "AWB1", Status: "In Transit", Timestamp: at, Location: "Pune hub"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	outcome, err = h.tracker.Apply(ctx, TrackingUpdate{AWBNumber: "AWB1", Status: "IN_TRANSIT", Timestamp: at.Add(time.Hour), Location: "Bengaluru hub"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, outcome)

	outcome, err = h.tracker.Apply(ctx, TrackingUpdate{AWBNumber: "AWB1", Status: "delivered", Timestamp: at.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, outcome)

	got := loadUnit(t, h.conn, unit.ID)
	assert.Equal(t, enums.FulfillmentStatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)

	history, err := h.tracker.repo.ListTracking(ctx, unit.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestTrackerRedeliveryAfterFailedAdvance(t *testing.T) {
	h := newTrackerHarness(t)
	unit := h.shippedUnit(t, "AWB9")
	ctx := context.Background()
	update := TrackingUpdate{AWBNumber: "AWB9", Status: "SHIPPED", Timestamp: time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)}

	h.advancer.failNext = 1
	_, err := h.tracker.Apply(ctx, update)
	require.Error(t, err)
	assert.Equal(t, enums.FulfillmentStatusConfirmed, loadUnit(t, h.conn, unit.ID).Status)
	history, err := h.tracker.repo.ListTracking(ctx, unit.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "history row rolls back with the failed move")

	outcome, err := h.tracker.Apply(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, outcome)
	assert.Equal(t, enums.FulfillmentStatusShipped, loadUnit(t, h.conn, unit.ID).Status)
}

func TestTrackerAcknowledgesUnknowns(t *testing.T) {
	h := newTrackerHarness(t)
	unit := h.shippedUnit(t, "AWB2")
	ctx := context.Background()
	at := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

	outcome, err := h.tracker.Apply(ctx, TrackingUpdate{AWBNumber: "NOPE", Status: "DELIVERED", Timestamp: at})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, outcome)

	outcome, err = h.tracker.Apply(ctx, TrackingUpdate{AWBNumber: "AWB2", Status: "WEATHER_DELAY", Timestamp: at})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownStatus, outcome)
	assert.Equal(t, enums.FulfillmentStatusConfirmed, loadUnit(t, h.conn, unit.ID).Status)

	_, err = h.tracker.Apply(ctx, TrackingUpdate{Status: "DELIVERED", Timestamp: at})
	assert.Error(t, err)
}

func TestMapCarrierStatus(t *testing.T) {
	status, ok := MapCarrierStatus(" out-for-delivery ")
	assert.True(t, ok)
	assert.Equal(t, enums.FulfillmentStatusOutForDelivery, status)

	_, ok = MapCarrierStatus("RTO_INITIATED")
	assert.False(t, ok)
}
