package returns

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/sequence"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

var fixedNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type noopCoupons struct{}

func (noopCoupons) Release(context.Context, *gorm.DB, uuid.UUID) error { return nil }

type harness struct {
	conn  *db.Client
	svc   *Service
	buyer auth.Actor
	admin auth.Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	publisher := outbox.NewService(outbox.NewRepository(conn.DB()), logger.Nop())
	units := fulfillment.NewRepository(conn.DB())
	flow, err := fulfillment.NewService(fulfillment.ServiceParams{
		DB:        conn,
		Repo:      units,
		Inventory: inventory.NewRepository(conn.DB()),
		Coupons:   noopCoupons{},
		Outbox:    publisher,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		DB:           conn,
		Repo:         NewRepository(conn.DB()),
		Units:        units,
		Fulfillment:  flow,
		Sequences:    sequence.NewRepository(conn.DB()),
		Outbox:       publisher,
		ReturnWindow: 7 * 24 * time.Hour,
		Now:          func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &harness{
		conn:  conn,
		svc:   svc,
		buyer: auth.Actor{ID: uuid.New(), Kind: enums.ActorKindBuyer},
		admin: auth.Actor{ID: uuid.New(), Kind: enums.ActorKindAdmin},
	}
}

func (h *harness) seedDelivered(t *testing.T, deliveredAgo time.Duration) *models.AggregateOrder {
	t.Helper()
	delivered := fixedNow.Add(-deliveredAgo)
	return dbtest.SeedOrder(t, h.conn.DB(), dbtest.OrderSpec{
		BuyerID: h.buyer.ID,
		Units: []dbtest.UnitSpec{{
			Status:      enums.FulfillmentStatusDelivered,
			DeliveredAt: &delivered,
			Items:       []dbtest.ItemSpec{{PricePaise: 1000, Qty: 2}, {PricePaise: 500, Qty: 1}},
		}},
	})
}

func (h *harness) request(t *testing.T, unit models.FulfillmentUnit, qty int) *models.ReturnRequest {
	t.Helper()
	req, err := h.svc.Create(context.Background(), h.buyer, CreateInput{
		UnitID: unit.ID,
		Reason: "wrong size",
		Items:  []ItemInput{{FulfillmentItemID: unit.Items[0].ID, Quantity: qty}},
	})
	require.NoError(t, err)
	return req
}

func sellerOf(unit models.FulfillmentUnit) auth.Actor {
	return auth.Actor{ID: unit.SellerID, Kind: enums.ActorKindSeller}
}

func TestCreatePricesClaimsAndNumbers(t *testing.T) {
	h := newHarness(t)
	order := h.seedDelivered(t, 48*time.Hour)
	unit := order.Units[0]

	req, err := h.svc.Create(context.Background(), h.buyer, CreateInput{
		UnitID: unit.ID,
		Reason: " damaged ",
		Items: []ItemInput{
			{FulfillmentItemID: unit.Items[0].ID, Quantity: 1},
			{FulfillmentItemID: unit.Items[1].ID, Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "RET-2026-00001", req.ReturnNumber)
	assert.Equal(t, enums.ReturnStatusRequested, req.Status)
	assert.Equal(t, "damaged", req.Reason)
	assert.Equal(t, order.BuyerID, req.BuyerID)
	require.Len(t, req.Items, 2)
	// 2000 + 360 tax for two, so one is half
	assert.Equal(t, int64(1180), req.Items[0].ClaimedRefundPaise)
	assert.Equal(t, int64(590), req.Items[1].ClaimedRefundPaise)
	assert.Equal(t, int64(1770), ClaimedTotal(req))

	second := h.seedDelivered(t, time.Hour)
	next := h.request(t, second.Units[0], 2)
	assert.Equal(t, "RET-2026-00002", next.ReturnNumber)
	assert.Equal(t, int64(2360), next.Items[0].ClaimedRefundPaise)
}

func TestCreateAllowedOnLastCalendarDay(t *testing.T) {
	h := newHarness(t)
	order := h.seedDelivered(t, 7*24*time.Hour+6*time.Hour+30*time.Minute)

	req := h.request(t, order.Units[0], 1)
	assert.Equal(t, enums.ReturnStatusRequested, req.Status)
}

func TestWindowOpenUsesCalendarDays(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	delivered := time.Date(2026, 3, 7, 20, 0, 0, 0, time.UTC) // 8 March in IST
	week := 7 * 24 * time.Hour

	cases := []struct {
		name string
		now  time.Time
		loc  *time.Location
		want bool
	}{
		{"same day", delivered.Add(time.Hour), ist, true},
		{"late on the last day", time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC), ist, true},
		{"last day already over in UTC", time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC), time.UTC, false},
		{"day after the window", time.Date(2026, 3, 15, 19, 0, 0, 0, time.UTC), ist, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, WindowOpen(delivered, tc.now, week, tc.loc))
		})
	}
}

func TestCreateEnforcesPreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	late := h.seedDelivered(t, 8*24*time.Hour)
	_, err := h.svc.Create(ctx, h.buyer, CreateInput{
		UnitID: late.Units[0].ID, Reason: "late",
		Items: []ItemInput{{FulfillmentItemID: late.Units[0].Items[0].ID, Quantity: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "window: %v", err)

	shipped := dbtest.SeedOrder(t, h.conn.DB(), dbtest.OrderSpec{
		BuyerID: h.buyer.ID,
		Units:   []dbtest.UnitSpec{{Status: enums.FulfillmentStatusShipped, Items: []dbtest.ItemSpec{{PricePaise: 100, Qty: 1}}}},
	})
	_, err = h.svc.Create(ctx, h.buyer, CreateInput{
		UnitID: shipped.Units[0].ID, Reason: "early",
		Items: []ItemInput{{FulfillmentItemID: shipped.Units[0].Items[0].ID, Quantity: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "status: %v", err)

	order := h.seedDelivered(t, time.Hour)
	unit := order.Units[0]
	_, err = h.svc.Create(ctx, h.buyer, CreateInput{
		UnitID: unit.ID, Reason: "too many",
		Items: []ItemInput{
			{FulfillmentItemID: unit.Items[0].ID, Quantity: 2},
			{FulfillmentItemID: unit.Items[0].ID, Quantity: 1},
		},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "quantity: %v", err)

	_, err = h.svc.Create(ctx, h.buyer, CreateInput{
		UnitID: unit.ID, Reason: "foreign",
		Items: []ItemInput{{FulfillmentItemID: uuid.New(), Quantity: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "foreign item: %v", err)

	stranger := auth.Actor{ID: uuid.New(), Kind: enums.ActorKindBuyer}
	_, err = h.svc.Create(ctx, stranger, CreateInput{
		UnitID: unit.ID, Reason: "not mine",
		Items: []ItemInput{{FulfillmentItemID: unit.Items[0].ID, Quantity: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "owner: %v", err)

	_, err = h.svc.Create(ctx, sellerOf(unit), CreateInput{UnitID: unit.ID, Reason: "x", Items: []ItemInput{{FulfillmentItemID: unit.Items[0].ID, Quantity: 1}}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	var n int64
	require.NoError(t, h.conn.DB().Model(&models.ReturnRequest{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestOneOpenReturnPerUnit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.seedDelivered(t, time.Hour)
	unit := order.Units[0]

	first := h.request(t, unit, 1)
	_, err := h.svc.Create(ctx, h.buyer, CreateInput{
		UnitID: unit.ID, Reason: "again",
		Items: []ItemInput{{FulfillmentItemID: unit.Items[0].ID, Quantity: 1}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = h.svc.Transition(ctx, sellerOf(unit), first.ID, TransitionInput{To: enums.ReturnStatusRejected, Reason: "worn"})
	require.NoError(t, err)

	again := h.request(t, unit, 1)
	assert.Equal(t, enums.ReturnStatusRequested, again.Status)
}

func TestCompletingReturnMarksUnitReturned(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.seedDelivered(t, time.Hour)
	unit := order.Units[0]
	req := h.request(t, unit, 2)
	seller := sellerOf(unit)

	steps := []enums.ReturnStatus{
		enums.ReturnStatusApproved,
		enums.ReturnStatusPickedUp,
		enums.ReturnStatusInTransit,
		enums.ReturnStatusReceived,
		enums.ReturnStatusInspected,
		enums.ReturnStatusCompleted,
	}
	var got *models.ReturnRequest
	var err error
	for _, to := range steps {
		got, err = h.svc.Transition(ctx, seller, req.ID, TransitionInput{To: to})
		require.NoError(t, err, "to %s", to)
	}
	assert.Equal(t, enums.ReturnStatusCompleted, got.Status)
	assert.NotNil(t, got.ApprovedAt)
	assert.NotNil(t, got.InspectedAt)
	assert.NotNil(t, got.CompletedAt)

	reloaded, err := fulfillment.NewRepository(h.conn.DB()).FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.FulfillmentStatusReturned, reloaded.Units[0].Status)
	assert.Equal(t, enums.AggregateOrderStatusReturned, reloaded.Status)

	var events int64
	require.NoError(t, h.conn.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventReturnStatusChanged).Count(&events).Error)
	assert.Equal(t, int64(len(steps)+1), events)
}

func TestTransitionRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.seedDelivered(t, time.Hour)
	unit := order.Units[0]
	req := h.request(t, unit, 1)

	_, err := h.svc.Transition(ctx, h.admin, req.ID, TransitionInput{To: enums.ReturnStatusCompleted})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Contains(t, err.Error(), "cannot transition from REQUESTED to COMPLETED")

	_, err = h.svc.Transition(ctx, h.admin, req.ID, TransitionInput{To: enums.ReturnStatusRejected})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Transition(ctx, h.buyer, req.ID, TransitionInput{To: enums.ReturnStatusApproved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	other := auth.Actor{ID: uuid.New(), Kind: enums.ActorKindSeller}
	_, err = h.svc.Transition(ctx, other, req.ID, TransitionInput{To: enums.ReturnStatusApproved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Transition(ctx, sellerOf(unit), req.ID, TransitionInput{To: enums.ReturnStatusApproved})
	require.NoError(t, err)

	_, err = h.svc.Transition(ctx, sellerOf(unit), req.ID, TransitionInput{To: enums.ReturnStatusCancelled})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	cancelled, err := h.svc.Transition(ctx, h.buyer, req.ID, TransitionInput{To: enums.ReturnStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
}

func TestGetAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.seedDelivered(t, time.Hour)
	unit := order.Units[0]
	req := h.request(t, unit, 1)

	_, err := h.svc.Get(ctx, h.buyer, req.ID)
	require.NoError(t, err)
	_, err = h.svc.Get(ctx, sellerOf(unit), req.ID)
	require.NoError(t, err)
	_, err = h.svc.Get(ctx, auth.Actor{ID: uuid.New(), Kind: enums.ActorKindBuyer}, req.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	mine, next, err := h.svc.List(ctx, h.buyer, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Empty(t, next)

	theirs, _, err := h.svc.List(ctx, sellerOf(unit), pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, req.ID, theirs[0].ID)

	_, _, err = h.svc.List(ctx, h.admin, pagination.Params{Limit: 10})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, _, err = h.svc.List(ctx, h.buyer, pagination.Params{Cursor: "not-a-cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestClaimForRoundsShare(t *testing.T) {
	line := models.FulfillmentItem{Quantity: 3, LineTotalPaise: 1000}
	assert.Equal(t, int64(333), ClaimFor(line, 1))
	assert.Equal(t, int64(667), ClaimFor(line, 2))
	assert.Equal(t, int64(1000), ClaimFor(line, 3))
}
