package refunds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/internal/sequence"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/square"
)

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

type gatewayStub struct {
	calls  []square.RefundParams
	err    error
	onCall func()
}

func (g *gatewayStub) RefundPayment(_ context.Context, params square.RefundParams) (*square.RefundResult, error) {
	g.calls = append(g.calls, params)
	if g.onCall != nil {
		g.onCall()
	}
	if g.err != nil {
		return nil, g.err
	}
	return &square.RefundResult{ID: "sq_" + params.IdempotencyKey, Status: "PENDING"}, nil
}

type harness struct {
	conn  *db.Client
	svc   *Service
	admin auth.Actor
	clock time.Time
}

func newHarness(t *testing.T, gateway Gateway) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	h := &harness{conn: conn, admin: auth.Actor{ID: uuid.New(), Kind: enums.ActorKindAdmin}, clock: fixedNow}
	svc, err := NewService(ServiceParams{
		DB:        conn,
		Repo:      NewRepository(conn.DB()),
		Returns:   returns.NewRepository(conn.DB()),
		Units:     fulfillment.NewRepository(conn.DB()),
		Inventory: inventory.NewRepository(conn.DB()),
		Sequences: sequence.NewRepository(conn.DB()),
		Outbox:    outbox.NewService(outbox.NewRepository(conn.DB()), logger.Nop()),
		Gateway:   gateway,
		Now:       func() time.Time { return h.clock },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

// seedReturn stores a delivered paid order and a return of one unit of its
// only line, claimed at 1180 paise.
func (h *harness) seedReturn(t *testing.T, status enums.ReturnStatus) (*models.AggregateOrder, *models.ReturnRequest) {
	t.Helper()
	order := dbtest.SeedOrder(t, h.conn.DB(), dbtest.OrderSpec{
		Units: []dbtest.UnitSpec{{
			Status: enums.FulfillmentStatusDelivered,
			Items:  []dbtest.ItemSpec{{PricePaise: 1000, Qty: 2, Stock: 3}},
		}},
	})
	require.NoError(t, h.conn.DB().Model(&models.AggregateOrder{}).Where("id = ?", order.ID).
		Updates(map[string]any{"payment_ref": "pay_" + order.OrderNumber, "payment_status": enums.PaymentStatusPaid}).Error)

	unit := order.Units[0]
	req := &models.ReturnRequest{
		ID:           uuid.New(),
		ReturnNumber: "RET-2026-" + uuid.NewString()[:5],
		UnitID:       unit.ID,
		OrderID:      order.ID,
		BuyerID:      order.BuyerID,
		Reason:       "damaged",
		Status:       status,
	}
	item := &models.ReturnItem{
		ID:                 uuid.New(),
		ReturnID:           req.ID,
		FulfillmentItemID:  unit.Items[0].ID,
		VariantID:          unit.Items[0].VariantID,
		Quantity:           1,
		ClaimedRefundPaise: 1180,
	}
	dbtest.MustCreate(t, h.conn.DB(), req, item)
	req.Items = []models.ReturnItem{*item}
	return order, req
}

func (h *harness) stock(t *testing.T, variantID uuid.UUID) int {
	t.Helper()
	qty, err := inventory.NewRepository(h.conn.DB()).Available(context.Background(), variantID)
	require.NoError(t, err)
	return qty
}

func (h *harness) initiated(t *testing.T, amount int64) (*models.AggregateOrder, *models.ReturnRequest, *models.Refund) {
	t.Helper()
	ctx := context.Background()
	order, req := h.seedReturn(t, enums.ReturnStatusInspected)
	refund, err := h.svc.Create(ctx, h.admin, CreateInput{ReturnID: req.ID, AmountPaise: amount})
	require.NoError(t, err)
	refund, err = h.svc.Transition(ctx, h.admin, refund.ID, TransitionInput{To: enums.RefundStatusInitiated})
	require.NoError(t, err)
	return order, req, refund
}

func TestCreateValidatesReturnAndAmount(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, requested := h.seedReturn(t, enums.ReturnStatusRequested)
	_, err := h.svc.Create(ctx, h.admin, CreateInput{ReturnID: requested.ID, AmountPaise: 100})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "status: %v", err)

	_, inspected := h.seedReturn(t, enums.ReturnStatusInspected)
	_, err = h.svc.Create(ctx, h.admin, CreateInput{ReturnID: inspected.ID, AmountPaise: 1181})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "amount: %v", err)

	_, err = h.svc.Create(ctx, h.admin, CreateInput{ReturnID: inspected.ID, AmountPaise: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	buyer := auth.Actor{ID: inspected.BuyerID, Kind: enums.ActorKindBuyer}
	_, err = h.svc.Create(ctx, buyer, CreateInput{ReturnID: inspected.ID, AmountPaise: 100})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	refund, err := h.svc.Create(ctx, h.admin, CreateInput{ReturnID: inspected.ID, AmountPaise: 1180})
	require.NoError(t, err)
	assert.Equal(t, "REF-2026-00001", refund.RefundNumber)
	assert.Equal(t, enums.RefundStatusPending, refund.Status)
	assert.Equal(t, inspected.UnitID, refund.UnitID)

	_, err = h.svc.Create(ctx, h.admin, CreateInput{ReturnID: inspected.ID, AmountPaise: 10})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestProcessCompletesThroughGateway(t *testing.T) {
	gateway := &gatewayStub{}
	h := newHarness(t, gateway)
	order, req, refund := h.initiated(t, 1000)
	variant := req.Items[0].VariantID
	before := h.stock(t, variant)

	done, err := h.svc.Process(context.Background(), h.admin, refund.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.RefundStatusCompleted, done.Status)
	require.NotNil(t, done.ProcessedAt)
	require.NotNil(t, done.GatewayRefundID)
	assert.Equal(t, "sq_"+refund.RefundNumber, *done.GatewayRefundID)
	assert.Equal(t, 1, done.Attempts)
	assert.Equal(t, before+1, h.stock(t, variant))

	require.Len(t, gateway.calls, 1)
	assert.Equal(t, "pay_"+order.OrderNumber, gateway.calls[0].PaymentID)
	assert.Equal(t, int64(1000), gateway.calls[0].AmountPaise)
	assert.Equal(t, refund.RefundNumber, gateway.calls[0].IdempotencyKey)
	assert.Equal(t, "INR", gateway.calls[0].Currency)
}

func TestProcessRecordsGatewayFailureAndRetries(t *testing.T) {
	gateway := &gatewayStub{err: errors.New("card account closed")}
	h := newHarness(t, gateway)
	_, req, refund := h.initiated(t, 1180)
	ctx := context.Background()
	before := h.stock(t, req.Items[0].VariantID)

	failed, err := h.svc.Process(ctx, h.admin, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Contains(t, *failed.FailureReason, "card account closed")
	assert.Nil(t, failed.ProcessedAt)
	assert.Equal(t, before, h.stock(t, req.Items[0].VariantID))

	gateway.err = nil
	_, err = h.svc.Transition(ctx, h.admin, refund.ID, TransitionInput{To: enums.RefundStatusInitiated})
	require.NoError(t, err)
	done, err := h.svc.Process(ctx, h.admin, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusCompleted, done.Status)
	assert.Equal(t, 2, done.Attempts)
	assert.Len(t, gateway.calls, 2)
}

func TestProcessWithoutGatewaySettlesDirectly(t *testing.T) {
	h := newHarness(t, nil)
	_, _, refund := h.initiated(t, 500)

	done, err := h.svc.Process(context.Background(), auth.SystemActor, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusCompleted, done.Status)
	assert.Nil(t, done.GatewayRefundID)
}

func TestProcessRequiresInitiated(t *testing.T) {
	h := newHarness(t, &gatewayStub{})
	ctx := context.Background()
	_, req := h.seedReturn(t, enums.ReturnStatusCompleted)
	refund, err := h.svc.Create(ctx, h.admin, CreateInput{ReturnID: req.ID, AmountPaise: 100})
	require.NoError(t, err)

	_, err = h.svc.Process(ctx, h.admin, refund.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot transition from PENDING to PROCESSING")

	buyer := auth.Actor{ID: req.BuyerID, Kind: enums.ActorKindBuyer}
	_, err = h.svc.Process(ctx, buyer, refund.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestTransitionRules(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, req := h.seedReturn(t, enums.ReturnStatusInspected)
	refund, err := h.svc.Create(ctx, h.admin, CreateInput{ReturnID: req.ID, AmountPaise: 100})
	require.NoError(t, err)

	_, err = h.svc.Transition(ctx, h.admin, refund.ID, TransitionInput{To: enums.RefundStatusCompleted})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.Transition(ctx, h.admin, refund.ID, TransitionInput{To: enums.RefundStatusFailed})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	cancelled, err := h.svc.Transition(ctx, h.admin, refund.ID, TransitionInput{To: enums.RefundStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusCancelled, cancelled.Status)

	var events int64
	require.NoError(t, h.conn.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventRefundStatusChanged).Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestProcessInitiatedDrainsQueue(t *testing.T) {
	h := newHarness(t, &gatewayStub{})
	_, _, first := h.initiated(t, 100)
	_, _, second := h.initiated(t, 200)

	n, err := h.svc.ProcessInitiated(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		got, err := h.svc.Get(context.Background(), h.admin, id)
		require.NoError(t, err)
		assert.Equal(t, enums.RefundStatusCompleted, got.Status)
	}
}

func TestReconcileSettlesRefundLeftProcessing(t *testing.T) {
	gateway := &gatewayStub{}
	h := newHarness(t, gateway)
	ctx := context.Background()
	_, req, refund := h.initiated(t, 1180)
	variant := req.Items[0].VariantID
	before := h.stock(t, variant)

	// The outcome write fails after the gateway accepted the refund.
	gateway.onCall = func() {
		require.NoError(t, h.conn.DB().Migrator().RenameTable("outbox_events", "outbox_events_hold"))
	}
	_, err := h.svc.Process(ctx, h.admin, refund.ID)
	require.Error(t, err)
	gateway.onCall = nil
	require.NoError(t, h.conn.DB().Migrator().RenameTable("outbox_events_hold", "outbox_events"))

	stuck, err := h.svc.repo.Find(ctx, refund.ID)
	require.NoError(t, err)
	require.Equal(t, enums.RefundStatusProcessing, stuck.Status)

	settled, err := h.svc.ReconcileProcessing(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, settled, "recent PROCESSING refunds are left alone")

	h.clock = fixedNow.Add(time.Hour)
	settled, err = h.svc.ReconcileProcessing(ctx, 15*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	got, err := h.svc.repo.Find(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RefundStatusCompleted, got.Status)
	require.Len(t, gateway.calls, 2)
	assert.Equal(t, gateway.calls[0].IdempotencyKey, gateway.calls[1].IdempotencyKey)
	assert.Equal(t, before+1, h.stock(t, variant))
}

func TestGetAuthorizesBuyer(t *testing.T) {
	h := newHarness(t, nil)
	_, req, refund := h.initiated(t, 100)
	ctx := context.Background()

	_, err := h.svc.Get(ctx, auth.Actor{ID: req.BuyerID, Kind: enums.ActorKindBuyer}, refund.ID)
	require.NoError(t, err)
	_, err = h.svc.Get(ctx, auth.Actor{ID: uuid.New(), Kind: enums.ActorKindBuyer}, refund.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
