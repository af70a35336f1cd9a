package fulfillment

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type couponReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// ConfirmHook is a best-effort side effect run after a unit commits as CONFIRMED.
// Failures are logged and left for the cron retry.
type ConfirmHook struct {
	Name string
	Run  func(ctx context.Context, unitID uuid.UUID) error
}

type ServiceParams struct {
	DB        txRunner
	Repo      *Repository
	Inventory *inventory.Repository
	Coupons   couponReleaser
	Outbox    outboxPublisher
	Hooks     []ConfirmHook
	Logger    *logger.Logger
	Metrics   *metrics.FulfillmentMetrics
	Now       func() time.Time
}

// Service drives the per-seller fulfillment state machine and keeps the
// aggregate order status in step with its units.
type Service struct {
	db        txRunner
	repo      *Repository
	inventory *inventory.Repository
	coupons   couponReleaser
	outbox    outboxPublisher
	hooks     []ConfirmHook
	logg      *logger.Logger
	metrics   *metrics.FulfillmentMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("fulfillment repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon releaser required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		db:        params.DB,
		repo:      params.Repo,
		inventory: params.Inventory,
		coupons:   params.Coupons,
		outbox:    params.Outbox,
		hooks:     params.Hooks,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       params.Now,
	}, nil
}

// Transition applies one externally requested step. Sellers drive their own
// units; admins any unit. RETURNED is reserved for completed returns.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, unitID uuid.UUID, to enums.FulfillmentStatus) (*models.FulfillmentUnit, error) {
	if !to.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown fulfillment status %q", to)
	}
	if to == enums.FulfillmentStatusReturned {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "RETURNED is set by completing a return")
	}
	if !actor.IsAdmin() && !actor.IsSeller() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller or an admin can update a unit")
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		unit, err := s.repo.WithTx(tx).FindUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !actor.Owns(enums.ActorKindSeller, unit.SellerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "unit belongs to another seller")
		}
		if to == enums.FulfillmentStatusCancelled {
			return s.cancelSingleUnit(ctx, tx, unit, actor)
		}
		return s.apply(ctx, tx, unit, to, actor)
	})
	if err != nil {
		return nil, err
	}
	if to == enums.FulfillmentStatusConfirmed {
		s.RunConfirmHooks(ctx, []uuid.UUID{unitID})
	}
	return s.repo.FindUnit(ctx, unitID)
}

// AdvanceTo walks a unit forward along the happy path until it reaches
// target. A unit already at or past target is left alone and reported as
// unchanged.
func (s *Service) AdvanceTo(ctx context.Context, unitID uuid.UUID, target enums.FulfillmentStatus) (bool, error) {
	var path []enums.FulfillmentStatus
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		path, err = s.AdvanceToTx(ctx, tx, unitID, target)
		return err
	})
	if err != nil {
		return false, err
	}
	if slices.Contains(path, enums.FulfillmentStatusConfirmed) {
		s.RunConfirmHooks(ctx, []uuid.UUID{unitID})
	}
	return len(path) > 0, nil
}

// AdvanceToTx is AdvanceTo inside the caller's transaction. It returns the
// steps applied; callers run RunConfirmHooks after commit when they include
// CONFIRMED.
func (s *Service) AdvanceToTx(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, target enums.FulfillmentStatus) ([]enums.FulfillmentStatus, error) {
	unit, err := s.repo.WithTx(tx).FindUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	steps, ok := ForwardPath(unit.Status, target)
	if !ok {
		return nil, pkgerrors.Transition(string(unit.Status), string(target))
	}
	for _, step := range steps {
		if err := s.apply(ctx, tx, unit, step, auth.SystemActor); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

// CancelOrder cancels every unit of the order, restores stock and releases
// the coupon. Any unit past CONFIRMED blocks the whole cancellation.
func (s *Service) CancelOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.AggregateOrder, error) {
	if !actor.IsAdmin() && !actor.IsBuyer() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer or an admin can cancel an order")
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !actor.Owns(enums.ActorKindBuyer, order.BuyerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
		}
		for _, unit := range order.Units {
			if !Cancellable(unit.Status) {
				return pkgerrors.Transition(string(unit.Status), string(enums.FulfillmentStatusCancelled)).
					WithDetails(map[string]any{
						"from":        unit.Status,
						"to":          enums.FulfillmentStatusCancelled,
						"unit_number": unit.UnitNumber,
					})
			}
		}
		_, err = s.cancelUnits(ctx, tx, order, reason, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindOrder(ctx, orderID)
}

// CancelOpenUnitsTx cancels whatever is still cancellable in the order, used
// when payment fails. It returns the cancelled unit ids.
func (s *Service) CancelOpenUnitsTx(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder, reason string) ([]uuid.UUID, error) {
	return s.cancelUnits(ctx, tx, order, reason, auth.SystemActor)
}

func (s *Service) cancelUnits(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder, reason string, actor auth.Actor) ([]uuid.UUID, error) {
	var cancelled []uuid.UUID
	for i := range order.Units {
		unit := &order.Units[i]
		if !Cancellable(unit.Status) {
			continue
		}
		if err := s.cancelAndRestock(ctx, tx, unit, actor); err != nil {
			return nil, err
		}
		cancelled = append(cancelled, unit.ID)
	}
	if len(cancelled) == 0 {
		return nil, nil
	}
	return cancelled, s.closeOrder(ctx, tx, order, reason, actor)
}

// cancelSingleUnit cancels one unit on a seller or admin request. When it was
// the last open unit the order is closed the same way CancelOrder closes it.
func (s *Service) cancelSingleUnit(ctx context.Context, tx *gorm.DB, unit *models.FulfillmentUnit, actor auth.Actor) error {
	if err := s.cancelAndRestock(ctx, tx, unit, actor); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	status, err := repo.OrderStatus(ctx, unit.OrderID)
	if err != nil {
		return err
	}
	if status != enums.AggregateOrderStatusCancelled {
		return nil
	}
	order, err := repo.FindOrder(ctx, unit.OrderID)
	if err != nil {
		return err
	}
	return s.closeOrder(ctx, tx, order, "all units cancelled", actor)
}

// cancelAndRestock moves the unit to CANCELLED and returns its items to stock.
func (s *Service) cancelAndRestock(ctx context.Context, tx *gorm.DB, unit *models.FulfillmentUnit, actor auth.Actor) error {
	if err := s.apply(ctx, tx, unit, enums.FulfillmentStatusCancelled, actor); err != nil {
		return err
	}
	return s.inventory.WithTx(tx).IncrementAll(ctx, restockRequests(unit.Items))
}

// closeOrder releases the order's coupon and emits order.cancelled.
func (s *Service) closeOrder(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder, reason string, actor auth.Actor) error {
	if err := s.coupons.Release(ctx, tx, order.ID); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Version:       1,
		OccurredAt:    s.now().UTC(),
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			Reason:      strings.TrimSpace(reason),
			CancelledAt: s.now().UTC(),
		},
	})
}

// ConfirmPendingUnitsTx confirms every PENDING unit of the order inside the
// caller's transaction. Callers run RunConfirmHooks after commit.
func (s *Service) ConfirmPendingUnitsTx(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder) ([]uuid.UUID, error) {
	var confirmed []uuid.UUID
	for i := range order.Units {
		unit := &order.Units[i]
		if unit.Status != enums.FulfillmentStatusPending {
			continue
		}
		if err := s.apply(ctx, tx, unit, enums.FulfillmentStatusConfirmed, auth.SystemActor); err != nil {
			return nil, err
		}
		confirmed = append(confirmed, unit.ID)
	}
	return confirmed, nil
}

// MarkReturnedTx moves a delivered unit to RETURNED as part of completing a return.
func (s *Service) MarkReturnedTx(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, actor auth.Actor) error {
	unit, err := s.repo.WithTx(tx).FindUnit(ctx, unitID)
	if err != nil {
		return err
	}
	return s.apply(ctx, tx, unit, enums.FulfillmentStatusReturned, actor)
}

// RunConfirmHooks runs the post-commit side effects for each unit.
func (s *Service) RunConfirmHooks(ctx context.Context, unitIDs []uuid.UUID) {
	for _, unitID := range unitIDs {
		for _, hook := range s.hooks {
			if hook.Run == nil {
				continue
			}
			if err := hook.Run(ctx, unitID); err != nil {
				s.metrics.IncSideEffectFailure(hook.Name)
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"unit_id": unitID.String(),
					"effect":  hook.Name,
				})
				s.logg.Error(logCtx, "post-confirm side effect failed; left for retry", err)
			}
		}
	}
}

// GetOrder returns the order as the actor may see it. Sellers only see their own units.
func (s *Service) GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.AggregateOrder, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.IsAdmin():
		return order, nil
	case actor.Owns(enums.ActorKindBuyer, order.BuyerID):
		return order, nil
	case actor.IsSeller():
		own := make([]models.FulfillmentUnit, 0, len(order.Units))
		for _, unit := range order.Units {
			if unit.SellerID == actor.ID {
				own = append(own, unit)
			}
		}
		if len(own) > 0 {
			order.Units = own
			return order, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order not accessible")
}

// GetUnit returns a unit to its seller, the order's buyer or an admin.
func (s *Service) GetUnit(ctx context.Context, actor auth.Actor, unitID uuid.UUID) (*models.FulfillmentUnit, error) {
	unit, err := s.repo.FindUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || actor.Owns(enums.ActorKindSeller, unit.SellerID) {
		return unit, nil
	}
	if actor.IsBuyer() {
		order, err := s.repo.FindOrder(ctx, unit.OrderID)
		if err != nil {
			return nil, err
		}
		if actor.Owns(enums.ActorKindBuyer, order.BuyerID) {
			return unit, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unit not accessible")
}

// ListOrders returns one page of the buyer's own orders and the cursor for the next.
func (s *Service) ListOrders(ctx context.Context, actor auth.Actor, params pagination.Params) ([]models.AggregateOrder, string, error) {
	if !actor.IsBuyer() {
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "only buyers list orders")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	orders, err := s.repo.ListOrdersForBuyer(ctx, actor.ID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	orders, next := pagination.Trim(orders, params.Limit, func(o models.AggregateOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return orders, next, nil
}

// ListUnits returns one page of the seller's own units, optionally filtered by status.
func (s *Service) ListUnits(ctx context.Context, actor auth.Actor, status enums.FulfillmentStatus, params pagination.Params) ([]models.FulfillmentUnit, string, error) {
	if !actor.IsSeller() {
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "only sellers list units")
	}
	if status != "" && !status.IsValid() {
		return nil, "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown fulfillment status %q", status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	units, err := s.repo.ListUnitsForSeller(ctx, actor.ID, status, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list units")
	}
	units, next := pagination.Trim(units, params.Limit, func(u models.FulfillmentUnit) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})
	return units, next, nil
}

// apply performs one guarded step and recomputes the aggregate in the same transaction.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, unit *models.FulfillmentUnit, to enums.FulfillmentStatus, actor auth.Actor) error {
	from := unit.Status
	if !CanTransition(from, to) {
		return pkgerrors.Transition(string(from), string(to))
	}
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	ok, err := repo.UpdateUnitStatus(ctx, unit.ID, from, to, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update unit status")
	}
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "unit %s is no longer %s", unit.UnitNumber, from).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	unit.Status = to

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventUnitStatusChanged,
		AggregateType: enums.AggregateFulfillmentUnit,
		AggregateID:   unit.ID,
		Actor:         actorRef(actor),
		Version:       1,
		OccurredAt:    now,
		Data: payloads.UnitStatusChangedEvent{
			UnitID:   unit.ID,
			OrderID:  unit.OrderID,
			SellerID: unit.SellerID,
			From:     from,
			To:       to,
		},
	}); err != nil {
		return err
	}
	s.metrics.IncTransition("unit", string(to))
	return s.refreshOrderStatus(ctx, tx, unit.OrderID, actor, now)
}

func (s *Service) refreshOrderStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, actor auth.Actor, now time.Time) error {
	repo := s.repo.WithTx(tx)
	current, err := repo.OrderStatus(ctx, orderID)
	if err != nil {
		return err
	}
	statuses, err := repo.UnitStatuses(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load unit statuses")
	}
	derived := DeriveOrderStatus(statuses)
	if derived == current {
		return nil
	}
	if err := repo.UpdateOrderStatus(ctx, orderID, derived, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	s.metrics.IncTransition("order", string(derived))
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actorRef(actor),
		Version:       1,
		OccurredAt:    now,
		Data: payloads.OrderStatusChangedEvent{
			OrderID: orderID,
			From:    current,
			To:      derived,
		},
	})
}

func restockRequests(items []models.FulfillmentItem) []inventory.Request {
	out := make([]inventory.Request, 0, len(items))
	for _, item := range items {
		out = append(out, inventory.Request{VariantID: item.VariantID, ProductName: item.ProductName, Qty: item.Quantity})
	}
	return out
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{ID: actor.ID, Kind: string(actor.Kind)}
}
