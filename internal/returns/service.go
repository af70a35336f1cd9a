package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/pricing"
	"github.com/angelmondragon/bazaar-backend/internal/sequence"
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

// unitReturner moves the owning unit to RETURNED when a return completes.
type unitReturner interface {
	MarkReturnedTx(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, actor auth.Actor) error
}

// ItemInput asks to send back quantity units of one ordered line.
type ItemInput struct {
	FulfillmentItemID uuid.UUID `json:"fulfillment_item_id" validate:"required"`
	Quantity          int       `json:"quantity" validate:"required,gt=0"`
}

type CreateInput struct {
	UnitID uuid.UUID   `json:"unit_id" validate:"required"`
	Reason string      `json:"reason" validate:"required"`
	Items  []ItemInput `json:"items" validate:"required,min=1,dive"`
}

type TransitionInput struct {
	To     enums.ReturnStatus `json:"status" validate:"required"`
	Reason string             `json:"reason"`
}

type ServiceParams struct {
	DB           txRunner
	Repo         *Repository
	Units        *fulfillment.Repository
	Fulfillment  unitReturner
	Sequences    *sequence.Repository
	Outbox       outboxPublisher
	Logger       *logger.Logger
	Metrics      *metrics.FulfillmentMetrics
	ReturnWindow time.Duration
	// Location decides which calendar day a delivery falls on. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// Service runs the post-delivery return workflow.
type Service struct {
	db          txRunner
	repo        *Repository
	units       *fulfillment.Repository
	fulfillment unitReturner
	sequences   *sequence.Repository
	outbox      outboxPublisher
	logg        *logger.Logger
	metrics     *metrics.FulfillmentMetrics
	window      time.Duration
	loc         *time.Location
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("return repository required")
	case params.Units == nil:
		return nil, fmt.Errorf("fulfillment repository required")
	case params.Fulfillment == nil:
		return nil, fmt.Errorf("fulfillment service required")
	case params.Sequences == nil:
		return nil, fmt.Errorf("sequence repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.ReturnWindow <= 0:
		return nil, fmt.Errorf("return window must be positive")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Location == nil {
		params.Location = time.UTC
	}
	return &Service{
		db:          params.DB,
		repo:        params.Repo,
		units:       params.Units,
		fulfillment: params.Fulfillment,
		sequences:   params.Sequences,
		outbox:      params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		window:      params.ReturnWindow,
		loc:         params.Location,
		now:         params.Now,
	}, nil
}

// Create opens a return for a delivered unit on behalf of the buyer who ordered it.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*models.ReturnRequest, error) {
	if !actor.IsBuyer() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can request returns")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if len(in.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	var created *models.ReturnRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		unitsRepo := s.units.WithTx(tx)
		unit, err := unitsRepo.FindUnit(ctx, in.UnitID)
		if err != nil {
			return err
		}
		order, err := unitsRepo.FindOrder(ctx, unit.OrderID)
		if err != nil {
			return err
		}
		if !actor.Owns(enums.ActorKindBuyer, order.BuyerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "unit belongs to another buyer")
		}
		if unit.Status != enums.FulfillmentStatusDelivered {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "unit %s is %s; only delivered units can be returned", unit.UnitNumber, unit.Status)
		}
		now := s.now().UTC()
		if unit.DeliveredAt == nil || !WindowOpen(*unit.DeliveredAt, now, s.window, s.loc) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "return window for unit %s has closed", unit.UnitNumber)
		}

		repo := s.repo.WithTx(tx)
		open, err := repo.HasOpenForUnit(ctx, unit.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open returns")
		}
		if open {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "unit %s already has an open return", unit.UnitNumber)
		}

		req := &models.ReturnRequest{
			ID:      uuid.New(),
			UnitID:  unit.ID,
			OrderID: order.ID,
			BuyerID: order.BuyerID,
			Reason:  reason,
			Status:  enums.ReturnStatusRequested,
		}
		req.Items, err = buildItems(req.ID, unit.Items, in.Items)
		if err != nil {
			return err
		}

		seq, err := s.sequences.WithTx(tx).Next(ctx, sequence.Returns, now.Year())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate return number")
		}
		req.ReturnNumber = sequence.ReturnNumber(now.Year(), seq)

		if err := repo.Create(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create return request")
		}
		if err := s.emit(ctx, tx, actor, req, "", enums.ReturnStatusRequested, now); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"return_number": created.ReturnNumber,
		"unit_id":       created.UnitID.String(),
	})
	s.logg.Info(logCtx, "return requested")
	return created, nil
}

// buildItems validates requested quantities against the ordered lines and
// prices each claim as the same share of the line total.
func buildItems(returnID uuid.UUID, ordered []models.FulfillmentItem, requested []ItemInput) ([]models.ReturnItem, error) {
	byID := make(map[uuid.UUID]models.FulfillmentItem, len(ordered))
	for _, item := range ordered {
		byID[item.ID] = item
	}
	asked := make(map[uuid.UUID]int, len(requested))
	order := make([]uuid.UUID, 0, len(requested))
	for _, in := range requested {
		if in.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "return quantity must be positive").
				WithDetails(map[string]any{"fulfillment_item_id": in.FulfillmentItemID})
		}
		if _, ok := byID[in.FulfillmentItemID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item does not belong to this unit").
				WithDetails(map[string]any{"fulfillment_item_id": in.FulfillmentItemID})
		}
		if _, seen := asked[in.FulfillmentItemID]; !seen {
			order = append(order, in.FulfillmentItemID)
		}
		asked[in.FulfillmentItemID] += in.Quantity
	}

	items := make([]models.ReturnItem, 0, len(order))
	for _, id := range order {
		line := byID[id]
		qty := asked[id]
		if qty > line.Quantity {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "cannot return %d of %q; %d ordered", qty, line.ProductName, line.Quantity).
				WithDetails(map[string]any{"fulfillment_item_id": id})
		}
		items = append(items, models.ReturnItem{
			ID:                 uuid.New(),
			ReturnID:           returnID,
			FulfillmentItemID:  id,
			VariantID:          line.VariantID,
			Quantity:           qty,
			ClaimedRefundPaise: ClaimFor(line, qty),
		})
	}
	return items, nil
}

// ClaimFor prices qty units of a line at its effective (discounted, taxed) unit price.
func ClaimFor(line models.FulfillmentItem, qty int) int64 {
	if qty >= line.Quantity {
		return line.LineTotalPaise
	}
	return pricing.RoundPaise(
		decimal.NewFromInt(line.LineTotalPaise).
			Mul(decimal.NewFromInt(int64(qty))).
			Div(decimal.NewFromInt(int64(line.Quantity))),
	)
}

// ClaimedTotal sums the per-item claims of a return.
func ClaimedTotal(req *models.ReturnRequest) int64 {
	var total int64
	for _, item := range req.Items {
		total += item.ClaimedRefundPaise
	}
	return total
}

// Transition applies one step of the return workflow. Buyers may only cancel
// their own returns; the unit's seller and admins drive everything else.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, returnID uuid.UUID, in TransitionInput) (*models.ReturnRequest, error) {
	if !in.To.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown return status %q", in.To)
	}
	reason := strings.TrimSpace(in.Reason)
	if in.To == enums.ReturnStatusRejected && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a rejection reason is required")
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.Find(ctx, returnID)
		if err != nil {
			return err
		}
		if err := s.authorizeTransition(ctx, tx, actor, req, in.To); err != nil {
			return err
		}
		from := req.Status
		if !CanTransition(from, in.To) {
			return pkgerrors.Transition(string(from), string(in.To))
		}
		now := s.now().UTC()
		ok, err := repo.UpdateStatus(ctx, req.ID, from, in.To, now, reason)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update return status")
		}
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "return %s is no longer %s", req.ReturnNumber, from).
				WithDetails(map[string]any{"from": from, "to": in.To})
		}
		if in.To == enums.ReturnStatusCompleted {
			if err := s.fulfillment.MarkReturnedTx(ctx, tx, req.UnitID, actor); err != nil {
				return err
			}
		}
		s.metrics.IncTransition("return", string(in.To))
		return s.emit(ctx, tx, actor, req, from, in.To, now)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, returnID)
}

func (s *Service) authorizeTransition(ctx context.Context, tx *gorm.DB, actor auth.Actor, req *models.ReturnRequest, to enums.ReturnStatus) error {
	if actor.IsAdmin() {
		return nil
	}
	if to == enums.ReturnStatusCancelled {
		if actor.Owns(enums.ActorKindBuyer, req.BuyerID) {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer or an admin can cancel a return")
	}
	if actor.IsSeller() {
		unit, err := s.units.WithTx(tx).FindUnit(ctx, req.UnitID)
		if err != nil {
			return err
		}
		if actor.Owns(enums.ActorKindSeller, unit.SellerID) {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "only the unit's seller or an admin can update a return")
}

// Get returns a return to its buyer, the unit's seller or an admin.
func (s *Service) Get(ctx context.Context, actor auth.Actor, returnID uuid.UUID) (*models.ReturnRequest, error) {
	req, err := s.repo.Find(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || actor.Owns(enums.ActorKindBuyer, req.BuyerID) {
		return req, nil
	}
	if actor.IsSeller() {
		unit, err := s.units.FindUnit(ctx, req.UnitID)
		if err != nil {
			return nil, err
		}
		if actor.Owns(enums.ActorKindSeller, unit.SellerID) {
			return req, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "return not accessible")
}

// List returns one page of the buyer's own returns or the returns against a seller's units.
func (s *Service) List(ctx context.Context, actor auth.Actor, params pagination.Params) ([]models.ReturnRequest, string, error) {
	if !actor.IsBuyer() && !actor.IsSeller() {
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "only buyers and sellers list returns")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.LimitWithBuffer(params.Limit)
	var reqs []models.ReturnRequest
	if actor.IsBuyer() {
		reqs, err = s.repo.ListForBuyer(ctx, actor.ID, cursor, limit)
	} else {
		reqs, err = s.repo.ListForSeller(ctx, actor.ID, cursor, limit)
	}
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list returns")
	}
	reqs, next := pagination.Trim(reqs, params.Limit, func(r models.ReturnRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return reqs, next, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, actor auth.Actor, req *models.ReturnRequest, from, to enums.ReturnStatus, at time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReturnStatusChanged,
		AggregateType: enums.AggregateReturnRequest,
		AggregateID:   req.ID,
		Actor:         &outbox.ActorRef{ID: actor.ID, Kind: string(actor.Kind)},
		Version:       1,
		OccurredAt:    at,
		Data: payloads.ReturnStatusChangedEvent{
			ReturnID: req.ID,
			UnitID:   req.UnitID,
			From:     from,
			To:       to,
		},
	})
}

// WindowOpen reports whether now falls on or before the last day of the
// return window. Days are calendar days in loc; window is rounded down to
// whole days.
func WindowOpen(deliveredAt, now time.Time, window time.Duration, loc *time.Location) bool {
	days := int(window / (24 * time.Hour))
	last := calendarDay(deliveredAt.In(loc)).AddDate(0, 0, days)
	return !calendarDay(now.In(loc)).After(last)
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
