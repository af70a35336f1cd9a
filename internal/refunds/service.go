package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/internal/sequence"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/square"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Gateway pushes money back to the buyer's original payment.
type Gateway interface {
	RefundPayment(ctx context.Context, params square.RefundParams) (*square.RefundResult, error)
}

type CreateInput struct {
	ReturnID    uuid.UUID `json:"return_id" validate:"required"`
	AmountPaise int64     `json:"amount" validate:"required,gt=0"`
}

type TransitionInput struct {
	To     enums.RefundStatus `json:"status" validate:"required"`
	Reason string             `json:"reason"`
}

type ServiceParams struct {
	DB        txRunner
	Repo      *Repository
	Returns   *returns.Repository
	Units     *fulfillment.Repository
	Inventory *inventory.Repository
	Sequences *sequence.Repository
	Outbox    outboxPublisher
	// Gateway is optional; without it refunds settle without a gateway call.
	Gateway  Gateway
	Logger   *logger.Logger
	Metrics  *metrics.FulfillmentMetrics
	Now      func() time.Time
	Currency string
}

// Service runs the refund state machine for inspected returns.
type Service struct {
	db        txRunner
	repo      *Repository
	returns   *returns.Repository
	units     *fulfillment.Repository
	inventory *inventory.Repository
	sequences *sequence.Repository
	outbox    outboxPublisher
	gateway   Gateway
	logg      *logger.Logger
	metrics   *metrics.FulfillmentMetrics
	now       func() time.Time
	currency  string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("refund repository required")
	case params.Returns == nil:
		return nil, fmt.Errorf("return repository required")
	case params.Units == nil:
		return nil, fmt.Errorf("fulfillment repository required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory repository required")
	case params.Sequences == nil:
		return nil, fmt.Errorf("sequence repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Currency == "" {
		params.Currency = "INR"
	}
	return &Service{
		db:        params.DB,
		repo:      params.Repo,
		returns:   params.Returns,
		units:     params.Units,
		inventory: params.Inventory,
		sequences: params.Sequences,
		outbox:    params.Outbox,
		gateway:   params.Gateway,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       params.Now,
		currency:  params.Currency,
	}, nil
}

// Create opens a PENDING refund against an inspected or completed return.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*models.Refund, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can create refunds")
	}
	if in.AmountPaise <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	var created *models.Refund
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		req, err := s.returns.WithTx(tx).Find(ctx, in.ReturnID)
		if err != nil {
			return err
		}
		if req.Status != enums.ReturnStatusInspected && req.Status != enums.ReturnStatusCompleted {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "return %s is %s; refunds need an inspected or completed return", req.ReturnNumber, req.Status)
		}
		if claimed := returns.ClaimedTotal(req); in.AmountPaise > claimed {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "refund %d exceeds claimed amount %d", in.AmountPaise, claimed)
		}

		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByReturn(ctx, req.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing refund")
		}
		if existing != nil {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "return %s already has refund %s", req.ReturnNumber, existing.RefundNumber)
		}
		open, err := repo.HasOpenForUnit(ctx, req.UnitID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check open refunds")
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeConflict, "unit already has a refund in progress")
		}

		now := s.now().UTC()
		seq, err := s.sequences.WithTx(tx).Next(ctx, sequence.Refunds, now.Year())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate refund number")
		}
		refund := &models.Refund{
			ID:           uuid.New(),
			RefundNumber: sequence.RefundNumber(now.Year(), seq),
			ReturnID:     req.ID,
			UnitID:       req.UnitID,
			OrderID:      req.OrderID,
			AmountPaise:  in.AmountPaise,
			Status:       enums.RefundStatusPending,
		}
		if err := repo.Create(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create refund")
		}
		created = refund
		return s.emit(ctx, tx, actor, refund, "", enums.RefundStatusPending, now)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Transition applies one admin-driven step. FAILED needs a reason and
// COMPLETED restocks the returned quantities.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, refundID uuid.UUID, in TransitionInput) (*models.Refund, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can update refunds")
	}
	if !in.To.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown refund status %q", in.To)
	}
	reason := strings.TrimSpace(in.Reason)
	if in.To == enums.RefundStatusFailed && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a failure reason is required")
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		refund, err := s.repo.WithTx(tx).Find(ctx, refundID)
		if err != nil {
			return err
		}
		return s.apply(ctx, tx, actor, refund, in.To, statusChange{
			FailureReason: reason,
			CountAttempt:  in.To == enums.RefundStatusProcessing,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, refundID)
}

// Process pushes an INITIATED refund through the gateway. The gateway call
// runs outside any transaction; its outcome lands as COMPLETED or FAILED.
func (s *Service) Process(ctx context.Context, actor auth.Actor, refundID uuid.UUID) (*models.Refund, error) {
	if !actor.IsAdmin() && !actor.IsSystem() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can process refunds")
	}

	var (
		refund     *models.Refund
		paymentRef string
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		refund, err = s.repo.WithTx(tx).Find(ctx, refundID)
		if err != nil {
			return err
		}
		if refund.Status != enums.RefundStatusInitiated {
			return pkgerrors.Transition(string(refund.Status), string(enums.RefundStatusProcessing))
		}
		order, err := s.units.WithTx(tx).FindOrder(ctx, refund.OrderID)
		if err != nil {
			return err
		}
		if order.PaymentRef != nil {
			paymentRef = *order.PaymentRef
		}
		return s.apply(ctx, tx, actor, refund, enums.RefundStatusProcessing, statusChange{CountAttempt: true})
	})
	if err != nil {
		return nil, err
	}
	if err := s.finish(ctx, actor, refund, paymentRef); err != nil {
		return nil, err
	}
	return s.repo.Find(ctx, refundID)
}

// finish calls the gateway for a PROCESSING refund and records the outcome.
// The gateway call is keyed by the refund number, so repeating it for the
// same refund never moves money twice.
func (s *Service) finish(ctx context.Context, actor auth.Actor, refund *models.Refund, paymentRef string) error {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_number": refund.RefundNumber,
		"amount_paise":  refund.AmountPaise,
	})
	change, to := s.settle(logCtx, refund, paymentRef)

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.apply(ctx, tx, actor, refund, to, change)
	})
	if err != nil {
		s.logg.Error(logCtx, "refund outcome not recorded; left in PROCESSING", err)
		return err
	}
	if to == enums.RefundStatusFailed {
		s.logg.Warn(s.logg.WithField(logCtx, "reason", change.FailureReason), "refund failed at gateway")
	} else {
		s.logg.Info(logCtx, "refund completed")
	}
	return nil
}

// ReconcileProcessing settles refunds stuck in PROCESSING since before
// staleAfter ago, which happens when the outcome of a gateway call could not
// be recorded. Used by the cron worker.
func (s *Service) ReconcileProcessing(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	stuck, err := s.repo.ListStale(ctx, enums.RefundStatusProcessing, s.now().UTC().Add(-staleAfter), limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	for i := range stuck {
		refund := &stuck[i]
		order, err := s.units.FindOrder(ctx, refund.OrderID)
		if err != nil {
			return settled, err
		}
		paymentRef := ""
		if order.PaymentRef != nil {
			paymentRef = *order.PaymentRef
		}
		if err := s.finish(ctx, auth.SystemActor, refund, paymentRef); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			return settled, err
		}
		settled++
	}
	return settled, nil
}

func (s *Service) settle(ctx context.Context, refund *models.Refund, paymentRef string) (statusChange, enums.RefundStatus) {
	// Cash-on-delivery orders and deployments without a gateway settle offline.
	if s.gateway == nil || strings.TrimSpace(paymentRef) == "" {
		return statusChange{}, enums.RefundStatusCompleted
	}
	result, err := s.gateway.RefundPayment(ctx, square.RefundParams{
		PaymentID:      paymentRef,
		AmountPaise:    refund.AmountPaise,
		Currency:       s.currency,
		Reason:         "return " + refund.RefundNumber,
		IdempotencyKey: refund.RefundNumber,
	})
	if err != nil {
		s.metrics.IncSideEffectFailure("refund_gateway")
		return statusChange{FailureReason: err.Error()}, enums.RefundStatusFailed
	}
	change := statusChange{}
	if result != nil {
		change.GatewayRefundID = result.ID
	}
	return change, enums.RefundStatusCompleted
}

// apply performs one guarded step inside tx.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, actor auth.Actor, refund *models.Refund, to enums.RefundStatus, change statusChange) error {
	from := refund.Status
	if !CanTransition(from, to) {
		return pkgerrors.Transition(string(from), string(to))
	}
	now := s.now().UTC()
	ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, refund.ID, from, to, now, change)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update refund status")
	}
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "refund %s is no longer %s", refund.RefundNumber, from).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	refund.Status = to

	if to == enums.RefundStatusCompleted {
		if err := s.restock(ctx, tx, refund.ReturnID); err != nil {
			return err
		}
	}
	s.metrics.IncTransition("refund", string(to))
	return s.emit(ctx, tx, actor, refund, from, to, now)
}

func (s *Service) restock(ctx context.Context, tx *gorm.DB, returnID uuid.UUID) error {
	req, err := s.returns.WithTx(tx).Find(ctx, returnID)
	if err != nil {
		return err
	}
	requests := make([]inventory.Request, 0, len(req.Items))
	for _, item := range req.Items {
		requests = append(requests, inventory.Request{VariantID: item.VariantID, Qty: item.Quantity})
	}
	return s.inventory.WithTx(tx).IncrementAll(ctx, requests)
}

// Get returns a refund to an admin or the buyer whose return it settles.
func (s *Service) Get(ctx context.Context, actor auth.Actor, refundID uuid.UUID) (*models.Refund, error) {
	refund, err := s.repo.Find(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return refund, nil
	}
	if actor.IsBuyer() {
		req, err := s.returns.Find(ctx, refund.ReturnID)
		if err != nil {
			return nil, err
		}
		if actor.Owns(enums.ActorKindBuyer, req.BuyerID) {
			return refund, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "refund not accessible")
}

// ProcessInitiated drains INITIATED refunds through Process. Used by the cron worker.
func (s *Service) ProcessInitiated(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListByStatus(ctx, enums.RefundStatusInitiated, limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, refund := range pending {
		if _, err := s.Process(ctx, auth.SystemActor, refund.ID); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, actor auth.Actor, refund *models.Refund, from, to enums.RefundStatus, at time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundStatusChanged,
		AggregateType: enums.AggregateRefund,
		AggregateID:   refund.ID,
		Actor:         &outbox.ActorRef{ID: actor.ID, Kind: string(actor.Kind)},
		Version:       1,
		OccurredAt:    at,
		Data: payloads.RefundStatusChangedEvent{
			RefundID:    refund.ID,
			ReturnID:    refund.ReturnID,
			AmountPaise: refund.AmountPaise,
			From:        from,
			To:          to,
		},
	})
}
