package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderFulfillment is the slice of the fulfillment service a payment drives.
type orderFulfillment interface {
	ConfirmPendingUnitsTx(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder) ([]uuid.UUID, error)
	CancelOpenUnitsTx(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder, reason string) ([]uuid.UUID, error)
	RunConfirmHooks(ctx context.Context, unitIDs []uuid.UUID)
}

// Event is the gateway webhook body.
type Event struct {
	EventID string  `json:"event_id" validate:"required"`
	Event   string  `json:"event" validate:"required"`
	Payload Payload `json:"payload"`
}

type Payload struct {
	OrderRef         string `json:"order_ref" validate:"required"`
	PaymentRef       string `json:"payment_ref"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// Outcome reports what applying an event did.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

const (
	statusCaptured = "captured"
	statusFailed   = "failed"
)

type ServiceParams struct {
	DB          txRunner
	Repo        *Repository
	Orders      *fulfillment.Repository
	Fulfillment orderFulfillment
	Outbox      outboxPublisher
	Logger      *logger.Logger
	Metrics     *metrics.FulfillmentMetrics
	Now         func() time.Time
	Currency    string
}

// Service applies payment gateway webhooks to aggregate orders.
type Service struct {
	db          txRunner
	repo        *Repository
	orders      *fulfillment.Repository
	fulfillment orderFulfillment
	outbox      outboxPublisher
	logg        *logger.Logger
	metrics     *metrics.FulfillmentMetrics
	now         func() time.Time
	currency    string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("payment repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order repository required")
	case params.Fulfillment == nil:
		return nil, fmt.Errorf("fulfillment service required")
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
		db:          params.DB,
		repo:        params.Repo,
		orders:      params.Orders,
		fulfillment: params.Fulfillment,
		outbox:      params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         params.Now,
		currency:    params.Currency,
	}, nil
}

// Status resolves the payment status from the payload, falling back to the event name suffix.
func (e Event) Status() string {
	if status := strings.ToLower(strings.TrimSpace(e.Payload.Status)); status != "" {
		return status
	}
	name := strings.ToLower(strings.TrimSpace(e.Event))
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Apply processes one gateway event. A replayed event id is a no-op. Errors
// mean the event could not be applied and nothing was written.
func (s *Service) Apply(ctx context.Context, ev Event) (Outcome, error) {
	outcome, err := s.apply(ctx, ev)
	if err != nil {
		s.metrics.IncWebhook(string(enums.WebhookSourcePayments), "rejected")
		return "", err
	}
	s.metrics.IncWebhook(string(enums.WebhookSourcePayments), string(outcome))
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, ev Event) (Outcome, error) {
	eventID := strings.TrimSpace(ev.EventID)
	if eventID == "" || strings.TrimSpace(ev.Payload.OrderRef) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event_id and payload.order_ref are required")
	}
	status := ev.Status()
	if status != statusCaptured && status != statusFailed {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment status %q", status)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":  eventID,
		"order_ref": ev.Payload.OrderRef,
		"status":    status,
	})

	var (
		outcome   Outcome
		confirmed []uuid.UUID
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		order, err := ordersRepo.FindOrderByNumber(ctx, strings.TrimSpace(ev.Payload.OrderRef))
		if err != nil {
			return err
		}

		inserted, err := s.repo.WithTx(tx).InsertEvent(ctx, &models.PaymentEvent{
			ID:              uuid.New(),
			ProviderEventID: eventID,
			OrderID:         &order.ID,
			OrderRef:        ev.Payload.OrderRef,
			PaymentRef:      ev.Payload.PaymentRef,
			Status:          status,
			AmountPaise:     ev.Payload.Amount,
			Currency:        ev.Payload.Currency,
			Outcome:         "pending",
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeDuplicate
			return nil
		}

		if order.PaymentMethod != enums.PaymentMethodOnline {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "order %s is not paid online", order.OrderNumber)
		}
		switch status {
		case statusCaptured:
			if ev.Payload.Amount != order.FinalAmountPaise {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "captured amount %d does not match order total %d", ev.Payload.Amount, order.FinalAmountPaise)
			}
			if cur := strings.TrimSpace(ev.Payload.Currency); cur != "" && !strings.EqualFold(cur, order.Currency) {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "currency %s does not match order currency %s", cur, order.Currency)
			}
			outcome, confirmed, err = s.capture(ctx, tx, order, ev)
		case statusFailed:
			outcome, err = s.fail(ctx, tx, order, ev)
		}
		if err != nil {
			return err
		}
		return s.repo.WithTx(tx).UpdateOutcome(ctx, eventID, string(outcome))
	})
	if err != nil {
		return "", err
	}

	s.logg.Info(s.logg.WithField(logCtx, "outcome", string(outcome)), "payment webhook applied")
	if len(confirmed) > 0 {
		s.fulfillment.RunConfirmHooks(ctx, confirmed)
	}
	return outcome, nil
}

// ExpireUnpaid fails the payment of an ONLINE order that never got a capture
// and cancels its open units. It reports false when the order moved on meanwhile.
func (s *Service) ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var outcome Outcome
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.WithTx(tx).FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentMethod != enums.PaymentMethodOnline || order.PaymentStatus != enums.PaymentStatusPending {
			outcome = OutcomeIgnored
			return nil
		}
		outcome, err = s.fail(ctx, tx, order, Event{
			Event:   "payment.expired",
			Payload: Payload{OrderRef: order.OrderNumber, ErrorCode: "EXPIRED", ErrorDescription: "payment window expired"},
		})
		return err
	})
	if err != nil {
		return false, err
	}
	return outcome == OutcomeFailed, nil
}

func (s *Service) capture(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder, ev Event) (Outcome, []uuid.UUID, error) {
	moved, err := s.orders.WithTx(tx).UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusPaid, ev.Payload.PaymentRef, s.now().UTC())
	if err != nil {
		return "", nil, err
	}
	if !moved {
		return OutcomeIgnored, nil, nil
	}
	confirmed, err := s.fulfillment.ConfirmPendingUnitsTx(ctx, tx, order)
	if err != nil {
		return "", nil, err
	}
	if err := s.emit(ctx, tx, order, enums.EventPaymentConfirmed, enums.PaymentStatusPaid, ev); err != nil {
		return "", nil, err
	}
	return OutcomeConfirmed, confirmed, nil
}

func (s *Service) fail(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder, ev Event) (Outcome, error) {
	moved, err := s.orders.WithTx(tx).UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed, ev.Payload.PaymentRef, s.now().UTC())
	if err != nil {
		return "", err
	}
	if !moved {
		return OutcomeIgnored, nil
	}
	reason := "payment failed"
	if ev.Payload.ErrorDescription != "" {
		reason = "payment failed: " + ev.Payload.ErrorDescription
	}
	if _, err := s.fulfillment.CancelOpenUnitsTx(ctx, tx, order, reason); err != nil {
		return "", err
	}
	if err := s.emit(ctx, tx, order, enums.EventPaymentFailed, enums.PaymentStatusFailed, ev); err != nil {
		return "", err
	}
	return OutcomeFailed, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, order *models.AggregateOrder, eventType enums.OutboxEventType, status enums.PaymentStatus, ev Event) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{Kind: string(enums.ActorKindSystem)},
		OccurredAt:    s.now().UTC(),
		Data: payloads.PaymentStatusEvent{
			OrderID:     order.ID,
			Status:      status,
			PaymentRef:  ev.Payload.PaymentRef,
			AmountPaise: ev.Payload.Amount,
			ErrorCode:   ev.Payload.ErrorCode,
		},
		Version: 1,
	})
}
