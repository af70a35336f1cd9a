package shipping

import (
	"context"
	"fmt"
	"slices"
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
)

type unitAdvancer interface {
	AdvanceToTx(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, target enums.FulfillmentStatus) ([]enums.FulfillmentStatus, error)
	RunConfirmHooks(ctx context.Context, unitIDs []uuid.UUID)
}

// TrackingUpdate is the carrier's status callback.
type TrackingUpdate struct {
	AWBNumber string    `json:"awb_number" validate:"required"`
	Status    string    `json:"status" validate:"required"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Remarks   string    `json:"remarks"`
}

// Outcome describes what a tracking update did.
type Outcome string

const (
	OutcomeAdvanced      Outcome = "advanced"
	OutcomeRecorded      Outcome = "recorded"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeUnmatched     Outcome = "unmatched"
	OutcomeUnknownStatus Outcome = "unknown_status"
)

// carrier vocabulary → unit status
var carrierStatuses = map[string]enums.FulfillmentStatus{
	"PICKED_UP":        enums.FulfillmentStatusShipped,
	"SHIPPED":          enums.FulfillmentStatusShipped,
	"IN_TRANSIT":       enums.FulfillmentStatusShipped,
	"OUT_FOR_DELIVERY": enums.FulfillmentStatusOutForDelivery,
	"DELIVERED":        enums.FulfillmentStatusDelivered,
}

// MapCarrierStatus normalises a carrier status into a unit status.
func MapCarrierStatus(raw string) (enums.FulfillmentStatus, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	status, ok := carrierStatuses[key]
	return status, ok
}

// Tracker applies carrier tracking callbacks to fulfillment units.
type Tracker struct {
	db       txRunner
	repo     *Repository
	units    *fulfillment.Repository
	advancer unitAdvancer
	logg     *logger.Logger
	metrics  *metrics.FulfillmentMetrics
}

func NewTracker(db txRunner, repo *Repository, units *fulfillment.Repository, advancer unitAdvancer, logg *logger.Logger, m *metrics.FulfillmentMetrics) (*Tracker, error) {
	if db == nil || repo == nil || units == nil || advancer == nil {
		return nil, fmt.Errorf("transaction runner, tracking repository, unit repository and advancer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Tracker{db: db, repo: repo, units: units, advancer: advancer, logg: logg, metrics: m}, nil
}

// Apply records the update and moves the unit forward. Unknown AWBs and
// statuses are acknowledged without error so the carrier stops retrying.
func (t *Tracker) Apply(ctx context.Context, update TrackingUpdate) (Outcome, error) {
	outcome, err := t.apply(ctx, update)
	if err != nil {
		t.metrics.IncWebhook("carrier", "error")
		return outcome, err
	}
	t.metrics.IncWebhook("carrier", string(outcome))
	return outcome, nil
}

func (t *Tracker) apply(ctx context.Context, update TrackingUpdate) (Outcome, error) {
	awb := strings.TrimSpace(update.AWBNumber)
	if awb == "" || update.Timestamp.IsZero() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "awb_number and timestamp are required")
	}
	logCtx := t.logg.WithFields(ctx, map[string]any{"awb": awb, "carrier_status": update.Status})

	target, known := MapCarrierStatus(update.Status)
	unit, err := t.units.FindUnitByAWB(ctx, awb)
	if err != nil {
		return "", err
	}
	if unit == nil {
		t.logg.Warn(logCtx, "tracking update for unknown awb")
		return OutcomeUnmatched, nil
	}

	// The history row and the unit move commit together, so a failed move
	// leaves nothing behind that would dedupe the carrier's redelivery.
	var (
		outcome Outcome
		path    []enums.FulfillmentStatus
	)
	err = t.db.WithTx(ctx, func(tx *gorm.DB) error {
		inserted, err := t.repo.WithTx(tx).InsertTrackingEvent(ctx, &models.ShipmentTrackingEvent{
			ID:         uuid.New(),
			UnitID:     unit.ID,
			AWBNumber:  awb,
			Status:     strings.ToUpper(strings.TrimSpace(update.Status)),
			OccurredAt: update.Timestamp.UTC(),
			Location:   update.Location,
			Remarks:    update.Remarks,
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeDuplicate
			return nil
		}
		if !known {
			t.logg.Warn(logCtx, "unmapped carrier status recorded without transition")
			outcome = OutcomeUnknownStatus
			return nil
		}
		err = tx.Transaction(func(sp *gorm.DB) error {
			var err error
			path, err = t.advancer.AdvanceToTx(ctx, sp, unit.ID, target)
			return err
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// cancelled or returned units keep their status
			t.logg.Warn(logCtx, "tracking update does not apply to unit status")
			path = nil
			err = nil
		}
		if err != nil {
			return err
		}
		outcome = OutcomeRecorded
		if len(path) > 0 {
			outcome = OutcomeAdvanced
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if slices.Contains(path, enums.FulfillmentStatusConfirmed) {
		t.advancer.RunConfirmHooks(ctx, []uuid.UUID{unit.ID})
	}
	return outcome, nil
}
