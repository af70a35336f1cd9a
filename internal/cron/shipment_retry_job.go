package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	defaultShipmentMaxAttempts = 5
	defaultBatchSize           = 100
)

type shipmentBacklog interface {
	ListUnitsNeedingShipment(ctx context.Context, maxAttempts, limit int) ([]models.FulfillmentUnit, error)
}

type shipmentCreator interface {
	CreateForUnit(ctx context.Context, unitID uuid.UUID) error
}

type ShipmentRetryJobParams struct {
	Logger      *logger.Logger
	Units       shipmentBacklog
	Shipping    shipmentCreator
	MaxAttempts int
	BatchSize   int
}

// NewShipmentRetryJob retries carrier booking for confirmed units the
// post-confirm hook could not ship.
func NewShipmentRetryJob(params ShipmentRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Units == nil {
		return nil, fmt.Errorf("unit repository required")
	}
	if params.Shipping == nil {
		return nil, fmt.Errorf("shipping service required")
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = defaultShipmentMaxAttempts
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	return &shipmentRetryJob{
		logg:        params.Logger,
		units:       params.Units,
		shipping:    params.Shipping,
		maxAttempts: params.MaxAttempts,
		batchSize:   params.BatchSize,
	}, nil
}

type shipmentRetryJob struct {
	logg        *logger.Logger
	units       shipmentBacklog
	shipping    shipmentCreator
	maxAttempts int
	batchSize   int
}

func (j *shipmentRetryJob) Name() string { return "shipment-retry" }

func (j *shipmentRetryJob) Run(ctx context.Context) error {
	units, err := j.units.ListUnitsNeedingShipment(ctx, j.maxAttempts, j.batchSize)
	if err != nil {
		return fmt.Errorf("query units needing shipment: %w", err)
	}
	var errs error
	shipped := 0
	for _, unit := range units {
		if err := j.shipping.CreateForUnit(ctx, unit.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unit %s: %w", unit.UnitNumber, err))
			continue
		}
		shipped++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(units),
		"shipped":    shipped,
	})
	j.logg.Info(logCtx, "shipment retry loop complete")
	return errs
}
