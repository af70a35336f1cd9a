package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type invoiceBacklog interface {
	ListUnitsMissingInvoice(ctx context.Context, limit int) ([]models.FulfillmentUnit, error)
}

type invoiceGenerator interface {
	GenerateForUnit(ctx context.Context, unitID uuid.UUID) (*models.Invoice, error)
}

type InvoiceBackfillJobParams struct {
	Logger    *logger.Logger
	Units     invoiceBacklog
	Invoices  invoiceGenerator
	BatchSize int
}

// NewInvoiceBackfillJob issues invoices for confirmed units the post-confirm hook missed.
func NewInvoiceBackfillJob(params InvoiceBackfillJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Units == nil {
		return nil, fmt.Errorf("unit repository required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	return &invoiceBackfillJob{
		logg:      params.Logger,
		units:     params.Units,
		invoices:  params.Invoices,
		batchSize: params.BatchSize,
	}, nil
}

type invoiceBackfillJob struct {
	logg      *logger.Logger
	units     invoiceBacklog
	invoices  invoiceGenerator
	batchSize int
}

func (j *invoiceBackfillJob) Name() string { return "invoice-backfill" }

func (j *invoiceBackfillJob) Run(ctx context.Context) error {
	units, err := j.units.ListUnitsMissingInvoice(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("query units missing invoice: %w", err)
	}
	var errs error
	issued := 0
	for _, unit := range units {
		if _, err := j.invoices.GenerateForUnit(ctx, unit.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unit %s: %w", unit.UnitNumber, err))
			continue
		}
		issued++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(units),
		"issued":     issued,
	})
	j.logg.Info(logCtx, "invoice backfill loop complete")
	return errs
}
