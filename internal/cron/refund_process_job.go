package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const defaultRefundStaleAfter = 15 * time.Minute

type refundProcessor interface {
	ProcessInitiated(ctx context.Context, limit int) (int, error)
	ReconcileProcessing(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

type RefundProcessJobParams struct {
	Logger     *logger.Logger
	Refunds    refundProcessor
	BatchSize  int
	StaleAfter time.Duration
}

// NewRefundProcessJob pushes INITIATED refunds through the payment gateway and
// settles refunds whose gateway outcome was never recorded.
func NewRefundProcessJob(params RefundProcessJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	if params.StaleAfter <= 0 {
		params.StaleAfter = defaultRefundStaleAfter
	}
	return &refundProcessJob{
		logg:       params.Logger,
		refunds:    params.Refunds,
		batchSize:  params.BatchSize,
		staleAfter: params.StaleAfter,
	}, nil
}

type refundProcessJob struct {
	logg       *logger.Logger
	refunds    refundProcessor
	batchSize  int
	staleAfter time.Duration
}

func (j *refundProcessJob) Name() string { return "refund-process" }

func (j *refundProcessJob) Run(ctx context.Context) error {
	var errs error
	processed, err := j.refunds.ProcessInitiated(ctx, j.batchSize)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("process refunds: %w", err))
	}
	reconciled, err := j.refunds.ReconcileProcessing(ctx, j.staleAfter, j.batchSize)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("reconcile processing refunds: %w", err))
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"processed":  processed,
		"reconciled": reconciled,
	}), "refund processing loop complete")
	return errs
}
