package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const defaultUnpaidOrderTTL = 24 * time.Hour

type unpaidOrderReader interface {
	ListUnpaidOnlineOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AggregateOrder, error)
}

type unpaidOrderExpirer interface {
	ExpireUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type UnpaidOrderJobParams struct {
	Logger    *logger.Logger
	Orders    unpaidOrderReader
	Payments  unpaidOrderExpirer
	TTL       time.Duration
	BatchSize int
}

// NewUnpaidOrderJob expires ONLINE orders whose payment never arrived,
// returning their stock and coupon usage.
func NewUnpaidOrderJob(params UnpaidOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if params.TTL <= 0 {
		params.TTL = defaultUnpaidOrderTTL
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	return &unpaidOrderJob{
		logg:      params.Logger,
		orders:    params.Orders,
		payments:  params.Payments,
		ttl:       params.TTL,
		batchSize: params.BatchSize,
		now:       time.Now,
	}, nil
}

type unpaidOrderJob struct {
	logg      *logger.Logger
	orders    unpaidOrderReader
	payments  unpaidOrderExpirer
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func (j *unpaidOrderJob) Name() string { return "unpaid-order-expiry" }

func (j *unpaidOrderJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	orders, err := j.orders.ListUnpaidOnlineOrdersBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query unpaid orders: %w", err)
	}
	var errs error
	expired := 0
	for _, order := range orders {
		ok, err := j.payments.ExpireUnpaid(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.OrderNumber, err))
			continue
		}
		if ok {
			expired++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(orders),
		"expired":    expired,
	})
	j.logg.Info(logCtx, "unpaid order expiry loop complete")
	return errs
}
