package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const day = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PruneFunc deletes rows older than cutoff and reports how many went.
type PruneFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionPolicy names one table and how long its rows are kept.
type RetentionPolicy struct {
	Table string
	Keep  time.Duration
	Prune PruneFunc
}

type RetentionJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Policies []RetentionPolicy
}

// NewRetentionJob prunes each table in its own transaction so one slow or
// failing table does not hold back the others.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	for _, p := range params.Policies {
		if p.Table == "" || p.Prune == nil || p.Keep <= 0 {
			return nil, fmt.Errorf("retention policy %q is incomplete", p.Table)
		}
	}
	return &retentionJob{
		logg:     params.Logger,
		db:       params.DB,
		policies: params.Policies,
		now:      time.Now,
	}, nil
}

// OutboxRetention keeps delivered and parked outbox rows for days. parkedAt
// is the attempt ceiling the publisher parks rows at.
func OutboxRetention(days, parkedAt int, prune func(context.Context, *gorm.DB, time.Time, int) (int64, error)) RetentionPolicy {
	return RetentionPolicy{
		Table: "outbox_events",
		Keep:  time.Duration(days) * day,
		Prune: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return prune(ctx, tx, cutoff, parkedAt)
		},
	}
}

type retentionJob struct {
	logg     *logger.Logger
	db       txRunner
	policies []RetentionPolicy
	now      func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	deleted := make(map[string]any, len(j.policies))
	var errs error
	for _, p := range j.policies {
		cutoff := now.Add(-p.Keep)
		var rows int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := p.Prune(ctx, tx, cutoff)
			rows = n
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune %s: %w", p.Table, err))
			continue
		}
		deleted[p.Table] = rows
	}
	j.logg.Info(j.logg.WithField(ctx, "deleted", deleted), "retention.pruned")
	return errs
}
