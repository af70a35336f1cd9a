package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	publishTimeout      = 15 * time.Second
	maxErrorBackoff     = 10 * time.Second
	maxJitter           = 250 * time.Millisecond
)

type dbClient interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Sink is a message broker the publisher drains the outbox into.
type Sink interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, msg outbox.Message) error
}

type outboxRepository interface {
	ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(event models.OutboxEvent) (*registry.Resolved, error)
}

// Settings tune the drain loop.
type Settings struct {
	SinkName     string
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
}

func settingsFromConfig(cfg config.OutboxConfig) Settings {
	return Settings{
		SinkName:     cfg.Sink,
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
}

type ServiceParams struct {
	Settings   Settings
	Logger     *logger.Logger
	DB         dbClient
	Sink       Sink
	Repository outboxRepository
	Registry   resolver
	DLQ        dlqRepository
	Metrics    *metrics.OutboxMetrics
}

// Service relays committed outbox rows to the broker. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so replicas never publish the
// same row concurrently; delivery is at least once and consumers dedupe on
// the envelope event id.
type Service struct {
	settings Settings
	logg     *logger.Logger
	db       dbClient
	sink     Sink
	repo     outboxRepository
	registry resolver
	dlq      dlqRepository
	metrics  *metrics.OutboxMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("outbox publisher: logger required")
	case params.DB == nil:
		return nil, errors.New("outbox publisher: database required")
	case params.Sink == nil:
		return nil, errors.New("outbox publisher: sink required")
	case params.Repository == nil:
		return nil, errors.New("outbox publisher: repository required")
	case params.Registry == nil:
		return nil, errors.New("outbox publisher: registry required")
	case params.DLQ == nil:
		return nil, errors.New("outbox publisher: dlq repository required")
	}
	settings := params.Settings
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaultBatchSize
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = defaultMaxAttempts
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaultPollInterval
	}
	return &Service{
		settings: settings,
		logg:     params.Logger,
		db:       params.DB,
		sink:     params.Sink,
		repo:     params.Repository,
		registry: params.Registry,
		dlq:      params.DLQ,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

// Run drains until ctx ends. A full batch is followed immediately by the
// next one; a short batch waits one poll interval; a failed batch backs off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.sink.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping: %w", s.settings.SinkName, err)
	}

	backoff := s.settings.PollInterval
	for {
		handled, err := s.drainOnce(ctx)
		var wait time.Duration
		switch {
		case ctx.Err() != nil:
			s.logg.Info(ctx, "outbox publisher stopping")
			return ctx.Err()
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			backoff = min(backoff*2, maxErrorBackoff)
			wait = backoff
		case handled >= s.settings.BatchSize:
			backoff = s.settings.PollInterval
			continue
		default:
			backoff = s.settings.PollInterval
			wait = s.settings.PollInterval
		}
		if err := sleep(ctx, wait+rand.N(maxJitter)); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}
	}
}

// drainOnce claims one batch and settles every row in it. It returns how
// many rows it settled.
func (s *Service) drainOnce(ctx context.Context) (int, error) {
	start := s.now()
	handled := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.ClaimBatch(tx, s.settings.BatchSize, s.settings.MaxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		for _, event := range events {
			outcome, err := s.settle(ctx, tx, event)
			if err != nil {
				return err
			}
			s.metrics.Event(string(event.EventType), outcome)
			handled++
		}
		return nil
	})
	if handled > 0 {
		s.metrics.ObserveBatch(s.now().Sub(start))
	}
	return handled, err
}

// settle publishes one row and records what happened to it. Errors returned
// here are bookkeeping failures and abort the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (string, error) {
	resolved, err := s.registry.Resolve(event)
	if err == nil {
		err = s.publish(ctx, event, resolved)
	}
	attempt := event.AttemptCount + 1
	rowCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt":        attempt,
	})

	switch {
	case err == nil:
		if markErr := s.repo.MarkPublished(tx, event.ID, s.now()); markErr != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.logg.Info(s.logg.WithField(rowCtx, "topic", resolved.Topic), "outbox.published")
		return metrics.OutboxPublished, nil
	case registry.IsPermanent(err):
		return metrics.OutboxDeadLettered, s.deadLetter(rowCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	case attempt >= s.settings.MaxAttempts:
		err = fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		return metrics.OutboxDeadLettered, s.deadLetter(rowCtx, tx, event, enums.OutboxDLQReasonMaxAttempts, err)
	default:
		s.logg.Warn(s.logg.WithField(rowCtx, "error", err.Error()), "outbox.retry")
		if markErr := s.repo.RecordFailure(tx, event.ID, err); markErr != nil {
			return "", fmt.Errorf("mark failed %s: %w", event.ID, markErr)
		}
		return metrics.OutboxRetry, nil
	}
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount + 1,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	if err := s.repo.Park(tx, event.ID, cause, s.settings.MaxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", event.ID, err)
	}
	s.logg.Error(s.logg.WithField(ctx, "dlq_reason", reason), "outbox.dead_lettered", cause)
	return nil
}

// publish keys every message by aggregate id so brokers that partition keep
// one order's events in sequence.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.Resolved) error {
	if resolved.Topic == "" {
		return registry.Permanent(fmt.Errorf("no topic for %s", event.EventType))
	}
	msg := outbox.Message{
		Topic: resolved.Topic,
		Key:   event.AggregateID.String(),
		Data:  event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return s.sink.Publish(pubCtx, msg)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
