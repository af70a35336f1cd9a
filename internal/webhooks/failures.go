// Package webhooks keeps inbound webhook payloads that could not be applied.
package webhooks

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// maxStoredPayload bounds what a hostile sender can make us persist.
const maxStoredPayload = 64 << 10

type FailureRepository struct {
	db *gorm.DB
}

func NewFailureRepository(db *gorm.DB) *FailureRepository {
	return &FailureRepository{db: db}
}

// Record stores the raw payload with the reason it was rejected.
func (r *FailureRepository) Record(ctx context.Context, source enums.WebhookSource, eventID, reason string, payload []byte) error {
	if len(payload) > maxStoredPayload {
		payload = payload[:maxStoredPayload]
	}
	row := &models.WebhookFailure{
		ID:      uuid.New(),
		Source:  source,
		Reason:  reason,
		Payload: string(payload),
	}
	if id := strings.TrimSpace(eventID); id != "" {
		row.EventID = &id
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// List returns the most recent failures for a source.
func (r *FailureRepository) List(ctx context.Context, source enums.WebhookSource, limit int) ([]models.WebhookFailure, error) {
	var out []models.WebhookFailure
	err := r.db.WithContext(ctx).
		Where("source = ?", source).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteBefore prunes failure records older than cutoff.
func (r *FailureRepository) DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := tx.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.WebhookFailure{})
	return res.RowsAffected, res.Error
}
