package payments

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository is the durable dedupe ledger for gateway events.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// InsertEvent writes the event unless its provider id was seen before.
func (r *Repository) InsertEvent(ctx context.Context, ev *models.PaymentEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider_event_id"}}, DoNothing: true}).
		Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) UpdateOutcome(ctx context.Context, providerEventID, outcome string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Where("provider_event_id = ?", providerEventID).
		Update("outcome", outcome).Error
}

// DeleteBefore prunes ledger rows older than cutoff. Gateways stop retrying long before then.
func (r *Repository) DeleteBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.PaymentEvent{})
	return res.RowsAffected, res.Error
}
