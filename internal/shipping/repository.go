package shipping

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository stores carrier tracking history.
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

// InsertTrackingEvent records ev unless (awb, status, occurred_at) already exists.
// It reports whether a new row was written.
func (r *Repository) InsertTrackingEvent(ctx context.Context, ev *models.ShipmentTrackingEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "awb_number"}, {Name: "status"}, {Name: "occurred_at"}},
			DoNothing: true,
		}).
		Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListTracking returns a unit's history oldest first.
func (r *Repository) ListTracking(ctx context.Context, unitID uuid.UUID) ([]models.ShipmentTrackingEvent, error) {
	var out []models.ShipmentTrackingEvent
	err := r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("occurred_at ASC").
		Find(&out).Error
	return out, err
}
