package refunds

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

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

func (r *Repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load refund")
	}
	return &refund, nil
}

// FindByReturn returns nil, nil when the return has no refund.
func (r *Repository) FindByReturn(ctx context.Context, returnID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).Where("return_id = ?", returnID).Take(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// HasOpenForUnit reports whether another refund on the unit is still in flight.
func (r *Repository) HasOpenForUnit(ctx context.Context, unitID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("unit_id = ? AND status NOT IN ?", unitID, []enums.RefundStatus{enums.RefundStatusCompleted, enums.RefundStatusCancelled}).
		Count(&n).Error
	return n > 0, err
}

// statusChange carries the columns written alongside a status move.
type statusChange struct {
	FailureReason   string
	GatewayRefundID string
	CountAttempt    bool
}

// UpdateStatus moves the refund only while it is still in from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.RefundStatus, at time.Time, change statusChange) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case enums.RefundStatusCompleted:
		updates["processed_at"] = at
		if change.GatewayRefundID != "" {
			updates["gateway_refund_id"] = change.GatewayRefundID
		}
	case enums.RefundStatusFailed:
		updates["failure_reason"] = change.FailureReason
	}
	if change.CountAttempt {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByStatus returns refunds in status, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, status enums.RefundStatus, limit int) ([]models.Refund, error) {
	var out []models.Refund
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListStale returns refunds that have sat in status since before cutoff, oldest first.
func (r *Repository) ListStale(ctx context.Context, status enums.RefundStatus, cutoff time.Time, limit int) ([]models.Refund, error) {
	var out []models.Refund
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, cutoff).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
