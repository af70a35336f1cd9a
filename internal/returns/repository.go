package returns

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

var terminalStatuses = []enums.ReturnStatus{
	enums.ReturnStatusRejected,
	enums.ReturnStatusCompleted,
	enums.ReturnStatusCancelled,
}

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

// Create stores the request and its items.
func (r *Repository) Create(ctx context.Context, req *models.ReturnRequest) error {
	items := req.Items
	req.Items = nil
	defer func() { req.Items = items }()

	if err := r.db.WithContext(ctx).Omit("Items").Create(req).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// Find loads a return with its items.
func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var req models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load return request")
	}
	return &req, nil
}

// HasOpenForUnit reports whether the unit carries a non-terminal return.
func (r *Repository) HasOpenForUnit(ctx context.Context, unitID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("unit_id = ? AND status NOT IN ?", unitID, terminalStatuses).
		Count(&n).Error
	return n > 0, err
}

// UpdateStatus moves the return only while it is still in from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ReturnStatus, at time.Time, rejectionReason string) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if col := statusTimestampColumn(to); col != "" {
		updates[col] = at
	}
	if to == enums.ReturnStatusRejected {
		updates["rejection_reason"] = rejectionReason
	}
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListForBuyer returns the buyer's returns after cursor, newest first.
func (r *Repository) ListForBuyer(ctx context.Context, buyerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.ReturnRequest, error) {
	var out []models.ReturnRequest
	q := r.db.WithContext(ctx).
		Preload("Items").
		Where("buyer_id = ?", buyerID)
	err := afterCursor(q, cursor).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListForSeller returns returns raised against the seller's units after cursor, newest first.
func (r *Repository) ListForSeller(ctx context.Context, sellerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.ReturnRequest, error) {
	var out []models.ReturnRequest
	q := r.db.WithContext(ctx).
		Preload("Items").
		Where("unit_id IN (?)", r.db.Model(&models.FulfillmentUnit{}).Select("id").Where("seller_id = ?", sellerID))
	err := afterCursor(q, cursor).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func afterCursor(q *gorm.DB, cursor *pagination.Cursor) *gorm.DB {
	if cursor == nil {
		return q
	}
	return q.Where("((return_requests.created_at < ?) OR (return_requests.created_at = ? AND return_requests.id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
}
