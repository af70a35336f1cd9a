package coupons

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository persists promotion usage. Usage changes only go through conditional updates.
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

// FindByCode returns nil, nil when the code is unknown.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var promo models.Promotion
	err := r.db.WithContext(ctx).Where("code = ?", code).Take(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// Create inserts a promotion definition.
func (r *Repository) Create(ctx context.Context, promo *models.Promotion) error {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(promo).Error
}

// IncrementUsage bumps usage_count unless the limit is already reached.
func (r *Repository) IncrementUsage(ctx context.Context, promotionID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", promotionID).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DecrementUsage never drives usage_count below zero.
func (r *Repository) DecrementUsage(ctx context.Context, promotionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND usage_count > 0", promotionID).
		Update("usage_count", gorm.Expr("usage_count - 1")).Error
}

func (r *Repository) CountRedemptions(ctx context.Context, promotionID, buyerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponRedemption{}).
		Where("promotion_id = ? AND buyer_id = ?", promotionID, buyerID).
		Count(&count).Error
	return count, err
}

func (r *Repository) InsertRedemption(ctx context.Context, row *models.CouponRedemption) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// DeleteRedemptionByOrder removes the order's redemption and returns it, or nil when none existed.
func (r *Repository) DeleteRedemptionByOrder(ctx context.Context, orderID uuid.UUID) (*models.CouponRedemption, error) {
	var row models.CouponRedemption
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res := r.db.WithContext(ctx).Where("id = ?", row.ID).Delete(&models.CouponRedemption{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row, nil
}
