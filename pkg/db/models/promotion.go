package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Promotion is a coupon definition. Value is whole percent for PERCENTAGE and paise for FIXED.
// UsageCount never exceeds UsageLimit; increments go through a conditional update.
type Promotion struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code               string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType       enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	Value              int64              `gorm:"column:value;not null"`
	MinOrderValuePaise int64              `gorm:"column:min_order_value_paise;not null;default:0"`
	MaxDiscountPaise   *int64             `gorm:"column:max_discount_paise"`
	UsageLimit         *int               `gorm:"column:usage_limit"`
	UsageCount         int                `gorm:"column:usage_count;not null;default:0"`
	PerCustomerLimit   *int               `gorm:"column:per_customer_limit"`
	Active             bool               `gorm:"column:active;not null"`
	StartsAt           time.Time          `gorm:"column:starts_at;not null"`
	EndsAt             time.Time          `gorm:"column:ends_at;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// CouponRedemption is the source of truth for per-customer usage.
type CouponRedemption struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	PromotionID   uuid.UUID `gorm:"column:promotion_id;type:uuid;not null;index:idx_coupon_redemptions_promotion_buyer"`
	BuyerID       uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index:idx_coupon_redemptions_promotion_buyer"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	DiscountPaise int64     `gorm:"column:discount_paise;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
