package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Seller is the read-side view of a marketplace seller used by the fulfillment engine.
type Seller struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Name           string              `gorm:"column:name;not null"`
	GSTIN          *string             `gorm:"column:gstin"`
	PickupAddress  types.Address       `gorm:"column:pickup_address;type:jsonb;not null"`
	CommissionRate decimal.NullDecimal `gorm:"column:commission_rate;type:numeric(6,4)"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Product carries only what checkout needs: owner and tax category.
type Product struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID  uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;not null"`
	Category  string    `gorm:"column:category;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

type ProductVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex"`
	Label      string    `gorm:"column:label"`
	PricePaise int64     `gorm:"column:price_paise;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// InventoryItem tracks available stock per variant.
type InventoryItem struct {
	VariantID    uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
