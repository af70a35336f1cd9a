package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Cart is a buyer's staging area; it is consumed by a successful checkout.
type Cart struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID         uuid.UUID        `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status          enums.CartStatus `gorm:"column:status;type:text;not null;default:'ACTIVE'"`
	ShippingAddress *types.Address   `gorm:"column:shipping_address;type:jsonb"`
	ConsumedAt      *time.Time       `gorm:"column:consumed_at"`
	Items           []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem stores the unit price captured when the item was added.
type CartItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID         uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPricePaise int64     `gorm:"column:unit_price_paise;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
