package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// AggregateOrder is the buyer-facing order spanning every seller in one checkout.
// Status is derived from the units and never written by callers.
type AggregateOrder struct {
	ID                  uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber         string                     `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID             uuid.UUID                  `gorm:"column:buyer_id;type:uuid;not null;index"`
	CartID              uuid.UUID                  `gorm:"column:cart_id;type:uuid;not null"`
	Currency            string                     `gorm:"column:currency;not null;default:'INR'"`
	TotalAmountPaise    int64                      `gorm:"column:total_amount_paise;not null"`
	DiscountAmountPaise int64                      `gorm:"column:discount_amount_paise;not null;default:0"`
	ShippingAmountPaise int64                      `gorm:"column:shipping_amount_paise;not null;default:0"`
	TaxAmountPaise      int64                      `gorm:"column:tax_amount_paise;not null;default:0"`
	FinalAmountPaise    int64                      `gorm:"column:final_amount_paise;not null"`
	PaymentMethod       enums.PaymentMethod        `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus       enums.PaymentStatus        `gorm:"column:payment_status;type:text;not null;default:'PENDING'"`
	PaymentRef          *string                    `gorm:"column:payment_ref"`
	PromotionID         *uuid.UUID                 `gorm:"column:promotion_id;type:uuid"`
	CouponCode          *string                    `gorm:"column:coupon_code"`
	Status              enums.AggregateOrderStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	ShippingAddress     types.Address              `gorm:"column:shipping_address;type:jsonb;not null"`
	CancelledAt         *time.Time                 `gorm:"column:cancelled_at"`
	Units               []FulfillmentUnit          `gorm:"foreignKey:OrderID"`
	CreatedAt           time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// FulfillmentUnit is one seller's share of an aggregate order.
// SubtotalPaise + TaxPaise + ShippingFeePaise - PlatformFeePaise == SellerPayoutPaise.
type FulfillmentUnit struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID          uuid.UUID               `gorm:"column:seller_id;type:uuid;not null;index"`
	UnitNumber        string                  `gorm:"column:unit_number;not null;uniqueIndex"`
	Sequence          int                     `gorm:"column:sequence;not null"`
	SubtotalPaise     int64                   `gorm:"column:subtotal_paise;not null"`
	DiscountPaise     int64                   `gorm:"column:discount_paise;not null;default:0"`
	ShippingFeePaise  int64                   `gorm:"column:shipping_fee_paise;not null;default:0"`
	TaxPaise          int64                   `gorm:"column:tax_paise;not null;default:0"`
	CommissionRate    string                  `gorm:"column:commission_rate;not null"`
	PlatformFeePaise  int64                   `gorm:"column:platform_fee_paise;not null;default:0"`
	SellerPayoutPaise int64                   `gorm:"column:seller_payout_paise;not null"`
	Status            enums.FulfillmentStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	AWBNumber         *string                 `gorm:"column:awb_number;uniqueIndex"`
	CourierName       *string                 `gorm:"column:courier_name"`
	TrackingURL       *string                 `gorm:"column:tracking_url"`
	LabelURL          *string                 `gorm:"column:label_url"`
	ShipmentAttempts  int                     `gorm:"column:shipment_attempts;not null;default:0"`
	ShipmentError     *string                 `gorm:"column:shipment_error"`
	ConfirmedAt       *time.Time              `gorm:"column:confirmed_at"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CancelledAt       *time.Time              `gorm:"column:cancelled_at"`
	ReturnedAt        *time.Time              `gorm:"column:returned_at"`
	Items             []FulfillmentItem       `gorm:"foreignKey:UnitID"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// FulfillmentItem is a price snapshot; none of its money columns change after insert.
type FulfillmentItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UnitID         uuid.UUID `gorm:"column:unit_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;not null"`
	Category       string    `gorm:"column:category;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPricePaise int64     `gorm:"column:unit_price_paise;not null"`
	SubtotalPaise  int64     `gorm:"column:subtotal_paise;not null"`
	DiscountPaise  int64     `gorm:"column:discount_paise;not null;default:0"`
	TaxRate        string    `gorm:"column:tax_rate;not null"`
	TaxPaise       int64     `gorm:"column:tax_paise;not null;default:0"`
	LineTotalPaise int64     `gorm:"column:line_total_paise;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
