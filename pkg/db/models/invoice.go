package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice is written once per fulfillment unit and never updated.
type Invoice struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber    string    `gorm:"column:invoice_number;not null;uniqueIndex"`
	UnitID           uuid.UUID `gorm:"column:unit_id;type:uuid;not null;uniqueIndex"`
	OrderID          uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID         uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	Year             int       `gorm:"column:year;not null"`
	Sequence         int64     `gorm:"column:sequence;not null"`
	SellerState      string    `gorm:"column:seller_state;not null"`
	BuyerState       string    `gorm:"column:buyer_state;not null"`
	SubtotalPaise    int64     `gorm:"column:subtotal_paise;not null"`
	DiscountPaise    int64     `gorm:"column:discount_paise;not null;default:0"`
	ShippingPaise    int64     `gorm:"column:shipping_paise;not null;default:0"`
	CGSTPaise        int64     `gorm:"column:cgst_paise;not null;default:0"`
	SGSTPaise        int64     `gorm:"column:sgst_paise;not null;default:0"`
	IGSTPaise        int64     `gorm:"column:igst_paise;not null;default:0"`
	TotalTaxPaise    int64     `gorm:"column:total_tax_paise;not null"`
	TotalAmountPaise int64     `gorm:"column:total_amount_paise;not null"`
	GeneratedAt      time.Time `gorm:"column:generated_at;not null"`
}

// SequenceCounter backs every year-scoped document number (invoices, returns, refunds).
type SequenceCounter struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Year      int       `gorm:"column:year;primaryKey;autoIncrement:false"`
	Value     int64     `gorm:"column:value;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
