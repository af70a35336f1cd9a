package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

type ReturnRequest struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ReturnNumber    string             `gorm:"column:return_number;not null;uniqueIndex"`
	UnitID          uuid.UUID          `gorm:"column:unit_id;type:uuid;not null;index"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	BuyerID         uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null;index"`
	Reason          string             `gorm:"column:reason;not null"`
	Status          enums.ReturnStatus `gorm:"column:status;type:text;not null;default:'REQUESTED'"`
	RejectionReason *string            `gorm:"column:rejection_reason"`
	ApprovedAt      *time.Time         `gorm:"column:approved_at"`
	ReceivedAt      *time.Time         `gorm:"column:received_at"`
	InspectedAt     *time.Time         `gorm:"column:inspected_at"`
	CompletedAt     *time.Time         `gorm:"column:completed_at"`
	CancelledAt     *time.Time         `gorm:"column:cancelled_at"`
	Items           []ReturnItem       `gorm:"foreignKey:ReturnID"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// ReturnItem is one returned line; ClaimedRefundPaise covers the whole returned quantity.
type ReturnItem struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReturnID           uuid.UUID `gorm:"column:return_id;type:uuid;not null;index"`
	FulfillmentItemID  uuid.UUID `gorm:"column:fulfillment_item_id;type:uuid;not null"`
	VariantID          uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	Quantity           int       `gorm:"column:quantity;not null"`
	ClaimedRefundPaise int64     `gorm:"column:claimed_refund_paise;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}

type Refund struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	RefundNumber    string             `gorm:"column:refund_number;not null;uniqueIndex"`
	ReturnID        uuid.UUID          `gorm:"column:return_id;type:uuid;not null;uniqueIndex"`
	UnitID          uuid.UUID          `gorm:"column:unit_id;type:uuid;not null;index"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	AmountPaise     int64              `gorm:"column:amount_paise;not null"`
	Status          enums.RefundStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	FailureReason   *string            `gorm:"column:failure_reason"`
	GatewayRefundID *string            `gorm:"column:gateway_refund_id"`
	Attempts        int                `gorm:"column:attempts;not null;default:0"`
	ProcessedAt     *time.Time         `gorm:"column:processed_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
