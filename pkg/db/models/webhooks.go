package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// PaymentEvent is the durable dedupe ledger for gateway webhooks.
type PaymentEvent struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProviderEventID string     `gorm:"column:provider_event_id;not null;uniqueIndex"`
	OrderID         *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	OrderRef        string     `gorm:"column:order_ref;not null"`
	PaymentRef      string     `gorm:"column:payment_ref"`
	Status          string     `gorm:"column:status;not null"`
	AmountPaise     int64      `gorm:"column:amount_paise;not null"`
	Currency        string     `gorm:"column:currency;not null"`
	Outcome         string     `gorm:"column:outcome;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// WebhookFailure keeps payloads that could not be applied for manual reconciliation.
type WebhookFailure struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Source    enums.WebhookSource `gorm:"column:source;type:text;not null"`
	EventID   *string             `gorm:"column:event_id"`
	Reason    string              `gorm:"column:reason;not null"`
	Payload   string              `gorm:"column:payload;type:text;not null"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// ShipmentTrackingEvent is carrier history keyed by (awb_number, status, occurred_at).
type ShipmentTrackingEvent struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UnitID     uuid.UUID `gorm:"column:unit_id;type:uuid;not null;index"`
	AWBNumber  string    `gorm:"column:awb_number;not null;uniqueIndex:ux_tracking_natural_key"`
	Status     string    `gorm:"column:status;not null;uniqueIndex:ux_tracking_natural_key"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null;uniqueIndex:ux_tracking_natural_key"`
	Location   string    `gorm:"column:location"`
	Remarks    string    `gorm:"column:remarks"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
