package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderCreatedEvent signals a checkout split into seller units.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	OrderNumber      string              `json:"order_number"`
	BuyerID          uuid.UUID           `json:"buyer_id"`
	UnitIDs          []uuid.UUID         `json:"unit_ids"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	FinalAmountPaise int64               `json:"final_amount_paise"`
	CouponCode       *string             `json:"coupon_code,omitempty"`
}

// OrderStatusChangedEvent is emitted whenever the derived aggregate status moves.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID                  `json:"order_id"`
	From    enums.AggregateOrderStatus `json:"from"`
	To      enums.AggregateOrderStatus `json:"to"`
}

// OrderCancelledEvent reports a whole-order cancellation.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// PaymentStatusEvent covers both confirmation and failure.
type PaymentStatusEvent struct {
	OrderID     uuid.UUID           `json:"order_id"`
	Status      enums.PaymentStatus `json:"status"`
	PaymentRef  string              `json:"payment_ref,omitempty"`
	AmountPaise int64               `json:"amount_paise"`
	ErrorCode   string              `json:"error_code,omitempty"`
}

// UnitStatusChangedEvent is emitted on every fulfillment unit transition.
type UnitStatusChangedEvent struct {
	UnitID   uuid.UUID               `json:"unit_id"`
	OrderID  uuid.UUID               `json:"order_id"`
	SellerID uuid.UUID               `json:"seller_id"`
	From     enums.FulfillmentStatus `json:"from"`
	To       enums.FulfillmentStatus `json:"to"`
}

// ShipmentCreatedEvent carries the carrier booking for a unit.
type ShipmentCreatedEvent struct {
	UnitID      uuid.UUID `json:"unit_id"`
	AWBNumber   string    `json:"awb_number"`
	CourierName string    `json:"courier_name"`
	TrackingURL string    `json:"tracking_url,omitempty"`
}

type ReturnStatusChangedEvent struct {
	ReturnID uuid.UUID          `json:"return_id"`
	UnitID   uuid.UUID          `json:"unit_id"`
	From     enums.ReturnStatus `json:"from,omitempty"`
	To       enums.ReturnStatus `json:"to"`
}

type RefundStatusChangedEvent struct {
	RefundID    uuid.UUID          `json:"refund_id"`
	ReturnID    uuid.UUID          `json:"return_id"`
	AmountPaise int64              `json:"amount_paise"`
	From        enums.RefundStatus `json:"from,omitempty"`
	To          enums.RefundStatus `json:"to"`
}

type InvoiceGeneratedEvent struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	UnitID        uuid.UUID `json:"unit_id"`
	TotalPaise    int64     `json:"total_paise"`
}
