package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "aggregate_order"
	AggregateFulfillmentUnit OutboxAggregateType = "fulfillment_unit"
	AggregateReturnRequest   OutboxAggregateType = "return_request"
	AggregateRefund          OutboxAggregateType = "refund"
	AggregateInvoice         OutboxAggregateType = "invoice"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateFulfillmentUnit,
	AggregateReturnRequest,
	AggregateRefund,
	AggregateInvoice,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event persisted to the outbox.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventOrderCancelled      OutboxEventType = "order_cancelled"
	EventPaymentConfirmed    OutboxEventType = "payment_confirmed"
	EventPaymentFailed       OutboxEventType = "payment_failed"
	EventUnitStatusChanged   OutboxEventType = "unit_status_changed"
	EventShipmentCreated     OutboxEventType = "shipment_created"
	EventReturnStatusChanged OutboxEventType = "return_status_changed"
	EventRefundStatusChanged OutboxEventType = "refund_status_changed"
	EventInvoiceGenerated    OutboxEventType = "invoice_generated"
)

var validEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderCancelled,
	EventPaymentConfirmed,
	EventPaymentFailed,
	EventUnitStatusChanged,
	EventShipmentCreated,
	EventReturnStatusChanged,
	EventRefundStatusChanged,
	EventInvoiceGenerated,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}

// WebhookSource identifies which inbound integration produced a webhook failure record.
type WebhookSource string

const (
	WebhookSourcePayments WebhookSource = "payments"
	WebhookSourceCarrier  WebhookSource = "carrier"
)

func (s WebhookSource) IsValid() bool {
	return s == WebhookSourcePayments || s == WebhookSourceCarrier
}
