package enums

import "fmt"

// FulfillmentStatus tracks the lifecycle of a seller's fulfillment unit.
type FulfillmentStatus string

const (
	FulfillmentStatusPending        FulfillmentStatus = "PENDING"
	FulfillmentStatusConfirmed      FulfillmentStatus = "CONFIRMED"
	FulfillmentStatusProcessing     FulfillmentStatus = "PROCESSING"
	FulfillmentStatusPacked         FulfillmentStatus = "PACKED"
	FulfillmentStatusShipped        FulfillmentStatus = "SHIPPED"
	FulfillmentStatusOutForDelivery FulfillmentStatus = "OUT_FOR_DELIVERY"
	FulfillmentStatusDelivered      FulfillmentStatus = "DELIVERED"
	FulfillmentStatusCancelled      FulfillmentStatus = "CANCELLED"
	FulfillmentStatusReturned       FulfillmentStatus = "RETURNED"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusPending,
	FulfillmentStatusConfirmed,
	FulfillmentStatusProcessing,
	FulfillmentStatusPacked,
	FulfillmentStatusShipped,
	FulfillmentStatusOutForDelivery,
	FulfillmentStatusDelivered,
	FulfillmentStatusCancelled,
	FulfillmentStatusReturned,
}

// String implements fmt.Stringer.
func (s FulfillmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (s FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}

// AggregateOrderStatus is the buyer-facing status derived from the unit statuses.
type AggregateOrderStatus string

const (
	AggregateOrderStatusPending            AggregateOrderStatus = "PENDING"
	AggregateOrderStatusPartiallyShipped   AggregateOrderStatus = "PARTIALLY_SHIPPED"
	AggregateOrderStatusShipped            AggregateOrderStatus = "SHIPPED"
	AggregateOrderStatusPartiallyDelivered AggregateOrderStatus = "PARTIALLY_DELIVERED"
	AggregateOrderStatusDelivered          AggregateOrderStatus = "DELIVERED"
	AggregateOrderStatusPartiallyReturned  AggregateOrderStatus = "PARTIALLY_RETURNED"
	AggregateOrderStatusReturned           AggregateOrderStatus = "RETURNED"
	AggregateOrderStatusCancelled          AggregateOrderStatus = "CANCELLED"
)

var validAggregateOrderStatuses = []AggregateOrderStatus{
	AggregateOrderStatusPending,
	AggregateOrderStatusPartiallyShipped,
	AggregateOrderStatusShipped,
	AggregateOrderStatusPartiallyDelivered,
	AggregateOrderStatusDelivered,
	AggregateOrderStatusPartiallyReturned,
	AggregateOrderStatusReturned,
	AggregateOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s AggregateOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AggregateOrderStatus.
func (s AggregateOrderStatus) IsValid() bool {
	for _, candidate := range validAggregateOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
