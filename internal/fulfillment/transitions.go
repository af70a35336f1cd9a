package fulfillment

import (
	"slices"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var unitTransitions = map[enums.FulfillmentStatus][]enums.FulfillmentStatus{
	enums.FulfillmentStatusPending:        {enums.FulfillmentStatusConfirmed, enums.FulfillmentStatusCancelled},
	enums.FulfillmentStatusConfirmed:      {enums.FulfillmentStatusProcessing, enums.FulfillmentStatusCancelled},
	enums.FulfillmentStatusProcessing:     {enums.FulfillmentStatusPacked},
	enums.FulfillmentStatusPacked:         {enums.FulfillmentStatusShipped},
	enums.FulfillmentStatusShipped:        {enums.FulfillmentStatusOutForDelivery},
	enums.FulfillmentStatusOutForDelivery: {enums.FulfillmentStatusDelivered},
	enums.FulfillmentStatusDelivered:      {enums.FulfillmentStatusReturned},
}

// forwardChain is the happy path a unit walks from checkout to doorstep.
var forwardChain = []enums.FulfillmentStatus{
	enums.FulfillmentStatusPending,
	enums.FulfillmentStatusConfirmed,
	enums.FulfillmentStatusProcessing,
	enums.FulfillmentStatusPacked,
	enums.FulfillmentStatusShipped,
	enums.FulfillmentStatusOutForDelivery,
	enums.FulfillmentStatusDelivered,
}

// CanTransition reports whether from -> to is in the unit table.
func CanTransition(from, to enums.FulfillmentStatus) bool {
	return slices.Contains(unitTransitions[from], to)
}

// Cancellable reports whether a unit may still be cancelled.
func Cancellable(status enums.FulfillmentStatus) bool {
	return CanTransition(status, enums.FulfillmentStatusCancelled)
}

// ForwardPath lists the steps from the current status up to and including
// target along the happy path. ok is false when target is not ahead of from;
// an empty path with ok true means the unit is already at or past target.
func ForwardPath(from, to enums.FulfillmentStatus) (path []enums.FulfillmentStatus, ok bool) {
	fromIdx := slices.Index(forwardChain, from)
	toIdx := slices.Index(forwardChain, to)
	if fromIdx < 0 || toIdx < 0 {
		return nil, false
	}
	if fromIdx >= toIdx {
		return nil, true
	}
	return slices.Clone(forwardChain[fromIdx+1 : toIdx+1]), true
}

func shippedOrLater(status enums.FulfillmentStatus) bool {
	switch status {
	case enums.FulfillmentStatusShipped,
		enums.FulfillmentStatusOutForDelivery,
		enums.FulfillmentStatusDelivered,
		enums.FulfillmentStatusReturned:
		return true
	default:
		return false
	}
}

// DeriveOrderStatus computes the buyer-facing status from the unit statuses.
// It depends only on the multiset, so repeated calls are stable.
func DeriveOrderStatus(statuses []enums.FulfillmentStatus) enums.AggregateOrderStatus {
	if len(statuses) == 0 {
		return enums.AggregateOrderStatusPending
	}
	counts := make(map[enums.FulfillmentStatus]int, len(statuses))
	shipped := 0
	for _, status := range statuses {
		counts[status]++
		if shippedOrLater(status) {
			shipped++
		}
	}
	total := len(statuses)
	delivered := counts[enums.FulfillmentStatusDelivered]
	returned := counts[enums.FulfillmentStatusReturned]

	switch {
	case counts[enums.FulfillmentStatusCancelled] == total:
		return enums.AggregateOrderStatusCancelled
	case returned == total:
		return enums.AggregateOrderStatusReturned
	case returned > 0 && delivered+returned == total:
		return enums.AggregateOrderStatusPartiallyReturned
	case delivered == total:
		return enums.AggregateOrderStatusDelivered
	case delivered+returned > 0:
		return enums.AggregateOrderStatusPartiallyDelivered
	case shipped == total:
		return enums.AggregateOrderStatusShipped
	case shipped > 0:
		return enums.AggregateOrderStatusPartiallyShipped
	default:
		return enums.AggregateOrderStatusPending
	}
}
