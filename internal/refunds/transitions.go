package refunds

import (
	"slices"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var refundTransitions = map[enums.RefundStatus][]enums.RefundStatus{
	enums.RefundStatusPending:    {enums.RefundStatusInitiated, enums.RefundStatusCancelled},
	enums.RefundStatusInitiated:  {enums.RefundStatusProcessing},
	enums.RefundStatusProcessing: {enums.RefundStatusCompleted, enums.RefundStatusFailed},
	enums.RefundStatusFailed:     {enums.RefundStatusInitiated},
}

// CanTransition reports whether from -> to is in the refund table.
func CanTransition(from, to enums.RefundStatus) bool {
	return slices.Contains(refundTransitions[from], to)
}

// Open reports whether a refund still blocks another refund on the same unit.
func Open(status enums.RefundStatus) bool {
	return status != enums.RefundStatusCompleted && status != enums.RefundStatusCancelled
}
