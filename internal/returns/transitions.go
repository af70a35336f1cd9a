package returns

import (
	"slices"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var returnTransitions = map[enums.ReturnStatus][]enums.ReturnStatus{
	enums.ReturnStatusRequested: {enums.ReturnStatusApproved, enums.ReturnStatusRejected},
	enums.ReturnStatusApproved:  {enums.ReturnStatusPickedUp, enums.ReturnStatusCancelled},
	enums.ReturnStatusPickedUp:  {enums.ReturnStatusInTransit},
	enums.ReturnStatusInTransit: {enums.ReturnStatusReceived},
	enums.ReturnStatusReceived:  {enums.ReturnStatusInspected},
	enums.ReturnStatusInspected: {enums.ReturnStatusCompleted, enums.ReturnStatusRejected},
}

// CanTransition reports whether from -> to is in the return table.
func CanTransition(from, to enums.ReturnStatus) bool {
	return slices.Contains(returnTransitions[from], to)
}

func statusTimestampColumn(status enums.ReturnStatus) string {
	switch status {
	case enums.ReturnStatusApproved:
		return "approved_at"
	case enums.ReturnStatusReceived:
		return "received_at"
	case enums.ReturnStatusInspected:
		return "inspected_at"
	case enums.ReturnStatusCompleted:
		return "completed_at"
	case enums.ReturnStatusCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}
