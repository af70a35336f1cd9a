package enums

import "fmt"

// ReturnStatus tracks a buyer's return request after delivery.
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "REQUESTED"
	ReturnStatusApproved  ReturnStatus = "APPROVED"
	ReturnStatusRejected  ReturnStatus = "REJECTED"
	ReturnStatusPickedUp  ReturnStatus = "PICKED_UP"
	ReturnStatusInTransit ReturnStatus = "IN_TRANSIT"
	ReturnStatusReceived  ReturnStatus = "RECEIVED"
	ReturnStatusInspected ReturnStatus = "INSPECTED"
	ReturnStatusCompleted ReturnStatus = "COMPLETED"
	ReturnStatusCancelled ReturnStatus = "CANCELLED"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusRequested,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusPickedUp,
	ReturnStatusInTransit,
	ReturnStatusReceived,
	ReturnStatusInspected,
	ReturnStatusCompleted,
	ReturnStatusCancelled,
}

// String implements fmt.Stringer.
func (s ReturnStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReturnStatus.
func (s ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ReturnStatus) IsTerminal() bool {
	switch s {
	case ReturnStatusRejected, ReturnStatusCompleted, ReturnStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}
