package enums

import "fmt"

// RequestStatus tracks the lifecycle of a payment request. Overdue is a
// read-time derivation (pending past its due date), never stored.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusPaid      RequestStatus = "paid"
	RequestStatusOverdue   RequestStatus = "overdue"
	RequestStatusCancelled RequestStatus = "cancelled"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusPaid,
	RequestStatusOverdue,
	RequestStatusCancelled,
}

// String implements fmt.Stringer.
func (r RequestStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RequestStatus.
func (r RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRequestStatus converts raw input into a RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}
