package enums

import "fmt"

// ReservationStatus tracks the negotiation lifecycle of a reservation.
type ReservationStatus string

const (
	ReservationStatusPending        ReservationStatus = "pending"
	ReservationStatusAccepted       ReservationStatus = "accepted"
	ReservationStatusRejected       ReservationStatus = "rejected"
	ReservationStatusCounterOffered ReservationStatus = "counter_offered"
	ReservationStatusExpired        ReservationStatus = "expired"
	ReservationStatusCompleted      ReservationStatus = "completed"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusAccepted,
	ReservationStatusRejected,
	ReservationStatusCounterOffered,
	ReservationStatusExpired,
	ReservationStatusCompleted,
}

// String implements fmt.Stringer.
func (s ReservationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReservationStatus.
func (s ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsUnresolved reports whether the reservation still blocks a new
// negotiation for the same buyer and product.
func (s ReservationStatus) IsUnresolved() bool {
	switch s {
	case ReservationStatusPending, ReservationStatusCounterOffered, ReservationStatusAccepted:
		return true
	}
	return false
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
