package enums

import "fmt"

// OrderType distinguishes direct checkouts from converted reservations.
type OrderType string

const (
	OrderTypeImmediate   OrderType = "immediate"
	OrderTypeReservation OrderType = "reservation"
)

var validOrderTypes = []OrderType{
	OrderTypeImmediate,
	OrderTypeReservation,
}

// IsValid reports whether the value is a known OrderType.
func (t OrderType) IsValid() bool {
	for _, candidate := range validOrderTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOrderType converts raw input into an OrderType.
func ParseOrderType(value string) (OrderType, error) {
	for _, candidate := range validOrderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order type %q", value)
}
