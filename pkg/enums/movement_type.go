package enums

import "fmt"

// StockMovementType maps to the stock_movement_type enum in Postgres.
type StockMovementType string

const (
	StockMovementIn         StockMovementType = "IN"
	StockMovementOut        StockMovementType = "OUT"
	StockMovementAdjustment StockMovementType = "ADJUSTMENT"
	StockMovementReserved   StockMovementType = "RESERVED"
	StockMovementUnreserved StockMovementType = "UNRESERVED"
	StockMovementSold       StockMovementType = "SOLD"
	StockMovementReturn     StockMovementType = "RETURN"
	StockMovementExpired    StockMovementType = "EXPIRED"
	StockMovementDamaged    StockMovementType = "DAMAGED"
)

var validStockMovementTypes = []StockMovementType{
	StockMovementIn,
	StockMovementOut,
	StockMovementAdjustment,
	StockMovementReserved,
	StockMovementUnreserved,
	StockMovementSold,
	StockMovementReturn,
	StockMovementExpired,
	StockMovementDamaged,
}

// IsValid reports whether the value matches the canonical movement enum.
func (t StockMovementType) IsValid() bool {
	for _, candidate := range validStockMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// AffectsReserved reports whether the movement applies to the reserved
// counter rather than the on-hand quantity.
func (t StockMovementType) AffectsReserved() bool {
	return t == StockMovementReserved || t == StockMovementUnreserved
}

// ParseStockMovementType converts raw input into StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	for _, candidate := range validStockMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}
