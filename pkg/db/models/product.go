package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// Product represents the canonical farmer listing. The fulfillment core is
// the only writer of Quantity and ReservedQuantity, always via the ledger.
type Product struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FarmerID             uuid.UUID           `gorm:"column:farmer_id;type:uuid;not null"`
	Name                 string              `gorm:"column:name;not null"`
	Unit                 string              `gorm:"column:unit;not null"`
	Status               enums.ProductStatus `gorm:"column:status;type:product_status;not null;default:'available'"`
	Price                decimal.Decimal     `gorm:"column:price;type:numeric(10,2);not null"`
	Quantity             int                 `gorm:"column:quantity;not null;default:0"`
	ReservedQuantity     int                 `gorm:"column:reserved_quantity;not null;default:0"`
	MinimumOrderQuantity int                 `gorm:"column:minimum_order_quantity;not null;default:1"`
	Keywords             pq.StringArray      `gorm:"column:keywords;type:text[]"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableQuantity returns on-hand stock minus active holds, floored at zero.
func (p Product) AvailableQuantity() int {
	available := p.Quantity - p.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}

// IsOrderable reports whether the product can enter a cart or reservation.
func (p Product) IsOrderable() bool {
	return p.Status == enums.ProductStatusAvailable
}
