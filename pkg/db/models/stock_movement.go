package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// StockMovement is the append-only inventory ledger row. Quantity is the
// signed delta applied; StockAfter snapshots the on-hand quantity after the
// movement so the ledger can reconstruct stock without the product row.
type StockMovement struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID        uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index:ix_stock_movements_product"`
	MovementType     enums.StockMovementType `gorm:"column:movement_type;type:stock_movement_type;not null"`
	Quantity         int                     `gorm:"column:quantity;not null"`
	StockAfter       int                     `gorm:"column:stock_after;not null"`
	ReferenceOrderID *uuid.UUID              `gorm:"column:reference_order_id;type:uuid;index:ix_stock_movements_order"`
	CreatedByID      uuid.UUID               `gorm:"column:created_by_id;type:uuid;not null"`
	Notes            string                  `gorm:"column:notes;not null;default:''"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
}
