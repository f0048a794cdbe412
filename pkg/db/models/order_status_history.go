package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// OrderStatusHistory is append-only: one row per transition, never mutated.
type OrderStatusHistory struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index:ix_order_status_history_order"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	Notes       string            `gorm:"column:notes;not null;default:''"`
	ChangedByID uuid.UUID         `gorm:"column:changed_by_id;type:uuid;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the singular table name; the default pluralization would
// look for order_status_histories.
func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
