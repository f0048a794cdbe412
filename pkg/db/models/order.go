package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// Order is the farmer-scoped aggregate produced by checkout. It exclusively
// owns its items and status history.
type Order struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber           string               `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	BuyerID               uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index:ix_orders_buyer_status"`
	FarmerID              uuid.UUID            `gorm:"column:farmer_id;type:uuid;not null;index:ix_orders_farmer_status"`
	Status                enums.OrderStatus    `gorm:"column:status;type:order_status;not null;default:'pending';index:ix_orders_buyer_status;index:ix_orders_farmer_status"`
	OrderType             enums.OrderType      `gorm:"column:order_type;type:order_type;not null;default:'immediate'"`
	Subtotal              decimal.Decimal      `gorm:"column:subtotal;type:numeric(10,2);not null"`
	DeliveryFee           decimal.Decimal      `gorm:"column:delivery_fee;type:numeric(10,2);not null"`
	TaxAmount             decimal.Decimal      `gorm:"column:tax_amount;type:numeric(10,2);not null"`
	TotalAmount           decimal.Decimal      `gorm:"column:total_amount;type:numeric(10,2);not null"`
	DeliveryAddress       *string              `gorm:"column:delivery_address"`
	DeliveryMethod        enums.DeliveryMethod `gorm:"column:delivery_method;type:delivery_method;not null;default:'delivery'"`
	PaymentMethod         enums.PaymentMethod  `gorm:"column:payment_method;type:payment_method;not null;default:'cash'"`
	PaymentStatus         enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	PreferredDeliveryDate *time.Time           `gorm:"column:preferred_delivery_date"`
	ActualDeliveryDate    *time.Time           `gorm:"column:actual_delivery_date"`
	Notes                 string               `gorm:"column:notes;not null;default:''"`
	Items                 []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory         []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// RecomputeTotal restores the total invariant after any monetary mutation.
func (o *Order) RecomputeTotal() {
	o.TotalAmount = o.Subtotal.Add(o.DeliveryFee).Add(o.TaxAmount)
}
