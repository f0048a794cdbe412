package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// OrderCreatedEvent signals a new checkout split across farmers.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	BuyerID     uuid.UUID       `json:"buyer_id"`
	FarmerID    uuid.UUID       `json:"farmer_id"`
	OrderType   enums.OrderType `json:"order_type"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
}

// OrderStatusChangedEvent is emitted on every accepted status transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	OldStatus enums.OrderStatus `json:"old_status"`
	NewStatus enums.OrderStatus `json:"new_status"`
	ChangedBy uuid.UUID         `json:"changed_by"`
}

// ReservationCreatedEvent signals a buyer opened a negotiation.
type ReservationCreatedEvent struct {
	ReservationID uuid.UUID       `json:"reservation_id"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	FarmerID      uuid.UUID       `json:"farmer_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	Quantity      int             `json:"quantity"`
	PriceOffered  decimal.Decimal `json:"price_offered"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// ReservationRespondedEvent carries the outcome of a negotiation action.
type ReservationRespondedEvent struct {
	ReservationID     uuid.UUID               `json:"reservation_id"`
	BuyerID           uuid.UUID               `json:"buyer_id"`
	FarmerID          uuid.UUID               `json:"farmer_id"`
	Status            enums.ReservationStatus `json:"status"`
	CounterOfferPrice *decimal.Decimal        `json:"counter_offer_price,omitempty"`
	OrderID           *uuid.UUID              `json:"order_id,omitempty"`
}

// ReservationExpiredEvent is emitted by the expiry sweep.
type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	FarmerID      uuid.UUID `json:"farmer_id"`
	ProductID     uuid.UUID `json:"product_id"`
	ExpiredAt     time.Time `json:"expired_at"`
}
