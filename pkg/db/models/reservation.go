package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// Reservation is a buyer-farmer price negotiation on a single product,
// independent of the cart.
type Reservation struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID              uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null;index:ix_reservations_buyer_status"`
	FarmerID             uuid.UUID               `gorm:"column:farmer_id;type:uuid;not null;index:ix_reservations_farmer_status"`
	ProductID            uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index:ix_reservations_product"`
	QuantityRequested    int                     `gorm:"column:quantity_requested;not null"`
	PriceOffered         decimal.Decimal         `gorm:"column:price_offered;type:numeric(10,2);not null"`
	CounterOfferPrice    *decimal.Decimal        `gorm:"column:counter_offer_price;type:numeric(10,2)"`
	TotalAmount          decimal.Decimal         `gorm:"column:total_amount;type:numeric(10,2);not null"`
	Status               enums.ReservationStatus `gorm:"column:status;type:reservation_status;not null;default:'pending';index:ix_reservations_buyer_status;index:ix_reservations_farmer_status;index:ix_reservations_status_expiry"`
	FarmerResponse       string                  `gorm:"column:farmer_response;not null;default:''"`
	BuyerNotes           string                  `gorm:"column:buyer_notes;not null;default:''"`
	HarvestDateRequested *time.Time              `gorm:"column:harvest_date_requested"`
	PickupDeliveryDate   *time.Time              `gorm:"column:pickup_delivery_date"`
	ExpiresAt            time.Time               `gorm:"column:expires_at;not null;index:ix_reservations_status_expiry"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// FinalPrice resolves to the counter offer when present, else the buyer's offer.
func (r Reservation) FinalPrice() decimal.Decimal {
	if r.CounterOfferPrice != nil {
		return *r.CounterOfferPrice
	}
	return r.PriceOffered
}

// RecomputeTotal restores total_amount = final price x quantity requested.
func (r *Reservation) RecomputeTotal() {
	r.TotalAmount = r.FinalPrice().Mul(decimal.NewFromInt(int64(r.QuantityRequested)))
}

// IsPastExpiry reports whether the reservation's deadline has passed at now.
// Status promotion to expired still happens on the sweep tick.
func (r Reservation) IsPastExpiry(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
