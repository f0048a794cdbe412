package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farm2market/farm2market-backend/pkg/db/models"
	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// errStaleStatus reports that the reservation's status changed between the
// read and the guarded write.
var errStaleStatus = errors.New("reservation status changed concurrently")

// ReservationRepository defines the persistence surface for negotiations.
type ReservationRepository interface {
	WithTx(tx *gorm.DB) ReservationRepository
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	Save(ctx context.Context, reservation *models.Reservation, from enums.ReservationStatus) error
	HasUnresolved(ctx context.Context, buyerID, productID uuid.UUID) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Reservation, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID, statuses []enums.ReservationStatus, limit int) ([]models.Reservation, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a reservation repository bound to the provided DB.
func NewRepository(db *gorm.DB) ReservationRepository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) ReservationRepository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// Save persists the negotiation fields guarded on the status the caller
// read. A concurrent transition leaves zero rows matched and surfaces as
// errStaleStatus, so two racing responses cannot both apply side effects.
func (r *repository) Save(ctx context.Context, reservation *models.Reservation, from enums.ReservationStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", reservation.ID, from).
		Updates(map[string]any{
			"status":               reservation.Status,
			"counter_offer_price":  reservation.CounterOfferPrice,
			"total_amount":         reservation.TotalAmount,
			"farmer_response":      reservation.FarmerResponse,
			"buyer_notes":          reservation.BuyerNotes,
			"pickup_delivery_date": reservation.PickupDeliveryDate,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errStaleStatus
	}
	return nil
}

// HasUnresolved reports whether the buyer already has an open negotiation on
// the product.
func (r *repository) HasUnresolved(ctx context.Context, buyerID, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("buyer_id = ? AND product_id = ?", buyerID, productID).
		Where("status IN ?", []enums.ReservationStatus{
			enums.ReservationStatusPending,
			enums.ReservationStatusCounterOffered,
			enums.ReservationStatusAccepted,
		}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListExpired returns sweepable reservations: pending or counter_offered
// with a deadline before now.
func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ?", []enums.ReservationStatus{
			enums.ReservationStatusPending,
			enums.ReservationStatusCounterOffered,
		}).
		Where("expires_at < ?", now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Reservation
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Reservation
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByFarmer(ctx context.Context, farmerID uuid.UUID, statuses []enums.ReservationStatus, limit int) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("farmer_id = ?", farmerID).
		Order("created_at DESC")
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Reservation
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}
