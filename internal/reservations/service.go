package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	pkgerrors "github.com/farm2market/farm2market-backend/pkg/errors"

	"github.com/farm2market/farm2market-backend/internal/checkout"
	"github.com/farm2market/farm2market-backend/internal/ledger"
	"github.com/farm2market/farm2market-backend/internal/orders"
	"github.com/farm2market/farm2market-backend/pkg/db"
	"github.com/farm2market/farm2market-backend/pkg/db/models"
	"github.com/farm2market/farm2market-backend/pkg/enums"
	"github.com/farm2market/farm2market-backend/pkg/outbox"
	"github.com/farm2market/farm2market-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RespondAction is a farmer's answer to a pending reservation.
type RespondAction string

const (
	RespondActionAccept       RespondAction = "accept"
	RespondActionReject       RespondAction = "reject"
	RespondActionCounterOffer RespondAction = "counter_offer"
)

// defaultReservationTTL applies when CreateInput carries no explicit deadline.
const defaultReservationTTL = 7 * 24 * time.Hour

const reservationOrderAttempts = 5

// CreateInput opens a negotiation on a single product.
type CreateInput struct {
	ProductID            uuid.UUID
	QuantityRequested    int
	PriceOffered         decimal.Decimal
	BuyerNotes           string
	HarvestDateRequested *time.Time
	PickupDeliveryDate   *time.Time
	ExpiresAt            *time.Time
}

// RespondInput is the farmer side of the negotiation.
type RespondInput struct {
	Action            RespondAction
	CounterOfferPrice *decimal.Decimal
	Message           string
}

// Service runs the reservation negotiation protocol. A reservation is a
// buyer-farmer price agreement on one product, independent of the cart;
// acceptance places a stock hold and completion converts the hold into a
// reservation-type order.
type Service interface {
	Create(ctx context.Context, buyerID uuid.UUID, input CreateInput) (*models.Reservation, error)
	Respond(ctx context.Context, reservationID, farmerID uuid.UUID, input RespondInput) (*models.Reservation, error)
	DeclineCounter(ctx context.Context, reservationID, buyerID uuid.UUID, message string) (*models.Reservation, error)
	Complete(ctx context.Context, reservationID, actorID uuid.UUID) (*models.Order, error)
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
	GetByID(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Reservation, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID, statuses []enums.ReservationStatus, limit int) ([]models.Reservation, error)
}

type service struct {
	tx     txRunner
	repo   ReservationRepository
	orders orders.Repository
	ledger ledger.Service
	outbox outboxPublisher
	now    func() time.Time
}

// NewService wires the reservation manager.
func NewService(tx txRunner, repo ReservationRepository, ordersRepo orders.Repository, ledgerSvc ledger.Service, publisher outboxPublisher) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:     tx,
		repo:   repo,
		orders: ordersRepo,
		ledger: ledgerSvc,
		outbox: publisher,
		now:    time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, buyerID uuid.UUID, input CreateInput) (*models.Reservation, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.QuantityRequested < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity requested must be at least 1")
	}
	if !input.PriceOffered.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price offered must be positive")
	}

	var created *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		product, err := repo.GetProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return err
		}
		if !product.IsOrderable() {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is not available for reservation").
				WithDetails(map[string]any{"product_id": product.ID, "status": product.Status})
		}
		if input.QuantityRequested < product.MinimumOrderQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity below minimum order quantity").
				WithDetails(map[string]any{
					"product_id":             product.ID,
					"minimum_order_quantity": product.MinimumOrderQuantity,
					"requested":              input.QuantityRequested,
				})
		}

		open, err := repo.HasUnresolved(ctx, buyerID, product.ID)
		if err != nil {
			return err
		}
		if open {
			return pkgerrors.New(pkgerrors.CodeConflict, "an unresolved reservation already exists for this product")
		}

		expiresAt := s.now().Add(defaultReservationTTL)
		if input.ExpiresAt != nil {
			expiresAt = *input.ExpiresAt
		}

		reservation := &models.Reservation{
			ID:                   uuid.New(),
			BuyerID:              buyerID,
			FarmerID:             product.FarmerID,
			ProductID:            product.ID,
			QuantityRequested:    input.QuantityRequested,
			PriceOffered:         input.PriceOffered,
			Status:               enums.ReservationStatusPending,
			BuyerNotes:           input.BuyerNotes,
			HarvestDateRequested: input.HarvestDateRequested,
			PickupDeliveryDate:   input.PickupDeliveryDate,
			ExpiresAt:            expiresAt,
		}
		reservation.RecomputeTotal()

		if err := repo.Create(ctx, reservation); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReservationCreated,
			AggregateType: enums.AggregateReservation,
			AggregateID:   reservation.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: "buyer"},
			Data: payloads.ReservationCreatedEvent{
				ReservationID: reservation.ID,
				BuyerID:       reservation.BuyerID,
				FarmerID:      reservation.FarmerID,
				ProductID:     reservation.ProductID,
				Quantity:      reservation.QuantityRequested,
				PriceOffered:  reservation.PriceOffered,
				ExpiresAt:     reservation.ExpiresAt,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		created = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Respond(ctx context.Context, reservationID, farmerID uuid.UUID, input RespondInput) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	if farmerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "farmer id is required")
	}
	switch input.Action {
	case RespondActionAccept, RespondActionReject, RespondActionCounterOffer:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reservation action %q", input.Action))
	}

	var updated *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		reservation, err := repo.FindByID(ctx, reservationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
			}
			return err
		}
		if reservation.FarmerID != farmerID {
			return pkgerrors.New(pkgerrors.CodeValidation, "only the product's farmer can respond to this reservation")
		}
		if reservation.IsPastExpiry(s.now()) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation has expired")
		}

		fromStatus := reservation.Status
		switch input.Action {
		case RespondActionAccept:
			if reservation.Status != enums.ReservationStatusPending {
				return transitionError(reservation.Status, enums.ReservationStatusAccepted)
			}
			// Acceptance is binding: hold the stock so it cannot be sold
			// out from under the agreement before completion.
			if _, err := s.ledger.Apply(ctx, tx, ledger.ApplyInput{
				ProductID:    reservation.ProductID,
				Quantity:     reservation.QuantityRequested,
				MovementType: enums.StockMovementReserved,
				ActorID:      farmerID,
				Notes:        "hold for reservation " + reservation.ID.String(),
			}); err != nil {
				return err
			}
			reservation.Status = enums.ReservationStatusAccepted
		case RespondActionCounterOffer:
			if reservation.Status != enums.ReservationStatusPending {
				return transitionError(reservation.Status, enums.ReservationStatusCounterOffered)
			}
			if input.CounterOfferPrice == nil || !input.CounterOfferPrice.IsPositive() {
				return pkgerrors.New(pkgerrors.CodeValidation, "counter offer price must be positive")
			}
			reservation.CounterOfferPrice = input.CounterOfferPrice
			reservation.Status = enums.ReservationStatusCounterOffered
		case RespondActionReject:
			if reservation.Status != enums.ReservationStatusPending && reservation.Status != enums.ReservationStatusCounterOffered {
				return transitionError(reservation.Status, enums.ReservationStatusRejected)
			}
			reservation.Status = enums.ReservationStatusRejected
		}

		reservation.FarmerResponse = input.Message
		reservation.RecomputeTotal()

		if err := saveGuarded(ctx, repo, reservation, fromStatus); err != nil {
			return err
		}
		if err := s.emitResponded(ctx, tx, reservation, farmerID, "farmer", nil); err != nil {
			return err
		}

		updated = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeclineCounter lets the buyer walk away from a counter offer. The buyer
// cannot re-counter; declining is their only move.
func (s *service) DeclineCounter(ctx context.Context, reservationID, buyerID uuid.UUID, message string) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}

	var updated *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		reservation, err := repo.FindByID(ctx, reservationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
			}
			return err
		}
		if reservation.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeValidation, "only the buyer can decline a counter offer")
		}
		if reservation.Status != enums.ReservationStatusCounterOffered {
			return transitionError(reservation.Status, enums.ReservationStatusRejected)
		}

		reservation.Status = enums.ReservationStatusRejected
		if message != "" {
			reservation.BuyerNotes = message
		}
		reservation.RecomputeTotal()

		if err := saveGuarded(ctx, repo, reservation, enums.ReservationStatusCounterOffered); err != nil {
			return err
		}
		if err := s.emitResponded(ctx, tx, reservation, buyerID, "buyer", nil); err != nil {
			return err
		}

		updated = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Complete converts an accepted reservation into a reservation-type order at
// the agreed price. The stock hold is released and the same quantity sold in
// one transaction, so on-hand inventory only moves once.
func (s *service) Complete(ctx context.Context, reservationID, actorID uuid.UUID) (*models.Order, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		reservation, err := repo.FindByID(ctx, reservationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
			}
			return err
		}
		if actorID != reservation.BuyerID && actorID != reservation.FarmerID {
			return pkgerrors.New(pkgerrors.CodeValidation, "actor is not a party to this reservation")
		}
		if reservation.Status != enums.ReservationStatusAccepted {
			return transitionError(reservation.Status, enums.ReservationStatusCompleted)
		}

		product, err := repo.GetProduct(ctx, reservation.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return err
		}

		finalPrice := reservation.FinalPrice()
		order := &models.Order{
			ID:                    uuid.New(),
			BuyerID:               reservation.BuyerID,
			FarmerID:              reservation.FarmerID,
			Status:                enums.OrderStatusPending,
			OrderType:             enums.OrderTypeReservation,
			Subtotal:              reservation.TotalAmount,
			DeliveryFee:           decimal.Zero,
			TaxAmount:             decimal.Zero,
			DeliveryMethod:        enums.DeliveryMethodPickup,
			PaymentMethod:         enums.PaymentMethodCash,
			PaymentStatus:         enums.PaymentStatusPending,
			PreferredDeliveryDate: reservation.PickupDeliveryDate,
			Notes:                 "reservation " + reservation.ID.String(),
		}
		order.RecomputeTotal()

		if err := s.createWithOrderNumber(ctx, tx, ordersRepo, order); err != nil {
			return err
		}

		// Release the hold before debiting on-hand stock so the reserved
		// quantity never exceeds the on-hand quantity mid-transaction.
		if _, err := s.ledger.Apply(ctx, tx, ledger.ApplyInput{
			ProductID:        reservation.ProductID,
			Quantity:         -reservation.QuantityRequested,
			MovementType:     enums.StockMovementUnreserved,
			ReferenceOrderID: &order.ID,
			ActorID:          actorID,
			Notes:            "release hold for reservation " + reservation.ID.String(),
		}); err != nil {
			return err
		}
		if _, err := s.ledger.Apply(ctx, tx, ledger.ApplyInput{
			ProductID:        reservation.ProductID,
			Quantity:         -reservation.QuantityRequested,
			MovementType:     enums.StockMovementSold,
			ReferenceOrderID: &order.ID,
			ActorID:          actorID,
			Notes:            "order " + order.OrderNumber,
		}); err != nil {
			return err
		}

		item := models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			Quantity:    reservation.QuantityRequested,
			UnitPrice:   finalPrice,
			TotalPrice:  reservation.TotalAmount,
			ProductName: product.Name,
			ProductUnit: product.Unit,
		}
		if err := ordersRepo.CreateItems(ctx, []models.OrderItem{item}); err != nil {
			return err
		}
		if err := ordersRepo.AppendHistory(ctx, &models.OrderStatusHistory{
			ID:          uuid.New(),
			OrderID:     order.ID,
			Status:      enums.OrderStatusPending,
			Notes:       "order created from reservation",
			ChangedByID: actorID,
		}); err != nil {
			return err
		}

		reservation.Status = enums.ReservationStatusCompleted
		if err := saveGuarded(ctx, repo, reservation, enums.ReservationStatusAccepted); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				FarmerID:    order.FarmerID,
				OrderType:   order.OrderType,
				TotalAmount: order.TotalAmount,
				ItemCount:   1,
			},
			Version: 1,
		}); err != nil {
			return err
		}
		if err := s.emitResponded(ctx, tx, reservation, actorID, "", &order.ID); err != nil {
			return err
		}

		order.Items = []models.OrderItem{item}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ExpireDue promotes pending and counter-offered reservations whose deadline
// has passed. Each promotion runs in its own transaction so one bad row does
// not stall the sweep.
func (s *service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for i := range due {
		reservation := due[i]
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			current, err := repo.FindByID(ctx, reservation.ID)
			if err != nil {
				return err
			}
			// A response may have landed between the scan and this row.
			if current.Status != enums.ReservationStatusPending && current.Status != enums.ReservationStatusCounterOffered {
				return nil
			}

			fromStatus := current.Status
			current.Status = enums.ReservationStatusExpired
			if err := saveGuarded(ctx, repo, current, fromStatus); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationExpired,
				AggregateType: enums.AggregateReservation,
				AggregateID:   current.ID,
				Data: payloads.ReservationExpiredEvent{
					ReservationID: current.ID,
					BuyerID:       current.BuyerID,
					FarmerID:      current.FarmerID,
					ProductID:     current.ProductID,
					ExpiredAt:     now,
				},
				Version: 1,
			}); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("expire reservation %s: %w", reservation.ID, err))
		}
	}
	return expired, multierr.Combine(errs...)
}

func (s *service) GetByID(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	reservation, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, err
	}
	return reservation, nil
}

func (s *service) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Reservation, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	return s.repo.ListByBuyer(ctx, buyerID, limit)
}

func (s *service) ListByFarmer(ctx context.Context, farmerID uuid.UUID, statuses []enums.ReservationStatus, limit int) ([]models.Reservation, error) {
	if farmerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "farmer id is required")
	}
	return s.repo.ListByFarmer(ctx, farmerID, statuses, limit)
}

// createWithOrderNumber inserts the order, regenerating the number on a
// unique violation. Each attempt runs in a nested transaction (a savepoint
// on Postgres) so a violation does not poison the enclosing transaction.
func (s *service) createWithOrderNumber(ctx context.Context, tx *gorm.DB, ordersRepo orders.Repository, order *models.Order) error {
	for attempt := 0; attempt < reservationOrderAttempts; attempt++ {
		number, err := checkout.GenerateOrderNumber(s.now())
		if err != nil {
			return err
		}
		order.OrderNumber = number

		err = tx.Transaction(func(nested *gorm.DB) error {
			return ordersRepo.WithTx(nested).CreateOrder(ctx, order)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "order_number") {
			return err
		}
	}
	return pkgerrors.New(pkgerrors.CodeDependency, "could not allocate a unique order number")
}

func (s *service) emitResponded(ctx context.Context, tx *gorm.DB, reservation *models.Reservation, actorID uuid.UUID, role string, orderID *uuid.UUID) error {
	var actor *outbox.ActorRef
	if actorID != uuid.Nil {
		actor = &outbox.ActorRef{UserID: actorID, Role: role}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReservationResolved,
		AggregateType: enums.AggregateReservation,
		AggregateID:   reservation.ID,
		Actor:         actor,
		Data: payloads.ReservationRespondedEvent{
			ReservationID:     reservation.ID,
			BuyerID:           reservation.BuyerID,
			FarmerID:          reservation.FarmerID,
			Status:            reservation.Status,
			CounterOfferPrice: reservation.CounterOfferPrice,
			OrderID:           orderID,
		},
		Version: 1,
	})
}

func transitionError(from, to enums.ReservationStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal reservation transition").
		WithDetails(map[string]any{"from": from, "to": to})
}

// saveGuarded persists the reservation guarded on the status it was read
// at, turning a lost race into a state conflict for the caller.
func saveGuarded(ctx context.Context, repo ReservationRepository, reservation *models.Reservation, from enums.ReservationStatus) error {
	err := repo.Save(ctx, reservation, from)
	if errors.Is(err, errStaleStatus) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation was updated concurrently").
			WithDetails(map[string]any{"reservation_id": reservation.ID, "to": reservation.Status})
	}
	return err
}
