package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/farm2market/farm2market-backend/pkg/errors"

	"github.com/farm2market/farm2market-backend/internal/ledger"
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

// Service drives the order lifecycle. Transitions are validated against the
// status table; cancellation and refund restore stock through the ledger.
type Service interface {
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus enums.OrderStatus, actorID uuid.UUID, notes string) (*models.Order, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Order, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID, statuses []enums.OrderStatus, limit int) ([]models.Order, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	ledger ledger.Service
	outbox outboxPublisher
	now    func() time.Time
}

// NewService wires the order status manager.
func NewService(tx txRunner, repo Repository, ledgerSvc ledger.Service, publisher outboxPublisher) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
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
		ledger: ledgerSvc,
		outbox: publisher,
		now:    time.Now,
	}, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus enums.OrderStatus, actorID uuid.UUID, notes string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id is required")
	}
	if !newStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", newStatus))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}

		oldStatus := order.Status
		if !CanTransition(oldStatus, newStatus) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal status transition").
				WithDetails(map[string]any{"from": oldStatus, "to": newStatus})
		}

		order.Status = newStatus
		switch newStatus {
		case enums.OrderStatusCancelled:
			if err := s.restoreStock(ctx, tx, order, actorID); err != nil {
				return err
			}
		case enums.OrderStatusDelivered:
			deliveredAt := s.now()
			order.ActualDeliveryDate = &deliveredAt
		case enums.OrderStatusRefunded:
			if err := s.restoreStock(ctx, tx, order, actorID); err != nil {
				return err
			}
			order.PaymentStatus = enums.PaymentStatusRefunded
		}

		if err := repo.SaveStatus(ctx, order, oldStatus); err != nil {
			if errors.Is(err, errStaleStatus) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order was updated concurrently").
					WithDetails(map[string]any{"order_id": order.ID, "to": newStatus})
			}
			return err
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			ID:          uuid.New(),
			OrderID:     order.ID,
			Status:      newStatus,
			Notes:       notes,
			ChangedByID: actorID,
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   order.ID,
				OldStatus: oldStatus,
				NewStatus: newStatus,
				ChangedBy: actorID,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// restoreStock compensates the original SOLD debits with RETURN movements.
// Other sales may have happened since checkout, so this is a compensation,
// not an undo.
func (s *service) restoreStock(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID) error {
	for _, item := range order.Items {
		if _, err := s.ledger.Apply(ctx, tx, ledger.ApplyInput{
			ProductID:        item.ProductID,
			Quantity:         item.Quantity,
			MovementType:     enums.StockMovementReturn,
			ReferenceOrderID: &order.ID,
			ActorID:          actorID,
			Notes:            "restock for order " + order.OrderNumber,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return order, nil
}

func (s *service) ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	return s.repo.ListByBuyer(ctx, buyerID, limit)
}

func (s *service) ListByFarmer(ctx context.Context, farmerID uuid.UUID, statuses []enums.OrderStatus, limit int) ([]models.Order, error) {
	if farmerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "farmer id is required")
	}
	return s.repo.ListByFarmer(ctx, farmerID, statuses, limit)
}
