package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/farm2market/farm2market-backend/pkg/errors"

	"github.com/farm2market/farm2market-backend/pkg/db/models"
	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// Service is the single write path for product stock. Every quantity change
// locks the product row, applies the signed delta, and appends a movement.
type Service interface {
	Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.StockMovement, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockMovement, error)
	NetByOrder(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error)
}

type service struct {
	repo Repository
}

// ApplyInput captures a single signed stock movement.
type ApplyInput struct {
	ProductID        uuid.UUID
	Quantity         int
	MovementType     enums.StockMovementType
	ReferenceOrderID *uuid.UUID
	ActorID          uuid.UUID
	Notes            string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.StockMovement, error) {
	if err := validateApplyInput(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)

	product, err := repo.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "product not found")
		}
		return nil, err
	}

	if input.MovementType.AffectsReserved() {
		reserved := product.ReservedQuantity + input.Quantity
		if reserved < 0 {
			return nil, apperrors.New(apperrors.CodeConflict, "reserved quantity cannot go negative").
				WithDetails(map[string]any{"product_id": product.ID, "reserved": product.ReservedQuantity, "delta": input.Quantity})
		}
		if reserved > product.Quantity {
			return nil, apperrors.New(apperrors.CodeConflict, "insufficient available stock to reserve").
				WithDetails(map[string]any{"product_id": product.ID, "available": product.AvailableQuantity(), "requested": input.Quantity})
		}
		product.ReservedQuantity = reserved
	} else {
		quantity := product.Quantity + input.Quantity
		if quantity < 0 {
			return nil, apperrors.New(apperrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{"product_id": product.ID, "on_hand": product.Quantity, "delta": input.Quantity})
		}
		if quantity < product.ReservedQuantity {
			return nil, apperrors.New(apperrors.CodeConflict, "on-hand stock cannot drop below reserved holds").
				WithDetails(map[string]any{"product_id": product.ID, "reserved": product.ReservedQuantity, "delta": input.Quantity})
		}
		product.Quantity = quantity
	}

	movement := &models.StockMovement{
		ID:               uuid.New(),
		ProductID:        product.ID,
		MovementType:     input.MovementType,
		Quantity:         input.Quantity,
		StockAfter:       product.Quantity,
		ReferenceOrderID: input.ReferenceOrderID,
		CreatedByID:      input.ActorID,
		Notes:            input.Notes,
	}

	if err := repo.SaveProductStock(ctx, product); err != nil {
		return nil, err
	}
	if err := repo.CreateMovement(ctx, movement); err != nil {
		return nil, err
	}
	return movement, nil
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error) {
	if productID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "product id is required")
	}
	return s.repo.ListByProductID(ctx, productID, limit)
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockMovement, error) {
	if orderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

// NetByOrder sums the signed on-hand deltas per product for an order. A fully
// compensated order nets to zero for every product it touched.
func (s *service) NetByOrder(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	movements, err := s.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	net := make(map[uuid.UUID]int)
	for _, movement := range movements {
		if movement.MovementType.AffectsReserved() {
			continue
		}
		net[movement.ProductID] += movement.Quantity
	}
	return net, nil
}

func validateApplyInput(input ApplyInput) error {
	if input.ProductID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "product id is required")
	}
	if input.ActorID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "actor id is required")
	}
	if !input.MovementType.IsValid() {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid movement type %q", input.MovementType))
	}
	if input.Quantity == 0 {
		return apperrors.New(apperrors.CodeValidation, "movement quantity cannot be zero")
	}
	if err := checkDirection(input.MovementType, input.Quantity); err != nil {
		return err
	}
	return nil
}

// checkDirection rejects movements whose sign contradicts their type, e.g. a
// positive SOLD or a negative RETURN.
func checkDirection(movementType enums.StockMovementType, quantity int) error {
	switch movementType {
	case enums.StockMovementIn, enums.StockMovementReturn, enums.StockMovementReserved:
		if quantity < 0 {
			return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("%s movements must be positive", movementType))
		}
	case enums.StockMovementOut, enums.StockMovementSold, enums.StockMovementExpired,
		enums.StockMovementDamaged, enums.StockMovementUnreserved:
		if quantity > 0 {
			return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("%s movements must be negative", movementType))
		}
	}
	return nil
}
