package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/farm2market/farm2market-backend/pkg/errors"

	"github.com/farm2market/farm2market-backend/pkg/db/models"
	"github.com/farm2market/farm2market-backend/pkg/enums"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart operations. Quantities are checked against live
// availability on every mutation, but holds are never placed here; checkout
// re-checks under the row lock.
type Service interface {
	Get(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
	Validate(ctx context.Context, buyerID uuid.UUID) ([]InvalidLine, error)
}

// InvalidLine describes a cart line that can no longer be fulfilled as-is.
type InvalidLine struct {
	ProductID   uuid.UUID           `json:"product_id"`
	ProductName string              `json:"product_name"`
	Requested   int                 `json:"requested"`
	Available   int                 `json:"available"`
	Status      enums.ProductStatus `json:"status"`
}

type service struct {
	repo CartRepository
	tx   txRunner
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Get(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	return s.repo.GetOrCreateByBuyer(ctx, buyerID)
}

func (s *service) AddItem(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		product, err := repo.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return err
		}
		if !product.IsOrderable() {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
				WithDetails(map[string]any{"product_id": product.ID, "status": product.Status})
		}

		cart, err := repo.GetOrCreateByBuyer(ctx, buyerID)
		if err != nil {
			return err
		}

		merged := quantity
		existing, err := repo.FindItem(ctx, cart.ID, productID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			merged += existing.Quantity
		}

		if merged > product.AvailableQuantity() {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds available stock").
				WithDetails(map[string]any{
					"product_id": product.ID,
					"requested":  merged,
					"available":  product.AvailableQuantity(),
				})
		}

		if existing != nil {
			return repo.SaveItemQuantity(ctx, cart.ID, existing.ID, merged)
		}
		return repo.CreateItem(ctx, &models.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: productID,
			Quantity:  merged,
		})
	}); err != nil {
		return nil, err
	}

	return s.repo.FindByBuyer(ctx, buyerID)
}

func (s *service) UpdateItemQuantity(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindByBuyer(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return err
		}

		item, err := repo.FindItem(ctx, cart.ID, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			return err
		}

		// zero or negative removes the line
		if quantity <= 0 {
			return repo.DeleteItem(ctx, cart.ID, productID)
		}

		product, err := repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if quantity > product.AvailableQuantity() {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds available stock").
				WithDetails(map[string]any{
					"product_id": product.ID,
					"requested":  quantity,
					"available":  product.AvailableQuantity(),
				})
		}
		return repo.SaveItemQuantity(ctx, cart.ID, item.ID, quantity)
	}); err != nil {
		return nil, err
	}

	return s.repo.FindByBuyer(ctx, buyerID)
}

func (s *service) RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	cart, err := s.repo.FindByBuyer(ctx, buyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, err
	}
	if err := s.repo.DeleteItem(ctx, cart.ID, productID); err != nil {
		return nil, err
	}
	return s.repo.FindByBuyer(ctx, buyerID)
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if buyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	cart, err := s.repo.FindByBuyer(ctx, buyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.repo.ClearItems(ctx, cart.ID)
}

// Validate rescans every line against live stock and returns the ones that
// can no longer be fulfilled. An empty slice means the cart is checkout-ready.
func (s *service) Validate(ctx context.Context, buyerID uuid.UUID) ([]InvalidLine, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}

	cart, err := s.repo.FindByBuyer(ctx, buyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, err
	}
	return InvalidLines(cart), nil
}

// InvalidLines inspects loaded cart lines against their live products.
func InvalidLines(cart *models.Cart) []InvalidLine {
	invalid := []InvalidLine{}
	for _, item := range cart.Items {
		if item.Product == nil {
			invalid = append(invalid, InvalidLine{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Status:    enums.ProductStatusDiscontinued,
			})
			continue
		}
		product := item.Product
		if !product.IsOrderable() || item.Quantity > product.AvailableQuantity() {
			invalid = append(invalid, InvalidLine{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   product.AvailableQuantity(),
				Status:      product.Status,
			})
		}
	}
	return invalid
}
