package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/farm2market/farm2market-backend/pkg/errors"

	"github.com/farm2market/farm2market-backend/pkg/db/models"
	"github.com/farm2market/farm2market-backend/pkg/enums"
)

type fakeRepository struct {
	product    *models.Product
	saved      *models.Product
	movements  []*models.StockMovement
	getErr     error
	saveErr    error
	createErr  error
	listByProd []models.StockMovement
	listByOrd  []models.StockMovement
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) GetProductForUpdate(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.product == nil || f.product.ID != productID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f.product
	return &copied, nil
}

func (f *fakeRepository) SaveProductStock(ctx context.Context, product *models.Product) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = product
	return nil
}

func (f *fakeRepository) CreateMovement(ctx context.Context, movement *models.StockMovement) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.movements = append(f.movements, movement)
	return nil
}

func (f *fakeRepository) ListByProductID(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error) {
	return f.listByProd, nil
}

func (f *fakeRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.StockMovement, error) {
	return f.listByOrd, nil
}

func newTestProduct(quantity, reserved int) *models.Product {
	return &models.Product{
		ID:               uuid.New(),
		FarmerID:         uuid.New(),
		Name:             "Tomatoes",
		Unit:             "kg",
		Status:           enums.ProductStatusAvailable,
		Quantity:         quantity,
		ReservedQuantity: reserved,
	}
}

func TestService_ApplySoldDecrementsOnHand(t *testing.T) {
	product := newTestProduct(10, 0)
	repo := &fakeRepository{product: product}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	orderID := uuid.New()
	movement, err := svc.Apply(context.Background(), nil, ApplyInput{
		ProductID:        product.ID,
		Quantity:         -4,
		MovementType:     enums.StockMovementSold,
		ReferenceOrderID: &orderID,
		ActorID:          uuid.New(),
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if repo.saved == nil || repo.saved.Quantity != 6 {
		t.Fatalf("expected on-hand 6, got %+v", repo.saved)
	}
	if movement.StockAfter != 6 {
		t.Fatalf("expected stock_after 6, got %d", movement.StockAfter)
	}
	if movement.ReferenceOrderID == nil || *movement.ReferenceOrderID != orderID {
		t.Fatalf("expected reference order id on movement")
	}
	if len(repo.movements) != 1 {
		t.Fatalf("expected one movement row, got %d", len(repo.movements))
	}
}

func TestService_ApplyReservedMovesHoldNotOnHand(t *testing.T) {
	product := newTestProduct(10, 2)
	repo := &fakeRepository{product: product}
	svc, _ := NewService(repo)

	movement, err := svc.Apply(context.Background(), nil, ApplyInput{
		ProductID:    product.ID,
		Quantity:     3,
		MovementType: enums.StockMovementReserved,
		ActorID:      uuid.New(),
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if repo.saved.Quantity != 10 {
		t.Fatalf("on-hand should be untouched, got %d", repo.saved.Quantity)
	}
	if repo.saved.ReservedQuantity != 5 {
		t.Fatalf("expected reserved 5, got %d", repo.saved.ReservedQuantity)
	}
	if movement.StockAfter != 10 {
		t.Fatalf("stock_after snapshots on-hand, got %d", movement.StockAfter)
	}
}

func TestService_ApplyRejectsOversell(t *testing.T) {
	product := newTestProduct(3, 0)
	repo := &fakeRepository{product: product}
	svc, _ := NewService(repo)

	_, err := svc.Apply(context.Background(), nil, ApplyInput{
		ProductID:    product.ID,
		Quantity:     -5,
		MovementType: enums.StockMovementSold,
		ActorID:      uuid.New(),
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if repo.saved != nil || len(repo.movements) != 0 {
		t.Fatalf("failed apply must not persist anything")
	}
}

func TestService_ApplyRejectsReserveBeyondAvailable(t *testing.T) {
	product := newTestProduct(10, 8)
	repo := &fakeRepository{product: product}
	svc, _ := NewService(repo)

	_, err := svc.Apply(context.Background(), nil, ApplyInput{
		ProductID:    product.ID,
		Quantity:     3,
		MovementType: enums.StockMovementReserved,
		ActorID:      uuid.New(),
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestService_ApplyRejectsDroppingBelowReserved(t *testing.T) {
	product := newTestProduct(10, 6)
	repo := &fakeRepository{product: product}
	svc, _ := NewService(repo)

	_, err := svc.Apply(context.Background(), nil, ApplyInput{
		ProductID:    product.ID,
		Quantity:     -5,
		MovementType: enums.StockMovementOut,
		ActorID:      uuid.New(),
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestService_ApplyValidation(t *testing.T) {
	product := newTestProduct(10, 0)
	repo := &fakeRepository{product: product}
	svc, _ := NewService(repo)

	tests := []struct {
		name  string
		input ApplyInput
	}{
		{
			name: "missing product id",
			input: ApplyInput{
				Quantity:     -1,
				MovementType: enums.StockMovementSold,
				ActorID:      uuid.New(),
			},
		},
		{
			name: "missing actor",
			input: ApplyInput{
				ProductID:    product.ID,
				Quantity:     -1,
				MovementType: enums.StockMovementSold,
			},
		},
		{
			name: "zero quantity",
			input: ApplyInput{
				ProductID:    product.ID,
				MovementType: enums.StockMovementSold,
				ActorID:      uuid.New(),
			},
		},
		{
			name: "invalid type",
			input: ApplyInput{
				ProductID:    product.ID,
				Quantity:     -1,
				MovementType: enums.StockMovementType("not_real"),
				ActorID:      uuid.New(),
			},
		},
		{
			name: "positive sold",
			input: ApplyInput{
				ProductID:    product.ID,
				Quantity:     2,
				MovementType: enums.StockMovementSold,
				ActorID:      uuid.New(),
			},
		},
		{
			name: "negative return",
			input: ApplyInput{
				ProductID:    product.ID,
				Quantity:     -2,
				MovementType: enums.StockMovementReturn,
				ActorID:      uuid.New(),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Apply(context.Background(), nil, tc.input); !apperrors.IsCode(err, apperrors.CodeValidation) {
				t.Fatalf("expected validation error for %s, got %v", tc.name, err)
			}
		})
	}
}

func TestService_ApplyUnknownProduct(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	_, err := svc.Apply(context.Background(), nil, ApplyInput{
		ProductID:    uuid.New(),
		Quantity:     -1,
		MovementType: enums.StockMovementSold,
		ActorID:      uuid.New(),
	})
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_ApplyRepoErrorBubblesUp(t *testing.T) {
	product := newTestProduct(10, 0)
	expectedErr := errors.New("boom")
	repo := &fakeRepository{product: product, createErr: expectedErr}
	svc, _ := NewService(repo)

	_, err := svc.Apply(context.Background(), nil, ApplyInput{
		ProductID:    product.ID,
		Quantity:     -1,
		MovementType: enums.StockMovementSold,
		ActorID:      uuid.New(),
	})
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}

func TestService_NetByOrderSkipsHoldMovements(t *testing.T) {
	productID := uuid.New()
	otherID := uuid.New()
	repo := &fakeRepository{
		listByOrd: []models.StockMovement{
			{ProductID: productID, MovementType: enums.StockMovementSold, Quantity: -4},
			{ProductID: productID, MovementType: enums.StockMovementReturn, Quantity: 4},
			{ProductID: productID, MovementType: enums.StockMovementReserved, Quantity: 2},
			{ProductID: otherID, MovementType: enums.StockMovementSold, Quantity: -1},
		},
	}
	svc, _ := NewService(repo)

	net, err := svc.NetByOrder(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("NetByOrder error: %v", err)
	}
	if net[productID] != 0 {
		t.Fatalf("expected compensated product to net zero, got %d", net[productID])
	}
	if net[otherID] != -1 {
		t.Fatalf("expected -1 for uncompensated product, got %d", net[otherID])
	}
}
