package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/farm2market/farm2market-backend/pkg/errors"

	"github.com/farm2market/farm2market-backend/internal/cart"
	"github.com/farm2market/farm2market-backend/internal/checkout/helpers"
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

// Service turns a validated cart into one order per farmer, atomically.
type Service interface {
	CreateOrdersFromCart(ctx context.Context, buyerID uuid.UUID, input CheckoutInput) ([]models.Order, error)
}

// CheckoutInput captures buyer choices made at checkout time.
type CheckoutInput struct {
	DeliveryAddress       *string
	DeliveryMethod        enums.DeliveryMethod
	PaymentMethod         enums.PaymentMethod
	PreferredDeliveryDate *time.Time
	Notes                 string
}

type service struct {
	tx             txRunner
	cartRepo       cart.CartRepository
	orders         orders.Repository
	ledger         ledger.Service
	pricing        PricingPolicy
	outbox         outboxPublisher
	now            func() time.Time
	generateNumber func(time.Time) (string, error)
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo cart.CartRepository,
	ordersRepo orders.Repository,
	ledgerSvc ledger.Service,
	pricing PricingPolicy,
	publisher outboxPublisher,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if pricing == nil {
		return nil, fmt.Errorf("pricing policy required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		tx:             tx,
		cartRepo:       cartRepo,
		orders:         ordersRepo,
		ledger:         ledgerSvc,
		pricing:        pricing,
		outbox:         publisher,
		now:            time.Now,
		generateNumber: GenerateOrderNumber,
	}, nil
}

func (s *service) CreateOrdersFromCart(ctx context.Context, buyerID uuid.UUID, input CheckoutInput) ([]models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if !input.DeliveryMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery method")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.DeliveryMethod != enums.DeliveryMethodPickup &&
		(input.DeliveryAddress == nil || *input.DeliveryAddress == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required for delivery orders")
	}

	var created []models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		record, err := cartRepo.FindByBuyer(ctx, buyerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
			}
			return err
		}
		if record.IsEmpty() {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		if invalid := cart.InvalidLines(record); len(invalid) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains unfulfillable lines").
				WithDetails(map[string]any{"invalid_lines": invalid})
		}

		grouped := helpers.GroupCartItemsByFarmer(record.Items)
		totals := helpers.ComputeTotalsByFarmer(record.Items)

		created = make([]models.Order, 0, len(grouped))
		for farmerID, items := range grouped {
			order, err := s.createFarmerOrder(ctx, tx, ordersRepo, buyerID, farmerID, items, totals[farmerID], input)
			if err != nil {
				return err
			}
			created = append(created, *order)
		}

		// clearing inside the transaction keeps "cart emptied" and "orders
		// exist" a single observable step
		return cartRepo.ClearItems(ctx, record.ID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) createFarmerOrder(
	ctx context.Context,
	tx *gorm.DB,
	ordersRepo orders.Repository,
	buyerID, farmerID uuid.UUID,
	items []models.CartItem,
	totals helpers.FarmerCartTotals,
	input CheckoutInput,
) (*models.Order, error) {
	deliveryFee, err := s.pricing.DeliveryFee(ctx, farmerID, input.DeliveryAddress, input.DeliveryMethod)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "computing delivery fee")
	}
	tax, err := s.pricing.Tax(ctx, totals.Subtotal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "computing tax")
	}

	order := &models.Order{
		ID:                    uuid.New(),
		BuyerID:               buyerID,
		FarmerID:              farmerID,
		Status:                enums.OrderStatusPending,
		OrderType:             enums.OrderTypeImmediate,
		Subtotal:              totals.Subtotal,
		DeliveryFee:           deliveryFee,
		TaxAmount:             tax,
		DeliveryAddress:       input.DeliveryAddress,
		DeliveryMethod:        input.DeliveryMethod,
		PaymentMethod:         input.PaymentMethod,
		PaymentStatus:         enums.PaymentStatusPending,
		PreferredDeliveryDate: input.PreferredDeliveryDate,
		Notes:                 input.Notes,
	}
	order.RecomputeTotal()

	if err := s.createWithOrderNumber(ctx, tx, ordersRepo, order); err != nil {
		return nil, err
	}

	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		product := item.Product

		// locked live re-check and decrement in one step
		if _, err := s.ledger.Apply(ctx, tx, ledger.ApplyInput{
			ProductID:        product.ID,
			Quantity:         -item.Quantity,
			MovementType:     enums.StockMovementSold,
			ReferenceOrderID: &order.ID,
			ActorID:          buyerID,
			Notes:            "order " + order.OrderNumber,
		}); err != nil {
			return nil, err
		}

		orderItems = append(orderItems, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			TotalPrice:  product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			ProductName: product.Name,
			ProductUnit: product.Unit,
		})
	}

	if err := ordersRepo.CreateItems(ctx, orderItems); err != nil {
		return nil, err
	}
	if err := ordersRepo.AppendHistory(ctx, &models.OrderStatusHistory{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Status:      enums.OrderStatusPending,
		ChangedByID: buyerID,
	}); err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: buyerID, Role: "buyer"},
		Data: payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			BuyerID:     buyerID,
			FarmerID:    farmerID,
			OrderType:   order.OrderType,
			TotalAmount: order.TotalAmount,
			ItemCount:   len(orderItems),
		},
		Version: 1,
	}); err != nil {
		return nil, err
	}

	order.Items = orderItems
	return order, nil
}

// createWithOrderNumber inserts the order, regenerating the number on a
// unique violation. Each attempt runs in a nested transaction (a savepoint
// on Postgres) so a violation does not poison the enclosing transaction.
func (s *service) createWithOrderNumber(ctx context.Context, tx *gorm.DB, ordersRepo orders.Repository, order *models.Order) error {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := s.generateNumber(s.now())
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
