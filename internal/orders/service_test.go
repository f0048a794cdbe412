package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/farm2market/farm2market-backend/pkg/errors"

	"github.com/farm2market/farm2market-backend/internal/ledger"
	"github.com/farm2market/farm2market-backend/pkg/db/models"
	"github.com/farm2market/farm2market-backend/pkg/enums"
	"github.com/farm2market/farm2market-backend/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  farmer_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'available',
  price NUMERIC NOT NULL DEFAULT 0,
  quantity INTEGER NOT NULL DEFAULT 0,
  reserved_quantity INTEGER NOT NULL DEFAULT 0,
  minimum_order_quantity INTEGER NOT NULL DEFAULT 1,
  keywords TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  farmer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  order_type TEXT NOT NULL DEFAULT 'immediate',
  subtotal NUMERIC NOT NULL DEFAULT 0,
  delivery_fee NUMERIC NOT NULL DEFAULT 0,
  tax_amount NUMERIC NOT NULL DEFAULT 0,
  total_amount NUMERIC NOT NULL DEFAULT 0,
  delivery_address TEXT,
  delivery_method TEXT NOT NULL DEFAULT 'pickup',
  payment_method TEXT NOT NULL DEFAULT 'cash',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  preferred_delivery_date DATETIME,
  actual_delivery_date DATETIME,
  notes TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  total_price NUMERIC NOT NULL,
  product_name TEXT NOT NULL,
  product_unit TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (order_id, product_id)
);`,
		`CREATE TABLE IF NOT EXISTS order_status_history (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  status TEXT NOT NULL,
  notes TEXT NOT NULL DEFAULT '',
  changed_by_id TEXT NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  movement_type TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  stock_after INTEGER NOT NULL,
  reference_order_id TEXT,
  created_by_id TEXT NOT NULL,
  notes TEXT NOT NULL DEFAULT '',
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  created_at DATETIME
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type ordersFixture struct {
	db     *gorm.DB
	svc    Service
	repo   Repository
	ledger ledger.Service
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()

	db := setupOrdersTestDB(t)
	runner := &testTxRunner{db: db}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)

	repo := NewRepository(db)
	publisher := outbox.NewService(outbox.NewRepository(db), nil)

	svc, err := NewService(runner, repo, ledgerSvc, publisher)
	require.NoError(t, err)

	return &ordersFixture{db: db, svc: svc, repo: repo, ledger: ledgerSvc}
}

// seedSoldOrder creates a pending order whose lines were already debited
// through the ledger, the state checkout leaves behind.
func (f *ordersFixture) seedSoldOrder(t *testing.T, lines map[string]int) (*models.Order, map[string]*models.Product) {
	t.Helper()
	ctx := context.Background()

	buyerID := uuid.New()
	farmerID := uuid.New()
	order := &models.Order{
		ID:             uuid.New(),
		OrderNumber:    "ORD-20260815-" + uuid.NewString()[:4],
		BuyerID:        buyerID,
		FarmerID:       farmerID,
		Status:         enums.OrderStatusPending,
		OrderType:      enums.OrderTypeImmediate,
		Subtotal:       decimal.RequireFromString("10.00"),
		DeliveryFee:    decimal.RequireFromString("5.00"),
		TaxAmount:      decimal.Zero,
		TotalAmount:    decimal.RequireFromString("15.00"),
		DeliveryMethod: enums.DeliveryMethodDelivery,
		PaymentMethod:  enums.PaymentMethodCash,
		PaymentStatus:  enums.PaymentStatusPending,
	}
	require.NoError(t, f.repo.CreateOrder(ctx, order))

	products := map[string]*models.Product{}
	for name, qty := range lines {
		product := &models.Product{
			ID:       uuid.New(),
			FarmerID: farmerID,
			Name:     name,
			Unit:     "kg",
			Status:   enums.ProductStatusAvailable,
			Price:    decimal.RequireFromString("1.00"),
			Quantity: 10,
		}
		require.NoError(t, f.db.Create(product).Error)
		products[name] = product

		_, err := f.ledger.Apply(ctx, f.db, ledger.ApplyInput{
			ProductID:        product.ID,
			Quantity:         -qty,
			MovementType:     enums.StockMovementSold,
			ReferenceOrderID: &order.ID,
			ActorID:          buyerID,
		})
		require.NoError(t, err)

		require.NoError(t, f.repo.CreateItems(ctx, []models.OrderItem{{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			Quantity:    qty,
			UnitPrice:   product.Price,
			TotalPrice:  product.Price.Mul(decimal.NewFromInt(int64(qty))),
			ProductName: name,
			ProductUnit: product.Unit,
		}}))
	}

	require.NoError(t, f.repo.AppendHistory(ctx, &models.OrderStatusHistory{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Status:      enums.OrderStatusPending,
		ChangedByID: buyerID,
	}))
	return order, products
}

func TestUpdateStatusCancelRestoresStock(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order, products := f.seedSoldOrder(t, map[string]int{"Tomatoes": 4, "Onions": 5})
	actorID := uuid.New()

	updated, err := f.svc.UpdateStatus(ctx, order.ID, enums.OrderStatusCancelled, actorID, "buyer changed plans")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, updated.Status)

	for name, product := range products {
		var reloaded models.Product
		require.NoError(t, f.db.First(&reloaded, "id = ?", product.ID).Error)
		assert.Equal(t, 10, reloaded.Quantity, "product %s should be fully restored", name)
	}

	// the ledger nets to zero per product: SOLD fully compensated by RETURN
	net, err := f.ledger.NetByOrder(ctx, order.ID)
	require.NoError(t, err)
	for productID, delta := range net {
		assert.Zero(t, delta, "product %s not compensated", productID)
	}

	movements, err := f.ledger.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	returns := 0
	for _, movement := range movements {
		if movement.MovementType == enums.StockMovementReturn {
			returns++
		}
	}
	assert.Equal(t, 2, returns)

	reloaded, err := f.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.StatusHistory, 2)
	assert.Equal(t, enums.OrderStatusPending, reloaded.StatusHistory[0].Status)
	assert.Equal(t, enums.OrderStatusCancelled, reloaded.StatusHistory[1].Status)
	assert.Equal(t, "buyer changed plans", reloaded.StatusHistory[1].Notes)
}

func TestSaveStatusRefusesStaleSnapshot(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order, products := f.seedSoldOrder(t, map[string]int{"Tomatoes": 4})
	actorID := uuid.New()

	_, err := f.svc.UpdateStatus(ctx, order.ID, enums.OrderStatusCancelled, actorID, "first cancel")
	require.NoError(t, err)

	// a second writer still holding the pending snapshot must lose the
	// guarded write instead of restoring stock again
	stale := *order
	stale.Status = enums.OrderStatusCancelled
	err = f.repo.SaveStatus(ctx, &stale, enums.OrderStatusPending)
	require.ErrorIs(t, err, errStaleStatus)

	var reloaded models.Product
	require.NoError(t, f.db.First(&reloaded, "id = ?", products["Tomatoes"].ID).Error)
	assert.Equal(t, 10, reloaded.Quantity, "stock must be restored exactly once")

	movements, err := f.ledger.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	returns := 0
	for _, movement := range movements {
		if movement.MovementType == enums.StockMovementReturn {
			returns++
		}
	}
	assert.Equal(t, 1, returns)
}

func TestStatusHistoryRowsLandInMigratedTable(t *testing.T) {
	f := newOrdersFixture(t)

	order, _ := f.seedSoldOrder(t, map[string]int{"Tomatoes": 1})

	// query the literal table name the migrations create, not the model,
	// so a drifting gorm mapping fails here instead of in production
	var count int64
	require.NoError(t, f.db.Table("order_status_history").
		Where("order_id = ?", order.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order, _ := f.seedSoldOrder(t, map[string]int{"Tomatoes": 2})

	_, err := f.svc.UpdateStatus(ctx, order.ID, enums.OrderStatusDelivered, uuid.New(), "")
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperrors.CodeStateConflict, typed.Code())

	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.OrderStatusPending, details["from"])
	assert.Equal(t, enums.OrderStatusDelivered, details["to"])

	// status unchanged, no extra history rows, no stock movement
	reloaded, err := f.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, reloaded.Status)
	assert.Len(t, reloaded.StatusHistory, 1)
}

func TestUpdateStatusDeliveredStampsActualDate(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order, _ := f.seedSoldOrder(t, map[string]int{"Tomatoes": 2})
	actorID := uuid.New()

	for _, status := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusDelivered,
	} {
		_, err := f.svc.UpdateStatus(ctx, order.ID, status, actorID, "")
		require.NoError(t, err)
	}

	reloaded, err := f.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, reloaded.Status)
	require.NotNil(t, reloaded.ActualDeliveryDate)
	assert.Len(t, reloaded.StatusHistory, 5)
}

func TestUpdateStatusRefundRestoresStockAndPaymentStatus(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order, products := f.seedSoldOrder(t, map[string]int{"Tomatoes": 3})
	actorID := uuid.New()

	for _, status := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusDelivered,
		enums.OrderStatusRefunded,
	} {
		_, err := f.svc.UpdateStatus(ctx, order.ID, status, actorID, "")
		require.NoError(t, err)
	}

	reloaded, err := f.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRefunded, reloaded.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, reloaded.PaymentStatus)

	var product models.Product
	require.NoError(t, f.db.First(&product, "id = ?", products["Tomatoes"].ID).Error)
	assert.Equal(t, 10, product.Quantity)
}

func TestUpdateStatusEmitsEvent(t *testing.T) {
	f := newOrdersFixture(t)
	ctx := context.Background()

	order, _ := f.seedSoldOrder(t, map[string]int{"Tomatoes": 1})

	_, err := f.svc.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed, uuid.New(), "")
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventOrderStatusChanged, order.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	f := newOrdersFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), enums.OrderStatusConfirmed, uuid.New(), "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
