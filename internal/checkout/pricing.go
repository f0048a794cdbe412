package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farm2market/farm2market-backend/pkg/config"
	"github.com/farm2market/farm2market-backend/pkg/enums"
)

// PricingPolicy decides delivery fees and tax per farmer order. Injected so
// deployments can swap in zone- or weight-based pricing without touching the
// checkout flow.
type PricingPolicy interface {
	DeliveryFee(ctx context.Context, farmerID uuid.UUID, deliveryAddress *string, method enums.DeliveryMethod) (decimal.Decimal, error)
	Tax(ctx context.Context, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// FlatPricingPolicy charges a flat delivery fee for anything that leaves the
// farm and applies a proportional tax rate.
type FlatPricingPolicy struct {
	fee     decimal.Decimal
	taxRate decimal.Decimal
}

// NewFlatPricingPolicy parses the configured flat fee and tax rate.
func NewFlatPricingPolicy(cfg config.PricingConfig) (*FlatPricingPolicy, error) {
	fee, err := decimal.NewFromString(cfg.FlatDeliveryFee)
	if err != nil {
		return nil, fmt.Errorf("parsing flat delivery fee %q: %w", cfg.FlatDeliveryFee, err)
	}
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("parsing tax rate %q: %w", cfg.TaxRate, err)
	}
	if fee.IsNegative() || rate.IsNegative() {
		return nil, fmt.Errorf("pricing values must be non-negative")
	}
	return &FlatPricingPolicy{fee: fee, taxRate: rate}, nil
}

func (p *FlatPricingPolicy) DeliveryFee(ctx context.Context, farmerID uuid.UUID, deliveryAddress *string, method enums.DeliveryMethod) (decimal.Decimal, error) {
	if method == enums.DeliveryMethodPickup {
		return decimal.Zero, nil
	}
	return p.fee, nil
}

func (p *FlatPricingPolicy) Tax(ctx context.Context, subtotal decimal.Decimal) (decimal.Decimal, error) {
	return subtotal.Mul(p.taxRate).Round(2), nil
}
