package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farm2market/farm2market-backend/pkg/db/models"
)

// GroupCartItemsByFarmer groups the provided cart items by the product's farmer.
// Items without a loaded product are skipped; callers validate the cart first.
func GroupCartItemsByFarmer(items []models.CartItem) map[uuid.UUID][]models.CartItem {
	grouped := make(map[uuid.UUID][]models.CartItem, len(items))
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		farmerID := item.Product.FarmerID
		grouped[farmerID] = append(grouped[farmerID], item)
	}
	return grouped
}

// FarmerCartTotals captures pre-calculated totals for one farmer's group.
type FarmerCartTotals struct {
	FarmerID  uuid.UUID
	Subtotal  decimal.Decimal
	ItemCount int
}

// ComputeTotalsByFarmer returns live-price subtotals keyed by farmer.
func ComputeTotalsByFarmer(items []models.CartItem) map[uuid.UUID]FarmerCartTotals {
	results := make(map[uuid.UUID]FarmerCartTotals)
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		farmerID := item.Product.FarmerID
		totals, ok := results[farmerID]
		if !ok {
			totals = FarmerCartTotals{FarmerID: farmerID, Subtotal: decimal.Zero}
		}
		totals.Subtotal = totals.Subtotal.Add(item.TotalPrice())
		totals.ItemCount++
		results[farmerID] = totals
	}
	return results
}
