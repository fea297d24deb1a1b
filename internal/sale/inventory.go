package sale

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

type InventoryLedger struct{}

// Reserve prices every cart line against the catalog snapshot and checks that
// the summed quantity per product fits in stock. Unknown or inactive products
// report zero available.
func (InventoryLedger) Reserve(lines []domain.CartLine, products map[string]domain.Product) ([]domain.SaleLine, error) {
	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity %d for %s", domain.ErrInvalidAmount, line.Quantity, line.ProductID)
		}
		if line.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: unit price %s for %s", domain.ErrInvalidAmount, line.UnitPrice, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}

	saleLines := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.Active {
			return nil, &domain.InsufficientStockError{ProductID: line.ProductID, Available: 0, Requested: requested[line.ProductID]}
		}
		if product.Stock < requested[line.ProductID] {
			return nil, &domain.InsufficientStockError{ProductID: line.ProductID, Available: product.Stock, Requested: requested[line.ProductID]}
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		total := line.UnitPrice.Mul(qty).Round(2)
		cost := product.UnitCost.Mul(qty).Round(2)
		saleLines = append(saleLines, domain.SaleLine{
			ProductID:  line.ProductID,
			Name:       product.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			UnitCost:   product.UnitCost,
			LineTotal:  total,
			LineCost:   cost,
			LineMargin: total.Sub(cost),
		})
	}
	return saleLines, nil
}

// Apply stages one decrement per product carrying the snapshot version.
// Decrements are ordered by product id so concurrent commits lock stock rows
// in the same order.
func (InventoryLedger) Apply(lines []domain.SaleLine, products map[string]domain.Product) []store.Mutation {
	order := make([]string, 0, len(lines))
	qty := make(map[string]int, len(lines))
	for _, line := range lines {
		if _, seen := qty[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		qty[line.ProductID] += line.Quantity
	}
	slices.Sort(order)

	mutations := make([]store.Mutation, 0, len(order))
	for _, id := range order {
		mutations = append(mutations, store.StockDecrement{
			ProductID:       id,
			Quantity:        qty[id],
			ExpectedVersion: products[id].Version,
		})
	}
	return mutations
}
