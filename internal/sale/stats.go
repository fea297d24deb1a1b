package sale

import (
	"fmt"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

// DailyStatsAggregator buckets sales by calendar day in the shop's time zone.
type DailyStatsAggregator struct {
	Location *time.Location
}

func (a DailyStatsAggregator) DateKey(t time.Time) string {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}

func (DailyStatsAggregator) Delta(sale domain.Sale) domain.DailyStatDelta {
	products := make(map[string]domain.ProductStat, len(sale.Lines))
	for _, line := range sale.Lines {
		cur := products[line.ProductID]
		cur.Quantity += line.Quantity
		cur.Revenue = cur.Revenue.Add(line.LineTotal)
		cur.Margin = cur.Margin.Add(line.LineMargin)
		products[line.ProductID] = cur
	}
	return domain.DailyStatDelta{
		TotalSales:     sale.GrandTotal,
		TotalCollected: sale.Settled(),
		TotalCash:      sale.PaidAmount,
		TotalCredit:    sale.RemainingAmount,
		TotalMargin:    sale.TotalMargin,
		SaleCount:      1,
		Products:       products,
	}
}

// Increment stages the delta for (shopID, date). Stats only ever grow.
func (DailyStatsAggregator) Increment(shopID string, date string, delta domain.DailyStatDelta) (store.Mutation, error) {
	if delta.Negative() {
		return nil, fmt.Errorf("%w: negative daily stat delta", domain.ErrInvalidAmount)
	}
	return store.DailyStatIncrement{ShopID: shopID, Date: date, Delta: delta}, nil
}
