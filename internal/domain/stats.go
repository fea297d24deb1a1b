package domain

import "github.com/shopspring/decimal"

type ProductStat struct {
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
	Margin   decimal.Decimal `json:"margin"`
}

type DailyStat struct {
	ShopID         string                 `json:"shop_id"`
	Date           string                 `json:"date"`
	TotalSales     decimal.Decimal        `json:"total_sales"`
	TotalCollected decimal.Decimal        `json:"total_collected"`
	TotalCash      decimal.Decimal        `json:"total_cash"`
	TotalCredit    decimal.Decimal        `json:"total_credit"`
	TotalMargin    decimal.Decimal        `json:"total_margin"`
	SaleCount      int                    `json:"sale_count"`
	Products       map[string]ProductStat `json:"products"`
}

// DailyStatDelta is what one committed sale adds to its day.
type DailyStatDelta struct {
	TotalSales     decimal.Decimal
	TotalCollected decimal.Decimal
	TotalCash      decimal.Decimal
	TotalCredit    decimal.Decimal
	TotalMargin    decimal.Decimal
	SaleCount      int
	Products       map[string]ProductStat
}

// Negative reports whether any field of the delta would decrease a stat.
func (d DailyStatDelta) Negative() bool {
	if d.TotalSales.IsNegative() || d.TotalCollected.IsNegative() || d.TotalCash.IsNegative() ||
		d.TotalCredit.IsNegative() || d.SaleCount < 0 {
		return true
	}
	for _, p := range d.Products {
		if p.Quantity < 0 || p.Revenue.IsNegative() {
			return true
		}
	}
	return false
}

// Apply adds delta to the stat in place. Margin may be negative for sales
// below cost, so it is summed as is.
func (s *DailyStat) Apply(delta DailyStatDelta) {
	s.TotalSales = s.TotalSales.Add(delta.TotalSales)
	s.TotalCollected = s.TotalCollected.Add(delta.TotalCollected)
	s.TotalCash = s.TotalCash.Add(delta.TotalCash)
	s.TotalCredit = s.TotalCredit.Add(delta.TotalCredit)
	s.TotalMargin = s.TotalMargin.Add(delta.TotalMargin)
	s.SaleCount += delta.SaleCount
	if s.Products == nil {
		s.Products = make(map[string]ProductStat, len(delta.Products))
	}
	for id, p := range delta.Products {
		cur := s.Products[id]
		cur.Quantity += p.Quantity
		cur.Revenue = cur.Revenue.Add(p.Revenue)
		cur.Margin = cur.Margin.Add(p.Margin)
		s.Products[id] = cur
	}
}
