package store

import (
	"time"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
)

// Mutation is one staged write. A batch passed to Repository.Commit is applied
// in full or not at all.
type Mutation interface {
	mutation()
}

// StockDecrement lowers a product's stock if its version still matches.
type StockDecrement struct {
	ProductID       string
	Quantity        int
	ExpectedVersion int64
}

// RegisterCredit adds cash to an open register and journals the movement.
type RegisterCredit struct {
	ShopID          string
	Amount          decimal.Decimal
	ExpectedVersion int64
	Movement        domain.CashMovement
}

// AccountCreate inserts a customer account that did not exist when the sale
// context was loaded.
type AccountCreate struct {
	Account   domain.CustomerAccount
	Movements []domain.AccountMovement
}

// AccountUpdate applies deltas to an existing account if its version still
// matches. The resulting balance must stay non-negative.
type AccountUpdate struct {
	CustomerID         string
	ExpectedVersion    int64
	BalanceDelta       decimal.Decimal
	PaidDelta          decimal.Decimal
	PurchasedDelta     decimal.Decimal
	PurchaseCountDelta int
	LastSaleAt         *time.Time
	Movement           *domain.AccountMovement
}

type SaleInsert struct {
	Sale domain.Sale
}

type ReceivableInsert struct {
	Receivable domain.Receivable
}

// DailyStatIncrement adds a delta to the (shop, date) stat, creating it on
// first use.
type DailyStatIncrement struct {
	ShopID string
	Date   string
	Delta  domain.DailyStatDelta
}

func (StockDecrement) mutation()     {}
func (RegisterCredit) mutation()     {}
func (AccountCreate) mutation()      {}
func (AccountUpdate) mutation()      {}
func (SaleInsert) mutation()         {}
func (ReceivableInsert) mutation()   {}
func (DailyStatIncrement) mutation() {}
