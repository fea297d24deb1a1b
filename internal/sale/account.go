package sale

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

// CustomerAccountLedger works on account snapshots. An account with version 0
// has not been persisted yet and is staged as a create.
type CustomerAccountLedger struct{}

func (CustomerAccountLedger) Debit(acct domain.CustomerAccount, amount decimal.Decimal) (domain.CustomerAccount, error) {
	if amount.IsNegative() {
		return acct, fmt.Errorf("%w: debit %s", domain.ErrInvalidAmount, amount)
	}
	if acct.Balance.LessThan(amount) {
		return acct, &domain.InsufficientBalanceError{Available: acct.Balance, Required: amount}
	}
	acct.Balance = acct.Balance.Sub(amount)
	return acct, nil
}

func (CustomerAccountLedger) Credit(acct domain.CustomerAccount, amount decimal.Decimal) (domain.CustomerAccount, error) {
	if !amount.IsPositive() || !domain.IsCents(amount) {
		return acct, fmt.Errorf("%w: credit %s", domain.ErrInvalidAmount, amount)
	}
	acct.Balance = acct.Balance.Add(amount)
	return acct, nil
}

// SettleSale debits the account portion of a sale and rolls the sale into the
// lifetime counters.
func (l CustomerAccountLedger) SettleSale(acct domain.CustomerAccount, sale domain.Sale) (domain.CustomerAccount, error) {
	next, err := l.Debit(acct, sale.AmountFromAccount)
	if err != nil {
		return acct, err
	}
	at := sale.CreatedAt
	next.LifetimeTotalPaid = next.LifetimeTotalPaid.Add(sale.Settled())
	next.LifetimeTotalPurchased = next.LifetimeTotalPurchased.Add(sale.GrandTotal)
	next.PurchaseCount++
	next.LastSaleAt = &at
	next.UpdatedAt = at
	return next, nil
}

// Stage turns a before/after pair into a single mutation.
func (CustomerAccountLedger) Stage(before, after domain.CustomerAccount, movements []domain.AccountMovement) store.Mutation {
	if before.Version == 0 {
		return store.AccountCreate{Account: after, Movements: movements}
	}

	update := store.AccountUpdate{
		CustomerID:         before.CustomerID,
		ExpectedVersion:    before.Version,
		BalanceDelta:       after.Balance.Sub(before.Balance),
		PaidDelta:          after.LifetimeTotalPaid.Sub(before.LifetimeTotalPaid),
		PurchasedDelta:     after.LifetimeTotalPurchased.Sub(before.LifetimeTotalPurchased),
		PurchaseCountDelta: after.PurchaseCount - before.PurchaseCount,
	}
	if after.LastSaleAt != nil && (before.LastSaleAt == nil || !after.LastSaleAt.Equal(*before.LastSaleAt)) {
		update.LastSaleAt = after.LastSaleAt
	}
	if len(movements) > 0 {
		m := movements[len(movements)-1]
		update.Movement = &m
	}
	return update
}

func newAccountMovement(id string, customerID string, kind string, amount decimal.Decimal, balanceAfter decimal.Decimal, saleID string, actorID string, at time.Time) domain.AccountMovement {
	return domain.AccountMovement{
		ID:           id,
		CustomerID:   customerID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		SaleID:       saleID,
		ActorID:      actorID,
		CreatedAt:    at,
	}
}
