package sale

import (
	"fmt"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

type CashRegisterLedger struct{}

// RequireOpen fails unless the shop has a register and it is open. A shop
// that never opened one counts as closed.
func (CashRegisterLedger) RequireOpen(reg *domain.CashRegister) error {
	if reg == nil || !reg.IsOpen() {
		return domain.ErrRegisterClosed
	}
	return nil
}

// Credit stages a cash intake. The movement is journalled with the same amount.
func (l CashRegisterLedger) Credit(reg *domain.CashRegister, amount decimal.Decimal, movement domain.CashMovement) (store.Mutation, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: register credit %s", domain.ErrInvalidAmount, amount)
	}
	if err := l.RequireOpen(reg); err != nil {
		return nil, err
	}
	movement.ShopID = reg.ShopID
	movement.Amount = amount
	return store.RegisterCredit{
		ShopID:          reg.ShopID,
		Amount:          amount,
		ExpectedVersion: reg.Version,
		Movement:        movement,
	}, nil
}
