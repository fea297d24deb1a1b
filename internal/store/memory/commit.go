package memory

import (
	"context"
	"fmt"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

// batch collects the effect of a mutation list against copies of the rows it
// touches. Nothing reaches the store until every mutation has been applied to
// the batch without error.
type batch struct {
	s                *Store
	products         map[string]domain.Product
	registers        map[string]domain.CashRegister
	accounts         map[string]domain.CustomerAccount
	stats            map[string]domain.DailyStat
	sales            []domain.Sale
	receivables      []domain.Receivable
	cashMovements    []domain.CashMovement
	accountMovements []domain.AccountMovement
}

func (s *Store) Commit(ctx context.Context, mutations []store.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := &batch{
		s:         s,
		products:  make(map[string]domain.Product),
		registers: make(map[string]domain.CashRegister),
		accounts:  make(map[string]domain.CustomerAccount),
		stats:     make(map[string]domain.DailyStat),
	}
	for _, m := range mutations {
		if err := b.apply(m); err != nil {
			return err
		}
	}
	b.flush()
	return nil
}

func (b *batch) apply(m store.Mutation) error {
	switch m := m.(type) {
	case store.StockDecrement:
		return b.decrementStock(m)
	case store.RegisterCredit:
		return b.creditRegister(m)
	case store.AccountCreate:
		return b.createAccount(m)
	case store.AccountUpdate:
		return b.updateAccount(m)
	case store.SaleInsert:
		return b.insertSale(m)
	case store.ReceivableInsert:
		return b.insertReceivable(m)
	case store.DailyStatIncrement:
		return b.incrementStat(m)
	default:
		return fmt.Errorf("%w: unsupported mutation %T", store.ErrInvalidData, m)
	}
}

func (b *batch) product(id string) (domain.Product, bool) {
	if p, ok := b.products[id]; ok {
		return p, true
	}
	p, ok := b.s.products[id]
	return p, ok
}

func (b *batch) account(id string) (domain.CustomerAccount, bool) {
	if a, ok := b.accounts[id]; ok {
		return a, true
	}
	a, ok := b.s.accounts[id]
	return a, ok
}

func (b *batch) decrementStock(m store.StockDecrement) error {
	if m.Quantity < 1 {
		return fmt.Errorf("%w: decrement %d", domain.ErrInvalidAmount, m.Quantity)
	}
	p, ok := b.product(m.ProductID)
	if !ok || !p.Active {
		return &domain.InsufficientStockError{ProductID: m.ProductID, Available: 0, Requested: m.Quantity}
	}
	if p.Stock < m.Quantity {
		return &domain.InsufficientStockError{ProductID: m.ProductID, Available: p.Stock, Requested: m.Quantity}
	}
	if p.Version != m.ExpectedVersion {
		return fmt.Errorf("%w: product %s", domain.ErrConcurrentModification, m.ProductID)
	}
	p.Stock -= m.Quantity
	p.Version++
	b.products[m.ProductID] = p
	return nil
}

func (b *batch) creditRegister(m store.RegisterCredit) error {
	reg, ok := b.registers[m.ShopID]
	if !ok {
		reg, ok = b.s.registers[m.ShopID]
	}
	if !ok || !reg.IsOpen() {
		return domain.ErrRegisterClosed
	}
	if reg.Version != m.ExpectedVersion {
		return fmt.Errorf("%w: register %s", domain.ErrConcurrentModification, m.ShopID)
	}
	reg.Balance = reg.Balance.Add(m.Amount)
	reg.Version++
	reg.UpdatedAt = m.Movement.CreatedAt
	b.registers[m.ShopID] = reg
	b.cashMovements = append(b.cashMovements, m.Movement)
	return nil
}

func (b *batch) createAccount(m store.AccountCreate) error {
	if _, exists := b.account(m.Account.CustomerID); exists {
		return fmt.Errorf("%w: customer %s already exists", domain.ErrConcurrentModification, m.Account.CustomerID)
	}
	if m.Account.Balance.IsNegative() {
		return &domain.InsufficientBalanceError{Available: m.Account.Balance, Required: m.Account.Balance.Neg()}
	}
	acct := m.Account
	acct.Version = 1
	b.accounts[acct.CustomerID] = acct
	b.accountMovements = append(b.accountMovements, m.Movements...)
	return nil
}

func (b *batch) updateAccount(m store.AccountUpdate) error {
	acct, ok := b.account(m.CustomerID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, m.CustomerID)
	}
	next := acct.Balance.Add(m.BalanceDelta)
	if next.IsNegative() {
		return &domain.InsufficientBalanceError{Available: acct.Balance, Required: m.BalanceDelta.Neg()}
	}
	if acct.Version != m.ExpectedVersion {
		return fmt.Errorf("%w: customer %s", domain.ErrConcurrentModification, m.CustomerID)
	}
	acct.Balance = next
	acct.LifetimeTotalPaid = acct.LifetimeTotalPaid.Add(m.PaidDelta)
	acct.LifetimeTotalPurchased = acct.LifetimeTotalPurchased.Add(m.PurchasedDelta)
	acct.PurchaseCount += m.PurchaseCountDelta
	if m.LastSaleAt != nil {
		at := *m.LastSaleAt
		acct.LastSaleAt = &at
		acct.UpdatedAt = at
	}
	if m.Movement != nil {
		acct.UpdatedAt = m.Movement.CreatedAt
		b.accountMovements = append(b.accountMovements, *m.Movement)
	}
	acct.Version++
	b.accounts[m.CustomerID] = acct
	return nil
}

func (b *batch) insertSale(m store.SaleInsert) error {
	if _, exists := b.s.salesByID[m.Sale.ID]; exists {
		return fmt.Errorf("%w: sale id %s", store.ErrDuplicate, m.Sale.ID)
	}
	if key := m.Sale.IdempotencyKey; key != "" {
		if _, exists := b.s.salesByIdem[idemKey(m.Sale.ShopID, key)]; exists {
			return fmt.Errorf("%w: idempotency key %s", store.ErrDuplicate, key)
		}
		for _, pending := range b.sales {
			if pending.ShopID == m.Sale.ShopID && pending.IdempotencyKey == key {
				return fmt.Errorf("%w: idempotency key %s", store.ErrDuplicate, key)
			}
		}
	}
	b.sales = append(b.sales, cloneSale(m.Sale))
	return nil
}

func (b *batch) insertReceivable(m store.ReceivableInsert) error {
	if !m.Receivable.RemainingAmount.IsPositive() {
		return fmt.Errorf("%w: receivable remaining %s", domain.ErrInvalidAmount, m.Receivable.RemainingAmount)
	}
	if m.Receivable.CustomerID == "" {
		return domain.ErrAccountRequired
	}
	b.receivables = append(b.receivables, m.Receivable)
	return nil
}

func (b *batch) incrementStat(m store.DailyStatIncrement) error {
	if m.Delta.Negative() {
		return fmt.Errorf("%w: negative daily stat delta", domain.ErrInvalidAmount)
	}
	key := statKey(m.ShopID, m.Date)
	stat, ok := b.stats[key]
	if !ok {
		if cur, exists := b.s.dailyStats[key]; exists {
			stat = cloneDailyStat(cur)
		} else {
			stat = domain.DailyStat{ShopID: m.ShopID, Date: m.Date, Products: map[string]domain.ProductStat{}}
		}
	}
	stat.Apply(m.Delta)
	b.stats[key] = stat
	return nil
}

func (b *batch) flush() {
	s := b.s
	for id, p := range b.products {
		s.products[id] = p
	}
	for id, r := range b.registers {
		s.registers[id] = r
	}
	for id, a := range b.accounts {
		s.accounts[id] = a
	}
	for key, st := range b.stats {
		s.dailyStats[key] = st
	}
	for _, sale := range b.sales {
		s.salesByID[sale.ID] = sale
		if sale.IdempotencyKey != "" {
			s.salesByIdem[idemKey(sale.ShopID, sale.IdempotencyKey)] = sale.ID
		}
	}
	s.receivables = append(s.receivables, b.receivables...)
	s.cashMovements = append(s.cashMovements, b.cashMovements...)
	s.accountMovements = append(s.accountMovements, b.accountMovements...)
}
