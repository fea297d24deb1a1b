package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

// Commit applies every mutation inside one transaction. Each conditional
// write checks the version read by LoadSaleContext; when it matches no row the
// current row is read back to report why.
func (s *Store) Commit(ctx context.Context, mutations []store.Mutation) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range mutations {
		if err := apply(ctx, tx, m); err != nil {
			return translate(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func translate(err error) error {
	if isConflict(err) {
		return fmt.Errorf("%w: %w", domain.ErrConcurrentModification, err)
	}
	return err
}

func apply(ctx context.Context, tx *sql.Tx, m store.Mutation) error {
	switch m := m.(type) {
	case store.StockDecrement:
		return decrementStock(ctx, tx, m)
	case store.RegisterCredit:
		return creditRegister(ctx, tx, m)
	case store.AccountCreate:
		return createAccount(ctx, tx, m)
	case store.AccountUpdate:
		return updateAccount(ctx, tx, m)
	case store.SaleInsert:
		return insertSale(ctx, tx, m)
	case store.ReceivableInsert:
		return insertReceivable(ctx, tx, m)
	case store.DailyStatIncrement:
		return incrementStat(ctx, tx, m)
	default:
		return fmt.Errorf("%w: unsupported mutation %T", store.ErrInvalidData, m)
	}
}

func decrementStock(ctx context.Context, tx *sql.Tx, m store.StockDecrement) error {
	if m.Quantity < 1 {
		return fmt.Errorf("%w: decrement %d", domain.ErrInvalidAmount, m.Quantity)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $3 AND active = true AND stock >= $2
	`, m.ProductID, m.Quantity, m.ExpectedVersion)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 1 {
		return nil
	}

	var (
		stock  int
		active bool
	)
	err = tx.QueryRowContext(ctx, `SELECT stock, active FROM products WHERE id = $1`, m.ProductID).Scan(&stock, &active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return &domain.InsufficientStockError{ProductID: m.ProductID, Available: 0, Requested: m.Quantity}
	}
	if err != nil {
		return err
	}
	if stock < m.Quantity {
		return &domain.InsufficientStockError{ProductID: m.ProductID, Available: stock, Requested: m.Quantity}
	}
	return fmt.Errorf("%w: product %s", domain.ErrConcurrentModification, m.ProductID)
}

func creditRegister(ctx context.Context, tx *sql.Tx, m store.RegisterCredit) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE cash_registers
		SET balance = balance + $2, version = version + 1, updated_at = $4
		WHERE shop_id = $1 AND version = $3 AND status = 'open'
	`, m.ShopID, m.Amount, m.ExpectedVersion, m.Movement.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		reg, err := getRegister(ctx, tx, m.ShopID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !reg.IsOpen()) {
			return domain.ErrRegisterClosed
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: register %s", domain.ErrConcurrentModification, m.ShopID)
	}
	return insertCashMovement(ctx, tx, m.Movement)
}

func insertCashMovement(ctx context.Context, tx *sql.Tx, m domain.CashMovement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, shop_id, kind, amount, sale_id, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, m.ID, m.ShopID, m.Kind, m.Amount, nullIfEmpty(m.SaleID), m.ActorID, m.CreatedAt)
	return err
}

func createAccount(ctx context.Context, tx *sql.Tx, m store.AccountCreate) error {
	a := m.Account
	if a.Balance.IsNegative() {
		return &domain.InsufficientBalanceError{Available: a.Balance, Required: a.Balance.Neg()}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO customer_accounts (
			customer_id, name, phone, balance, lifetime_total_paid, lifetime_total_purchased,
			purchase_count, last_sale_at, version, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,$9,$10)
	`, a.CustomerID, a.Name, a.Phone, a.Balance, a.LifetimeTotalPaid, a.LifetimeTotalPurchased,
		a.PurchaseCount, nullTime(a.LastSaleAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: customer %s already exists", domain.ErrConcurrentModification, a.CustomerID)
		}
		return err
	}
	for _, mv := range m.Movements {
		if err := insertAccountMovement(ctx, tx, mv); err != nil {
			return err
		}
	}
	return nil
}

func updateAccount(ctx context.Context, tx *sql.Tx, m store.AccountUpdate) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE customer_accounts
		SET balance = balance + $3,
			lifetime_total_paid = lifetime_total_paid + $4,
			lifetime_total_purchased = lifetime_total_purchased + $5,
			purchase_count = purchase_count + $6,
			last_sale_at = COALESCE($7, last_sale_at),
			version = version + 1,
			updated_at = now()
		WHERE customer_id = $1 AND version = $2 AND balance + $3 >= 0
	`, m.CustomerID, m.ExpectedVersion, m.BalanceDelta, m.PaidDelta, m.PurchasedDelta, m.PurchaseCountDelta, nullTime(m.LastSaleAt))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var balance decimal.Decimal
		err := tx.QueryRowContext(ctx, `SELECT balance FROM customer_accounts WHERE customer_id = $1`, m.CustomerID).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, m.CustomerID)
		}
		if err != nil {
			return err
		}
		if balance.Add(m.BalanceDelta).IsNegative() {
			return &domain.InsufficientBalanceError{Available: balance, Required: m.BalanceDelta.Neg()}
		}
		return fmt.Errorf("%w: customer %s", domain.ErrConcurrentModification, m.CustomerID)
	}
	if m.Movement != nil {
		return insertAccountMovement(ctx, tx, *m.Movement)
	}
	return nil
}

func insertAccountMovement(ctx context.Context, tx *sql.Tx, m domain.AccountMovement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_movements (id, customer_id, kind, amount, balance_after, sale_id, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.CustomerID, m.Kind, m.Amount, m.BalanceAfter, nullIfEmpty(m.SaleID), m.ActorID, m.CreatedAt)
	return err
}

func insertSale(ctx context.Context, tx *sql.Tx, m store.SaleInsert) error {
	sale := m.Sale
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, code, shop_id, customer_id, walk_in_name, grand_total, total_cost, total_margin,
			paid_amount, remaining_amount, amount_from_account, change_due, payment_mode, due_date,
			idempotency_key, request_hash, actor_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, sale.ID, sale.Code, sale.ShopID, nullIfEmpty(sale.CustomerID), sale.WalkInName,
		sale.GrandTotal, sale.TotalCost, sale.TotalMargin,
		sale.PaidAmount, sale.RemainingAmount, sale.AmountFromAccount, sale.ChangeDue,
		string(sale.PaymentMode), nullTime(sale.DueDate), nullIfEmpty(sale.IdempotencyKey), sale.RequestHash, sale.ActorID, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
		}
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sale_lines (sale_id, line_no, product_id, name, quantity, unit_price, unit_cost, line_total, line_cost, line_margin)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, line := range sale.Lines {
		if _, err := stmt.ExecContext(ctx, sale.ID, i+1, line.ProductID, line.Name, line.Quantity,
			line.UnitPrice, line.UnitCost, line.LineTotal, line.LineCost, line.LineMargin); err != nil {
			return err
		}
	}
	return nil
}

func insertReceivable(ctx context.Context, tx *sql.Tx, m store.ReceivableInsert) error {
	r := m.Receivable
	if !r.RemainingAmount.IsPositive() {
		return fmt.Errorf("%w: receivable remaining %s", domain.ErrInvalidAmount, r.RemainingAmount)
	}
	if r.CustomerID == "" {
		return domain.ErrAccountRequired
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO receivables (
			id, shop_id, customer_id, sale_id, grand_total, paid_amount, remaining_amount, due_date, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.ID, r.ShopID, r.CustomerID, r.SaleID, r.GrandTotal, r.PaidAmount, r.RemainingAmount, nullTime(r.DueDate), r.Status, r.CreatedAt)
	return err
}

// incrementStat upserts the day row and then each product row. Product rows
// are written in product id order.
func incrementStat(ctx context.Context, tx *sql.Tx, m store.DailyStatIncrement) error {
	d := m.Delta
	if d.Negative() {
		return fmt.Errorf("%w: negative daily stat delta", domain.ErrInvalidAmount)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO daily_stats (
			shop_id, stat_date, total_sales, total_collected, total_cash, total_credit, total_margin, sale_count, updated_at
		)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (shop_id, stat_date) DO UPDATE SET
			total_sales = daily_stats.total_sales + EXCLUDED.total_sales,
			total_collected = daily_stats.total_collected + EXCLUDED.total_collected,
			total_cash = daily_stats.total_cash + EXCLUDED.total_cash,
			total_credit = daily_stats.total_credit + EXCLUDED.total_credit,
			total_margin = daily_stats.total_margin + EXCLUDED.total_margin,
			sale_count = daily_stats.sale_count + EXCLUDED.sale_count,
			updated_at = now()
	`, m.ShopID, m.Date, d.TotalSales, d.TotalCollected, d.TotalCash, d.TotalCredit, d.TotalMargin, d.SaleCount)
	if err != nil {
		return err
	}

	for _, id := range slices.Sorted(maps.Keys(d.Products)) {
		p := d.Products[id]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daily_product_stats (shop_id, stat_date, product_id, quantity, revenue, margin)
			VALUES ($1, $2::date, $3, $4, $5, $6)
			ON CONFLICT (shop_id, stat_date, product_id) DO UPDATE SET
				quantity = daily_product_stats.quantity + EXCLUDED.quantity,
				revenue = daily_product_stats.revenue + EXCLUDED.revenue,
				margin = daily_product_stats.margin + EXCLUDED.margin
		`, m.ShopID, m.Date, id, p.Quantity, p.Revenue, p.Margin); err != nil {
			return err
		}
	}
	return nil
}
