package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates any missing tables. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadSaleContext(ctx context.Context, q store.SaleContextQuery) (domain.SaleContext, error) {
	snapshot := domain.SaleContext{
		ShopID:   q.ShopID,
		Products: make(map[string]domain.Product, len(q.ProductIDs)),
	}

	if q.IdempotencyKey != "" {
		existing, err := s.findSale(ctx, `shop_id = $1 AND idempotency_key = $2`, q.ShopID, q.IdempotencyKey)
		if err == nil {
			snapshot.ExistingSale = existing
			return snapshot, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.SaleContext{}, err
		}
	}

	if len(q.ProductIDs) > 0 {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE id = ANY($1)
		`, q.ProductIDs)
		if err != nil {
			return domain.SaleContext{}, err
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return domain.SaleContext{}, err
			}
			snapshot.Products[p.ID] = p
		}
		if err := rows.Err(); err != nil {
			return domain.SaleContext{}, err
		}
	}

	reg, err := s.GetRegister(ctx, q.ShopID)
	switch {
	case err == nil:
		snapshot.Register = reg
	case !errors.Is(err, store.ErrNotFound):
		return domain.SaleContext{}, err
	}

	if q.CustomerID != "" {
		acct, err := s.GetCustomerAccount(ctx, q.CustomerID)
		switch {
		case err == nil:
			snapshot.Account = acct
		case !errors.Is(err, store.ErrNotFound):
			return domain.SaleContext{}, err
		}
	}

	return snapshot, nil
}

const productColumns = `id, name, category, unit_price, unit_cost, stock, active, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.UnitPrice, &p.UnitCost, &p.Stock, &p.Active, &p.Version, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpsertProduct writes catalog data and stock directly. It is used to seed a
// fresh database; sales only ever change stock through Commit.
func (s *Store) UpsertProduct(ctx context.Context, p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" || p.UnitPrice.IsNegative() || p.Stock < 0 {
		return store.ErrInvalidData
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit_price, unit_cost, stock, active, version, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,1,now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			unit_price = EXCLUDED.unit_price,
			unit_cost = EXCLUDED.unit_cost,
			stock = EXCLUDED.stock,
			active = EXCLUDED.active,
			version = products.version + 1,
			updated_at = now()
	`, p.ID, p.Name, p.Category, p.UnitPrice, p.UnitCost, p.Stock, p.Active)
	return err
}

// UpsertAccount inserts a customer account outside of a sale, e.g. for
// imports. The balance must be non-negative.
func (s *Store) UpsertAccount(ctx context.Context, a domain.CustomerAccount) error {
	if strings.TrimSpace(a.CustomerID) == "" || a.Balance.IsNegative() {
		return store.ErrInvalidData
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_accounts (customer_id, name, phone, balance, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,1,now(),now())
		ON CONFLICT (customer_id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			balance = EXCLUDED.balance,
			version = customer_accounts.version + 1,
			updated_at = now()
	`, a.CustomerID, a.Name, a.Phone, a.Balance)
	return err
}

const saleColumns = `id, code, shop_id, COALESCE(customer_id, ''), walk_in_name, grand_total, total_cost, total_margin,
	paid_amount, remaining_amount, amount_from_account, change_due, payment_mode, due_date,
	COALESCE(idempotency_key, ''), request_hash, actor_id, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale    domain.Sale
		mode    string
		dueDate sql.NullTime
	)
	if err := row.Scan(
		&sale.ID, &sale.Code, &sale.ShopID, &sale.CustomerID, &sale.WalkInName,
		&sale.GrandTotal, &sale.TotalCost, &sale.TotalMargin,
		&sale.PaidAmount, &sale.RemainingAmount, &sale.AmountFromAccount, &sale.ChangeDue,
		&mode, &dueDate, &sale.IdempotencyKey, &sale.RequestHash, &sale.ActorID, &sale.CreatedAt,
	); err != nil {
		return domain.Sale{}, err
	}
	sale.PaymentMode = domain.PaymentMode(mode)
	sale.DueDate = timePtr(dueDate)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) findSale(ctx context.Context, where string, args ...any) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := s.saleLines(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) saleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, quantity, unit_price, unit_cost, line_total, line_cost, line_margin
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY line_no
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var l domain.SaleLine
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Quantity, &l.UnitPrice, &l.UnitCost, &l.LineTotal, &l.LineCost, &l.LineMargin); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, `id = $1`, id)
}

func (s *Store) ListSales(ctx context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE shop_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, shopID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	for i := range sales {
		lines, err := s.saleLines(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Lines = lines
	}
	return sales, nil
}

func (s *Store) ListReceivables(ctx context.Context, filter store.ReceivableFilter) ([]domain.Receivable, error) {
	if filter.Limit < 1 {
		filter.Limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, customer_id, sale_id, grand_total, paid_amount, remaining_amount, due_date, status, created_at
		FROM receivables
		WHERE ($1 = '' OR shop_id = $1)
			AND ($2 = '' OR customer_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, filter.ShopID, filter.CustomerID, filter.Status, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Receivable, 0, 16)
	for rows.Next() {
		var (
			r       domain.Receivable
			dueDate sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.ShopID, &r.CustomerID, &r.SaleID, &r.GrandTotal, &r.PaidAmount, &r.RemainingAmount, &dueDate, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.DueDate = timePtr(dueDate)
		r.CreatedAt = r.CreatedAt.UTC()
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) GetDailyStat(ctx context.Context, shopID string, date string) (*domain.DailyStat, error) {
	stat := domain.DailyStat{ShopID: shopID, Date: date, Products: map[string]domain.ProductStat{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT total_sales, total_collected, total_cash, total_credit, total_margin, sale_count
		FROM daily_stats
		WHERE shop_id = $1 AND stat_date = $2::date
	`, shopID, date).Scan(&stat.TotalSales, &stat.TotalCollected, &stat.TotalCash, &stat.TotalCredit, &stat.TotalMargin, &stat.SaleCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, revenue, margin
		FROM daily_product_stats
		WHERE shop_id = $1 AND stat_date = $2::date
	`, shopID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			p  domain.ProductStat
		)
		if err := rows.Scan(&id, &p.Quantity, &p.Revenue, &p.Margin); err != nil {
			return nil, err
		}
		stat.Products[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &stat, nil
}

func (s *Store) GetCustomerAccount(ctx context.Context, customerID string) (*domain.CustomerAccount, error) {
	var (
		a        domain.CustomerAccount
		lastSale sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT customer_id, name, phone, balance, lifetime_total_paid, lifetime_total_purchased,
			purchase_count, last_sale_at, version, created_at, updated_at
		FROM customer_accounts
		WHERE customer_id = $1
	`, customerID).Scan(
		&a.CustomerID, &a.Name, &a.Phone, &a.Balance, &a.LifetimeTotalPaid, &a.LifetimeTotalPurchased,
		&a.PurchaseCount, &lastSale, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	a.LastSaleAt = timePtr(lastSale)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func (s *Store) ListAccountMovements(ctx context.Context, customerID string, limit int) ([]domain.AccountMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, kind, amount, balance_after, COALESCE(sale_id, ''), actor_id, created_at
		FROM account_movements
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AccountMovement, 0, 16)
	for rows.Next() {
		var m domain.AccountMovement
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.Kind, &m.Amount, &m.BalanceAfter, &m.SaleID, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) GetRegister(ctx context.Context, shopID string) (*domain.CashRegister, error) {
	return getRegister(ctx, s.db, shopID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRegister(ctx context.Context, q queryer, shopID string) (*domain.CashRegister, error) {
	var (
		r                  domain.CashRegister
		openedAt, closedAt sql.NullTime
	)
	err := q.QueryRowContext(ctx, `
		SELECT shop_id, balance, status, version, opened_at, closed_at, updated_at
		FROM cash_registers
		WHERE shop_id = $1
	`, shopID).Scan(&r.ShopID, &r.Balance, &r.Status, &r.Version, &openedAt, &closedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	r.OpenedAt = timePtr(openedAt)
	r.ClosedAt = timePtr(closedAt)
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func (s *Store) OpenRegister(ctx context.Context, shopID string, openingFloat decimal.Decimal, movement domain.CashMovement) (*domain.CashRegister, error) {
	if openingFloat.IsNegative() {
		return nil, store.ErrInvalidData
	}
	now := movementTime(movement)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cash_registers (shop_id, balance, status, version, opened_at, closed_at, updated_at)
		VALUES ($1, $2, 'open', 1, $3, NULL, $3)
		ON CONFLICT (shop_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			status = 'open',
			version = cash_registers.version + 1,
			opened_at = EXCLUDED.opened_at,
			closed_at = NULL,
			updated_at = EXCLUDED.updated_at
		WHERE cash_registers.status = 'closed'
	`, shopID, openingFloat, now)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrInvalidData
	}

	if err := insertCashMovement(ctx, tx, fillMovement(movement, shopID, domain.CashMovementOpen, openingFloat, now)); err != nil {
		return nil, err
	}
	reg, err := getRegister(ctx, tx, shopID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Store) CloseRegister(ctx context.Context, shopID string, movement domain.CashMovement) (*domain.CashRegister, error) {
	now := movementTime(movement)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		UPDATE cash_registers
		SET status = 'closed', version = version + 1, closed_at = $2, updated_at = $2
		WHERE shop_id = $1 AND status = 'open'
		RETURNING balance
	`, shopID, now).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRegisterClosed
		}
		return nil, err
	}

	if err := insertCashMovement(ctx, tx, fillMovement(movement, shopID, domain.CashMovementClose, balance, now)); err != nil {
		return nil, err
	}
	reg, err := getRegister(ctx, tx, shopID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Store) ListCashMovements(ctx context.Context, shopID string, limit int) ([]domain.CashMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, kind, amount, COALESCE(sale_id, ''), actor_id, created_at
		FROM cash_movements
		WHERE shop_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CashMovement, 0, 32)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.ShopID, &m.Kind, &m.Amount, &m.SaleID, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, shop_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ShopID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE shop_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, shopID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ShopID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidData
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidData
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidData
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func fillMovement(m domain.CashMovement, shopID string, kind string, amount decimal.Decimal, at time.Time) domain.CashMovement {
	if m.ID == "" {
		m.ID = xid.New("cash")
	}
	m.ShopID = shopID
	m.Kind = kind
	m.Amount = amount
	m.CreatedAt = at
	return m
}

func movementTime(m domain.CashMovement) time.Time {
	if m.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return m.CreatedAt.UTC()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isConflict reports serialization failures and deadlocks.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}
