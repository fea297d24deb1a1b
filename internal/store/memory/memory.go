package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

const DefaultShopID = "main-shop"

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	registers        map[string]domain.CashRegister
	cashMovements    []domain.CashMovement
	accounts         map[string]domain.CustomerAccount
	accountMovements []domain.AccountMovement
	salesByID        map[string]domain.Sale
	salesByIdem      map[string]string
	receivables      []domain.Receivable
	dailyStats       map[string]domain.DailyStat
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// unset variables fall back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Msg("memory store: using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("memory store: failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with no users. Tests load fixtures with the
// Seed helpers.
func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		registers:        make(map[string]domain.CashRegister),
		cashMovements:    make([]domain.CashMovement, 0, 64),
		accounts:         make(map[string]domain.CustomerAccount),
		accountMovements: make([]domain.AccountMovement, 0, 64),
		salesByID:        make(map[string]domain.Sale),
		salesByIdem:      make(map[string]string),
		receivables:      make([]domain.Receivable, 0, 16),
		dailyStats:       make(map[string]domain.DailyStat),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	for _, p := range []struct {
		id, name, category string
		price, cost        int64
	}{
		{"SKU-MIE-01", "Mie Goreng Instan", "grocery", 3500, 2730},
		{"SKU-TELUR-01", "Telur 10 Butir", "grocery", 26500, 23055},
		{"SKU-SUSU-01", "Susu UHT 1L", "dairy", 18900, 13608},
		{"SKU-ROTI-01", "Roti Tawar", "bakery", 17800, 12460},
		{"SKU-KOPI-01", "Kopi Sachet", "beverage", 2600, 1716},
		{"SKU-GULA-01", "Gula 1kg", "grocery", 17400, 15312},
		{"SKU-TEH-01", "Teh Celup", "beverage", 9800, 7252},
		{"SKU-AIR-01", "Air Mineral 600ml", "beverage", 3900, 3198},
		{"SKU-KERIPIK-01", "Keripik Singkong", "snack", 12800, 8064},
		{"SKU-SABUN-01", "Sabun Mandi", "household", 7400, 5032},
	} {
		s.SeedProduct(domain.Product{
			ID:        p.id,
			Name:      p.name,
			Category:  p.category,
			UnitPrice: decimal.NewFromInt(p.price),
			UnitCost:  decimal.NewFromInt(p.cost),
			Stock:     120,
			Active:    true,
		})
	}
	s.SeedAccount(domain.CustomerAccount{
		CustomerID: "CUST-0001",
		Name:       "Ibu Sari",
		Phone:      "0812000001",
		Balance:    decimal.NewFromInt(50000),
	})
	s.SeedAccount(domain.CustomerAccount{
		CustomerID: "CUST-0002",
		Name:       "Pak Budi",
		Phone:      "0812000002",
	})
	s.SeedRegister(domain.CashRegister{ShopID: DefaultShopID, Status: domain.RegisterStatusClosed})
	return s
}

// SeedProduct inserts or replaces a product. A zero version is bumped to 1.
func (s *Store) SeedProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.products[p.ID] = p
}

// SeedAccount inserts or replaces a customer account. A zero version is bumped to 1.
func (s *Store) SeedAccount(a domain.CustomerAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Version == 0 {
		a.Version = 1
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
		a.UpdatedAt = a.CreatedAt
	}
	s.accounts[a.CustomerID] = a
}

// SeedRegister inserts or replaces a shop's register. A zero version is bumped to 1.
func (s *Store) SeedRegister(r domain.CashRegister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Version == 0 {
		r.Version = 1
	}
	if r.Status == "" {
		r.Status = domain.RegisterStatusClosed
	}
	s.registers[r.ShopID] = r
}

func (s *Store) LoadSaleContext(_ context.Context, q store.SaleContextQuery) (domain.SaleContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := domain.SaleContext{
		ShopID:   q.ShopID,
		Products: make(map[string]domain.Product, len(q.ProductIDs)),
	}
	if q.IdempotencyKey != "" {
		if id, ok := s.salesByIdem[idemKey(q.ShopID, q.IdempotencyKey)]; ok {
			sale := cloneSale(s.salesByID[id])
			snapshot.ExistingSale = &sale
			return snapshot, nil
		}
	}
	for _, id := range q.ProductIDs {
		if p, ok := s.products[id]; ok {
			snapshot.Products[id] = p
		}
	}
	if reg, ok := s.registers[q.ShopID]; ok {
		snapshot.Register = &reg
	}
	if q.CustomerID != "" {
		if acct, ok := s.accounts[q.CustomerID]; ok {
			snapshot.Account = &acct
		}
	}
	return snapshot, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category != b.Category {
			return cmpString(a.Category, b.Category)
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) ListSales(_ context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 32)
	for _, sale := range s.salesByID {
		if shopID != "" && sale.ShopID != shopID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListReceivables(_ context.Context, filter store.ReceivableFilter) ([]domain.Receivable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Receivable, 0, len(s.receivables))
	for _, r := range s.receivables {
		if filter.ShopID != "" && r.ShopID != filter.ShopID {
			continue
		}
		if filter.CustomerID != "" && r.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		result = append(result, r)
	}
	slices.SortFunc(result, func(a, b domain.Receivable) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) GetDailyStat(_ context.Context, shopID string, date string) (*domain.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stat, ok := s.dailyStats[statKey(shopID, date)]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneDailyStat(stat)
	return &dup, nil
}

func (s *Store) GetCustomerAccount(_ context.Context, customerID string) (*domain.CustomerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &acct, nil
}

func (s *Store) ListAccountMovements(_ context.Context, customerID string, limit int) ([]domain.AccountMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AccountMovement, 0, 16)
	for i := len(s.accountMovements) - 1; i >= 0; i-- {
		m := s.accountMovements[i]
		if m.CustomerID != customerID {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetRegister(_ context.Context, shopID string) (*domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.registers[shopID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &reg, nil
}

func (s *Store) OpenRegister(_ context.Context, shopID string, openingFloat decimal.Decimal, movement domain.CashMovement) (*domain.CashRegister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if openingFloat.IsNegative() {
		return nil, store.ErrInvalidData
	}
	reg, ok := s.registers[shopID]
	if ok && reg.IsOpen() {
		return nil, store.ErrInvalidData
	}
	now := movement.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	reg.ShopID = shopID
	reg.Status = domain.RegisterStatusOpen
	reg.Balance = openingFloat
	reg.Version++
	reg.OpenedAt = &now
	reg.ClosedAt = nil
	reg.UpdatedAt = now
	s.registers[shopID] = reg

	movement = fillMovement(movement, shopID, domain.CashMovementOpen, openingFloat, now)
	s.cashMovements = append(s.cashMovements, movement)
	return &reg, nil
}

func (s *Store) CloseRegister(_ context.Context, shopID string, movement domain.CashMovement) (*domain.CashRegister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registers[shopID]
	if !ok || !reg.IsOpen() {
		return nil, domain.ErrRegisterClosed
	}
	now := movement.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	reg.Status = domain.RegisterStatusClosed
	reg.Version++
	reg.ClosedAt = &now
	reg.UpdatedAt = now
	s.registers[shopID] = reg

	movement = fillMovement(movement, shopID, domain.CashMovementClose, reg.Balance, now)
	s.cashMovements = append(s.cashMovements, movement)
	return &reg, nil
}

func (s *Store) ListCashMovements(_ context.Context, shopID string, limit int) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashMovement, 0, 32)
	for i := len(s.cashMovements) - 1; i >= 0; i-- {
		m := s.cashMovements[i]
		if shopID != "" && m.ShopID != shopID {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if shopID != "" && entry.ShopID != shopID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidData
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidData
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidData
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
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

func statKey(shopID string, date string) string {
	return shopID + "|" + date
}

// idemKey scopes an idempotency key to its shop.
func idemKey(shopID string, key string) string {
	return shopID + "|" + key
}

func newestFirst(a, b time.Time, aID, bID string) int {
	if a.Equal(b) {
		return cmpString(bID, aID)
	}
	if a.After(b) {
		return -1
	}
	return 1
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Lines = make([]domain.SaleLine, len(src.Lines))
	copy(dup.Lines, src.Lines)
	return dup
}

func cloneDailyStat(src domain.DailyStat) domain.DailyStat {
	dup := src
	dup.Products = make(map[string]domain.ProductStat, len(src.Products))
	for id, p := range src.Products {
		dup.Products[id] = p
	}
	return dup
}
