package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"retailpos/internal/cache"
	"retailpos/internal/domain"
	"retailpos/internal/metrics"
	"retailpos/internal/sale"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

var (
	ErrForbidden   = errors.New("admin role required")
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	coordinator   *sale.Coordinator
	statsCache    cache.StatsCache
	statsTTL      time.Duration
	metrics       *metrics.Sales
	log           zerolog.Logger
	loc           *time.Location
	now           func() time.Time
	defaultShopID string
}

type Option func(*Service)

func WithStatsCache(c cache.StatsCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.statsCache = c
		s.statsTTL = ttl
	}
}

func WithMetrics(m *metrics.Sales) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.log = logger }
}

// WithLocation must match the location given to the coordinator so that
// cache invalidation hits the same day key the sale was counted under.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo store.Repository, coordinator *sale.Coordinator, defaultShopID string, opts ...Option) *Service {
	if defaultShopID == "" {
		defaultShopID = "main-shop"
	}

	s := &Service{
		repo:          repo,
		coordinator:   coordinator,
		statsCache:    cache.NoopStatsCache{},
		statsTTL:      time.Minute,
		log:           zerolog.Nop(),
		loc:           time.UTC,
		now:           time.Now,
		defaultShopID: defaultShopID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// SubmitSale commits one sale on behalf of the actor in ctx. Opening a new
// customer with prepaid credit is an admin action like CreditAccount; the
// manager PIN is checked by the caller.
func (s *Service) SubmitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	if strings.TrimSpace(req.ShopID) == "" {
		req.ShopID = s.defaultShopID
	}
	if req.Customer.GrantsOpeningBalance() && !isAdmin(ctx) {
		return domain.SaleResult{}, fmt.Errorf("%w: opening balance", ErrForbidden)
	}
	if actor, ok := ActorFromContext(ctx); ok {
		req.ActorID = actor.Username
	}

	startedAt := time.Now()
	result, err := s.coordinator.Commit(ctx, req)
	s.metrics.Observe(result, err, time.Since(startedAt))
	if err != nil {
		return domain.SaleResult{}, err
	}
	if result.Duplicate {
		return result, nil
	}

	date := result.Sale.CreatedAt.In(s.loc).Format(time.DateOnly)
	if err := s.statsCache.Invalidate(ctx, result.Sale.ShopID, date); err != nil {
		s.log.Warn().Err(err).Str("shop_id", result.Sale.ShopID).Str("date", date).Msg("stats cache invalidate failed")
	}
	s.logAudit(ctx, result.Sale.ShopID, "sale_commit", "sale", result.SaleID, fmt.Sprintf(
		"code=%s,mode=%s,total=%s,paid=%s,account=%s,owed=%s",
		result.Code, result.Plan.Mode,
		result.Sale.GrandTotal.StringFixed(2), result.Plan.CashToCollect.StringFixed(2),
		result.Plan.AmountFromAccount.StringFixed(2), result.Plan.RemainingOwed.StringFixed(2),
	))
	return result, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrNotFound
	}
	return s.repo.FindSaleByID(ctx, id)
}

// ListSales returns the sales of one shop day, newest first.
func (s *Service) ListSales(ctx context.Context, shopID string, date string, limit int) ([]domain.Sale, error) {
	shopID = s.shopOrDefault(shopID)
	if limit < 1 {
		limit = 100
	}
	from, err := s.dayStart(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, shopID, from, from.AddDate(0, 0, 1), limit)
}

func (s *Service) ListReceivables(ctx context.Context, filter store.ReceivableFilter) ([]domain.Receivable, error) {
	filter.ShopID = s.shopOrDefault(filter.ShopID)
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	if filter.Limit < 1 {
		filter.Limit = 100
	}
	return s.repo.ListReceivables(ctx, filter)
}

// DailyStats reads through the stats cache. A day with no sales yields a
// zero stat rather than an error.
func (s *Service) DailyStats(ctx context.Context, shopID string, date string) (domain.DailyStat, error) {
	shopID = s.shopOrDefault(shopID)
	from, err := s.dayStart(date)
	if err != nil {
		return domain.DailyStat{}, err
	}
	date = from.Format(time.DateOnly)

	cached, ok, err := s.statsCache.Get(ctx, shopID, date)
	if err != nil {
		s.log.Warn().Err(err).Str("shop_id", shopID).Str("date", date).Msg("stats cache read failed")
	} else if ok {
		return *cached, nil
	}

	stat, err := s.repo.GetDailyStat(ctx, shopID, date)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.DailyStat{}, err
		}
		stat = &domain.DailyStat{ShopID: shopID, Date: date, Products: map[string]domain.ProductStat{}}
	}

	if err := s.statsCache.Set(ctx, stat, s.statsTTL); err != nil {
		s.log.Warn().Err(err).Str("shop_id", shopID).Str("date", date).Msg("stats cache write failed")
	}
	return *stat, nil
}

func (s *Service) GetRegister(ctx context.Context, shopID string) (domain.CashRegister, error) {
	shopID = s.shopOrDefault(shopID)
	reg, err := s.repo.GetRegister(ctx, shopID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CashRegister{ShopID: shopID, Status: domain.RegisterStatusClosed}, nil
		}
		return domain.CashRegister{}, err
	}
	return *reg, nil
}

func (s *Service) OpenRegister(ctx context.Context, req domain.RegisterOpenRequest) (domain.CashRegister, error) {
	req.ShopID = s.shopOrDefault(req.ShopID)
	if req.OpeningFloat.IsNegative() || !domain.IsCents(req.OpeningFloat) {
		return domain.CashRegister{}, fmt.Errorf("%w: opening float %s", domain.ErrInvalidAmount, req.OpeningFloat)
	}

	reg, err := s.repo.OpenRegister(ctx, req.ShopID, req.OpeningFloat, domain.CashMovement{
		ID:        xid.New("cash"),
		ActorID:   s.actorName(ctx),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.CashRegister{}, err
	}

	s.logAudit(ctx, req.ShopID, "register_open", "register", req.ShopID, "float="+req.OpeningFloat.StringFixed(2))
	return *reg, nil
}

// CloseRegister closes the register and reports the difference between the
// counted cash and the balance the ledger expected.
func (s *Service) CloseRegister(ctx context.Context, req domain.RegisterCloseRequest) (domain.RegisterCloseResponse, error) {
	if !isAdmin(ctx) {
		return domain.RegisterCloseResponse{}, ErrForbidden
	}
	req.ShopID = s.shopOrDefault(req.ShopID)
	if req.CountedCash.IsNegative() || !domain.IsCents(req.CountedCash) {
		return domain.RegisterCloseResponse{}, fmt.Errorf("%w: counted cash %s", domain.ErrInvalidAmount, req.CountedCash)
	}

	reg, err := s.repo.CloseRegister(ctx, req.ShopID, domain.CashMovement{
		ID:        xid.New("cash"),
		ActorID:   s.actorName(ctx),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.RegisterCloseResponse{}, err
	}

	variance := req.CountedCash.Sub(reg.Balance)
	s.logAudit(ctx, req.ShopID, "register_close", "register", req.ShopID, fmt.Sprintf(
		"expected=%s,counted=%s,variance=%s", reg.Balance.StringFixed(2), req.CountedCash.StringFixed(2), variance.StringFixed(2),
	))
	if !variance.IsZero() {
		s.log.Warn().
			Str("shop_id", req.ShopID).
			Str("variance", variance.StringFixed(2)).
			Msg("register closed with cash variance")
	}

	return domain.RegisterCloseResponse{
		Register: *reg,
		Expected: reg.Balance,
		Counted:  req.CountedCash,
		Variance: variance,
	}, nil
}

func (s *Service) ListCashMovements(ctx context.Context, shopID string, limit int) ([]domain.CashMovement, error) {
	return s.repo.ListCashMovements(ctx, s.shopOrDefault(shopID), limit)
}

func (s *Service) GetCustomerAccount(ctx context.Context, customerID string) (domain.CustomerAccount, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CustomerAccount{}, domain.ErrCustomerNotFound
	}
	acct, err := s.repo.GetCustomerAccount(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CustomerAccount{}, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, customerID)
		}
		return domain.CustomerAccount{}, err
	}
	return *acct, nil
}

func (s *Service) ListAccountMovements(ctx context.Context, customerID string, limit int) ([]domain.AccountMovement, error) {
	if _, err := s.GetCustomerAccount(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListAccountMovements(ctx, strings.TrimSpace(customerID), limit)
}

// CreditAccount adds prepaid balance to a customer account. The manager PIN
// is checked by the caller.
func (s *Service) CreditAccount(ctx context.Context, customerID string, req domain.AccountCreditRequest) (domain.CustomerAccount, error) {
	if !isAdmin(ctx) {
		return domain.CustomerAccount{}, ErrForbidden
	}
	acct, err := s.coordinator.CreditAccount(ctx, customerID, req.Amount, s.actorName(ctx))
	if err != nil {
		return domain.CustomerAccount{}, err
	}

	detail := "amount=" + req.Amount.StringFixed(2) + ",balance=" + acct.Balance.StringFixed(2)
	if note := strings.TrimSpace(req.Note); note != "" {
		detail += ",note=" + note
	}
	s.logAudit(ctx, s.defaultShopID, "account_credit", "customer", acct.CustomerID, detail)
	return acct, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, shopID string, date string, limit int) ([]domain.AuditLog, error) {
	shopID = s.shopOrDefault(shopID)
	if limit < 1 {
		limit = 100
	}

	// Without a date the window is the trailing 24 hours, inclusive of now.
	to := s.now().UTC().Add(time.Second)
	from := to.Add(-24 * time.Hour)
	if strings.TrimSpace(date) != "" {
		day, err := s.dayStart(date)
		if err != nil {
			return nil, err
		}
		from, to = day, day.AddDate(0, 0, 1)
	}
	return s.repo.ListAuditLogs(ctx, shopID, from, to, limit)
}

// OutstandingFor sums what a customer still owes across pending receivables.
func (s *Service) OutstandingFor(ctx context.Context, customerID string) (decimal.Decimal, error) {
	recs, err := s.repo.ListReceivables(ctx, store.ReceivableFilter{
		CustomerID: strings.TrimSpace(customerID),
		Status:     domain.ReceivableStatusPending,
		Limit:      1000,
	})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.RemainingAmount)
	}
	return total, nil
}

func (s *Service) logAudit(ctx context.Context, shopID string, action string, entityType string, entityID string, detail string) {
	shopID = s.shopOrDefault(shopID)

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ShopID:        shopID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

// dayStart parses YYYY-MM-DD in the shop location; an empty date means today.
func (s *Service) dayStart(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		now := s.now().In(s.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, date, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return day, nil
}

func (s *Service) shopOrDefault(shopID string) string {
	if shopID = strings.TrimSpace(shopID); shopID == "" {
		return s.defaultShopID
	}
	return shopID
}

func (s *Service) actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

func isAdmin(ctx context.Context) bool {
	actor, ok := ActorFromContext(ctx)
	return ok && actor.Role == domain.RoleAdmin
}
