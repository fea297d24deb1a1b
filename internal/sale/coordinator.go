package sale

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

// SaleStore is the part of the repository the coordinator needs.
type SaleStore interface {
	LoadSaleContext(ctx context.Context, q store.SaleContextQuery) (domain.SaleContext, error)
	Commit(ctx context.Context, mutations []store.Mutation) error
}

type Coordinator struct {
	repo          SaleStore
	defaultShopID string
	log           zerolog.Logger
	now           func() time.Time

	inventory   InventoryLedger
	register    CashRegisterLedger
	accounts    CustomerAccountLedger
	receivables ReceivablesLedger
	stats       DailyStatsAggregator
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = logger }
}

// WithLocation sets the time zone daily stats are bucketed in.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) { c.stats.Location = loc }
}

func NewCoordinator(repo SaleStore, defaultShopID string, opts ...Option) *Coordinator {
	if defaultShopID == "" {
		defaultShopID = "main-shop"
	}
	c := &Coordinator{
		repo:          repo,
		defaultShopID: defaultShopID,
		log:           zerolog.Nop(),
		now:           time.Now,
		stats:         DailyStatsAggregator{Location: time.UTC},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit validates a sale against one snapshot of the shop and applies every
// ledger write in a single atomic store commit. On error nothing is written.
// Failed commits are not retried.
func (c *Coordinator) Commit(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	req, err := c.normalize(req)
	if err != nil {
		return domain.SaleResult{}, err
	}

	snapshot, err := c.load(ctx, req)
	if err != nil {
		return domain.SaleResult{}, err
	}
	if snapshot.ExistingSale != nil {
		return replay(*snapshot.ExistingSale, req)
	}

	lines, err := c.inventory.Reserve(req.Lines, snapshot.Products)
	if err != nil {
		return domain.SaleResult{}, err
	}

	now := c.now().UTC()
	account, err := c.accountFor(req, snapshot, now)
	if err != nil {
		return domain.SaleResult{}, err
	}

	grandTotal, totalCost := decimal.Zero, decimal.Zero
	for _, line := range lines {
		grandTotal = grandTotal.Add(line.LineTotal)
		totalCost = totalCost.Add(line.LineCost)
	}

	plan, err := Resolve(PlanInput{
		GrandTotal:     grandTotal,
		Mode:           req.PaymentMode,
		CashReceived:   req.CashReceived,
		RequestedDebit: req.AccountDebit,
		Account:        account,
	})
	if err != nil {
		return domain.SaleResult{}, err
	}
	if plan.CashToCollect.IsPositive() {
		if err := c.register.RequireOpen(snapshot.Register); err != nil {
			return domain.SaleResult{}, err
		}
	}

	sale := domain.Sale{
		ID:                uuid.NewString(),
		Code:              xid.SaleCode(now),
		ShopID:            req.ShopID,
		Lines:             lines,
		GrandTotal:        grandTotal,
		TotalCost:         totalCost,
		TotalMargin:       grandTotal.Sub(totalCost),
		PaidAmount:        plan.CashToCollect,
		RemainingAmount:   plan.RemainingOwed,
		AmountFromAccount: plan.AmountFromAccount,
		ChangeDue:         decimal.Zero,
		PaymentMode:       plan.Mode,
		DueDate:           req.DueDate,
		IdempotencyKey:    req.IdempotencyKey,
		ActorID:           req.ActorID,
		CreatedAt:         now,
	}
	if req.IdempotencyKey != "" {
		sale.RequestHash = fingerprint(req)
	}
	if account != nil {
		sale.CustomerID = account.CustomerID
	} else if req.Customer != nil {
		sale.WalkInName = strings.TrimSpace(req.Customer.Name)
	}
	if plan.Mode == domain.PaymentPaid && req.CashReceived.GreaterThan(grandTotal) {
		sale.ChangeDue = req.CashReceived.Sub(grandTotal)
	}

	mutations, err := c.stage(sale, plan, snapshot, account)
	if err != nil {
		return domain.SaleResult{}, err
	}

	if err := c.repo.Commit(ctx, mutations); err != nil {
		if errors.Is(err, store.ErrDuplicate) && req.IdempotencyKey != "" {
			return c.duplicate(ctx, req)
		}
		err = classifyCommitError(err)
		c.log.Warn().Err(err).
			Str("shop_id", sale.ShopID).
			Str("code", domain.ErrorCode(err)).
			Msg("sale commit rejected")
		return domain.SaleResult{}, err
	}

	c.log.Debug().
		Str("sale_id", sale.ID).
		Str("mode", string(plan.Mode)).
		Str("grand_total", grandTotal.StringFixed(2)).
		Msg("sale committed")

	result := resultFromSale(sale, false)
	result.Plan = plan
	result.Warnings = warnings(req, sale, snapshot.Products)
	return result, nil
}

// CreditAccount tops up a customer's balance outside of a sale.
func (c *Coordinator) CreditAccount(ctx context.Context, customerID string, amount decimal.Decimal, actorID string) (domain.CustomerAccount, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CustomerAccount{}, domain.ErrInvalidCustomer
	}
	snapshot, err := c.repo.LoadSaleContext(ctx, store.SaleContextQuery{ShopID: c.defaultShopID, CustomerID: customerID})
	if err != nil {
		return domain.CustomerAccount{}, classifyLoadError(err)
	}
	if snapshot.Account == nil {
		return domain.CustomerAccount{}, domain.ErrCustomerNotFound
	}

	before := *snapshot.Account
	after, err := c.accounts.Credit(before, amount)
	if err != nil {
		return domain.CustomerAccount{}, err
	}
	now := c.now().UTC()
	after.UpdatedAt = now
	movement := newAccountMovement(uuid.NewString(), customerID, domain.AccountMovementCredit, amount, after.Balance, "", actorID, now)

	if err := c.repo.Commit(ctx, []store.Mutation{c.accounts.Stage(before, after, []domain.AccountMovement{movement})}); err != nil {
		return domain.CustomerAccount{}, classifyCommitError(err)
	}
	after.Version = before.Version + 1
	return after, nil
}

func (c *Coordinator) normalize(req domain.SaleRequest) (domain.SaleRequest, error) {
	req.ShopID = strings.TrimSpace(req.ShopID)
	if req.ShopID == "" {
		req.ShopID = c.defaultShopID
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if len(req.Lines) == 0 {
		return req, fmt.Errorf("%w: sale has no lines", domain.ErrInvalidAmount)
	}
	req.Lines = slices.Clone(req.Lines)
	for i := range req.Lines {
		req.Lines[i].ProductID = strings.TrimSpace(req.Lines[i].ProductID)
		if req.Lines[i].ProductID == "" {
			return req, fmt.Errorf("%w: line %d has no product", domain.ErrInvalidAmount, i)
		}
		if !domain.IsCents(req.Lines[i].UnitPrice) {
			return req, fmt.Errorf("%w: unit price %s is finer than a cent", domain.ErrInvalidAmount, req.Lines[i].UnitPrice)
		}
	}
	if !req.PaymentMode.Valid() {
		return req, fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMode, req.PaymentMode)
	}
	if req.CashReceived.IsNegative() || req.AccountDebit.IsNegative() {
		return req, fmt.Errorf("%w: negative tender", domain.ErrInvalidAmount)
	}
	if !domain.IsCents(req.CashReceived) || !domain.IsCents(req.AccountDebit) {
		return req, fmt.Errorf("%w: tender is finer than a cent", domain.ErrInvalidAmount)
	}
	if req.Customer != nil {
		ref := *req.Customer
		ref.CustomerID = strings.TrimSpace(ref.CustomerID)
		ref.Name = strings.TrimSpace(ref.Name)
		ref.Phone = strings.TrimSpace(ref.Phone)
		switch ref.Kind {
		case domain.CustomerExisting:
			if ref.CustomerID == "" {
				return req, fmt.Errorf("%w: existing customer needs an id", domain.ErrInvalidCustomer)
			}
		case domain.CustomerNew:
			if ref.Name == "" {
				return req, fmt.Errorf("%w: new customer needs a name", domain.ErrInvalidCustomer)
			}
			if ref.OpeningBalance.IsNegative() || !domain.IsCents(ref.OpeningBalance) {
				return req, fmt.Errorf("%w: opening balance %s", domain.ErrInvalidAmount, ref.OpeningBalance)
			}
		case domain.CustomerWalkIn, "":
			ref.Kind = domain.CustomerWalkIn
		default:
			return req, fmt.Errorf("%w: kind %q", domain.ErrInvalidCustomer, ref.Kind)
		}
		req.Customer = &ref
	}
	return req, nil
}

func (c *Coordinator) load(ctx context.Context, req domain.SaleRequest) (domain.SaleContext, error) {
	ids := make([]string, 0, len(req.Lines))
	seen := make(map[string]struct{}, len(req.Lines))
	for _, line := range req.Lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	q := store.SaleContextQuery{
		ShopID:         req.ShopID,
		ProductIDs:     ids,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.Customer != nil && req.Customer.Kind == domain.CustomerExisting {
		q.CustomerID = req.Customer.CustomerID
	}

	snapshot, err := c.repo.LoadSaleContext(ctx, q)
	if err != nil {
		return domain.SaleContext{}, classifyLoadError(err)
	}
	if q.CustomerID != "" && snapshot.Account == nil && snapshot.ExistingSale == nil {
		return domain.SaleContext{}, fmt.Errorf("%w: %s", domain.ErrCustomerNotFound, q.CustomerID)
	}
	return snapshot, nil
}

// accountFor returns the account the sale settles against, or nil for a
// walk-in. New customers get an unsaved account that is created in the commit.
func (c *Coordinator) accountFor(req domain.SaleRequest, snapshot domain.SaleContext, now time.Time) (*domain.CustomerAccount, error) {
	if req.Customer.IsWalkIn() {
		return nil, nil
	}
	if req.Customer.Kind == domain.CustomerExisting {
		acct := *snapshot.Account
		return &acct, nil
	}
	return &domain.CustomerAccount{
		CustomerID:             uuid.NewString(),
		Name:                   req.Customer.Name,
		Phone:                  req.Customer.Phone,
		Balance:                req.Customer.OpeningBalance,
		LifetimeTotalPaid:      decimal.Zero,
		LifetimeTotalPurchased: decimal.Zero,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

func (c *Coordinator) stage(sale domain.Sale, plan domain.PaymentPlan, snapshot domain.SaleContext, account *domain.CustomerAccount) ([]store.Mutation, error) {
	mutations := c.inventory.Apply(sale.Lines, snapshot.Products)

	if plan.CashToCollect.IsPositive() {
		credit, err := c.register.Credit(snapshot.Register, plan.CashToCollect, domain.CashMovement{
			ID:        uuid.NewString(),
			Kind:      domain.CashMovementSale,
			SaleID:    sale.ID,
			ActorID:   sale.ActorID,
			CreatedAt: sale.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, credit)
	}

	if account != nil {
		before := *account
		after, err := c.accounts.SettleSale(before, sale)
		if err != nil {
			return nil, err
		}
		var movements []domain.AccountMovement
		if before.Version == 0 && before.Balance.IsPositive() {
			movements = append(movements, newAccountMovement(uuid.NewString(), before.CustomerID, domain.AccountMovementOpening, before.Balance, before.Balance, "", sale.ActorID, sale.CreatedAt))
		}
		if sale.AmountFromAccount.IsPositive() {
			movements = append(movements, newAccountMovement(uuid.NewString(), before.CustomerID, domain.AccountMovementDebit, sale.AmountFromAccount, after.Balance, sale.ID, sale.ActorID, sale.CreatedAt))
		}
		mutations = append(mutations, c.accounts.Stage(before, after, movements))
	}

	mutations = append(mutations, store.SaleInsert{Sale: sale})

	receivable, err := c.receivables.CreateIfOwed(uuid.NewString(), sale)
	if err != nil {
		return nil, err
	}
	if receivable != nil {
		mutations = append(mutations, store.ReceivableInsert{Receivable: *receivable})
	}

	increment, err := c.stats.Increment(sale.ShopID, c.stats.DateKey(sale.CreatedAt), c.stats.Delta(sale))
	if err != nil {
		return nil, err
	}
	return append(mutations, increment), nil
}

func (c *Coordinator) duplicate(ctx context.Context, req domain.SaleRequest) (domain.SaleResult, error) {
	snapshot, err := c.repo.LoadSaleContext(ctx, store.SaleContextQuery{ShopID: req.ShopID, IdempotencyKey: req.IdempotencyKey})
	if err != nil {
		return domain.SaleResult{}, classifyLoadError(err)
	}
	if snapshot.ExistingSale == nil {
		return domain.SaleResult{}, domain.ErrConcurrentModification
	}
	return replay(*snapshot.ExistingSale, req)
}

// replay answers a resubmitted idempotency key with the sale it first
// committed. A key carried by a different cart or tender is a conflict.
// Sales stored without a hash are trusted.
func replay(existing domain.Sale, req domain.SaleRequest) (domain.SaleResult, error) {
	if existing.RequestHash != "" && existing.RequestHash != fingerprint(req) {
		return domain.SaleResult{}, fmt.Errorf("%w: key %s belongs to sale %s", domain.ErrIdempotencyConflict, req.IdempotencyKey, existing.Code)
	}
	return resultFromSale(existing, true), nil
}

func resultFromSale(sale domain.Sale, duplicate bool) domain.SaleResult {
	return domain.SaleResult{
		SaleID: sale.ID,
		Code:   sale.Code,
		Plan: domain.PaymentPlan{
			Mode:              sale.PaymentMode,
			CashToCollect:     sale.PaidAmount,
			AmountFromAccount: sale.AmountFromAccount,
			RemainingOwed:     sale.RemainingAmount,
		},
		Sale:      sale,
		Duplicate: duplicate,
	}
}

func warnings(req domain.SaleRequest, sale domain.Sale, products map[string]domain.Product) []string {
	var out []string
	if sale.RemainingAmount.IsPositive() && sale.DueDate == nil {
		out = append(out, "amount owed has no due date")
	}
	for _, line := range sale.Lines {
		product := products[line.ProductID]
		if line.UnitPrice.LessThan(product.UnitCost) {
			out = append(out, fmt.Sprintf("%s sold below cost", line.ProductID))
		} else if !line.UnitPrice.Equal(product.UnitPrice) {
			out = append(out, fmt.Sprintf("%s sold at %s instead of list price %s", line.ProductID, line.UnitPrice.StringFixed(2), product.UnitPrice.StringFixed(2)))
		}
	}
	if req.PaymentMode == domain.PaymentPartial && req.CashReceived.GreaterThan(sale.GrandTotal) {
		out = append(out, "cash received exceeds total; excess was not collected")
	}
	return out
}

var passthroughErrors = []error{
	domain.ErrInsufficientStock,
	domain.ErrInsufficientBalance,
	domain.ErrRegisterClosed,
	domain.ErrAccountRequired,
	domain.ErrInvalidAmount,
	domain.ErrConcurrentModification,
	domain.ErrCustomerNotFound,
	domain.ErrCommitFailed,
}

func classifyCommitError(err error) error {
	for _, target := range passthroughErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrCommitFailed, err)
}

func classifyLoadError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrCustomerNotFound, err)
	}
	return classifyCommitError(err)
}
