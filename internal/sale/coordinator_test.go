package sale

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/store/memory"
)

const testShop = "shop-1"

var fixedNow = time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)

type fixture struct {
	repo  *memory.Store
	coord *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memory.New()
	repo.SeedProduct(domain.Product{
		ID: "P-RICE", Name: "Rice 5kg", Category: "grocery",
		UnitPrice: d("250"), UnitCost: d("200"), Stock: 10, Active: true,
	})
	repo.SeedProduct(domain.Product{
		ID: "P-OIL", Name: "Cooking Oil 1L", Category: "grocery",
		UnitPrice: d("500"), UnitCost: d("420"), Stock: 3, Active: true,
	})
	repo.SeedAccount(domain.CustomerAccount{CustomerID: "C-RICH", Name: "Rich", Balance: d("1200")})
	repo.SeedAccount(domain.CustomerAccount{CustomerID: "C-POOR", Name: "Poor", Balance: d("500")})
	repo.SeedAccount(domain.CustomerAccount{CustomerID: "C-ZERO", Name: "Zero"})

	_, err := repo.OpenRegister(context.Background(), testShop, d("100"), domain.CashMovement{ActorID: "setup"})
	require.NoError(t, err)

	coord := NewCoordinator(repo, testShop, WithClock(func() time.Time { return fixedNow }))
	return &fixture{repo: repo, coord: coord}
}

// snapshot captures every ledger a sale can touch.
type ledgerState struct {
	rice, oil   int
	register    decimal.Decimal
	rich, poor  decimal.Decimal
	receivables int
	stat        *domain.DailyStat
	movements   int
}

func (f *fixture) state(t *testing.T) ledgerState {
	t.Helper()
	ctx := context.Background()

	rice, err := f.repo.GetProduct(ctx, "P-RICE")
	require.NoError(t, err)
	oil, err := f.repo.GetProduct(ctx, "P-OIL")
	require.NoError(t, err)
	reg, err := f.repo.GetRegister(ctx, testShop)
	require.NoError(t, err)
	rich, err := f.repo.GetCustomerAccount(ctx, "C-RICH")
	require.NoError(t, err)
	poor, err := f.repo.GetCustomerAccount(ctx, "C-POOR")
	require.NoError(t, err)
	recs, err := f.repo.ListReceivables(ctx, store.ReceivableFilter{})
	require.NoError(t, err)
	moves, err := f.repo.ListCashMovements(ctx, testShop, 0)
	require.NoError(t, err)
	stat, err := f.repo.GetDailyStat(ctx, testShop, "2026-03-09")
	if errors.Is(err, store.ErrNotFound) {
		stat = nil
	} else {
		require.NoError(t, err)
	}

	return ledgerState{
		rice: rice.Stock, oil: oil.Stock,
		register: reg.Balance,
		rich:     rich.Balance, poor: poor.Balance,
		receivables: len(recs),
		stat:        stat,
		movements:   len(moves),
	}
}

func riceLines(qty int) []domain.CartLine {
	return []domain.CartLine{{ProductID: "P-RICE", Quantity: qty, UnitPrice: d("250")}}
}

func existing(id string) *domain.CustomerRef {
	return &domain.CustomerRef{Kind: domain.CustomerExisting, CustomerID: id}
}

func TestCommitPaidInCash(t *testing.T) {
	f := newFixture(t)
	before := f.state(t)

	res, err := f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:        riceLines(4),
		PaymentMode:  domain.PaymentPaid,
		CashReceived: d("1000"),
		ActorID:      "cashier",
	})
	require.NoError(t, err)

	assert.True(t, res.Sale.PaidAmount.Equal(d("1000")))
	assert.True(t, res.Sale.RemainingAmount.IsZero())
	assert.True(t, res.Sale.ChangeDue.IsZero())

	after := f.state(t)
	assert.True(t, after.register.Equal(before.register.Add(d("1000"))))
	assert.Equal(t, before.rice-4, after.rice)
	assert.Equal(t, 0, after.receivables)
	require.NotNil(t, after.stat)
	assert.Equal(t, 1, after.stat.SaleCount)
	assert.True(t, after.stat.TotalSales.Equal(d("1000")))
	assert.True(t, after.stat.TotalMargin.Equal(d("200")))
	assert.Equal(t, 4, after.stat.Products["P-RICE"].Quantity)
}

func TestCommitPartialCreatesReceivable(t *testing.T) {
	f := newFixture(t)
	before := f.state(t)
	due := fixedNow.AddDate(0, 0, 14)

	res, err := f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:        riceLines(4),
		Customer:     existing("C-ZERO"),
		PaymentMode:  domain.PaymentPartial,
		CashReceived: d("400"),
		DueDate:      &due,
	})
	require.NoError(t, err)

	assert.True(t, res.Sale.PaidAmount.Equal(d("400")))
	assert.True(t, res.Sale.RemainingAmount.Equal(d("600")))

	after := f.state(t)
	assert.True(t, after.register.Equal(before.register.Add(d("400"))))

	recs, err := f.repo.ListReceivables(context.Background(), store.ReceivableFilter{CustomerID: "C-ZERO"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].RemainingAmount.Equal(d("600")))
	assert.True(t, recs[0].PaidAmount.Equal(d("400")))
	assert.Equal(t, res.SaleID, recs[0].SaleID)
	assert.Equal(t, domain.ReceivableStatusPending, recs[0].Status)
	assert.Empty(t, res.Warnings)

	zero, err := f.repo.GetCustomerAccount(context.Background(), "C-ZERO")
	require.NoError(t, err)
	assert.True(t, zero.LifetimeTotalPurchased.Equal(d("1000")))
	assert.True(t, zero.LifetimeTotalPaid.Equal(d("400")))
	assert.Equal(t, 1, zero.PurchaseCount)
}

func TestCommitPayFromAccountLeavesRegisterAlone(t *testing.T) {
	f := newFixture(t)
	before := f.state(t)

	res, err := f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:       riceLines(4),
		Customer:    existing("C-RICH"),
		PaymentMode: domain.PaymentFromAccount,
	})
	require.NoError(t, err)
	assert.True(t, res.Sale.PaidAmount.IsZero())
	assert.True(t, res.Sale.RemainingAmount.IsZero())
	assert.True(t, res.Sale.AmountFromAccount.Equal(d("1000")))

	after := f.state(t)
	assert.True(t, after.rich.Equal(d("200")))
	assert.True(t, after.register.Equal(before.register))
	assert.Equal(t, before.movements, after.movements)
	assert.Equal(t, 0, after.receivables)
	assert.True(t, after.stat.TotalCollected.Equal(d("1000")))
	assert.True(t, after.stat.TotalCash.IsZero())

	moves, err := f.repo.ListAccountMovements(context.Background(), "C-RICH", 0)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, domain.AccountMovementDebit, moves[0].Kind)
	assert.True(t, moves[0].BalanceAfter.Equal(d("200")))
}

func TestCommitPayFromAccountWorksWithRegisterClosed(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.CloseRegister(context.Background(), testShop, domain.CashMovement{})
	require.NoError(t, err)

	_, err = f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:       riceLines(1),
		Customer:    existing("C-RICH"),
		PaymentMode: domain.PaymentFromAccount,
	})
	require.NoError(t, err)
}

func TestCommitRejectionsHaveNoSideEffects(t *testing.T) {
	tests := []struct {
		name  string
		req   domain.SaleRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "insufficient balance",
			req: domain.SaleRequest{
				Lines:       riceLines(4),
				Customer:    existing("C-POOR"),
				PaymentMode: domain.PaymentFromAccount,
			},
			check: func(t *testing.T, err error) {
				var balErr *domain.InsufficientBalanceError
				require.ErrorAs(t, err, &balErr)
				assert.True(t, balErr.Available.Equal(d("500")))
				assert.True(t, balErr.Required.Equal(d("1000")))
			},
		},
		{
			name: "insufficient stock",
			req: domain.SaleRequest{
				Lines:        []domain.CartLine{{ProductID: "P-OIL", Quantity: 5, UnitPrice: d("500")}},
				PaymentMode:  domain.PaymentPaid,
				CashReceived: d("2500"),
			},
			check: func(t *testing.T, err error) {
				var stockErr *domain.InsufficientStockError
				require.ErrorAs(t, err, &stockErr)
				assert.Equal(t, "P-OIL", stockErr.ProductID)
				assert.Equal(t, 3, stockErr.Available)
			},
		},
		{
			name: "duplicate lines summed against stock",
			req: domain.SaleRequest{
				Lines: []domain.CartLine{
					{ProductID: "P-OIL", Quantity: 2, UnitPrice: d("500")},
					{ProductID: "P-OIL", Quantity: 2, UnitPrice: d("500")},
				},
				PaymentMode: domain.PaymentPaid,
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInsufficientStock)
			},
		},
		{
			name: "credit for walk-in",
			req: domain.SaleRequest{
				Lines:       riceLines(1),
				PaymentMode: domain.PaymentCredit,
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrAccountRequired)
			},
		},
		{
			name: "unknown product",
			req: domain.SaleRequest{
				Lines:       []domain.CartLine{{ProductID: "P-GHOST", Quantity: 1, UnitPrice: d("1")}},
				PaymentMode: domain.PaymentPaid,
			},
			check: func(t *testing.T, err error) {
				var stockErr *domain.InsufficientStockError
				require.ErrorAs(t, err, &stockErr)
				assert.Equal(t, 0, stockErr.Available)
			},
		},
		{
			name: "zero quantity",
			req: domain.SaleRequest{
				Lines:       riceLines(0),
				PaymentMode: domain.PaymentPaid,
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name: "negative cash",
			req: domain.SaleRequest{
				Lines:        riceLines(1),
				PaymentMode:  domain.PaymentPaid,
				CashReceived: d("-10"),
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name: "cash finer than a cent",
			req: domain.SaleRequest{
				Lines:        riceLines(4),
				Customer:     existing("C-ZERO"),
				PaymentMode:  domain.PaymentPartial,
				CashReceived: d("400.005"),
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name: "account debit finer than a cent",
			req: domain.SaleRequest{
				Lines:        riceLines(1),
				Customer:     existing("C-RICH"),
				PaymentMode:  domain.PaymentPartial,
				AccountDebit: d("100.001"),
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name: "opening balance finer than a cent",
			req: domain.SaleRequest{
				Lines:       riceLines(1),
				Customer:    &domain.CustomerRef{Kind: domain.CustomerNew, Name: "Sari", OpeningBalance: d("10.009")},
				PaymentMode: domain.PaymentCredit,
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name: "unit price finer than a cent",
			req: domain.SaleRequest{
				Lines:       []domain.CartLine{{ProductID: "P-RICE", Quantity: 3, UnitPrice: d("249.995")}},
				PaymentMode: domain.PaymentPaid,
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name: "unknown customer",
			req: domain.SaleRequest{
				Lines:       riceLines(1),
				Customer:    existing("C-NOBODY"),
				PaymentMode: domain.PaymentCredit,
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrCustomerNotFound)
			},
		},
		{
			name: "empty cart",
			req: domain.SaleRequest{
				PaymentMode: domain.PaymentPaid,
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name: "bad payment mode",
			req: domain.SaleRequest{
				Lines:       riceLines(1),
				PaymentMode: "voucher",
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidPaymentMode)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before := f.state(t)

			_, err := f.coord.Commit(context.Background(), tt.req)
			require.Error(t, err)
			tt.check(t, err)

			assert.Equal(t, before, f.state(t))
		})
	}
}

func TestCommitCashSaleNeedsOpenRegister(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.CloseRegister(context.Background(), testShop, domain.CashMovement{})
	require.NoError(t, err)
	before := f.state(t)

	_, err = f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:        riceLines(1),
		PaymentMode:  domain.PaymentPaid,
		CashReceived: d("250"),
	})
	require.ErrorIs(t, err, domain.ErrRegisterClosed)
	assert.Equal(t, before, f.state(t))
}

func TestCommitCreditOnClosedRegister(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.CloseRegister(context.Background(), testShop, domain.CashMovement{})
	require.NoError(t, err)

	res, err := f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:       riceLines(2),
		Customer:    existing("C-ZERO"),
		PaymentMode: domain.PaymentCredit,
	})
	require.NoError(t, err)
	assert.True(t, res.Sale.RemainingAmount.Equal(d("500")))
	assert.Contains(t, res.Warnings, "amount owed has no due date")
}

func TestCommitNewCustomerCreatesAccount(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines: riceLines(2),
		Customer: &domain.CustomerRef{
			Kind: domain.CustomerNew, Name: "Dewi", Phone: "0811", OpeningBalance: d("300"),
		},
		PaymentMode:  domain.PaymentPartial,
		AccountDebit: d("300"),
		CashReceived: d("100"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Sale.CustomerID)

	created, err := f.repo.GetCustomerAccount(context.Background(), res.Sale.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "Dewi", created.Name)
	assert.True(t, created.Balance.IsZero())
	assert.True(t, created.LifetimeTotalPaid.Equal(d("400")))
	assert.Equal(t, int64(1), created.Version)

	recs, err := f.repo.ListReceivables(context.Background(), store.ReceivableFilter{CustomerID: created.CustomerID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].RemainingAmount.Equal(d("100")))

	moves, err := f.repo.ListAccountMovements(context.Background(), created.CustomerID, 0)
	require.NoError(t, err)
	require.Len(t, moves, 2)
}

func TestCommitChangeDueOnCashOverpayment(t *testing.T) {
	f := newFixture(t)
	before := f.state(t)

	res, err := f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:        riceLines(1),
		PaymentMode:  domain.PaymentPaid,
		CashReceived: d("300"),
	})
	require.NoError(t, err)
	assert.True(t, res.Sale.ChangeDue.Equal(d("50")))
	assert.True(t, f.state(t).register.Equal(before.register.Add(d("250"))))
}

func TestCommitWarnsOnPriceOverride(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines: []domain.CartLine{
			{ProductID: "P-RICE", Quantity: 1, UnitPrice: d("150")},
			{ProductID: "P-OIL", Quantity: 1, UnitPrice: d("450")},
		},
		PaymentMode: domain.PaymentPaid,
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "below cost")
	assert.Contains(t, res.Warnings[1], "list price")
	assert.True(t, res.Sale.TotalMargin.Equal(d("-20")))
}

func TestCommitIdempotencyKeyReturnsOriginal(t *testing.T) {
	f := newFixture(t)
	req := domain.SaleRequest{
		Lines:          riceLines(1),
		PaymentMode:    domain.PaymentPaid,
		IdempotencyKey: "till-1-0001",
	}

	first, err := f.coord.Commit(context.Background(), req)
	require.NoError(t, err)
	afterFirst := f.state(t)

	second, err := f.coord.Commit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.SaleID, second.SaleID)
	assert.Equal(t, afterFirst, f.state(t))
}

func TestCommitAcceptsTrailingZeroCents(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:        riceLines(4),
		Customer:     existing("C-ZERO"),
		PaymentMode:  domain.PaymentPartial,
		CashReceived: d("400.000"),
	})
	require.NoError(t, err)
	assert.True(t, res.Sale.PaidAmount.Equal(d("400")))
	assert.True(t, res.Sale.RemainingAmount.Equal(d("600")))
}

func TestCommitIdempotencyKeyIsScopedToShop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.repo.OpenRegister(ctx, "shop-2", d("0"), domain.CashMovement{ActorID: "setup"})
	require.NoError(t, err)

	first, err := f.coord.Commit(ctx, domain.SaleRequest{
		ShopID:         testShop,
		Lines:          riceLines(1),
		PaymentMode:    domain.PaymentPaid,
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)

	other, err := f.coord.Commit(ctx, domain.SaleRequest{
		ShopID:         "shop-2",
		Lines:          riceLines(2),
		PaymentMode:    domain.PaymentPaid,
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
	assert.NotEqual(t, first.SaleID, other.SaleID)
	assert.Equal(t, "shop-2", other.Sale.ShopID)

	reg, err := f.repo.GetRegister(ctx, "shop-2")
	require.NoError(t, err)
	assert.True(t, reg.Balance.Equal(d("500")))

	again, err := f.coord.Commit(ctx, domain.SaleRequest{
		ShopID:         "shop-2",
		Lines:          riceLines(2),
		PaymentMode:    domain.PaymentPaid,
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, other.SaleID, again.SaleID)
}

func TestCommitReusedKeyWithDifferentSaleConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := domain.SaleRequest{
		Lines:          riceLines(1),
		PaymentMode:    domain.PaymentPaid,
		IdempotencyKey: "till-1-0002",
	}
	_, err := f.coord.Commit(ctx, req)
	require.NoError(t, err)
	before := f.state(t)

	changed := []domain.SaleRequest{req, req, req}
	changed[0].Lines = riceLines(2)
	changed[1].PaymentMode = domain.PaymentPartial
	changed[1].Customer = existing("C-ZERO")
	changed[2].CashReceived = d("300")
	for _, r := range changed {
		_, err := f.coord.Commit(ctx, r)
		require.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	}
	assert.Equal(t, before, f.state(t))

	// Whitespace and an equal decimal spelling still match.
	same := req
	same.Lines = []domain.CartLine{{ProductID: " P-RICE ", Quantity: 1, UnitPrice: d("250.00")}}
	res, err := f.coord.Commit(ctx, same)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestCommitLeavesCallerLinesUntouched(t *testing.T) {
	f := newFixture(t)
	lines := []domain.CartLine{{ProductID: "  P-RICE  ", Quantity: 1, UnitPrice: d("250")}}

	_, err := f.coord.Commit(context.Background(), domain.SaleRequest{Lines: lines, PaymentMode: domain.PaymentPaid})
	require.NoError(t, err)
	assert.Equal(t, "  P-RICE  ", lines[0].ProductID)
}

func TestCommitDailyStatBucketsByShopTimeZone(t *testing.T) {
	f := newFixture(t)
	jakarta := time.FixedZone("WIB", 7*3600)
	coord := NewCoordinator(f.repo, testShop, WithClock(func() time.Time { return fixedNow }), WithLocation(jakarta))

	_, err := coord.Commit(context.Background(), domain.SaleRequest{Lines: riceLines(1), PaymentMode: domain.PaymentPaid})
	require.NoError(t, err)

	_, err = f.repo.GetDailyStat(context.Background(), testShop, "2026-03-10")
	require.NoError(t, err)
	_, err = f.repo.GetDailyStat(context.Background(), testShop, "2026-03-09")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreditAccountTopsUpBalance(t *testing.T) {
	f := newFixture(t)

	acct, err := f.coord.CreditAccount(context.Background(), "C-POOR", d("700"), "admin")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(d("1200")))

	_, err = f.coord.Commit(context.Background(), domain.SaleRequest{
		Lines:       riceLines(4),
		Customer:    existing("C-POOR"),
		PaymentMode: domain.PaymentFromAccount,
	})
	require.NoError(t, err)

	_, err = f.coord.CreditAccount(context.Background(), "C-POOR", d("0"), "admin")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.coord.CreditAccount(context.Background(), "C-NOBODY", d("10"), "admin")
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)
}

type failingStore struct {
	*memory.Store
	err error
}

func (s failingStore) Commit(context.Context, []store.Mutation) error {
	return s.err
}

func TestCommitStoreFailureIsCommitFailed(t *testing.T) {
	f := newFixture(t)
	before := f.state(t)
	coord := NewCoordinator(failingStore{Store: f.repo, err: context.DeadlineExceeded}, testShop)

	_, err := coord.Commit(context.Background(), domain.SaleRequest{Lines: riceLines(1), PaymentMode: domain.PaymentPaid})
	require.ErrorIs(t, err, domain.ErrCommitFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, before, f.state(t))
}

func TestCommitRejectsStaleSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	snapshot, err := f.repo.LoadSaleContext(ctx, store.SaleContextQuery{ShopID: testShop, ProductIDs: []string{"P-RICE"}, CustomerID: "C-RICH"})
	require.NoError(t, err)

	_, err = f.coord.Commit(ctx, domain.SaleRequest{Lines: riceLines(1), Customer: existing("C-RICH"), PaymentMode: domain.PaymentFromAccount})
	require.NoError(t, err)
	before := f.state(t)

	err = f.repo.Commit(ctx, []store.Mutation{
		store.StockDecrement{ProductID: "P-RICE", Quantity: 1, ExpectedVersion: snapshot.Products["P-RICE"].Version},
	})
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	err = f.repo.Commit(ctx, []store.Mutation{
		store.StockDecrement{ProductID: "P-RICE", Quantity: 1, ExpectedVersion: snapshot.Products["P-RICE"].Version + 1},
		store.AccountUpdate{CustomerID: "C-RICH", ExpectedVersion: snapshot.Account.Version, BalanceDelta: d("-1")},
	})
	require.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, before, f.state(t), "a failing mutation must roll back the ones before it")
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Commit(context.Background(), domain.SaleRequest{
				Lines:       []domain.CartLine{{ProductID: "P-OIL", Quantity: 1, UnitPrice: d("500")}},
				Customer:    existing("C-ZERO"),
				PaymentMode: domain.PaymentCredit,
			})
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrConcurrentModification) && !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	st := f.state(t)
	assert.GreaterOrEqual(t, st.oil, 0)
	assert.Equal(t, 3-committed, st.oil)
	assert.Equal(t, committed, st.receivables)
	if committed > 0 {
		assert.Equal(t, committed, st.stat.SaleCount)
	}
}

func TestConservationAcrossModes(t *testing.T) {
	modes := []domain.SaleRequest{
		{Lines: riceLines(2), PaymentMode: domain.PaymentPaid},
		{Lines: riceLines(2), Customer: existing("C-RICH"), PaymentMode: domain.PaymentFromAccount},
		{Lines: riceLines(2), Customer: existing("C-ZERO"), PaymentMode: domain.PaymentCredit},
		{Lines: riceLines(2), Customer: existing("C-RICH"), PaymentMode: domain.PaymentPartial, CashReceived: d("120"), AccountDebit: d("80")},
	}
	f := newFixture(t)
	for _, req := range modes {
		res, err := f.coord.Commit(context.Background(), req)
		require.NoError(t, err)
		s := res.Sale
		assert.True(t, s.PaidAmount.Add(s.RemainingAmount).Add(s.AmountFromAccount).Equal(s.GrandTotal), "mode %s", req.PaymentMode)
		if req.PaymentMode == domain.PaymentFromAccount {
			assert.True(t, s.PaidAmount.IsZero())
			assert.True(t, s.RemainingAmount.IsZero())
		}
	}
	st := f.state(t)
	assert.Equal(t, 4, st.stat.SaleCount)
	assert.True(t, st.stat.TotalSales.Equal(d("2000")))
	assert.True(t, st.stat.TotalCredit.Equal(d("800")))
}
