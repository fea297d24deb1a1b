//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"retailpos/internal/domain"
	"retailpos/internal/sale"
	"retailpos/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		tcPostgres.WithDatabase("retailpos_test"),
		tcPostgres.WithUsername("retailpos"),
		tcPostgres.WithPassword("retailpos"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate must be repeatable")

	require.NoError(t, s.UpsertProduct(ctx, domain.Product{
		ID: "P-RICE", Name: "Rice 5kg", Category: "Staples",
		UnitPrice: decimal.NewFromInt(250), UnitCost: decimal.NewFromInt(200), Stock: 10, Active: true,
	}))
	require.NoError(t, s.UpsertAccount(ctx, domain.CustomerAccount{
		CustomerID: "C-RICH", Name: "Rich", Balance: decimal.NewFromInt(1200),
	}))
	_, err = s.OpenRegister(ctx, "shop-1", decimal.NewFromInt(100), domain.CashMovement{ActorID: "admin"})
	require.NoError(t, err)
	return s
}

func TestCoordinatorAgainstPostgres(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	coord := sale.NewCoordinator(s, "shop-1")

	t.Run("pay from account commits everything", func(t *testing.T) {
		res, err := coord.Commit(ctx, domain.SaleRequest{
			ShopID:      "shop-1",
			Lines:       []domain.CartLine{{ProductID: "P-RICE", Quantity: 4, UnitPrice: decimal.NewFromInt(250)}},
			Customer:    &domain.CustomerRef{Kind: domain.CustomerExisting, CustomerID: "C-RICH"},
			PaymentMode: domain.PaymentFromAccount,
		})
		require.NoError(t, err)
		assert.True(t, res.Plan.AmountFromAccount.Equal(decimal.NewFromInt(1000)))

		acct, err := s.GetCustomerAccount(ctx, "C-RICH")
		require.NoError(t, err)
		assert.True(t, acct.Balance.Equal(decimal.NewFromInt(200)))
		assert.Equal(t, 1, acct.PurchaseCount)

		p, err := s.GetProduct(ctx, "P-RICE")
		require.NoError(t, err)
		assert.Equal(t, 6, p.Stock)

		stored, err := s.FindSaleByID(ctx, res.SaleID)
		require.NoError(t, err)
		require.Len(t, stored.Lines, 1)
		assert.True(t, stored.GrandTotal.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("short balance leaves no trace", func(t *testing.T) {
		_, err := coord.Commit(ctx, domain.SaleRequest{
			ShopID:      "shop-1",
			Lines:       []domain.CartLine{{ProductID: "P-RICE", Quantity: 2, UnitPrice: decimal.NewFromInt(250)}},
			Customer:    &domain.CustomerRef{Kind: domain.CustomerExisting, CustomerID: "C-RICH"},
			PaymentMode: domain.PaymentFromAccount,
		})
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)

		p, err := s.GetProduct(ctx, "P-RICE")
		require.NoError(t, err)
		assert.Equal(t, 6, p.Stock)
	})

	t.Run("credit sale writes a receivable", func(t *testing.T) {
		due := time.Now().Add(14 * 24 * time.Hour).UTC().Truncate(time.Second)
		res, err := coord.Commit(ctx, domain.SaleRequest{
			ShopID:      "shop-1",
			Lines:       []domain.CartLine{{ProductID: "P-RICE", Quantity: 1, UnitPrice: decimal.NewFromInt(250)}},
			Customer:    &domain.CustomerRef{Kind: domain.CustomerExisting, CustomerID: "C-RICH"},
			PaymentMode: domain.PaymentCredit,
			DueDate:     &due,
		})
		require.NoError(t, err)

		recs, err := s.ListReceivables(ctx, store.ReceivableFilter{CustomerID: "C-RICH"})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, res.SaleID, recs[0].SaleID)
		assert.True(t, recs[0].RemainingAmount.Equal(decimal.NewFromInt(250)))
	})

	t.Run("idempotency key returns the first sale", func(t *testing.T) {
		req := domain.SaleRequest{
			ShopID:         "shop-1",
			Lines:          []domain.CartLine{{ProductID: "P-RICE", Quantity: 1, UnitPrice: decimal.NewFromInt(250)}},
			PaymentMode:    domain.PaymentPaid,
			CashReceived:   decimal.NewFromInt(250),
			IdempotencyKey: "till-1-0001",
		}
		first, err := coord.Commit(ctx, req)
		require.NoError(t, err)
		second, err := coord.Commit(ctx, req)
		require.NoError(t, err)
		assert.True(t, second.Duplicate)
		assert.Equal(t, first.SaleID, second.SaleID)

		p, err := s.GetProduct(ctx, "P-RICE")
		require.NoError(t, err)
		assert.Equal(t, 4, p.Stock)

		req.Lines[0].Quantity = 2
		_, err = coord.Commit(ctx, req)
		require.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	})

	t.Run("idempotency keys are per shop", func(t *testing.T) {
		_, err := s.OpenRegister(ctx, "shop-2", decimal.Zero, domain.CashMovement{ActorID: "admin"})
		require.NoError(t, err)

		res, err := coord.Commit(ctx, domain.SaleRequest{
			ShopID:         "shop-2",
			Lines:          []domain.CartLine{{ProductID: "P-RICE", Quantity: 1, UnitPrice: decimal.NewFromInt(250)}},
			PaymentMode:    domain.PaymentPaid,
			CashReceived:   decimal.NewFromInt(250),
			IdempotencyKey: "till-1-0001",
		})
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Equal(t, "shop-2", res.Sale.ShopID)

		reg, err := s.GetRegister(ctx, "shop-2")
		require.NoError(t, err)
		assert.True(t, reg.Balance.Equal(decimal.NewFromInt(250)))
	})

	t.Run("sub-cent tender is rejected before the database", func(t *testing.T) {
		_, err := coord.Commit(ctx, domain.SaleRequest{
			ShopID:       "shop-1",
			Lines:        []domain.CartLine{{ProductID: "P-RICE", Quantity: 1, UnitPrice: decimal.NewFromInt(250)}},
			Customer:     &domain.CustomerRef{Kind: domain.CustomerExisting, CustomerID: "C-RICH"},
			PaymentMode:  domain.PaymentPartial,
			CashReceived: decimal.RequireFromString("100.005"),
		})
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
		require.NotErrorIs(t, err, domain.ErrCommitFailed)
	})
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	coord := sale.NewCoordinator(s, "shop-1")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Commit(ctx, domain.SaleRequest{
				ShopID:       "shop-1",
				Lines:        []domain.CartLine{{ProductID: "P-RICE", Quantity: 1, UnitPrice: decimal.NewFromInt(250)}},
				PaymentMode:  domain.PaymentPaid,
				CashReceived: decimal.NewFromInt(250),
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, err := s.GetProduct(ctx, "P-RICE")
	require.NoError(t, err)
	assert.Equal(t, 10-ok, p.Stock)
	assert.GreaterOrEqual(t, p.Stock, 0)

	reg, err := s.GetRegister(ctx, "shop-1")
	require.NoError(t, err)
	assert.True(t, reg.Balance.Equal(decimal.NewFromInt(int64(100+250*ok))))

	stat, err := s.GetDailyStat(ctx, "shop-1", time.Now().UTC().Format(time.DateOnly))
	require.NoError(t, err)
	assert.Equal(t, ok, stat.SaleCount)
}

func TestRegisterLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.OpenRegister(ctx, "shop-1", decimal.NewFromInt(50), domain.CashMovement{})
	require.ErrorIs(t, err, store.ErrInvalidData)

	closed, err := s.CloseRegister(ctx, "shop-1", domain.CashMovement{ActorID: "admin"})
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())
	assert.True(t, closed.Balance.Equal(decimal.NewFromInt(100)))

	_, err = s.CloseRegister(ctx, "shop-1", domain.CashMovement{})
	require.ErrorIs(t, err, domain.ErrRegisterClosed)

	moves, err := s.ListCashMovements(ctx, "shop-1", 10)
	require.NoError(t, err)
	assert.Len(t, moves, 2)
}
