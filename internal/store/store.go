package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate sale")
	ErrInvalidData = errors.New("invalid data")
)

// SaleContextQuery names the rows a sale reads before it stages writes.
type SaleContextQuery struct {
	ShopID         string
	ProductIDs     []string
	CustomerID     string
	IdempotencyKey string
}

type ReceivableFilter struct {
	ShopID     string
	CustomerID string
	Status     string
	Limit      int
}

type Repository interface {
	LoadSaleContext(ctx context.Context, q SaleContextQuery) (domain.SaleContext, error)
	Commit(ctx context.Context, mutations []Mutation) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	ListReceivables(ctx context.Context, filter ReceivableFilter) ([]domain.Receivable, error)
	GetDailyStat(ctx context.Context, shopID string, date string) (*domain.DailyStat, error)
	GetCustomerAccount(ctx context.Context, customerID string) (*domain.CustomerAccount, error)
	ListAccountMovements(ctx context.Context, customerID string, limit int) ([]domain.AccountMovement, error)

	GetRegister(ctx context.Context, shopID string) (*domain.CashRegister, error)
	OpenRegister(ctx context.Context, shopID string, openingFloat decimal.Decimal, movement domain.CashMovement) (*domain.CashRegister, error)
	CloseRegister(ctx context.Context, shopID string, movement domain.CashMovement) (*domain.CashRegister, error)
	ListCashMovements(ctx context.Context, shopID string, limit int) ([]domain.CashMovement, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, shopID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
