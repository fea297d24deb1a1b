package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientBalance    = errors.New("insufficient account balance")
	ErrRegisterClosed         = errors.New("cash register is closed")
	ErrAccountRequired        = errors.New("customer account required")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidPaymentMode     = errors.New("invalid payment mode")
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrInvalidCustomer        = errors.New("invalid customer reference")
	ErrCommitFailed           = errors.New("sale commit failed")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrIdempotencyConflict    = errors.New("idempotency key reused with a different sale")
)

type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type InsufficientBalanceError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient account balance: available %s, required %s", e.Available.StringFixed(2), e.Required.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// ErrorCode maps an error to the stable code used in API payloads and
// metric labels.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrRegisterClosed):
		return "register_closed"
	case errors.Is(err, ErrAccountRequired):
		return "account_required"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidPaymentMode):
		return "invalid_payment_mode"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrInvalidCustomer):
		return "invalid_customer"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, ErrCommitFailed):
		return "commit_failed"
	default:
		return "internal"
	}
}

// IsCents reports whether v has no fractional part below one cent.
func IsCents(v decimal.Decimal) bool {
	return v.Equal(v.Round(2))
}
