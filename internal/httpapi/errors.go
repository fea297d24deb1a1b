package httpapi

import (
	"errors"
	"net/http"

	"retailpos/internal/domain"
	"retailpos/internal/service"
	"retailpos/internal/store"
)

// statusFor maps domain and store errors to HTTP statuses. Unknown errors are
// treated as internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidPaymentMode),
		errors.Is(err, domain.ErrInvalidCustomer),
		errors.Is(err, service.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, domain.ErrCustomerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrRegisterClosed),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrIdempotencyConflict),
		errors.Is(err, store.ErrInvalidData):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrAccountRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCommitFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorDetail adds the structured fields of typed errors to the response.
func errorDetail(err error) map[string]any {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		return map[string]any{
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		}
	}
	var balErr *domain.InsufficientBalanceError
	if errors.As(err, &balErr) {
		return map[string]any{
			"available": balErr.Available.StringFixed(2),
			"required":  balErr.Required.StringFixed(2),
		}
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return "forbidden"
	case errors.Is(err, service.ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidData):
		return "conflict"
	default:
		return domain.ErrorCode(err)
	}
}
