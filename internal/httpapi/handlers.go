package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many login attempts, try again later"))
		return
	}

	var req domain.LoginRequest
	if !a.bindJSON(c, &req) {
		return
	}

	resp, err := a.auth.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInactiveAccount) {
			writeError(c, http.StatusUnauthorized, err)
			return
		}
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleProducts(c *gin.Context) {
	items, err := a.service.ListProducts(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// handleSubmitSale answers 201 for a new sale and 200 when the idempotency key
// matched an earlier one. A new customer with an opening balance needs the
// manager PIN.
func (a *API) handleSubmitSale(c *gin.Context) {
	var req domain.SaleRequest
	if !a.bindJSON(c, &req) {
		return
	}
	if mode, ok := domain.ParsePaymentMode(string(req.PaymentMode)); ok {
		req.PaymentMode = mode
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	if req.Customer.GrantsOpeningBalance() {
		if !a.pinLimiter.Allow(c.ClientIP()) {
			writeError(c, http.StatusTooManyRequests, errors.New("too many PIN attempts, try again later"))
			return
		}
		if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
			writeError(c, http.StatusForbidden, errors.New("opening balance needs the manager PIN"))
			return
		}
	}

	result, err := a.service.SubmitSale(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (a *API) handleListSales(c *gin.Context) {
	limit := parsePositiveLimit(c.Query("limit"), 100, 500)
	sales, err := a.service.ListSales(c.Request.Context(), c.Query("shop_id"), c.Query("date"), limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": sales})
}

func (a *API) handleGetSale(c *gin.Context) {
	sale, err := a.service.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleCustomerAccount(c *gin.Context) {
	ctx := c.Request.Context()
	acct, err := a.service.GetCustomerAccount(ctx, c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	outstanding, err := a.service.OutstandingFor(ctx, acct.CustomerID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":     acct,
		"outstanding": outstanding.StringFixed(2),
	})
}

func (a *API) handleAccountMovements(c *gin.Context) {
	limit := parsePositiveLimit(c.Query("limit"), 50, 500)
	moves, err := a.service.ListAccountMovements(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": moves})
}

// handleAccountCredit tops up a prepaid balance; it needs an admin token and
// the manager PIN.
func (a *API) handleAccountCredit(c *gin.Context) {
	if !a.pinLimiter.Allow(c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many PIN attempts, try again later"))
		return
	}

	var req domain.AccountCreditRequest
	if !a.bindJSON(c, &req) {
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(c, http.StatusForbidden, errors.New("invalid manager PIN"))
		return
	}

	acct, err := a.service.CreditAccount(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (a *API) handleReceivables(c *gin.Context) {
	items, err := a.service.ListReceivables(c.Request.Context(), store.ReceivableFilter{
		ShopID:     c.Query("shop_id"),
		CustomerID: c.Query("customer_id"),
		Status:     c.Query("status"),
		Limit:      parsePositiveLimit(c.Query("limit"), 100, 500),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *API) handleDailyStats(c *gin.Context) {
	stat, err := a.service.DailyStats(c.Request.Context(), c.Query("shop_id"), c.Query("date"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, stat)
}

func (a *API) handleRegister(c *gin.Context) {
	reg, err := a.service.GetRegister(c.Request.Context(), c.Query("shop_id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (a *API) handleRegisterOpen(c *gin.Context) {
	var req domain.RegisterOpenRequest
	if !a.bindJSON(c, &req) {
		return
	}
	reg, err := a.service.OpenRegister(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (a *API) handleRegisterClose(c *gin.Context) {
	var req domain.RegisterCloseRequest
	if !a.bindJSON(c, &req) {
		return
	}
	resp, err := a.service.CloseRegister(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleCashMovements(c *gin.Context) {
	limit := parsePositiveLimit(c.Query("limit"), 50, 500)
	moves, err := a.service.ListCashMovements(c.Request.Context(), c.Query("shop_id"), limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": moves})
}

func (a *API) handleAuditLogs(c *gin.Context) {
	limit := parsePositiveLimit(c.Query("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(c.Request.Context(), c.Query("shop_id"), c.Query("date"), limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

func (a *API) handleListCashiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": a.auth.ListCashiers(c.Request.Context())})
}

func (a *API) handleCreateCashier(c *gin.Context) {
	var req domain.CashierCreateRequest
	if !a.bindJSON(c, &req) {
		return
	}
	user, err := a.auth.CreateCashier(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, store.ErrInvalidData) {
			writeError(c, http.StatusConflict, err)
			return
		}
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}
