package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Stock     int             `json:"stock"`
	Active    bool            `json:"active"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CartLine struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"min=0"`
}

type SaleRequest struct {
	ShopID         string          `json:"shop_id"`
	Lines          []CartLine      `json:"lines" validate:"required,min=1,dive"`
	Customer       *CustomerRef    `json:"customer,omitempty"`
	PaymentMode    PaymentMode     `json:"payment_mode" validate:"required"`
	CashReceived   decimal.Decimal `json:"cash_received"`
	AccountDebit   decimal.Decimal `json:"account_debit"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ManagerPIN     string          `json:"manager_pin,omitempty"`
	ActorID        string          `json:"-"`
}

type SaleLine struct {
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	LineTotal  decimal.Decimal `json:"line_total"`
	LineCost   decimal.Decimal `json:"line_cost"`
	LineMargin decimal.Decimal `json:"line_margin"`
}

type Sale struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	ShopID            string          `json:"shop_id"`
	CustomerID        string          `json:"customer_id,omitempty"`
	WalkInName        string          `json:"walk_in_name,omitempty"`
	Lines             []SaleLine      `json:"lines"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	TotalMargin       decimal.Decimal `json:"total_margin"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	RemainingAmount   decimal.Decimal `json:"remaining_amount"`
	AmountFromAccount decimal.Decimal `json:"amount_from_account"`
	ChangeDue         decimal.Decimal `json:"change_due"`
	PaymentMode       PaymentMode     `json:"payment_mode"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty"`
	RequestHash       string          `json:"-"`
	ActorID           string          `json:"actor_id"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Settled is the portion of the grand total covered at sale time.
func (s Sale) Settled() decimal.Decimal {
	return s.PaidAmount.Add(s.AmountFromAccount)
}

type SaleResult struct {
	SaleID    string      `json:"sale_id"`
	Code      string      `json:"code"`
	Plan      PaymentPlan `json:"plan"`
	Sale      Sale        `json:"sale"`
	Warnings  []string    `json:"warnings,omitempty"`
	Duplicate bool        `json:"duplicate"`
}

type CashRegister struct {
	ShopID    string          `json:"shop_id"`
	Balance   decimal.Decimal `json:"balance"`
	Status    string          `json:"status"`
	Version   int64           `json:"version"`
	OpenedAt  *time.Time      `json:"opened_at,omitempty"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r CashRegister) IsOpen() bool {
	return r.Status == RegisterStatusOpen
}

type CashMovement struct {
	ID        string          `json:"id"`
	ShopID    string          `json:"shop_id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	SaleID    string          `json:"sale_id,omitempty"`
	ActorID   string          `json:"actor_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type CustomerAccount struct {
	CustomerID             string          `json:"customer_id"`
	Name                   string          `json:"name"`
	Phone                  string          `json:"phone,omitempty"`
	Balance                decimal.Decimal `json:"balance"`
	LifetimeTotalPaid      decimal.Decimal `json:"lifetime_total_paid"`
	LifetimeTotalPurchased decimal.Decimal `json:"lifetime_total_purchased"`
	PurchaseCount          int             `json:"purchase_count"`
	LastSaleAt             *time.Time      `json:"last_sale_at,omitempty"`
	Version                int64           `json:"version"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

type AccountMovement struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customer_id"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	SaleID       string          `json:"sale_id,omitempty"`
	ActorID      string          `json:"actor_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Receivable struct {
	ID              string          `json:"id"`
	ShopID          string          `json:"shop_id"`
	CustomerID      string          `json:"customer_id"`
	SaleID          string          `json:"sale_id"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SaleContext is the snapshot every validation step reads from. Versions are
// carried into the staged mutations so the store can detect concurrent writes.
type SaleContext struct {
	ShopID       string
	Register     *CashRegister
	Products     map[string]Product
	Account      *CustomerAccount
	ExistingSale *Sale
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ShopID        string    `json:"shop_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type RegisterOpenRequest struct {
	ShopID       string          `json:"shop_id"`
	OpeningFloat decimal.Decimal `json:"opening_float" validate:"min=0"`
}

type RegisterCloseRequest struct {
	ShopID      string          `json:"shop_id"`
	CountedCash decimal.Decimal `json:"counted_cash" validate:"min=0"`
}

type RegisterCloseResponse struct {
	Register CashRegister    `json:"register"`
	Expected decimal.Decimal `json:"expected"`
	Counted  decimal.Decimal `json:"counted"`
	Variance decimal.Decimal `json:"variance"`
}

type AccountCreditRequest struct {
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Note       string          `json:"note"`
	ManagerPIN string          `json:"manager_pin" validate:"required"`
}

const (
	RegisterStatusOpen   = "open"
	RegisterStatusClosed = "closed"
)

const (
	CashMovementSale  = "sale"
	CashMovementOpen  = "open"
	CashMovementClose = "close"
)

const (
	AccountMovementDebit   = "debit"
	AccountMovementCredit  = "credit"
	AccountMovementOpening = "opening"
)

const (
	ReceivableStatusPending = "pending"
	ReceivableStatusSettled = "settled"
)

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=4"`
	Password string `json:"password" validate:"required,min=6"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
