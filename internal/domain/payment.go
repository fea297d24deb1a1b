package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMode is how the grand total of a sale is to be settled.
type PaymentMode string

const (
	PaymentPaid        PaymentMode = "paid"
	PaymentFromAccount PaymentMode = "pay_from_account"
	PaymentCredit      PaymentMode = "credit"
	PaymentPartial     PaymentMode = "partial"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentPaid, PaymentFromAccount, PaymentCredit, PaymentPartial:
		return true
	default:
		return false
	}
}

// ParsePaymentMode accepts the canonical values plus the camelCase spelling
// used by older clients.
func ParsePaymentMode(raw string) (PaymentMode, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "payfromaccount" {
		normalized = string(PaymentFromAccount)
	}
	mode := PaymentMode(normalized)
	return mode, mode.Valid()
}

type PaymentPlan struct {
	Mode              PaymentMode     `json:"mode"`
	CashToCollect     decimal.Decimal `json:"cash_to_collect"`
	AmountFromAccount decimal.Decimal `json:"amount_from_account"`
	RemainingOwed     decimal.Decimal `json:"remaining_owed"`
}

// Total is the amount the plan accounts for. It always equals the grand total
// the plan was resolved against.
func (p PaymentPlan) Total() decimal.Decimal {
	return p.CashToCollect.Add(p.AmountFromAccount).Add(p.RemainingOwed)
}

type CustomerKind string

const (
	CustomerExisting CustomerKind = "existing"
	CustomerNew      CustomerKind = "new"
	CustomerWalkIn   CustomerKind = "walk_in"
)

// CustomerRef identifies who is buying. A nil ref is an anonymous walk-in.
type CustomerRef struct {
	Kind           CustomerKind    `json:"kind"`
	CustomerID     string          `json:"customer_id,omitempty"`
	Name           string          `json:"name,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

func (c *CustomerRef) IsWalkIn() bool {
	return c == nil || c.Kind == CustomerWalkIn || c.Kind == ""
}

// GrantsOpeningBalance reports whether the ref creates a customer with
// prepaid credit. That needs the same authority as a top-up.
func (c *CustomerRef) GrantsOpeningBalance() bool {
	return c != nil && c.Kind == CustomerNew && c.OpeningBalance.IsPositive()
}
