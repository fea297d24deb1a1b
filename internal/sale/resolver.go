package sale

import (
	"fmt"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
)

// PlanInput is everything the resolver needs. Account is nil for walk-ins.
type PlanInput struct {
	GrandTotal     decimal.Decimal
	Mode           domain.PaymentMode
	CashReceived   decimal.Decimal
	RequestedDebit decimal.Decimal
	Account        *domain.CustomerAccount
}

// Resolve splits the grand total into cash collected now, an amount debited
// from the customer's balance, and an amount still owed. It has no side effects.
func Resolve(in PlanInput) (domain.PaymentPlan, error) {
	if in.GrandTotal.IsNegative() {
		return domain.PaymentPlan{}, fmt.Errorf("%w: grand total %s", domain.ErrInvalidAmount, in.GrandTotal)
	}
	if in.CashReceived.IsNegative() {
		return domain.PaymentPlan{}, fmt.Errorf("%w: cash received %s", domain.ErrInvalidAmount, in.CashReceived)
	}
	if in.RequestedDebit.IsNegative() {
		return domain.PaymentPlan{}, fmt.Errorf("%w: account debit %s", domain.ErrInvalidAmount, in.RequestedDebit)
	}

	total := in.GrandTotal
	plan := domain.PaymentPlan{
		Mode:              in.Mode,
		CashToCollect:     decimal.Zero,
		AmountFromAccount: decimal.Zero,
		RemainingOwed:     decimal.Zero,
	}

	switch in.Mode {
	case domain.PaymentPaid:
		plan.CashToCollect = total
	case domain.PaymentFromAccount:
		if in.Account == nil {
			return domain.PaymentPlan{}, domain.ErrAccountRequired
		}
		if in.Account.Balance.LessThan(total) {
			return domain.PaymentPlan{}, &domain.InsufficientBalanceError{Available: in.Account.Balance, Required: total}
		}
		plan.AmountFromAccount = total
	case domain.PaymentCredit:
		if in.Account == nil {
			return domain.PaymentPlan{}, domain.ErrAccountRequired
		}
		plan.RemainingOwed = total
	case domain.PaymentPartial:
		cash := decimal.Min(in.CashReceived, total)
		debit := decimal.Zero
		if in.Account != nil {
			debit = decimal.Min(in.RequestedDebit, decimal.Max(in.Account.Balance, decimal.Zero), total.Sub(cash))
		}
		owed := total.Sub(cash).Sub(debit)
		if owed.IsPositive() && in.Account == nil {
			return domain.PaymentPlan{}, domain.ErrAccountRequired
		}
		plan.CashToCollect = cash
		plan.AmountFromAccount = debit
		plan.RemainingOwed = owed
	default:
		return domain.PaymentPlan{}, fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMode, in.Mode)
	}

	return plan, nil
}
