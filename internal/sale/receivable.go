package sale

import (
	"retailpos/internal/domain"
)

type ReceivablesLedger struct{}

// CreateIfOwed returns the receivable a sale leaves behind, or nil when
// nothing is owed. Debt is only ever recorded against a customer account.
func (ReceivablesLedger) CreateIfOwed(id string, sale domain.Sale) (*domain.Receivable, error) {
	if !sale.RemainingAmount.IsPositive() {
		return nil, nil
	}
	if sale.CustomerID == "" {
		return nil, domain.ErrAccountRequired
	}
	return &domain.Receivable{
		ID:              id,
		ShopID:          sale.ShopID,
		CustomerID:      sale.CustomerID,
		SaleID:          sale.ID,
		GrandTotal:      sale.GrandTotal,
		PaidAmount:      sale.Settled(),
		RemainingAmount: sale.RemainingAmount,
		DueDate:         sale.DueDate,
		Status:          domain.ReceivableStatusPending,
		CreatedAt:       sale.CreatedAt,
	}, nil
}
