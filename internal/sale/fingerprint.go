package sale

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"retailpos/internal/domain"
)

// fingerprint digests what a normalized request asks for: shop, cart, tender
// and customer. Actor and manager PIN are left out so a retry from another
// till still matches.
func fingerprint(req domain.SaleRequest) string {
	var b strings.Builder
	field := func(v string) {
		b.WriteString(v)
		b.WriteByte('\n')
	}

	field(req.ShopID)
	field(string(req.PaymentMode))
	field(req.CashReceived.StringFixed(2))
	field(req.AccountDebit.StringFixed(2))
	for _, line := range req.Lines {
		field(line.ProductID + "|" + strconv.Itoa(line.Quantity) + "|" + line.UnitPrice.StringFixed(2))
	}
	if !req.Customer.IsWalkIn() {
		c := req.Customer
		field(string(c.Kind) + "|" + c.CustomerID + "|" + c.Name + "|" + c.Phone + "|" + c.OpeningBalance.StringFixed(2))
	}
	if req.DueDate != nil {
		field(req.DueDate.UTC().Format(time.RFC3339))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
