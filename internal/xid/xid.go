package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// New returns a sortable opaque id with the given prefix.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// SaleCode is the short code printed on receipts, e.g. S-261014-9F3A1C.
func SaleCode(at time.Time) string {
	buf := make([]byte, 3)
	suffix := ""
	if _, err := rand.Read(buf); err != nil {
		suffix = fmt.Sprintf("%06d", at.UnixNano()%1_000_000)
	} else {
		suffix = strings.ToUpper(hex.EncodeToString(buf))
	}
	return fmt.Sprintf("S-%s-%s", at.Format("060102"), suffix)
}
