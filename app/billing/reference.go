package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceReference is the reference sent to the gateway for one charge attempt of an invoice.
// The attempt number keeps it unique per attempt.
func InvoiceReference(invoiceID uint64, attempt int32) string {
	return fmt.Sprintf("INV-%d-%d", invoiceID, attempt)
}

func ManualChargeReference(subscriptionID uint64, now time.Time) string {
	return fmt.Sprintf("SUB-%d-%d", subscriptionID, now.UnixMilli())
}

// ReferenceCode builds PREFIX-<base36 millis>-<random>, upper-cased.
func ReferenceCode(prefix string, now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return strings.ToUpper(fmt.Sprintf("%s-%s-%s", prefix, strconv.FormatInt(now.UnixMilli(), 36), random))
}

// ParseInvoiceReference extracts the invoice id from an INV- reference.
func ParseInvoiceReference(reference string) (uint64, bool) {
	parts := strings.Split(strings.TrimSpace(reference), "-")
	if len(parts) != 3 || parts[0] != "INV" {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
