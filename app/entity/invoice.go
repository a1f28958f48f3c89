package entity

import "time"

type InvoiceStatus string

const (
	InvoicePending    InvoiceStatus = "pending"
	InvoiceProcessing InvoiceStatus = "processing"
	InvoicePaid       InvoiceStatus = "paid"
	InvoiceFailed     InvoiceStatus = "failed"
	InvoiceRefunded   InvoiceStatus = "refunded"
	InvoiceVoid       InvoiceStatus = "void"
)

type Invoice struct {
	ID uint64

	MerchantID     uint64
	SubscriptionID uint64
	CustomerID     uint64

	Amount      int64
	Currency    string
	PlatformFee int64
	NetAmount   int64

	Status  InvoiceStatus
	Gateway Gateway

	ReferenceCode        *string
	GatewayTransactionID *string
	GatewayResponse      *string

	PaidAt  *time.Time
	DueDate time.Time

	AttemptCount int32
	NextRetryAt  *time.Time
	LastError    *string

	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RetryDue reports whether a failed invoice may be charged again at now.
func (i *Invoice) RetryDue(now time.Time) bool {
	return i.Status == InvoiceFailed && i.NextRetryAt != nil && !i.NextRetryAt.After(now)
}
