package entity

import "time"

type PlatformInvoice struct {
	ID uint64

	MerchantID uint64

	SubscriptionAmount int64
	TransactionFees    int64
	TotalAmount        int64
	Currency           string

	Status               InvoiceStatus
	ReferenceCode        *string
	GatewayTransactionID *string
	GatewayResponse      *string
	PaidAt               *time.Time

	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time

	AttemptCount int32
	NextRetryAt  *time.Time
	LastError    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
