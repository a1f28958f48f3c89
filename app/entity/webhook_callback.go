package entity

import "time"

const (
	WebhookCallbackProcessed int32 = 10
	WebhookCallbackRejected  int32 = 20
)

type WebhookCallback struct {
	ID uint64

	Gateway    string
	MerchantID *uint64
	InvoiceID  *uint64

	Signature   string
	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
