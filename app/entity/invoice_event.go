package entity

import "time"

type InvoiceEvent struct {
	ID uint64

	InvoiceID uint64

	EventType string

	OldStatus *InvoiceStatus
	NewStatus InvoiceStatus

	PayloadJSON *string

	CreatedAt time.Time
}
