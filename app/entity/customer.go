package entity

import "time"

type Customer struct {
	ID         uint64
	MerchantID uint64

	Email string
	Name  string
	Phone *string

	DocumentType   *string
	DocumentNumber *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
