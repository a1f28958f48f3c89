package entity

import "time"

type PaymentMethod struct {
	ID         uint64
	MerchantID uint64
	CustomerID uint64

	Gateway Gateway
	Token   string

	CardLastFour   *string
	CardBrand      *string
	CardExpMonth   *string
	CardExpYear    *string
	CardholderName *string

	IsDefault bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
