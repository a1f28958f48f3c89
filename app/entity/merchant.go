package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MerchantSubscriptionActive    = "active"
	MerchantSubscriptionPastDue   = "past_due"
	MerchantSubscriptionCancelled = "cancelled"
)

type Merchant struct {
	ID uint64

	Slug  string
	Name  string
	Email string

	Gateway     Gateway
	Credentials GatewayCredentials

	// PlatformFeePercent is nil when the merchant has no negotiated fee.
	PlatformFeePercent *decimal.Decimal

	SubscriptionStatus  string
	SubscriptionPrice   int64
	NextPlatformBilling *time.Time
	WompiToken          *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
