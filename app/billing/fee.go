// Package billing holds the pure calculations of the billing engine: platform fees,
// billing date arithmetic and reference codes.
package billing

import "github.com/shopspring/decimal"

// DefaultPlatformFeePercent applies to merchants without a negotiated fee.
const DefaultPlatformFeePercent = 2

var hundred = decimal.NewFromInt(100)

// FeePercent resolves a merchant's configured fee, falling back to the default.
func FeePercent(configured *decimal.Decimal) decimal.Decimal {
	if configured == nil {
		return decimal.NewFromInt(DefaultPlatformFeePercent)
	}
	return *configured
}

// PlatformFee returns round_half_up(amount * percent / 100) in integer currency units.
func PlatformFee(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).Round(0).IntPart()
}

func NetAmount(amount int64, platformFee int64) int64 {
	return amount - platformFee
}
