package billing

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const biweeklyDays = 15

// NextBillingDate advances base by count intervals. Month based intervals clamp the
// day of month to the end of the target month (Jan 31 + 1 month is Feb 28 or 29).
// Unknown intervals advance one month.
func NextBillingDate(base time.Time, interval entity.Interval, count int32) time.Time {
	if count < 1 {
		count = 1
	}
	n := int(count)

	switch interval {
	case entity.IntervalDaily:
		return base.AddDate(0, 0, n)
	case entity.IntervalWeekly:
		return base.AddDate(0, 0, 7*n)
	case entity.IntervalBiweekly:
		return base.AddDate(0, 0, biweeklyDays*n)
	case entity.IntervalMonthly:
		return addMonths(base, n)
	case entity.IntervalQuarterly:
		return addMonths(base, 3*n)
	case entity.IntervalYearly:
		return addMonths(base, 12*n)
	default:
		return addMonths(base, 1)
	}
}

func ValidInterval(interval entity.Interval) bool {
	switch interval {
	case entity.IntervalDaily, entity.IntervalWeekly, entity.IntervalBiweekly,
		entity.IntervalMonthly, entity.IntervalQuarterly, entity.IntervalYearly:
		return true
	default:
		return false
	}
}

func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	first := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// MonthlyNormalized converts a plan price into its monthly recurring value.
func MonthlyNormalized(price int64, interval entity.Interval, count int32) decimal.Decimal {
	if count < 1 {
		count = 1
	}
	value := decimal.NewFromInt(price)
	switch interval {
	case entity.IntervalYearly:
		value = value.Div(decimal.NewFromInt(12))
	case entity.IntervalQuarterly:
		value = value.Div(decimal.NewFromInt(3))
	case entity.IntervalBiweekly:
		value = value.Mul(decimal.NewFromInt(2))
	case entity.IntervalWeekly:
		value = value.Mul(decimal.NewFromInt(4))
	case entity.IntervalDaily:
		value = value.Mul(decimal.NewFromInt(30))
	}
	return value.Div(decimal.NewFromInt(int64(count)))
}
