package entity

import "time"

type Interval string

const (
	IntervalDaily     Interval = "daily"
	IntervalWeekly    Interval = "weekly"
	IntervalBiweekly  Interval = "biweekly"
	IntervalMonthly   Interval = "monthly"
	IntervalQuarterly Interval = "quarterly"
	IntervalYearly    Interval = "yearly"
)

type Plan struct {
	ID         uint64
	MerchantID uint64

	Name        string
	Description *string

	Price         int64
	Currency      string
	Interval      Interval
	IntervalCount int32
	TrialDays     int32

	IsActive bool
	IsPublic bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
