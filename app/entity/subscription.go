package entity

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID uint64

	MerchantID      uint64
	CustomerID      uint64
	PlanID          uint64
	PaymentMethodID *uint64

	Status SubscriptionStatus

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	NextBillingDate    time.Time
	TrialEnd           *time.Time

	CancelAtPeriodEnd  bool
	CancellationReason *string
	CancelledAt        *time.Time

	BillingCycleCount int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Billable reports whether the billing pass may charge the subscription.
func (s *Subscription) Billable() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// DueSubscription is a due subscription joined with everything needed to charge it.
// Any of the joined pointers may be nil when the referenced row is gone or unusable.
type DueSubscription struct {
	Subscription  *Subscription
	Merchant      *Merchant
	Plan          *Plan
	Customer      *Customer
	PaymentMethod *PaymentMethod
}

func (d *DueSubscription) MissingParts() []string {
	missing := make([]string, 0)
	if d.Merchant == nil {
		missing = append(missing, "merchant")
	} else if d.Merchant.Credentials == nil {
		missing = append(missing, "merchant gateway config")
	}
	if d.Plan == nil || !d.Plan.IsActive {
		missing = append(missing, "plan")
	}
	if d.Customer == nil {
		missing = append(missing, "customer")
	}
	if d.PaymentMethod == nil || d.PaymentMethod.Token == "" {
		missing = append(missing, "payment method")
	}
	return missing
}
