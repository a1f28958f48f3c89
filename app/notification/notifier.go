// Package notification delivers customer-facing billing notifications. Delivery is
// fire-and-forget from the billing flow's point of view.
package notification

import "context"

type Type string

const (
	TypeWelcome         Type = "welcome"
	TypePaymentSuccess  Type = "payment_success"
	TypePaymentFailed   Type = "payment_failed"
	TypeRenewalReminder Type = "renewal_reminder"
	TypeCancellation    Type = "cancellation"
)

type Notification struct {
	Type      Type                   `json:"type"`
	Recipient string                 `json:"recipient"`
	Data      map[string]interface{} `json:"data"`
}

type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}
