package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/notification"
)

const defaultReminderLead = 72 * time.Hour

// RunRenewalReminders notifies customers whose subscription renews within the day that ends
// one lead time from now. Run it once a day so every renewal is reminded once.
func (s *BillingService) RunRenewalReminders(ctx context.Context) (int, error) {
	lead := s.billingCfg.ReminderLead
	if lead <= 0 {
		lead = defaultReminderLead
	}

	to := s.now().Add(lead)
	items, err := s.repos.Subscriptions.ListRenewalWindow(ctx, to.Add(-24*time.Hour), to, s.batchSize())
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, due := range items {
		if due == nil || due.Customer == nil {
			continue
		}
		s.notify(ctx, subscriptionNotification(notification.TypeRenewalReminder, due, nil))
		sent++
	}
	return sent, nil
}
