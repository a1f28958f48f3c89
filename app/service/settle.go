package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/billing"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/notification"
)

const (
	sourceCharge    = "charge"
	sourceWebhook   = "webhook"
	sourceReconcile = "reconcile"
)

// settlement is a charge outcome as seen by the invoice, whatever reported it.
type settlement struct {
	approved      bool
	transactionID string
	state         gateway.State
	errMessage    string
	rawResponse   []byte
	source        string
}

func settlementFromCharge(result *gateway.ChargeResult) *settlement {
	return &settlement{
		approved:      result.Success,
		transactionID: result.TransactionID,
		state:         result.State,
		errMessage:    result.Error,
		rawResponse:   result.RawResponse,
		source:        sourceCharge,
	}
}

// settleInvoice applies an outcome to the invoice and, when it changes the billing period or
// the subscription status, to the subscription, in one transaction. The write only lands
// while the invoice is still in the status it was loaded with; otherwise
// repository.ErrInvoiceStateChanged is returned and nothing changes.
func (s *BillingService) settleInvoice(ctx context.Context, due *entity.DueSubscription, invoice *entity.Invoice, st *settlement) error {
	now := s.now()
	from := invoice.Status
	sub := due.Subscription

	if st.transactionID != "" {
		txID := st.transactionID
		invoice.GatewayTransactionID = &txID
	}
	if len(st.rawResponse) > 0 {
		raw := string(st.rawResponse)
		invoice.GatewayResponse = &raw
	}
	invoice.UpdatedAt = now

	var subUpdate *entity.Subscription
	event := &entity.InvoiceEvent{
		OldStatus: statusPtr(from),
		CreatedAt: now,
	}

	if st.approved {
		invoice.Status = entity.InvoicePaid
		invoice.PaidAt = timePtr(now)
		invoice.NextRetryAt = nil
		invoice.LastError = nil
		event.EventType = "invoice_paid"
		if sub != nil && advanceSubscription(sub, due.Plan, invoice.DueDate, now) {
			subUpdate = sub
		}
	} else {
		message := st.errMessage
		if message == "" {
			message = "charge was not approved"
		}
		invoice.Status = entity.InvoiceFailed
		invoice.AttemptCount++
		invoice.LastError = &message
		event.EventType = "invoice_failed"
		if invoice.AttemptCount < s.billingCfg.MaxAttempts {
			invoice.NextRetryAt = timePtr(now.Add(s.billingCfg.RetryInterval))
		} else {
			invoice.NextRetryAt = nil
			if sub != nil && sub.Billable() {
				sub.Status = entity.SubscriptionPastDue
				sub.UpdatedAt = now
				subUpdate = sub
			}
		}
	}
	event.NewStatus = invoice.Status
	event.PayloadJSON = eventPayload(map[string]interface{}{
		"source":         st.source,
		"state":          st.state,
		"transaction_id": st.transactionID,
		"error":          stringValue(invoice.LastError),
		"attempt_count":  invoice.AttemptCount,
	})

	if err := s.repos.Tx.SaveInvoiceTransition(ctx, invoice, from, subUpdate, event); err != nil {
		return err
	}

	if st.approved {
		s.notify(ctx, subscriptionNotification(notification.TypePaymentSuccess, due, invoice))
	} else {
		s.notify(ctx, subscriptionNotification(notification.TypePaymentFailed, due, invoice))
	}
	return nil
}

// advanceSubscription moves the subscription one period past dueDate. It does nothing when the
// period was already advanced, so replaying a success never double counts a cycle.
func advanceSubscription(sub *entity.Subscription, plan *entity.Plan, dueDate time.Time, now time.Time) bool {
	if !sub.NextBillingDate.Equal(dueDate) {
		return false
	}

	interval, count := entity.IntervalMonthly, int32(1)
	if plan != nil {
		interval, count = plan.Interval, plan.IntervalCount
	}
	next := billing.NextBillingDate(dueDate, interval, count)

	sub.CurrentPeriodStart = dueDate
	sub.CurrentPeriodEnd = next
	sub.NextBillingDate = next
	sub.BillingCycleCount++
	if sub.Status == entity.SubscriptionTrialing || sub.Status == entity.SubscriptionPastDue {
		sub.Status = entity.SubscriptionActive
	}
	sub.UpdatedAt = now
	return true
}

func subscriptionNotification(kind notification.Type, due *entity.DueSubscription, invoice *entity.Invoice) *notification.Notification {
	if due == nil || due.Customer == nil {
		return nil
	}

	data := map[string]interface{}{
		"customer_name": due.Customer.Name,
	}
	if due.Merchant != nil {
		data["business_name"] = due.Merchant.Name
	}
	if due.Plan != nil {
		data["plan_name"] = due.Plan.Name
		data["amount"] = due.Plan.Price
		data["currency"] = due.Plan.Currency
	}
	if due.Subscription != nil {
		data["next_billing_date"] = due.Subscription.NextBillingDate.Format(time.DateOnly)
	}
	if invoice != nil {
		data["invoice_id"] = invoice.ID
		data["amount"] = invoice.Amount
		data["currency"] = invoice.Currency
		data["attempt_count"] = invoice.AttemptCount
		if invoice.LastError != nil && invoice.Status == entity.InvoiceFailed {
			data["error"] = *invoice.LastError
		}
	}

	return &notification.Notification{
		Type:      kind,
		Recipient: due.Customer.Email,
		Data:      data,
	}
}

func eventPayload(fields map[string]interface{}) *string {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	payload := string(raw)
	return &payload
}
