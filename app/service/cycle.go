package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/billing"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/notification"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"golang.org/x/sync/errgroup"
)

type ChargeSummary struct {
	Processed  int
	Successful int
	Failed     int
	Skipped    int
	Anomalies  int
}

type CycleSummary struct {
	SubscriptionCharges ChargeSummary
	MerchantCharges     ChargeSummary
	Errors              []string
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeFailed
	outcomeAnomaly
)

func (o outcome) String() string {
	switch o {
	case outcomeSucceeded:
		return "succeeded"
	case outcomeFailed:
		return "failed"
	case outcomeAnomaly:
		return "anomaly"
	default:
		return "skipped"
	}
}

// ChargeOutcome reports what happened to one subscription charged on demand.
type ChargeOutcome struct {
	Outcome string
	Invoice *entity.Invoice
}

type passTally struct {
	mu      sync.Mutex
	summary ChargeSummary
	errs    []string
}

func (t *passTally) add(o outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary.Processed++
	switch o {
	case outcomeSucceeded:
		t.summary.Successful++
	case outcomeFailed:
		t.summary.Failed++
	case outcomeAnomaly:
		t.summary.Anomalies++
	default:
		t.summary.Skipped++
	}
	if err != nil {
		t.errs = append(t.errs, err.Error())
	}
}

// RunBillingCycle runs one subscription pass followed by one merchant self-billing pass.
// The summary is always returned; the error is the first pass-level failure.
func (s *BillingService) RunBillingCycle(ctx context.Context, trigger string) (*CycleSummary, error) {
	started := time.Now()
	summary := &CycleSummary{Errors: make([]string, 0)}

	var firstErr error
	subs, errs, err := s.RunSubscriptionBilling(ctx)
	summary.SubscriptionCharges = subs
	summary.Errors = append(summary.Errors, errs...)
	if err != nil {
		summary.Errors = append(summary.Errors, "subscriptions: "+err.Error())
		firstErr = keepFirstErr(firstErr, err)
	}

	merchants, errs, err := s.RunMerchantBilling(ctx)
	summary.MerchantCharges = merchants
	summary.Errors = append(summary.Errors, errs...)
	if err != nil {
		summary.Errors = append(summary.Errors, "merchants: "+err.Error())
		firstErr = keepFirstErr(firstErr, err)
	}

	if s.metrics != nil {
		result := "ok"
		if firstErr != nil {
			result = "error"
		}
		s.metrics.CycleRuns.WithLabelValues(trigger, result).Inc()
		s.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}

	s.logger.WithFields(logrus.Fields{
		"trigger":                 trigger,
		"subscriptions_processed": summary.SubscriptionCharges.Processed,
		"subscriptions_succeeded": summary.SubscriptionCharges.Successful,
		"subscriptions_failed":    summary.SubscriptionCharges.Failed,
		"merchants_processed":     summary.MerchantCharges.Processed,
		"errors":                  len(summary.Errors),
		"duration_ms":             time.Since(started).Milliseconds(),
	}).Info("billing cycle finished")

	return summary, firstErr
}

// RunSubscriptionBilling charges every due subscription with bounded parallelism. One
// subscription failing never stops the others.
func (s *BillingService) RunSubscriptionBilling(ctx context.Context) (ChargeSummary, []string, error) {
	now := s.now()
	items, err := s.repos.Subscriptions.ListDue(ctx, now, s.batchSize())
	if err != nil {
		return ChargeSummary{}, nil, err
	}

	tally := &passTally{}
	g := new(errgroup.Group)
	g.SetLimit(s.billingCfg.Concurrency)
	for _, due := range items {
		if due == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, err := s.processDueSubscription(ctx, due, now)
			tally.add(o, err)
			s.observeOutcome("subscription", o)
			return nil
		})
	}
	_ = g.Wait()

	return tally.summary, tally.errs, ctx.Err()
}

// ChargeSubscription runs the billing steps for a single subscription. It only charges when
// the subscription is billable and due.
func (s *BillingService) ChargeSubscription(ctx context.Context, subscriptionID uint64) (*ChargeOutcome, error) {
	if subscriptionID == 0 {
		return nil, ErrInvalidRequest
	}
	due, err := s.repos.Subscriptions.FindDueByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if due == nil || due.Subscription == nil {
		return nil, ErrSubscriptionNotFound
	}

	now := s.now()
	if !due.Subscription.Billable() {
		return nil, fmt.Errorf("%w: subscription is %s", ErrInvalidStatus, due.Subscription.Status)
	}
	if due.Subscription.NextBillingDate.After(now) {
		return nil, fmt.Errorf("%w: subscription is not due until %s", ErrInvalidStatus, due.Subscription.NextBillingDate.Format(time.RFC3339))
	}

	o, err := s.processDueSubscription(ctx, due, now)
	s.observeOutcome("subscription", o)
	if err != nil {
		return nil, err
	}

	invoice, err := s.repos.Invoices.FindByPeriod(ctx, subscriptionID, due.Subscription.NextBillingDate)
	if err != nil {
		return nil, err
	}
	return &ChargeOutcome{Outcome: o.String(), Invoice: invoice}, nil
}

func (s *BillingService) processDueSubscription(ctx context.Context, due *entity.DueSubscription, now time.Time) (outcome, error) {
	if due.Subscription == nil {
		s.recordAnomaly("missing_subscription", nil)
		return outcomeAnomaly, nil
	}
	subID := due.Subscription.ID

	release, err := s.locker.Acquire(ctx, lock.SubscriptionKey(subID), s.billingCfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("subscription %d: acquire lock: %w", subID, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WithError(err).WithField("subscription_id", subID).Warn("failed to release subscription lock")
		}
	}()

	// The listing may be stale by the time the lock is held.
	current, err := s.repos.Subscriptions.FindDueByID(ctx, subID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("subscription %d: reload: %w", subID, err)
	}
	if current == nil || current.Subscription == nil {
		return outcomeSkipped, nil
	}
	sub := current.Subscription
	if !sub.Billable() || sub.NextBillingDate.After(now) {
		return outcomeSkipped, nil
	}

	if sub.CancelAtPeriodEnd {
		if err := s.cancelAtPeriodEnd(ctx, current, now); err != nil {
			return outcomeSkipped, fmt.Errorf("subscription %d: cancel at period end: %w", subID, err)
		}
		return outcomeSkipped, nil
	}

	if missing := current.MissingParts(); len(missing) > 0 {
		s.recordAnomaly("incomplete_subscription", logrus.Fields{
			"subscription_id": subID,
			"missing":         strings.Join(missing, ","),
		})
		return outcomeAnomaly, nil
	}

	o, err := s.chargeDueSubscription(ctx, current, now)
	if err != nil {
		return o, fmt.Errorf("subscription %d: %w", subID, err)
	}
	return o, nil
}

func (s *BillingService) chargeDueSubscription(ctx context.Context, due *entity.DueSubscription, now time.Time) (outcome, error) {
	sub := due.Subscription
	fields := logrus.Fields{"subscription_id": sub.ID, "due_date": sub.NextBillingDate}

	invoice, err := s.repos.Invoices.FindByPeriod(ctx, sub.ID, sub.NextBillingDate)
	if err != nil {
		return outcomeSkipped, err
	}

	if invoice == nil {
		invoice, err = s.openInvoice(ctx, due, now)
		if err != nil {
			if errors.Is(err, repository.ErrInvoiceAlreadyExists) {
				s.recordAnomaly("invoice_conflict", fields)
				return outcomeAnomaly, nil
			}
			return outcomeSkipped, err
		}
	} else {
		fields["invoice_id"] = invoice.ID
		switch {
		case invoice.Status == entity.InvoicePaid:
			if err := s.repairPaidPeriod(ctx, due, invoice, now); err != nil {
				return outcomeSkipped, err
			}
			s.logger.WithFields(fields).Info("period already paid, subscription advanced without charging")
			return outcomeSkipped, nil
		case invoice.Status == entity.InvoiceProcessing:
			s.recordAnomaly("invoice_processing", fields)
			return outcomeAnomaly, nil
		case invoice.Status == entity.InvoiceFailed && invoice.NextRetryAt != nil && invoice.NextRetryAt.After(now):
			return outcomeSkipped, nil
		case invoice.RetryDue(now):
			if err := s.reopenInvoice(ctx, invoice, now); err != nil {
				if errors.Is(err, repository.ErrInvoiceStateChanged) {
					return outcomeSkipped, nil
				}
				return outcomeSkipped, err
			}
		case invoice.Status == entity.InvoiceFailed:
			s.recordAnomaly("retries_exhausted", fields)
			return outcomeAnomaly, nil
		default:
			s.recordAnomaly("invoice_"+string(invoice.Status), fields)
			return outcomeAnomaly, nil
		}
	}

	result := s.chargeInvoice(ctx, due, invoice)
	if err := s.settleInvoice(ctx, due, invoice, settlementFromCharge(result)); err != nil {
		if errors.Is(err, repository.ErrInvoiceStateChanged) {
			s.recordAnomaly("invoice_state_changed", fields)
			return outcomeAnomaly, nil
		}
		return outcomeSkipped, err
	}

	if result.Success {
		return outcomeSucceeded, nil
	}
	return outcomeFailed, nil
}

// openInvoice creates the period's invoice in processing before any money moves.
func (s *BillingService) openInvoice(ctx context.Context, due *entity.DueSubscription, now time.Time) (*entity.Invoice, error) {
	sub, plan, merchant := due.Subscription, due.Plan, due.Merchant

	currency := strings.ToUpper(strings.TrimSpace(plan.Currency))
	if currency == "" {
		currency = s.billingCfg.DefaultCurrency
	}
	fee := billing.PlatformFee(plan.Price, billing.FeePercent(merchant.PlatformFeePercent))
	dueDate := sub.NextBillingDate

	invoice := &entity.Invoice{
		MerchantID:         sub.MerchantID,
		SubscriptionID:     sub.ID,
		CustomerID:         sub.CustomerID,
		Amount:             plan.Price,
		Currency:           currency,
		PlatformFee:        fee,
		NetAmount:          billing.NetAmount(plan.Price, fee),
		Status:             entity.InvoiceProcessing,
		Gateway:            merchant.Gateway,
		DueDate:            dueDate,
		BillingPeriodStart: dueDate,
		BillingPeriodEnd:   billing.NextBillingDate(dueDate, plan.Interval, plan.IntervalCount),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	event := &entity.InvoiceEvent{
		EventType: "invoice_created",
		NewStatus: entity.InvoiceProcessing,
		CreatedAt: now,
	}
	err := s.repos.Tx.CreateInvoice(ctx, invoice, event, func(inv *entity.Invoice) {
		ref := billing.InvoiceReference(inv.ID, inv.AttemptCount)
		inv.ReferenceCode = &ref
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// reopenInvoice moves a failed invoice whose retry is due back to processing with a fresh
// reference for the new attempt. The previous attempt's gateway answer is dropped so nothing
// reads it as the outcome of this one.
func (s *BillingService) reopenInvoice(ctx context.Context, invoice *entity.Invoice, now time.Time) error {
	ref := billing.InvoiceReference(invoice.ID, invoice.AttemptCount)
	invoice.ReferenceCode = &ref
	invoice.Status = entity.InvoiceProcessing
	invoice.NextRetryAt = nil
	invoice.GatewayTransactionID = nil
	invoice.GatewayResponse = nil
	invoice.UpdatedAt = now

	return s.repos.Tx.SaveInvoiceTransition(ctx, invoice, entity.InvoiceFailed, nil, &entity.InvoiceEvent{
		EventType: "invoice_retry_started",
		OldStatus: statusPtr(entity.InvoiceFailed),
		NewStatus: entity.InvoiceProcessing,
		PayloadJSON: eventPayload(map[string]interface{}{
			"attempt_count":  invoice.AttemptCount,
			"reference_code": ref,
		}),
		CreatedAt: now,
	})
}

func (s *BillingService) chargeInvoice(ctx context.Context, due *entity.DueSubscription, invoice *entity.Invoice) *gateway.ChargeResult {
	customer := due.Customer
	started := time.Now()
	result := s.dispatcher.Charge(ctx, &gateway.ChargeRequest{
		Gateway:       due.Merchant.Gateway,
		Credentials:   due.Merchant.Credentials,
		Token:         due.PaymentMethod.Token,
		Amount:        invoice.Amount,
		Currency:      invoice.Currency,
		ReferenceCode: stringValue(invoice.ReferenceCode),
		Description:   fmt.Sprintf("%s - %s", due.Merchant.Name, due.Plan.Name),
		PayerID:       fmt.Sprintf("%d", customer.ID),
		PayerEmail:    customer.Email,
		PayerName:     customer.Name,
		PayerPhone:    stringValue(customer.Phone),
	})
	s.observeCharge(result, "subscription", started)

	entry := s.logger.WithFields(logrus.Fields{
		"subscription_id": due.Subscription.ID,
		"invoice_id":      invoice.ID,
		"gateway":         result.Gateway,
		"reference":       stringValue(invoice.ReferenceCode),
		"state":           result.State,
	})
	if result.Success {
		entry.Info("subscription charged")
	} else {
		entry.WithField("error", result.Error).Warn("subscription charge failed")
	}
	return result
}

// repairPaidPeriod advances a subscription whose invoice was paid but whose period was never
// moved forward.
func (s *BillingService) repairPaidPeriod(ctx context.Context, due *entity.DueSubscription, invoice *entity.Invoice, now time.Time) error {
	if !advanceSubscription(due.Subscription, due.Plan, invoice.DueDate, now) {
		return nil
	}
	return s.repos.Subscriptions.Update(ctx, due.Subscription)
}

func (s *BillingService) cancelAtPeriodEnd(ctx context.Context, due *entity.DueSubscription, now time.Time) error {
	sub := due.Subscription
	sub.Status = entity.SubscriptionCancelled
	sub.CancelledAt = timePtr(now)
	sub.UpdatedAt = now
	if err := s.repos.Subscriptions.Update(ctx, sub); err != nil {
		return err
	}

	s.logger.WithField("subscription_id", sub.ID).Info("subscription cancelled at period end")
	s.notify(ctx, subscriptionNotification(notification.TypeCancellation, due, nil))
	return nil
}

func (s *BillingService) observeOutcome(kind string, o outcome) {
	if s.metrics != nil {
		s.metrics.CycleOutcomes.WithLabelValues(kind, o.String()).Inc()
	}
}
