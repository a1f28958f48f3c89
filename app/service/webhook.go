package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/billing"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

const (
	WebhookSettled     = "settled"
	WebhookAlreadyPaid = "already_paid"
	WebhookRecorded    = "recorded"
	WebhookIgnored     = "ignored"
	WebhookUnmatched   = "unmatched"
)

type WebhookRequest interface {
	GetGateway() string
	GetMerchant() string
	GetPayload() []byte
	GetHeaders() http.Header
}

type WebhookResult struct {
	Status        string
	InvoiceID     uint64
	InvoiceStatus entity.InvoiceStatus
}

// HandleWebhook verifies a gateway notification with the merchant's credentials and converges
// it on the same settlement path the billing pass uses.
func (s *BillingService) HandleWebhook(ctx context.Context, req WebhookRequest) (*WebhookResult, error) {
	rawGateway := strings.ToLower(strings.TrimSpace(req.GetGateway()))
	callback := &entity.WebhookCallback{
		Gateway:     rawGateway,
		Signature:   webhookSignature(req.GetHeaders()),
		PayloadJSON: string(req.GetPayload()),
	}

	code, ok := entity.ParseGateway(rawGateway)
	if !ok {
		return nil, s.rejectCallback(ctx, callback, ErrGatewayUnsupported, "unsupported gateway")
	}

	merchant, err := s.findMerchant(ctx, req.GetMerchant())
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, s.rejectCallback(ctx, callback, ErrMerchantNotFound, "merchant not found")
	}
	merchantID := merchant.ID
	callback.MerchantID = &merchantID
	if merchant.Gateway != code || merchant.Credentials == nil {
		return nil, s.rejectCallback(ctx, callback, ErrCallbackRejected, "merchant is not configured for gateway")
	}

	event, err := s.dispatcher.ParseWebhook(ctx, code, merchant.Credentials, &gateway.WebhookRequest{
		Payload: req.GetPayload(),
		Headers: req.GetHeaders(),
	})
	if err != nil {
		return nil, s.rejectCallback(ctx, callback, ErrCallbackRejected, err.Error())
	}
	if event.State == "" {
		s.acceptCallback(ctx, callback, code)
		return &WebhookResult{Status: WebhookIgnored}, nil
	}

	invoice, err := s.findInvoiceByReference(ctx, event.Reference)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		s.acceptCallback(ctx, callback, code)
		s.logger.WithFields(logrus.Fields{
			"gateway":   code,
			"reference": event.Reference,
		}).Warn("webhook does not match any invoice")
		return &WebhookResult{Status: WebhookUnmatched}, nil
	}
	if invoice.MerchantID != merchant.ID {
		return nil, s.rejectCallback(ctx, callback, ErrCallbackRejected, "invoice belongs to another merchant")
	}
	invoiceID := invoice.ID
	callback.InvoiceID = &invoiceID

	release, err := s.locker.Acquire(ctx, lock.SubscriptionKey(invoice.SubscriptionID), s.billingCfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrBusy
		}
		return nil, err
	}
	defer func() {
		_ = release(context.WithoutCancel(ctx))
	}()

	result, err := s.applyWebhookEvent(ctx, invoice.ID, event)
	if err != nil {
		return nil, err
	}
	s.acceptCallback(ctx, callback, code)
	return result, nil
}

func (s *BillingService) applyWebhookEvent(ctx context.Context, invoiceID uint64, event *gateway.WebhookEvent) (*WebhookResult, error) {
	// Reload under the lock; the pass may have settled it meanwhile.
	invoice, err := s.repos.Invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return &WebhookResult{Status: WebhookUnmatched}, nil
	}

	due, err := s.repos.Subscriptions.FindDueByID(ctx, invoice.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if due == nil || due.Subscription == nil {
		return nil, fmt.Errorf("%w: subscription %d", ErrSubscriptionNotFound, invoice.SubscriptionID)
	}

	st := &settlement{
		transactionID: event.TransactionID,
		state:         event.State,
		source:        sourceWebhook,
	}

	switch event.State {
	case gateway.StateApproved:
		switch invoice.Status {
		case entity.InvoicePaid:
			if err := s.repairPaidPeriod(ctx, due, invoice, s.now()); err != nil {
				return nil, err
			}
			return &WebhookResult{Status: WebhookAlreadyPaid, InvoiceID: invoice.ID, InvoiceStatus: invoice.Status}, nil
		case entity.InvoiceProcessing, entity.InvoiceFailed:
			st.approved = true
		default:
			return &WebhookResult{Status: WebhookRecorded, InvoiceID: invoice.ID, InvoiceStatus: invoice.Status}, nil
		}
	case gateway.StateDeclined, gateway.StateError:
		// A decline for an earlier attempt says nothing about the one in flight.
		if invoice.Status != entity.InvoiceProcessing || !currentAttempt(invoice, event.Reference) {
			return &WebhookResult{Status: WebhookRecorded, InvoiceID: invoice.ID, InvoiceStatus: invoice.Status}, nil
		}
		st.errMessage = fmt.Sprintf("transaction %s reported by gateway", event.State)
	default:
		return &WebhookResult{Status: WebhookRecorded, InvoiceID: invoice.ID, InvoiceStatus: invoice.Status}, nil
	}

	if err := s.settleInvoice(ctx, due, invoice, st); err != nil {
		if errors.Is(err, repository.ErrInvoiceStateChanged) {
			return nil, ErrBusy
		}
		return nil, err
	}
	return &WebhookResult{Status: WebhookSettled, InvoiceID: invoice.ID, InvoiceStatus: invoice.Status}, nil
}

func (s *BillingService) findMerchant(ctx context.Context, ref string) (*entity.Merchant, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return s.repos.Merchants.FindByID(ctx, id)
	}
	return s.repos.Merchants.FindBySlug(ctx, ref)
}

func currentAttempt(invoice *entity.Invoice, reference string) bool {
	current := strings.TrimSpace(stringValue(invoice.ReferenceCode))
	reference = strings.TrimSpace(reference)
	return current == "" || reference == "" || current == reference
}

func (s *BillingService) findInvoiceByReference(ctx context.Context, reference string) (*entity.Invoice, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	if id, ok := billing.ParseInvoiceReference(reference); ok {
		return s.repos.Invoices.FindByID(ctx, id)
	}
	return s.repos.Invoices.FindByReference(ctx, reference)
}

func (s *BillingService) acceptCallback(ctx context.Context, callback *entity.WebhookCallback, code entity.Gateway) {
	callback.Status = entity.WebhookCallbackProcessed
	s.persistCallback(ctx, callback)
	if s.metrics != nil {
		s.metrics.WebhooksTotal.WithLabelValues(string(code), "processed").Inc()
	}
}

func (s *BillingService) rejectCallback(ctx context.Context, callback *entity.WebhookCallback, cause error, reason string) error {
	callback.Status = entity.WebhookCallbackRejected
	callback.Error = &reason
	s.persistCallback(ctx, callback)
	if s.metrics != nil {
		s.metrics.WebhooksTotal.WithLabelValues(callback.Gateway, "rejected").Inc()
	}
	s.logger.WithFields(logrus.Fields{
		"gateway": callback.Gateway,
		"reason":  reason,
	}).Warn("webhook rejected")
	return fmt.Errorf("%w: %s", cause, reason)
}

func (s *BillingService) persistCallback(ctx context.Context, callback *entity.WebhookCallback) {
	now := s.now()
	callback.CreatedAt = now
	callback.UpdatedAt = now
	if err := s.repos.Callbacks.Create(ctx, callback); err != nil {
		s.logger.WithError(err).Warn("failed to store webhook callback")
	}
}

func webhookSignature(headers http.Header) string {
	for _, name := range []string{"X-Signature", "X-Event-Checksum"} {
		if v := strings.TrimSpace(headers.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
