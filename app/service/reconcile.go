package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

const (
	defaultReconcileStaleAfter = 30 * time.Minute
	chargeNotFoundMessage      = "charge never reached the gateway"
)

// RunReconcileBatch settles invoices left in processing, typically by a pass that died
// between opening the invoice and recording the gateway answer.
func (s *BillingService) RunReconcileBatch(ctx context.Context) error {
	staleAfter := s.billingCfg.ReconcileStaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultReconcileStaleAfter
	}

	now := s.now()
	items, err := s.repos.Invoices.ListStaleProcessing(ctx, now.Add(-staleAfter), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, invoice := range items {
		if invoice == nil {
			continue
		}
		if err := s.reconcileInvoice(ctx, invoice.ID, invoice.SubscriptionID); err != nil {
			firstErr = keepFirstErr(firstErr, fmt.Errorf("invoice %d: %w", invoice.ID, err))
		}
	}

	return firstErr
}

func (s *BillingService) reconcileInvoice(ctx context.Context, invoiceID, subscriptionID uint64) error {
	release, err := s.locker.Acquire(ctx, lock.SubscriptionKey(subscriptionID), s.billingCfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil
		}
		return err
	}
	defer func() {
		_ = release(context.WithoutCancel(ctx))
	}()

	invoice, err := s.repos.Invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil || invoice.Status != entity.InvoiceProcessing {
		return nil
	}

	due, err := s.repos.Subscriptions.FindDueByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if due == nil || due.Subscription == nil {
		return ErrSubscriptionNotFound
	}

	if due.Merchant == nil || due.Merchant.Credentials == nil {
		return ErrGatewayNotConfigured
	}

	st, err := s.resolveStaleOutcome(ctx, invoice, due.Merchant.Credentials)
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}

	if err := s.settleInvoice(ctx, due, invoice, st); err != nil {
		if errors.Is(err, repository.ErrInvoiceStateChanged) {
			return nil
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id": invoice.ID,
		"status":     invoice.Status,
	}).Info("stale invoice reconciled")
	return nil
}

// resolveStaleOutcome asks the gateway what happened to the invoice's current attempt. A
// known transaction id is queried directly; otherwise the attempt's reference code is looked
// up. A nil settlement means the outcome is still open and the invoice stays in processing.
func (s *BillingService) resolveStaleOutcome(ctx context.Context, invoice *entity.Invoice, creds entity.GatewayCredentials) (*settlement, error) {
	fields := logrus.Fields{"invoice_id": invoice.ID, "subscription_id": invoice.SubscriptionID}
	st := &settlement{source: sourceReconcile}

	txID := strings.TrimSpace(stringValue(invoice.GatewayTransactionID))
	reference := strings.TrimSpace(stringValue(invoice.ReferenceCode))
	switch {
	case txID != "":
		state, err := s.dispatcher.TransactionStatus(ctx, invoice.Gateway, creds, txID)
		if err != nil {
			return nil, err
		}
		st.state = state
		st.transactionID = txID
	case reference != "":
		found, err := s.dispatcher.TransactionByReference(ctx, invoice.Gateway, creds, reference)
		switch {
		case errors.Is(err, gateway.ErrTransactionNotFound):
			st.state = gateway.StateError
			st.errMessage = chargeNotFoundMessage
			return st, nil
		case errors.Is(err, gateway.ErrLookupUnsupported):
			s.recordAnomaly("reconcile_outcome_unknown", fields)
			return nil, nil
		case err != nil:
			return nil, err
		}
		st.state = found.State
		st.transactionID = found.TransactionID
	default:
		s.recordAnomaly("reconcile_outcome_unknown", fields)
		return nil, nil
	}

	switch st.state {
	case gateway.StateApproved:
		st.approved = true
	case gateway.StatePending:
		return nil, nil
	default:
		st.errMessage = fmt.Sprintf("transaction %s reported by gateway", st.state)
	}
	return st, nil
}
