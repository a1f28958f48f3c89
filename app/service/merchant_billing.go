package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/billing"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

const platformReferencePrefix = "PLAT"

// RunMerchantBilling charges every merchant whose platform subscription is due, using the
// platform's own Wompi account and the merchant's stored payment source.
func (s *BillingService) RunMerchantBilling(ctx context.Context) (ChargeSummary, []string, error) {
	creds := s.platformCredentials()
	if creds == nil {
		return ChargeSummary{}, nil, ErrPlatformNotConfigured
	}

	now := s.now()
	merchants, err := s.repos.Merchants.ListDueForPlatformBilling(ctx, now, s.batchSize())
	if err != nil {
		return ChargeSummary{}, nil, err
	}

	tally := &passTally{}
	for _, merchant := range merchants {
		if merchant == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		o, err := s.chargeMerchant(ctx, merchant, creds, now)
		if err != nil {
			err = fmt.Errorf("merchant %d: %w", merchant.ID, err)
		}
		tally.add(o, err)
		s.observeOutcome("merchant", o)
	}

	return tally.summary, tally.errs, ctx.Err()
}

func (s *BillingService) platformCredentials() *entity.WompiCredentials {
	creds := &entity.WompiCredentials{
		PublicKey:    strings.TrimSpace(s.platformCfg.WompiPublicKey),
		PrivateKey:   strings.TrimSpace(s.platformCfg.WompiPrivateKey),
		EventsSecret: strings.TrimSpace(s.platformCfg.WompiEventsSecret),
		IsProduction: s.platformCfg.WompiProduction,
	}
	if creds.PrivateKey == "" {
		return nil
	}
	return creds
}

func (s *BillingService) chargeMerchant(ctx context.Context, merchant *entity.Merchant, creds *entity.WompiCredentials, now time.Time) (outcome, error) {
	if merchant.NextPlatformBilling == nil {
		return outcomeSkipped, nil
	}

	release, err := s.locker.Acquire(ctx, lock.MerchantKey(merchant.ID), s.billingCfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() {
		_ = release(context.WithoutCancel(ctx))
	}()

	// The listing ran before the lock; another pass may have charged and advanced the merchant since.
	merchant, err = s.repos.Merchants.FindByID(ctx, merchant.ID)
	if err != nil {
		return outcomeSkipped, err
	}
	if !platformBillingDue(merchant, now) {
		return outcomeSkipped, nil
	}

	periodStart := *merchant.NextPlatformBilling
	fields := logrus.Fields{"merchant_id": merchant.ID, "period_start": periodStart}

	invoice, err := s.repos.PlatformInvoices.FindByPeriod(ctx, merchant.ID, periodStart)
	if err != nil {
		return outcomeSkipped, err
	}

	if invoice == nil {
		invoice = &entity.PlatformInvoice{
			MerchantID:         merchant.ID,
			SubscriptionAmount: merchant.SubscriptionPrice,
			TransactionFees:    0,
			TotalAmount:        merchant.SubscriptionPrice,
			Currency:           s.platformCfg.Currency,
			Status:             entity.InvoiceProcessing,
			BillingPeriodStart: periodStart,
			BillingPeriodEnd:   billing.NextBillingDate(periodStart, entity.IntervalMonthly, 1),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		ref := billing.ReferenceCode(platformReferencePrefix, now)
		invoice.ReferenceCode = &ref
		if err := s.repos.PlatformInvoices.Create(ctx, invoice); err != nil {
			if errors.Is(err, repository.ErrPlatformInvoiceAlreadyExists) {
				s.recordAnomaly("platform_invoice_conflict", fields)
				return outcomeAnomaly, nil
			}
			return outcomeSkipped, err
		}
	} else {
		fields["platform_invoice_id"] = invoice.ID
		switch {
		case invoice.Status == entity.InvoicePaid:
			if advanceMerchant(merchant, periodStart, now) {
				if err := s.repos.Merchants.UpdatePlatformBilling(ctx, merchant); err != nil {
					return outcomeSkipped, err
				}
			}
			return outcomeSkipped, nil
		case invoice.Status == entity.InvoiceProcessing:
			s.recordAnomaly("platform_invoice_processing", fields)
			return outcomeAnomaly, nil
		case invoice.Status == entity.InvoiceFailed && invoice.NextRetryAt != nil && invoice.NextRetryAt.After(now):
			return outcomeSkipped, nil
		case invoice.Status == entity.InvoiceFailed && invoice.NextRetryAt != nil:
			ref := billing.ReferenceCode(platformReferencePrefix, now)
			invoice.ReferenceCode = &ref
			invoice.Status = entity.InvoiceProcessing
			invoice.NextRetryAt = nil
			invoice.UpdatedAt = now
			if err := s.repos.Tx.SavePlatformTransition(ctx, invoice, entity.InvoiceFailed, nil); err != nil {
				if errors.Is(err, repository.ErrInvoiceStateChanged) {
					return outcomeSkipped, nil
				}
				return outcomeSkipped, err
			}
		default:
			s.recordAnomaly("platform_invoice_"+string(invoice.Status), fields)
			return outcomeAnomaly, nil
		}
	}

	var result *gateway.ChargeResult
	if merchant.WompiToken == nil || strings.TrimSpace(*merchant.WompiToken) == "" {
		result = &gateway.ChargeResult{
			State:     gateway.StateError,
			Error:     "merchant has no payment method configured",
			Gateway:   entity.GatewayWompi,
			Amount:    invoice.TotalAmount,
			Currency:  invoice.Currency,
			Timestamp: s.now(),
		}
	} else {
		started := time.Now()
		result = s.dispatcher.Charge(ctx, &gateway.ChargeRequest{
			Gateway:       entity.GatewayWompi,
			Credentials:   creds,
			Token:         strings.TrimSpace(*merchant.WompiToken),
			Amount:        invoice.TotalAmount,
			Currency:      invoice.Currency,
			ReferenceCode: stringValue(invoice.ReferenceCode),
			Description:   fmt.Sprintf("Platform subscription %s", periodStart.Format("2006-01")),
			PayerID:       fmt.Sprintf("%d", merchant.ID),
			PayerEmail:    merchant.Email,
			PayerName:     merchant.Name,
		})
		s.observeCharge(result, "merchant", started)
	}

	if err := s.settlePlatformInvoice(ctx, merchant, invoice, result); err != nil {
		if errors.Is(err, repository.ErrInvoiceStateChanged) {
			s.recordAnomaly("platform_invoice_state_changed", fields)
			return outcomeAnomaly, nil
		}
		return outcomeSkipped, err
	}

	if result.Success {
		s.logger.WithFields(fields).Info("merchant platform subscription charged")
		return outcomeSucceeded, nil
	}
	s.logger.WithFields(fields).WithField("error", result.Error).Warn("merchant platform charge failed")
	return outcomeFailed, nil
}

func platformBillingDue(merchant *entity.Merchant, now time.Time) bool {
	return merchant != nil &&
		merchant.SubscriptionStatus == entity.MerchantSubscriptionActive &&
		merchant.NextPlatformBilling != nil &&
		!merchant.NextPlatformBilling.After(now)
}

func (s *BillingService) settlePlatformInvoice(ctx context.Context, merchant *entity.Merchant, invoice *entity.PlatformInvoice, result *gateway.ChargeResult) error {
	now := s.now()
	from := invoice.Status

	if result.TransactionID != "" {
		txID := result.TransactionID
		invoice.GatewayTransactionID = &txID
	}
	if len(result.RawResponse) > 0 {
		raw := string(result.RawResponse)
		invoice.GatewayResponse = &raw
	}
	invoice.UpdatedAt = now

	var merchantUpdate *entity.Merchant
	if result.Success {
		invoice.Status = entity.InvoicePaid
		invoice.PaidAt = timePtr(now)
		invoice.NextRetryAt = nil
		invoice.LastError = nil
		if advanceMerchant(merchant, invoice.BillingPeriodStart, now) {
			merchantUpdate = merchant
		}
	} else {
		message := result.Error
		if message == "" {
			message = "charge was not approved"
		}
		invoice.Status = entity.InvoiceFailed
		invoice.AttemptCount++
		invoice.LastError = &message
		if invoice.AttemptCount < s.billingCfg.MaxAttempts {
			invoice.NextRetryAt = timePtr(now.Add(s.billingCfg.RetryInterval))
		} else {
			invoice.NextRetryAt = nil
			merchant.SubscriptionStatus = entity.MerchantSubscriptionPastDue
			merchant.UpdatedAt = now
			merchantUpdate = merchant
		}
	}

	return s.repos.Tx.SavePlatformTransition(ctx, invoice, from, merchantUpdate)
}

// advanceMerchant moves the platform billing date one month past periodStart unless that
// already happened.
func advanceMerchant(merchant *entity.Merchant, periodStart time.Time, now time.Time) bool {
	if merchant.NextPlatformBilling == nil || !merchant.NextPlatformBilling.Equal(periodStart) {
		return false
	}
	next := billing.NextBillingDate(periodStart, entity.IntervalMonthly, 1)
	merchant.NextPlatformBilling = &next
	merchant.UpdatedAt = now
	return true
}
