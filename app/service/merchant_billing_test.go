package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

func (f *fixture) seedBillableMerchant(token string) *entity.Merchant {
	merchant := f.seedMerchant()
	f.editMerchant(merchant.ID, func(item *entity.Merchant) {
		next := f.now
		item.NextPlatformBilling = &next
		if token != "" {
			item.WompiToken = &token
		}
	})
	return f.db.merchant(merchant.ID)
}

func TestRunMerchantBillingChargesWithPlatformAccount(t *testing.T) {
	f := newFixture()
	merchant := f.seedBillableMerchant("src_123")

	summary, errs, err := f.svc.RunMerchantBilling(context.Background())
	if err != nil {
		t.Fatalf("RunMerchantBilling() error = %v", err)
	}
	if summary.Successful != 1 || len(errs) != 0 {
		t.Fatalf("unexpected summary %+v errs=%v", summary, errs)
	}

	if f.adapter.chargeCount() != 1 {
		t.Fatalf("expected one charge, got %d", f.adapter.chargeCount())
	}
	creds, ok := f.adapter.chargeCreds[0].(*entity.WompiCredentials)
	if !ok || creds.PrivateKey != "prv_platform" {
		t.Fatalf("expected platform credentials, got %#v", f.adapter.chargeCreds[0])
	}
	charge := f.adapter.charges[0]
	if charge.Token != "src_123" || charge.Amount != 50000 || charge.PayerEmail != "billing@gratu.co" {
		t.Fatalf("unexpected charge input %+v", charge)
	}
	if !strings.HasPrefix(charge.ReferenceCode, "PLAT-") {
		t.Fatalf("unexpected reference %s", charge.ReferenceCode)
	}

	invoices := f.db.platformInvoicesOf(merchant.ID)
	if len(invoices) != 1 || invoices[0].Status != entity.InvoicePaid {
		t.Fatalf("expected one paid platform invoice, got %+v", invoices)
	}
	if invoices[0].TotalAmount != 50000 || invoices[0].Currency != "COP" {
		t.Fatalf("unexpected platform invoice amounts %+v", invoices[0])
	}

	stored := f.db.merchant(merchant.ID)
	want := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	if stored.NextPlatformBilling == nil || !stored.NextPlatformBilling.Equal(want) {
		t.Fatalf("expected next platform billing %s, got %v", want, stored.NextPlatformBilling)
	}
}

func TestRunMerchantBillingWithoutTokenFailsWithoutCharging(t *testing.T) {
	f := newFixture()
	merchant := f.seedBillableMerchant("")

	summary, _, err := f.svc.RunMerchantBilling(context.Background())
	if err != nil {
		t.Fatalf("RunMerchantBilling() error = %v", err)
	}
	if summary.Failed != 1 || f.adapter.chargeCount() != 0 {
		t.Fatalf("expected failure without gateway call, summary=%+v charges=%d", summary, f.adapter.chargeCount())
	}

	invoice := f.db.platformInvoicesOf(merchant.ID)[0]
	if invoice.Status != entity.InvoiceFailed || invoice.AttemptCount != 1 {
		t.Fatalf("unexpected platform invoice %+v", invoice)
	}
	if invoice.LastError == nil || *invoice.LastError != "merchant has no payment method configured" {
		t.Fatalf("unexpected last error %v", invoice.LastError)
	}
	if invoice.NextRetryAt == nil || !invoice.NextRetryAt.Equal(f.now.Add(24*time.Hour)) {
		t.Fatalf("expected retry in 24h, got %v", invoice.NextRetryAt)
	}
}

func TestRunMerchantBillingThirdFailureMarksMerchantPastDue(t *testing.T) {
	f := newFixture()
	merchant := f.seedBillableMerchant("src_123")
	f.adapter.declineWith = "insufficient funds"

	for i := 0; i < 3; i++ {
		if _, _, err := f.svc.RunMerchantBilling(context.Background()); err != nil {
			t.Fatalf("run %d error = %v", i, err)
		}
		f.now = f.now.Add(24 * time.Hour)
	}

	invoices := f.db.platformInvoicesOf(merchant.ID)
	if len(invoices) != 1 || invoices[0].AttemptCount != 3 || invoices[0].NextRetryAt != nil {
		t.Fatalf("expected one exhausted platform invoice, got %+v", invoices)
	}
	if got := f.db.merchant(merchant.ID).SubscriptionStatus; got != entity.MerchantSubscriptionPastDue {
		t.Fatalf("expected merchant past_due, got %s", got)
	}

	summary, _, err := f.svc.RunMerchantBilling(context.Background())
	if err != nil {
		t.Fatalf("run after past_due error = %v", err)
	}
	if summary.Processed != 0 || f.adapter.chargeCount() != 3 {
		t.Fatalf("past_due merchant must not be charged again")
	}
}

func TestRunMerchantBillingSkipsUntilRetryIsDue(t *testing.T) {
	f := newFixture()
	merchant := f.seedBillableMerchant("src_123")
	f.adapter.declineWith = "declined"

	if _, _, err := f.svc.RunMerchantBilling(context.Background()); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	f.now = f.now.Add(time.Hour)
	summary, _, err := f.svc.RunMerchantBilling(context.Background())
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if summary.Skipped != 1 || f.adapter.chargeCount() != 1 {
		t.Fatalf("expected skip before retry, summary=%+v", summary)
	}
	if got := f.db.platformInvoicesOf(merchant.ID)[0].AttemptCount; got != 1 {
		t.Fatalf("expected attempt count 1, got %d", got)
	}
}

func TestRunMerchantBillingRequiresPlatformAccount(t *testing.T) {
	f := newFixture()
	f.seedBillableMerchant("src_123")
	f.svc.platformCfg.WompiPrivateKey = ""

	if _, _, err := f.svc.RunMerchantBilling(context.Background()); !errors.Is(err, ErrPlatformNotConfigured) {
		t.Fatalf("expected ErrPlatformNotConfigured, got %v", err)
	}

	summary, err := f.svc.RunBillingCycle(context.Background(), "test")
	if !errors.Is(err, ErrPlatformNotConfigured) {
		t.Fatalf("expected cycle to surface ErrPlatformNotConfigured, got %v", err)
	}
	if len(summary.Errors) != 1 || !strings.HasPrefix(summary.Errors[0], "merchants: ") {
		t.Fatalf("unexpected cycle errors %v", summary.Errors)
	}
}

// staleMerchantListing returns a listing captured earlier, as a pass racing another would see it.
type staleMerchantListing struct {
	merchantRepository
	listed []*entity.Merchant
}

func (r staleMerchantListing) ListDueForPlatformBilling(context.Context, time.Time, int32) ([]*entity.Merchant, error) {
	return r.listed, nil
}

func TestRunMerchantBillingReloadsMerchantUnderLock(t *testing.T) {
	f := newFixture()
	merchant := f.seedBillableMerchant("src_123")
	listed := f.db.merchant(merchant.ID)

	if _, _, err := f.svc.RunMerchantBilling(context.Background()); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	advanced := f.db.merchant(merchant.ID)
	f.now = f.now.Add(time.Hour)

	f.svc.repos.Merchants = staleMerchantListing{merchantRepository: f.svc.repos.Merchants, listed: []*entity.Merchant{listed}}
	summary, errs, err := f.svc.RunMerchantBilling(context.Background())
	if err != nil || len(errs) != 0 {
		t.Fatalf("second run error = %v errs=%v", err, errs)
	}
	if summary.Skipped != 1 || f.adapter.chargeCount() != 1 {
		t.Fatalf("already advanced merchant must be skipped, summary=%+v charges=%d", summary, f.adapter.chargeCount())
	}
	stored := f.db.merchant(merchant.ID)
	if !stored.NextPlatformBilling.Equal(*advanced.NextPlatformBilling) || !stored.UpdatedAt.Equal(advanced.UpdatedAt) {
		t.Fatalf("stale listing must not be written back, got %+v", stored)
	}
}

func TestRunMerchantBillingSkipsMerchantCancelledAfterListing(t *testing.T) {
	f := newFixture()
	merchant := f.seedBillableMerchant("src_123")
	listed := f.db.merchant(merchant.ID)
	f.editMerchant(merchant.ID, func(item *entity.Merchant) {
		item.SubscriptionStatus = entity.MerchantSubscriptionCancelled
	})

	f.svc.repos.Merchants = staleMerchantListing{merchantRepository: f.svc.repos.Merchants, listed: []*entity.Merchant{listed}}
	summary, _, err := f.svc.RunMerchantBilling(context.Background())
	if err != nil {
		t.Fatalf("RunMerchantBilling() error = %v", err)
	}
	if summary.Skipped != 1 || f.adapter.chargeCount() != 0 {
		t.Fatalf("cancelled merchant must not be charged, summary=%+v", summary)
	}
	if got := f.db.platformInvoicesOf(merchant.ID); len(got) != 0 {
		t.Fatalf("expected no platform invoice, got %+v", got)
	}
}
