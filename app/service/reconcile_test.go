package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
)

// seedStaleInvoice stores a processing invoice last touched at updatedAt. An empty reference
// leaves the invoice without one; "auto" uses the first attempt's reference.
func (f *fixture) seedStaleInvoice(txID, reference string, updatedAt time.Time) (*entity.Subscription, *entity.Invoice) {
	merchant, _, sub := f.seedDueSubscription()
	invoice := f.seedProcessingInvoice(merchant, sub)
	f.db.mu.Lock()
	stored := f.db.invoices[invoice.ID]
	stored.UpdatedAt = updatedAt
	if txID != "" {
		stored.GatewayTransactionID = &txID
	}
	if reference == "auto" {
		reference = fmt.Sprintf("INV-%d-0", invoice.ID)
	}
	if reference != "" {
		stored.ReferenceCode = &reference
	}
	copyItem := *stored
	f.db.mu.Unlock()
	return sub, &copyItem
}

func TestRunReconcileBatchLooksUpFirstAttemptByReference(t *testing.T) {
	f := newFixture()
	sub, invoice := f.seedStaleInvoice("", "auto", f.now.Add(-time.Hour))
	f.adapter.lookup = &gateway.TransactionLookup{TransactionID: "tx-77", State: gateway.StateApproved}

	if err := f.svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	if len(f.adapter.lookups) != 1 || f.adapter.lookups[0] != *invoice.ReferenceCode {
		t.Fatalf("expected one lookup by reference, got %v", f.adapter.lookups)
	}
	if len(f.adapter.statusQueries) != 0 {
		t.Fatalf("no transaction id was known, got status queries %v", f.adapter.statusQueries)
	}
	stored := f.db.invoicesOf(sub.ID)[0]
	if stored.Status != entity.InvoicePaid || stringValue(stored.GatewayTransactionID) != "tx-77" {
		t.Fatalf("unexpected invoice %+v", stored)
	}
	if f.db.subscription(sub.ID).BillingCycleCount != 1 {
		t.Fatalf("expected subscription advanced")
	}
	if f.adapter.chargeCount() != 0 {
		t.Fatalf("reconcile must never charge")
	}
}

func TestRunReconcileBatchFailsChargeThatNeverReachedGateway(t *testing.T) {
	f := newFixture()
	sub, invoice := f.seedStaleInvoice("", "auto", f.now.Add(-time.Hour))

	if err := f.svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	stored := f.db.invoicesOf(sub.ID)[0]
	if stored.Status != entity.InvoiceFailed || stored.AttemptCount != 1 {
		t.Fatalf("unexpected invoice %+v", stored)
	}
	if stringValue(stored.LastError) != chargeNotFoundMessage {
		t.Fatalf("unexpected last error %v", stored.LastError)
	}
	if stored.NextRetryAt == nil {
		t.Fatalf("expected retry scheduled")
	}
	if got := f.db.eventTypes(invoice.ID); len(got) != 1 || got[0] != "invoice_failed" {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestRunReconcileBatchKeepsUnresolvableInvoiceProcessing(t *testing.T) {
	f := newFixture()
	sub, _ := f.seedStaleInvoice("", "auto", f.now.Add(-time.Hour))
	f.svc.dispatcher = gateway.NewDispatcher(gateway.NewRegistry(lookupless{f.adapter}), time.Second)

	if err := f.svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	stored := f.db.invoicesOf(sub.ID)[0]
	if stored.Status != entity.InvoiceProcessing || stored.AttemptCount != 0 {
		t.Fatalf("unknown outcome must stay processing, got %+v", stored)
	}
	if got := f.db.eventTypes(stored.ID); len(got) != 0 {
		t.Fatalf("expected no transition, got %v", got)
	}
}

func TestRunReconcileBatchKeepsInvoiceWithoutReferenceProcessing(t *testing.T) {
	f := newFixture()
	sub, _ := f.seedStaleInvoice("", "", f.now.Add(-time.Hour))

	if err := f.svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	if got := f.db.invoicesOf(sub.ID)[0].Status; got != entity.InvoiceProcessing {
		t.Fatalf("expected processing, got %s", got)
	}
	if len(f.adapter.lookups) != 0 || len(f.adapter.statusQueries) != 0 {
		t.Fatalf("nothing to query, got lookups=%v status=%v", f.adapter.lookups, f.adapter.statusQueries)
	}
}

func TestRunReconcileBatchAppliesGatewayStatus(t *testing.T) {
	f := newFixture()
	sub, _ := f.seedStaleInvoice("tx-42", "auto", f.now.Add(-time.Hour))
	f.adapter.status = gateway.StateApproved

	if err := f.svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	stored := f.db.invoicesOf(sub.ID)[0]
	if stored.Status != entity.InvoicePaid || stringValue(stored.GatewayTransactionID) != "tx-42" {
		t.Fatalf("unexpected invoice %+v", stored)
	}
	if len(f.adapter.lookups) != 0 {
		t.Fatalf("known transaction id must be queried directly, got lookups %v", f.adapter.lookups)
	}
	if f.db.subscription(sub.ID).BillingCycleCount != 1 {
		t.Fatalf("expected subscription advanced")
	}
}

func TestRunReconcileBatchLeavesPendingAndFreshInvoices(t *testing.T) {
	f := newFixture()
	pendingSub, _ := f.seedStaleInvoice("tx-pending", "auto", f.now.Add(-time.Hour))
	freshSub, _ := f.seedStaleInvoice("", "auto", f.now.Add(-time.Minute))
	f.adapter.status = gateway.StatePending

	if err := f.svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	if got := f.db.invoicesOf(pendingSub.ID)[0].Status; got != entity.InvoiceProcessing {
		t.Fatalf("pending transaction must stay processing, got %s", got)
	}
	if got := f.db.invoicesOf(freshSub.ID)[0].Status; got != entity.InvoiceProcessing {
		t.Fatalf("fresh invoice must not be reconciled, got %s", got)
	}
}

func TestRunReconcileBatchDeclinedTransaction(t *testing.T) {
	f := newFixture()
	sub, _ := f.seedStaleInvoice("tx-7", "auto", f.now.Add(-time.Hour))
	f.adapter.status = gateway.StateDeclined

	if err := f.svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	stored := f.db.invoicesOf(sub.ID)[0]
	if stored.Status != entity.InvoiceFailed || stringValue(stored.LastError) != "transaction declined reported by gateway" {
		t.Fatalf("unexpected invoice %+v", stored)
	}
}

func TestReconcileAfterInterruptedRetryIgnoresPreviousAttempt(t *testing.T) {
	f := newFixture()
	_, _, sub := f.seedDueSubscription()
	f.adapter.declineWith = "insufficient funds"
	if _, err := f.svc.RunBillingCycle(context.Background(), "test"); err != nil {
		t.Fatalf("RunBillingCycle() error = %v", err)
	}
	failed := f.db.invoicesOf(sub.ID)[0]
	if failed.Status != entity.InvoiceFailed || stringValue(failed.GatewayTransactionID) != "tx-declined" {
		t.Fatalf("unexpected first attempt %+v", failed)
	}

	// The retry opens the second attempt and the process dies before the charge returns.
	f.now = f.now.Add(25 * time.Hour)
	if err := f.svc.reopenInvoice(context.Background(), failed, f.now); err != nil {
		t.Fatalf("reopenInvoice() error = %v", err)
	}
	reopened := f.db.invoicesOf(sub.ID)[0]
	wantRef := fmt.Sprintf("INV-%d-1", reopened.ID)
	if reopened.Status != entity.InvoiceProcessing || stringValue(reopened.ReferenceCode) != wantRef {
		t.Fatalf("unexpected reopened invoice %+v", reopened)
	}
	if reopened.GatewayTransactionID != nil || reopened.GatewayResponse != nil {
		t.Fatalf("previous attempt's gateway result must be cleared, got tx=%v response=%v",
			stringValue(reopened.GatewayTransactionID), stringValue(reopened.GatewayResponse))
	}

	f.now = f.now.Add(time.Hour)
	f.adapter.lookup = &gateway.TransactionLookup{TransactionID: "tx-retry", State: gateway.StateApproved}
	if err := f.svc.RunReconcileBatch(context.Background()); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	if len(f.adapter.statusQueries) != 0 {
		t.Fatalf("previous transaction must not be queried, got %v", f.adapter.statusQueries)
	}
	if len(f.adapter.lookups) != 1 || f.adapter.lookups[0] != wantRef {
		t.Fatalf("expected lookup of %s, got %v", wantRef, f.adapter.lookups)
	}
	stored := f.db.invoicesOf(sub.ID)[0]
	if stored.Status != entity.InvoicePaid || stringValue(stored.GatewayTransactionID) != "tx-retry" || stored.AttemptCount != 1 {
		t.Fatalf("unexpected settled invoice %+v", stored)
	}
}
