package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/notification"
)

type subscribeInput struct {
	merchantSlug string
	planID       uint64
	email        string
	name         string
	cardNumber   string
}

func (s subscribeInput) GetMerchantSlug() string   { return s.merchantSlug }
func (s subscribeInput) GetPlanId() uint64         { return s.planID }
func (s subscribeInput) GetCustomerEmail() string  { return s.email }
func (s subscribeInput) GetCustomerName() string   { return s.name }
func (s subscribeInput) GetCustomerPhone() string  { return "3001234567" }
func (s subscribeInput) GetDocumentType() string   { return "CC" }
func (s subscribeInput) GetDocumentNumber() string { return "1020304050" }
func (s subscribeInput) GetCardNumber() string     { return s.cardNumber }
func (s subscribeInput) GetCardExpMonth() string   { return "12" }
func (s subscribeInput) GetCardExpYear() string    { return "2029" }
func (s subscribeInput) GetCardCvc() string        { return "123" }
func (s subscribeInput) GetCardHolderName() string { return "" }

func TestSubscribeWithoutTrialStartsActive(t *testing.T) {
	f := newFixture()
	merchant := f.seedMerchant()
	plan := f.seedPlan(merchant.ID, 80000, entity.IntervalMonthly, 0)

	result, err := f.svc.Subscribe(context.Background(), subscribeInput{
		merchantSlug: "gratu",
		planID:       plan.ID,
		email:        " Ana@Example.com ",
		name:         "Ana",
		cardNumber:   "4242 4242 4242 4242",
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sub := result.Subscription
	if sub.Status != entity.SubscriptionActive || sub.TrialEnd != nil {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	if !sub.NextBillingDate.Equal(time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected first charge one month out, got %s", sub.NextBillingDate)
	}
	if result.Customer.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %q", result.Customer.Email)
	}
	if result.PaymentMethod.Token != "12345" || stringValue(result.PaymentMethod.CardLastFour) != "4242" {
		t.Fatalf("unexpected payment method %+v", result.PaymentMethod)
	}

	stored := f.db.subscription(sub.ID)
	if stored == nil || stored.PaymentMethodID == nil || *stored.PaymentMethodID != result.PaymentMethod.ID {
		t.Fatalf("expected stored subscription linked to card, got %+v", stored)
	}
	if f.adapter.chargeCount() != 0 {
		t.Fatalf("subscribing must not charge")
	}
	sent := f.notifier.last()
	if sent == nil || sent.Type != notification.TypeWelcome || sent.Data["trial_end"] != nil {
		t.Fatalf("expected welcome notification without trial, got %+v", sent)
	}
}

func TestSubscribeWithTrialBillsAtTrialEnd(t *testing.T) {
	f := newFixture()
	merchant := f.seedMerchant()
	plan := f.seedPlan(merchant.ID, 80000, entity.IntervalMonthly, 14)

	result, err := f.svc.Subscribe(context.Background(), subscribeInput{
		merchantSlug: "gratu",
		planID:       plan.ID,
		email:        "ana@example.com",
		name:         "Ana",
		cardNumber:   "4242424242424242",
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	trialEnd := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)
	sub := result.Subscription
	if sub.Status != entity.SubscriptionTrialing || sub.TrialEnd == nil || !sub.TrialEnd.Equal(trialEnd) {
		t.Fatalf("unexpected trial subscription %+v", sub)
	}
	if !sub.NextBillingDate.Equal(trialEnd) {
		t.Fatalf("expected first charge at trial end, got %s", sub.NextBillingDate)
	}
	if got := f.notifier.last().Data["trial_end"]; got != "2026-03-15" {
		t.Fatalf("expected trial_end in welcome, got %v", got)
	}
}

func TestSubscribeReusesExistingCustomer(t *testing.T) {
	f := newFixture()
	merchant, plan, sub := f.seedDueSubscription()

	result, err := f.svc.Subscribe(context.Background(), subscribeInput{
		merchantSlug: "gratu",
		planID:       plan.ID,
		email:        "ana@example.com",
		name:         "Ana Maria",
		cardNumber:   "4242424242424242",
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if result.Customer.ID != sub.CustomerID {
		t.Fatalf("expected existing customer %d reused, got %d", sub.CustomerID, result.Customer.ID)
	}
	if result.Customer.Name != "Ana Maria" || result.Customer.MerchantID != merchant.ID {
		t.Fatalf("expected customer updated, got %+v", result.Customer)
	}
}

func TestSubscribeTokenizationFailure(t *testing.T) {
	f := newFixture()
	merchant := f.seedMerchant()
	plan := f.seedPlan(merchant.ID, 80000, entity.IntervalMonthly, 0)
	f.adapter.token = &gateway.TokenResult{Error: "card rejected"}

	_, err := f.svc.Subscribe(context.Background(), subscribeInput{
		merchantSlug: "gratu",
		planID:       plan.ID,
		email:        "ana@example.com",
		name:         "Ana",
		cardNumber:   "4000000000000002",
	})
	if !errors.Is(err, ErrTokenizationFailed) {
		t.Fatalf("expected ErrTokenizationFailed, got %v", err)
	}
	if len(f.db.subscriptions) != 0 {
		t.Fatalf("nothing must be stored when tokenization fails")
	}
}

func TestSubscribeValidation(t *testing.T) {
	f := newFixture()
	merchant := f.seedMerchant()
	plan := f.seedPlan(merchant.ID, 80000, entity.IntervalMonthly, 0)
	other := f.seedPlan(merchant.ID+100, 1000, entity.IntervalMonthly, 0)

	cases := []struct {
		name  string
		input subscribeInput
		want  error
	}{
		{name: "missing card", input: subscribeInput{merchantSlug: "gratu", planID: plan.ID, email: "a@b.co", name: "A"}, want: ErrInvalidRequest},
		{name: "unknown merchant", input: subscribeInput{merchantSlug: "nobody", planID: plan.ID, email: "a@b.co", name: "A", cardNumber: "4242"}, want: ErrMerchantNotFound},
		{name: "foreign plan", input: subscribeInput{merchantSlug: "gratu", planID: other.ID, email: "a@b.co", name: "A", cardNumber: "4242"}, want: ErrPlanNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Subscribe(context.Background(), tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
