package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/billing"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/notification"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

type SubscribeRequest interface {
	GetMerchantSlug() string
	GetPlanId() uint64
	GetCustomerEmail() string
	GetCustomerName() string
	GetCustomerPhone() string
	GetDocumentType() string
	GetDocumentNumber() string
	GetCardNumber() string
	GetCardExpMonth() string
	GetCardExpYear() string
	GetCardCvc() string
	GetCardHolderName() string
}

type SubscribeResult struct {
	Subscription  *entity.Subscription
	Customer      *entity.Customer
	Plan          *entity.Plan
	PaymentMethod *entity.PaymentMethod
}

// Subscribe enrolls a customer in a plan: the card is tokenized with the merchant's gateway
// and nothing is charged until the first billing date.
func (s *BillingService) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.GetCustomerEmail()))
	name := strings.TrimSpace(req.GetCustomerName())
	cardNumber := strings.ReplaceAll(strings.TrimSpace(req.GetCardNumber()), " ", "")
	if req.GetPlanId() == 0 || email == "" || name == "" || cardNumber == "" {
		return nil, ErrInvalidRequest
	}

	merchant, err := s.findMerchant(ctx, req.GetMerchantSlug())
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	plan, err := s.repos.Plans.FindByID(ctx, req.GetPlanId())
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.MerchantID != merchant.ID || !plan.IsActive {
		return nil, ErrPlanNotFound
	}
	if merchant.Credentials == nil {
		return nil, ErrGatewayNotConfigured
	}

	now := s.now()
	customer, err := s.repos.Customers.FindByEmail(ctx, merchant.ID, email)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		customer = &entity.Customer{
			MerchantID: merchant.ID,
			Email:      email,
			CreatedAt:  now,
		}
	}
	customer.Name = name
	customer.Phone = normalizeOptionalString(req.GetCustomerPhone())
	customer.DocumentType = normalizeOptionalString(req.GetDocumentType())
	customer.DocumentNumber = normalizeOptionalString(req.GetDocumentNumber())
	customer.UpdatedAt = now

	payerID := email
	if customer.ID > 0 {
		payerID = fmt.Sprintf("%d", customer.ID)
	}
	holder := strings.TrimSpace(req.GetCardHolderName())
	if holder == "" {
		holder = name
	}

	token := s.dispatcher.Tokenize(ctx, merchant.Gateway, merchant.Credentials, &gateway.CardData{
		Number:         cardNumber,
		ExpMonth:       strings.TrimSpace(req.GetCardExpMonth()),
		ExpYear:        strings.TrimSpace(req.GetCardExpYear()),
		CVC:            strings.TrimSpace(req.GetCardCvc()),
		HolderName:     holder,
		PayerID:        payerID,
		PayerEmail:     email,
		DocumentNumber: stringValue(customer.DocumentNumber),
	})
	if token == nil || !token.Success || token.Token == "" {
		message := "no token returned"
		if token != nil && token.Error != "" {
			message = token.Error
		}
		return nil, fmt.Errorf("%w: %s", ErrTokenizationFailed, message)
	}

	method := &entity.PaymentMethod{
		MerchantID:     merchant.ID,
		Gateway:        merchant.Gateway,
		Token:          token.Token,
		CardLastFour:   normalizeOptionalString(token.LastFour),
		CardBrand:      normalizeOptionalString(token.Brand),
		CardExpMonth:   normalizeOptionalString(req.GetCardExpMonth()),
		CardExpYear:    normalizeOptionalString(req.GetCardExpYear()),
		CardholderName: &holder,
		IsDefault:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	subscription := newSubscription(merchant.ID, plan, now)
	if err := s.repos.Tx.SaveSubscription(ctx, customer, method, subscription); err != nil {
		if errors.Is(err, repository.ErrCustomerAlreadyExists) {
			return nil, ErrBusy
		}
		return nil, err
	}

	due := &entity.DueSubscription{
		Subscription:  subscription,
		Merchant:      merchant,
		Plan:          plan,
		Customer:      customer,
		PaymentMethod: method,
	}
	welcome := subscriptionNotification(notification.TypeWelcome, due, nil)
	if welcome != nil && subscription.TrialEnd != nil {
		welcome.Data["trial_end"] = subscription.TrialEnd.Format(time.DateOnly)
	}
	s.notify(ctx, welcome)

	return &SubscribeResult{
		Subscription:  subscription,
		Customer:      customer,
		Plan:          plan,
		PaymentMethod: method,
	}, nil
}

// newSubscription starts a trial when the plan has one; the first charge then falls on the
// trial end. Otherwise the first charge is one full period away.
func newSubscription(merchantID uint64, plan *entity.Plan, now time.Time) *entity.Subscription {
	sub := &entity.Subscription{
		MerchantID:         merchantID,
		PlanID:             plan.ID,
		Status:             entity.SubscriptionActive,
		CurrentPeriodStart: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if plan.TrialDays > 0 {
		trialEnd := now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour)
		sub.Status = entity.SubscriptionTrialing
		sub.TrialEnd = &trialEnd
		sub.NextBillingDate = trialEnd
	} else {
		sub.NextBillingDate = billing.NextBillingDate(now, plan.Interval, plan.IntervalCount)
	}
	sub.CurrentPeriodEnd = sub.NextBillingDate
	return sub
}
