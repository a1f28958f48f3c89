package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/notification"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

const (
	ActionPause             = "pause"
	ActionResume            = "resume"
	ActionCancel            = "cancel"
	ActionCancelImmediately = "cancel_immediately"
	ActionChangePlan        = "change_plan"
)

type ManageSubscriptionRequest interface {
	GetMerchantSlug() string
	GetSubscriptionId() uint64
	GetAction() string
	GetPlanId() uint64
	GetReason() string
}

type ManageResult struct {
	Subscription *entity.Subscription
	Message      string
}

type SubscriptionDetails struct {
	Due      *entity.DueSubscription
	Invoices []*entity.Invoice
}

type CustomerSubscription struct {
	HasSubscription bool
	IsActive        bool
	IsTrial         bool
	IsPastDue       bool
	Due             *entity.DueSubscription
}

func (s *BillingService) ManageSubscription(ctx context.Context, req ManageSubscriptionRequest) (*ManageResult, error) {
	action := strings.ToLower(strings.TrimSpace(req.GetAction()))
	if req.GetSubscriptionId() == 0 || action == "" {
		return nil, ErrInvalidRequest
	}

	merchant, err := s.findMerchant(ctx, req.GetMerchantSlug())
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	release, err := s.locker.Acquire(ctx, lock.SubscriptionKey(req.GetSubscriptionId()), s.billingCfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrBusy
		}
		return nil, err
	}
	defer func() {
		_ = release(context.WithoutCancel(ctx))
	}()

	due, err := s.repos.Subscriptions.FindDueByID(ctx, req.GetSubscriptionId())
	if err != nil {
		return nil, err
	}
	if due == nil || due.Subscription == nil || due.Subscription.MerchantID != merchant.ID {
		return nil, ErrSubscriptionNotFound
	}

	sub := due.Subscription
	now := s.now()
	reason := strings.TrimSpace(req.GetReason())
	var message string
	notifyCancel := false

	switch action {
	case ActionPause:
		if sub.Status != entity.SubscriptionActive {
			return nil, fmt.Errorf("%w: only active subscriptions can be paused", ErrInvalidStatus)
		}
		sub.Status = entity.SubscriptionPaused
		message = "subscription paused"
	case ActionResume:
		if sub.Status != entity.SubscriptionPaused {
			return nil, fmt.Errorf("%w: only paused subscriptions can be resumed", ErrInvalidStatus)
		}
		sub.Status = entity.SubscriptionActive
		message = "subscription resumed"
	case ActionCancel:
		if sub.Status == entity.SubscriptionCancelled {
			return nil, fmt.Errorf("%w: subscription is already cancelled", ErrInvalidStatus)
		}
		// A past_due subscription is never billed again, so a period-end cancel would never run.
		if sub.Status == entity.SubscriptionPastDue {
			return nil, fmt.Errorf("%w: past_due subscriptions have no paid period to finish, use cancel_immediately", ErrInvalidStatus)
		}
		if reason == "" {
			reason = "Cancelled by the customer"
		}
		sub.CancelAtPeriodEnd = true
		sub.CancellationReason = &reason
		message = "subscription will be cancelled at the end of the current period"
	case ActionCancelImmediately:
		if sub.Status == entity.SubscriptionCancelled {
			return nil, fmt.Errorf("%w: subscription is already cancelled", ErrInvalidStatus)
		}
		if reason == "" {
			reason = "Cancelled immediately"
		}
		sub.Status = entity.SubscriptionCancelled
		sub.CancelledAt = timePtr(now)
		sub.CancellationReason = &reason
		message = "subscription cancelled"
		notifyCancel = true
	case ActionChangePlan:
		if req.GetPlanId() == 0 {
			return nil, fmt.Errorf("%w: plan_id is required to change plan", ErrInvalidRequest)
		}
		if sub.Status == entity.SubscriptionCancelled {
			return nil, fmt.Errorf("%w: subscription is cancelled", ErrInvalidStatus)
		}
		plan, err := s.repos.Plans.FindByID(ctx, req.GetPlanId())
		if err != nil {
			return nil, err
		}
		if plan == nil || plan.MerchantID != merchant.ID || !plan.IsActive {
			return nil, ErrPlanNotFound
		}
		sub.PlanID = plan.ID
		due.Plan = plan
		message = "plan updated"
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, action)
	}

	sub.UpdatedAt = now
	if err := s.repos.Subscriptions.Update(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	if notifyCancel {
		s.notify(ctx, subscriptionNotification(notification.TypeCancellation, due, nil))
	}

	return &ManageResult{Subscription: sub, Message: message}, nil
}

func (s *BillingService) GetSubscription(ctx context.Context, merchantSlug string, subscriptionID uint64) (*SubscriptionDetails, error) {
	if subscriptionID == 0 {
		return nil, ErrInvalidRequest
	}
	merchant, err := s.findMerchant(ctx, merchantSlug)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	due, err := s.repos.Subscriptions.FindDueByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if due == nil || due.Subscription == nil || due.Subscription.MerchantID != merchant.ID {
		return nil, ErrSubscriptionNotFound
	}

	invoices, err := s.repos.Invoices.ListRecentBySubscription(ctx, subscriptionID, recentInvoicesLimit)
	if err != nil {
		return nil, err
	}
	return &SubscriptionDetails{Due: due, Invoices: invoices}, nil
}

// FindCustomerSubscription returns the customer's most recent subscription that still grants
// or may regain access: active, trialing or past due.
func (s *BillingService) FindCustomerSubscription(ctx context.Context, merchantSlug, email string) (*CustomerSubscription, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrInvalidRequest
	}
	merchant, err := s.findMerchant(ctx, merchantSlug)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	items, err := s.repos.Subscriptions.ListByCustomerEmail(ctx, merchant.ID, email)
	if err != nil {
		return nil, err
	}
	for _, due := range items {
		if due == nil || due.Subscription == nil {
			continue
		}
		switch due.Subscription.Status {
		case entity.SubscriptionActive, entity.SubscriptionTrialing, entity.SubscriptionPastDue:
			status := due.Subscription.Status
			return &CustomerSubscription{
				HasSubscription: true,
				IsActive:        status == entity.SubscriptionActive || status == entity.SubscriptionTrialing,
				IsTrial:         status == entity.SubscriptionTrialing,
				IsPastDue:       status == entity.SubscriptionPastDue,
				Due:             due,
			}, nil
		}
	}
	return &CustomerSubscription{}, nil
}

func (s *BillingService) ListPlans(ctx context.Context, merchantSlug string) (*entity.Merchant, []*entity.Plan, error) {
	merchant, err := s.findMerchant(ctx, merchantSlug)
	if err != nil {
		return nil, nil, err
	}
	if merchant == nil {
		return nil, nil, ErrMerchantNotFound
	}
	plans, err := s.repos.Plans.ListPublicByMerchant(ctx, merchant.ID)
	if err != nil {
		return nil, nil, err
	}
	return merchant, plans, nil
}
