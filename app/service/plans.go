package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-billing/app/billing"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

const defaultPlanCurrency = "COP"

type CreatePlanRequest interface {
	GetMerchantSlug() string
	GetName() string
	GetDescription() string
	GetPrice() int64
	GetCurrency() string
	GetInterval() string
	GetIntervalCount() int32
	GetTrialDays() int32
	GetIsPublic() *bool
}

// UpdatePlanRequest carries a partial plan edit. A nil getter result leaves the field as stored.
type UpdatePlanRequest interface {
	GetMerchantSlug() string
	GetPlanId() uint64
	GetName() *string
	GetDescription() *string
	GetPrice() *int64
	GetCurrency() *string
	GetInterval() *string
	GetIntervalCount() *int32
	GetTrialDays() *int32
	GetIsPublic() *bool
	GetIsActive() *bool
}

func (s *BillingService) CreatePlan(ctx context.Context, req CreatePlanRequest) (*entity.Plan, error) {
	merchant, err := s.requireMerchant(ctx, req.GetMerchantSlug())
	if err != nil {
		return nil, err
	}

	now := s.now()
	plan := &entity.Plan{
		MerchantID:    merchant.ID,
		Name:          strings.TrimSpace(req.GetName()),
		Price:         req.GetPrice(),
		Currency:      strings.ToUpper(strings.TrimSpace(req.GetCurrency())),
		Interval:      entity.Interval(strings.ToLower(strings.TrimSpace(req.GetInterval()))),
		IntervalCount: req.GetIntervalCount(),
		TrialDays:     req.GetTrialDays(),
		IsActive:      true,
		IsPublic:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if description := strings.TrimSpace(req.GetDescription()); description != "" {
		plan.Description = &description
	}
	if plan.Currency == "" {
		plan.Currency = defaultPlanCurrency
	}
	if plan.IntervalCount == 0 {
		plan.IntervalCount = 1
	}
	if public := req.GetIsPublic(); public != nil {
		plan.IsPublic = *public
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}

	if err := s.repos.Plans.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.WithField("merchant_id", merchant.ID).WithField("plan_id", plan.ID).Info("plan created")
	return plan, nil
}

func (s *BillingService) UpdatePlan(ctx context.Context, req UpdatePlanRequest) (*entity.Plan, error) {
	merchant, err := s.requireMerchant(ctx, req.GetMerchantSlug())
	if err != nil {
		return nil, err
	}
	plan, err := s.merchantPlan(ctx, merchant.ID, req.GetPlanId())
	if err != nil {
		return nil, err
	}

	if v := req.GetName(); v != nil {
		plan.Name = strings.TrimSpace(*v)
	}
	if v := req.GetDescription(); v != nil {
		plan.Description = nil
		if description := strings.TrimSpace(*v); description != "" {
			plan.Description = &description
		}
	}
	if v := req.GetPrice(); v != nil {
		plan.Price = *v
	}
	if v := req.GetCurrency(); v != nil {
		plan.Currency = strings.ToUpper(strings.TrimSpace(*v))
	}
	if v := req.GetInterval(); v != nil {
		plan.Interval = entity.Interval(strings.ToLower(strings.TrimSpace(*v)))
	}
	if v := req.GetIntervalCount(); v != nil {
		plan.IntervalCount = *v
	}
	if v := req.GetTrialDays(); v != nil {
		plan.TrialDays = *v
	}
	if v := req.GetIsPublic(); v != nil {
		plan.IsPublic = *v
	}
	if v := req.GetIsActive(); v != nil {
		plan.IsActive = *v
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}

	plan.UpdatedAt = s.now()
	if err := s.repos.Plans.Update(ctx, plan); err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	s.logger.WithField("merchant_id", merchant.ID).WithField("plan_id", plan.ID).Info("plan updated")
	return plan, nil
}

// DeactivatePlan stops new subscriptions to the plan. Subscriptions already on it keep billing.
func (s *BillingService) DeactivatePlan(ctx context.Context, merchantSlug string, planID uint64) (*entity.Plan, error) {
	merchant, err := s.requireMerchant(ctx, merchantSlug)
	if err != nil {
		return nil, err
	}
	plan, err := s.merchantPlan(ctx, merchant.ID, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return plan, nil
	}

	now := s.now()
	if err := s.repos.Plans.Deactivate(ctx, merchant.ID, plan.ID, now); err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	plan.IsActive = false
	plan.UpdatedAt = now

	s.logger.WithField("merchant_id", merchant.ID).WithField("plan_id", plan.ID).Info("plan deactivated")
	return plan, nil
}

func (s *BillingService) requireMerchant(ctx context.Context, merchantSlug string) (*entity.Merchant, error) {
	merchant, err := s.findMerchant(ctx, merchantSlug)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}
	return merchant, nil
}

// merchantPlan loads a plan owned by the merchant. Another merchant's plan reads as missing.
func (s *BillingService) merchantPlan(ctx context.Context, merchantID, planID uint64) (*entity.Plan, error) {
	if planID == 0 {
		return nil, fmt.Errorf("%w: plan id is required", ErrInvalidRequest)
	}
	plan, err := s.repos.Plans.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.MerchantID != merchantID {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

func validatePlan(plan *entity.Plan) error {
	switch {
	case plan.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	case plan.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
	case len(plan.Currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidRequest)
	case !billing.ValidInterval(plan.Interval):
		return fmt.Errorf("%w: unsupported interval %q", ErrInvalidRequest, plan.Interval)
	case plan.IntervalCount < 1:
		return fmt.Errorf("%w: interval_count must be at least 1", ErrInvalidRequest)
	case plan.TrialDays < 0:
		return fmt.Errorf("%w: trial_days cannot be negative", ErrInvalidRequest)
	}
	return nil
}
