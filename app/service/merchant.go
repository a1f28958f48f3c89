package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing/app/billing"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

type GatewayConfigRequest interface {
	GetMerchantSlug() string
	GetGateway() string
	GetConfig() map[string]interface{}
}

// GatewayConfigView is a merchant's gateway setup with every secret masked.
type GatewayConfigView struct {
	Gateway    entity.Gateway
	Configured bool
	Config     map[string]interface{}
}

type MerchantStats struct {
	ActiveSubscriptions int
	MRR                 decimal.Decimal
	Currency            string
	TotalRevenue        int64
	PlatformFees        int64
	NetRevenue          int64
}

// UpdateGatewayConfig validates the config against the gateway's credential shape before
// storing it, so charge time never sees a malformed config.
func (s *BillingService) UpdateGatewayConfig(ctx context.Context, req GatewayConfigRequest) (*GatewayConfigView, error) {
	code, ok := entity.ParseGateway(req.GetGateway())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnsupported, strings.TrimSpace(req.GetGateway()))
	}
	if len(req.GetConfig()) == 0 {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidRequest)
	}

	merchant, err := s.findMerchant(ctx, req.GetMerchantSlug())
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	raw, err := json.Marshal(req.GetConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGatewayConfig, err)
	}
	creds, err := entity.DecodeGatewayCredentials(code, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGatewayConfig, err)
	}

	merchant.Gateway = code
	merchant.Credentials = creds
	merchant.UpdatedAt = s.now()
	if err := s.repos.Merchants.UpdateGatewayConfig(ctx, merchant); err != nil {
		if errors.Is(err, repository.ErrMerchantNotFound) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}

	s.logger.WithField("merchant_id", merchant.ID).WithField("gateway", code).Info("merchant gateway config updated")
	return gatewayConfigView(merchant), nil
}

func (s *BillingService) GetGatewayConfig(ctx context.Context, merchantSlug string) (*GatewayConfigView, error) {
	merchant, err := s.findMerchant(ctx, merchantSlug)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}
	return gatewayConfigView(merchant), nil
}

// GetMerchantStats reports active subscriptions, monthly recurring revenue and the totals of
// paid invoices.
func (s *BillingService) GetMerchantStats(ctx context.Context, merchantSlug string) (*MerchantStats, error) {
	merchant, err := s.findMerchant(ctx, merchantSlug)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	plans, err := s.repos.Subscriptions.ListActivePlans(ctx, merchant.ID)
	if err != nil {
		return nil, err
	}
	revenue, fees, err := s.repos.Invoices.SumPaidByMerchant(ctx, merchant.ID)
	if err != nil {
		return nil, err
	}

	stats := &MerchantStats{
		ActiveSubscriptions: len(plans),
		MRR:                 decimal.Zero,
		Currency:            s.billingCfg.DefaultCurrency,
		TotalRevenue:        revenue,
		PlatformFees:        fees,
		NetRevenue:          revenue - fees,
	}
	for _, plan := range plans {
		stats.MRR = stats.MRR.Add(billing.MonthlyNormalized(plan.Price, plan.Interval, plan.IntervalCount))
		if plan.Currency != "" {
			stats.Currency = plan.Currency
		}
	}
	stats.MRR = stats.MRR.Round(0)
	return stats, nil
}

func gatewayConfigView(merchant *entity.Merchant) *GatewayConfigView {
	view := &GatewayConfigView{Gateway: merchant.Gateway, Config: map[string]interface{}{}}
	if merchant.Credentials != nil {
		view.Configured = true
		view.Config = merchant.Credentials.Masked()
	}
	return view
}
