package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/billing"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
)

type ManualChargeRequest interface {
	GetSubscriptionId() uint64
	GetMerchantId() uint64
	GetGateway() string
	GetToken() string
	GetAmount() int64
	GetCurrency() string
	GetApiKey() string
	GetPayerEmail() string
	GetPayerName() string
	GetPayerPhone() string
	GetDescription() string
}

type ManualChargeResult struct {
	Charge        *gateway.ChargeResult
	ReferenceCode string
	PlatformFee   int64
	NetAmount     int64
}

// ManualCharge charges a token once with the merchant's gateway credentials. Nothing is
// persisted; a declined charge comes back as a result with Success false.
func (s *BillingService) ManualCharge(ctx context.Context, req ManualChargeRequest) (*ManualChargeResult, error) {
	token := strings.TrimSpace(req.GetToken())
	if req.GetMerchantId() == 0 || token == "" || req.GetAmount() <= 0 {
		return nil, ErrInvalidRequest
	}

	merchant, err := s.repos.Merchants.FindByID(ctx, req.GetMerchantId())
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	code := merchant.Gateway
	if raw := strings.TrimSpace(req.GetGateway()); raw != "" {
		parsed, ok := entity.ParseGateway(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrGatewayUnsupported, raw)
		}
		if parsed != merchant.Gateway {
			return nil, fmt.Errorf("%w: merchant uses %s", ErrInvalidRequest, merchant.Gateway)
		}
		code = parsed
	}

	creds := merchant.Credentials
	if creds == nil {
		return nil, ErrGatewayNotConfigured
	}
	if apiKey := strings.TrimSpace(req.GetApiKey()); apiKey != "" {
		creds = creds.WithSecretKey(apiKey)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.GetCurrency()))
	if currency == "" {
		currency = s.billingCfg.DefaultCurrency
	}
	payerEmail := strings.TrimSpace(req.GetPayerEmail())
	if payerEmail == "" {
		payerEmail = s.billingCfg.DefaultPayerEmail
	}
	payerName := strings.TrimSpace(req.GetPayerName())
	if payerName == "" {
		payerName = s.billingCfg.DefaultPayerName
	}
	description := strings.TrimSpace(req.GetDescription())
	if description == "" {
		description = fmt.Sprintf("Subscription %d", req.GetSubscriptionId())
	}

	reference := billing.ManualChargeReference(req.GetSubscriptionId(), s.now())
	started := time.Now()
	result := s.dispatcher.Charge(ctx, &gateway.ChargeRequest{
		Gateway:       code,
		Credentials:   creds,
		Token:         token,
		Amount:        req.GetAmount(),
		Currency:      currency,
		ReferenceCode: reference,
		Description:   description,
		PayerEmail:    payerEmail,
		PayerName:     payerName,
		PayerPhone:    strings.TrimSpace(req.GetPayerPhone()),
	})
	s.observeCharge(result, "manual", started)

	fee := billing.PlatformFee(result.Amount, billing.FeePercent(merchant.PlatformFeePercent))
	s.logger.WithFields(logrus.Fields{
		"merchant_id":     merchant.ID,
		"subscription_id": req.GetSubscriptionId(),
		"reference":       reference,
		"success":         result.Success,
	}).Info("manual charge dispatched")

	return &ManualChargeResult{
		Charge:        result,
		ReferenceCode: reference,
		PlatformFee:   fee,
		NetAmount:     billing.NetAmount(result.Amount, fee),
	}, nil
}
