package service

import "errors"

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrMerchantNotFound      = errors.New("merchant not found")
	ErrPlanNotFound          = errors.New("plan not found")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrGatewayUnsupported    = errors.New("gateway is not supported")
	ErrGatewayNotConfigured  = errors.New("merchant gateway is not configured")
	ErrInvalidGatewayConfig  = errors.New("invalid gateway config")
	ErrTokenizationFailed    = errors.New("card tokenization failed")
	ErrChargeFailed          = errors.New("charge failed")
	ErrCallbackRejected      = errors.New("callback rejected")
	ErrBusy                  = errors.New("resource is being processed")
	ErrPlatformNotConfigured = errors.New("platform wompi account is not configured")
)
