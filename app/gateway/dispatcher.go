package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const DefaultChargeTimeout = 30 * time.Second

type ChargeRequest struct {
	Gateway       entity.Gateway
	Credentials   entity.GatewayCredentials
	Token         string
	Amount        int64
	Currency      string
	ReferenceCode string
	Description   string
	PayerID       string
	PayerEmail    string
	PayerName     string
	PayerPhone    string
}

// ChargeResult is the dispatcher's report. Failures are values, never errors.
type ChargeResult struct {
	Success       bool
	TransactionID string
	State         State
	Error         string
	Gateway       entity.Gateway
	Amount        int64
	Currency      string
	Timestamp     time.Time
	RawResponse   json.RawMessage
}

type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	now      func() time.Time
}

func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultChargeTimeout
	}
	return &Dispatcher{registry: registry, timeout: timeout, now: time.Now}
}

// Charge routes the request to its gateway adapter. The call is bounded by the dispatcher
// timeout and is not interrupted when the caller's context is cancelled.
func (d *Dispatcher) Charge(ctx context.Context, req *ChargeRequest) *ChargeResult {
	result := &ChargeResult{
		Gateway:  req.Gateway,
		Amount:   req.Amount,
		Currency: req.Currency,
	}

	adapter, err := d.registry.Get(req.Gateway)
	if err != nil {
		result.State = StateError
		result.Error = fmt.Sprintf("gateway %s is not supported", req.Gateway)
		result.Timestamp = d.now()
		return result
	}
	if req.Credentials == nil || req.Credentials.Gateway() != req.Gateway {
		result.State = StateError
		result.Error = ErrCredentialsMismatch.Error()
		result.Timestamp = d.now()
		return result
	}

	chargeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	outcome := adapter.Charge(chargeCtx, req.Credentials, &ChargeInput{
		Token:         req.Token,
		Amount:        req.Amount,
		Currency:      req.Currency,
		ReferenceCode: req.ReferenceCode,
		Description:   req.Description,
		PayerID:       req.PayerID,
		PayerEmail:    req.PayerEmail,
		PayerName:     req.PayerName,
		PayerPhone:    req.PayerPhone,
	})
	result.Timestamp = d.now()
	if outcome == nil {
		result.State = StateError
		result.Error = "gateway returned no result"
		return result
	}

	result.Success = outcome.Success
	result.TransactionID = outcome.TransactionID
	result.State = outcome.State
	result.Error = outcome.ErrorMessage
	result.RawResponse = outcome.RawResponse
	if !result.Success && errors.Is(chargeCtx.Err(), context.DeadlineExceeded) {
		result.Error = fmt.Sprintf("charge timed out after %s", d.timeout)
	}
	if !result.Success && result.Error == "" {
		result.Error = "charge was not approved"
	}
	return result
}

func (d *Dispatcher) Tokenize(ctx context.Context, code entity.Gateway, creds entity.GatewayCredentials, card *CardData) *TokenResult {
	adapter, err := d.registry.Get(code)
	if err != nil {
		return &TokenResult{Error: fmt.Sprintf("gateway %s is not supported", code)}
	}
	tokenCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	return adapter.Tokenize(tokenCtx, creds, card)
}

func (d *Dispatcher) TransactionStatus(ctx context.Context, code entity.Gateway, creds entity.GatewayCredentials, transactionID string) (State, error) {
	adapter, err := d.registry.Get(code)
	if err != nil {
		return "", err
	}
	statusCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return adapter.TransactionStatus(statusCtx, creds, transactionID)
}

func (d *Dispatcher) TransactionByReference(ctx context.Context, code entity.Gateway, creds entity.GatewayCredentials, reference string) (*TransactionLookup, error) {
	adapter, err := d.registry.Get(code)
	if err != nil {
		return nil, err
	}
	lookup, ok := adapter.(ReferenceLookup)
	if !ok {
		return nil, ErrLookupUnsupported
	}
	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return lookup.TransactionByReference(lookupCtx, creds, reference)
}

func (d *Dispatcher) ParseWebhook(ctx context.Context, code entity.Gateway, creds entity.GatewayCredentials, req *WebhookRequest) (*WebhookEvent, error) {
	adapter, err := d.registry.Get(code)
	if err != nil {
		return nil, err
	}
	return adapter.ParseWebhook(ctx, creds, req)
}
