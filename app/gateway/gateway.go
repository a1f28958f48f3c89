// Package gateway adapts the three supported payment gateways to one charge/tokenize/status
// contract and dispatches charges to the adapter a merchant is configured for.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var (
	ErrGatewayNotSupported = errors.New("gateway is not supported")
	ErrCredentialsMismatch = errors.New("gateway credentials do not match gateway")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrNotImplemented      = errors.New("operation is not implemented for gateway")
	ErrLookupUnsupported   = errors.New("gateway cannot look up transactions by reference")
	ErrTransactionNotFound = errors.New("no transaction found for reference")
)

// State is the normalized gateway transaction state.
type State string

const (
	StateApproved State = "approved"
	StatePending  State = "pending"
	StateDeclined State = "declined"
	StateError    State = "error"
)

type CardData struct {
	Number     string
	ExpMonth   string
	ExpYear    string
	CVC        string
	HolderName string

	PayerID        string
	PayerEmail     string
	DocumentNumber string
}

type TokenResult struct {
	Success  bool
	Token    string
	Brand    string
	LastFour string
	Error    string
}

type ChargeInput struct {
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

// ChargeOutcome is what an adapter reports for one charge call. Pending is never Success.
type ChargeOutcome struct {
	Success       bool
	TransactionID string
	State         State
	ErrorMessage  string
	RawResponse   json.RawMessage
}

type WebhookRequest struct {
	Payload []byte
	Headers http.Header
}

// WebhookEvent is a verified, normalized gateway notification. An empty State means the
// event carries no payment outcome.
type WebhookEvent struct {
	EventType     string
	Reference     string
	TransactionID string
	State         State
}

type Adapter interface {
	Code() entity.Gateway
	Tokenize(ctx context.Context, creds entity.GatewayCredentials, card *CardData) *TokenResult
	Charge(ctx context.Context, creds entity.GatewayCredentials, input *ChargeInput) *ChargeOutcome
	TransactionStatus(ctx context.Context, creds entity.GatewayCredentials, transactionID string) (State, error)
	ParseWebhook(ctx context.Context, creds entity.GatewayCredentials, req *WebhookRequest) (*WebhookEvent, error)
}

// TransactionLookup is the latest transaction a gateway holds for one reference code.
type TransactionLookup struct {
	TransactionID string
	State         State
}

// ReferenceLookup is implemented by adapters that can find a transaction by the reference
// code sent with the charge. ErrTransactionNotFound means the gateway never saw it.
type ReferenceLookup interface {
	TransactionByReference(ctx context.Context, creds entity.GatewayCredentials, reference string) (*TransactionLookup, error)
}

func failedOutcome(state State, message string, raw []byte) *ChargeOutcome {
	return &ChargeOutcome{
		Success:      false,
		State:        state,
		ErrorMessage: message,
		RawResponse:  rawJSON(raw),
	}
}

// rawJSON keeps a response body only when it is valid JSON so it can be stored as-is.
func rawJSON(body []byte) json.RawMessage {
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}
	out := make(json.RawMessage, len(body))
	copy(out, body)
	return out
}
