package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const mercadoPagoBaseURL = "https://api.mercadopago.com"

type MercadoPagoConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

// MercadoPagoAdapter only resolves payment notifications; recurring card charges are not
// available for this gateway.
type MercadoPagoAdapter struct {
	cfg    MercadoPagoConfig
	client *http.Client
}

func NewMercadoPagoAdapter(cfg MercadoPagoConfig) *MercadoPagoAdapter {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = mercadoPagoBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MercadoPagoAdapter{cfg: cfg, client: newHTTPClient(cfg.HTTPTimeout)}
}

func (a *MercadoPagoAdapter) Code() entity.Gateway {
	return entity.GatewayMercadoPago
}

func (a *MercadoPagoAdapter) Tokenize(context.Context, entity.GatewayCredentials, *CardData) *TokenResult {
	return &TokenResult{Error: "mercadopago tokenization is not implemented"}
}

func (a *MercadoPagoAdapter) Charge(context.Context, entity.GatewayCredentials, *ChargeInput) *ChargeOutcome {
	return failedOutcome(StateError, "mercadopago charges are not implemented", nil)
}

func (a *MercadoPagoAdapter) TransactionStatus(ctx context.Context, creds entity.GatewayCredentials, transactionID string) (State, error) {
	c, ok := creds.(*entity.MercadoPagoCredentials)
	if !ok {
		return "", ErrCredentialsMismatch
	}
	payment, err := a.fetchPayment(ctx, c, transactionID)
	if err != nil {
		return "", err
	}
	return mercadoPagoState(payment.Status), nil
}

// ParseWebhook verifies x-signature when a webhook secret is configured, then looks the
// payment up since notifications carry only its id.
func (a *MercadoPagoAdapter) ParseWebhook(ctx context.Context, creds entity.GatewayCredentials, req *WebhookRequest) (*WebhookEvent, error) {
	c, ok := creds.(*entity.MercadoPagoCredentials)
	if !ok {
		return nil, ErrCredentialsMismatch
	}

	var notification struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		Data   struct {
			ID interface{} `json:"id"`
		} `json:"data"`
	}
	decoder := json.NewDecoder(strings.NewReader(string(req.Payload)))
	decoder.UseNumber()
	if err := decoder.Decode(&notification); err != nil {
		return nil, fmt.Errorf("invalid mercadopago webhook payload: %w", err)
	}
	dataID := parseStringish(notification.Data.ID)

	if strings.TrimSpace(c.WebhookSecret) != "" {
		if !verifyMercadoPagoSignature(c.WebhookSecret, dataID, req.Headers.Get("X-Request-Id"), req.Headers.Get("X-Signature")) {
			return nil, ErrInvalidSignature
		}
	}

	out := &WebhookEvent{EventType: firstNonEmpty(notification.Action, notification.Type)}
	if notification.Type != "payment" || dataID == "" {
		return out, nil
	}

	payment, err := a.fetchPayment(ctx, c, dataID)
	if err != nil {
		return nil, err
	}
	out.Reference = payment.ExternalReference
	out.TransactionID = dataID
	out.State = mercadoPagoState(payment.Status)
	return out, nil
}

func (a *MercadoPagoAdapter) TransactionByReference(ctx context.Context, creds entity.GatewayCredentials, reference string) (*TransactionLookup, error) {
	c, ok := creds.(*entity.MercadoPagoCredentials)
	if !ok {
		return nil, ErrCredentialsMismatch
	}

	endpoint := a.cfg.BaseURL + "/v1/payments/search?sort=date_created&criteria=desc&external_reference=" + url.QueryEscape(reference)
	status, body, err := doJSON(ctx, a.client, http.MethodGet, endpoint, c.AccessToken, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("mercadopago search payments failed: status=%d body=%s", status, string(body))
	}

	var resp struct {
		Results []struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrTransactionNotFound
	}
	return &TransactionLookup{
		TransactionID: resp.Results[0].ID.String(),
		State:         mercadoPagoState(resp.Results[0].Status),
	}, nil
}

type mercadoPagoPayment struct {
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}

func (a *MercadoPagoAdapter) fetchPayment(ctx context.Context, c *entity.MercadoPagoCredentials, id string) (*mercadoPagoPayment, error) {
	status, body, err := doJSON(ctx, a.client, http.MethodGet, a.cfg.BaseURL+"/v1/payments/"+url.PathEscape(id), c.AccessToken, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("mercadopago get payment failed: status=%d body=%s", status, string(body))
	}
	var payment mercadoPagoPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// verifyMercadoPagoSignature checks "ts=<ts>,v1=<hmac>" against
// HMAC-SHA256("id:<data.id>;request-id:<x-request-id>;ts:<ts>;").
func verifyMercadoPagoSignature(secret, dataID, requestID, header string) bool {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}

func mercadoPagoState(status string) State {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return StateApproved
	case "pending", "in_process", "authorized":
		return StatePending
	case "rejected", "cancelled", "refunded", "charged_back":
		return StateDeclined
	default:
		return StateError
	}
}
