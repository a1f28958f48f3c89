package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const (
	wompiSandboxURL    = "https://sandbox.wompi.co/v1"
	wompiProductionURL = "https://production.wompi.co/v1"
)

type WompiConfig struct {
	SandboxURL    string
	ProductionURL string
	HTTPTimeout   time.Duration
}

type WompiAdapter struct {
	cfg    WompiConfig
	client *http.Client
}

func NewWompiAdapter(cfg WompiConfig) *WompiAdapter {
	if strings.TrimSpace(cfg.SandboxURL) == "" {
		cfg.SandboxURL = wompiSandboxURL
	}
	if strings.TrimSpace(cfg.ProductionURL) == "" {
		cfg.ProductionURL = wompiProductionURL
	}
	return &WompiAdapter{cfg: cfg, client: newHTTPClient(cfg.HTTPTimeout)}
}

func (a *WompiAdapter) Code() entity.Gateway {
	return entity.GatewayWompi
}

type wompiError struct {
	Type     string                 `json:"type"`
	Reason   string                 `json:"reason"`
	Messages map[string]interface{} `json:"messages"`
}

func (e *wompiError) message(fallback string) string {
	if e == nil {
		return fallback
	}
	if e.Reason != "" {
		return e.Reason
	}
	if len(e.Messages) > 0 {
		encoded, _ := json.Marshal(e.Messages)
		return string(encoded)
	}
	return firstNonEmpty(e.Type, fallback)
}

func (a *WompiAdapter) Tokenize(ctx context.Context, creds entity.GatewayCredentials, card *CardData) *TokenResult {
	c, ok := creds.(*entity.WompiCredentials)
	if !ok {
		return &TokenResult{Error: ErrCredentialsMismatch.Error()}
	}
	if card == nil {
		return &TokenResult{Error: "card data is required"}
	}

	acceptanceToken, err := a.acceptanceToken(ctx, c)
	if err != nil {
		return &TokenResult{Error: err.Error()}
	}

	expYear := strings.TrimSpace(card.ExpYear)
	if len(expYear) == 4 {
		expYear = expYear[2:]
	}
	_, body, err := doJSON(ctx, a.client, http.MethodPost, a.baseURL(c)+"/tokens/cards", c.PublicKey, map[string]interface{}{
		"number":      card.Number,
		"cvc":         card.CVC,
		"exp_month":   card.ExpMonth,
		"exp_year":    expYear,
		"card_holder": card.HolderName,
	})
	if err != nil {
		return &TokenResult{Error: connectionError("Wompi", err)}
	}

	var tokenResp struct {
		Status string `json:"status"`
		Data   *struct {
			ID       string `json:"id"`
			Brand    string `json:"brand"`
			LastFour string `json:"last_four"`
		} `json:"data"`
		Error *wompiError `json:"error"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return &TokenResult{Error: "invalid Wompi response"}
	}
	if tokenResp.Status != "CREATED" || tokenResp.Data == nil {
		return &TokenResult{Error: tokenResp.Error.message("Wompi card tokenization failed")}
	}

	_, body, err = doJSON(ctx, a.client, http.MethodPost, a.baseURL(c)+"/payment_sources", c.PrivateKey, map[string]interface{}{
		"type":             "CARD",
		"token":            tokenResp.Data.ID,
		"customer_email":   card.PayerEmail,
		"acceptance_token": acceptanceToken,
	})
	if err != nil {
		return &TokenResult{Error: connectionError("Wompi", err)}
	}

	var sourceResp struct {
		Data *struct {
			ID     json.Number `json:"id"`
			Status string      `json:"status"`
		} `json:"data"`
		Error *wompiError `json:"error"`
	}
	if err := json.Unmarshal(body, &sourceResp); err != nil {
		return &TokenResult{Error: "invalid Wompi response"}
	}
	if sourceResp.Data == nil || sourceResp.Data.ID.String() == "" {
		return &TokenResult{Error: sourceResp.Error.message("Wompi payment source creation failed")}
	}

	return &TokenResult{
		Success:  true,
		Token:    sourceResp.Data.ID.String(),
		Brand:    tokenResp.Data.Brand,
		LastFour: tokenResp.Data.LastFour,
	}
}

func (a *WompiAdapter) Charge(ctx context.Context, creds entity.GatewayCredentials, input *ChargeInput) *ChargeOutcome {
	c, ok := creds.(*entity.WompiCredentials)
	if !ok {
		return failedOutcome(StateError, ErrCredentialsMismatch.Error(), nil)
	}

	sourceID, err := strconv.ParseInt(strings.TrimSpace(input.Token), 10, 64)
	if err != nil {
		return failedOutcome(StateError, "invalid Wompi payment source id", nil)
	}

	payload := map[string]interface{}{
		"amount_in_cents":   input.Amount * 100,
		"currency":          input.Currency,
		"reference":         input.ReferenceCode,
		"customer_email":    input.PayerEmail,
		"payment_source_id": sourceID,
		"customer_data": map[string]interface{}{
			"full_name":    input.PayerName,
			"phone_number": input.PayerPhone,
		},
	}

	_, body, err := doJSON(ctx, a.client, http.MethodPost, a.baseURL(c)+"/transactions", c.PrivateKey, payload)
	if err != nil {
		return failedOutcome(StateError, connectionError("Wompi", err), nil)
	}

	var resp struct {
		Data *struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			StatusMessage string `json:"status_message"`
		} `json:"data"`
		Error *wompiError `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return failedOutcome(StateError, "invalid Wompi response", body)
	}
	if resp.Data == nil {
		return failedOutcome(StateError, resp.Error.message("Wompi transaction failed"), body)
	}

	state := wompiState(resp.Data.Status)
	outcome := &ChargeOutcome{
		Success:       state == StateApproved,
		TransactionID: resp.Data.ID,
		State:         state,
		RawResponse:   rawJSON(body),
	}
	if !outcome.Success {
		outcome.ErrorMessage = firstNonEmpty(resp.Data.StatusMessage, "Wompi transaction "+strings.ToLower(resp.Data.Status))
	}
	return outcome
}

func (a *WompiAdapter) TransactionStatus(ctx context.Context, creds entity.GatewayCredentials, transactionID string) (State, error) {
	c, ok := creds.(*entity.WompiCredentials)
	if !ok {
		return "", ErrCredentialsMismatch
	}

	status, body, err := doJSON(ctx, a.client, http.MethodGet, a.baseURL(c)+"/transactions/"+url.PathEscape(transactionID), c.PrivateKey, nil)
	if err != nil {
		return "", err
	}
	if status >= 400 {
		return "", fmt.Errorf("wompi get transaction failed: status=%d body=%s", status, string(body))
	}

	var resp struct {
		Data *struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.Data == nil {
		return "", fmt.Errorf("wompi get transaction returned no data")
	}
	return wompiState(resp.Data.Status), nil
}

func (a *WompiAdapter) TransactionByReference(ctx context.Context, creds entity.GatewayCredentials, reference string) (*TransactionLookup, error) {
	c, ok := creds.(*entity.WompiCredentials)
	if !ok {
		return nil, ErrCredentialsMismatch
	}

	endpoint := a.baseURL(c) + "/transactions?reference=" + url.QueryEscape(reference)
	status, body, err := doJSON(ctx, a.client, http.MethodGet, endpoint, c.PrivateKey, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("wompi find transactions failed: status=%d body=%s", status, string(body))
	}

	var resp struct {
		Data []struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	for _, tx := range resp.Data {
		if tx.Reference != "" && tx.Reference != reference {
			continue
		}
		return &TransactionLookup{TransactionID: tx.ID, State: wompiState(tx.Status)}, nil
	}
	return nil, ErrTransactionNotFound
}

// ParseWebhook verifies the event checksum: sha256 over the values named in
// signature.properties (read from data), then timestamp, then the events secret.
func (a *WompiAdapter) ParseWebhook(_ context.Context, creds entity.GatewayCredentials, req *WebhookRequest) (*WebhookEvent, error) {
	c, ok := creds.(*entity.WompiCredentials)
	if !ok {
		return nil, ErrCredentialsMismatch
	}

	var event struct {
		Event     string                 `json:"event"`
		Data      map[string]interface{} `json:"data"`
		Timestamp json.Number            `json:"timestamp"`
		Signature struct {
			Properties []string `json:"properties"`
			Checksum   string   `json:"checksum"`
		} `json:"signature"`
	}
	decoder := json.NewDecoder(strings.NewReader(string(req.Payload)))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil {
		return nil, fmt.Errorf("invalid wompi webhook payload: %w", err)
	}

	checksum := firstNonEmpty(event.Signature.Checksum, req.Headers.Get("X-Event-Checksum"))
	if checksum == "" || len(event.Signature.Properties) == 0 {
		return nil, ErrInvalidSignature
	}

	var sb strings.Builder
	for _, property := range event.Signature.Properties {
		sb.WriteString(nestedValue(event.Data, property))
	}
	sb.WriteString(event.Timestamp.String())
	sb.WriteString(c.EventsSecret)
	sum := sha256.Sum256([]byte(sb.String()))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(checksum))) != 1 {
		return nil, ErrInvalidSignature
	}

	out := &WebhookEvent{EventType: event.Event}
	if event.Event != "transaction.updated" {
		return out, nil
	}
	tx, _ := event.Data["transaction"].(map[string]interface{})
	if tx == nil {
		return nil, fmt.Errorf("wompi webhook is missing transaction data")
	}
	out.Reference = parseStringish(tx["reference"])
	out.TransactionID = parseStringish(tx["id"])
	out.State = wompiState(parseStringish(tx["status"]))
	return out, nil
}

func (a *WompiAdapter) acceptanceToken(ctx context.Context, c *entity.WompiCredentials) (string, error) {
	_, body, err := doJSON(ctx, a.client, http.MethodGet, a.baseURL(c)+"/merchants/"+url.PathEscape(c.PublicKey), "", nil)
	if err != nil {
		return "", errors.New(connectionError("Wompi", err))
	}
	var resp struct {
		Data *struct {
			PresignedAcceptance *struct {
				AcceptanceToken string `json:"acceptance_token"`
			} `json:"presigned_acceptance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.New("invalid Wompi response")
	}
	if resp.Data == nil || resp.Data.PresignedAcceptance == nil || resp.Data.PresignedAcceptance.AcceptanceToken == "" {
		return "", errors.New("could not get Wompi acceptance token")
	}
	return resp.Data.PresignedAcceptance.AcceptanceToken, nil
}

func (a *WompiAdapter) baseURL(c *entity.WompiCredentials) string {
	if c.IsProduction {
		return strings.TrimRight(a.cfg.ProductionURL, "/")
	}
	return strings.TrimRight(a.cfg.SandboxURL, "/")
}

func wompiState(status string) State {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "APPROVED":
		return StateApproved
	case "PENDING":
		return StatePending
	case "DECLINED", "VOIDED":
		return StateDeclined
	default:
		return StateError
	}
}

// nestedValue resolves a dotted path like "transaction.amount_in_cents" against data.
func nestedValue(data map[string]interface{}, path string) string {
	var current interface{} = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = m[part]
	}
	switch v := current.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	default:
		return parseStringish(v)
	}
}
