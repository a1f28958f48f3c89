package gateway

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

const (
	payuSandboxURL    = "https://sandbox.api.payulatam.com/payments-api/4.0/service.cgi"
	payuProductionURL = "https://api.payulatam.com/payments-api/4.0/service.cgi"
)

type PayUConfig struct {
	SandboxURL    string
	ProductionURL string
	Language      string
	HTTPTimeout   time.Duration
}

type PayUAdapter struct {
	cfg    PayUConfig
	client *http.Client
}

func NewPayUAdapter(cfg PayUConfig) *PayUAdapter {
	if strings.TrimSpace(cfg.SandboxURL) == "" {
		cfg.SandboxURL = payuSandboxURL
	}
	if strings.TrimSpace(cfg.ProductionURL) == "" {
		cfg.ProductionURL = payuProductionURL
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "es"
	}
	return &PayUAdapter{cfg: cfg, client: newHTTPClient(cfg.HTTPTimeout)}
}

func (a *PayUAdapter) Code() entity.Gateway {
	return entity.GatewayPayU
}

type payuMerchant struct {
	APILogin string `json:"apiLogin"`
	APIKey   string `json:"apiKey"`
}

type payuTransactionResponse struct {
	OrderID         json.Number `json:"orderId"`
	TransactionID   string      `json:"transactionId"`
	State           string      `json:"state"`
	ResponseCode    string      `json:"responseCode"`
	ResponseMessage string      `json:"responseMessage"`
}

type payuResponse struct {
	Code                string                   `json:"code"`
	Error               string                   `json:"error"`
	TransactionResponse *payuTransactionResponse `json:"transactionResponse"`
	CreditCardToken     *struct {
		CreditCardTokenID string `json:"creditCardTokenId"`
		MaskedNumber      string `json:"maskedNumber"`
		PaymentMethod     string `json:"paymentMethod"`
	} `json:"creditCardToken"`
	Result *struct {
		Payload *struct {
			State string `json:"state"`
		} `json:"payload"`
	} `json:"result"`
}

func (a *PayUAdapter) Tokenize(ctx context.Context, creds entity.GatewayCredentials, card *CardData) *TokenResult {
	c, ok := creds.(*entity.PayUCredentials)
	if !ok {
		return &TokenResult{Error: ErrCredentialsMismatch.Error()}
	}
	if card == nil {
		return &TokenResult{Error: "card data is required"}
	}

	payload := map[string]interface{}{
		"language": a.cfg.Language,
		"command":  "CREATE_TOKEN",
		"merchant": payuMerchant{APILogin: c.APILogin, APIKey: c.APIKey},
		"creditCardToken": map[string]interface{}{
			"payerId":              card.PayerID,
			"name":                 card.HolderName,
			"identificationNumber": card.DocumentNumber,
			"paymentMethod":        DetectCardBrand(card.Number),
			"number":               card.Number,
			"expirationDate":       payuExpiration(card.ExpYear, card.ExpMonth),
		},
	}

	_, body, err := doJSON(ctx, a.client, http.MethodPost, a.endpoint(c), "", payload)
	if err != nil {
		return &TokenResult{Error: connectionError("PayU", err)}
	}

	var resp payuResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &TokenResult{Error: "invalid PayU response"}
	}
	if resp.Code != "SUCCESS" || resp.CreditCardToken == nil {
		return &TokenResult{Error: firstNonEmpty(resp.Error, "PayU tokenization failed")}
	}

	return &TokenResult{
		Success:  true,
		Token:    resp.CreditCardToken.CreditCardTokenID,
		Brand:    firstNonEmpty(resp.CreditCardToken.PaymentMethod, DetectCardBrand(card.Number)),
		LastFour: lastFour(firstNonEmpty(resp.CreditCardToken.MaskedNumber, card.Number)),
	}
}

func (a *PayUAdapter) Charge(ctx context.Context, creds entity.GatewayCredentials, input *ChargeInput) *ChargeOutcome {
	c, ok := creds.(*entity.PayUCredentials)
	if !ok {
		return failedOutcome(StateError, ErrCredentialsMismatch.Error(), nil)
	}

	amount := strconv.FormatInt(input.Amount, 10)
	accountID, _ := strconv.ParseInt(c.AccountID, 10, 64)

	payload := map[string]interface{}{
		"language": a.cfg.Language,
		"command":  "SUBMIT_TRANSACTION",
		"merchant": payuMerchant{APILogin: c.APILogin, APIKey: c.APIKey},
		"transaction": map[string]interface{}{
			"order": map[string]interface{}{
				"accountId":     accountID,
				"referenceCode": input.ReferenceCode,
				"description":   input.Description,
				"language":      a.cfg.Language,
				"signature":     payuSignature(c.APIKey, c.MerchantID, input.ReferenceCode, amount, input.Currency),
				"additionalValues": map[string]interface{}{
					"TX_VALUE": map[string]interface{}{
						"value":    input.Amount,
						"currency": input.Currency,
					},
				},
				"buyer": map[string]interface{}{
					"merchantBuyerId": input.PayerID,
					"fullName":        input.PayerName,
					"emailAddress":    input.PayerEmail,
					"contactPhone":    input.PayerPhone,
				},
			},
			"payer": map[string]interface{}{
				"merchantPayerId": input.PayerID,
				"fullName":        input.PayerName,
				"emailAddress":    input.PayerEmail,
				"contactPhone":    input.PayerPhone,
			},
			"creditCardTokenId": input.Token,
			"creditCard": map[string]interface{}{
				"processWithoutCvv2": true,
			},
			"type":           "AUTHORIZATION_AND_CAPTURE",
			"paymentCountry": "CO",
		},
		"test": !c.IsProduction,
	}

	_, body, err := doJSON(ctx, a.client, http.MethodPost, a.endpoint(c), "", payload)
	if err != nil {
		return failedOutcome(StateError, connectionError("PayU", err), nil)
	}

	var resp payuResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return failedOutcome(StateError, "invalid PayU response", body)
	}
	if resp.Code != "SUCCESS" || resp.TransactionResponse == nil {
		return failedOutcome(StateError, firstNonEmpty(resp.Error, "PayU transaction failed"), body)
	}

	tx := resp.TransactionResponse
	state := payuTransactionState(tx.State)
	outcome := &ChargeOutcome{
		Success:       state == StateApproved,
		TransactionID: tx.TransactionID,
		State:         state,
		RawResponse:   rawJSON(body),
	}
	if !outcome.Success {
		outcome.ErrorMessage = firstNonEmpty(tx.ResponseMessage, tx.ResponseCode, "PayU transaction "+strings.ToLower(tx.State))
	}
	return outcome
}

func (a *PayUAdapter) TransactionStatus(ctx context.Context, creds entity.GatewayCredentials, transactionID string) (State, error) {
	c, ok := creds.(*entity.PayUCredentials)
	if !ok {
		return "", ErrCredentialsMismatch
	}

	payload := map[string]interface{}{
		"language": a.cfg.Language,
		"command":  "TRANSACTION_RESPONSE_DETAIL",
		"merchant": payuMerchant{APILogin: c.APILogin, APIKey: c.APIKey},
		"details": map[string]interface{}{
			"transactionId": transactionID,
		},
		"test": !c.IsProduction,
	}

	status, body, err := doJSON(ctx, a.client, http.MethodPost, a.endpoint(c), "", payload)
	if err != nil {
		return "", err
	}
	var resp payuResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("payu status query failed: status=%d", status)
	}
	if resp.Code != "SUCCESS" || resp.Result == nil || resp.Result.Payload == nil {
		return "", fmt.Errorf("payu status query failed: %s", firstNonEmpty(resp.Error, resp.Code))
	}
	return payuTransactionState(resp.Result.Payload.State), nil
}

type payuOrderDetail struct {
	Code   string `json:"code"`
	Error  string `json:"error"`
	Result *struct {
		Payload []struct {
			ReferenceCode string `json:"referenceCode"`
			Transactions  []struct {
				ID                  string `json:"id"`
				TransactionResponse *struct {
					State string `json:"state"`
				} `json:"transactionResponse"`
			} `json:"transactions"`
		} `json:"payload"`
	} `json:"result"`
}

// TransactionByReference reads the orders PayU holds for a reference code and reports the
// most recent transaction.
func (a *PayUAdapter) TransactionByReference(ctx context.Context, creds entity.GatewayCredentials, reference string) (*TransactionLookup, error) {
	c, ok := creds.(*entity.PayUCredentials)
	if !ok {
		return nil, ErrCredentialsMismatch
	}

	payload := map[string]interface{}{
		"language": a.cfg.Language,
		"command":  "ORDER_DETAIL_BY_REFERENCE_CODE",
		"merchant": payuMerchant{APILogin: c.APILogin, APIKey: c.APIKey},
		"details": map[string]interface{}{
			"referenceCode": reference,
		},
		"test": !c.IsProduction,
	}

	status, body, err := doJSON(ctx, a.client, http.MethodPost, a.endpoint(c), "", payload)
	if err != nil {
		return nil, err
	}
	var resp payuOrderDetail
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("payu reference query failed: status=%d", status)
	}
	if resp.Code != "SUCCESS" {
		return nil, fmt.Errorf("payu reference query failed: %s", firstNonEmpty(resp.Error, resp.Code))
	}
	if resp.Result == nil {
		return nil, ErrTransactionNotFound
	}

	for i := len(resp.Result.Payload) - 1; i >= 0; i-- {
		order := resp.Result.Payload[i]
		for j := len(order.Transactions) - 1; j >= 0; j-- {
			tx := order.Transactions[j]
			if tx.TransactionResponse == nil {
				continue
			}
			return &TransactionLookup{
				TransactionID: tx.ID,
				State:         payuTransactionState(tx.TransactionResponse.State),
			}, nil
		}
	}
	return nil, ErrTransactionNotFound
}

// ParseWebhook handles PayU confirmation pages, which arrive form-encoded (or as JSON).
func (a *PayUAdapter) ParseWebhook(_ context.Context, creds entity.GatewayCredentials, req *WebhookRequest) (*WebhookEvent, error) {
	c, ok := creds.(*entity.PayUCredentials)
	if !ok {
		return nil, ErrCredentialsMismatch
	}

	fields, err := payuWebhookFields(req.Payload)
	if err != nil {
		return nil, err
	}

	reference := fields.Get("reference_sale")
	if reference == "" {
		return nil, fmt.Errorf("payu webhook is missing reference_sale")
	}

	value, err := payuNotificationValue(fields.Get("value"))
	if err != nil {
		return nil, err
	}
	merchantID := firstNonEmpty(fields.Get("merchant_id"), c.MerchantID)
	expected := md5Hex(strings.Join([]string{c.APIKey, merchantID, reference, value, fields.Get("currency"), fields.Get("state_pol")}, "~"))
	given := strings.ToLower(strings.TrimSpace(fields.Get("sign")))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(given)) != 1 {
		return nil, ErrInvalidSignature
	}

	return &WebhookEvent{
		EventType:     "confirmation",
		Reference:     reference,
		TransactionID: fields.Get("transaction_id"),
		State:         payuPolState(fields.Get("state_pol")),
	}, nil
}

func (a *PayUAdapter) endpoint(c *entity.PayUCredentials) string {
	if c.IsProduction {
		return a.cfg.ProductionURL
	}
	return a.cfg.SandboxURL
}

func payuWebhookFields(payload []byte) (url.Values, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var raw map[string]interface{}
		decoder := json.NewDecoder(strings.NewReader(trimmed))
		decoder.UseNumber()
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid payu webhook payload: %w", err)
		}
		values := url.Values{}
		for k, v := range raw {
			values.Set(k, parseStringish(v))
		}
		return values, nil
	}
	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid payu webhook payload: %w", err)
	}
	return values, nil
}

// payuNotificationValue formats the value the way PayU signs it: one decimal when the
// second decimal is zero, two otherwise.
func payuNotificationValue(raw string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid payu webhook value %q", raw)
	}
	formatted := d.StringFixed(2)
	if strings.HasSuffix(formatted, "0") {
		return d.StringFixed(1), nil
	}
	return formatted, nil
}

func payuSignature(apiKey, merchantID, reference, amount, currency string) string {
	return md5Hex(strings.Join([]string{apiKey, merchantID, reference, amount, currency}, "~"))
}

func payuTransactionState(state string) State {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "APPROVED":
		return StateApproved
	case "PENDING":
		return StatePending
	case "DECLINED", "EXPIRED":
		return StateDeclined
	default:
		return StateError
	}
}

func payuPolState(statePol string) State {
	switch strings.TrimSpace(statePol) {
	case "4":
		return StateApproved
	case "7":
		return StatePending
	case "5", "6":
		return StateDeclined
	default:
		return StateError
	}
}

func payuExpiration(year, month string) string {
	year = strings.TrimSpace(year)
	month = strings.TrimSpace(month)
	if len(year) == 2 {
		year = "20" + year
	}
	if len(month) == 1 {
		month = "0" + month
	}
	return year + "/" + month
}

// DetectCardBrand maps a PAN prefix to the PayU payment method name.
func DetectCardBrand(number string) string {
	n := strings.ReplaceAll(strings.TrimSpace(number), " ", "")
	switch {
	case strings.HasPrefix(n, "4"):
		return "VISA"
	case len(n) >= 2 && n[0] == '5' && n[1] >= '1' && n[1] <= '5':
		return "MASTERCARD"
	case strings.HasPrefix(n, "34"), strings.HasPrefix(n, "37"):
		return "AMEX"
	case strings.HasPrefix(n, "6011"), strings.HasPrefix(n, "65"):
		return "DISCOVER"
	case strings.HasPrefix(n, "35"), strings.HasPrefix(n, "2131"), strings.HasPrefix(n, "1800"):
		return "JCB"
	case strings.HasPrefix(n, "36"), strings.HasPrefix(n, "38"), strings.HasPrefix(n, "300"), strings.HasPrefix(n, "305"):
		return "DINERS"
	default:
		return "VISA"
	}
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func lastFour(number string) string {
	n := strings.ReplaceAll(strings.TrimSpace(number), " ", "")
	if len(n) <= 4 {
		return n
	}
	return n[len(n)-4:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
