package types

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const maxWebhookBodyBytes = 1 << 20

var validActions = map[string]bool{
	"pause":              true,
	"resume":             true,
	"cancel":             true,
	"cancel_immediately": true,
	"change_plan":        true,
}

// RunBillingCycleRequest carries the scheduler's credentials. The controller decides whether
// they are acceptable.
type RunBillingCycleRequest struct {
	BearerToken string `json:"-"`
	CronHeader  bool   `json:"-"`
	Trigger     string `json:"trigger,omitempty"`
}

func NewRunBillingCycleRequestFromContext(ctx echo.Context) *RunBillingCycleRequest {
	req := &RunBillingCycleRequest{Trigger: "http"}
	auth := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		req.BearerToken = strings.TrimSpace(auth[7:])
	}
	if strings.TrimSpace(ctx.Request().Header.Get("X-Cron")) == "1" {
		req.CronHeader = true
		req.Trigger = "cron"
	}
	return req
}

func (r *RunBillingCycleRequest) GetBearerToken() string { return r.BearerToken }
func (r *RunBillingCycleRequest) GetCronHeader() bool    { return r.CronHeader }
func (r *RunBillingCycleRequest) GetTrigger() string     { return r.Trigger }

type ChargeSubscriptionRequest struct {
	SubscriptionId uint64 `json:"subscription_id"`
}

func NewChargeSubscriptionRequestFromContext(ctx echo.Context) (*ChargeSubscriptionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &ChargeSubscriptionRequest{SubscriptionId: id}, nil
}

func (r *ChargeSubscriptionRequest) GetSubscriptionId() uint64 { return r.SubscriptionId }

func (r *ChargeSubscriptionRequest) Validate() error {
	if r.GetSubscriptionId() == 0 {
		return errors.New("invalid subscription id")
	}
	return nil
}

type ManualChargeRequest struct {
	SubscriptionId uint64 `json:"subscription_id"`
	MerchantId     uint64 `json:"merchant_id"`
	Gateway        string `json:"gateway"`
	Token          string `json:"token"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	ApiKey         string `json:"api_key"`
	PayerEmail     string `json:"payer_email"`
	PayerName      string `json:"payer_name"`
	PayerPhone     string `json:"payer_phone"`
	Description    string `json:"description"`
}

func NewManualChargeRequestFromContext(ctx echo.Context) (*ManualChargeRequest, error) {
	var body ManualChargeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.normalize()
	return &body, nil
}

func (r *ManualChargeRequest) normalize() {
	r.Gateway = strings.ToLower(strings.TrimSpace(r.Gateway))
	r.Token = strings.TrimSpace(r.Token)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.ApiKey = strings.TrimSpace(r.ApiKey)
	r.PayerEmail = strings.TrimSpace(r.PayerEmail)
	r.PayerName = strings.TrimSpace(r.PayerName)
	r.PayerPhone = strings.TrimSpace(r.PayerPhone)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *ManualChargeRequest) Validate() error {
	if r.GetMerchantId() == 0 {
		return errors.New("merchant_id is required")
	}
	if r.GetToken() == "" {
		return errors.New("token is required")
	}
	if r.GetAmount() <= 0 {
		return errors.New("amount must be > 0")
	}
	if r.GetCurrency() != "" && len(r.GetCurrency()) != 3 {
		return errors.New("currency must be 3 letters")
	}
	return nil
}

func (r *ManualChargeRequest) GetSubscriptionId() uint64 { return r.SubscriptionId }
func (r *ManualChargeRequest) GetMerchantId() uint64     { return r.MerchantId }
func (r *ManualChargeRequest) GetGateway() string        { return r.Gateway }
func (r *ManualChargeRequest) GetToken() string          { return r.Token }
func (r *ManualChargeRequest) GetAmount() int64          { return r.Amount }
func (r *ManualChargeRequest) GetCurrency() string       { return r.Currency }
func (r *ManualChargeRequest) GetApiKey() string         { return r.ApiKey }
func (r *ManualChargeRequest) GetPayerEmail() string     { return r.PayerEmail }
func (r *ManualChargeRequest) GetPayerName() string      { return r.PayerName }
func (r *ManualChargeRequest) GetPayerPhone() string     { return r.PayerPhone }
func (r *ManualChargeRequest) GetDescription() string    { return r.Description }

// WebhookRequest is a raw gateway notification. The body is kept byte for byte because some
// gateways sign it.
type WebhookRequest struct {
	Gateway  string
	Merchant string
	Payload  []byte
	Headers  http.Header
}

func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, err
	}
	return &WebhookRequest{
		Gateway:  strings.ToLower(strings.TrimSpace(ctx.Param("gateway"))),
		Merchant: strings.TrimSpace(ctx.Param("merchant")),
		Payload:  body,
		Headers:  ctx.Request().Header.Clone(),
	}, nil
}

func (r *WebhookRequest) Validate() error {
	if r.GetGateway() == "" {
		return errors.New("gateway is required")
	}
	if r.GetMerchant() == "" {
		return errors.New("merchant is required")
	}
	if len(r.GetPayload()) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

func (r *WebhookRequest) GetGateway() string      { return r.Gateway }
func (r *WebhookRequest) GetMerchant() string     { return r.Merchant }
func (r *WebhookRequest) GetPayload() []byte      { return r.Payload }
func (r *WebhookRequest) GetHeaders() http.Header { return r.Headers }

type SubscribeRequest struct {
	MerchantSlug   string `json:"merchant_slug"`
	PlanId         uint64 `json:"plan_id"`
	CustomerEmail  string `json:"customer_email"`
	CustomerName   string `json:"customer_name"`
	CustomerPhone  string `json:"customer_phone"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	CardNumber     string `json:"card_number"`
	CardExpMonth   string `json:"card_exp_month"`
	CardExpYear    string `json:"card_exp_year"`
	CardCvc        string `json:"card_cvc"`
	CardHolderName string `json:"card_holder_name"`
}

func NewSubscribeRequestFromContext(ctx echo.Context) (*SubscribeRequest, error) {
	var body SubscribeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.MerchantSlug = strings.TrimSpace(ctx.Param("merchant"))
	body.CustomerEmail = strings.ToLower(strings.TrimSpace(body.CustomerEmail))
	body.CustomerName = strings.TrimSpace(body.CustomerName)
	body.CardNumber = strings.ReplaceAll(strings.TrimSpace(body.CardNumber), " ", "")
	return &body, nil
}

func (r *SubscribeRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	if r.GetPlanId() == 0 {
		return errors.New("plan_id is required")
	}
	if r.GetCustomerEmail() == "" || !strings.Contains(r.GetCustomerEmail(), "@") {
		return errors.New("customer_email is invalid")
	}
	if r.GetCustomerName() == "" {
		return errors.New("customer_name is required")
	}
	if len(r.GetCardNumber()) < 12 {
		return errors.New("card_number is invalid")
	}
	if r.GetCardExpMonth() == "" || r.GetCardExpYear() == "" || r.GetCardCvc() == "" {
		return errors.New("card expiration and cvc are required")
	}
	return nil
}

func (r *SubscribeRequest) GetMerchantSlug() string   { return r.MerchantSlug }
func (r *SubscribeRequest) GetPlanId() uint64         { return r.PlanId }
func (r *SubscribeRequest) GetCustomerEmail() string  { return r.CustomerEmail }
func (r *SubscribeRequest) GetCustomerName() string   { return r.CustomerName }
func (r *SubscribeRequest) GetCustomerPhone() string  { return r.CustomerPhone }
func (r *SubscribeRequest) GetDocumentType() string   { return r.DocumentType }
func (r *SubscribeRequest) GetDocumentNumber() string { return r.DocumentNumber }
func (r *SubscribeRequest) GetCardNumber() string     { return r.CardNumber }
func (r *SubscribeRequest) GetCardExpMonth() string   { return r.CardExpMonth }
func (r *SubscribeRequest) GetCardExpYear() string    { return r.CardExpYear }
func (r *SubscribeRequest) GetCardCvc() string        { return r.CardCvc }
func (r *SubscribeRequest) GetCardHolderName() string { return r.CardHolderName }

type SubscriptionRequest struct {
	MerchantSlug   string `json:"merchant_slug"`
	SubscriptionId uint64 `json:"subscription_id"`
}

func NewSubscriptionRequestFromContext(ctx echo.Context) (*SubscriptionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &SubscriptionRequest{
		MerchantSlug:   strings.TrimSpace(ctx.Param("merchant")),
		SubscriptionId: id,
	}, nil
}

func (r *SubscriptionRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	if r.GetSubscriptionId() == 0 {
		return errors.New("invalid subscription id")
	}
	return nil
}

func (r *SubscriptionRequest) GetMerchantSlug() string   { return r.MerchantSlug }
func (r *SubscriptionRequest) GetSubscriptionId() uint64 { return r.SubscriptionId }

type ManageSubscriptionRequest struct {
	MerchantSlug   string `json:"merchant_slug"`
	SubscriptionId uint64 `json:"subscription_id"`
	Action         string `json:"action"`
	PlanId         uint64 `json:"plan_id"`
	Reason         string `json:"reason"`
}

func NewManageSubscriptionRequestFromContext(ctx echo.Context) (*ManageSubscriptionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body ManageSubscriptionRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.MerchantSlug = strings.TrimSpace(ctx.Param("merchant"))
	body.SubscriptionId = id
	body.Action = strings.ToLower(strings.TrimSpace(body.Action))
	body.Reason = strings.TrimSpace(body.Reason)
	return &body, nil
}

func (r *ManageSubscriptionRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	if r.GetSubscriptionId() == 0 {
		return errors.New("invalid subscription id")
	}
	if !validActions[strings.ToLower(strings.TrimSpace(r.GetAction()))] {
		return errors.New("action must be pause, resume, cancel, cancel_immediately, or change_plan")
	}
	if r.GetAction() == "change_plan" && r.GetPlanId() == 0 {
		return errors.New("plan_id is required to change plan")
	}
	return nil
}

func (r *ManageSubscriptionRequest) GetMerchantSlug() string   { return r.MerchantSlug }
func (r *ManageSubscriptionRequest) GetSubscriptionId() uint64 { return r.SubscriptionId }
func (r *ManageSubscriptionRequest) GetAction() string         { return r.Action }
func (r *ManageSubscriptionRequest) GetPlanId() uint64         { return r.PlanId }
func (r *ManageSubscriptionRequest) GetReason() string         { return r.Reason }

type CustomerSubscriptionRequest struct {
	MerchantSlug string `json:"merchant_slug"`
	Email        string `json:"email"`
}

func NewCustomerSubscriptionRequestFromContext(ctx echo.Context) *CustomerSubscriptionRequest {
	return &CustomerSubscriptionRequest{
		MerchantSlug: strings.TrimSpace(ctx.Param("merchant")),
		Email:        strings.ToLower(strings.TrimSpace(ctx.QueryParam("email"))),
	}
}

func (r *CustomerSubscriptionRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	if r.GetEmail() == "" {
		return errors.New("email is required")
	}
	return nil
}

func (r *CustomerSubscriptionRequest) GetMerchantSlug() string { return r.MerchantSlug }
func (r *CustomerSubscriptionRequest) GetEmail() string        { return r.Email }

// MerchantRequest addresses a merchant by slug or numeric id.
type MerchantRequest struct {
	MerchantSlug string `json:"merchant_slug"`
}

func NewMerchantRequestFromContext(ctx echo.Context) *MerchantRequest {
	return &MerchantRequest{MerchantSlug: strings.TrimSpace(ctx.Param("merchant"))}
}

func (r *MerchantRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	return nil
}

func (r *MerchantRequest) GetMerchantSlug() string { return r.MerchantSlug }

type GatewayConfigRequest struct {
	MerchantSlug string                 `json:"merchant_slug"`
	Gateway      string                 `json:"gateway"`
	Config       map[string]interface{} `json:"config"`
}

func NewGatewayConfigRequestFromContext(ctx echo.Context) (*GatewayConfigRequest, error) {
	var body GatewayConfigRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.MerchantSlug = strings.TrimSpace(ctx.Param("merchant"))
	body.Gateway = strings.ToLower(strings.TrimSpace(body.Gateway))
	return &body, nil
}

func (r *GatewayConfigRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	if r.GetGateway() == "" {
		return errors.New("gateway is required")
	}
	if len(r.GetConfig()) == 0 {
		return errors.New("config is required")
	}
	return nil
}

func (r *GatewayConfigRequest) GetMerchantSlug() string           { return r.MerchantSlug }
func (r *GatewayConfigRequest) GetGateway() string                { return r.Gateway }
func (r *GatewayConfigRequest) GetConfig() map[string]interface{} { return r.Config }

type CreatePlanRequest struct {
	MerchantSlug  string `json:"merchant_slug"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	IntervalCount int32  `json:"interval_count"`
	TrialDays     int32  `json:"trial_days"`
	IsPublic      *bool  `json:"is_public"`
}

func NewCreatePlanRequestFromContext(ctx echo.Context) (*CreatePlanRequest, error) {
	var body CreatePlanRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.MerchantSlug = strings.TrimSpace(ctx.Param("merchant"))
	body.Name = strings.TrimSpace(body.Name)
	body.Interval = strings.ToLower(strings.TrimSpace(body.Interval))
	return &body, nil
}

func (r *CreatePlanRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	if r.GetName() == "" {
		return errors.New("name is required")
	}
	if r.GetPrice() <= 0 {
		return errors.New("price must be positive")
	}
	if r.GetInterval() == "" {
		return errors.New("interval is required")
	}
	if r.GetIntervalCount() < 0 || r.GetTrialDays() < 0 {
		return errors.New("interval_count and trial_days cannot be negative")
	}
	return nil
}

func (r *CreatePlanRequest) GetMerchantSlug() string { return r.MerchantSlug }
func (r *CreatePlanRequest) GetName() string         { return r.Name }
func (r *CreatePlanRequest) GetDescription() string  { return r.Description }
func (r *CreatePlanRequest) GetPrice() int64         { return r.Price }
func (r *CreatePlanRequest) GetCurrency() string     { return r.Currency }
func (r *CreatePlanRequest) GetInterval() string     { return r.Interval }
func (r *CreatePlanRequest) GetIntervalCount() int32 { return r.IntervalCount }
func (r *CreatePlanRequest) GetTrialDays() int32     { return r.TrialDays }
func (r *CreatePlanRequest) GetIsPublic() *bool      { return r.IsPublic }

// UpdatePlanRequest is a partial edit; omitted JSON fields stay nil and are left unchanged.
type UpdatePlanRequest struct {
	MerchantSlug  string  `json:"merchant_slug"`
	PlanId        uint64  `json:"plan_id"`
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Price         *int64  `json:"price"`
	Currency      *string `json:"currency"`
	Interval      *string `json:"interval"`
	IntervalCount *int32  `json:"interval_count"`
	TrialDays     *int32  `json:"trial_days"`
	IsPublic      *bool   `json:"is_public"`
	IsActive      *bool   `json:"is_active"`
}

func NewUpdatePlanRequestFromContext(ctx echo.Context) (*UpdatePlanRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body UpdatePlanRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.MerchantSlug = strings.TrimSpace(ctx.Param("merchant"))
	body.PlanId = id
	return &body, nil
}

func (r *UpdatePlanRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	if r.GetPlanId() == 0 {
		return errors.New("invalid plan id")
	}
	if r.Name == nil && r.Description == nil && r.Price == nil && r.Currency == nil && r.Interval == nil &&
		r.IntervalCount == nil && r.TrialDays == nil && r.IsPublic == nil && r.IsActive == nil {
		return errors.New("no fields to update")
	}
	if r.Price != nil && *r.Price <= 0 {
		return errors.New("price must be positive")
	}
	return nil
}

func (r *UpdatePlanRequest) GetMerchantSlug() string  { return r.MerchantSlug }
func (r *UpdatePlanRequest) GetPlanId() uint64        { return r.PlanId }
func (r *UpdatePlanRequest) GetName() *string         { return r.Name }
func (r *UpdatePlanRequest) GetDescription() *string  { return r.Description }
func (r *UpdatePlanRequest) GetPrice() *int64         { return r.Price }
func (r *UpdatePlanRequest) GetCurrency() *string     { return r.Currency }
func (r *UpdatePlanRequest) GetInterval() *string     { return r.Interval }
func (r *UpdatePlanRequest) GetIntervalCount() *int32 { return r.IntervalCount }
func (r *UpdatePlanRequest) GetTrialDays() *int32     { return r.TrialDays }
func (r *UpdatePlanRequest) GetIsPublic() *bool       { return r.IsPublic }
func (r *UpdatePlanRequest) GetIsActive() *bool       { return r.IsActive }

type PlanRequest struct {
	MerchantSlug string `json:"merchant_slug"`
	PlanId       uint64 `json:"plan_id"`
}

func NewPlanRequestFromContext(ctx echo.Context) (*PlanRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &PlanRequest{
		MerchantSlug: strings.TrimSpace(ctx.Param("merchant")),
		PlanId:       id,
	}, nil
}

func (r *PlanRequest) Validate() error {
	if r.GetMerchantSlug() == "" {
		return errors.New("merchant is required")
	}
	if r.GetPlanId() == 0 {
		return errors.New("invalid plan id")
	}
	return nil
}

func (r *PlanRequest) GetMerchantSlug() string { return r.MerchantSlug }
func (r *PlanRequest) GetPlanId() uint64       { return r.PlanId }
