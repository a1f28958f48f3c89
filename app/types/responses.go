package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ChargeSummary struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Anomalies  int `json:"anomalies"`
}

type CycleResponse struct {
	Success             bool          `json:"success"`
	SubscriptionCharges ChargeSummary `json:"subscription_charges"`
	MerchantCharges     ChargeSummary `json:"merchant_charges"`
	Errors              []string      `json:"errors,omitempty"`
	Timestamp           string        `json:"timestamp"`
}

type InvoiceView struct {
	Id                   uint64 `json:"id"`
	SubscriptionId       uint64 `json:"subscription_id"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	PlatformFee          int64  `json:"platform_fee"`
	NetAmount            int64  `json:"net_amount"`
	Status               string `json:"status"`
	Gateway              string `json:"gateway"`
	ReferenceCode        string `json:"reference_code,omitempty"`
	GatewayTransactionId string `json:"gateway_transaction_id,omitempty"`
	AttemptCount         int32  `json:"attempt_count"`
	LastError            string `json:"last_error,omitempty"`
	DueDate              string `json:"due_date"`
	NextRetryAt          string `json:"next_retry_at,omitempty"`
	PaidAt               string `json:"paid_at,omitempty"`
	BillingPeriodStart   string `json:"billing_period_start"`
	BillingPeriodEnd     string `json:"billing_period_end"`
}

type SubscriptionView struct {
	Id                 uint64 `json:"id"`
	MerchantId         uint64 `json:"merchant_id"`
	CustomerId         uint64 `json:"customer_id"`
	PlanId             uint64 `json:"plan_id"`
	Status             string `json:"status"`
	CurrentPeriodStart string `json:"current_period_start"`
	CurrentPeriodEnd   string `json:"current_period_end"`
	NextBillingDate    string `json:"next_billing_date"`
	TrialEnd           string `json:"trial_end,omitempty"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	CancelledAt        string `json:"cancelled_at,omitempty"`
	BillingCycleCount  int32  `json:"billing_cycle_count"`
}

type PlanView struct {
	Id            uint64 `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	IntervalCount int32  `json:"interval_count"`
	TrialDays     int32  `json:"trial_days"`
	IsActive      bool   `json:"is_active"`
	IsPublic      bool   `json:"is_public"`
}

type PlanResponse struct {
	Message string    `json:"message"`
	Plan    *PlanView `json:"plan"`
}

type CustomerView struct {
	Id    uint64 `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

type PaymentMethodView struct {
	Id           uint64 `json:"id"`
	Gateway      string `json:"gateway"`
	CardLastFour string `json:"card_last_four,omitempty"`
	CardBrand    string `json:"card_brand,omitempty"`
	CardExpMonth string `json:"card_exp_month,omitempty"`
	CardExpYear  string `json:"card_exp_year,omitempty"`
}

type ChargeSubscriptionResponse struct {
	Outcome string       `json:"outcome"`
	Invoice *InvoiceView `json:"invoice,omitempty"`
}

type ManualChargeResponse struct {
	Success       bool   `json:"success"`
	TransactionId string `json:"transaction_id,omitempty"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	Gateway       string `json:"gateway"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	ReferenceCode string `json:"reference_code"`
	PlatformFee   int64  `json:"platform_fee"`
	NetAmount     int64  `json:"net_amount"`
	Timestamp     string `json:"timestamp"`
}

type WebhookResponse struct {
	Received      bool   `json:"received"`
	Status        string `json:"status"`
	InvoiceId     uint64 `json:"invoice_id,omitempty"`
	InvoiceStatus string `json:"invoice_status,omitempty"`
}

type SubscribeResponse struct {
	Subscription  *SubscriptionView  `json:"subscription"`
	Customer      *CustomerView      `json:"customer"`
	Plan          *PlanView          `json:"plan"`
	PaymentMethod *PaymentMethodView `json:"payment_method"`
}

type ManageSubscriptionResponse struct {
	Message      string            `json:"message"`
	Subscription *SubscriptionView `json:"subscription"`
}

type SubscriptionDetailsResponse struct {
	Subscription  *SubscriptionView  `json:"subscription"`
	Plan          *PlanView          `json:"plan,omitempty"`
	Customer      *CustomerView      `json:"customer,omitempty"`
	PaymentMethod *PaymentMethodView `json:"payment_method,omitempty"`
	Invoices      []*InvoiceView     `json:"invoices"`
}

type PlansResponse struct {
	MerchantId   uint64      `json:"merchant_id"`
	MerchantName string      `json:"merchant_name"`
	Plans        []*PlanView `json:"plans"`
}

type CustomerSubscriptionResponse struct {
	HasSubscription bool              `json:"has_subscription"`
	IsActive        bool              `json:"is_active"`
	IsTrial         bool              `json:"is_trial"`
	IsPastDue       bool              `json:"is_past_due"`
	Subscription    *SubscriptionView `json:"subscription,omitempty"`
	Plan            *PlanView         `json:"plan,omitempty"`
}

type GatewayConfigResponse struct {
	Gateway    string                 `json:"gateway"`
	Configured bool                   `json:"configured"`
	Config     map[string]interface{} `json:"config,omitempty"`
}

type MerchantStatsResponse struct {
	ActiveSubscriptions int    `json:"active_subscriptions"`
	Mrr                 string `json:"mrr"`
	Currency            string `json:"currency"`
	TotalRevenue        int64  `json:"total_revenue"`
	PlatformFees        int64  `json:"platform_fees"`
	NetRevenue          int64  `json:"net_revenue"`
}
