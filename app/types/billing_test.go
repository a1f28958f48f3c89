package types

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewRunBillingCycleRequestFromContextReadsCredentials(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/cron/billing", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer s3cret ")
	req.Header.Set("X-Cron", "1")
	ctx := e.NewContext(req, httptest.NewRecorder())

	parsed := NewRunBillingCycleRequestFromContext(ctx)
	if parsed.GetBearerToken() != "s3cret" {
		t.Fatalf("expected bearer token, got %q", parsed.GetBearerToken())
	}
	if !parsed.GetCronHeader() || parsed.GetTrigger() != "cron" {
		t.Fatalf("expected cron trigger, got %+v", parsed)
	}

	plain := NewRunBillingCycleRequestFromContext(e.NewContext(httptest.NewRequest("GET", "/cron/billing", nil), httptest.NewRecorder()))
	if plain.GetBearerToken() != "" || plain.GetCronHeader() || plain.GetTrigger() != "http" {
		t.Fatalf("unexpected request %+v", plain)
	}
}

func TestNewManualChargeRequestFromContextNormalizes(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/billing/charges", bytes.NewBufferString(`{"merchant_id":3,"gateway":" Wompi ","token":" tok_1 ","amount":50000,"currency":"cop"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())

	parsed, err := NewManualChargeRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetGateway() != "wompi" || parsed.GetToken() != "tok_1" || parsed.GetCurrency() != "COP" {
		t.Fatalf("unexpected normalization %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestManualChargeValidate(t *testing.T) {
	cases := []struct {
		name string
		req  ManualChargeRequest
	}{
		{name: "missing merchant", req: ManualChargeRequest{Token: "t", Amount: 1}},
		{name: "missing token", req: ManualChargeRequest{MerchantId: 1, Amount: 1}},
		{name: "zero amount", req: ManualChargeRequest{MerchantId: 1, Token: "t"}},
		{name: "bad currency", req: ManualChargeRequest{MerchantId: 1, Token: "t", Amount: 1, Currency: "PESOS"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.req.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewWebhookRequestFromContextKeepsRawBody(t *testing.T) {
	e := echo.New()
	body := `{"event":"transaction.updated","data":{"transaction":{"id":"1"}}}`
	req := httptest.NewRequest("POST", "/webhooks/wompi/gratu", bytes.NewBufferString(body))
	req.Header.Set("X-Event-Checksum", "abc")
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("gateway", "merchant")
	ctx.SetParamValues("WOMPI", "gratu")

	parsed, err := NewWebhookRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetGateway() != "wompi" || parsed.GetMerchant() != "gratu" {
		t.Fatalf("unexpected route params %+v", parsed)
	}
	if string(parsed.GetPayload()) != body {
		t.Fatalf("payload must be untouched, got %s", parsed.GetPayload())
	}
	if parsed.GetHeaders().Get("X-Event-Checksum") != "abc" {
		t.Fatalf("expected headers copied")
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid webhook, got %v", err)
	}

	empty := &WebhookRequest{Gateway: "wompi", Merchant: "gratu"}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected payload validation error")
	}
}

func TestNewSubscribeRequestFromContextAndValidate(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/merchants/gratu/subscriptions", bytes.NewBufferString(`{"plan_id":4,"customer_email":" Ana@Example.com ","customer_name":"Ana","card_number":"4242 4242 4242 4242","card_exp_month":"08","card_exp_year":"29","card_cvc":"123"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("merchant")
	ctx.SetParamValues("gratu")

	parsed, err := NewSubscribeRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetMerchantSlug() != "gratu" || parsed.GetCustomerEmail() != "ana@example.com" {
		t.Fatalf("unexpected request %+v", parsed)
	}
	if parsed.GetCardNumber() != "4242424242424242" {
		t.Fatalf("expected spaces stripped from card number, got %q", parsed.GetCardNumber())
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	parsed.CardCvc = ""
	if err := parsed.Validate(); err == nil {
		t.Fatal("expected cvc validation error")
	}
}

func TestNewManageSubscriptionRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/merchants/gratu/subscriptions/9/manage", bytes.NewBufferString(`{"action":" Change_Plan "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("merchant", "id")
	ctx.SetParamValues("gratu", "9")

	parsed, err := NewManageSubscriptionRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetSubscriptionId() != 9 || parsed.GetAction() != "change_plan" {
		t.Fatalf("unexpected request %+v", parsed)
	}
	if err := parsed.Validate(); err == nil {
		t.Fatal("expected plan_id validation error")
	}
	parsed.PlanId = 2
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	parsed.Action = "refund"
	if err := parsed.Validate(); err == nil {
		t.Fatal("expected action validation error")
	}
}

func TestNewSubscriptionRequestFromContextRejectsBadID(t *testing.T) {
	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest("GET", "/", nil), httptest.NewRecorder())
	ctx.SetParamNames("merchant", "id")
	ctx.SetParamValues("gratu", "abc")

	if _, err := NewSubscriptionRequestFromContext(ctx); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCustomerSubscriptionRequestReadsQuery(t *testing.T) {
	e := echo.New()
	ctx := e.NewContext(httptest.NewRequest("GET", "/merchants/gratu/customers/subscription?email=ANA@example.com", nil), httptest.NewRecorder())
	ctx.SetParamNames("merchant")
	ctx.SetParamValues("gratu")

	parsed := NewCustomerSubscriptionRequestFromContext(ctx)
	if parsed.GetEmail() != "ana@example.com" {
		t.Fatalf("unexpected email %q", parsed.GetEmail())
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if err := (&CustomerSubscriptionRequest{MerchantSlug: "gratu"}).Validate(); err == nil {
		t.Fatal("expected email validation error")
	}
}

func TestGatewayConfigValidate(t *testing.T) {
	req := &GatewayConfigRequest{MerchantSlug: "gratu", Gateway: "wompi"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected config validation error")
	}
	req.Config = map[string]interface{}{"publicKey": "pub"}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewUpdatePlanRequestKeepsOmittedFieldsNil(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("PATCH", "/merchants/gratu/plans/7", bytes.NewBufferString(`{"price":95000,"is_active":false}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("merchant", "id")
	ctx.SetParamValues(" gratu ", "7")

	parsed, err := NewUpdatePlanRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetMerchantSlug() != "gratu" || parsed.GetPlanId() != 7 {
		t.Fatalf("unexpected address %+v", parsed)
	}
	if parsed.GetPrice() == nil || *parsed.GetPrice() != 95000 || parsed.GetIsActive() == nil || *parsed.GetIsActive() {
		t.Fatalf("expected price and is_active set, got %+v", parsed)
	}
	if parsed.GetName() != nil || parsed.GetInterval() != nil || parsed.GetTrialDays() != nil {
		t.Fatalf("omitted fields must stay nil, got %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	negative := int64(-1)
	if err := (&UpdatePlanRequest{MerchantSlug: "gratu", PlanId: 7, Price: &negative}).Validate(); err == nil {
		t.Fatal("expected negative price rejected")
	}
	if err := (&UpdatePlanRequest{MerchantSlug: "gratu", PlanId: 7}).Validate(); err == nil {
		t.Fatal("expected empty patch rejected")
	}
}

func TestCreatePlanRequestValidate(t *testing.T) {
	valid := CreatePlanRequest{MerchantSlug: "gratu", Name: "Pro", Price: 1000, Interval: "monthly"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	missingInterval := valid
	missingInterval.Interval = ""
	negativeTrial := valid
	negativeTrial.TrialDays = -3
	for _, req := range []CreatePlanRequest{missingInterval, negativeTrial, {MerchantSlug: "gratu", Name: "Pro", Interval: "monthly"}} {
		if err := req.Validate(); err == nil {
			t.Fatalf("expected error for %+v", req)
		}
	}
}
