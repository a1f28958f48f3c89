package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

func signMercadoPago(secret, dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte("id:" + dataID + ";request-id:" + requestID + ";ts:" + ts + ";"))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestMercadoPagoChargeNotImplemented(t *testing.T) {
	adapter := NewMercadoPagoAdapter(MercadoPagoConfig{})
	out := adapter.Charge(context.Background(), &entity.MercadoPagoCredentials{AccessToken: "x"}, &ChargeInput{})
	if out.Success || out.ErrorMessage != "mercadopago charges are not implemented" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if tok := adapter.Tokenize(context.Background(), nil, nil); tok.Success {
		t.Fatal("expected tokenization to fail")
	}
}

func TestMercadoPagoParseWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/555" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer APP_USR-1" {
			t.Fatalf("unexpected authorization: %s", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"id":555,"status":"approved","external_reference":"INV-9-0"}`))
	}))
	defer srv.Close()

	adapter := NewMercadoPagoAdapter(MercadoPagoConfig{BaseURL: srv.URL})
	creds := &entity.MercadoPagoCredentials{AccessToken: "APP_USR-1", WebhookSecret: "mp-secret"}

	headers := http.Header{}
	headers.Set("X-Request-Id", "req-1")
	headers.Set("X-Signature", signMercadoPago("mp-secret", "555", "req-1", "1704908010"))

	event, err := adapter.ParseWebhook(context.Background(), creds, &WebhookRequest{
		Payload: []byte(`{"type":"payment","action":"payment.updated","data":{"id":"555"}}`),
		Headers: headers,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Reference != "INV-9-0" || event.State != StateApproved || event.TransactionID != "555" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestMercadoPagoParseWebhookRejectsBadSignature(t *testing.T) {
	adapter := NewMercadoPagoAdapter(MercadoPagoConfig{BaseURL: "http://127.0.0.1:1"})
	creds := &entity.MercadoPagoCredentials{AccessToken: "APP_USR-1", WebhookSecret: "mp-secret"}

	headers := http.Header{}
	headers.Set("X-Request-Id", "req-1")
	headers.Set("X-Signature", signMercadoPago("other", "555", "req-1", "1704908010"))

	_, err := adapter.ParseWebhook(context.Background(), creds, &WebhookRequest{
		Payload: []byte(`{"type":"payment","data":{"id":555}}`),
		Headers: headers,
	})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestMercadoPagoIgnoresNonPaymentEvents(t *testing.T) {
	adapter := NewMercadoPagoAdapter(MercadoPagoConfig{BaseURL: "http://127.0.0.1:1"})
	event, err := adapter.ParseWebhook(context.Background(), &entity.MercadoPagoCredentials{AccessToken: "x"}, &WebhookRequest{
		Payload: []byte(`{"type":"plan","data":{"id":"1"}}`),
		Headers: http.Header{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.State != "" {
		t.Fatalf("expected no payment outcome, got %s", event.State)
	}
}

func TestMercadoPagoTransactionByReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/search" || r.URL.Query().Get("external_reference") != "INV-9-0" {
			t.Fatalf("unexpected request: %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"results":[{"id":777,"status":"in_process"}]}`))
	}))
	defer srv.Close()

	adapter := NewMercadoPagoAdapter(MercadoPagoConfig{BaseURL: srv.URL})
	found, err := adapter.TransactionByReference(context.Background(), &entity.MercadoPagoCredentials{AccessToken: "APP_USR-1"}, "INV-9-0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.TransactionID != "777" || found.State != StatePending {
		t.Fatalf("unexpected lookup: %+v", found)
	}
}
