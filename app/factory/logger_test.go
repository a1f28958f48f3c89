package factory

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func TestNewModuleLoggerTagsModule(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	NewModuleLogger("billing-controller").Info("charged")

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["module"] != "billing-controller" {
		t.Fatalf("expected module field, got %v", entry.Data)
	}
}

func TestLoggerWithContextAddsRequestID(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	e := echo.New()
	req := httptest.NewRequest("POST", "/billing/charges", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	ctx := e.NewContext(req, httptest.NewRecorder())

	LoggerWithContext(NewModuleLogger("billing-controller"), ctx).Warn("charge declined")

	entry := hook.LastEntry()
	if entry == nil || entry.Data["request_id"] != "req-123" {
		t.Fatalf("expected request_id field, got %+v", entry)
	}
	if entry.Level != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", entry.Level)
	}
}

func TestLoggerWithContextFallsBackToResponseHeader(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	e := echo.New()
	rec := httptest.NewRecorder()
	ctx := e.NewContext(httptest.NewRequest("POST", "/webhooks/wompi/gratu", nil), rec)
	ctx.Response().Header().Set(echo.HeaderXRequestID, "generated-1")

	LoggerWithContext(NewModuleLogger("billing-controller"), ctx).Info("webhook received")

	if entry := hook.LastEntry(); entry == nil || entry.Data["request_id"] != "generated-1" {
		t.Fatalf("expected generated request id, got %+v", entry)
	}
}

func TestLoggerWithContextWithoutRequestID(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	ctx := echo.New().NewContext(httptest.NewRequest("GET", "/health", nil), httptest.NewRecorder())
	LoggerWithContext(NewModuleLogger("billing-controller"), ctx).Info("ok")
	LoggerWithContext(NewModuleLogger("billing-controller"), nil).Info("no context")

	for _, entry := range hook.AllEntries() {
		if _, ok := entry.Data["request_id"]; ok {
			t.Fatalf("expected no request_id field, got %v", entry.Data)
		}
	}
}
