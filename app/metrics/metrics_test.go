package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ChargesTotal.WithLabelValues("wompi", "subscription", "success").Inc()
	c.ChargesTotal.WithLabelValues("wompi", "subscription", "success").Inc()
	c.Anomalies.WithLabelValues("missing_plan").Inc()

	if got := testutil.ToFloat64(c.ChargesTotal.WithLabelValues("wompi", "subscription", "success")); got != 2 {
		t.Fatalf("expected 2 charges, got %v", got)
	}
	if got := testutil.ToFloat64(c.Anomalies.WithLabelValues("missing_plan")); got != 1 {
		t.Fatalf("expected 1 anomaly, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}
